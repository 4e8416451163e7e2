// Package queue durably captures payment intents created while offline and
// drives their resubmission until accepted, expired or cancelled.
package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/beaconwallet/go-sdk/explorer"
	"github.com/beaconwallet/go-sdk/internal/utils"
	"github.com/beaconwallet/go-sdk/types"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// DefaultTTL is the fixed policy constant after which a queued intent is
// considered expired.
const DefaultTTL = 24 * time.Hour

// expiryWarningThresholds are the remaining-time marks at which a warning is
// raised for a still-queued transaction, ordered from widest to narrowest.
var expiryWarningThresholds = []time.Duration{time.Hour, 15 * time.Minute}

const (
	WarningTxExpiring = "PENDING_TX_EXPIRING"
	WarningTxExpired  = "PENDING_TX_EXPIRED"
)

// InvalidStateTransitionError is returned on an illegal transition request,
// e.g. cancelling a submitted transaction. No state is changed.
type InvalidStateTransitionError struct {
	ID   string
	From types.TxStatus
	To   types.TxStatus
}

func (e InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for tx %s: %s -> %s", e.ID, e.From, e.To)
}

// Submitter performs the actual network submission of a payment intent.
type Submitter interface {
	Submit(ctx context.Context, tx types.PendingTransaction) (txHash string, err error)
}

// Intent is a payment the holder authorized while the network was away.
type Intent struct {
	ChainID string
	From    string
	To      string
	Token   string
	Amount  uint64
}

// Service owns the pending transaction state machine. Drains are serialized
// per (chainId, sender) key so two in-flight submissions can never race on
// the same nonce.
type Service struct {
	store     types.PendingTxStore
	submitter Submitter
	ttl       time.Duration
	retry     utils.RetryPolicy
	now       func() time.Time

	warnings *utils.Broadcaster[types.SecurityWarning]

	mu     sync.Mutex
	locks  map[string]*sync.Mutex // SubmissionKey -> in-flight lock
	warned map[string]time.Duration
}

type Option func(*Service)

// WithTTL overrides the expiry policy.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.ttl = ttl
	}
}

// WithRetryPolicy overrides the bounded-attempt backoff policy applied to
// failed submissions.
func WithRetryPolicy(p utils.RetryPolicy) Option {
	return func(s *Service) {
		s.retry = p
	}
}

// WithClock injects the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(store types.PendingTxStore, submitter Submitter, opts ...Option) *Service {
	s := &Service{
		store:     store,
		submitter: submitter,
		ttl:       DefaultTTL,
		retry:     utils.DefaultRetryPolicy,
		now:       time.Now,
		warnings:  utils.NewBroadcaster[types.SecurityWarning](),
		locks:     make(map[string]*sync.Mutex),
		warned:    make(map[string]time.Duration),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reconfigure applies options to a live service, e.g. once the persisted
// wallet configuration is known. Entries already queued keep the expiry
// computed when they were enqueued.
func (s *Service) Reconfigure(opts ...Option) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, opt := range opts {
		opt(s)
	}
}

func (s *Service) expiryTTL() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttl
}

func (s *Service) retryPolicy() utils.RetryPolicy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retry
}

// Enqueue durably captures an intent. Used when submission is attempted
// offline or fails with a transient network error.
func (s *Service) Enqueue(ctx context.Context, intent Intent) (types.PendingTransaction, error) {
	if intent.ChainID == "" || intent.From == "" || intent.To == "" {
		return types.PendingTransaction{}, fmt.Errorf("intent is missing chain, sender or recipient")
	}

	now := s.now()
	tx := types.PendingTransaction{
		ID:        uuid.NewString(),
		ChainID:   intent.ChainID,
		From:      intent.From,
		To:        intent.To,
		Token:     intent.Token,
		Amount:    intent.Amount,
		CreatedAt: now,
		ExpiresAt: now.Add(s.expiryTTL()),
		Status:    types.TxQueued,
	}
	if err := s.store.AddTransaction(ctx, tx); err != nil {
		return types.PendingTransaction{}, fmt.Errorf("failed to persist intent: %w", err)
	}
	return tx, nil
}

// ListPending returns the non-terminal entries of the queue.
func (s *Service) ListPending(ctx context.Context) ([]types.PendingTransaction, error) {
	txs, err := s.store.GetActiveTransactions(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].CreatedAt.Before(txs[j].CreatedAt)
	})
	return txs, nil
}

// Cancel moves a queued or failed entry to cancelled, releasing whatever the
// caller had reserved against it. Submitted and confirmed entries are
// immutable.
func (s *Service) Cancel(ctx context.Context, id string) error {
	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	if tx == nil {
		return fmt.Errorf("unknown transaction %s", id)
	}
	if !tx.Cancellable() {
		return InvalidStateTransitionError{ID: id, From: tx.Status, To: types.TxCancelled}
	}

	tx.Status = types.TxCancelled
	if _, err := s.store.UpdateTransactions(ctx, []types.PendingTransaction{*tx}); err != nil {
		return err
	}
	return nil
}

// Drain attempts submission of every eligible entry, oldest first, grouped
// and serialized per (chainId, sender). Invoked on connectivity-regained
// events. Draining twice with no state change submits nothing twice.
func (s *Service) Drain(ctx context.Context) error {
	// sweep first so an expired entry is never resubmitted
	if err := s.CheckExpiry(ctx); err != nil {
		return err
	}

	txs, err := s.store.GetActiveTransactions(ctx)
	if err != nil {
		return err
	}

	eligible := make([]types.PendingTransaction, 0, len(txs))
	for _, tx := range txs {
		if s.eligible(tx) {
			eligible = append(eligible, tx)
		}
	}
	if len(eligible) == 0 {
		return nil
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})

	groups := utils.GroupBy(eligible, func(tx types.PendingTransaction) string {
		return tx.SubmissionKey()
	})

	wg := &sync.WaitGroup{}
	for key, group := range groups {
		wg.Add(1)
		go func(key string, group []types.PendingTransaction) {
			defer wg.Done()
			lock := s.submissionLock(key)
			lock.Lock()
			defer lock.Unlock()
			for _, tx := range group {
				if ctx.Err() != nil {
					return
				}
				s.submitOne(ctx, tx.ID)
			}
		}(key, group)
	}
	wg.Wait()
	return ctx.Err()
}

func (s *Service) eligible(tx types.PendingTransaction) bool {
	switch tx.Status {
	case types.TxQueued:
		return true
	case types.TxFailed:
		return !s.retryPolicy().Exhausted(tx.Attempts)
	default:
		return false
	}
}

// submitOne re-reads the entry under the submission lock so concurrent
// drains observe each other's transitions and stay idempotent.
func (s *Service) submitOne(ctx context.Context, id string) {
	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil || tx == nil {
		log.Debugf("queue: skipping %s: %v", id, err)
		return
	}
	if !s.eligible(*tx) {
		return
	}
	if tx.Status == types.TxFailed {
		if err := utils.Sleep(ctx, s.retryPolicy().Delay(tx.Attempts+1)); err != nil {
			return
		}
	}

	tx.Status = types.TxSubmitting
	if _, err := s.store.UpdateTransactions(ctx, []types.PendingTransaction{*tx}); err != nil {
		log.Warnf("queue: failed to mark %s submitting: %s", id, err)
		return
	}

	txHash, submitErr := s.submitter.Submit(ctx, *tx)
	switch {
	case submitErr == nil:
		tx.Status = types.TxSubmitted
		tx.TxHash = txHash
		tx.LastError = ""
	case explorer.IsTransient(submitErr):
		// the network went away again: leave the entry queued for the next
		// connectivity event instead of burning an attempt
		tx.Status = types.TxQueued
		tx.LastError = submitErr.Error()
	default:
		tx.Status = types.TxFailed
		tx.Attempts++
		tx.LastError = submitErr.Error()
	}

	if _, err := s.store.UpdateTransactions(ctx, []types.PendingTransaction{*tx}); err != nil {
		log.Warnf("queue: failed to record outcome for %s: %s", id, err)
	}
}

// CheckExpiry sweeps queued entries past their deadline into expired, and
// raises threshold warnings for entries approaching it. Each (entry,
// threshold) pair warns exactly once.
func (s *Service) CheckExpiry(ctx context.Context) error {
	txs, err := s.store.GetActiveTransactions(ctx)
	if err != nil {
		return err
	}

	now := s.now()
	expired := make([]types.PendingTransaction, 0)
	for _, tx := range txs {
		if !tx.Expirable() {
			continue
		}
		remaining := tx.ExpiresAt.Sub(now)
		if remaining <= 0 {
			tx.Status = types.TxExpired
			expired = append(expired, tx)
			s.publishExpired(tx)
			continue
		}
		s.warnIfBelowThreshold(tx, remaining)
	}

	if len(expired) > 0 {
		if _, err := s.store.UpdateTransactions(ctx, expired); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) warnIfBelowThreshold(tx types.PendingTransaction, remaining time.Duration) {
	var crossed time.Duration
	for _, threshold := range expiryWarningThresholds {
		if remaining <= threshold {
			crossed = threshold
		}
	}
	if crossed == 0 {
		return
	}

	s.mu.Lock()
	already, ok := s.warned[tx.ID]
	if ok && already <= crossed {
		s.mu.Unlock()
		return
	}
	s.warned[tx.ID] = crossed
	s.mu.Unlock()

	severity := types.SeverityMedium
	if crossed <= expiryWarningThresholds[len(expiryWarningThresholds)-1] {
		severity = types.SeverityHigh
	}
	s.warnings.Publish(types.SecurityWarning{
		Type:     WarningTxExpiring,
		Severity: severity,
		Message: fmt.Sprintf(
			"queued payment to %s expires in %s", tx.To, remaining.Round(time.Minute),
		),
		Details: map[string]string{
			"txId":      tx.ID,
			"chainId":   tx.ChainID,
			"remaining": remaining.String(),
			"threshold": crossed.String(),
		},
	})
}

func (s *Service) publishExpired(tx types.PendingTransaction) {
	s.mu.Lock()
	delete(s.warned, tx.ID)
	s.mu.Unlock()

	s.warnings.Publish(types.SecurityWarning{
		Type:     WarningTxExpired,
		Severity: types.SeverityHigh,
		Message:  fmt.Sprintf("queued payment to %s expired before submission", tx.To),
		Details:  map[string]string{"txId": tx.ID, "chainId": tx.ChainID},
	})
}

// Warnings returns a subscription to expiry warnings.
func (s *Service) Warnings() <-chan types.SecurityWarning {
	return s.warnings.Subscribe(16)
}

// CancelAll cancels every cancellable entry. Used when the wallet is
// destroyed: intents tied to an erased key must not outlive it.
func (s *Service) CancelAll(ctx context.Context) error {
	txs, err := s.store.GetActiveTransactions(ctx)
	if err != nil {
		return err
	}
	cancelled := make([]types.PendingTransaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Cancellable() {
			tx.Status = types.TxCancelled
			cancelled = append(cancelled, tx)
		}
	}
	if len(cancelled) == 0 {
		return nil
	}
	_, err = s.store.UpdateTransactions(ctx, cancelled)
	return err
}

// Close releases the warning channels.
func (s *Service) Close() {
	s.warnings.Close()
}

func (s *Service) submissionLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}
