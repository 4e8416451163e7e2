// Package monitor watches the chain index for signs that the stored
// credential is being used by another wallet installation.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/beaconwallet/go-sdk/explorer"
	"github.com/beaconwallet/go-sdk/internal/utils"
	"github.com/beaconwallet/go-sdk/types"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultPollInterval = 30 * time.Second

	// recentWindow bounds how far back an outgoing transfer still counts as
	// recent activity.
	recentWindow = time.Hour

	// externalActivityThreshold is the recent external transfer count at
	// which the finding escalates to critical.
	externalActivityThreshold = 5
)

const (
	WarningExternalTransfer   = "EXTERNAL_TRANSFER"
	WarningBalanceDiscrepancy = "BALANCE_DISCREPANCY"
	WarningElevatedActivity   = "ELEVATED_EXTERNAL_ACTIVITY"
)

// KnownTxProvider reports which outgoing tx hashes originated from this
// installation. types.HistoryStore satisfies it.
type KnownTxProvider interface {
	GetKnownTxHashes(ctx context.Context, chainID, address string) (map[string]struct{}, error)
}

// BalanceProvider returns the balance this installation expects on chain,
// confirmed funds minus locally reserved pending amounts. The second return
// reports whether an expectation exists for the chain.
type BalanceProvider func(ctx context.Context, chainID, address string) (uint64, bool)

// Target is one (chain, address) pair under watch.
type Target struct {
	Chain   types.Chain
	Address string
}

// Monitor polls the chain index and emits advisory findings. Findings are
// session scoped and never persisted.
type Monitor struct {
	client   explorer.Client
	known    KnownTxProvider
	targets  []Target
	interval time.Duration
	balance  BalanceProvider
	now      func() time.Time

	warnings *utils.Broadcaster[types.SecurityWarning]

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	alerted map[string]struct{} // tx hashes already flagged this session
}

type Option func(*Monitor)

// WithInterval overrides the poll cadence.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		m.interval = d
	}
}

// WithBalanceProvider enables discrepancy checks against the balance the
// installation expects locally.
func WithBalanceProvider(p BalanceProvider) Option {
	return func(m *Monitor) {
		m.balance = p
	}
}

// WithClock injects the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

func NewMonitor(
	client explorer.Client, known KnownTxProvider, targets []Target, opts ...Option,
) *Monitor {
	m := &Monitor{
		client:   client,
		known:    known,
		targets:  targets,
		interval: DefaultPollInterval,
		now:      time.Now,
		warnings: utils.NewBroadcaster[types.SecurityWarning](),
		alerted:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Warnings returns a subscription to monitor findings.
func (m *Monitor) Warnings() <-chan types.SecurityWarning {
	return m.warnings.Subscribe(16)
}

// Start begins polling in the background. Calling Start on a running monitor
// is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.loop(ctx, m.done)
}

// Stop halts polling and waits for the loop to exit. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Close stops the monitor and releases the warning channels.
func (m *Monitor) Close() {
	m.Stop()
	m.warnings.Close()
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Poll(ctx)
		}
	}
}

// Poll runs one inspection pass over every target. Index errors are logged
// and skipped, a flaky connection must never break the wallet session.
func (m *Monitor) Poll(ctx context.Context) {
	for _, target := range m.targets {
		if err := m.pollTarget(ctx, target); err != nil {
			log.Debugf(
				"monitor: poll failed for %s on %s: %s",
				target.Address, target.Chain.ID, err,
			)
		}
	}
}

func (m *Monitor) pollTarget(ctx context.Context, target Target) error {
	txs, err := m.client.GetAddressTxs(ctx, target.Chain, target.Address)
	if err != nil {
		return err
	}

	known, err := m.known.GetKnownTxHashes(ctx, target.Chain.ID, target.Address)
	if err != nil {
		return err
	}

	external := m.findExternal(target, txs, known)
	for _, tx := range external {
		m.warnings.Publish(types.SecurityWarning{
			Type:     WarningExternalTransfer,
			Severity: types.SeverityHigh,
			Message: fmt.Sprintf(
				"outgoing transfer %s on %s was not initiated by this wallet",
				tx.TxHash, target.Chain.ID,
			),
			Details: map[string]string{
				"chainId": target.Chain.ID,
				"txHash":  tx.TxHash,
				"to":      tx.To,
				"amount":  fmt.Sprintf("%d", tx.Amount),
			},
		})
	}

	if len(external) >= externalActivityThreshold {
		m.warnings.Publish(types.SecurityWarning{
			Type:     WarningElevatedActivity,
			Severity: types.SeverityCritical,
			Message: fmt.Sprintf(
				"%d recent external transfers on %s, the credential may be in use elsewhere",
				len(external), target.Chain.ID,
			),
			Details: map[string]string{
				"chainId": target.Chain.ID,
				"count":   fmt.Sprintf("%d", len(external)),
			},
		})
	}

	m.checkBalance(ctx, target)
	return nil
}

// findExternal returns recent outgoing transfers whose hash is unknown to
// the local history, flagging each hash at most once per session.
func (m *Monitor) findExternal(
	target Target, txs []explorer.Tx, known map[string]struct{},
) []explorer.Tx {
	cutoff := m.now().Add(-recentWindow).Unix()

	external := make([]explorer.Tx, 0)
	for _, tx := range txs {
		if !strings.EqualFold(tx.From, target.Address) {
			continue
		}
		if _, ok := known[tx.TxHash]; ok {
			continue
		}
		if !tx.Pending && tx.BlockTime > 0 && tx.BlockTime < cutoff {
			continue
		}
		external = append(external, tx)
	}

	fresh := external[:0]
	m.mu.Lock()
	for _, tx := range external {
		if _, ok := m.alerted[tx.TxHash]; ok {
			continue
		}
		m.alerted[tx.TxHash] = struct{}{}
		fresh = append(fresh, tx)
	}
	m.mu.Unlock()
	return fresh
}

func (m *Monitor) checkBalance(ctx context.Context, target Target) {
	if m.balance == nil {
		return
	}
	expected, ok := m.balance(ctx, target.Chain.ID, target.Address)
	if !ok {
		return
	}
	actual, err := m.client.GetBalance(ctx, target.Chain, target.Address)
	if err != nil {
		log.Debugf(
			"monitor: balance check failed for %s on %s: %s",
			target.Address, target.Chain.ID, err,
		)
		return
	}
	if actual == expected {
		return
	}

	m.warnings.Publish(types.SecurityWarning{
		Type:     WarningBalanceDiscrepancy,
		Severity: types.SeverityMedium,
		Message: fmt.Sprintf(
			"balance on %s is %d but this wallet expected %d",
			target.Chain.ID, actual, expected,
		),
		Details: map[string]string{
			"chainId":  target.Chain.ID,
			"actual":   fmt.Sprintf("%d", actual),
			"expected": fmt.Sprintf("%d", expected),
		},
	})
}
