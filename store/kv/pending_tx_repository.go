package kvstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/beaconwallet/go-sdk/types"
	"github.com/dgraph-io/badger/v4"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
)

const (
	pendingTxStoreDir = "pendingtxs"
)

type pendingTxStore struct {
	db      *badgerhold.Store
	lock    *sync.Mutex
	eventCh chan types.PendingTxEvent
}

type pendingTxRecord struct {
	ID        string
	ChainID   string
	From      string
	To        string
	Token     string
	Amount    uint64
	CreatedAt time.Time
	ExpiresAt time.Time
	Status    int
	Attempts  int
	LastError string
	TxHash    string
}

func NewPendingTxStore(dir string, logger badger.Logger) (types.PendingTxStore, error) {
	if dir != "" {
		dir = filepath.Join(dir, pendingTxStoreDir)
	}
	badgerDb, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open pending tx store: %s", err)
	}
	return &pendingTxStore{
		db:      badgerDb,
		lock:    &sync.Mutex{},
		eventCh: make(chan types.PendingTxEvent, 100),
	}, nil
}

func (s *pendingTxStore) AddTransaction(
	_ context.Context, tx types.PendingTransaction,
) error {
	record := toPendingTxRecord(tx)
	if err := s.db.Insert(tx.ID, &record); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return fmt.Errorf("transaction %s already queued", tx.ID)
		}
		return err
	}

	go s.sendEvent(types.PendingTxEvent{
		Type: types.PendingTxsAdded, Txs: []types.PendingTransaction{tx},
	})
	return nil
}

func (s *pendingTxStore) UpdateTransactions(
	_ context.Context, txs []types.PendingTransaction,
) (int, error) {
	updated := make([]types.PendingTransaction, 0, len(txs))
	for _, tx := range txs {
		record := toPendingTxRecord(tx)
		if err := s.db.Update(tx.ID, &record); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				continue
			}
			return -1, err
		}
		updated = append(updated, tx)
	}

	if len(updated) > 0 {
		go s.sendEvent(types.PendingTxEvent{
			Type: types.PendingTxsUpdated, Txs: updated,
		})
	}
	return len(updated), nil
}

func (s *pendingTxStore) GetTransaction(
	_ context.Context, id string,
) (*types.PendingTransaction, error) {
	var record pendingTxRecord
	if err := s.db.Get(id, &record); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	tx := record.toPendingTx()
	return &tx, nil
}

func (s *pendingTxStore) GetAllTransactions(
	_ context.Context,
) ([]types.PendingTransaction, error) {
	var records []pendingTxRecord
	if err := s.db.Find(&records, nil); err != nil {
		return nil, err
	}

	txs := make([]types.PendingTransaction, 0, len(records))
	for _, record := range records {
		txs = append(txs, record.toPendingTx())
	}
	return txs, nil
}

func (s *pendingTxStore) GetActiveTransactions(
	ctx context.Context,
) ([]types.PendingTransaction, error) {
	all, err := s.GetAllTransactions(ctx)
	if err != nil {
		return nil, err
	}

	active := make([]types.PendingTransaction, 0, len(all))
	for _, tx := range all {
		if tx.Status.Terminal() || tx.Status == types.TxSubmitted {
			continue
		}
		active = append(active, tx)
	}
	return active, nil
}

func (s *pendingTxStore) RemoveTransactions(
	ctx context.Context, ids []string,
) (int, error) {
	removed := make([]types.PendingTransaction, 0, len(ids))
	for _, id := range ids {
		tx, err := s.GetTransaction(ctx, id)
		if err != nil {
			return -1, err
		}
		if tx == nil {
			continue
		}
		if err := s.db.Delete(id, &pendingTxRecord{}); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				continue
			}
			return -1, err
		}
		removed = append(removed, *tx)
	}

	if len(removed) > 0 {
		go s.sendEvent(types.PendingTxEvent{
			Type: types.PendingTxsRemoved, Txs: removed,
		})
	}
	return len(removed), nil
}

func (s *pendingTxStore) GetEventChannel() <-chan types.PendingTxEvent {
	return s.eventCh
}

func (s *pendingTxStore) Clean(_ context.Context) error {
	if err := s.db.Badger().DropAll(); err != nil {
		return fmt.Errorf("failed to clean the pending tx db: %s", err)
	}
	return nil
}

func (s *pendingTxStore) Close() {
	if err := s.db.Close(); err != nil {
		log.Debugf("error on closing db: %s", err)
	}
}

func (s *pendingTxStore) sendEvent(event types.PendingTxEvent) {
	s.lock.Lock()
	defer s.lock.Unlock()

	select {
	case s.eventCh <- event:
		return
	default:
		time.Sleep(100 * time.Millisecond)
	}
}

func toPendingTxRecord(tx types.PendingTransaction) pendingTxRecord {
	return pendingTxRecord{
		ID:        tx.ID,
		ChainID:   tx.ChainID,
		From:      tx.From,
		To:        tx.To,
		Token:     tx.Token,
		Amount:    tx.Amount,
		CreatedAt: tx.CreatedAt,
		ExpiresAt: tx.ExpiresAt,
		Status:    int(tx.Status),
		Attempts:  tx.Attempts,
		LastError: tx.LastError,
		TxHash:    tx.TxHash,
	}
}

func (r pendingTxRecord) toPendingTx() types.PendingTransaction {
	return types.PendingTransaction{
		ID:        r.ID,
		ChainID:   r.ChainID,
		From:      r.From,
		To:        r.To,
		Token:     r.Token,
		Amount:    r.Amount,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
		Status:    types.TxStatus(r.Status),
		Attempts:  r.Attempts,
		LastError: r.LastError,
		TxHash:    r.TxHash,
	}
}
