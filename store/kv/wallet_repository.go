package kvstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/beaconwallet/go-sdk/types"
	"github.com/dgraph-io/badger/v4"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
)

const (
	walletStoreDir = "wallet"

	walletKey = "wallet"
	stagedKey = "wallet_staged"
)

// walletStore holds the single encrypted wallet record. Rekeying writes the
// new ciphertext to a staging key first and promotes it, so a crash between
// the two writes leaves the prior record intact.
type walletStore struct {
	db *badgerhold.Store
}

type walletRecord struct {
	Ciphertext      []byte
	Salt            []byte
	VerifyTag       []byte
	Addresses       map[string]string
	BackupConfirmed bool
	Imported        bool
	CreatedAt       time.Time
}

func NewWalletStore(dir string, logger badger.Logger) (types.WalletStore, error) {
	if dir != "" {
		dir = filepath.Join(dir, walletStoreDir)
	}
	badgerDb, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open wallet store: %s", err)
	}
	return &walletStore{db: badgerDb}, nil
}

func (s *walletStore) AddWallet(_ context.Context, record types.WalletRecord) error {
	rec := toWalletRecord(record)
	if err := s.db.Insert(walletKey, &rec); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return fmt.Errorf("wallet record already exists")
		}
		return err
	}
	return nil
}

func (s *walletStore) GetWallet(_ context.Context) (*types.WalletRecord, error) {
	var rec walletRecord
	if err := s.db.Get(walletKey, &rec); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	record := rec.toWallet()
	return &record, nil
}

func (s *walletStore) UpdateWallet(_ context.Context, record types.WalletRecord) error {
	rec := toWalletRecord(record)
	return s.db.Upsert(walletKey, &rec)
}

func (s *walletStore) StageWallet(_ context.Context, record types.WalletRecord) error {
	rec := toWalletRecord(record)
	return s.db.Upsert(stagedKey, &rec)
}

func (s *walletStore) PromoteStaged(_ context.Context) error {
	var staged walletRecord
	if err := s.db.Get(stagedKey, &staged); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return fmt.Errorf("no staged wallet record to promote")
		}
		return err
	}
	if err := s.db.Upsert(walletKey, &staged); err != nil {
		return err
	}
	return s.db.Delete(stagedKey, &walletRecord{})
}

func (s *walletStore) DiscardStaged(_ context.Context) error {
	if err := s.db.Delete(stagedKey, &walletRecord{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil
		}
		return err
	}
	return nil
}

func (s *walletStore) DeleteWallet(_ context.Context) error {
	if err := s.db.Badger().DropAll(); err != nil {
		return fmt.Errorf("failed to delete wallet record: %s", err)
	}
	return nil
}

func (s *walletStore) Close() {
	if err := s.db.Close(); err != nil {
		log.Debugf("error on closing db: %s", err)
	}
}

func toWalletRecord(w types.WalletRecord) walletRecord {
	return walletRecord{
		Ciphertext:      w.Ciphertext,
		Salt:            w.Salt,
		VerifyTag:       w.VerifyTag,
		Addresses:       w.Addresses,
		BackupConfirmed: w.BackupConfirmed,
		Imported:        w.Imported,
		CreatedAt:       w.CreatedAt,
	}
}

func (r walletRecord) toWallet() types.WalletRecord {
	return types.WalletRecord{
		Ciphertext:      r.Ciphertext,
		Salt:            r.Salt,
		VerifyTag:       r.VerifyTag,
		Addresses:       r.Addresses,
		BackupConfirmed: r.BackupConfirmed,
		Imported:        r.Imported,
		CreatedAt:       r.CreatedAt,
	}
}
