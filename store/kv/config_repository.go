package kvstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/beaconwallet/go-sdk/types"
	"github.com/dgraph-io/badger/v4"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
)

const (
	configStoreDir = "config"

	configKey = "config"
)

type configStore struct {
	db        *badgerhold.Store
	storeType string
	datadir   string
}

func NewConfigStore(
	storeType, dir string, logger badger.Logger,
) (types.ConfigStore, error) {
	dbDir := dir
	if dbDir != "" {
		dbDir = filepath.Join(dbDir, configStoreDir)
	}
	badgerDb, err := createDB(dbDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open config store: %s", err)
	}
	return &configStore{
		db:        badgerDb,
		storeType: storeType,
		datadir:   dir,
	}, nil
}

func (s *configStore) GetType() string {
	return s.storeType
}

func (s *configStore) GetDatadir() string {
	return s.datadir
}

func (s *configStore) AddData(_ context.Context, data types.Config) error {
	return s.db.Upsert(configKey, &data)
}

func (s *configStore) GetData(_ context.Context) (*types.Config, error) {
	var data types.Config
	if err := s.db.Get(configKey, &data); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &data, nil
}

func (s *configStore) CleanData(_ context.Context) error {
	if err := s.db.Delete(configKey, &types.Config{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to clean config store: %s", err)
	}
	return nil
}

func (s *configStore) Close() {
	if err := s.db.Close(); err != nil {
		log.Debugf("error on closing db: %s", err)
	}
}
