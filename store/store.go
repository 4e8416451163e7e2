package store

import (
	"context"
	"fmt"

	kvstore "github.com/beaconwallet/go-sdk/store/kv"
	sqlstore "github.com/beaconwallet/go-sdk/store/sql"
	"github.com/beaconwallet/go-sdk/types"
	log "github.com/sirupsen/logrus"
)

// Config selects the backing storage. An empty BaseDir or the InMemoryStore
// types yield purely in-memory stores, used by tests.
type Config struct {
	ConfigStoreType  string
	AppDataStoreType string
	BaseDir          string
}

type service struct {
	configStore    types.ConfigStore
	walletStore    types.WalletStore
	pendingTxStore types.PendingTxStore
	historyStore   types.HistoryStore
}

func NewStore(storeConfig Config) (types.Store, error) {
	configDir := storeConfig.BaseDir
	if storeConfig.ConfigStoreType == types.InMemoryStore {
		configDir = ""
	}
	appDir := storeConfig.BaseDir
	if storeConfig.AppDataStoreType == types.InMemoryStore {
		appDir = ""
	}

	configStore, err := kvstore.NewConfigStore(
		storeConfig.ConfigStoreType, configDir, nil,
	)
	if err != nil {
		return nil, err
	}

	walletStore, err := kvstore.NewWalletStore(appDir, nil)
	if err != nil {
		configStore.Close()
		return nil, err
	}

	pendingTxStore, err := kvstore.NewPendingTxStore(appDir, nil)
	if err != nil {
		configStore.Close()
		walletStore.Close()
		return nil, err
	}

	historyDB, err := sqlstore.OpenDB(appDir)
	if err != nil {
		configStore.Close()
		walletStore.Close()
		pendingTxStore.Close()
		return nil, fmt.Errorf("failed to open history store: %s", err)
	}

	return &service{
		configStore:    configStore,
		walletStore:    walletStore,
		pendingTxStore: pendingTxStore,
		historyStore:   sqlstore.NewHistoryStore(historyDB),
	}, nil
}

func (s *service) ConfigStore() types.ConfigStore {
	return s.configStore
}

func (s *service) WalletStore() types.WalletStore {
	return s.walletStore
}

func (s *service) PendingTxStore() types.PendingTxStore {
	return s.pendingTxStore
}

func (s *service) HistoryStore() types.HistoryStore {
	return s.historyStore
}

func (s *service) Clean(ctx context.Context) {
	if err := s.configStore.CleanData(ctx); err != nil {
		log.Debugf("failed to clean config store: %s", err)
	}
	if err := s.pendingTxStore.Clean(ctx); err != nil {
		log.Debugf("failed to clean pending tx store: %s", err)
	}
	if err := s.historyStore.Clean(ctx); err != nil {
		log.Debugf("failed to clean history store: %s", err)
	}
}

func (s *service) Close() {
	s.configStore.Close()
	s.walletStore.Close()
	s.pendingTxStore.Close()
	s.historyStore.Close()
}
