package types

import (
	"context"
)

type Store interface {
	ConfigStore() ConfigStore
	WalletStore() WalletStore
	PendingTxStore() PendingTxStore
	HistoryStore() HistoryStore
	Clean(ctx context.Context)
	Close()
}

type ConfigStore interface {
	GetType() string
	GetDatadir() string
	AddData(ctx context.Context, data Config) error
	GetData(ctx context.Context) (*Config, error)
	CleanData(ctx context.Context) error
	Close()
}

// WalletStore persists the single encrypted wallet record. Rekeying writes to
// a staging slot first and swaps, so a crash mid-rekey never loses the prior
// ciphertext.
type WalletStore interface {
	AddWallet(ctx context.Context, record WalletRecord) error
	GetWallet(ctx context.Context) (*WalletRecord, error)
	UpdateWallet(ctx context.Context, record WalletRecord) error
	StageWallet(ctx context.Context, record WalletRecord) error
	PromoteStaged(ctx context.Context) error
	DiscardStaged(ctx context.Context) error
	DeleteWallet(ctx context.Context) error
	Close()
}

type PendingTxStore interface {
	AddTransaction(ctx context.Context, tx PendingTransaction) error
	UpdateTransactions(ctx context.Context, txs []PendingTransaction) (int, error)
	GetTransaction(ctx context.Context, id string) (*PendingTransaction, error)
	GetAllTransactions(ctx context.Context) ([]PendingTransaction, error)
	GetActiveTransactions(ctx context.Context) ([]PendingTransaction, error)
	RemoveTransactions(ctx context.Context, ids []string) (int, error)
	Clean(ctx context.Context) error
	GetEventChannel() <-chan PendingTxEvent
	Close()
}

type HistoryStore interface {
	AddRecords(ctx context.Context, records []HistoryRecord) (int, error)
	ConfirmRecords(ctx context.Context, txHashes []string) (int, error)
	GetRecords(ctx context.Context, chainID, address string) ([]HistoryRecord, error)
	GetKnownTxHashes(ctx context.Context, chainID, address string) (map[string]struct{}, error)
	Clean(ctx context.Context) error
	GetEventChannel() <-chan HistoryEvent
	Close()
}
