// Package beaconsdk is an offline-resilient wallet SDK: encrypted credential
// storage, deterministic key derivation, signed payment payloads, proximity
// transport and a durable offline submission queue behind a single client
// interface.
package beaconsdk

import (
	"context"
	"time"

	"github.com/beaconwallet/go-sdk/keyring"
	"github.com/beaconwallet/go-sdk/payload"
	"github.com/beaconwallet/go-sdk/proximity"
	"github.com/beaconwallet/go-sdk/types"
)

var Version string

// InitArgs configures a freshly created wallet.
type InitArgs struct {
	Password        string
	Chains          []types.Chain
	SelectedChainID string

	PaymentTTL        time.Duration
	MaxTimestampSkew  time.Duration
	MonitorInterval   time.Duration
	ScanTimeout       time.Duration
	MaxSubmitAttempts int
}

// ImportArgs restores a wallet from an existing credential. Exactly one of
// Mnemonic and PrivateKey must be set.
type ImportArgs struct {
	InitArgs
	Mnemonic   string
	PrivateKey string
}

// SendResult reports how a payment left the wallet: straight to the chain
// index, or durably queued for a later drain.
type SendResult struct {
	Submitted bool
	TxHash    string
	Queued    *types.PendingTransaction
}

type WalletClient interface {
	GetVersion() string
	GetConfigData(ctx context.Context) (*types.Config, error)
	WalletState(ctx context.Context) types.WalletState

	// Init creates a brand new wallet and returns the mnemonic exactly once.
	// The wallet stays in PendingBackup until ConfirmBackup is called.
	Init(ctx context.Context, args InitArgs) (mnemonic string, err error)
	Import(ctx context.Context, args ImportArgs) error
	ConfirmBackup(ctx context.Context) error

	IsLocked(ctx context.Context) bool
	Unlock(ctx context.Context, password string) error
	Lock(ctx context.Context) error
	ChangePassword(ctx context.Context, oldPassword, newPassword string) error

	// ExportMnemonic and ExportPrivateKey demand a fresh password check even
	// on an unlocked wallet.
	ExportMnemonic(ctx context.Context, password string) (string, error)
	ExportPrivateKey(ctx context.Context, password string) (string, error)
	ValidateConsistency(
		ctx context.Context, password string,
	) (keyring.ConsistencyResult, error)
	Destroy(ctx context.Context) error

	Receive(ctx context.Context, chainID string) (string, error)
	Balance(ctx context.Context, chainID string) (uint64, error)

	SignPayment(
		ctx context.Context, request types.PaymentRequest, reference string,
	) (types.SignedPaymentPayload, error)
	VerifyPayment(
		ctx context.Context, raw []byte,
	) (payload.Result, *types.PaymentRequest, error)
	PaymentQR(ctx context.Context, p types.SignedPaymentPayload) ([]byte, error)

	// SendPayment submits when online and silently degrades to enqueueing on
	// connectivity loss. Payment acceptance never blocks on the network.
	SendPayment(ctx context.Context, request types.PaymentRequest) (SendResult, error)
	ListPendingTransactions(ctx context.Context) ([]types.PendingTransaction, error)
	CancelPendingTransaction(ctx context.Context, id string) error
	DrainQueue(ctx context.Context) error
	NotifyConnectivity(ctx context.Context, online bool)

	StartProximityScan(
		ctx context.Context, opts ...proximity.ScanOption,
	) (*proximity.ScanSession, error)
	StopProximityScan()
	AdvertisePayment(ctx context.Context, adv types.Advertisement) error
	SendPaymentToPeer(
		ctx context.Context, peer types.ScannedPeer, p types.SignedPaymentPayload,
	) error

	StartConflictMonitor(ctx context.Context) error
	StopConflictMonitor()

	GetTransactionHistory(ctx context.Context, chainID string) ([]types.HistoryRecord, error)
	GetSecurityWarningChannel(ctx context.Context) <-chan types.SecurityWarning
	GetPendingTxEventChannel(ctx context.Context) <-chan types.PendingTxEvent

	Stop()
}
