package types

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	InMemoryStore = "inmemory"
	KVStore       = "kv"
	SQLStore      = "sql"
)

// ChainKind selects how addresses are encoded for a chain.
type ChainKind int

const (
	ChainKindEVM ChainKind = iota
	ChainKindBech32
)

func (k ChainKind) String() string {
	return map[ChainKind]string{
		ChainKindEVM:    "EVM",
		ChainKindBech32: "BECH32",
	}[k]
}

// Chain describes one supported network.
type Chain struct {
	ID              string
	Kind            ChainKind
	AddressPrefix   string // bech32 HRP, unused for EVM chains
	DerivationIndex uint32 // BIP44 address index
	ExplorerURL     string
}

type Config struct {
	Chains            []Chain
	SelectedChainID   string
	StoreType         string
	Datadir           string
	PaymentTTL        time.Duration
	MaxTimestampSkew  time.Duration
	MonitorInterval   time.Duration
	ScanTimeout       time.Duration
	MaxSubmitAttempts int
}

func (c Config) Chain(chainID string) (Chain, bool) {
	for _, chain := range c.Chains {
		if chain.ID == chainID {
			return chain, true
		}
	}
	return Chain{}, false
}

// WalletState is the lifecycle state of the device wallet.
type WalletState int

const (
	NoWallet WalletState = iota
	PendingBackup
	Active
	Locked
)

func (s WalletState) String() string {
	return map[WalletState]string{
		NoWallet:      "NO_WALLET",
		PendingBackup: "PENDING_BACKUP",
		Active:        "ACTIVE",
		Locked:        "LOCKED",
	}[s]
}

// WalletRecord is the single encrypted-at-rest wallet of the device.
// Plaintext secret material never appears here.
type WalletRecord struct {
	Ciphertext      []byte
	Salt            []byte
	VerifyTag       []byte
	Addresses       map[string]string // chainID -> address
	BackupConfirmed bool
	Imported        bool
	CreatedAt       time.Time
}

func (r WalletRecord) IsZero() bool {
	return len(r.Ciphertext) == 0
}

type TxStatus int

const (
	TxQueued TxStatus = iota
	TxSubmitting
	TxSubmitted
	TxConfirmed
	TxFailed
	TxExpired
	TxCancelled
)

func (s TxStatus) String() string {
	return map[TxStatus]string{
		TxQueued:     "QUEUED",
		TxSubmitting: "SUBMITTING",
		TxSubmitted:  "SUBMITTED",
		TxConfirmed:  "CONFIRMED",
		TxFailed:     "FAILED",
		TxExpired:    "EXPIRED",
		TxCancelled:  "CANCELLED",
	}[s]
}

// Terminal reports whether no further transition is allowed from s.
func (s TxStatus) Terminal() bool {
	switch s {
	case TxConfirmed, TxExpired, TxCancelled:
		return true
	default:
		return false
	}
}

// PendingTransaction is a durably captured payment intent awaiting submission.
type PendingTransaction struct {
	ID        string
	ChainID   string
	From      string
	To        string
	Token     string
	Amount    uint64
	CreatedAt time.Time
	ExpiresAt time.Time
	Status    TxStatus
	Attempts  int
	LastError string
	TxHash    string
}

func (t PendingTransaction) String() string {
	// nolint
	b, _ := json.MarshalIndent(t, "", "  ")
	return string(b)
}

// SubmissionKey identifies the per-chain, per-sender serialization domain
// for in-flight submissions.
func (t PendingTransaction) SubmissionKey() string {
	return fmt.Sprintf("%s:%s", t.ChainID, t.From)
}

func (t PendingTransaction) Expirable() bool {
	return t.Status == TxQueued
}

func (t PendingTransaction) Cancellable() bool {
	return t.Status == TxQueued || t.Status == TxFailed
}

// PaymentSignature carries the signature metadata attached to a signed payload.
type PaymentSignature struct {
	Version     int    `json:"version"`
	Signer      string `json:"signer"`
	Signature   string `json:"signature"`
	Timestamp   int64  `json:"timestamp"`
	ChainID     string `json:"chainId"`
	MessageHash string `json:"messageHash"`
}

// SignedPaymentPayload is the transport-agnostic wire format exchanged over
// QR codes and proximity links.
type SignedPaymentPayload struct {
	Type             string            `json:"type"`
	To               string            `json:"to"`
	ChainID          string            `json:"chainId"`
	Amount           uint64            `json:"amount,omitempty"`
	PaymentReference string            `json:"paymentReference,omitempty"`
	Timestamp        int64             `json:"timestamp"`
	Signature        *PaymentSignature `json:"signature"`
}

// PaymentRequest is the unsigned minimal form, accepted only as unverified.
type PaymentRequest struct {
	To        string `json:"to"`
	Amount    uint64 `json:"amount,omitempty"`
	ChainID   string `json:"chainId"`
	Transport string `json:"transport,omitempty"`
}

// Advertisement is the compact structure broadcast by a receiver over the
// proximity link.
type Advertisement struct {
	WalletAddress string `json:"walletAddress"`
	Token         string `json:"token"`
	Amount        uint64 `json:"amount"`
}

// ScannedPeer is a device sighted during a discovery session. Ephemeral,
// rebuilt every session.
type ScannedPeer struct {
	DeviceID       string
	Advertised     *Advertisement
	SignalStrength int
	LastSeenAt     time.Time
}

type WarningSeverity int

const (
	SeverityLow WarningSeverity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s WarningSeverity) String() string {
	return map[WarningSeverity]string{
		SeverityLow:      "LOW",
		SeverityMedium:   "MEDIUM",
		SeverityHigh:     "HIGH",
		SeverityCritical: "CRITICAL",
	}[s]
}

// SecurityWarning is an advisory finding, session-scoped and never persisted.
type SecurityWarning struct {
	Type     string
	Severity WarningSeverity
	Message  string
	Details  map[string]string
}

const (
	TxSent     TxType = "SENT"
	TxReceived TxType = "RECEIVED"
)

type TxType string

// HistoryRecord is one cached on-chain transaction for the active address.
type HistoryRecord struct {
	TxHash    string
	ChainID   string
	Address   string
	Amount    uint64
	Type      TxType
	External  bool // not originated by this wallet instance
	Confirmed bool
	CreatedAt time.Time
}

type PendingTxEventType int

const (
	PendingTxsAdded PendingTxEventType = iota
	PendingTxsUpdated
	PendingTxsRemoved
)

func (e PendingTxEventType) String() string {
	return map[PendingTxEventType]string{
		PendingTxsAdded:   "PENDING_TXS_ADDED",
		PendingTxsUpdated: "PENDING_TXS_UPDATED",
		PendingTxsRemoved: "PENDING_TXS_REMOVED",
	}[e]
}

type PendingTxEvent struct {
	Type PendingTxEventType
	Txs  []PendingTransaction
}

type PeerEventType int

const (
	PeerDiscovered PeerEventType = iota
	PeerUpdated
	PeerLost
)

func (e PeerEventType) String() string {
	return map[PeerEventType]string{
		PeerDiscovered: "PEER_DISCOVERED",
		PeerUpdated:    "PEER_UPDATED",
		PeerLost:       "PEER_LOST",
	}[e]
}

type PeerEvent struct {
	Type PeerEventType
	Peer ScannedPeer
}

type HistoryEventType int

const (
	HistoryAdded HistoryEventType = iota
	HistoryConfirmed
)

type HistoryEvent struct {
	Type    HistoryEventType
	Records []HistoryRecord
}
