package beaconsdk

import (
	"errors"
	"fmt"

	"github.com/beaconwallet/go-sdk/explorer"
	"github.com/beaconwallet/go-sdk/keyring"
	"github.com/beaconwallet/go-sdk/payload"
	"github.com/beaconwallet/go-sdk/proximity"
	"github.com/beaconwallet/go-sdk/queue"
	"github.com/beaconwallet/go-sdk/vault"
)

var (
	// ErrNoWallet is returned when an operation requires a wallet and none
	// has been created or imported yet.
	ErrNoWallet = errors.New("no wallet initialized")
	// ErrWalletLocked is returned when signing material is requested while
	// the vault is locked.
	ErrWalletLocked = errors.New("wallet is locked")
	// ErrAlreadyInitialized is returned by Create/Import when a wallet record
	// already exists and has not been explicitly cleared.
	ErrAlreadyInitialized = errors.New("wallet already initialized")
)

// Error types owned by the component packages, re-exported so callers can
// match them without importing every subpackage.
type (
	WeakPasswordError            = vault.WeakPasswordError
	AuthenticationError          = vault.AuthenticationError
	CorruptedVaultError          = vault.CorruptedVaultError
	InvalidCredentialFormatError = keyring.InvalidCredentialFormatError
	MalformedPayloadError        = payload.MalformedPayloadError
	SignatureVerificationError   = payload.SignatureVerificationError
	ExpiredPayloadError          = payload.ExpiredPayloadError
	RadioUnavailableError        = proximity.RadioUnavailableError
	PermissionDeniedError        = proximity.PermissionDeniedError
	TransientNetworkError        = explorer.TransientNetworkError
	InvalidStateTransitionError  = queue.InvalidStateTransitionError
)

// WalletConflictError is returned when an import would silently overwrite a
// different stored wallet. The caller must Destroy the wallet explicitly
// before importing another one.
type WalletConflictError struct {
	StoredAddress    string
	CandidateAddress string
	ChainID          string
}

func (e WalletConflictError) Error() string {
	return fmt.Sprintf(
		"wallet conflict on %s: stored address %s does not match candidate %s",
		e.ChainID, e.StoredAddress, e.CandidateAddress,
	)
}

// IsTransient reports whether err should be auto-retried through the queue.
func IsTransient(err error) bool {
	return explorer.IsTransient(err)
}
