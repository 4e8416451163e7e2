package vault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"
	"unicode"

	"github.com/beaconwallet/go-sdk/types"
	"golang.org/x/crypto/argon2"
)

// argon2id parameters for deriving the vault key from the user password.
// 64MB keeps the KDF memory-hard while staying inside mobile per-app limits.
const (
	argonTime      = 3
	argonMemory    = 64 * 1024
	argonThreads   = 4
	argonKeyLen    = 32
	saltLen        = 32
	minPasswordLen = 8
)

var ErrNoVault = errors.New("no wallet record in store")

// WeakPasswordError is returned when a password fails the strength policy.
type WeakPasswordError struct {
	Reason string
}

func (e WeakPasswordError) Error() string {
	return fmt.Sprintf("password rejected: %s", e.Reason)
}

// AuthenticationError is returned on a wrong password. Recoverable, the
// caller should re-prompt.
type AuthenticationError struct{}

func (e AuthenticationError) Error() string {
	return "authentication failed: wrong password"
}

// CorruptedVaultError is fatal to the vault: the stored ciphertext cannot be
// decoded even though the password checked out. The only recovery is
// re-importing the wallet.
type CorruptedVaultError struct {
	Cause error
}

func (e CorruptedVaultError) Error() string {
	return fmt.Sprintf("vault is corrupted: %s", e.Cause)
}

func (e CorruptedVaultError) Unwrap() error { return e.Cause }

// MasterSecret wraps decrypted secret material. Callers must Zero it when the
// unlock scope ends; nothing in this package retains a reference to it.
type MasterSecret struct {
	buf []byte
}

func NewMasterSecret(b []byte) *MasterSecret {
	buf := make([]byte, len(b))
	copy(buf, b)
	return &MasterSecret{buf: buf}
}

func (s *MasterSecret) Bytes() []byte {
	return s.buf
}

// Zero wipes the secret bytes in place. The secret is unusable afterwards.
func (s *MasterSecret) Zero() {
	for i := range s.buf {
		s.buf[i] = 0
	}
	s.buf = nil
}

// Vault owns the encrypted credential lifecycle: creation, unlock,
// rekeying and destruction of the wallet's master secret.
type Vault struct {
	store types.WalletStore
}

func NewVault(store types.WalletStore) *Vault {
	return &Vault{store: store}
}

// Create encrypts secret under password and persists a fresh wallet record.
// The caller remains responsible for zeroing secret.
func (v *Vault) Create(
	ctx context.Context, password string, secret []byte, imported bool,
) (types.WalletRecord, error) {
	if err := CheckPasswordStrength(password); err != nil {
		return types.WalletRecord{}, err
	}
	if len(secret) == 0 {
		return types.WalletRecord{}, fmt.Errorf("missing secret material")
	}

	record, err := seal(ctx, password, secret)
	if err != nil {
		return types.WalletRecord{}, err
	}
	record.Imported = imported
	record.BackupConfirmed = imported
	record.CreatedAt = time.Now()

	if err := v.store.AddWallet(ctx, record); err != nil {
		return types.WalletRecord{}, fmt.Errorf("failed to persist wallet record: %w", err)
	}
	return record, nil
}

// Unlock re-derives the key, verifies the password tag and decrypts the
// master secret. The returned secret lives only as long as the caller's
// unlock scope; callers must defer secret.Zero().
func (v *Vault) Unlock(ctx context.Context, password string) (*MasterSecret, error) {
	record, err := v.store.GetWallet(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet record: %w", err)
	}
	if record == nil || record.IsZero() {
		return nil, ErrNoVault
	}
	return open(ctx, password, *record)
}

// ChangePassword re-encrypts the master secret under a new password. The
// rekey is staged and swapped: on any failure the prior ciphertext remains
// the valid one.
func (v *Vault) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	if err := CheckPasswordStrength(newPassword); err != nil {
		return err
	}

	record, err := v.store.GetWallet(ctx)
	if err != nil {
		return fmt.Errorf("failed to load wallet record: %w", err)
	}
	if record == nil || record.IsZero() {
		return ErrNoVault
	}

	secret, err := open(ctx, oldPassword, *record)
	if err != nil {
		return err
	}
	defer secret.Zero()

	staged, err := seal(ctx, newPassword, secret.Bytes())
	if err != nil {
		return err
	}
	staged.Addresses = record.Addresses
	staged.BackupConfirmed = record.BackupConfirmed
	staged.Imported = record.Imported
	staged.CreatedAt = record.CreatedAt

	if err := v.store.StageWallet(ctx, staged); err != nil {
		return fmt.Errorf("failed to stage rekeyed record: %w", err)
	}
	if err := v.store.PromoteStaged(ctx); err != nil {
		// nolint:errcheck
		v.store.DiscardStaged(ctx)
		return fmt.Errorf("failed to promote rekeyed record: %w", err)
	}
	return nil
}

// Destroy irreversibly erases the vault record. Derived keys become invalid;
// the facade cancels queued transactions tied to the wallet.
func (v *Vault) Destroy(ctx context.Context) error {
	if err := v.store.DeleteWallet(ctx); err != nil {
		return fmt.Errorf("failed to erase wallet record: %w", err)
	}
	return nil
}

// CheckPasswordStrength enforces the password policy: minimum length, at
// least one letter and one digit.
func CheckPasswordStrength(password string) error {
	if len(password) < minPasswordLen {
		return WeakPasswordError{
			Reason: fmt.Sprintf("must be at least %d characters", minPasswordLen),
		}
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return WeakPasswordError{Reason: "must contain at least one letter and one digit"}
	}
	return nil
}

func seal(ctx context.Context, password string, secret []byte) (types.WalletRecord, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return types.WalletRecord{}, fmt.Errorf("failed to generate salt: %w", err)
	}

	key, err := deriveKey(ctx, password, salt)
	if err != nil {
		return types.WalletRecord{}, err
	}
	defer wipe(key)

	gcm, err := newGCM(key)
	if err != nil {
		return types.WalletRecord{}, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return types.WalletRecord{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return types.WalletRecord{
		Ciphertext: gcm.Seal(nonce, nonce, secret, nil),
		Salt:       salt,
		VerifyTag:  verifyTag(key, salt),
	}, nil
}

func open(ctx context.Context, password string, record types.WalletRecord) (*MasterSecret, error) {
	if len(record.Salt) != saltLen {
		return nil, CorruptedVaultError{Cause: fmt.Errorf("bad salt length %d", len(record.Salt))}
	}

	key, err := deriveKey(ctx, password, record.Salt)
	if err != nil {
		return nil, err
	}
	defer wipe(key)

	// The tag check runs before any decryption attempt so a wrong password is
	// never reported as corruption.
	if subtle.ConstantTimeCompare(verifyTag(key, record.Salt), record.VerifyTag) != 1 {
		return nil, AuthenticationError{}
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(record.Ciphertext) <= gcm.NonceSize() {
		return nil, CorruptedVaultError{Cause: fmt.Errorf("ciphertext too short")}
	}
	nonce, data := record.Ciphertext[:gcm.NonceSize()], record.Ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, data, nil)
	if err != nil {
		return nil, CorruptedVaultError{Cause: err}
	}

	secret := NewMasterSecret(plaintext)
	wipe(plaintext)
	return secret, nil
}

func deriveKey(ctx context.Context, password string, salt []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	if err := ctx.Err(); err != nil {
		wipe(key)
		return nil, err
	}
	return key, nil
}

// verifyTag is derived from the vault key, not the password, so it leaks
// nothing an attacker could brute-force cheaper than the KDF itself.
func verifyTag(key, salt []byte) []byte {
	h := sha256.New()
	h.Write([]byte("beacon-vault-verify"))
	h.Write(key)
	h.Write(salt)
	return h.Sum(nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	blockCipher, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(blockCipher)
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
