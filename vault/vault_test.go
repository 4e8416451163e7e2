package vault

import (
	"context"
	"errors"
	"testing"

	"github.com/beaconwallet/go-sdk/types"
	"github.com/stretchr/testify/require"
)

type fakeWalletStore struct {
	record *types.WalletRecord
	staged *types.WalletRecord

	failPromote bool
}

func (s *fakeWalletStore) AddWallet(_ context.Context, record types.WalletRecord) error {
	s.record = &record
	return nil
}

func (s *fakeWalletStore) GetWallet(_ context.Context) (*types.WalletRecord, error) {
	return s.record, nil
}

func (s *fakeWalletStore) UpdateWallet(_ context.Context, record types.WalletRecord) error {
	s.record = &record
	return nil
}

func (s *fakeWalletStore) StageWallet(_ context.Context, record types.WalletRecord) error {
	s.staged = &record
	return nil
}

func (s *fakeWalletStore) PromoteStaged(_ context.Context) error {
	if s.failPromote {
		return errors.New("disk full")
	}
	s.record = s.staged
	s.staged = nil
	return nil
}

func (s *fakeWalletStore) DiscardStaged(_ context.Context) error {
	s.staged = nil
	return nil
}

func (s *fakeWalletStore) DeleteWallet(_ context.Context) error {
	s.record = nil
	s.staged = nil
	return nil
}

func (s *fakeWalletStore) Close() {}

func TestCreateAndUnlock(t *testing.T) {
	ctx := context.Background()
	store := &fakeWalletStore{}
	v := NewVault(store)

	secret := []byte("master secret material, 32 byte")
	record, err := v.Create(ctx, "Str0ngPass!", secret, false)
	require.NoError(t, err)
	require.False(t, record.IsZero())
	require.NotContains(t, string(record.Ciphertext), "master secret")

	unlocked, err := v.Unlock(ctx, "Str0ngPass!")
	require.NoError(t, err)
	require.Equal(t, secret, unlocked.Bytes())
	unlocked.Zero()
	require.Nil(t, unlocked.Bytes())
}

func TestUnlockWrongPassword(t *testing.T) {
	ctx := context.Background()
	v := NewVault(&fakeWalletStore{})

	_, err := v.Create(ctx, "Str0ngPass!", []byte("seed"), false)
	require.NoError(t, err)

	unlocked, err := v.Unlock(ctx, "wrongPass1")
	require.Nil(t, unlocked)
	var authErr AuthenticationError
	require.ErrorAs(t, err, &authErr)
}

func TestUnlockNoWallet(t *testing.T) {
	v := NewVault(&fakeWalletStore{})
	_, err := v.Unlock(context.Background(), "Str0ngPass!")
	require.ErrorIs(t, err, ErrNoVault)
}

func TestUnlockCorruptedCiphertext(t *testing.T) {
	ctx := context.Background()
	store := &fakeWalletStore{}
	v := NewVault(store)

	_, err := v.Create(ctx, "Str0ngPass!", []byte("seed"), false)
	require.NoError(t, err)

	store.record.Ciphertext[len(store.record.Ciphertext)-1] ^= 0xff

	_, err = v.Unlock(ctx, "Str0ngPass!")
	var corruptErr CorruptedVaultError
	require.ErrorAs(t, err, &corruptErr)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	store := &fakeWalletStore{}
	v := NewVault(store)

	secret := []byte("seed phrase bytes")
	_, err := v.Create(ctx, "Str0ngPass!", secret, true)
	require.NoError(t, err)

	require.NoError(t, v.ChangePassword(ctx, "Str0ngPass!", "N3wPassword"))

	_, err = v.Unlock(ctx, "Str0ngPass!")
	var authErr AuthenticationError
	require.ErrorAs(t, err, &authErr)

	unlocked, err := v.Unlock(ctx, "N3wPassword")
	require.NoError(t, err)
	defer unlocked.Zero()
	require.Equal(t, secret, unlocked.Bytes())
}

func TestChangePasswordKeepsPriorRecordOnFailure(t *testing.T) {
	ctx := context.Background()
	store := &fakeWalletStore{failPromote: true}
	v := NewVault(store)

	secret := []byte("seed phrase bytes")
	_, err := v.Create(ctx, "Str0ngPass!", secret, true)
	require.NoError(t, err)

	require.Error(t, v.ChangePassword(ctx, "Str0ngPass!", "N3wPassword"))
	require.Nil(t, store.staged)

	unlocked, err := v.Unlock(ctx, "Str0ngPass!")
	require.NoError(t, err)
	defer unlocked.Zero()
	require.Equal(t, secret, unlocked.Bytes())
}

func TestChangePasswordWrongOldPassword(t *testing.T) {
	ctx := context.Background()
	v := NewVault(&fakeWalletStore{})

	_, err := v.Create(ctx, "Str0ngPass!", []byte("seed"), true)
	require.NoError(t, err)

	err = v.ChangePassword(ctx, "wrongPass1", "N3wPassword")
	var authErr AuthenticationError
	require.ErrorAs(t, err, &authErr)
}

func TestDestroy(t *testing.T) {
	ctx := context.Background()
	store := &fakeWalletStore{}
	v := NewVault(store)

	_, err := v.Create(ctx, "Str0ngPass!", []byte("seed"), false)
	require.NoError(t, err)

	require.NoError(t, v.Destroy(ctx))
	_, err = v.Unlock(ctx, "Str0ngPass!")
	require.ErrorIs(t, err, ErrNoVault)
}

func TestCheckPasswordStrength(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantWeak bool
	}{
		{name: "strong password", password: "Str0ngPass!", wantWeak: false},
		{name: "too short", password: "aB3", wantWeak: true},
		{name: "no digits", password: "onlyletters", wantWeak: true},
		{name: "no letters", password: "1234567890", wantWeak: true},
		{name: "letters and digits", password: "abcdefg1", wantWeak: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckPasswordStrength(tt.password)
			if tt.wantWeak {
				var weakErr WeakPasswordError
				require.ErrorAs(t, err, &weakErr)
				return
			}
			require.NoError(t, err)
		})
	}
}
