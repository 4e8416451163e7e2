package keyring

import (
	"testing"

	"github.com/beaconwallet/go-sdk/types"
	"github.com/stretchr/testify/require"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

var testChains = []types.Chain{
	{ID: "chain_1", Kind: types.ChainKindEVM, DerivationIndex: 0},
	{ID: "chain_2", Kind: types.ChainKindEVM, DerivationIndex: 1},
	{ID: "bcn", Kind: types.ChainKindBech32, AddressPrefix: "bcn", DerivationIndex: 2},
}

func TestImportFromMnemonic(t *testing.T) {
	tests := []struct {
		name    string
		phrase  string
		wantErr bool
	}{
		{name: "valid phrase", phrase: testMnemonic},
		{name: "valid phrase with extra spaces", phrase: "  " + testMnemonic + " "},
		{name: "valid phrase uppercased", phrase: "ABANDON abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"},
		{name: "bad checksum", phrase: "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon", wantErr: true},
		{name: "not on word list", phrase: "zzzz abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about", wantErr: true},
		{name: "empty", phrase: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cred, err := ImportFromMnemonic(tt.phrase)
			if tt.wantErr {
				var formatErr InvalidCredentialFormatError
				require.ErrorAs(t, err, &formatErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, CredentialMnemonic, cred.Kind)
			require.Equal(t, testMnemonic, cred.Mnemonic)
		})
	}
}

func TestImportFromPrivateKey(t *testing.T) {
	validKey := "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{name: "valid key", key: validKey},
		{name: "valid key with prefix", key: "0x" + validKey},
		{name: "too short", key: "abcdef", wantErr: true},
		{name: "bad charset", key: "zz0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318", wantErr: true},
		{name: "empty", key: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cred, err := ImportFromPrivateKey(tt.key)
			if tt.wantErr {
				var formatErr InvalidCredentialFormatError
				require.ErrorAs(t, err, &formatErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, CredentialPrivateKey, cred.Kind)
			require.Len(t, cred.PrivKey, 32)
		})
	}
}

func TestDeriveAddressDeterministic(t *testing.T) {
	k := New(testChains)
	cred, err := ImportFromMnemonic(testMnemonic)
	require.NoError(t, err)

	first, err := k.DeriveAddresses(cred)
	require.NoError(t, err)
	require.Len(t, first, len(testChains))

	second, err := k.DeriveAddresses(cred)
	require.NoError(t, err)
	require.Equal(t, first, second)

	// distinct chains must not collide
	require.NotEqual(t, first["chain_1"], first["chain_2"])
	require.NotEqual(t, first["chain_1"], first["bcn"])
}

func TestDeriveAddressChainEncodings(t *testing.T) {
	k := New(testChains)
	cred, err := ImportFromMnemonic(testMnemonic)
	require.NoError(t, err)

	evmAddr, err := k.DeriveAddress(cred, testChains[0])
	require.NoError(t, err)
	require.Regexp(t, "^0x[0-9a-fA-F]{40}$", evmAddr)

	bechAddr, err := k.DeriveAddress(cred, testChains[2])
	require.NoError(t, err)
	require.Regexp(t, "^bcn1", bechAddr)
}

func TestSingleKeyImportUsesSameKeyForAllChains(t *testing.T) {
	k := New(testChains[:2])
	cred, err := ImportFromPrivateKey(
		"4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318",
	)
	require.NoError(t, err)

	addrs, err := k.DeriveAddresses(cred)
	require.NoError(t, err)
	require.Equal(t, addrs["chain_1"], addrs["chain_2"])
}

func TestCredentialEncodeRoundTrip(t *testing.T) {
	mnemonicCred, err := ImportFromMnemonic(testMnemonic)
	require.NoError(t, err)
	decoded, err := DecodeCredential(mnemonicCred.Encode())
	require.NoError(t, err)
	require.Equal(t, mnemonicCred, decoded)

	keyCred, err := ImportFromPrivateKey(
		"4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318",
	)
	require.NoError(t, err)
	decoded, err = DecodeCredential(keyCred.Encode())
	require.NoError(t, err)
	require.Equal(t, keyCred, decoded)
}

func TestValidateConsistency(t *testing.T) {
	k := New(testChains)
	cred, err := ImportFromMnemonic(testMnemonic)
	require.NoError(t, err)

	addrs, err := k.DeriveAddresses(cred)
	require.NoError(t, err)

	t.Run("same wallet is consistent", func(t *testing.T) {
		res, err := k.ValidateConsistency(cred, types.WalletRecord{
			Ciphertext: []byte("x"), Addresses: addrs,
		})
		require.NoError(t, err)
		require.True(t, res.IsValid)
	})

	t.Run("different wallet conflicts", func(t *testing.T) {
		other, err := ImportFromPrivateKey(
			"4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318",
		)
		require.NoError(t, err)
		res, err := k.ValidateConsistency(other, types.WalletRecord{
			Ciphertext: []byte("x"), Addresses: addrs,
		})
		require.NoError(t, err)
		require.False(t, res.IsValid)
		require.NotEmpty(t, res.ConflictDetails)
		require.NotEmpty(t, res.ChainID)
	})

	t.Run("no stored wallet is trivially consistent", func(t *testing.T) {
		res, err := k.ValidateConsistency(cred, types.WalletRecord{})
		require.NoError(t, err)
		require.True(t, res.IsValid)
	})
}

func TestGenerateMnemonic(t *testing.T) {
	phrase, err := GenerateMnemonic()
	require.NoError(t, err)

	cred, err := ImportFromMnemonic(phrase)
	require.NoError(t, err)
	require.Equal(t, phrase, cred.Mnemonic)

	other, err := GenerateMnemonic()
	require.NoError(t, err)
	require.NotEqual(t, phrase, other)
}
