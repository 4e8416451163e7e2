package keyring

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/beaconwallet/go-sdk/types"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	bip39 "github.com/tyler-smith/go-bip39"
)

// BIP44 path prefix used for hierarchical wallets: m/44'/60'/0'/0/index.
const (
	purposeIndex = 44
	coinIndex    = 60
	accountIndex = 0
	changeIndex  = 0
)

// InvalidCredentialFormatError is returned when a mnemonic fails its
// checksum or a raw private key has the wrong length or charset.
type InvalidCredentialFormatError struct {
	Kind   string // "mnemonic" or "private key"
	Reason string
}

func (e InvalidCredentialFormatError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Kind, e.Reason)
}

type CredentialKind int

const (
	CredentialMnemonic CredentialKind = iota
	CredentialPrivateKey
)

// Credential is the canonical master secret derived from an import. It is
// what the vault encrypts at rest: the mnemonic phrase for hierarchical
// wallets, the raw key for single-key imports.
type Credential struct {
	Kind     CredentialKind
	Mnemonic string
	PrivKey  []byte
}

const (
	mnemonicTag = "m:"
	privkeyTag  = "k:"
)

// Encode serializes the credential for vault storage.
func (c Credential) Encode() []byte {
	if c.Kind == CredentialMnemonic {
		return []byte(mnemonicTag + c.Mnemonic)
	}
	return []byte(privkeyTag + hex.EncodeToString(c.PrivKey))
}

// DecodeCredential is the inverse of Credential.Encode.
func DecodeCredential(b []byte) (Credential, error) {
	s := string(b)
	switch {
	case strings.HasPrefix(s, mnemonicTag):
		return ImportFromMnemonic(strings.TrimPrefix(s, mnemonicTag))
	case strings.HasPrefix(s, privkeyTag):
		return ImportFromPrivateKey(strings.TrimPrefix(s, privkeyTag))
	default:
		return Credential{}, fmt.Errorf("unknown credential encoding")
	}
}

// GenerateMnemonic returns a fresh 12-word BIP39 phrase.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

// ImportFromMnemonic validates the phrase checksum and returns the canonical
// credential.
func ImportFromMnemonic(phrase string) (Credential, error) {
	normalized := strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
	if normalized == "" {
		return Credential{}, InvalidCredentialFormatError{Kind: "mnemonic", Reason: "empty phrase"}
	}
	if !bip39.IsMnemonicValid(normalized) {
		return Credential{}, InvalidCredentialFormatError{
			Kind: "mnemonic", Reason: "checksum or word list mismatch",
		}
	}
	return Credential{Kind: CredentialMnemonic, Mnemonic: normalized}, nil
}

// ImportFromPrivateKey validates a 32-byte hex-encoded key, with or without
// a 0x prefix.
func ImportFromPrivateKey(key string) (Credential, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(key), "0x")
	if len(trimmed) != 64 {
		return Credential{}, InvalidCredentialFormatError{
			Kind: "private key", Reason: fmt.Sprintf("expected 64 hex characters, got %d", len(trimmed)),
		}
	}
	buf, err := hex.DecodeString(trimmed)
	if err != nil {
		return Credential{}, InvalidCredentialFormatError{
			Kind: "private key", Reason: "not valid hex",
		}
	}
	if _, err := ethcrypto.ToECDSA(buf); err != nil {
		return Credential{}, InvalidCredentialFormatError{
			Kind: "private key", Reason: err.Error(),
		}
	}
	return Credential{Kind: CredentialPrivateKey, PrivKey: buf}, nil
}

// ConsistencyResult reports whether a candidate import matches the wallet
// currently in the store.
type ConsistencyResult struct {
	IsValid          bool
	ChainID          string
	StoredAddress    string
	CandidateAddress string
	ConflictDetails  string
}

// Keyring derives per-chain signing keys and addresses from a credential.
// It holds no secret state of its own.
type Keyring struct {
	chains []types.Chain
}

func New(chains []types.Chain) *Keyring {
	return &Keyring{chains: chains}
}

func (k *Keyring) Chains() []types.Chain {
	return k.chains
}

// SigningKey returns the chain's private key. Hierarchical wallets derive it
// under the BIP44 path with the chain's address index; single-key imports use
// the raw key for every chain.
func (k *Keyring) SigningKey(cred Credential, chain types.Chain) (*ecdsa.PrivateKey, error) {
	if cred.Kind == CredentialPrivateKey {
		return ethcrypto.ToECDSA(cred.PrivKey)
	}

	seed := bip39.NewSeed(cred.Mnemonic, "")
	defer func() {
		for i := range seed {
			seed[i] = 0
		}
	}()

	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("failed to build master key: %w", err)
	}
	defer master.Zero()

	path := []uint32{
		hdkeychain.HardenedKeyStart + purposeIndex,
		hdkeychain.HardenedKeyStart + coinIndex,
		hdkeychain.HardenedKeyStart + accountIndex,
		changeIndex,
		chain.DerivationIndex,
	}
	node := master
	for _, childIndex := range path {
		next, err := node.Derive(childIndex)
		if err != nil {
			return nil, fmt.Errorf("failed to derive child %d: %w", childIndex, err)
		}
		if node != master {
			node.Zero()
		}
		node = next
	}
	defer node.Zero()

	privKey, err := node.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("failed to extract private key: %w", err)
	}
	defer privKey.Zero()
	// Convert via go-ethereum so the key carries the curve instance its
	// pure-Go (CGO_ENABLED=0) Sign implementation expects; the key material
	// is byte-identical to privKey.ToECDSA().
	return ethcrypto.ToECDSA(privKey.Serialize())
}

// DeriveAddress is deterministic: the same credential always yields the same
// address for a given chain.
func (k *Keyring) DeriveAddress(cred Credential, chain types.Chain) (string, error) {
	key, err := k.SigningKey(cred, chain)
	if err != nil {
		return "", err
	}
	defer zeroKey(key)
	return EncodeAddress(&key.PublicKey, chain)
}

// DeriveAddresses derives the address for every configured chain.
func (k *Keyring) DeriveAddresses(cred Credential) (map[string]string, error) {
	addresses := make(map[string]string, len(k.chains))
	for _, chain := range k.chains {
		addr, err := k.DeriveAddress(cred, chain)
		if err != nil {
			return nil, fmt.Errorf("failed to derive address for %s: %w", chain.ID, err)
		}
		addresses[chain.ID] = addr
	}
	return addresses, nil
}

// ValidateConsistency compares a candidate import against the stored wallet's
// derived addresses. A mismatch means the import would replace a different
// wallet and requires an explicit clear first.
func (k *Keyring) ValidateConsistency(
	cred Credential, stored types.WalletRecord,
) (ConsistencyResult, error) {
	if stored.IsZero() || len(stored.Addresses) == 0 {
		return ConsistencyResult{IsValid: true}, nil
	}
	for _, chain := range k.chains {
		storedAddr, ok := stored.Addresses[chain.ID]
		if !ok {
			continue
		}
		candidateAddr, err := k.DeriveAddress(cred, chain)
		if err != nil {
			return ConsistencyResult{}, err
		}
		if !strings.EqualFold(storedAddr, candidateAddr) {
			return ConsistencyResult{
				IsValid:          false,
				ChainID:          chain.ID,
				StoredAddress:    storedAddr,
				CandidateAddress: candidateAddr,
				ConflictDetails: fmt.Sprintf(
					"candidate credential derives %s on %s, stored wallet has %s",
					candidateAddr, chain.ID, storedAddr,
				),
			}, nil
		}
	}
	return ConsistencyResult{IsValid: true}, nil
}

// EncodeAddress renders a public key as the chain's address format.
func EncodeAddress(pub *ecdsa.PublicKey, chain types.Chain) (string, error) {
	addrBytes := ethcrypto.PubkeyToAddress(*pub)
	switch chain.Kind {
	case types.ChainKindEVM:
		return addrBytes.Hex(), nil
	case types.ChainKindBech32:
		conv, err := bech32.ConvertBits(addrBytes.Bytes(), 8, 5, true)
		if err != nil {
			return "", err
		}
		return bech32.Encode(chain.AddressPrefix, conv)
	default:
		return "", fmt.Errorf("unsupported chain kind %s", chain.Kind)
	}
}

func zeroKey(key *ecdsa.PrivateKey) {
	if key != nil && key.D != nil {
		key.D.SetInt64(0)
	}
}
