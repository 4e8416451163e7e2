package payload

import (
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/beaconwallet/go-sdk/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	// SignatureVersion is bumped whenever the canonical message layout changes.
	SignatureVersion = 1

	// PaymentType tags signed payment payloads on the wire.
	PaymentType = "payment"

	messagePrefix = "beaconpay/v1"
)

// DefaultMaxSkew is the default acceptance window around a payload timestamp.
const DefaultMaxSkew = 5 * time.Minute

// MalformedPayloadError is returned when a payload misses structural fields
// or cannot be decoded at all.
type MalformedPayloadError struct {
	Reason string
}

func (e MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed payment payload: %s", e.Reason)
}

// SignatureVerificationError is returned when a signature is recoverable but
// does not match the declared signer or the recomputed message hash.
type SignatureVerificationError struct {
	Reason string
}

func (e SignatureVerificationError) Error() string {
	return fmt.Sprintf("signature verification failed: %s", e.Reason)
}

// ExpiredPayloadError is returned in strict mode when the payload timestamp
// falls outside the allowed skew window.
type ExpiredPayloadError struct {
	Age    time.Duration
	MaxAge time.Duration
}

func (e ExpiredPayloadError) Error() string {
	return fmt.Sprintf("payload timestamp outside window: age %s exceeds %s", e.Age, e.MaxAge)
}

// StaleSignatureWarning is attached to lenient verifications that would have
// failed the strict timestamp check.
type StaleSignatureWarning struct {
	Age    time.Duration
	MaxAge time.Duration
}

func (w StaleSignatureWarning) String() string {
	return fmt.Sprintf("stale signature: age %s exceeds %s", w.Age, w.MaxAge)
}

// Sign builds the canonical message for draft, hashes it, signs with key and
// returns the payload with signer address and signature metadata attached.
// A zero draft timestamp is filled with the current time.
func Sign(key *ecdsa.PrivateKey, draft types.SignedPaymentPayload) (types.SignedPaymentPayload, error) {
	if key == nil {
		return types.SignedPaymentPayload{}, fmt.Errorf("missing signing key")
	}
	if draft.To == "" {
		return types.SignedPaymentPayload{}, MalformedPayloadError{Reason: "missing recipient"}
	}
	if draft.ChainID == "" {
		return types.SignedPaymentPayload{}, MalformedPayloadError{Reason: "missing chain id"}
	}
	if draft.Timestamp == 0 {
		draft.Timestamp = time.Now().Unix()
	}
	draft.Type = PaymentType

	hash := MessageHash(draft)
	sig, err := ethcrypto.Sign(hash, key)
	if err != nil {
		return types.SignedPaymentPayload{}, fmt.Errorf("failed to sign payload: %w", err)
	}

	draft.Signature = &types.PaymentSignature{
		Version:     SignatureVersion,
		Signer:      ethcrypto.PubkeyToAddress(key.PublicKey).Hex(),
		Signature:   hex.EncodeToString(sig),
		Timestamp:   draft.Timestamp,
		ChainID:     draft.ChainID,
		MessageHash: hex.EncodeToString(hash),
	}
	return draft, nil
}

// MessageHash computes the keccak256 of the canonical
// (recipient, chainId, timestamp[, amount][, reference]) tuple.
func MessageHash(p types.SignedPaymentPayload) []byte {
	parts := []string{
		messagePrefix,
		p.To,
		p.ChainID,
		strconv.FormatInt(p.Timestamp, 10),
	}
	if p.Amount > 0 {
		parts = append(parts, strconv.FormatUint(p.Amount, 10))
	}
	if p.PaymentReference != "" {
		parts = append(parts, p.PaymentReference)
	}
	return ethcrypto.Keccak256([]byte(strings.Join(parts, "|")))
}

// Encode renders the payload in its wire format.
func Encode(p types.SignedPaymentPayload) ([]byte, error) {
	return json.Marshal(p)
}

// EncodeQR renders the payload as a QR code PNG of the given pixel size.
func EncodeQR(p types.SignedPaymentPayload, size int) ([]byte, error) {
	raw, err := Encode(p)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(string(raw), qrcode.Medium, size)
}
