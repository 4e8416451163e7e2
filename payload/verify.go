package payload

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/beaconwallet/go-sdk/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// PayloadKind tags the classification of scanned bytes so callers dispatch
// exhaustively instead of probing field shapes.
type PayloadKind int

const (
	KindSigned PayloadKind = iota
	KindUnsignedRequest
)

// Classified is the tagged result of Classify.
type Classified struct {
	Kind    PayloadKind
	Signed  *types.SignedPaymentPayload
	Request *types.PaymentRequest
}

// Classify decodes scanned bytes into exactly one accepted shape. Unsigned
// but well-formed payment requests are a distinct category the caller must
// surface as unverified, never silently treated as signed.
func Classify(raw []byte) (Classified, error) {
	var signed types.SignedPaymentPayload
	if err := json.Unmarshal(raw, &signed); err == nil && signed.Signature != nil {
		if err := checkStructure(signed); err != nil {
			return Classified{}, err
		}
		return Classified{Kind: KindSigned, Signed: &signed}, nil
	}

	var request types.PaymentRequest
	if err := json.Unmarshal(raw, &request); err != nil {
		return Classified{}, MalformedPayloadError{Reason: "not valid JSON"}
	}
	if request.To == "" || request.ChainID == "" {
		return Classified{}, MalformedPayloadError{Reason: "missing recipient or chain id"}
	}
	return Classified{Kind: KindUnsignedRequest, Request: &request}, nil
}

// Result is the outcome of a verification.
type Result struct {
	IsValid   bool
	Signer    string
	ChainID   string
	Timestamp time.Time
	Warning   *StaleSignatureWarning
	Err       error
}

// Verifier checks signed payment payloads. The skew window and the lenient
// policy are explicit configuration; lenient acceptance is bounded, after
// MaxLenientAccepts stale payloads the verifier degrades to strict.
type Verifier struct {
	maxSkew           time.Duration
	lenient           bool
	maxLenientAccepts int
	now               func() time.Time

	mu              sync.Mutex
	lenientAccepted int
}

type VerifierOption func(*Verifier)

// WithMaxSkew overrides the timestamp acceptance window.
func WithMaxSkew(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		v.maxSkew = d
	}
}

// WithLenient accepts stale timestamps with a warning instead of rejecting,
// for at most maxAccepts payloads per verifier instance.
func WithLenient(maxAccepts int) VerifierOption {
	return func(v *Verifier) {
		v.lenient = true
		v.maxLenientAccepts = maxAccepts
	}
}

// WithClock injects the time source, used by tests.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		v.now = now
	}
}

func NewVerifier(opts ...VerifierOption) *Verifier {
	v := &Verifier{
		maxSkew:           DefaultMaxSkew,
		maxLenientAccepts: 10,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify recomputes the canonical hash, recovers the signer from the
// signature and checks it against the declared signer address and the skew
// window. Cryptographic failures are never downgraded: a bad signature stays
// a SignatureVerificationError regardless of mode.
func (v *Verifier) Verify(p types.SignedPaymentPayload) Result {
	if err := checkStructure(p); err != nil {
		return Result{Err: err}
	}
	sig := p.Signature

	if sig.ChainID != p.ChainID {
		return Result{Err: SignatureVerificationError{
			Reason: "signature chain id does not match payload chain id",
		}}
	}

	hash := MessageHash(p)
	declaredHash, err := hex.DecodeString(strings.TrimPrefix(sig.MessageHash, "0x"))
	if err != nil {
		return Result{Err: MalformedPayloadError{Reason: "message hash is not hex"}}
	}
	if !bytes.Equal(hash, declaredHash) {
		return Result{Err: SignatureVerificationError{
			Reason: "recomputed message hash does not match declared hash",
		}}
	}

	sigBytes, err := hex.DecodeString(strings.TrimPrefix(sig.Signature, "0x"))
	if err != nil {
		return Result{Err: MalformedPayloadError{Reason: "signature is not hex"}}
	}
	if len(sigBytes) != 65 {
		return Result{Err: MalformedPayloadError{Reason: "signature must be 65 bytes"}}
	}

	pub, err := ethcrypto.SigToPub(hash, sigBytes)
	if err != nil {
		return Result{Err: SignatureVerificationError{Reason: "signature is not recoverable"}}
	}
	recovered := ethcrypto.PubkeyToAddress(*pub).Hex()
	if !strings.EqualFold(recovered, sig.Signer) {
		return Result{Err: SignatureVerificationError{
			Reason: "recovered signer does not match declared signer address",
		}}
	}

	result := Result{
		IsValid:   true,
		Signer:    recovered,
		ChainID:   p.ChainID,
		Timestamp: time.Unix(p.Timestamp, 0),
	}

	age := v.now().Sub(time.Unix(p.Timestamp, 0))
	if age < 0 {
		age = -age
	}
	if age > v.maxSkew {
		if !v.lenientAllowed() {
			return Result{Err: ExpiredPayloadError{Age: age, MaxAge: v.maxSkew}}
		}
		result.Warning = &StaleSignatureWarning{Age: age, MaxAge: v.maxSkew}
	}
	return result
}

// VerifyRaw classifies raw bytes first, then verifies signed payloads.
// Round-tripping through the wire format is equivalent to verifying the
// in-memory payload.
func (v *Verifier) VerifyRaw(raw []byte) (Result, *types.PaymentRequest, error) {
	classified, err := Classify(raw)
	if err != nil {
		return Result{}, nil, err
	}
	if classified.Kind == KindUnsignedRequest {
		return Result{}, classified.Request, nil
	}
	return v.Verify(*classified.Signed), nil, nil
}

func (v *Verifier) lenientAllowed() bool {
	if !v.lenient {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.lenientAccepted >= v.maxLenientAccepts {
		return false
	}
	v.lenientAccepted++
	return true
}

func checkStructure(p types.SignedPaymentPayload) error {
	switch {
	case p.To == "":
		return MalformedPayloadError{Reason: "missing recipient"}
	case p.ChainID == "":
		return MalformedPayloadError{Reason: "missing chain id"}
	case p.Timestamp == 0:
		return MalformedPayloadError{Reason: "missing timestamp"}
	case p.Signature == nil:
		return MalformedPayloadError{Reason: "missing signature"}
	case p.Signature.Signer == "":
		return MalformedPayloadError{Reason: "missing signer address"}
	case p.Signature.Signature == "":
		return MalformedPayloadError{Reason: "missing signature bytes"}
	case p.Signature.MessageHash == "":
		return MalformedPayloadError{Reason: "missing message hash"}
	}
	return nil
}
