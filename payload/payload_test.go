package payload

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/beaconwallet/go-sdk/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func signedPayload(t *testing.T, ts int64) (types.SignedPaymentPayload, string) {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	p, err := Sign(key, types.SignedPaymentPayload{
		To:        "0xabc0000000000000000000000000000000000abc",
		ChainID:   "chain_1",
		Amount:    1500,
		Timestamp: ts,
	})
	require.NoError(t, err)
	return p, ethcrypto.PubkeyToAddress(key.PublicKey).Hex()
}

func TestSignVerifyRoundTrip(t *testing.T) {
	now := time.Now()
	p, signer := signedPayload(t, now.Unix())

	v := NewVerifier(WithClock(func() time.Time { return now }))
	res := v.Verify(p)
	require.NoError(t, res.Err)
	require.True(t, res.IsValid)
	require.Equal(t, signer, res.Signer)
	require.Equal(t, "chain_1", res.ChainID)
	require.Nil(t, res.Warning)
}

func TestVerifyTamperedPayload(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name   string
		mutate func(*types.SignedPaymentPayload)
	}{
		{
			name: "flipped signature byte",
			mutate: func(p *types.SignedPaymentPayload) {
				raw, _ := hex.DecodeString(p.Signature.Signature)
				raw[10] ^= 0xff
				p.Signature.Signature = hex.EncodeToString(raw)
			},
		},
		{
			name: "flipped message hash byte",
			mutate: func(p *types.SignedPaymentPayload) {
				raw, _ := hex.DecodeString(p.Signature.MessageHash)
				raw[0] ^= 0x01
				p.Signature.MessageHash = hex.EncodeToString(raw)
			},
		},
		{
			name: "chain id changed after signing",
			mutate: func(p *types.SignedPaymentPayload) {
				p.ChainID = "chain_2"
				p.Signature.ChainID = "chain_2"
			},
		},
		{
			name: "recipient changed after signing",
			mutate: func(p *types.SignedPaymentPayload) {
				p.To = "0xdead000000000000000000000000000000000000"
			},
		},
		{
			name: "amount changed after signing",
			mutate: func(p *types.SignedPaymentPayload) {
				p.Amount = 9999999
			},
		},
		{
			name: "signer address swapped",
			mutate: func(p *types.SignedPaymentPayload) {
				p.Signature.Signer = "0xdead000000000000000000000000000000000000"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := signedPayload(t, now.Unix())
			tt.mutate(&p)

			v := NewVerifier(WithClock(func() time.Time { return now }))
			res := v.Verify(p)
			require.False(t, res.IsValid)
			require.Error(t, res.Err)
		})
	}
}

func TestVerifyWireRoundTrip(t *testing.T) {
	now := time.Now()
	p, signer := signedPayload(t, now.Unix())

	raw, err := Encode(p)
	require.NoError(t, err)

	v := NewVerifier(WithClock(func() time.Time { return now }))
	res, request, err := v.VerifyRaw(raw)
	require.NoError(t, err)
	require.Nil(t, request)
	require.True(t, res.IsValid)
	require.Equal(t, signer, res.Signer)

	// wire round trip matches in-memory verification
	direct := v.Verify(p)
	require.Equal(t, direct.IsValid, res.IsValid)
	require.Equal(t, direct.Signer, res.Signer)
}

func TestVerifyTimestampSkew(t *testing.T) {
	now := time.Now()
	stale := now.Add(-10 * time.Minute)
	p, _ := signedPayload(t, stale.Unix())

	t.Run("strict rejects", func(t *testing.T) {
		v := NewVerifier(WithClock(func() time.Time { return now }))
		res := v.Verify(p)
		require.False(t, res.IsValid)
		var expiredErr ExpiredPayloadError
		require.ErrorAs(t, res.Err, &expiredErr)
	})

	t.Run("lenient warns", func(t *testing.T) {
		v := NewVerifier(WithLenient(10), WithClock(func() time.Time { return now }))
		res := v.Verify(p)
		require.True(t, res.IsValid)
		require.NotNil(t, res.Warning)
	})

	t.Run("within window passes strict", func(t *testing.T) {
		fresh, _ := signedPayload(t, now.Add(-time.Minute).Unix())
		v := NewVerifier(WithClock(func() time.Time { return now }))
		res := v.Verify(fresh)
		require.True(t, res.IsValid)
		require.Nil(t, res.Warning)
	})

	t.Run("custom skew window", func(t *testing.T) {
		v := NewVerifier(WithMaxSkew(15*time.Minute), WithClock(func() time.Time { return now }))
		res := v.Verify(p)
		require.True(t, res.IsValid)
		require.Nil(t, res.Warning)
	})
}

func TestLenientAcceptanceIsBounded(t *testing.T) {
	now := time.Now()
	v := NewVerifier(WithLenient(2), WithClock(func() time.Time { return now }))

	for i := 0; i < 2; i++ {
		p, _ := signedPayload(t, now.Add(-time.Hour).Unix())
		res := v.Verify(p)
		require.True(t, res.IsValid, "lenient accept %d", i)
		require.NotNil(t, res.Warning)
	}

	// budget exhausted, verifier degrades to strict
	p, _ := signedPayload(t, now.Add(-time.Hour).Unix())
	res := v.Verify(p)
	require.False(t, res.IsValid)
	var expiredErr ExpiredPayloadError
	require.ErrorAs(t, res.Err, &expiredErr)
}

func TestClassify(t *testing.T) {
	now := time.Now()
	signed, _ := signedPayload(t, now.Unix())
	signedRaw, err := Encode(signed)
	require.NoError(t, err)

	tests := []struct {
		name     string
		raw      []byte
		wantKind PayloadKind
		wantErr  bool
	}{
		{name: "signed payload", raw: signedRaw, wantKind: KindSigned},
		{
			name:     "unsigned request",
			raw:      []byte(`{"to":"0xabc","amount":10,"chainId":"chain_1","transport":"qr"}`),
			wantKind: KindUnsignedRequest,
		},
		{name: "garbage", raw: []byte("not json"), wantErr: true},
		{name: "missing recipient", raw: []byte(`{"chainId":"chain_1"}`), wantErr: true},
		{name: "missing chain id", raw: []byte(`{"to":"0xabc"}`), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified, err := Classify(tt.raw)
			if tt.wantErr {
				var malformedErr MalformedPayloadError
				require.ErrorAs(t, err, &malformedErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantKind, classified.Kind)
		})
	}
}

func TestSignRejectsMissingFields(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	_, err = Sign(key, types.SignedPaymentPayload{ChainID: "chain_1"})
	var malformedErr MalformedPayloadError
	require.ErrorAs(t, err, &malformedErr)

	_, err = Sign(key, types.SignedPaymentPayload{To: "0xabc"})
	require.ErrorAs(t, err, &malformedErr)
}

func TestEncodeQR(t *testing.T) {
	p, _ := signedPayload(t, time.Now().Unix())
	png, err := EncodeQR(p, 256)
	require.NoError(t, err)
	require.NotEmpty(t, png)
	// PNG magic
	require.Equal(t, []byte{0x89, 0x50, 0x4e, 0x47}, png[:4])
}
