package monitor_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/beaconwallet/go-sdk/explorer"
	"github.com/beaconwallet/go-sdk/monitor"
	"github.com/beaconwallet/go-sdk/types"
	"github.com/stretchr/testify/require"
)

var testChain = types.Chain{ID: "chain_1", Kind: types.ChainKindEVM}

const testAddr = "0xAaAa000000000000000000000000000000000001"

type fakeExplorer struct {
	mu      sync.Mutex
	txs     []explorer.Tx
	balance uint64
	err     error
}

func (f *fakeExplorer) GetAddressTxs(
	_ context.Context, _ types.Chain, _ string,
) ([]explorer.Tx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]explorer.Tx, len(f.txs))
	copy(out, f.txs)
	return out, nil
}

func (f *fakeExplorer) GetBalance(
	_ context.Context, _ types.Chain, _ string,
) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, f.err
}

func (f *fakeExplorer) SubmitPayment(
	_ context.Context, _ types.Chain, _ types.SignedPaymentPayload,
) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func (f *fakeExplorer) Ping(_ context.Context, _ types.Chain) error { return nil }

func (f *fakeExplorer) setTxs(txs []explorer.Tx) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs = txs
}

type fakeKnown struct {
	hashes map[string]struct{}
}

func (f *fakeKnown) GetKnownTxHashes(
	_ context.Context, _, _ string,
) (map[string]struct{}, error) {
	if f.hashes == nil {
		return map[string]struct{}{}, nil
	}
	return f.hashes, nil
}

func newMonitor(
	t *testing.T, index *fakeExplorer, known *fakeKnown, opts ...monitor.Option,
) (*monitor.Monitor, <-chan types.SecurityWarning) {
	t.Helper()
	m := monitor.NewMonitor(
		index, known,
		[]monitor.Target{{Chain: testChain, Address: testAddr}},
		opts...,
	)
	t.Cleanup(m.Close)
	return m, m.Warnings()
}

func collectWarnings(ch <-chan types.SecurityWarning) []types.SecurityWarning {
	out := make([]types.SecurityWarning, 0)
	for {
		select {
		case w := <-ch:
			out = append(out, w)
		case <-time.After(50 * time.Millisecond):
			return out
		}
	}
}

func TestExternalTransferFlaggedOnce(t *testing.T) {
	ctx := context.Background()
	index := &fakeExplorer{}
	index.setTxs([]explorer.Tx{
		{TxHash: "0xext1", From: testAddr, To: "0xbbb", Amount: 10, Pending: true},
	})
	m, warnings := newMonitor(t, index, &fakeKnown{})

	m.Poll(ctx)
	got := collectWarnings(warnings)
	require.Len(t, got, 1)
	require.Equal(t, monitor.WarningExternalTransfer, got[0].Type)
	require.Equal(t, types.SeverityHigh, got[0].Severity)
	require.Equal(t, "0xext1", got[0].Details["txHash"])

	// same hash on the next poll does not re-alert
	m.Poll(ctx)
	require.Empty(t, collectWarnings(warnings))
}

func TestLocallyOriginatedTxNotFlagged(t *testing.T) {
	ctx := context.Background()
	index := &fakeExplorer{}
	index.setTxs([]explorer.Tx{
		{TxHash: "0xmine", From: testAddr, To: "0xbbb", Amount: 10, Pending: true},
		{TxHash: "0xincoming", From: "0xccc", To: testAddr, Amount: 5, Pending: true},
	})
	known := &fakeKnown{hashes: map[string]struct{}{"0xmine": {}}}
	m, warnings := newMonitor(t, index, known)

	m.Poll(ctx)
	require.Empty(t, collectWarnings(warnings))
}

func TestElevatedActivityEscalatesToCritical(t *testing.T) {
	ctx := context.Background()
	index := &fakeExplorer{}
	txs := make([]explorer.Tx, 0, 5)
	for i := 0; i < 5; i++ {
		txs = append(txs, explorer.Tx{
			TxHash:  fmt.Sprintf("0xext%d", i),
			From:    testAddr,
			To:      "0xbbb",
			Amount:  1,
			Pending: true,
		})
	}
	index.setTxs(txs)
	m, warnings := newMonitor(t, index, &fakeKnown{})

	m.Poll(ctx)
	got := collectWarnings(warnings)
	require.Len(t, got, 6)

	critical := got[len(got)-1]
	require.Equal(t, monitor.WarningElevatedActivity, critical.Type)
	require.Equal(t, types.SeverityCritical, critical.Severity)
}

func TestOldConfirmedTransferIgnored(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	index := &fakeExplorer{}
	index.setTxs([]explorer.Tx{
		{
			TxHash:    "0xold",
			From:      testAddr,
			To:        "0xbbb",
			Amount:    10,
			Confirmed: true,
			BlockTime: now.Add(-48 * time.Hour).Unix(),
		},
	})
	m, warnings := newMonitor(
		t, index, &fakeKnown{},
		monitor.WithClock(func() time.Time { return now }),
	)

	m.Poll(ctx)
	require.Empty(t, collectWarnings(warnings))
}

func TestBalanceDiscrepancy(t *testing.T) {
	ctx := context.Background()
	index := &fakeExplorer{balance: 900}
	provider := func(_ context.Context, _, _ string) (uint64, bool) {
		return 1000, true
	}
	m, warnings := newMonitor(
		t, index, &fakeKnown{}, monitor.WithBalanceProvider(provider),
	)

	m.Poll(ctx)
	got := collectWarnings(warnings)
	require.Len(t, got, 1)
	require.Equal(t, monitor.WarningBalanceDiscrepancy, got[0].Type)
	require.Equal(t, types.SeverityMedium, got[0].Severity)
	require.Equal(t, "900", got[0].Details["actual"])
	require.Equal(t, "1000", got[0].Details["expected"])
}

func TestBalanceMatchNoWarning(t *testing.T) {
	ctx := context.Background()
	index := &fakeExplorer{balance: 1000}
	provider := func(_ context.Context, _, _ string) (uint64, bool) {
		return 1000, true
	}
	m, warnings := newMonitor(
		t, index, &fakeKnown{}, monitor.WithBalanceProvider(provider),
	)

	m.Poll(ctx)
	require.Empty(t, collectWarnings(warnings))
}

func TestPollErrorsSwallowed(t *testing.T) {
	ctx := context.Background()
	index := &fakeExplorer{err: fmt.Errorf("index down")}
	m, warnings := newMonitor(t, index, &fakeKnown{})

	m.Poll(ctx)
	require.Empty(t, collectWarnings(warnings))
}

func TestStartStopIdempotent(t *testing.T) {
	ctx := context.Background()
	index := &fakeExplorer{}
	m, _ := newMonitor(t, index, &fakeKnown{}, monitor.WithInterval(10*time.Millisecond))

	m.Start(ctx)
	m.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	m.Stop()
	m.Stop()
}
