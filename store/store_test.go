package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/beaconwallet/go-sdk/store"
	"github.com/beaconwallet/go-sdk/types"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) types.Store {
	t.Helper()
	svc, err := store.NewStore(store.Config{
		ConfigStoreType:  types.InMemoryStore,
		AppDataStoreType: types.InMemoryStore,
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

func TestConfigStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc := newTestStore(t)
	cfgStore := svc.ConfigStore()

	data, err := cfgStore.GetData(ctx)
	require.NoError(t, err)
	require.Nil(t, data)

	cfg := types.Config{
		Chains: []types.Chain{
			{ID: "chain_1", Kind: types.ChainKindEVM, ExplorerURL: "http://localhost:3000"},
		},
		SelectedChainID: "chain_1",
		StoreType:       types.InMemoryStore,
		PaymentTTL:      24 * time.Hour,
	}
	require.NoError(t, cfgStore.AddData(ctx, cfg))

	data, err = cfgStore.GetData(ctx)
	require.NoError(t, err)
	require.NotNil(t, data)
	require.Equal(t, "chain_1", data.SelectedChainID)
	require.Len(t, data.Chains, 1)

	require.NoError(t, cfgStore.CleanData(ctx))
	data, err = cfgStore.GetData(ctx)
	require.NoError(t, err)
	require.Nil(t, data)
}

func TestWalletStoreStagingSwap(t *testing.T) {
	ctx := context.Background()
	svc := newTestStore(t)
	walletStore := svc.WalletStore()

	record, err := walletStore.GetWallet(ctx)
	require.NoError(t, err)
	require.Nil(t, record)

	original := types.WalletRecord{
		Ciphertext: []byte("old-ciphertext"),
		Salt:       []byte("old-salt"),
		VerifyTag:  []byte("old-tag"),
		Addresses:  map[string]string{"chain_1": "0xaaa"},
		CreatedAt:  time.Now(),
	}
	require.NoError(t, walletStore.AddWallet(ctx, original))
	require.Error(t, walletStore.AddWallet(ctx, original))

	// a staged record does not replace the live one until promoted
	staged := original
	staged.Ciphertext = []byte("new-ciphertext")
	require.NoError(t, walletStore.StageWallet(ctx, staged))

	record, err = walletStore.GetWallet(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("old-ciphertext"), record.Ciphertext)

	require.NoError(t, walletStore.PromoteStaged(ctx))
	record, err = walletStore.GetWallet(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("new-ciphertext"), record.Ciphertext)

	// promoting again has nothing staged
	require.Error(t, walletStore.PromoteStaged(ctx))

	// discarding a staged record is a no-op when none exists
	require.NoError(t, walletStore.DiscardStaged(ctx))

	require.NoError(t, walletStore.DeleteWallet(ctx))
	record, err = walletStore.GetWallet(ctx)
	require.NoError(t, err)
	require.Nil(t, record)
}

func TestPendingTxStore(t *testing.T) {
	ctx := context.Background()
	svc := newTestStore(t)
	txStore := svc.PendingTxStore()
	eventCh := txStore.GetEventChannel()

	now := time.Now()
	tx := types.PendingTransaction{
		ID:        "tx-1",
		ChainID:   "chain_1",
		From:      "0xaaa",
		To:        "0xbbb",
		Amount:    100,
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
		Status:    types.TxQueued,
	}
	require.NoError(t, txStore.AddTransaction(ctx, tx))
	require.Error(t, txStore.AddTransaction(ctx, tx))

	event := waitPendingTxEvent(t, eventCh)
	require.Equal(t, types.PendingTxsAdded, event.Type)
	require.Len(t, event.Txs, 1)

	got, err := txStore.GetTransaction(ctx, "tx-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, types.TxQueued, got.Status)
	require.Equal(t, uint64(100), got.Amount)

	tx.Status = types.TxSubmitted
	tx.TxHash = "0xhash"
	count, err := txStore.UpdateTransactions(ctx, []types.PendingTransaction{tx})
	require.NoError(t, err)
	require.Equal(t, 1, count)

	event = waitPendingTxEvent(t, eventCh)
	require.Equal(t, types.PendingTxsUpdated, event.Type)

	// submitted entries leave the active set
	active, err := txStore.GetActiveTransactions(ctx)
	require.NoError(t, err)
	require.Empty(t, active)

	all, err := txStore.GetAllTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	count, err = txStore.RemoveTransactions(ctx, []string{"tx-1", "unknown"})
	require.NoError(t, err)
	require.Equal(t, 1, count)

	event = waitPendingTxEvent(t, eventCh)
	require.Equal(t, types.PendingTxsRemoved, event.Type)
}

func TestHistoryStore(t *testing.T) {
	ctx := context.Background()
	svc := newTestStore(t)
	historyStore := svc.HistoryStore()

	now := time.Now().Truncate(time.Second)
	records := []types.HistoryRecord{
		{
			TxHash:    "0xsent",
			ChainID:   "chain_1",
			Address:   "0xaaa",
			Amount:    100,
			Type:      types.TxSent,
			CreatedAt: now,
		},
		{
			TxHash:    "0xrecv",
			ChainID:   "chain_1",
			Address:   "0xaaa",
			Amount:    50,
			Type:      types.TxReceived,
			External:  true,
			CreatedAt: now.Add(time.Second),
		},
	}

	count, err := historyStore.AddRecords(ctx, records)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	// duplicates are ignored
	count, err = historyStore.AddRecords(ctx, records[:1])
	require.NoError(t, err)
	require.Zero(t, count)

	got, err := historyStore.GetRecords(ctx, "chain_1", "0xaaa")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "0xrecv", got[0].TxHash) // newest first

	// external records never count as locally known
	known, err := historyStore.GetKnownTxHashes(ctx, "chain_1", "0xaaa")
	require.NoError(t, err)
	require.Len(t, known, 1)
	require.Contains(t, known, "0xsent")

	count, err = historyStore.ConfirmRecords(ctx, []string{"0xsent", "0xmissing"})
	require.NoError(t, err)
	require.Equal(t, 1, count)

	got, err = historyStore.GetRecords(ctx, "chain_1", "0xaaa")
	require.NoError(t, err)
	for _, record := range got {
		if record.TxHash == "0xsent" {
			require.True(t, record.Confirmed)
		}
	}

	require.NoError(t, historyStore.Clean(ctx))
	got, err = historyStore.GetRecords(ctx, "chain_1", "0xaaa")
	require.NoError(t, err)
	require.Empty(t, got)
}

func waitPendingTxEvent(
	t *testing.T, ch <-chan types.PendingTxEvent,
) types.PendingTxEvent {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("expected a pending tx event")
		return types.PendingTxEvent{}
	}
}
