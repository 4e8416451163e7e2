package explorer_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/beaconwallet/go-sdk/explorer"
	"github.com/beaconwallet/go-sdk/types"
	"github.com/stretchr/testify/require"
)

func testChain(baseURL string) types.Chain {
	return types.Chain{ID: "chain_1", ExplorerURL: baseURL}
}

func TestGetAddressTxs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/address/0xabc/txs", r.URL.Path)
			fmt.Fprint(w, `[
				{"txid":"aa11","from":"0xabc","to":"0xdef","value":500,
				 "status":{"pending":false,"confirmed":true,"block_time":1700000000}},
				{"txid":"bb22","from":"0xzzz","to":"0xabc","value":42,
				 "status":{"pending":true}}
			]`)
		},
	))
	defer srv.Close()

	svc := explorer.NewRestClient()
	txs, err := svc.GetAddressTxs(context.Background(), testChain(srv.URL), "0xabc")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	require.Equal(t, "aa11", txs[0].TxHash)
	require.True(t, txs[0].Confirmed)
	require.Equal(t, int64(1700000000), txs[0].BlockTime)
	require.Equal(t, uint64(42), txs[1].Amount)
	require.True(t, txs[1].Pending)
}

func TestGetBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/address/0xabc/balance", r.URL.Path)
			fmt.Fprint(w, `{"balance":123456}`)
		},
	))
	defer srv.Close()

	svc := explorer.NewRestClient()
	balance, err := svc.GetBalance(context.Background(), testChain(srv.URL), "0xabc")
	require.NoError(t, err)
	require.Equal(t, uint64(123456), balance)
}

func TestSubmitPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/tx", r.URL.Path)
			require.Equal(t, "application/json", r.Header.Get("Content-Type"))
			fmt.Fprint(w, `{"txid":"cc33"}`)
		},
	))
	defer srv.Close()

	svc := explorer.NewRestClient()
	hash, err := svc.SubmitPayment(
		context.Background(), testChain(srv.URL), types.SignedPaymentPayload{
			To: "0xdef", ChainID: "chain_1", Amount: 10,
		},
	)
	require.NoError(t, err)
	require.Equal(t, "cc33", hash)
}

func TestSubmitPaymentRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "invalid signature", http.StatusBadRequest)
		},
	))
	defer srv.Close()

	svc := explorer.NewRestClient()
	_, err := svc.SubmitPayment(
		context.Background(), testChain(srv.URL), types.SignedPaymentPayload{},
	)
	require.Error(t, err)
	require.False(t, explorer.IsTransient(err))
}

func TestTransientFailures(t *testing.T) {
	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()

		svc := explorer.NewRestClient()
		err := svc.Ping(context.Background(), testChain(srv.URL))
		require.Error(t, err)
		require.True(t, explorer.IsTransient(err))
	})

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(
			func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		))
		defer srv.Close()

		svc := explorer.NewRestClient()
		_, err := svc.GetBalance(context.Background(), testChain(srv.URL), "0xabc")
		require.Error(t, err)
		require.True(t, explorer.IsTransient(err))
	})

	t.Run("rate limited", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(
			func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "slow down", http.StatusTooManyRequests)
			},
		))
		defer srv.Close()

		svc := explorer.NewRestClient()
		_, err := svc.GetAddressTxs(context.Background(), testChain(srv.URL), "0xabc")
		require.Error(t, err)
		require.True(t, explorer.IsTransient(err))
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				<-r.Context().Done()
			},
		))
		defer srv.Close()

		svc := explorer.NewRestClient(explorer.WithHTTPClient(
			&http.Client{Timeout: 50 * time.Millisecond},
		))
		err := svc.Ping(context.Background(), testChain(srv.URL))
		require.Error(t, err)
		require.True(t, explorer.IsTransient(err))
	})
}

func TestMisconfiguredURLIsNotTransient(t *testing.T) {
	// an unsupported scheme is a configuration mistake, retrying it through
	// the queue would never succeed
	svc := explorer.NewRestClient()
	err := svc.Ping(context.Background(), testChain("htp://bad-scheme"))
	require.Error(t, err)
	require.False(t, explorer.IsTransient(err))

	_, err = svc.GetBalance(context.Background(), testChain("htp://bad-scheme"), "0xabc")
	require.Error(t, err)
	require.False(t, explorer.IsTransient(err))
}

func TestPingOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/health", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		},
	))
	defer srv.Close()

	svc := explorer.NewRestClient()
	require.NoError(t, svc.Ping(context.Background(), testChain(srv.URL)))
}
