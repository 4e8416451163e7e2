// Package explorer talks to per-chain index services over HTTP. It is the
// only component that needs the network: the queue drains through it and the
// conflict monitor polls it.
package explorer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/beaconwallet/go-sdk/types"
)

// TransientNetworkError marks a failure that should be retried through the
// offline queue instead of surfacing to the caller.
type TransientNetworkError struct {
	Cause error
}

func (e TransientNetworkError) Error() string {
	return fmt.Sprintf("transient network error: %s", e.Cause)
}

func (e TransientNetworkError) Unwrap() error { return e.Cause }

// IsTransient reports whether err is retryable via the queue.
func IsTransient(err error) bool {
	var t TransientNetworkError
	return errors.As(err, &t)
}

// Tx is one indexed on-chain transaction for an address.
type Tx struct {
	TxHash    string
	From      string
	To        string
	Amount    uint64
	Pending   bool
	Confirmed bool
	BlockTime int64
}

// Client exposes the chain index operations the SDK needs.
type Client interface {
	// GetAddressTxs retrieves the indexed transactions of an address.
	GetAddressTxs(ctx context.Context, chain types.Chain, addr string) ([]Tx, error)

	// GetBalance retrieves the confirmed balance of an address.
	GetBalance(ctx context.Context, chain types.Chain, addr string) (uint64, error)

	// SubmitPayment broadcasts a signed payment and returns its tx hash.
	SubmitPayment(
		ctx context.Context, chain types.Chain, p types.SignedPaymentPayload,
	) (string, error)

	// Ping probes connectivity to the chain's index service.
	Ping(ctx context.Context, chain types.Chain) error
}

type restClient struct {
	httpClient *http.Client
}

type RestOption func(*restClient)

// WithHTTPClient overrides the HTTP client, e.g. to shorten timeouts in tests.
func WithHTTPClient(c *http.Client) RestOption {
	return func(r *restClient) {
		r.httpClient = c
	}
}

func NewRestClient(opts ...RestOption) Client {
	client := &restClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type txDTO struct {
	TxHash string `json:"txid"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"value"`
	Status struct {
		Pending   bool  `json:"pending"`
		Confirmed bool  `json:"confirmed"`
		BlockTime int64 `json:"block_time"`
	} `json:"status"`
}

type txsDTO []txDTO

func (t txsDTO) toList() []Tx {
	txs := make([]Tx, 0, len(t))
	for _, dto := range t {
		txs = append(txs, Tx{
			TxHash:    dto.TxHash,
			From:      dto.From,
			To:        dto.To,
			Amount:    dto.Amount,
			Pending:   dto.Status.Pending,
			Confirmed: dto.Status.Confirmed,
			BlockTime: dto.Status.BlockTime,
		})
	}
	return txs
}

func (c *restClient) GetAddressTxs(
	ctx context.Context, chain types.Chain, addr string,
) ([]Tx, error) {
	var dtos txsDTO
	url := fmt.Sprintf("%s/address/%s/txs", chain.ExplorerURL, addr)
	if err := c.getJSON(ctx, url, &dtos); err != nil {
		return nil, err
	}
	return dtos.toList(), nil
}

func (c *restClient) GetBalance(
	ctx context.Context, chain types.Chain, addr string,
) (uint64, error) {
	var dto struct {
		Balance uint64 `json:"balance"`
	}
	url := fmt.Sprintf("%s/address/%s/balance", chain.ExplorerURL, addr)
	if err := c.getJSON(ctx, url, &dto); err != nil {
		return 0, err
	}
	return dto.Balance, nil
}

func (c *restClient) SubmitPayment(
	ctx context.Context, chain types.Chain, p types.SignedPaymentPayload,
) (string, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/tx", chain.ExplorerURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classify(err)
	}
	// nolint:errcheck
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classify(err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp.StatusCode, raw)
	}

	var dto struct {
		TxHash string `json:"txid"`
	}
	if err := json.Unmarshal(raw, &dto); err != nil {
		return "", fmt.Errorf("undecodable broadcast response: %w", err)
	}
	return dto.TxHash, nil
}

func (c *restClient) Ping(ctx context.Context, chain types.Chain) error {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, fmt.Sprintf("%s/health", chain.ExplorerURL), nil,
	)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classify(err)
	}
	// nolint:errcheck
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError(resp.StatusCode, nil)
	}
	return nil
}

func (c *restClient) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classify(err)
	}
	// nolint:errcheck
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return classify(err)
	}
	if resp.StatusCode != http.StatusOK {
		return statusError(resp.StatusCode, raw)
	}
	return json.Unmarshal(raw, out)
}

// classify wraps transport-level failures as transient so the queue retries
// them. Anything else keeps its original kind.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return TransientNetworkError{Cause: err}
	}

	// http.Client wraps every failure in *url.Error, which announces itself
	// as a net.Error even for non-network causes like an unsupported scheme.
	// Classify on the wrapped error, not the envelope.
	cause := err
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return TransientNetworkError{Cause: err}
		}
		cause = urlErr.Err
	}

	var opErr *net.OpError
	if errors.As(cause, &opErr) {
		return TransientNetworkError{Cause: err}
	}
	var netErr net.Error
	if errors.As(cause, &netErr) {
		return TransientNetworkError{Cause: err}
	}
	return err
}

func statusError(code int, body []byte) error {
	err := fmt.Errorf("unexpected status %d: %s", code, string(body))
	// rate limits and server-side failures are worth retrying later
	if code == http.StatusTooManyRequests || code >= 500 {
		return TransientNetworkError{Cause: err}
	}
	return err
}
