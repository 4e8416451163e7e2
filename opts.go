package beaconsdk

import (
	"fmt"

	"github.com/beaconwallet/go-sdk/explorer"
	"github.com/beaconwallet/go-sdk/internal/utils"
	"github.com/beaconwallet/go-sdk/payload"
	"github.com/beaconwallet/go-sdk/proximity"
)

type ClientOption func(*beaconClient) error

// WithExplorer overrides the chain index client, e.g. with a stub in tests.
func WithExplorer(svc explorer.Client) ClientOption {
	return func(c *beaconClient) error {
		if svc == nil {
			return fmt.Errorf("missing explorer service")
		}
		c.explorerSvc = svc
		return nil
	}
}

// WithRadio enables proximity features over the given transport.
func WithRadio(radio proximity.Radio) ClientOption {
	return func(c *beaconClient) error {
		if radio == nil {
			return fmt.Errorf("missing radio")
		}
		c.radio = radio
		return nil
	}
}

// WithVerifierOptions customizes payment verification, e.g. lenient skew
// handling for kiosk deployments.
func WithVerifierOptions(opts ...payload.VerifierOption) ClientOption {
	return func(c *beaconClient) error {
		c.verifierOpts = append(c.verifierOpts, opts...)
		return nil
	}
}

// WithRetryPolicy overrides the queue's submission retry policy.
func WithRetryPolicy(policy utils.RetryPolicy) ClientOption {
	return func(c *beaconClient) error {
		if policy.MaxAttempts <= 0 {
			return fmt.Errorf("retry policy needs at least one attempt")
		}
		c.retryPolicy = policy
		return nil
	}
}
