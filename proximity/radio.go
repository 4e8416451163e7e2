package proximity

import (
	"context"
	"errors"
	"fmt"

	"github.com/beaconwallet/go-sdk/types"
)

var (
	// ErrScanInProgress is returned when a scan is started while another
	// session still holds the radio. Overlapping scans are disallowed.
	ErrScanInProgress = errors.New("a scan session is already active")
	// ErrConnectTimeout is returned when a single connection attempt exceeds
	// its bound. The manager never retries on its own.
	ErrConnectTimeout = errors.New("connection attempt timed out")
)

// RadioUnavailableError is returned when the short-range radio is off or not
// present. Recoverable: the caller should surface actionable guidance.
type RadioUnavailableError struct {
	Reason string
}

func (e RadioUnavailableError) Error() string {
	return fmt.Sprintf("radio unavailable: %s", e.Reason)
}

// PermissionDeniedError is returned when the platform denies radio access.
type PermissionDeniedError struct {
	Permission string
}

func (e PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied: %s", e.Permission)
}

// Sighting is one raw discovery event from the radio. Repeat sightings of
// the same device are expected; the scan session deduplicates them.
type Sighting struct {
	DeviceID       string
	Advertised     *types.Advertisement
	SignalStrength int
}

// Conn is an established short-range link to a single peer.
type Conn interface {
	Send(ctx context.Context, payload []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Radio abstracts the short-range transport. Implementations are chain
// agnostic: they move opaque payment bytes between nearby devices.
type Radio interface {
	// Available fails fast with RadioUnavailableError or
	// PermissionDeniedError when the radio cannot be used.
	Available() error

	// Discover starts emitting sightings until ctx is done. The returned
	// channel is closed by the radio when discovery ends.
	Discover(ctx context.Context) (<-chan Sighting, error)

	// Advertise broadcasts payment data until ctx is done.
	Advertise(ctx context.Context, adv types.Advertisement) error

	// Connect performs a single connection attempt to a discovered device.
	Connect(ctx context.Context, deviceID string) (Conn, error)
}
