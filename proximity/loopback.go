package proximity

import (
	"context"
	"fmt"
	"sync"

	"github.com/beaconwallet/go-sdk/types"
)

// LoopbackHub wires LoopbackRadio instances together in memory. It stands in
// for a real short-range radio in tests and local demos: every advertising
// device is sighted by every discovering device on the same hub.
type LoopbackHub struct {
	mu          sync.Mutex
	discoverers map[string]chan Sighting // deviceID -> sighting channel
	connectable map[string]*LoopbackRadio
}

func NewLoopbackHub() *LoopbackHub {
	return &LoopbackHub{
		discoverers: make(map[string]chan Sighting),
		connectable: make(map[string]*LoopbackRadio),
	}
}

// NewRadio registers a virtual device on the hub.
func (h *LoopbackHub) NewRadio(deviceID string) *LoopbackRadio {
	radio := &LoopbackRadio{hub: h, deviceID: deviceID}
	h.mu.Lock()
	h.connectable[deviceID] = radio
	h.mu.Unlock()
	return radio
}

// Inject delivers a raw sighting to every discovering device except origin.
// Tests use it to simulate repeat sightings with varying signal strength.
func (h *LoopbackHub) Inject(origin string, sighting Sighting) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for deviceID, ch := range h.discoverers {
		if deviceID == origin {
			continue
		}
		select {
		case ch <- sighting:
		default:
		}
	}
}

func (h *LoopbackHub) attach(deviceID string, ch chan Sighting) {
	h.mu.Lock()
	h.discoverers[deviceID] = ch
	h.mu.Unlock()
}

func (h *LoopbackHub) detach(deviceID string) {
	h.mu.Lock()
	ch, ok := h.discoverers[deviceID]
	if ok {
		delete(h.discoverers, deviceID)
	}
	h.mu.Unlock()
	if ok {
		close(ch)
	}
}

// LoopbackRadio is the in-memory Radio implementation backed by a hub.
type LoopbackRadio struct {
	hub      *LoopbackHub
	deviceID string

	mu          sync.Mutex
	unavailable error
	accept      chan *LoopbackConn
}

// SetAvailability makes Available return err, simulating a disabled radio or
// a denied permission.
func (r *LoopbackRadio) SetAvailability(err error) {
	r.mu.Lock()
	r.unavailable = err
	r.mu.Unlock()
}

func (r *LoopbackRadio) DeviceID() string {
	return r.deviceID
}

func (r *LoopbackRadio) Available() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unavailable
}

func (r *LoopbackRadio) Discover(ctx context.Context) (<-chan Sighting, error) {
	if err := r.Available(); err != nil {
		return nil, err
	}
	ch := make(chan Sighting, 32)
	r.hub.attach(r.deviceID, ch)
	go func() {
		<-ctx.Done()
		r.hub.detach(r.deviceID)
	}()
	return ch, nil
}

func (r *LoopbackRadio) Advertise(ctx context.Context, adv types.Advertisement) error {
	if err := r.Available(); err != nil {
		return err
	}
	advertised := adv
	r.hub.Inject(r.deviceID, Sighting{
		DeviceID:       r.deviceID,
		Advertised:     &advertised,
		SignalStrength: -40,
	})
	<-ctx.Done()
	return nil
}

// AcceptConnections makes the radio reachable via Connect. Returned channel
// yields the peer side of each established connection.
func (r *LoopbackRadio) AcceptConnections() <-chan *LoopbackConn {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.accept == nil {
		r.accept = make(chan *LoopbackConn, 4)
	}
	return r.accept
}

func (r *LoopbackRadio) Connect(ctx context.Context, deviceID string) (Conn, error) {
	if err := r.Available(); err != nil {
		return nil, err
	}

	r.hub.mu.Lock()
	target, ok := r.hub.connectable[deviceID]
	r.hub.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown device %s", deviceID)
	}

	target.mu.Lock()
	accept := target.accept
	target.mu.Unlock()
	if accept == nil {
		// target is not listening, behave like a radio-level timeout
		<-ctx.Done()
		return nil, ctx.Err()
	}

	local, remote := newLoopbackPair()
	select {
	case accept <- remote:
		return local, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// LoopbackConn is an in-memory duplex link between two radios. Both halves
// of a pair share the closed channel, so either side tearing down unblocks
// the other; closing both halves is allowed.
type LoopbackConn struct {
	in  chan []byte
	out chan []byte

	closeOnce *sync.Once
	closed    chan struct{}
}

func newLoopbackPair() (*LoopbackConn, *LoopbackConn) {
	a := make(chan []byte, 8)
	b := make(chan []byte, 8)
	closed := make(chan struct{})
	once := &sync.Once{}
	return &LoopbackConn{in: a, out: b, closeOnce: once, closed: closed},
		&LoopbackConn{in: b, out: a, closeOnce: once, closed: closed}
}

func (c *LoopbackConn) Send(ctx context.Context, payload []byte) error {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	// The buffered send below can stay ready after teardown, so check the
	// closed channel first to keep post-Close sends failing deterministically.
	select {
	case <-c.closed:
		return fmt.Errorf("connection closed")
	default:
	}
	select {
	case c.out <- buf:
		return nil
	case <-c.closed:
		return fmt.Errorf("connection closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *LoopbackConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case payload := <-c.in:
		return payload, nil
	case <-c.closed:
		return nil, fmt.Errorf("connection closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *LoopbackConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	return nil
}
