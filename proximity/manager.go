package proximity

import (
	"context"
	"sync"
	"time"

	"github.com/beaconwallet/go-sdk/internal/utils"
	"github.com/beaconwallet/go-sdk/types"
	log "github.com/sirupsen/logrus"
)

// Manager owns the radio and enforces the single-active-scan rule. It is
// constructed once and passed by reference to consumers.
type Manager struct {
	radio Radio

	mu     sync.Mutex
	active *ScanSession
}

func NewManager(radio Radio) *Manager {
	return &Manager{radio: radio}
}

type scanOptions struct {
	targetAddress string
}

type ScanOption func(*scanOptions)

// WithTargetAddress narrows emitted events to peers advertising the given
// wallet address. The underlying peer list still records every sighting, so
// clearing the filter reveals all discovered peers without a re-scan.
func WithTargetAddress(addr string) ScanOption {
	return func(o *scanOptions) {
		o.targetAddress = addr
	}
}

// StartScan begins an asynchronous discovery session bounded by timeout.
// It fails fast if the radio is unusable, and rejects overlapping sessions:
// the previous scan must be fully stopped before a new one starts.
func (m *Manager) StartScan(
	ctx context.Context, timeout time.Duration, opts ...ScanOption,
) (*ScanSession, error) {
	if err := m.radio.Available(); err != nil {
		return nil, err
	}

	options := &scanOptions{}
	for _, opt := range opts {
		opt(options)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil && !m.active.stopped() {
		return nil, ErrScanInProgress
	}

	scanCtx, cancel := context.WithCancel(ctx)
	session := &ScanSession{
		startedAt: time.Now(),
		timeout:   timeout,
		cancel:    cancel,
		done:      make(chan struct{}),
		peers:     make(map[string]types.ScannedPeer),
		events:    utils.NewBroadcaster[types.PeerEvent](),
		filter:    options.targetAddress,
	}

	sightings, err := m.radio.Discover(scanCtx)
	if err != nil {
		cancel()
		return nil, err
	}

	m.active = session
	go session.run(scanCtx, sightings)
	return session, nil
}

// StopScan stops the active session if any. Idempotent and always safe to
// call from teardown paths.
func (m *Manager) StopScan() {
	m.mu.Lock()
	session := m.active
	m.mu.Unlock()
	if session != nil {
		session.Stop()
	}
}

// Connect performs one bounded connection attempt to a scanned peer. On
// failure the caller decides whether to retry; auto-retrying here would mask
// radio unavailability.
func (m *Manager) Connect(
	ctx context.Context, peer types.ScannedPeer, timeout time.Duration,
) (Conn, error) {
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := m.radio.Connect(connectCtx, peer.DeviceID)
	if err != nil {
		if connectCtx.Err() == context.DeadlineExceeded {
			return nil, ErrConnectTimeout
		}
		return nil, err
	}
	return conn, nil
}

// Advertise broadcasts payment data until ctx is cancelled.
func (m *Manager) Advertise(ctx context.Context, adv types.Advertisement) error {
	if err := m.radio.Available(); err != nil {
		return err
	}
	return m.radio.Advertise(ctx, adv)
}

// ScanSession is one discovery run. Events are delivered in arrival order
// and are idempotent per device id: a repeat sighting updates the stored
// peer in place instead of duplicating it.
type ScanSession struct {
	startedAt time.Time
	timeout   time.Duration
	cancel    context.CancelFunc
	done      chan struct{}
	stopOnce  sync.Once

	mu    sync.RWMutex
	peers map[string]types.ScannedPeer

	events *utils.Broadcaster[types.PeerEvent]
	filter string
}

func (s *ScanSession) run(ctx context.Context, sightings <-chan Sighting) {
	defer s.Stop()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			// progress reached 100%
			return
		case sighting, ok := <-sightings:
			if !ok {
				return
			}
			s.record(sighting)
		}
	}
}

func (s *ScanSession) record(sighting Sighting) {
	if sighting.DeviceID == "" {
		log.Debug("dropping sighting without device id")
		return
	}

	s.mu.Lock()
	prev, known := s.peers[sighting.DeviceID]
	peer := types.ScannedPeer{
		DeviceID:       sighting.DeviceID,
		Advertised:     sighting.Advertised,
		SignalStrength: sighting.SignalStrength,
		LastSeenAt:     time.Now(),
	}
	if known && sighting.Advertised == nil {
		peer.Advertised = prev.Advertised
	}
	s.peers[sighting.DeviceID] = peer
	s.mu.Unlock()

	if s.filter != "" {
		if peer.Advertised == nil || peer.Advertised.WalletAddress != s.filter {
			return
		}
	}

	eventType := types.PeerDiscovered
	if known {
		eventType = types.PeerUpdated
	}
	s.events.Publish(types.PeerEvent{Type: eventType, Peer: peer})
}

// Events returns a subscription to discovery events. The channel is closed
// when the session stops.
func (s *ScanSession) Events() <-chan types.PeerEvent {
	return s.events.Subscribe(32)
}

// Peers returns a snapshot of every device discovered so far, unaffected by
// any event filter.
func (s *ScanSession) Peers() []types.ScannedPeer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.ScannedPeer, 0, len(s.peers))
	for _, peer := range s.peers {
		out = append(out, peer)
	}
	return out
}

// Progress reports the elapsed/timeout ratio in [0, 1]. Reaching 1 means the
// session has auto-stopped.
func (s *ScanSession) Progress() float64 {
	if s.timeout <= 0 {
		return 1
	}
	ratio := float64(time.Since(s.startedAt)) / float64(s.timeout)
	if ratio > 1 {
		return 1
	}
	return ratio
}

// Stop releases the radio and closes event channels. Safe to call any number
// of times, from any goroutine, even if the scan already ended.
func (s *ScanSession) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.events.Close()
		close(s.done)
	})
}

// Done is closed when the session has fully stopped.
func (s *ScanSession) Done() <-chan struct{} {
	return s.done
}

func (s *ScanSession) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// FilterByAddress returns the peers advertising the given wallet address.
// Pure: the input slice is never mutated.
func FilterByAddress(peers []types.ScannedPeer, addr string) []types.ScannedPeer {
	if addr == "" {
		out := make([]types.ScannedPeer, len(peers))
		copy(out, peers)
		return out
	}
	out := make([]types.ScannedPeer, 0, len(peers))
	for _, peer := range peers {
		if peer.Advertised != nil && peer.Advertised.WalletAddress == addr {
			out = append(out, peer)
		}
	}
	return out
}
