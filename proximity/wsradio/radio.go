// Package wsradio implements the proximity Radio over a websocket rendezvous
// hub on the local network. It lets two devices on the same LAN exchange
// payment data with no internet connectivity, mirroring the behavior of a
// short-range radio link.
package wsradio

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/beaconwallet/go-sdk/proximity"
	"github.com/beaconwallet/go-sdk/types"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	msgAdvertise     = "advertise"
	msgStopAdvertise = "stop-advertise"
	msgDiscover      = "discover"
	msgStopDiscover  = "stop-discover"
	msgSighting      = "sighting"
	msgConnect       = "connect"
	msgConnected     = "connected"
	msgData          = "data"

	writeTimeout = 5 * time.Second
)

type message struct {
	Type           string               `json:"type"`
	DeviceID       string               `json:"deviceId,omitempty"`
	Target         string               `json:"target,omitempty"`
	SignalStrength int                  `json:"signalStrength,omitempty"`
	Advertisement  *types.Advertisement `json:"advertisement,omitempty"`
	Payload        []byte               `json:"payload,omitempty"`
}

// Radio is a websocket-backed proximity radio. One websocket connection to
// the hub carries discovery, advertisement and peer data frames.
type Radio struct {
	hubURL   string
	deviceID string
	dialer   *websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	sightings chan proximity.Sighting
	dataChans map[string]chan []byte // peer deviceID -> inbound data
	connected map[string]chan struct{}

	// gorilla/websocket allows a single writer per connection
	writeMu sync.Mutex
}

type Option func(*Radio)

// WithDialer overrides the websocket dialer, e.g. to bound the handshake.
func WithDialer(d *websocket.Dialer) Option {
	return func(r *Radio) {
		r.dialer = d
	}
}

func NewRadio(hubURL, deviceID string, opts ...Option) *Radio {
	radio := &Radio{
		hubURL:   hubURL,
		deviceID: deviceID,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 5 * time.Second,
		},
		dataChans: make(map[string]chan []byte),
		connected: make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(radio)
	}
	return radio
}

// Available dials the hub if needed. A dial failure means the local link is
// down, reported as RadioUnavailableError.
func (r *Radio) Available() error {
	if err := r.ensureConn(); err != nil {
		if _, ok := err.(*net.OpError); ok {
			return proximity.RadioUnavailableError{Reason: "rendezvous hub unreachable"}
		}
		return proximity.RadioUnavailableError{Reason: err.Error()}
	}
	return nil
}

func (r *Radio) ensureConn() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return nil
	}
	conn, resp, err := r.dialer.Dial(r.hubURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == 403 {
			return proximity.PermissionDeniedError{Permission: "proximity link"}
		}
		return err
	}
	r.conn = conn
	go r.readLoop(conn)
	return nil
}

func (r *Radio) readLoop(conn *websocket.Conn) {
	defer func() {
		r.mu.Lock()
		if r.conn == conn {
			r.conn = nil
		}
		sightings := r.sightings
		r.sightings = nil
		r.mu.Unlock()
		if sightings != nil {
			close(sightings)
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debugf("wsradio: read loop ended: %s", err)
			}
			return
		}

		var msg message
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Debugf("wsradio: dropping undecodable frame: %s", err)
			continue
		}

		switch msg.Type {
		case msgSighting:
			r.mu.Lock()
			sightings := r.sightings
			r.mu.Unlock()
			if sightings != nil {
				select {
				case sightings <- proximity.Sighting{
					DeviceID:       msg.DeviceID,
					Advertised:     msg.Advertisement,
					SignalStrength: msg.SignalStrength,
				}:
				default:
				}
			}
		case msgConnected:
			r.mu.Lock()
			ready, ok := r.connected[msg.DeviceID]
			if ok {
				delete(r.connected, msg.DeviceID)
			}
			r.mu.Unlock()
			if ok {
				close(ready)
			}
		case msgData:
			r.mu.Lock()
			dataCh, ok := r.dataChans[msg.DeviceID]
			r.mu.Unlock()
			if ok {
				select {
				case dataCh <- msg.Payload:
				default:
					log.Debugf("wsradio: dropping frame from %s, receiver too slow", msg.DeviceID)
				}
			}
		}
	}
}

func (r *Radio) write(msg message) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return proximity.RadioUnavailableError{Reason: "link lost"}
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	// nolint:errcheck
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(msg)
}

func (r *Radio) Discover(ctx context.Context) (<-chan proximity.Sighting, error) {
	if err := r.Available(); err != nil {
		return nil, err
	}

	ch := make(chan proximity.Sighting, 32)
	r.mu.Lock()
	r.sightings = ch
	r.mu.Unlock()

	if err := r.write(message{Type: msgDiscover, DeviceID: r.deviceID}); err != nil {
		r.mu.Lock()
		r.sightings = nil
		r.mu.Unlock()
		return nil, err
	}

	go func() {
		<-ctx.Done()
		// nolint:errcheck
		r.write(message{Type: msgStopDiscover, DeviceID: r.deviceID})
		r.mu.Lock()
		sightings := r.sightings
		r.sightings = nil
		r.mu.Unlock()
		if sightings != nil {
			close(sightings)
		}
	}()
	return ch, nil
}

func (r *Radio) Advertise(ctx context.Context, adv types.Advertisement) error {
	if err := r.Available(); err != nil {
		return err
	}
	advertised := adv
	if err := r.write(message{
		Type: msgAdvertise, DeviceID: r.deviceID, Advertisement: &advertised,
	}); err != nil {
		return err
	}
	<-ctx.Done()
	// nolint:errcheck
	r.write(message{Type: msgStopAdvertise, DeviceID: r.deviceID})
	return nil
}

func (r *Radio) Connect(ctx context.Context, deviceID string) (proximity.Conn, error) {
	if err := r.Available(); err != nil {
		return nil, err
	}

	ready := make(chan struct{})
	dataCh := make(chan []byte, 8)
	r.mu.Lock()
	r.connected[deviceID] = ready
	r.dataChans[deviceID] = dataCh
	r.mu.Unlock()

	cleanup := func() {
		r.mu.Lock()
		delete(r.connected, deviceID)
		delete(r.dataChans, deviceID)
		r.mu.Unlock()
	}

	if err := r.write(message{Type: msgConnect, DeviceID: r.deviceID, Target: deviceID}); err != nil {
		cleanup()
		return nil, err
	}

	select {
	case <-ready:
		return &wsConn{radio: r, peerID: deviceID, in: dataCh, cleanup: cleanup}, nil
	case <-ctx.Done():
		cleanup()
		return nil, ctx.Err()
	}
}

// Close tears down the hub link.
func (r *Radio) Close() {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()
	if conn != nil {
		r.writeMu.Lock()
		// nolint:errcheck
		conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		r.writeMu.Unlock()
		// nolint:errcheck
		conn.Close()
	}
}

type wsConn struct {
	radio   *Radio
	peerID  string
	in      chan []byte
	cleanup func()

	closeOnce sync.Once
}

func (c *wsConn) Send(_ context.Context, payload []byte) error {
	return c.radio.write(message{
		Type: msgData, DeviceID: c.radio.deviceID, Target: c.peerID, Payload: payload,
	})
}

func (c *wsConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case payload, ok := <-c.in:
		if !ok {
			return nil, fmt.Errorf("connection closed")
		}
		return payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(c.cleanup)
	return nil
}
