package syncengine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	syncerrors "memsync/internal/pkg/errors"
	"memsync/internal/pkg/logging"
)

const (
	defaultQueueSize = 256
)

// relayFrame mirrors the client<->server WebSocket frame shapes from
// the relay transport's wire schema.
type relayFrame struct {
	Type          string        `json:"type"`
	Entry         *RelayEntry   `json:"entry,omitempty"`
	UserID        string        `json:"user_id,omitempty"`
	ExcludeDevice DeviceID      `json:"exclude_device,omitempty"`
	Entries       []*RelayEntry `json:"entries,omitempty"`
}

// RelayClient maintains a persistent WebSocket connection to the relay
// service, forwarding outbound envelopes and delivering inbound ones
// through bounded queues drained by a single worker goroutine each.
type RelayClient struct {
	url      string
	deviceID DeviceID
	userID   string

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected atomic.Bool

	outbound chan *RelayEntry
	inbound  chan *RelayEntry

	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *logging.Logger
}

// NewRelayClient builds a client for relayURL, identified to the relay
// by deviceID/userID query parameters on connect.
func NewRelayClient(relayURL string, deviceID DeviceID, userID string, logger *logging.Logger) *RelayClient {
	if logger == nil {
		logger = logging.Nop()
	}
	return &RelayClient{
		url:      relayURL,
		deviceID: deviceID,
		userID:   userID,
		outbound: make(chan *RelayEntry, defaultQueueSize),
		inbound:  make(chan *RelayEntry, defaultQueueSize),
		logger:   logger.Component("relayclient"),
	}
}

// Connect opens the channel. May be called once per client; calling it
// again on an already-connected client is a no-op.
func (c *RelayClient) Connect(ctx context.Context) error {
	if c.connected.Load() {
		return nil
	}

	q := url.Values{}
	q.Set("device_id", string(c.deviceID))
	q.Set("user_id", c.userID)
	dialURL := c.url + "?" + q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, dialURL, nil)
	if err != nil {
		return syncerrors.NewNetworkError("relay connect", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.mu.Unlock()
	c.connected.Store(true)

	c.wg.Add(2)
	go c.outboundWorker(runCtx)
	go c.inboundWorker(runCtx)

	return nil
}

// Store enqueues entry for delivery to the relay. Fails fast if the
// client isn't connected; otherwise back-pressures via the bounded
// outbound queue.
func (c *RelayClient) Store(entry *RelayEntry) error {
	if !c.connected.Load() {
		return syncerrors.NewNetworkError("relay store", fmt.Errorf("not connected"))
	}
	select {
	case c.outbound <- entry:
		return nil
	default:
		return syncerrors.NewNetworkError("relay store", fmt.Errorf("outbound queue full"))
	}
}

// Recv pulls the next inbound entry. The second return value is false
// only on permanent channel closure.
func (c *RelayClient) Recv() (*RelayEntry, bool) {
	entry, ok := <-c.inbound
	return entry, ok
}

// IsConnected reports whether the underlying connection is believed
// live.
func (c *RelayClient) IsConnected() bool {
	return c.connected.Load()
}

// Close tears down the connection and stops both workers.
func (c *RelayClient) Close() error {
	if !c.connected.CompareAndSwap(true, false) {
		return nil
	}
	c.mu.RLock()
	cancel := c.cancel
	conn := c.conn
	c.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if conn != nil {
		err = conn.Close()
	}
	c.wg.Wait()
	return err
}

func (c *RelayClient) outboundWorker(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-c.outbound:
			if !ok {
				return
			}
			frame := relayFrame{Type: "store", Entry: entry}
			if err := c.writeJSON(frame); err != nil {
				c.logger.Warn("relay outbound send failed, worker exiting", "error", err)
				c.connected.Store(false)
				return
			}
		}
	}
}

// inboundWorker is the only sender on c.inbound and closes it on exit,
// so Recv observes permanent closure whether the connection died on its
// own or Close tore it down.
func (c *RelayClient) inboundWorker(ctx context.Context) {
	defer c.wg.Done()
	defer close(c.inbound)
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var frame relayFrame
		if err := conn.ReadJSON(&frame); err != nil {
			c.logger.Warn("relay inbound read failed, worker exiting", "error", err)
			c.connected.Store(false)
			return
		}

		switch frame.Type {
		case "notify":
			c.deliver(frame.Entry)
		case "entries":
			for _, e := range frame.Entries {
				c.deliver(e)
			}
		case "pong":
		default:
			c.logger.Warn("relay inbound unknown frame type", "type", frame.Type)
		}
	}
}

// deliver applies self-echo suppression: the relay fans out to every
// device on the user including the sender, so frames whose sender is
// this client are silently discarded rather than queued.
func (c *RelayClient) deliver(entry *RelayEntry) {
	if entry == nil || entry.SenderDeviceID == c.deviceID {
		return
	}
	select {
	case c.inbound <- entry:
	default:
		c.logger.Warn("relay inbound queue full, dropping entry", "entry_id", entry.ID)
	}
}

func (c *RelayClient) writeJSON(v any) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
