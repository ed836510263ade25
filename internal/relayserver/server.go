// Package relayserver exposes a RelayStore over both a WebSocket
// endpoint and an HTTP fallback for clients without a WebSocket path.
package relayserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"memsync/internal/pkg/logging"
	"memsync/internal/syncengine"
)

// Server owns one RelayStore and serves both transports that sit in
// front of it.
type Server struct {
	store    *syncengine.RelayStore
	upgrader websocket.Upgrader

	mux    *http.ServeMux
	server *http.Server
	logger *logging.Logger

	mu    sync.Mutex
	conns map[string][]*wsConn
}

// wsConn pairs a live WebSocket with the identity it announced on
// connect, so a Store can be fanned out live to every other device on
// the same user without waiting for an HTTP pickup poll.
type wsConn struct {
	conn     *websocket.Conn
	deviceID syncengine.DeviceID
	writeMu  sync.Mutex
}

func (c *wsConn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// NewServer builds a relay server around store.
func NewServer(store *syncengine.RelayStore, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Server{
		store:  store,
		logger: logger.Component("relayserver"),
		mux:    http.NewServeMux(),
		conns:  make(map[string][]*wsConn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/sync/relay", s.httpStore)
	s.mux.HandleFunc("GET /api/sync/relay", s.httpPickup)
	s.mux.HandleFunc("GET /ws/relay", s.websocketHandler)
	s.mux.HandleFunc("GET /healthz", s.healthz)
}

// Handler returns the server's http.Handler, for embedding in a larger
// mux or for httptest.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start runs the HTTP server on addr, blocking until it stops.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	s.server = &http.Server{Addr: addr, Handler: s.mux}
	server := s.server
	s.mu.Unlock()

	s.logger.Info("relay server listening", "addr", addr)
	err := server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

type relayStoreRequest struct {
	EncryptedPayload string `json:"encrypted_payload"`
	Nonce            string `json:"nonce"`
	SenderDeviceID   string `json:"sender_device_id"`
	UserID           string `json:"user_id"`
}

type relayStoreResponse struct {
	Status  string `json:"status"`
	RelayID string `json:"relay_id"`
}

func (s *Server) httpStore(w http.ResponseWriter, r *http.Request) {
	var req relayStoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	payload, err := base64.StdEncoding.DecodeString(req.EncryptedPayload)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid encrypted_payload: "+err.Error())
		return
	}
	nonce, err := base64.StdEncoding.DecodeString(req.Nonce)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid nonce: "+err.Error())
		return
	}

	id := s.store.Store(&syncengine.RelayEntry{
		SenderDeviceID:   syncengine.DeviceID(req.SenderDeviceID),
		UserID:           req.UserID,
		EncryptedPayload: payload,
		Nonce:            nonce,
		CreatedAtEpoch:   time.Now().Unix(),
	})

	s.writeJSON(w, http.StatusOK, relayStoreResponse{Status: "ok", RelayID: id})
}

type relayPickupResponse struct {
	Entries []relayEntryWire `json:"entries"`
	Count   int              `json:"count"`
}

type relayEntryWire struct {
	ID               string `json:"id"`
	SenderDeviceID   string `json:"sender_device_id"`
	EncryptedPayload string `json:"encrypted_payload"`
	Nonce            string `json:"nonce"`
	CreatedAtEpoch   int64  `json:"created_at_epoch"`
}

func toWire(e *syncengine.RelayEntry) relayEntryWire {
	return relayEntryWire{
		ID:               e.ID,
		SenderDeviceID:   string(e.SenderDeviceID),
		EncryptedPayload: base64.StdEncoding.EncodeToString(e.EncryptedPayload),
		Nonce:            base64.StdEncoding.EncodeToString(e.Nonce),
		CreatedAtEpoch:   e.CreatedAtEpoch,
	}
}

func (s *Server) httpPickup(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	userID := r.URL.Query().Get("user_id")
	if deviceID == "" || userID == "" {
		s.writeError(w, http.StatusBadRequest, "device_id and user_id are required")
		return
	}

	entries := s.store.Pickup(userID, syncengine.DeviceID(deviceID))
	wire := make([]relayEntryWire, 0, len(entries))
	for _, e := range entries {
		wire = append(wire, toWire(e))
	}
	s.writeJSON(w, http.StatusOK, relayPickupResponse{Entries: wire, Count: len(wire)})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("write json response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"status": "error", "message": message})
}

// relayWSFrame mirrors syncengine.RelayClient's wire frame shape.
type relayWSFrame struct {
	Type          string                   `json:"type"`
	Entry         *syncengine.RelayEntry   `json:"entry,omitempty"`
	UserID        string                   `json:"user_id,omitempty"`
	ExcludeDevice syncengine.DeviceID      `json:"exclude_device,omitempty"`
	Entries       []*syncengine.RelayEntry `json:"entries,omitempty"`
}

// websocketHandler upgrades the connection, registers it under its
// announced user_id/device_id, delivers any queued entries immediately,
// then loops reading store frames until the client disconnects.
func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	deviceID := syncengine.DeviceID(r.URL.Query().Get("device_id"))
	userID := r.URL.Query().Get("user_id")
	if deviceID == "" || userID == "" {
		s.writeError(w, http.StatusBadRequest, "device_id and user_id are required")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	wc := &wsConn{conn: conn, deviceID: deviceID}
	s.register(userID, wc)
	defer s.unregister(userID, wc)

	if pending := s.store.Pickup(userID, deviceID); len(pending) > 0 {
		if err := wc.writeJSON(relayWSFrame{Type: "entries", Entries: pending}); err != nil {
			s.logger.Warn("relay initial pickup send failed", "error", err)
		}
	}

	for {
		var frame relayWSFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		switch frame.Type {
		case "store":
			if frame.Entry == nil {
				continue
			}
			frame.Entry.SenderDeviceID = deviceID
			frame.Entry.UserID = userID
			id := s.store.Store(frame.Entry)
			frame.Entry.ID = id
			s.broadcast(userID, deviceID, frame.Entry)
		case "ping":
			_ = wc.writeJSON(relayWSFrame{Type: "pong"})
		default:
			s.logger.Warn("relay websocket unknown frame type", "type", frame.Type)
		}
	}
}

func (s *Server) register(userID string, wc *wsConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[userID] = append(s.conns[userID], wc)
}

func (s *Server) unregister(userID string, wc *wsConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	peers := s.conns[userID]
	for i, p := range peers {
		if p == wc {
			s.conns[userID] = append(peers[:i], peers[i+1:]...)
			break
		}
	}
	if len(s.conns[userID]) == 0 {
		delete(s.conns, userID)
	}
	_ = wc.conn.Close()
}

// broadcast fans entry out to every other live connection on userID,
// excluding the sender — the same self-echo suppression the relay
// client and coordinator apply on the receiving end.
func (s *Server) broadcast(userID string, sender syncengine.DeviceID, entry *syncengine.RelayEntry) {
	s.mu.Lock()
	peers := append([]*wsConn(nil), s.conns[userID]...)
	s.mu.Unlock()

	for _, p := range peers {
		if p.deviceID == sender {
			continue
		}
		if err := p.writeJSON(relayWSFrame{Type: "notify", Entry: entry}); err != nil {
			s.logger.Warn("relay broadcast send failed", "device_id", string(p.deviceID), "error", err)
		}
	}
}
