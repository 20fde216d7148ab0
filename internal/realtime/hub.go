package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	v1 "ledgerisland/contracts/sync/v1"
)

// Hub maps session ids to their connected clients and fans out
// forced-logout notices. It is intentionally minimal: session state lives
// behind session.Store, the hub only tracks live connections.
//
// Concurrency guarantees:
// - Subscribe/Unsubscribe are safe under concurrent PublishForcedLogout.
// - PublishForcedLogout never blocks (drops under backpressure).
// - Fan-out is panic-safe because Client.Send is never closed by the server.
type Hub struct {
	log *slog.Logger

	mu     sync.RWMutex
	groups map[string]map[string]*Client
}

// NewHub constructs a Hub instance.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:    log,
		groups: make(map[string]map[string]*Client),
	}
}

// Subscribe registers a client under its session id.
func (h *Hub) Subscribe(client *Client) {
	if h == nil || client == nil || client.SessionID == "" || client.ConnID == "" {
		return
	}

	h.mu.Lock()
	g, ok := h.groups[client.SessionID]
	if !ok {
		g = make(map[string]*Client)
		h.groups[client.SessionID] = g
	}
	g[client.ConnID] = client
	h.mu.Unlock()

	wsConnections.Inc()
	h.log.Info("sync.subscribe", "session_id", client.SessionID, "conn_id", client.ConnID)
}

// Unsubscribe removes a client and signals its shutdown.
// Empty groups are pruned so the map does not grow with dead session ids.
func (h *Hub) Unsubscribe(sessionID, connID string) {
	if h == nil || sessionID == "" || connID == "" {
		return
	}

	var cl *Client

	h.mu.Lock()
	if g, ok := h.groups[sessionID]; ok {
		cl = g[connID]
		delete(g, connID)
		if len(g) == 0 {
			delete(h.groups, sessionID)
		}
	}
	h.mu.Unlock()

	// Signal client shutdown after removing from the group.
	// This ordering avoids race windows where a publisher still holds a pointer
	// while the client goroutines are being torn down.
	if cl != nil {
		cl.Close()
		wsConnections.Dec()
		h.log.Info("sync.unsubscribe", "session_id", sessionID, "conn_id", connID)
	}
}

// PublishForcedLogout fans a forced-logout notice out to every connection of
// the given session id. Sessions with no live connections are a no-op; the
// next gate check catches those devices. Non-blocking: a full queue or a
// shutting-down client drops the notice rather than stalling the publisher.
func (h *Hub) PublishForcedLogout(sessionID, reason string) {
	if h == nil || sessionID == "" {
		return
	}

	forceLogoutPublished.Inc()

	payload, _ := json.Marshal(v1.ForceLogoutPayload{SessionID: sessionID, Reason: reason})
	env := newEnvelope(v1.TypeForceLogout, payload, time.Now().UTC())

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, cl := range h.groups[sessionID] {
		if cl == nil {
			continue
		}

		select {
		case <-cl.Done():
			// Skip clients that are shutting down.
			continue
		default:
		}

		select {
		case cl.Send <- env:
			forceLogoutDelivered.Inc()
		default:
			// Drop rather than block every other delivery.
			forceLogoutDropped.Inc()
			h.log.Warn("sync.force_logout.drop", "session_id", sessionID, "conn_id", cl.ConnID)
		}
	}
}

// ConnCount reports the number of live connections for a session id.
func (h *Hub) ConnCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[sessionID])
}
