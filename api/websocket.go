package api

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/young-rocks/aptos-core/log"
)

// EpochHub fans a new_epoch notification out to every connected WebSocket
// subscriber (SPEC_FULL.md §4.7). Events reach it only through
// Server.NotifyNewEpoch; core.BlockDriver does not call into this package,
// it reports a new_epoch through BlockResult.ShouldRestartExecution. The hub
// itself is transport-only — it carries no opinion about when a new_epoch
// fires, that decision stays in core.BlockDriver.
type EpochHub struct {
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[*websocket.Conn]struct{}
}

func NewEpochHub() *EpochHub {
	return &EpochHub{
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		subs:     make(map[*websocket.Conn]struct{}),
	}
}

// EpochEvent is the payload pushed to every subscriber.
type EpochEvent struct {
	StoppedAt int    `json:"stoppedAt"`
	Reason    string `json:"reason"`
}

// ServeHTTP upgrades the connection and registers it as a subscriber until
// the client disconnects.
func (h *EpochHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("epoch feed upgrade failed", "err", err)
		return
	}
	h.mu.Lock()
	h.subs[conn] = struct{}{}
	h.mu.Unlock()

	// Drain and discard anything the client sends — this feed is
	// publish-only. Returning from the read loop means the peer closed.
	go func() {
		defer h.unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *EpochHub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.subs, conn)
	h.mu.Unlock()
	conn.Close()
}

// Broadcast pushes ev to every currently-connected subscriber, dropping (and
// closing) any connection whose write fails rather than letting one slow
// subscriber stall the rest.
func (h *EpochHub) Broadcast(ev EpochEvent) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.subs))
	for c := range h.subs {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		if err := c.WriteJSON(ev); err != nil {
			log.Debug("dropping epoch feed subscriber", "err", err)
			h.unregister(c)
		}
	}
}
