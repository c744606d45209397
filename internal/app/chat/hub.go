package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"buzzchat/internal/app/docstore"
	"buzzchat/internal/app/user"
	"buzzchat/internal/pkg/logx"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const presenceWriteTimeout = 5 * time.Second

// ErrHubClosed is returned by Register once the hub stopped.
var ErrHubClosed = errors.New("chat: hub closed")

// Peer is one live connection as seen by the Hub.
type Peer interface {
	UserID() string
	// Deliver queues env without blocking and reports whether it was queued.
	Deliver(env Envelope) bool
	// Kick closes the connection with a WebSocket close code.
	Kick(code int, reason string)
}

type registration struct {
	peer Peer
	done chan struct{}
}

// Hub tracks the live connections of every user and keeps the online flag
// of their user documents in step: the first connection of a user sets it,
// the last disconnect clears it.
type Hub struct {
	store docstore.Store

	// a channel for peers joining.
	register chan registration

	// a channel for peers leaving.
	unregister chan Peer

	// closed when Run returns.
	stopped chan struct{}

	// mu protects clients.
	mu      sync.RWMutex
	clients map[string]map[Peer]struct{}

	logger zerolog.Logger
}

// NewHub returns a hub writing presence to store. Call Run to start it.
func NewHub(store docstore.Store) *Hub {
	return &Hub{
		store:      store,
		register:   make(chan registration),
		unregister: make(chan Peer),
		stopped:    make(chan struct{}),
		clients:    make(map[string]map[Peer]struct{}),
		logger:     logx.Component("hub"),
	}
}

// Run processes joins and leaves until ctx is done, then marks every
// connected user offline and closes their connections.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	for {
		select {
		case r := <-h.register:
			h.add(r.peer)
			close(r.done)

		case p := <-h.unregister:
			h.remove(p)

		case <-ctx.Done():
			h.shutdown()
			return
		}
	}
}

// Register adds p. It returns once p counts as online.
func (h *Hub) Register(p Peer) error {
	r := registration{peer: p, done: make(chan struct{})}
	select {
	case h.register <- r:
	case <-h.stopped:
		return ErrHubClosed
	}
	<-r.done
	return nil
}

// Unregister removes p. Unknown peers are ignored.
func (h *Hub) Unregister(p Peer) {
	select {
	case h.unregister <- p:
	case <-h.stopped:
	}
}

// IsOnline reports whether userID has at least one live connection.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// OnlineUsers returns the ids of connected users, sorted.
func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Notify delivers env to every connection of userID and returns how many accepted it.
func (h *Hub) Notify(userID string, env Envelope) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for p := range h.clients[userID] {
		if p.Deliver(env) {
			n++
		}
	}
	return n
}

func (h *Hub) add(p Peer) {
	id := p.UserID()

	h.mu.Lock()
	conns, ok := h.clients[id]
	if !ok {
		conns = make(map[Peer]struct{})
		h.clients[id] = conns
	}
	conns[p] = struct{}{}
	n := len(conns)
	h.mu.Unlock()

	h.logger.Info().Str("user_id", id).Int("connections", n).Msg("Client joined.")
	if n == 1 {
		h.setOnline(id, true)
	}
}

func (h *Hub) remove(p Peer) {
	id := p.UserID()

	h.mu.Lock()
	conns, ok := h.clients[id]
	if ok {
		if _, known := conns[p]; !known {
			ok = false
		}
	}
	if !ok {
		h.mu.Unlock()
		h.logger.Debug().Str("user_id", id).Msg("Ignoring unregister for unknown connection.")
		return
	}
	delete(conns, p)
	last := len(conns) == 0
	if last {
		delete(h.clients, id)
	}
	h.mu.Unlock()

	h.logger.Info().Str("user_id", id).Bool("last", last).Msg("Client left.")
	if last {
		h.setOnline(id, false)
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]map[Peer]struct{})
	h.mu.Unlock()

	h.logger.Info().Int("users", len(clients)).Msg("Hub shutting down.")
	for id, conns := range clients {
		for p := range conns {
			p.Kick(websocket.CloseGoingAway, "Server is shutting down.")
		}
		h.setOnline(id, false)
	}
}

func (h *Hub) setOnline(userID string, online bool) {
	ctx, cancel := context.WithTimeout(context.Background(), presenceWriteTimeout)
	defer cancel()

	err := h.store.UpdateDoc(ctx, user.Collection, userID, docstore.Fields{"online": online})
	if err != nil {
		h.logger.Warn().Err(err).Str("user_id", userID).Bool("online", online).Msg("Failed to update presence.")
	}
}
