package server

import (
	"sync"

	"github.com/google/uuid"
	"github.com/siohaza/bombard/internal/network"
)

type client struct {
	conn     *network.Conn
	playerID uint32
	joined   bool
}

// registry tracks live connections and the player each one controls. It has its own
// lock, taken after the match lock when both are needed.
type registry struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*client
}

func newRegistry() *registry {
	return &registry{
		clients: make(map[uuid.UUID]*client),
	}
}

func (r *registry) add(conn *network.Conn) {
	r.mu.Lock()
	r.clients[conn.ID()] = &client{conn: conn}
	r.mu.Unlock()
}

func (r *registry) remove(id uuid.UUID) {
	r.mu.Lock()
	delete(r.clients, id)
	r.mu.Unlock()
}

func (r *registry) bind(id uuid.UUID, playerID uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok || c.joined {
		return false
	}
	c.playerID = playerID
	c.joined = true
	return true
}

func (r *registry) playerID(id uuid.UUID) (uint32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[id]
	if !ok || !c.joined {
		return 0, false
	}
	return c.playerID, true
}

func (r *registry) conns() []*network.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*network.Conn, 0, len(r.clients))
	for _, c := range r.clients {
		conns = append(conns, c.conn)
	}
	return conns
}

func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

func (r *registry) closeAll() {
	for _, conn := range r.conns() {
		conn.Close()
	}
}
