package spectate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufSize    = 32
)

type PlayerView struct {
	ID          uint32  `msgpack:"id" json:"id"`
	Name        string  `msgpack:"name" json:"name"`
	HP          int32   `msgpack:"hp" json:"hp"`
	Alive       bool    `msgpack:"alive" json:"alive"`
	MyTurn      bool    `msgpack:"my_turn" json:"my_turn"`
	FacingRight bool    `msgpack:"facing_right" json:"facing_right"`
	X           float32 `msgpack:"x" json:"x"`
	Y           float32 `msgpack:"y" json:"y"`
	Angle       float32 `msgpack:"angle" json:"angle"`
	Power       float32 `msgpack:"power" json:"power"`
}

type ProjectileView struct {
	X  float32 `msgpack:"x" json:"x"`
	Y  float32 `msgpack:"y" json:"y"`
	VX float32 `msgpack:"vx" json:"vx"`
	VY float32 `msgpack:"vy" json:"vy"`
}

type ExplosionView struct {
	X      float32 `msgpack:"x" json:"x"`
	Y      float32 `msgpack:"y" json:"y"`
	Radius float32 `msgpack:"radius" json:"radius"`
}

// Frame is what spectators see each tick.
type Frame struct {
	MatchID         uint32           `msgpack:"match_id" json:"match_id"`
	Tick            uint32           `msgpack:"tick" json:"tick"`
	State           string           `msgpack:"state" json:"state"`
	Map             string           `msgpack:"map" json:"map"`
	TurnTimer       float32          `msgpack:"turn_timer" json:"turn_timer"`
	Wind            float32          `msgpack:"wind" json:"wind"`
	TerrainModified bool             `msgpack:"terrain_modified" json:"terrain_modified"`
	Explosion       *ExplosionView   `msgpack:"explosion,omitempty" json:"explosion,omitempty"`
	Players         []PlayerView     `msgpack:"players" json:"players"`
	Projectiles     []ProjectileView `msgpack:"projectiles" json:"projectiles"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Hub streams msgpack encoded frames to websocket spectators and serves the latest
// frame as JSON on /status.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	last    Frame
	closed  bool

	address  string
	server   *http.Server
	upgrader websocket.Upgrader
	logger   *slog.Logger
	wg       sync.WaitGroup
}

func NewHub(address string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		address: address,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/spectate", h.handleSpectate)
	mux.HandleFunc("/status", h.handleStatus)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	return mux
}

func (h *Hub) Start() error {
	ln, err := net.Listen("tcp", h.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.address, err)
	}

	h.server = &http.Server{
		Handler:           h.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("spectator server failed", "error", err)
		}
	}()

	h.logger.Info("spectator feed started", "address", ln.Addr().String())
	return nil
}

// Stop refuses new spectators before shutting the listener down, so every pump that
// was started is counted before the wait.
func (h *Hub) Stop(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	var err error
	if h.server != nil {
		err = h.server.Shutdown(ctx)
	}

	h.mu.Lock()
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
	h.mu.Unlock()

	h.wg.Wait()
	return err
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Last() Frame {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last
}

// Publish records f as the latest frame and fans it out. Spectators whose buffer is
// full miss the frame.
func (h *Hub) Publish(f Frame) {
	h.mu.Lock()
	h.last = f
	if len(h.clients) == 0 {
		h.mu.Unlock()
		return
	}
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	data, err := msgpack.Marshal(&f)
	if err != nil {
		h.logger.Error("failed to encode spectator frame", "error", err)
		return
	}

	for _, c := range targets {
		select {
		case c.send <- data:
		case <-c.done:
		default:
		}
	}
}

func (h *Hub) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.Last()); err != nil {
		h.logger.Debug("failed to write status", "error", err)
	}
}

func (h *Hub) handleSpectate(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("spectator upgrade failed", "error", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufSize),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.wg.Add(1)
	h.mu.Unlock()
	h.logger.Debug("spectator connected", "remote", r.RemoteAddr)

	go func() {
		defer h.wg.Done()
		h.writePump(c)
	}()
	h.readPump(c)
}

// readPump discards everything the spectator sends and notices when it leaves.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("spectator read error", "error", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
