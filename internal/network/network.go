package network

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/siohaza/bombard/internal/protocol"
)

const DefaultSendQueue = 64

var (
	ErrSendQueueFull = errors.New("send queue full")
	ErrClosed        = errors.New("connection closed")
	ErrNotStarted    = errors.New("server not started")
)

type Server struct {
	listener  net.Listener
	address   string
	sendQueue int
	logger    *slog.Logger
}

func NewServer(address string, sendQueue int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if sendQueue <= 0 {
		sendQueue = DefaultSendQueue
	}

	return &Server{
		address:   address,
		sendQueue: sendQueue,
		logger:    logger,
	}
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}
	s.listener = ln

	s.logger.Info("listener started", "address", ln.Addr().String(), "send_queue", s.sendQueue)
	return nil
}

func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Accept blocks until a client connects or the listener is closed.
func (s *Server) Accept() (*Conn, error) {
	if s.listener == nil {
		return nil, ErrNotStarted
	}

	nc, err := s.listener.Accept()
	if err != nil {
		return nil, err
	}

	c := NewConn(nc, s.sendQueue, s.logger)
	s.logger.Debug("client connected", "conn", c.ID(), "remote", c.RemoteAddr())
	return c, nil
}

func (s *Server) Stop() {
	if s.listener != nil {
		s.listener.Close()
		s.logger.Info("listener stopped")
	}
}

// Conn is one client stream. Reads happen on the handler goroutine; writes are
// queued and drained by WritePump so a slow client never blocks the sender.
type Conn struct {
	id     uuid.UUID
	conn   net.Conn
	reader *bufio.Reader
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func NewConn(nc net.Conn, sendQueue int, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	if sendQueue <= 0 {
		sendQueue = DefaultSendQueue
	}

	return &Conn{
		id:     uuid.New(),
		conn:   nc,
		reader: bufio.NewReader(nc),
		send:   make(chan []byte, sendQueue),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (c *Conn) ID() uuid.UUID {
	return c.id
}

func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *Conn) ReadFrame() (protocol.Frame, error) {
	return protocol.ReadFrame(c.reader)
}

// Enqueue hands a fully encoded frame to the writer without blocking.
func (c *Conn) Enqueue(frame []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrSendQueueFull
	}
}

// EnqueueTimeout waits up to timeout for room in the send queue. It is for replies
// that must not be dropped behind a backlog of snapshots.
func (c *Conn) EnqueueTimeout(frame []byte, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrClosed
	case <-timer.C:
		return ErrSendQueueFull
	}
}

func (c *Conn) SendPacket(packetType protocol.PacketType, msg any) error {
	frame, err := protocol.Encode(packetType, msg)
	if err != nil {
		return err
	}
	return c.Enqueue(frame)
}

func (c *Conn) SendPacketTimeout(packetType protocol.PacketType, msg any, timeout time.Duration) error {
	frame, err := protocol.Encode(packetType, msg)
	if err != nil {
		return err
	}
	return c.EnqueueTimeout(frame, timeout)
}

// WritePump writes queued frames until the connection closes. A write error closes
// the connection, which in turn ends the reader.
func (c *Conn) WritePump() error {
	for {
		select {
		case <-c.done:
			return nil
		case frame := <-c.send:
			if _, err := c.conn.Write(frame); err != nil {
				c.logger.Debug("write failed", "conn", c.id, "error", err)
				c.Close()
				return nil
			}
		}
	}
}

func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *Conn) Done() <-chan struct{} {
	return c.done
}
