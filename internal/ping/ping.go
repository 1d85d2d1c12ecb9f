package ping

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

const GameVersion = "1.0"

// Handler answers LAN discovery probes on a UDP port: "HELLO" gets "HI" and
// "HELLOLAN" gets the current server info as JSON.
type Handler struct {
	conn          *net.UDPConn
	serverInfo    ServerInfo
	infoMu        sync.RWMutex
	logger        *slog.Logger
	stopChan      chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
	listenAddress string
}

type ServerInfo struct {
	Name           string `json:"name"`
	MatchID        uint32 `json:"match_id"`
	PlayersCurrent int    `json:"players_current"`
	PlayersMax     int    `json:"players_max"`
	Map            string `json:"map"`
	RoomState      string `json:"room_state"`
	GameVersion    string `json:"game_version"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
}

func NewHandler(address string, info ServerInfo, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if info.GameVersion == "" {
		info.GameVersion = GameVersion
	}
	return &Handler{
		serverInfo:    info,
		logger:        logger,
		stopChan:      make(chan struct{}),
		listenAddress: address,
	}
}

func (h *Handler) Start() error {
	addr, err := net.ResolveUDPAddr("udp", h.listenAddress)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}

	h.conn = conn
	h.logger.Info("ping handler started", "address", conn.LocalAddr().String())

	h.wg.Add(1)
	go h.handlePackets()

	return nil
}

func (h *Handler) Addr() net.Addr {
	if h.conn == nil {
		return nil
	}
	return h.conn.LocalAddr()
}

func (h *Handler) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopChan)
		if h.conn != nil {
			h.conn.Close()
		}
		h.wg.Wait()
		h.logger.Info("ping handler stopped")
	})
}

func (h *Handler) UpdateServerInfo(update func(info *ServerInfo)) {
	h.infoMu.Lock()
	update(&h.serverInfo)
	h.infoMu.Unlock()
}

func (h *Handler) ServerInfo() ServerInfo {
	h.infoMu.RLock()
	defer h.infoMu.RUnlock()
	return h.serverInfo
}

func (h *Handler) handlePackets() {
	defer h.wg.Done()
	buffer := make([]byte, 1024)

	for {
		n, addr, err := h.conn.ReadFromUDP(buffer)
		if err != nil {
			select {
			case <-h.stopChan:
				return
			default:
				h.logger.Error("failed to read UDP packet", "error", err)
				continue
			}
		}

		if n > 0 {
			h.handlePacket(buffer[:n], addr)
		}
	}
}

func (h *Handler) handlePacket(data []byte, addr *net.UDPAddr) {
	switch string(data) {
	case "HELLO":
		h.handlePing(addr)
	case "HELLOLAN":
		h.handleLANPing(addr)
	}
}

func (h *Handler) handlePing(addr *net.UDPAddr) {
	if _, err := h.conn.WriteToUDP([]byte("HI"), addr); err != nil {
		h.logger.Error("failed to send ping response", "error", err, "addr", addr)
		return
	}
	h.logger.Debug("sent ping response", "addr", addr)
}

func (h *Handler) handleLANPing(addr *net.UDPAddr) {
	jsonData, err := json.Marshal(h.ServerInfo())
	if err != nil {
		h.logger.Error("failed to marshal server info", "error", err)
		return
	}

	if _, err := h.conn.WriteToUDP(jsonData, addr); err != nil {
		h.logger.Error("failed to send LAN response", "error", err, "addr", addr)
		return
	}
	h.logger.Debug("sent LAN info response", "addr", addr)
}
