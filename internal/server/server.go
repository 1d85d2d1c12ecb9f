package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/siohaza/bombard/internal/bans"
	"github.com/siohaza/bombard/internal/callbacks"
	"github.com/siohaza/bombard/internal/match"
	"github.com/siohaza/bombard/internal/network"
	"github.com/siohaza/bombard/internal/physics"
	"github.com/siohaza/bombard/internal/ping"
	"github.com/siohaza/bombard/internal/protocol"
	"github.com/siohaza/bombard/internal/script"
	"github.com/siohaza/bombard/internal/spectate"
	"github.com/siohaza/bombard/internal/validation"
	"github.com/siohaza/bombard/pkg/config"
	"github.com/siohaza/bombard/pkg/terrain"
	"github.com/siohaza/bombard/pkg/terraingen"

	"golang.org/x/sync/errgroup"
)

const (
	joinReplyTimeout   = 2 * time.Second
	banCleanupInterval = time.Minute
)

type Server struct {
	config      *config.Config
	network     *network.Server
	match       *match.Match
	registry    *registry
	bans        *bans.Manager
	callbacks   *callbacks.CallbackChain
	rules       *script.Rules
	pingHandler *ping.Handler
	spectate    *spectate.Hub
	logger      *slog.Logger
	tickRate    time.Duration
	startTime   time.Time

	// tick is guarded by the match lock.
	tick uint32

	ctx      context.Context
	cancel   context.CancelFunc
	group    *errgroup.Group
	stopOnce sync.Once
}

func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	ctx, cancel := context.WithCancel(context.Background())

	srv := &Server{
		config:    cfg,
		network:   network.NewServer(fmt.Sprintf(":%d", cfg.Server.Port), cfg.Server.SendQueue, logger),
		match:     match.New(matchConfig(cfg)),
		registry:  newRegistry(),
		callbacks: callbacks.NewCallbackChain(),
		logger:    logger,
		tickRate:  time.Second / time.Duration(cfg.Server.TickRate),
		ctx:       ctx,
		cancel:    cancel,
	}

	srv.callbacks.Register(callbacks.NewLogCallbacks(logger))

	if cfg.Server.BansFile != "" {
		srv.bans = bans.NewManager(cfg.Server.BansFile)
		if err := srv.bans.Load(); err != nil {
			logger.Warn("failed to load bans", "error", err)
		}
	}

	if cfg.Script.Path != "" {
		rules, err := script.Load(cfg.Script.Path, srv.match, logger)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to load rules script: %w", err)
		}
		srv.rules = rules
		srv.callbacks.Register(rules)
		srv.match.SetWindSource(rules.NextWind)
		logger.Info("loaded match rules", "path", cfg.Script.Path, "name", rules.Name())
	}
	srv.match.SetCallbacks(srv.callbacks)

	if cfg.Ping.Enabled {
		srv.pingHandler = ping.NewHandler(fmt.Sprintf(":%d", cfg.PingPort()), ping.ServerInfo{
			Name:       cfg.Server.Name,
			MatchID:    cfg.Server.MatchID,
			PlayersMax: cfg.Server.MaxPlayers,
			Map:        cfg.Server.DefaultMap,
			RoomState:  match.WaitingForPlayers.String(),
		}, logger)
	}

	if cfg.Spectator.Enabled {
		srv.spectate = spectate.NewHub(cfg.Spectator.Address, logger)
	}

	return srv, nil
}

func matchConfig(cfg *config.Config) match.Config {
	g := cfg.Game
	mc := match.DefaultConfig()
	mc.Capacity = cfg.Server.MaxPlayers
	mc.TurnTime = float32(g.TurnTime)
	mc.MaxFrameDt = float32(g.MaxFrameDt)
	mc.WindRange = float32(g.WindRange)
	mc.MoveSpeed = float32(g.MoveSpeed)
	mc.Angle = float32(g.InitialAngle)
	mc.Env = physics.Env{
		Gravity:         float32(g.Gravity),
		GameSpeed:       float32(g.GameSpeed),
		MaxSimStep:      float32(g.MaxSimStep),
		HitRadius:       float32(g.HitRadius),
		HitDamage:       int32(g.HitDamage),
		ExplosionRadius: float32(g.ExplosionRadius),
	}
	return mc
}

// Start binds the game listener and runs the accept and tick loops. A bind failure
// is returned before any client is accepted.
func (s *Server) Start() error {
	if err := s.network.Start(); err != nil {
		return fmt.Errorf("failed to start network: %w", err)
	}

	if s.pingHandler != nil {
		if err := s.pingHandler.Start(); err != nil {
			s.logger.Warn("failed to start ping handler", "error", err)
			s.pingHandler = nil
		}
	}

	if s.spectate != nil {
		if err := s.spectate.Start(); err != nil {
			s.logger.Warn("failed to start spectator feed", "error", err)
			s.spectate = nil
		}
	}

	s.startTime = time.Now()

	group, _ := errgroup.WithContext(s.ctx)
	s.group = group
	group.Go(s.acceptLoop)
	group.Go(s.run)

	s.logger.Info("server started", "name", s.config.Server.Name, "address", s.network.Addr().String(), "match", s.config.Server.MatchID)
	return nil
}

// Stop closes the listener and every client, waits for all tasks and then releases
// the rules VM and the auxiliary listeners.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("stopping server")

		s.cancel()
		s.network.Stop()
		s.registry.closeAll()

		if s.group != nil {
			if err := s.group.Wait(); err != nil {
				s.logger.Error("server task failed", "error", err)
			}
		}

		if s.rules != nil {
			s.match.Lock()
			s.rules.Close()
			s.match.Unlock()
		}

		if s.spectate != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := s.spectate.Stop(ctx); err != nil {
				s.logger.Warn("spectator feed shutdown", "error", err)
			}
			cancel()
		}

		if s.pingHandler != nil {
			s.pingHandler.Stop()
		}

		s.logger.Info("server stopped")
	})
}

func (s *Server) Addr() string {
	if addr := s.network.Addr(); addr != nil {
		return addr.String()
	}
	return ""
}

func (s *Server) Match() *match.Match {
	return s.match
}

func (s *Server) Uptime() time.Duration {
	if s.startTime.IsZero() {
		return 0
	}
	return time.Since(s.startTime)
}

func (s *Server) acceptLoop() error {
	for {
		conn, err := s.network.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, network.ErrNotStarted) {
				return err
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("accept failed", "error", err)
			select {
			case <-s.ctx.Done():
				return nil
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		if s.rejectBanned(conn) {
			continue
		}

		s.registry.add(conn)
		select {
		case <-s.ctx.Done():
			s.registry.remove(conn.ID())
			conn.Close()
			return nil
		default:
		}
		s.logger.Info("client connected", "conn", conn.ID(), "remote", conn.RemoteAddr())

		s.group.Go(conn.WritePump)
		s.group.Go(func() error {
			s.handleClient(conn)
			return nil
		})
	}
}

func (s *Server) rejectBanned(conn *network.Conn) bool {
	if s.bans == nil {
		return false
	}
	host, _, err := net.SplitHostPort(conn.RemoteAddr())
	if err != nil {
		return false
	}
	if banned, ban := s.bans.IsBanned(host); banned {
		s.logger.Info("banned address refused", "remote", conn.RemoteAddr(), "reason", ban.Reason)
		conn.Close()
		return true
	}
	return false
}

func (s *Server) Bans() *bans.Manager {
	return s.bans
}

func (s *Server) run() error {
	ticker := time.NewTicker(s.tickRate)
	defer ticker.Stop()

	var cleanup <-chan time.Time
	if s.bans != nil {
		cleanupTicker := time.NewTicker(banCleanupInterval)
		defer cleanupTicker.Stop()
		cleanup = cleanupTicker.C
	}

	last := time.Now()
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("server context cancelled, exiting run loop")
			return nil

		case now := <-ticker.C:
			dt := float32(now.Sub(last).Seconds())
			last = now
			s.tickOnce(dt)

		case <-cleanup:
			s.cleanupBans()
		}
	}
}

func (s *Server) cleanupBans() {
	if err := s.bans.Cleanup(); err != nil {
		s.logger.Warn("failed to clean up bans", "error", err)
		return
	}
	s.logger.Debug("expired bans removed", "active", len(s.bans.GetAll()))
}

// handleClient reads and dispatches frames until the stream fails or the client
// logs out. The player stays in the match after its connection goes away.
func (s *Server) handleClient(conn *network.Conn) {
	defer func() {
		s.registry.remove(conn.ID())
		conn.Close()
		s.logger.Info("client disconnected", "conn", conn.ID())
	}()

	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug("read failed", "conn", conn.ID(), "error", err)
			}
			return
		}

		switch frame.Type {
		case protocol.PacketTypeReqLogout:
			s.logger.Info("client logged out", "conn", conn.ID())
			return

		case protocol.PacketTypeReqIngameJoin:
			var req protocol.JoinRequest
			if err := protocol.Unmarshal(frame.Payload, &req); err != nil {
				s.logger.Warn("malformed join request", "conn", conn.ID(), "error", err)
				return
			}
			s.handleJoin(conn, &req)

		case protocol.PacketTypeReqIngameInput:
			var req protocol.InputRequest
			if err := protocol.Unmarshal(frame.Payload, &req); err != nil {
				s.logger.Warn("malformed input request", "conn", conn.ID(), "error", err)
				return
			}
			s.handleInput(conn, &req)

		default:
			s.logger.Debug("ignoring packet", "conn", conn.ID(), "type", frame.Type)
		}
	}
}

// handleJoin always answers with the hosted match id, the same one every snapshot
// carries. The id in the request is ignored.
func (s *Server) handleJoin(conn *network.Conn, req *protocol.JoinRequest) {
	resp := protocol.JoinResponse{
		MatchID:  s.config.Server.MatchID,
		PlayerID: protocol.InvalidPlayerID,
	}

	if s.bans != nil {
		if banned, ban := s.bans.IsUserBanned(req.UserID); banned {
			s.logger.Info("banned user refused", "conn", conn.ID(), "user", req.UserID)
			resp.SetMessage("Banned: %s", ban.Reason)
			s.sendJoinResponse(conn, &resp)
			return
		}
	}

	if _, joined := s.registry.playerID(conn.ID()); joined {
		resp.SetMessage("Already joined")
		s.sendJoinResponse(conn, &resp)
		return
	}

	mapName := req.GetMapName()
	if mapName == "" {
		mapName = s.config.Server.DefaultMap
	}

	s.match.Lock()
	if !s.match.HasTerrain() {
		grid, display, err := s.loadMap(mapName)
		if err != nil {
			s.match.Unlock()
			s.logger.Warn("failed to load map", "map", mapName, "error", err)
			resp.SetMessage("Failed to load map: %s", mapName)
			s.sendJoinResponse(conn, &resp)
			return
		}
		for _, slot := range buriedSpawns(grid) {
			s.logger.Warn("spawn point is inside terrain", "map", display, "slot", slot)
		}
		s.match.SetTerrain(grid, display)
		s.logger.Info("map loaded", "map", display, "width", grid.Width(), "height", grid.Height())
	}

	p, err := s.match.AddPlayer()
	if err == nil {
		s.registry.bind(conn.ID(), p.ID)
	}
	s.match.Unlock()

	if err != nil {
		if errors.Is(err, match.ErrRoomFull) {
			resp.SetMessage("Room full")
		} else {
			resp.SetMessage("Join failed: %v", err)
		}
		s.logger.Info("join rejected", "conn", conn.ID(), "reason", err)
		s.sendJoinResponse(conn, &resp)
		return
	}

	resp.Success = true
	resp.PlayerID = p.ID
	resp.SetMessage("Joined match %d as player %d", resp.MatchID, p.ID)
	s.logger.Info("player joined", "conn", conn.ID(), "player", p.ID, "user", req.UserID)
	s.sendJoinResponse(conn, &resp)
}

// sendJoinResponse waits for queue room so an admission result is not lost behind
// queued snapshots.
func (s *Server) sendJoinResponse(conn *network.Conn, resp *protocol.JoinResponse) {
	if err := conn.SendPacketTimeout(protocol.PacketTypeResIngameJoin, resp, joinReplyTimeout); err != nil {
		s.logger.Warn("failed to queue join response", "conn", conn.ID(), "error", err)
	}
}

// handleInput routes a command to the match under the sender's registered player
// id. The id carried in the payload is not trusted.
func (s *Server) handleInput(conn *network.Conn, req *protocol.InputRequest) {
	if !req.Command.Valid() {
		s.logger.Debug("dropping unknown command", "conn", conn.ID(), "command", req.Command)
		return
	}

	if !validation.IsFinite(req.Value) {
		s.logger.Debug("dropping input with bad value", "conn", conn.ID(), "command", req.Command, "value", req.Value)
		return
	}

	playerID, ok := s.registry.playerID(conn.ID())
	if !ok {
		s.logger.Debug("dropping input from unjoined client", "conn", conn.ID())
		return
	}

	s.match.Lock()
	accepted := s.match.HandleInput(playerID, req.Command, req.Value)
	s.match.Unlock()

	if !accepted {
		s.logger.Debug("dropping out of turn input", "player", playerID, "command", req.Command, "seq", req.Seq)
	}
}

// loadMap resolves a map name to a grid. Generated names never touch the disk; file
// names are looked up in the maps directory and default to the .txt extension.
func (s *Server) loadMap(name string) (*terrain.Grid, string, error) {
	if !validation.IsValidMapName(name) {
		return nil, "", fmt.Errorf("invalid map name %q", name)
	}
	if terraingen.IsGenerated(name) {
		return terraingen.FromName(name, terraingen.DefaultWidth, terraingen.DefaultHeight)
	}

	file := filepath.Base(name)
	if filepath.Ext(file) == "" {
		file += ".txt"
	}
	grid, err := terrain.Load(filepath.Join(s.config.Server.MapsDir, file))
	if err != nil {
		return nil, "", err
	}
	return grid, file, nil
}

// buriedSpawns lists the spawn slots that start inside or under solid ground.
func buriedSpawns(grid *terrain.Grid) []int {
	var slots []int
	for i, sp := range grid.SpawnPoints() {
		ground := grid.FindGroundLevel(int(sp.X))
		if ground >= 0 && float32(ground) <= sp.Y {
			slots = append(slots, i)
		}
	}
	return slots
}
