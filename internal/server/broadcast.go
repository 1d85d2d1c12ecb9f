package server

import (
	"errors"

	"github.com/siohaza/bombard/internal/network"
	"github.com/siohaza/bombard/internal/ping"
	"github.com/siohaza/bombard/internal/protocol"
	"github.com/siohaza/bombard/internal/spectate"
)

// tickOnce advances the match by dt and sends the resulting snapshot. The match lock
// covers the step and the snapshot build only; every send happens after it is released.
func (s *Server) tickOnce(dt float32) {
	s.match.Lock()
	s.match.Update(dt)
	snapshot, view := s.buildSnapshot()
	s.match.Unlock()

	s.broadcastSnapshot(&snapshot)

	if s.spectate != nil {
		s.spectate.Publish(view)
	}

	if s.pingHandler != nil {
		s.pingHandler.UpdateServerInfo(func(info *ping.ServerInfo) {
			info.PlayersCurrent = len(view.Players)
			info.RoomState = view.State
			info.UptimeSeconds = int64(s.Uptime().Seconds())
			if view.Map != "" {
				info.Map = view.Map
			}
		})
	}
}

// buildSnapshot must be called with the match lock held. It consumes the one-shot
// terrain and explosion signals.
func (s *Server) buildSnapshot() (protocol.StateSnapshot, spectate.Frame) {
	s.tick++

	snapshot := protocol.StateSnapshot{
		MatchID:   s.config.Server.MatchID,
		Tick:      s.tick,
		RoomState: uint32(s.match.State()),
		TurnTimer: s.match.TurnTimer(),
	}
	view := spectate.Frame{
		MatchID:   snapshot.MatchID,
		Tick:      snapshot.Tick,
		State:     s.match.State().String(),
		Map:       s.match.MapName(),
		TurnTimer: snapshot.TurnTimer,
		Wind:      s.match.Wind(),
	}

	if s.match.ConsumeTerrainModified() {
		snapshot.TerrainModified = 1
		view.TerrainModified = true
	}

	if exp, ok := s.match.ConsumeLastExplosion(); ok {
		snapshot.HasExplosion = 1
		snapshot.ExplosionX = exp.X
		snapshot.ExplosionY = exp.Y
		snapshot.ExplosionRadius = exp.Radius
		view.Explosion = &spectate.ExplosionView{X: exp.X, Y: exp.Y, Radius: exp.Radius}
	}

	players := s.match.Players()
	for i, p := range players {
		if i >= protocol.MaxPlayers {
			break
		}
		snapshot.Players[i] = protocol.PlayerState{
			ID:     p.ID,
			HP:     p.HP,
			Alive:  protocol.BoolToUint8(p.IsAlive()),
			MyTurn: protocol.BoolToUint8(p.MyTurn),
			Orient: protocol.BoolToUint8(p.FacingRight),
			X:      p.Position.X,
			Y:      p.Position.Y,
			Angle:  p.Angle,
			Power:  p.Power,
		}
		snapshot.PlayerCount++
		view.Players = append(view.Players, spectate.PlayerView{
			ID:          p.ID,
			Name:        p.Name,
			HP:          p.HP,
			Alive:       p.IsAlive(),
			MyTurn:      p.MyTurn,
			FacingRight: p.FacingRight,
			X:           p.Position.X,
			Y:           p.Position.Y,
			Angle:       p.Angle,
			Power:       p.Power,
		})
	}

	for _, proj := range s.match.Projectiles() {
		if !proj.Active {
			continue
		}
		if int(snapshot.ProjectileCount) >= protocol.MaxProjectiles {
			break
		}
		snapshot.Projectiles[snapshot.ProjectileCount] = protocol.ProjectileState{
			Active: 1,
			X:      proj.Position.X,
			Y:      proj.Position.Y,
			VX:     proj.Velocity.X,
			VY:     proj.Velocity.Y,
		}
		snapshot.ProjectileCount++
		view.Projectiles = append(view.Projectiles, spectate.ProjectileView{
			X:  proj.Position.X,
			Y:  proj.Position.Y,
			VX: proj.Velocity.X,
			VY: proj.Velocity.Y,
		})
	}

	return snapshot, view
}

// broadcastSnapshot encodes once and queues the frame for every connection. A full or
// closed queue only costs that client this snapshot.
func (s *Server) broadcastSnapshot(snapshot *protocol.StateSnapshot) {
	frame, err := protocol.Encode(protocol.PacketTypeResIngameState, snapshot)
	if err != nil {
		s.logger.Error("failed to encode snapshot", "error", err)
		return
	}

	for _, conn := range s.registry.conns() {
		if err := conn.Enqueue(frame); err != nil {
			if errors.Is(err, network.ErrSendQueueFull) {
				s.logger.Debug("dropped snapshot for slow client", "conn", conn.ID(), "tick", snapshot.Tick)
			}
		}
	}
}
