package callbacks

import (
	"log/slog"

	"github.com/siohaza/bombard/internal/player"
)

// Callbacks receives match events. Every method runs with the match lock held, so
// implementations must not block or call back into the match's locking API.
type Callbacks interface {
	OnPlayerJoin(p *player.Player)
	OnGameStart(players []*player.Player)
	OnTurnStart(p *player.Player, turn uint32, wind float32)
	OnShot(p *player.Player)
	OnPlayerDamage(victim *player.Player, ownerID uint32, damage int32)
	OnPlayerEliminated(victim *player.Player, ownerID uint32)
	OnGameOver(winner *player.Player)
}

type DefaultCallbacks struct{}

func (d *DefaultCallbacks) OnPlayerJoin(p *player.Player)                                     {}
func (d *DefaultCallbacks) OnGameStart(players []*player.Player)                              {}
func (d *DefaultCallbacks) OnTurnStart(p *player.Player, turn uint32, wind float32)           {}
func (d *DefaultCallbacks) OnShot(p *player.Player)                                           {}
func (d *DefaultCallbacks) OnPlayerDamage(victim *player.Player, ownerID uint32, damage int32) {}
func (d *DefaultCallbacks) OnPlayerEliminated(victim *player.Player, ownerID uint32)          {}
func (d *DefaultCallbacks) OnGameOver(winner *player.Player)                                  {}

type CallbackChain struct {
	callbacks []Callbacks
}

func NewCallbackChain() *CallbackChain {
	return &CallbackChain{
		callbacks: make([]Callbacks, 0),
	}
}

func (c *CallbackChain) Register(cb Callbacks) {
	if cb == nil {
		return
	}
	c.callbacks = append(c.callbacks, cb)
}

func (c *CallbackChain) Len() int {
	return len(c.callbacks)
}

func (c *CallbackChain) OnPlayerJoin(p *player.Player) {
	for _, cb := range c.callbacks {
		cb.OnPlayerJoin(p)
	}
}

func (c *CallbackChain) OnGameStart(players []*player.Player) {
	for _, cb := range c.callbacks {
		cb.OnGameStart(players)
	}
}

func (c *CallbackChain) OnTurnStart(p *player.Player, turn uint32, wind float32) {
	for _, cb := range c.callbacks {
		cb.OnTurnStart(p, turn, wind)
	}
}

func (c *CallbackChain) OnShot(p *player.Player) {
	for _, cb := range c.callbacks {
		cb.OnShot(p)
	}
}

func (c *CallbackChain) OnPlayerDamage(victim *player.Player, ownerID uint32, damage int32) {
	for _, cb := range c.callbacks {
		cb.OnPlayerDamage(victim, ownerID, damage)
	}
}

func (c *CallbackChain) OnPlayerEliminated(victim *player.Player, ownerID uint32) {
	for _, cb := range c.callbacks {
		cb.OnPlayerEliminated(victim, ownerID)
	}
}

func (c *CallbackChain) OnGameOver(winner *player.Player) {
	for _, cb := range c.callbacks {
		cb.OnGameOver(winner)
	}
}

// LogCallbacks reports match events to a structured logger.
type LogCallbacks struct {
	DefaultCallbacks
	logger *slog.Logger
}

func NewLogCallbacks(logger *slog.Logger) *LogCallbacks {
	return &LogCallbacks{logger: logger}
}

func (l *LogCallbacks) OnPlayerJoin(p *player.Player) {
	l.logger.Info("player joined match", "id", p.ID, "name", p.Name, "x", p.Position.X, "y", p.Position.Y)
}

func (l *LogCallbacks) OnGameStart(players []*player.Player) {
	l.logger.Info("game started", "players", len(players))
}

func (l *LogCallbacks) OnTurnStart(p *player.Player, turn uint32, wind float32) {
	l.logger.Debug("turn started", "turn", turn, "player", p.ID, "wind", wind)
}

func (l *LogCallbacks) OnShot(p *player.Player) {
	l.logger.Debug("shot fired", "player", p.ID, "angle", p.Angle, "power", p.Power)
}

func (l *LogCallbacks) OnPlayerDamage(victim *player.Player, ownerID uint32, damage int32) {
	l.logger.Info("player took damage", "victim", victim.ID, "shooter", ownerID, "damage", damage, "hp", victim.HP)
}

func (l *LogCallbacks) OnPlayerEliminated(victim *player.Player, ownerID uint32) {
	l.logger.Info("player eliminated", "victim", victim.ID, "shooter", ownerID)
}

func (l *LogCallbacks) OnGameOver(winner *player.Player) {
	if winner == nil {
		l.logger.Info("game over", "winner", "none")
		return
	}
	l.logger.Info("game over", "winner", winner.ID, "name", winner.Name)
}
