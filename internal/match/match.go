package match

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/siohaza/bombard/internal/callbacks"
	"github.com/siohaza/bombard/internal/physics"
	"github.com/siohaza/bombard/internal/player"
	"github.com/siohaza/bombard/internal/protocol"
	"github.com/siohaza/bombard/pkg/terrain"
)

type State uint32

const (
	WaitingForPlayers State = iota
	PlayingTurn
	FiringPhase
	GameOver
)

func (s State) String() string {
	switch s {
	case WaitingForPlayers:
		return "waiting_for_players"
	case PlayingTurn:
		return "playing_turn"
	case FiringPhase:
		return "firing_phase"
	case GameOver:
		return "game_over"
	default:
		return fmt.Sprintf("state(%d)", uint32(s))
	}
}

var (
	ErrRoomFull  = errors.New("room full")
	ErrNoTerrain = errors.New("no terrain loaded")
)

type Config struct {
	Capacity   int
	TurnTime   float32
	MaxFrameDt float32
	WindRange  float32
	MoveSpeed  float32
	Angle      float32
	Env        physics.Env
}

func DefaultConfig() Config {
	return Config{
		Capacity:   protocol.MaxPlayers,
		TurnTime:   30,
		MaxFrameDt: 0.1,
		WindRange:  10,
		MoveSpeed:  player.MoveSpeed,
		Angle:      player.InitialAngle,
		Env:        physics.DefaultEnv(),
	}
}

// WindFunc may override the wind drawn at the start of a turn. Returning false keeps
// the random value.
type WindFunc func(turn uint32) (float32, bool)

// Match owns every piece of gameplay state for one duel. None of its methods lock;
// callers hold Lock for the whole of one logical operation.
type Match struct {
	mu sync.Mutex

	cfg         Config
	players     *player.Manager
	projectiles []physics.Projectile
	grid        *terrain.Grid
	mapName     string

	state     State
	turnIndex int
	turn      uint32
	turnTimer float32
	wind      float32
	winner    *player.Player

	terrainModified bool
	lastExplosion   *physics.Explosion

	rng        *rand.Rand
	windSource WindFunc
	callbacks  callbacks.Callbacks
}

func New(cfg Config) *Match {
	if cfg.Capacity <= 0 || cfg.Capacity > protocol.MaxPlayers {
		cfg.Capacity = protocol.MaxPlayers
	}
	return &Match{
		cfg:         cfg,
		players:     player.NewManager(cfg.Capacity),
		projectiles: make([]physics.Projectile, 0, protocol.MaxProjectiles),
		state:       WaitingForPlayers,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		callbacks:   &callbacks.DefaultCallbacks{},
	}
}

func (m *Match) Lock()   { m.mu.Lock() }
func (m *Match) Unlock() { m.mu.Unlock() }

func (m *Match) SetCallbacks(cb callbacks.Callbacks) {
	if cb == nil {
		cb = &callbacks.DefaultCallbacks{}
	}
	m.callbacks = cb
}

func (m *Match) SetWindSource(fn WindFunc) {
	m.windSource = fn
}

func (m *Match) SetRand(rng *rand.Rand) {
	m.rng = rng
}

func (m *Match) Config() Config { return m.cfg }

func (m *Match) HasTerrain() bool { return m.grid != nil }

func (m *Match) Terrain() *terrain.Grid { return m.grid }

func (m *Match) MapName() string { return m.mapName }

func (m *Match) SetTerrain(grid *terrain.Grid, name string) {
	m.grid = grid
	m.mapName = name
}

func (m *Match) MapSize() (int, int) {
	if m.grid == nil {
		return 0, 0
	}
	return m.grid.Width(), m.grid.Height()
}

// AddPlayer places a new player at the spawn point of the next free slot. Even slots
// face right, odd slots face left. The match starts once capacity is reached.
func (m *Match) AddPlayer() (*player.Player, error) {
	if m.players.IsFull() {
		return nil, ErrRoomFull
	}
	if m.grid == nil {
		return nil, ErrNoTerrain
	}

	slot := m.players.Count()
	id := m.players.NextID()
	spawn := m.grid.SpawnPoints()[slot]

	p := player.New(id, fmt.Sprintf("Player%d", id+1), spawn.X, spawn.Y, slot%2 == 0)
	p.MoveSpeed = m.cfg.MoveSpeed
	p.Angle = m.cfg.Angle
	m.players.Add(p)
	m.callbacks.OnPlayerJoin(p)

	if m.players.IsFull() && m.state == WaitingForPlayers {
		m.Start()
	}
	return p, nil
}

// Start hands the first turn to the first player in join order.
func (m *Match) Start() bool {
	if m.state != WaitingForPlayers || m.players.Count() == 0 {
		return false
	}

	m.state = PlayingTurn
	m.turnIndex = -1
	for i, p := range m.players.GetAll() {
		if p.IsAlive() {
			m.turnIndex = i
			break
		}
	}
	if m.turnIndex < 0 {
		m.finish()
		return true
	}

	m.turn = 1
	m.turnTimer = m.cfg.TurnTime
	current := m.players.At(m.turnIndex)
	current.SetTurn(true)

	m.callbacks.OnGameStart(m.players.GetAll())
	m.callbacks.OnTurnStart(current, m.turn, m.wind)
	return true
}

// Update advances the simulation by one tick of dt seconds and then the turn logic.
func (m *Match) Update(dt float32) {
	if m.state == WaitingForPlayers {
		return
	}
	if dt < 0 {
		dt = 0
	}
	if dt > m.cfg.MaxFrameDt {
		dt = m.cfg.MaxFrameDt
	}

	env := m.cfg.Env
	env.Wind = m.wind
	res := physics.Step(env, dt, m.players.GetAll(), m.projectiles, m.grid)
	m.applyResult(res)

	switch m.state {
	case PlayingTurn:
		m.turnTimer -= dt
		if m.turnTimer <= 0 {
			m.turnTimer = 0
			m.Commit()
		}
	case FiringPhase:
		if physics.AnyActive(m.projectiles) {
			return
		}
		m.projectiles = physics.Compact(m.projectiles)
		if m.players.AliveCount() <= 1 {
			m.finish()
			return
		}
		m.nextTurn()
	}
}

func (m *Match) applyResult(res physics.Result) {
	if res.TerrainModified {
		m.terrainModified = true
	}
	if exp, ok := res.LastExplosion(); ok {
		m.lastExplosion = &exp
	}
	for _, hit := range res.Hits {
		victim, ok := m.players.Get(hit.PlayerID)
		if !ok {
			continue
		}
		m.callbacks.OnPlayerDamage(victim, hit.OwnerID, hit.Damage)
		if hit.Eliminated {
			m.callbacks.OnPlayerEliminated(victim, hit.OwnerID)
		}
	}
}

// HandleInput applies one command from playerID. It reports whether the command was
// accepted: only the turn holder may act, and only while PlayingTurn.
func (m *Match) HandleInput(playerID uint32, cmd protocol.Command, value float32) bool {
	if m.state != PlayingTurn {
		return false
	}
	current := m.players.At(m.turnIndex)
	if current == nil || current.ID != playerID {
		return false
	}

	switch cmd {
	case protocol.CommandMoveLeft:
		current.MoveLeft()
	case protocol.CommandMoveRight:
		current.MoveRight()
	case protocol.CommandStop:
		current.StopMoving()
	case protocol.CommandAdjustAngle:
		current.AdjustAngle(value)
	case protocol.CommandAdjustPower:
		current.AdjustPower(value)
	case protocol.CommandFire:
		m.Commit()
	default:
		return false
	}
	return true
}

// Commit ends the charging window of the current turn. A living turn holder fires
// with its current angle and power; a dead one forfeits the shot.
func (m *Match) Commit() {
	if m.state != PlayingTurn {
		return
	}

	current := m.players.At(m.turnIndex)
	if current != nil && current.IsAlive() {
		if len(m.projectiles) < protocol.MaxProjectiles {
			m.projectiles = append(m.projectiles, physics.Fire(current))
		}
		m.callbacks.OnShot(current)
		current.ResetPower()
	}
	m.state = FiringPhase
}

func (m *Match) nextTurn() {
	prev := m.players.At(m.turnIndex)
	prev.SetTurn(false)
	prev.StopMoving()

	count := m.players.Count()
	for i := 1; i <= count; i++ {
		idx := (m.turnIndex + i) % count
		if m.players.At(idx).IsAlive() {
			m.turnIndex = idx
			break
		}
	}

	m.turn++
	m.wind = m.drawWind()
	m.turnTimer = m.cfg.TurnTime

	current := m.players.At(m.turnIndex)
	current.SetTurn(true)
	m.state = PlayingTurn
	m.callbacks.OnTurnStart(current, m.turn, m.wind)
}

func (m *Match) drawWind() float32 {
	if m.windSource != nil {
		if w, ok := m.windSource(m.turn); ok {
			return w
		}
	}
	if m.cfg.WindRange <= 0 {
		return 0
	}
	return (m.rng.Float32()*2 - 1) * m.cfg.WindRange
}

func (m *Match) finish() {
	m.state = GameOver
	m.winner = nil
	for _, p := range m.players.GetAll() {
		p.SetTurn(false)
		p.StopMoving()
		if p.IsAlive() && m.winner == nil {
			m.winner = p
		}
	}
	m.callbacks.OnGameOver(m.winner)
}

func (m *Match) State() State { return m.state }

func (m *Match) TurnTimer() float32 { return m.turnTimer }

func (m *Match) TurnNumber() uint32 { return m.turn }

func (m *Match) Wind() float32 { return m.wind }

// CurrentPlayerID returns the id of the turn holder.
func (m *Match) CurrentPlayerID() (uint32, bool) {
	if m.state != PlayingTurn && m.state != FiringPhase {
		return 0, false
	}
	p := m.players.At(m.turnIndex)
	if p == nil {
		return 0, false
	}
	return p.ID, true
}

func (m *Match) Winner() (*player.Player, bool) {
	return m.winner, m.winner != nil
}

func (m *Match) Player(id uint32) (*player.Player, bool) {
	return m.players.Get(id)
}

func (m *Match) Players() []*player.Player {
	return m.players.GetAll()
}

func (m *Match) PlayerCount() int {
	return m.players.Count()
}

func (m *Match) IsFull() bool {
	return m.players.IsFull()
}

func (m *Match) Projectiles() []physics.Projectile {
	return m.projectiles
}

// ConsumeTerrainModified reports a pending terrain change once and clears it.
func (m *Match) ConsumeTerrainModified() bool {
	modified := m.terrainModified
	m.terrainModified = false
	return modified
}

// ConsumeLastExplosion returns the latest unconsumed explosion once and clears it.
func (m *Match) ConsumeLastExplosion() (physics.Explosion, bool) {
	if m.lastExplosion == nil {
		return physics.Explosion{}, false
	}
	exp := *m.lastExplosion
	m.lastExplosion = nil
	return exp, true
}
