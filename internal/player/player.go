package player

const (
	InitialHP    = 100
	InitialAngle = 45
	MaxAngle     = 180
	MaxPower     = 100
	MoveSpeed    = 2.0
)

type Vector2f struct {
	X, Y float32
}

// Player is one combatant. It carries no lock of its own: every field is guarded by
// the lock of the match that owns it.
type Player struct {
	ID       uint32
	Name     string
	Position Vector2f
	Velocity Vector2f
	// FacingRight flips the horizontal component of every shot.
	FacingRight bool
	Angle       float32
	Power       float32
	HP          int32
	MyTurn      bool
	MoveSpeed   float32
}

func New(id uint32, name string, x, y float32, facingRight bool) *Player {
	return &Player{
		ID:          id,
		Name:        name,
		Position:    Vector2f{X: x, Y: y},
		FacingRight: facingRight,
		Angle:       InitialAngle,
		HP:          InitialHP,
		MoveSpeed:   MoveSpeed,
	}
}

func (p *Player) IsAlive() bool {
	return p.HP > 0
}

func (p *Player) MoveLeft() {
	p.Velocity.X = -p.MoveSpeed
}

func (p *Player) MoveRight() {
	p.Velocity.X = p.MoveSpeed
}

func (p *Player) StopMoving() {
	p.Velocity.X = 0
}

func (p *Player) AdjustAngle(delta float32) {
	p.Angle = clamp(p.Angle+delta, 0, MaxAngle)
}

func (p *Player) AdjustPower(delta float32) {
	p.Power = clamp(p.Power+delta, 0, MaxPower)
}

func (p *Player) ResetPower() {
	p.Power = 0
}

// Damage subtracts amount from HP, never going below zero, and reports whether this
// hit eliminated the player.
func (p *Player) Damage(amount int32) bool {
	if !p.IsAlive() || amount <= 0 {
		return false
	}
	p.HP -= amount
	if p.HP <= 0 {
		p.HP = 0
		return true
	}
	return false
}

func (p *Player) Kill() {
	p.HP = 0
}

func (p *Player) SetTurn(myTurn bool) {
	p.MyTurn = myTurn
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Manager keeps players in join order.
type Manager struct {
	players  []*Player
	capacity int
}

func NewManager(capacity int) *Manager {
	return &Manager{
		players:  make([]*Player, 0, capacity),
		capacity: capacity,
	}
}

func (m *Manager) Add(p *Player) bool {
	if m.IsFull() {
		return false
	}
	m.players = append(m.players, p)
	return true
}

func (m *Manager) Get(id uint32) (*Player, bool) {
	for _, p := range m.players {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

func (m *Manager) At(index int) *Player {
	if index < 0 || index >= len(m.players) {
		return nil
	}
	return m.players[index]
}

func (m *Manager) GetAll() []*Player {
	return m.players
}

func (m *Manager) Count() int {
	return len(m.players)
}

func (m *Manager) IsFull() bool {
	return len(m.players) >= m.capacity
}

func (m *Manager) NextID() uint32 {
	return uint32(len(m.players))
}

func (m *Manager) AliveCount() int {
	n := 0
	for _, p := range m.players {
		if p.IsAlive() {
			n++
		}
	}
	return n
}
