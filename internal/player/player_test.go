package player

import "testing"

func TestNewDefaults(t *testing.T) {
	p := New(1, "Player2", 1000, 100, false)
	if p.HP != InitialHP || !p.IsAlive() {
		t.Errorf("new player should be alive with %d hp, got %d", InitialHP, p.HP)
	}
	if p.Angle != InitialAngle || p.Power != 0 {
		t.Errorf("angle/power = %v/%v, want %v/0", p.Angle, p.Power, float32(InitialAngle))
	}
	if p.MyTurn {
		t.Error("new player must not hold the turn")
	}
}

func TestAdjustClamps(t *testing.T) {
	tests := []struct {
		name  string
		start float32
		delta float32
		want  float32
		apply func(*Player, float32)
		get   func(*Player) float32
	}{
		{"angle up", 45, 5, 50, (*Player).AdjustAngle, func(p *Player) float32 { return p.Angle }},
		{"angle above max", 178, 10, 180, (*Player).AdjustAngle, func(p *Player) float32 { return p.Angle }},
		{"angle below zero", 3, -10, 0, (*Player).AdjustAngle, func(p *Player) float32 { return p.Angle }},
		{"power up", 10, 25, 35, (*Player).AdjustPower, func(p *Player) float32 { return p.Power }},
		{"power above max", 95, 60, 100, (*Player).AdjustPower, func(p *Player) float32 { return p.Power }},
		{"power below zero", 5, -6, 0, (*Player).AdjustPower, func(p *Player) float32 { return p.Power }},
	}

	for _, tt := range tests {
		p := New(0, "p", 0, 0, true)
		p.Angle = tt.start
		p.Power = tt.start
		tt.apply(p, tt.delta)
		if got := tt.get(p); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestMovement(t *testing.T) {
	p := New(0, "p", 0, 0, true)
	p.MoveLeft()
	if p.Velocity.X != -MoveSpeed {
		t.Errorf("vx after MoveLeft = %v", p.Velocity.X)
	}
	p.MoveRight()
	if p.Velocity.X != MoveSpeed {
		t.Errorf("vx after MoveRight = %v", p.Velocity.X)
	}
	p.StopMoving()
	if p.Velocity.X != 0 {
		t.Errorf("vx after StopMoving = %v", p.Velocity.X)
	}
}

func TestDamage(t *testing.T) {
	p := New(0, "p", 0, 0, true)
	if p.Damage(30) {
		t.Error("30 damage should not eliminate")
	}
	if p.HP != 70 {
		t.Errorf("hp = %d, want 70", p.HP)
	}
	if !p.Damage(80) {
		t.Error("80 damage should eliminate")
	}
	if p.HP != 0 || p.IsAlive() {
		t.Errorf("hp = %d alive = %v, want 0/false", p.HP, p.IsAlive())
	}
	if p.Damage(10) {
		t.Error("damaging a dead player must not report a second elimination")
	}
}

func TestManager(t *testing.T) {
	m := NewManager(2)
	if !m.Add(New(m.NextID(), "a", 0, 0, true)) {
		t.Fatal("first add failed")
	}
	if !m.Add(New(m.NextID(), "b", 0, 0, false)) {
		t.Fatal("second add failed")
	}
	if m.Add(New(m.NextID(), "c", 0, 0, true)) {
		t.Fatal("add beyond capacity must fail")
	}
	if !m.IsFull() || m.Count() != 2 {
		t.Errorf("count = %d full = %v", m.Count(), m.IsFull())
	}
	if p, ok := m.Get(1); !ok || p.Name != "b" {
		t.Errorf("Get(1) = %v, %v", p, ok)
	}
	m.At(0).Kill()
	if m.AliveCount() != 1 {
		t.Errorf("alive = %d, want 1", m.AliveCount())
	}
	if m.At(5) != nil {
		t.Error("At out of range should be nil")
	}
}
