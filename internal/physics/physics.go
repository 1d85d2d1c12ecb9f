package physics

import (
	"math"

	"github.com/siohaza/bombard/internal/player"
	"github.com/siohaza/bombard/internal/validation"
	"github.com/siohaza/bombard/pkg/terrain"
)

const (
	Gravity         = 0.98
	GameSpeed       = 40.0
	MaxSimStep      = 3.0
	HitRadius       = 20.0
	HitDamage       = 10
	ExplosionRadius = 30.0

	FeetOffsetX   = 16.0
	FeetOffsetY   = 32.0
	MuzzleOffsetY = 20.0
)

// Env holds the tunables of one simulation. The constants are tuned for a 60 Hz
// step, so Step scales the real frame time by GameSpeed before integrating.
type Env struct {
	Gravity         float32
	Wind            float32
	GameSpeed       float32
	MaxSimStep      float32
	HitRadius       float32
	HitDamage       int32
	ExplosionRadius float32
}

func DefaultEnv() Env {
	return Env{
		Gravity:         Gravity,
		GameSpeed:       GameSpeed,
		MaxSimStep:      MaxSimStep,
		HitRadius:       HitRadius,
		HitDamage:       HitDamage,
		ExplosionRadius: ExplosionRadius,
	}
}

type Projectile struct {
	Position player.Vector2f
	Velocity player.Vector2f
	Active   bool
	OwnerID  uint32
}

type Explosion struct {
	X, Y, Radius float32
}

type Hit struct {
	PlayerID   uint32
	OwnerID    uint32
	Damage     int32
	Eliminated bool
}

type Result struct {
	TerrainModified bool
	Explosions      []Explosion
	Hits            []Hit
}

// LastExplosion returns the most recent explosion of the step, if any.
func (r Result) LastExplosion() (Explosion, bool) {
	if len(r.Explosions) == 0 {
		return Explosion{}, false
	}
	return r.Explosions[len(r.Explosions)-1], true
}

func (e Env) scaledStep(dt float32) float32 {
	simDt := dt * e.GameSpeed
	if simDt < 0 {
		return 0
	}
	if simDt > e.MaxSimStep {
		return e.MaxSimStep
	}
	return simDt
}

// Step advances players and projectiles by one tick of dt seconds.
func Step(env Env, dt float32, players []*player.Player, projectiles []Projectile, grid *terrain.Grid) Result {
	var res Result
	if grid == nil {
		return res
	}

	simDt := env.scaledStep(dt)
	width := float32(grid.Width())
	height := float32(grid.Height())

	for _, p := range players {
		if !p.IsAlive() {
			continue
		}
		movePlayer(env, p, simDt, grid, width, height)
	}

	for i := range projectiles {
		proj := &projectiles[i]
		if !proj.Active {
			continue
		}

		proj.Velocity.Y += env.Gravity * simDt
		proj.Velocity.X += env.Wind * simDt
		proj.Position.X += proj.Velocity.X * simDt
		proj.Position.Y += proj.Velocity.Y * simDt

		if grid.IsSolid(proj.Position.X, proj.Position.Y) {
			grid.ApplyExplosion(proj.Position.X, proj.Position.Y, env.ExplosionRadius)
			res.TerrainModified = true
			res.Explosions = append(res.Explosions, Explosion{
				X:      proj.Position.X,
				Y:      proj.Position.Y,
				Radius: env.ExplosionRadius,
			})
			proj.Active = false
			continue
		}

		if target := firstHit(env, proj, players); target != nil {
			proj.Active = false
			res.Hits = append(res.Hits, Hit{
				PlayerID:   target.ID,
				OwnerID:    proj.OwnerID,
				Damage:     env.HitDamage,
				Eliminated: target.Damage(env.HitDamage),
			})
			continue
		}

		if proj.Position.X < 0 || proj.Position.X > width ||
			proj.Position.Y < 0 || proj.Position.Y > height {
			proj.Active = false
		}
	}

	return res
}

func movePlayer(env Env, p *player.Player, simDt float32, grid *terrain.Grid, width, height float32) {
	p.Velocity.Y += env.Gravity * simDt
	p.Position.X += p.Velocity.X * simDt
	p.Position.Y += p.Velocity.Y * simDt

	feetX := p.Position.X + FeetOffsetX
	feetY := p.Position.Y + FeetOffsetY
	if grid.IsSolid(feetX, feetY) {
		p.Velocity.Y = 0
		for grid.IsSolid(feetX, feetY) && feetY > 0 {
			p.Position.Y--
			feetY--
		}
	}

	if p.Position.X < 0 {
		p.Position.X = 0
	}
	if p.Position.X > width {
		p.Position.X = width
	}

	// out of the world: back to the top
	if p.Position.Y > height {
		p.Position.Y = 0
	}
}

func firstHit(env Env, proj *Projectile, players []*player.Player) *player.Player {
	r2 := env.HitRadius * env.HitRadius
	for _, p := range players {
		if !p.IsAlive() {
			continue
		}
		if validation.DistanceSquared(proj.Position.X, proj.Position.Y, p.Position.X, p.Position.Y) < r2 {
			return p
		}
	}
	return nil
}

// Fire launches a projectile from just above the player using its current angle and
// power. The horizontal component is mirrored when the player faces left.
func Fire(p *player.Player) Projectile {
	rad := float64(p.Angle) * math.Pi / 180
	direction := float32(1)
	if !p.FacingRight {
		direction = -1
	}

	return Projectile{
		Position: player.Vector2f{X: p.Position.X, Y: p.Position.Y - MuzzleOffsetY},
		Velocity: player.Vector2f{
			X: float32(math.Cos(rad)) * p.Power * direction,
			Y: -float32(math.Sin(rad)) * p.Power,
		},
		Active:  true,
		OwnerID: p.ID,
	}
}

func AnyActive(projectiles []Projectile) bool {
	for i := range projectiles {
		if projectiles[i].Active {
			return true
		}
	}
	return false
}

// Compact drops inactive projectiles in place, keeping the order of the rest.
func Compact(projectiles []Projectile) []Projectile {
	out := projectiles[:0]
	for _, p := range projectiles {
		if p.Active {
			out = append(out, p)
		}
	}
	clear(projectiles[len(out):])
	return out
}
