// Package mob is the demo entity that owns a brain and a navigation, plus
// the archetypes that wire them up.
package mob

import (
	"math"
	"math/rand"

	"voxelmind.ai/internal/sim/brain"
	"voxelmind.ai/internal/sim/level"
	"voxelmind.ai/internal/sim/nav"
)

const (
	gravityPerTick = 0.5
	sinkPerTick    = 0.1
	maxHealth      = 20
)

// Body is the physical profile of an archetype.
type Body struct {
	Width       float64
	Height      float64
	Speed       float64
	FollowRange float64
	Flying      bool
}

// Hit is damage dealt during a tick. It is applied between ticks so shards
// never write to each other's entities.
type Hit struct {
	TargetID string
	Amount   float64
	Kind     string
}

type Mob struct {
	id   string
	kind string
	body Body
	seed int64
	rng  *rand.Rand

	pos      level.Vec3
	onGround bool
	inLiquid bool
	health   float64

	wanted      level.Vec3
	wantedSpeed float64
	hasWanted   bool

	brain *brain.Brain[*Mob]
	nav   *nav.Navigation

	hits []Hit
}

func (m *Mob) ID() string           { return m.id }
func (m *Mob) Type() string         { return m.kind }
func (m *Mob) Position() level.Vec3 { return m.pos }
func (m *Mob) Alive() bool          { return m.health > 0 }
func (m *Mob) Random() *rand.Rand   { return m.rng }
func (m *Mob) Health() float64      { return m.health }

func (m *Mob) BBWidth() float64     { return m.body.Width }
func (m *Mob) BBHeight() float64    { return m.body.Height }
func (m *Mob) Speed() float64       { return m.body.Speed }
func (m *Mob) FollowRange() float64 { return m.body.FollowRange }
func (m *Mob) OnGround() bool       { return m.onGround }
func (m *Mob) InLiquid() bool       { return m.inLiquid }

func (m *Mob) EyePosition() level.Vec3 {
	return m.pos.Add(level.Vec3{Y: m.body.Height * 0.85})
}

func (m *Mob) Brain() *brain.Brain[*Mob]     { return m.brain }
func (m *Mob) Navigation() *nav.Navigation { return m.nav }

// SetWantedPosition is the move control input; it holds for one tick.
func (m *Mob) SetWantedPosition(p level.Vec3, speed float64) {
	m.wanted, m.wantedSpeed, m.hasWanted = p, speed, true
}

func (m *Mob) Ref() level.EntityRef {
	return level.EntityRef{ID: m.id, Type: m.kind, Pos: m.pos}
}

// Attack queues damage against another entity.
func (m *Mob) Attack(targetID string, amount float64) {
	m.hits = append(m.hits, Hit{TargetID: targetID, Amount: amount, Kind: "melee"})
}

// TakeHits returns and clears the damage queued this tick.
func (m *Mob) TakeHits() []Hit {
	h := m.hits
	m.hits = nil
	return h
}

func (m *Mob) Damage(amount float64) { m.health = math.Max(0, m.health-amount) }

// Tick advances the navigation, runs the brain and applies movement. A path
// the brain installs is first followed on the next tick.
func (m *Mob) Tick(w level.World) {
	if !m.Alive() {
		return
	}
	m.nav.Tick()
	m.brain.Tick(w, m)
	m.move(w)
}

func (m *Mob) move(w level.World) {
	if m.hasWanted {
		m.hasWanted = false
		m.stepToward(w)
	}
	if m.body.Flying {
		m.onGround = w.BlockAt(level.Containing(m.pos.Sub(level.Vec3{Y: 0.01}))).Solid
		return
	}
	m.applyGravity(w)
}

func (m *Mob) stepToward(w level.World) {
	d := m.wanted.Sub(m.pos)
	if !m.body.Flying {
		d.Y = 0
	}
	dist := d.Length()
	if dist < 1e-6 {
		return
	}
	step := m.body.Speed * m.wantedSpeed
	if step > dist {
		step = dist
	}
	next := m.pos.Add(d.Scale(step / dist))
	feet := level.Containing(next)
	if m.blocked(w, feet) {
		up := feet.Above()
		if m.body.Flying || !m.onGround || m.wanted.Y <= m.pos.Y+0.5 || m.blocked(w, up) {
			return
		}
		next.Y = float64(up.Y)
	}
	m.pos = next
}

func (m *Mob) blocked(w level.World, feet level.BlockPos) bool {
	return w.BlockAt(feet).Solid || w.BlockAt(feet.Above()).Solid
}

func (m *Mob) applyGravity(w level.World) {
	feet := level.Containing(m.pos)
	m.inLiquid = w.BlockAt(feet).Fluid
	fall := gravityPerTick
	if m.inLiquid {
		fall = sinkPerTick
	}
	below := level.Containing(m.pos.Sub(level.Vec3{Y: fall}))
	if w.BlockAt(below).Solid {
		m.pos.Y = float64(below.Y + 1)
		m.onGround = true
		return
	}
	if m.pos.Y-fall < float64(w.MinY()) {
		m.onGround = false
		return
	}
	m.pos.Y -= fall
	m.onGround = false
}
