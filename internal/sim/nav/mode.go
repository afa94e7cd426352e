package nav

import "voxelmind.ai/internal/sim/level"

// Mob is the movement-facing view of the entity that owns a Navigation.
type Mob interface {
	ID() string
	Position() level.Vec3
	BBWidth() float64
	BBHeight() float64
	// Speed is the movement attribute in blocks per tick.
	Speed() float64
	FollowRange() float64
	OnGround() bool
	InLiquid() bool
	SetWantedPosition(pos level.Vec3, speed float64)
}

// PathConfig tells the pathfinder which node types the mob may use.
type PathConfig struct {
	CanFloat     bool `json:"can_float"`
	CanOpenDoors bool `json:"can_open_doors"`
	CanPassDoors bool `json:"can_pass_doors"`
	CanFly       bool `json:"can_fly"`
	CanSwim      bool `json:"can_swim"`
	CanClimb     bool `json:"can_climb"`
}

// Mode holds what differs between movement capability classes. The follow,
// stuck and timeout logic in Navigation is shared by all of them.
type Mode interface {
	Name() string
	PathConfig() PathConfig
	CanUpdatePath(m Mob) bool
	// GroundY projects a waypoint onto the surface the mob moves on.
	GroundY(w level.World, v level.Vec3) float64
	CanMoveDirectly(w level.World, m Mob, from, to level.Vec3) bool
	IsStableDestination(w level.World, p level.BlockPos) bool
}

// targetAdjuster is implemented by modes that snap requested targets onto
// a standable cell before searching.
type targetAdjuster interface {
	AdjustTarget(w level.World, p level.BlockPos) level.BlockPos
}

func defaultGroundY(w level.World, v level.Vec3) float64 {
	p := level.Containing(v)
	if w.BlockAt(p.Below()).IsAir() {
		return v.Y
	}
	return w.FloorLevel(p)
}

// clearForMovement aims at the middle of the mob's height at the far end.
func clearForMovement(w level.World, m Mob, from, to level.Vec3, allowSwimming bool) bool {
	aim := level.Vec3{X: to.X, Y: to.Y + m.BBHeight()*0.5, Z: to.Z}
	return w.ClearBetween(from, aim, allowSwimming)
}

// Ground walks and may only replan while standing or swimming.
type Ground struct {
	CanOpenDoors bool
	CanPassDoors bool
	CanFloat     bool
}

func (Ground) Name() string { return "ground" }

func (g Ground) PathConfig() PathConfig {
	return PathConfig{CanOpenDoors: g.CanOpenDoors, CanPassDoors: g.CanPassDoors, CanFloat: g.CanFloat}
}

func (Ground) CanUpdatePath(m Mob) bool { return m.OnGround() || m.InLiquid() }

func (Ground) GroundY(w level.World, v level.Vec3) float64 { return defaultGroundY(w, v) }

func (Ground) CanMoveDirectly(level.World, Mob, level.Vec3, level.Vec3) bool { return false }

func (Ground) IsStableDestination(w level.World, p level.BlockPos) bool {
	return w.BlockAt(p.Below()).Solid
}

// AdjustTarget drops targets in mid-air to the ground below them and lifts
// targets inside solid blocks to the first free cell above.
func (Ground) AdjustTarget(w level.World, p level.BlockPos) level.BlockPos {
	b := w.BlockAt(p)
	switch {
	case b.IsAir():
		for p.Y > w.MinY() && w.BlockAt(p.Below()).IsAir() {
			p = p.Below()
		}
	case b.Solid:
		for i := 0; i < 64 && w.BlockAt(p).Solid; i++ {
			p = p.Above()
		}
	}
	return p
}

// Fly moves in three dimensions and may always replan.
type Fly struct{}

func (Fly) Name() string { return "fly" }

func (Fly) PathConfig() PathConfig { return PathConfig{CanFly: true, CanOpenDoors: true, CanPassDoors: true, CanFloat: true} }

func (Fly) CanUpdatePath(Mob) bool { return true }

func (Fly) GroundY(_ level.World, v level.Vec3) float64 { return v.Y }

func (Fly) CanMoveDirectly(w level.World, m Mob, from, to level.Vec3) bool {
	return clearForMovement(w, m, from, to, true)
}

func (Fly) IsStableDestination(w level.World, p level.BlockPos) bool {
	return w.BlockAt(p).IsAir() || w.BlockAt(p.Below()).Solid
}

// Amphibious walks on land and swims in fluids.
type Amphibious struct{}

func (Amphibious) Name() string { return "amphibious" }

func (Amphibious) PathConfig() PathConfig { return PathConfig{CanSwim: true, CanFloat: false, CanPassDoors: true} }

func (Amphibious) CanUpdatePath(Mob) bool { return true }

func (Amphibious) GroundY(w level.World, v level.Vec3) float64 { return defaultGroundY(w, v) }

func (Amphibious) CanMoveDirectly(w level.World, m Mob, from, to level.Vec3) bool {
	if !m.InLiquid() {
		return false
	}
	return clearForMovement(w, m, from, to, true)
}

func (Amphibious) IsStableDestination(w level.World, p level.BlockPos) bool {
	return !w.BlockAt(p.Below()).IsAir()
}

// WallClimb walks and may replan while clinging to a wall.
type WallClimb struct {
	Ground
}

func (WallClimb) Name() string { return "wall_climb" }

func (w WallClimb) PathConfig() PathConfig {
	c := w.Ground.PathConfig()
	c.CanClimb = true
	return c
}

func (WallClimb) CanUpdatePath(Mob) bool { return true }
