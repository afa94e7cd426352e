// Package level holds the read-only world view that sensors, behaviors and
// navigation query while an entity is being ticked.
package level

import "math/rand"

// Block is the subset of block state the AI core looks at.
type Block struct {
	Kind  string
	Solid bool
	Fluid bool
}

func (b Block) IsAir() bool { return b.Kind == "" || b.Kind == "AIR" }

// EntityRef is a point-in-time copy of another entity. Entities never hold
// pointers to each other so brains can be ticked on separate shards.
type EntityRef struct {
	ID     string
	Type   string
	Pos    Vec3
	Player bool
}

type DamageSource struct {
	Kind       string
	AttackerID string
	Tick       uint64
}

// Entity is implemented by anything that owns a brain.
type Entity interface {
	ID() string
	Type() string
	Position() Vec3
	Alive() bool
	// Random is private to the entity; it must not be shared across entities.
	Random() *rand.Rand
}

// World is the synchronous query surface used during an entity tick.
// Implementations must be safe for concurrent reads while entities are
// ticked in parallel.
type World interface {
	GameTime() uint64
	DayTime() uint64
	MinY() int

	BlockAt(p BlockPos) Block
	// FloorLevel returns the y coordinate an entity standing in p rests on.
	FloorLevel(p BlockPos) float64
	// ClearBetween reports whether the segment from-to hits no colliding block.
	ClearBetween(from, to Vec3, throughFluids bool) bool

	EntitiesWithin(center Vec3, radius float64) []EntityRef
	LastDamage(entityID string) (DamageSource, bool)
}
