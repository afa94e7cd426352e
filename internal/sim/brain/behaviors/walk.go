// Package behaviors is the library of concrete behaviors shared by the mob
// archetypes.
package behaviors

import (
	"voxelmind.ai/internal/sim/brain/behavior"
	"voxelmind.ai/internal/sim/brain/memkeys"
	"voxelmind.ai/internal/sim/brain/memory"
	"voxelmind.ai/internal/sim/level"
	"voxelmind.ai/internal/sim/nav"
)

// Walker is an entity that owns a navigation.
type Walker interface {
	level.Entity
	Navigation() *nav.Navigation
}

// StuckCooldownTicks bounds the random pause before a walker that got stuck
// tries the same walk target again.
const StuckCooldownTicks = 40

// retargetDistSqr is how far the walk target may drift before the path is
// replanned.
const retargetDistSqr = 4

type moveToTargetSink[E Walker] struct {
	path       *nav.Path
	lastTarget level.BlockPos
	hasLast    bool
	cooldown   int
	speed      float64
}

// MoveToTargetSink walks toward the WalkTarget memory. It keeps the Path
// memory in sync with the navigation, replans when the target moves, and
// records CantReachWalkTargetSince while no complete path exists.
func MoveToTargetSink[E Walker](minTicks, maxTicks int) *behavior.Task[E] {
	return behavior.NewTask[E]("move_to_target_sink", []behavior.Precondition{
		behavior.Registered(memkeys.CantReachWalkTargetSince),
		behavior.Absent(memkeys.PathKey),
		behavior.Present(memkeys.WalkTargetKey),
	}, minTicks, maxTicks, &moveToTargetSink[E]{})
}

func reachedTarget(e level.Entity, t memkeys.WalkTarget) bool {
	return t.Pos.DistManhattan(level.Containing(e.Position())) <= t.CloseEnough
}

func (m *moveToTargetSink[E]) CanStart(w level.World, e E, mem *memory.Store) bool {
	if m.cooldown > 0 {
		m.cooldown--
		return false
	}
	t, _ := memory.Get(mem, memkeys.WalkTargetKey)
	reached := reachedTarget(e, t)
	if !reached && m.tryComputePath(w, e, mem, t) {
		m.lastTarget = t.Pos
		m.hasLast = true
		return true
	}
	mem.Erase(memkeys.WalkTargetKey)
	if reached {
		mem.Erase(memkeys.CantReachWalkTargetSince)
	}
	return false
}

func (m *moveToTargetSink[E]) Start(_ level.World, e E, mem *memory.Store, _ uint64) {
	memory.Set(mem, memkeys.PathKey, m.path)
	e.Navigation().MoveTo(m.path, m.speed)
}

func (m *moveToTargetSink[E]) CanContinue(_ level.World, e E, mem *memory.Store, _ uint64) bool {
	if m.path == nil || !m.hasLast {
		return false
	}
	t, ok := memory.Get(mem, memkeys.WalkTargetKey)
	return ok && !e.Navigation().IsDone() && !reachedTarget(e, t)
}

func (m *moveToTargetSink[E]) Tick(w level.World, e E, mem *memory.Store, _ uint64) {
	n := e.Navigation()
	if p := n.Path(); p != m.path {
		m.path = p
		memory.Set(mem, memkeys.PathKey, p)
	}
	t, ok := memory.Get(mem, memkeys.WalkTargetKey)
	if m.path == nil || !m.hasLast || !ok {
		return
	}
	if t.Pos.DistSqr(m.lastTarget) > retargetDistSqr && m.tryComputePath(w, e, mem, t) {
		m.lastTarget = t.Pos
		n.MoveTo(m.path, m.speed)
		memory.Set(mem, memkeys.PathKey, m.path)
	}
}

func (m *moveToTargetSink[E]) Stop(_ level.World, e E, mem *memory.Store, _ uint64) {
	n := e.Navigation()
	if t, ok := memory.Get(mem, memkeys.WalkTargetKey); ok && !reachedTarget(e, t) && n.IsStuck() {
		m.cooldown = e.Random().Intn(StuckCooldownTicks)
	}
	n.Stop()
	mem.Erase(memkeys.WalkTargetKey)
	mem.Erase(memkeys.PathKey)
	m.path = nil
}

// tryComputePath plans to the target, or to a random stable spot toward it
// when the target itself yields no path.
func (m *moveToTargetSink[E]) tryComputePath(w level.World, e E, mem *memory.Store, t memkeys.WalkTarget) bool {
	n := e.Navigation()
	m.path = n.CreatePathTo(t.Pos, 0)
	m.speed = t.Speed
	if m.path != nil && m.path.CanReach() {
		mem.Erase(memkeys.CantReachWalkTargetSince)
	} else if !mem.Has(memkeys.CantReachWalkTargetSince, memory.Present) {
		memory.Set(mem, memkeys.CantReachWalkTargetSince, w.GameTime())
	}
	if m.path != nil {
		return true
	}
	p, ok := RandomPosTowards(w, e, t.Pos, 10, 7)
	if !ok {
		return false
	}
	m.path = n.CreatePathTo(p, 0)
	return m.path != nil
}
