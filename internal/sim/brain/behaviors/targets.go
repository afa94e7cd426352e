package behaviors

import (
	"slices"

	"voxelmind.ai/internal/sim/brain"
	"voxelmind.ai/internal/sim/brain/behavior"
	"voxelmind.ai/internal/sim/brain/memkeys"
	"voxelmind.ai/internal/sim/brain/memory"
	"voxelmind.ai/internal/sim/brain/schedule"
	"voxelmind.ai/internal/sim/level"
)

// TooLongUnreachableTicks is how long a remembered block may stay out of
// reach before it is forgotten.
const TooLongUnreachableTicks = 1200

// RandomStroll sets a walk target at a random stable spot nearby.
func RandomStroll[E Walker](speed float64, h, v int) *behavior.OneShot[E] {
	return behavior.NewOneShot[E]("random_stroll", []behavior.Precondition{behavior.Absent(memkeys.WalkTargetKey)},
		func(w level.World, e E, mem *memory.Store, _ uint64) bool {
			p, ok := RandomPos(w, e, h, v)
			if !ok {
				return false
			}
			memory.Set(mem, memkeys.WalkTargetKey, memkeys.WalkTarget{Pos: p, Speed: speed})
			return true
		})
}

// SetWalkTargetFromMemory walks to the block stored under key. The memory
// is forgotten once the block is farther than tooFar or has been
// unreachable for too long.
func SetWalkTargetFromMemory[E level.Entity](key memory.Key[level.BlockPos], speed float64, closeEnough, tooFar int) *behavior.OneShot[E] {
	pre := []behavior.Precondition{
		behavior.Present(key),
		behavior.Absent(memkeys.WalkTargetKey),
		behavior.Registered(memkeys.CantReachWalkTargetSince),
	}
	return behavior.NewOneShot[E]("walk_to_"+key.Name(), pre,
		func(_ level.World, e E, mem *memory.Store, now uint64) bool {
			pos, _ := memory.Get(mem, key)
			dist := pos.DistManhattan(level.Containing(e.Position()))
			if dist > tooFar {
				mem.Erase(key)
				return true
			}
			if since, ok := memory.Get(mem, memkeys.CantReachWalkTargetSince); ok && now-since > TooLongUnreachableTicks {
				mem.Erase(key)
				mem.Erase(memkeys.CantReachWalkTargetSince)
				return true
			}
			if dist <= closeEnough {
				return false
			}
			memory.Set(mem, memkeys.WalkTargetKey, memkeys.WalkTarget{Pos: pos, Speed: speed, CloseEnough: closeEnough})
			return true
		})
}

// ForgetWhen erases key when pred holds for its current value.
func ForgetWhen[E level.Entity, T any](name string, key memory.Key[T], pred func(w level.World, e E, v T) bool) *behavior.OneShot[E] {
	return behavior.NewOneShot[E](name, []behavior.Precondition{behavior.Present(key)},
		func(w level.World, e E, mem *memory.Store, _ uint64) bool {
			v, _ := memory.Get(mem, key)
			if !pred(w, e, v) {
				return false
			}
			mem.Erase(key)
			return true
		})
}

// Thinker is an entity that exposes its own brain to core behaviors.
type Thinker[E level.Entity] interface {
	level.Entity
	Brain() *brain.Brain[E]
}

// UpdateActivityFromSchedule lets the owner's schedule pick the activity.
// Activities in overrides take precedence whenever their requirements hold;
// once none does, an override still active gives way to the default and
// the schedule. The brain throttles schedule lookups itself.
func UpdateActivityFromSchedule[E Thinker[E]](overrides ...schedule.Activity) *behavior.OneShot[E] {
	return behavior.NewOneShot[E]("update_activity_from_schedule", nil,
		func(w level.World, e E, _ *memory.Store, _ uint64) bool {
			b := e.Brain()
			if len(overrides) > 0 {
				if b.SetActiveActivityToFirstValid(overrides...) {
					return true
				}
				if a, ok := b.ActiveNonCoreActivity(); ok && slices.Contains(overrides, a) {
					b.UseDefaultActivity()
					b.RefreshSchedule()
				}
			}
			b.UpdateActivityFromSchedule(w.DayTime(), w.GameTime())
			return true
		})
}
