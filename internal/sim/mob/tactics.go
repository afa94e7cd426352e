package mob

import (
	"voxelmind.ai/internal/sim/brain/behavior"
	"voxelmind.ai/internal/sim/brain/behaviors"
	"voxelmind.ai/internal/sim/brain/memkeys"
	"voxelmind.ai/internal/sim/brain/memory"
	"voxelmind.ai/internal/sim/level"
)

const (
	staleWorkTicks = 24000
	fleeDistance   = 8
	meleeReach     = 2.0
	visitReach     = 2
)

func visible(m *Mob, id string) (level.EntityRef, bool) {
	list, _ := memory.Get(m.brain.Memory(), memkeys.VisibleLivingEntities)
	for _, r := range list {
		if r.ID == id {
			return r, true
		}
	}
	return level.EntityRef{}, false
}

// fleeFromHostile walks to a stable spot on the far side from the nearest
// hostile.
func fleeFromHostile() behavior.Behavior[*Mob] {
	pre := []behavior.Precondition{behavior.Present(memkeys.NearestHostile), behavior.Absent(memkeys.WalkTargetKey)}
	return behavior.NewOneShot[*Mob]("flee_from_hostile", pre,
		func(w level.World, m *Mob, mem *memory.Store, _ uint64) bool {
			h, _ := memory.Get(mem, memkeys.NearestHostile)
			away := m.pos.Sub(h.Pos)
			away.Y = 0
			if away.LengthSqr() < 1e-6 {
				away = level.Vec3{X: 1}
			}
			goal := level.Containing(m.pos.Add(away.Normalize().Scale(fleeDistance)))
			p, ok := behaviors.RandomPosTowards(w, m, goal, 10, 7)
			if !ok {
				return false
			}
			memory.Set(mem, memkeys.WalkTargetKey, memkeys.WalkTarget{Pos: p, Speed: 0.8})
			return true
		})
}

// recordVisit stamps the game time into stamp while the mob stands at the
// block remembered under at.
func recordVisit(name string, at memory.Key[level.BlockPos], stamp memory.Key[uint64]) behavior.Behavior[*Mob] {
	return behavior.NewOneShot[*Mob](name, []behavior.Precondition{behavior.Present(at)},
		func(_ level.World, m *Mob, mem *memory.Store, now uint64) bool {
			p, _ := memory.Get(mem, at)
			if p.DistManhattan(level.Containing(m.pos)) > visitReach {
				return false
			}
			memory.Set(mem, stamp, now)
			return true
		})
}

// pickTarget selects an attack target, preferring whoever last hurt the mob
// over the closest visible entity of kind.
func pickTarget(kind string) behavior.Behavior[*Mob] {
	return behavior.NewOneShot[*Mob]("pick_target", []behavior.Precondition{behavior.Absent(memkeys.AttackTarget)},
		func(_ level.World, m *Mob, mem *memory.Store, _ uint64) bool {
			if id, ok := memory.Get(mem, memkeys.HurtByEntity); ok {
				if r, ok := visible(m, id); ok {
					memory.Set(mem, memkeys.AttackTarget, r)
					return true
				}
			}
			list, _ := memory.Get(mem, memkeys.VisibleLivingEntities)
			for _, r := range list {
				if r.Type == kind {
					memory.Set(mem, memkeys.AttackTarget, r)
					return true
				}
			}
			return false
		})
}

// chaseTarget keeps the walk target on the attack target's latest position.
func chaseTarget(speed float64) behavior.Behavior[*Mob] {
	return behavior.NewOneShot[*Mob]("chase_target", []behavior.Precondition{behavior.Present(memkeys.AttackTarget)},
		func(_ level.World, m *Mob, mem *memory.Store, _ uint64) bool {
			t, _ := memory.Get(mem, memkeys.AttackTarget)
			r, ok := visible(m, t.ID)
			if !ok {
				return false
			}
			memory.Set(mem, memkeys.AttackTarget, r)
			pos := level.Containing(r.Pos)
			if cur, ok := memory.Get(mem, memkeys.WalkTargetKey); ok && cur.Pos == pos {
				return false
			}
			memory.Set(mem, memkeys.WalkTargetKey, memkeys.WalkTarget{Pos: pos, Speed: speed, CloseEnough: 1})
			return true
		})
}

// meleeAttack hits the attack target when it is in reach, then waits out
// the cooldown.
func meleeAttack(damage float64, cooldown int) behavior.Behavior[*Mob] {
	return behavior.NewTask[*Mob]("melee_attack", []behavior.Precondition{behavior.Present(memkeys.AttackTarget)}, cooldown, cooldown,
		behavior.LogicFuncs[*Mob]{
			CanStartFn: func(_ level.World, m *Mob, mem *memory.Store) bool {
				t, _ := memory.Get(mem, memkeys.AttackTarget)
				r, ok := visible(m, t.ID)
				return ok && m.pos.CloserThan(r.Pos, meleeReach)
			},
			StartFn: func(_ level.World, m *Mob, mem *memory.Store, _ uint64) {
				t, _ := memory.Get(mem, memkeys.AttackTarget)
				m.Attack(t.ID, damage)
			},
			CanContinueFn: func(level.World, *Mob, *memory.Store, uint64) bool { return true },
		})
}
