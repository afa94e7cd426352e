package mob

import "voxelmind.ai/internal/sim/level"

// HurtMemoryTicks is how long recorded damage stays visible to sensors.
const HurtMemoryTicks = 100

// WorldWriter is the mutable side of the world that Commit needs.
type WorldWriter interface {
	level.World
	SetEntities(refs []level.EntityRef)
	RecordDamage(entityID string, src level.DamageSource)
	ClearDamage(entityID string)
}

// Commit applies the damage queued during the tick that just ran, ages out
// old damage records and publishes the positions of living mobs. It must
// run between ticks, never while shards are ticking. It returns the mobs
// that are still alive.
func Commit(w WorldWriter, mobs []*Mob) []*Mob {
	now := w.GameTime()
	byID := make(map[string]*Mob, len(mobs))
	for _, m := range mobs {
		byID[m.id] = m
	}
	for _, m := range mobs {
		for _, h := range m.TakeHits() {
			t, ok := byID[h.TargetID]
			if !ok || !t.Alive() {
				continue
			}
			t.Damage(h.Amount)
			w.RecordDamage(t.id, level.DamageSource{Kind: h.Kind, AttackerID: m.id, Tick: now})
		}
	}

	alive := make([]*Mob, 0, len(mobs))
	refs := make([]level.EntityRef, 0, len(mobs))
	for _, m := range mobs {
		if d, ok := w.LastDamage(m.id); ok && now-d.Tick > HurtMemoryTicks {
			w.ClearDamage(m.id)
		}
		if !m.Alive() {
			w.ClearDamage(m.id)
			continue
		}
		alive = append(alive, m)
		refs = append(refs, m.Ref())
	}
	w.SetEntities(refs)
	return alive
}
