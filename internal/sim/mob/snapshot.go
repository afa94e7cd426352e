package mob

import (
	"fmt"

	"voxelmind.ai/internal/persistence/snapshot"
	"voxelmind.ai/internal/sim/level"
)

// Export captures the persistent part of m. Only memories whose keys carry
// a codec are included.
func (m *Mob) Export() (snapshot.MobV1, error) {
	entries, err := m.brain.EncodeMemories()
	if err != nil {
		return snapshot.MobV1{}, fmt.Errorf("mob %s: %w", m.id, err)
	}
	return snapshot.MobV1{
		ID:        m.id,
		Archetype: m.kind,
		Pos:       [3]float64{m.pos.X, m.pos.Y, m.pos.Z},
		Health:    m.health,
		Seed:      m.seed,
		Memories:  entries,
	}, nil
}

// Import rebuilds a mob from a snapshot record. It returns how many stored
// memories were skipped as unknown or unreadable.
func Import(env Env, rec snapshot.MobV1) (*Mob, int, error) {
	pos := level.Vec3{X: rec.Pos[0], Y: rec.Pos[1], Z: rec.Pos[2]}
	m, skipped, err := Restore(env, rec.Archetype, rec.ID, pos, rec.Seed, rec.Memories)
	if err != nil {
		return nil, 0, err
	}
	if rec.Health > 0 && rec.Health <= maxHealth {
		m.health = rec.Health
	}
	return m, skipped, nil
}
