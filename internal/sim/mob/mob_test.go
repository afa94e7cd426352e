package mob

import (
	"testing"

	"github.com/stretchr/testify/require"

	"voxelmind.ai/internal/sim/brain/memkeys"
	"voxelmind.ai/internal/sim/brain/memory"
	"voxelmind.ai/internal/sim/brain/schedule"
	"voxelmind.ai/internal/sim/level"
	"voxelmind.ai/internal/sim/level/voxel"
	"voxelmind.ai/internal/sim/pathfind"
)

func flatWorld(t *testing.T) *voxel.World {
	t.Helper()
	w, err := voxel.New(voxel.Config{MinY: -4, Height: 16, SurfaceY: 0})
	require.NoError(t, err)
	return w
}

func testEnv(t *testing.T, w *voxel.World, schedules map[string]string) Env {
	t.Helper()
	parsed := map[string]*schedule.Schedule{}
	for name, text := range schedules {
		s, err := schedule.Parse(name, text, 24000)
		require.NoError(t, err)
		parsed[name] = s
	}
	return Env{
		World:      w,
		Finder:     pathfind.New(),
		ScheduleFn: func(a string) *schedule.Schedule { return parsed[a] },
	}
}

func run(w *voxel.World, mobs []*Mob, ticks int, until func() bool) ([]*Mob, bool) {
	for i := 0; i < ticks; i++ {
		for _, m := range mobs {
			m.Tick(w)
		}
		mobs = Commit(w, mobs)
		w.Advance()
		if until != nil && until() {
			return mobs, true
		}
	}
	return mobs, false
}

func TestSpawn(t *testing.T) {
	w := flatWorld(t)
	env := testEnv(t, w, nil)
	a, err := Spawn(env, "settler", level.Vec3{X: 0.5, Z: 0.5}, 42)
	require.NoError(t, err)
	b, err := Spawn(env, "settler", level.Vec3{X: 0.5, Z: 0.5}, 42)
	require.NoError(t, err)
	require.Equal(t, a.ID(), b.ID(), "ids derive from the seed")
	require.Len(t, a.ID(), 36)
	require.True(t, a.Brain().IsActive(schedule.Idle))
	require.True(t, a.Brain().IsActive(schedule.Core))

	_, err = Spawn(env, "dragon", level.Vec3{}, 1)
	require.Error(t, err)
	_, err = Spawn(Env{}, "settler", level.Vec3{}, 1)
	require.Error(t, err)
	require.Equal(t, []string{"raider", "settler"}, Archetypes())
}

func TestFallsToGround(t *testing.T) {
	w := flatWorld(t)
	m, err := Spawn(testEnv(t, w, nil), "settler", level.Vec3{X: 0.5, Y: 3, Z: 0.5}, 1)
	require.NoError(t, err)
	require.False(t, m.OnGround())
	run(w, []*Mob{m}, 10, nil)
	require.True(t, m.OnGround())
	require.InDelta(t, 0, m.Position().Y, 1e-9)
}

func TestSettlerWalksToJobSite(t *testing.T) {
	w := flatWorld(t)
	w.SetBlock(level.BlockPos{X: 6, Y: 0, Z: 0}, "CAULDRON")
	env := testEnv(t, w, map[string]string{"settler": "at 0 work"})
	m, err := Spawn(env, "settler", level.Vec3{X: 0.5, Z: 0.5}, 7)
	require.NoError(t, err)

	_, ok := run(w, []*Mob{m}, 1000, func() bool {
		return m.Brain().HasMemory(memkeys.LastWorkedAtPoi, memory.Present)
	})
	require.True(t, ok, "never worked; at %+v", m.Position())
	require.True(t, m.Brain().IsActive(schedule.Work))
	site, _ := memory.Get(m.Brain().Memory(), memkeys.JobSite)
	require.Equal(t, level.BlockPos{X: 6, Y: 0, Z: 0}, site)
	require.LessOrEqual(t, site.DistManhattan(level.Containing(m.Position())), visitReach)
}

func TestNewPathIsFollowedFromTheNextTick(t *testing.T) {
	w := flatWorld(t)
	w.SetBlock(level.BlockPos{X: 6, Y: 0, Z: 0}, "CAULDRON")
	env := testEnv(t, w, map[string]string{"settler": "at 0 work"})
	m, err := Spawn(env, "settler", level.Vec3{X: 0.5, Z: 0.5}, 7)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		before := m.Position()
		m.Tick(w)
		w.Advance()
		if m.Navigation().IsInProgress() {
			after := m.Position()
			require.Equal(t, before.X, after.X, "moved on the tick the path was installed")
			require.Equal(t, before.Z, after.Z)
			return
		}
	}
	t.Fatal("no path was ever installed")
}

func TestRaiderHurtsSettler(t *testing.T) {
	w := flatWorld(t)
	env := testEnv(t, w, nil)
	settler, err := Spawn(env, "settler", level.Vec3{X: 0.5, Z: 0.5}, 3)
	require.NoError(t, err)
	raider, err := Spawn(env, "raider", level.Vec3{X: 2.5, Z: 0.5}, 4)
	require.NoError(t, err)

	_, ok := run(w, []*Mob{settler, raider}, 1000, func() bool { return settler.Health() < maxHealth })
	require.True(t, ok, "raider never landed a hit")
	ds, ok := w.LastDamage(settler.ID())
	require.True(t, ok)
	require.Equal(t, raider.ID(), ds.AttackerID)
	require.True(t, raider.Brain().HasMemory(memkeys.AttackTarget, memory.Present))
}

func TestCommitAppliesHitsAndDropsTheDead(t *testing.T) {
	w := flatWorld(t)
	env := testEnv(t, w, nil)
	a, err := Spawn(env, "raider", level.Vec3{X: 0.5, Z: 0.5}, 1)
	require.NoError(t, err)
	b, err := Spawn(env, "settler", level.Vec3{X: 1.5, Z: 0.5}, 2)
	require.NoError(t, err)

	a.Attack(b.ID(), 5)
	a.Attack("nobody", 5)
	mobs := Commit(w, []*Mob{a, b})
	require.Len(t, mobs, 2)
	require.Equal(t, 15.0, b.Health())
	require.Len(t, w.EntitiesWithin(level.Vec3{}, 10), 2)

	w.SetGameTime(HurtMemoryTicks + 1)
	Commit(w, mobs)
	_, ok := w.LastDamage(b.ID())
	require.False(t, ok, "old damage is forgotten")

	a.Attack(b.ID(), 50)
	mobs = Commit(w, mobs)
	require.Equal(t, []*Mob{a}, mobs)
	require.False(t, b.Alive())
	require.Len(t, w.EntitiesWithin(level.Vec3{}, 10), 1)
}

func TestRestoreSeedsPersistentMemories(t *testing.T) {
	w := flatWorld(t)
	env := testEnv(t, w, nil)
	m, err := Spawn(env, "settler", level.Vec3{X: 0.5, Z: 0.5}, 9)
	require.NoError(t, err)
	memory.Set(m.Brain().Memory(), memkeys.LastSlept, uint64(1234))
	memory.Set(m.Brain().Memory(), memkeys.WalkTargetKey, memkeys.WalkTarget{Pos: level.BlockPos{X: 1}})
	entries, err := m.Brain().EncodeMemories()
	require.NoError(t, err)

	r, skipped, err := Restore(env, "settler", m.ID(), level.Vec3{X: 0.5, Z: 0.5}, 10, entries)
	require.NoError(t, err)
	require.Zero(t, skipped)
	require.Equal(t, m.ID(), r.ID())
	v, ok := memory.Get(r.Brain().Memory(), memkeys.LastSlept)
	require.True(t, ok)
	require.EqualValues(t, 1234, v)
	require.True(t, r.Brain().HasMemory(memkeys.WalkTargetKey, memory.Absent))
}

func TestExportImportKeepsIdentity(t *testing.T) {
	w := flatWorld(t)
	env := testEnv(t, w, nil)
	m, err := Spawn(env, "settler", level.Vec3{X: 3.5, Z: -1.5}, 21)
	require.NoError(t, err)
	m.Damage(6)
	memory.Set(m.Brain().Memory(), memkeys.LastSlept, uint64(99))

	rec, err := m.Export()
	require.NoError(t, err)
	require.Equal(t, "settler", rec.Archetype)
	require.Len(t, rec.Memories, 1)
	require.Equal(t, int64(21), rec.Seed)

	r, skipped, err := Import(env, rec)
	require.NoError(t, err)
	require.Zero(t, skipped)
	require.Equal(t, m.ID(), r.ID())
	require.Equal(t, m.Position(), r.Position())
	require.Equal(t, 14.0, r.Health())
}
