package behaviors

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"voxelmind.ai/internal/sim/brain"
	"voxelmind.ai/internal/sim/brain/behavior"
	"voxelmind.ai/internal/sim/brain/memkeys"
	"voxelmind.ai/internal/sim/brain/memory"
	"voxelmind.ai/internal/sim/brain/schedule"
	"voxelmind.ai/internal/sim/level"
	"voxelmind.ai/internal/sim/level/voxel"
	"voxelmind.ai/internal/sim/nav"
)

type walker struct {
	pos level.Vec3
	rng *rand.Rand
	nav *nav.Navigation
}

func (w *walker) ID() string                             { return "walker-1" }
func (w *walker) Type() string                           { return "settler" }
func (w *walker) Position() level.Vec3                   { return w.pos }
func (w *walker) Alive() bool                            { return true }
func (w *walker) Random() *rand.Rand                     { return w.rng }
func (w *walker) Navigation() *nav.Navigation            { return w.nav }
func (w *walker) BBWidth() float64                       { return 0.6 }
func (w *walker) BBHeight() float64                      { return 1.8 }
func (w *walker) Speed() float64                         { return 0.2 }
func (w *walker) FollowRange() float64                   { return 16 }
func (w *walker) OnGround() bool                         { return true }
func (w *walker) InLiquid() bool                         { return false }
func (w *walker) SetWantedPosition(level.Vec3, float64) {}

// flatWorld stands walkers at y=0.
func flatWorld(t *testing.T) *voxel.World {
	t.Helper()
	w, err := voxel.New(voxel.Config{MinY: -4, Height: 16, SurfaceY: 0})
	require.NoError(t, err)
	return w
}

// scriptedFinder walks a straight line along x to the first target, or
// returns whatever plan yields for it.
type scriptedFinder struct {
	calls int
	plan  func(target level.BlockPos) *nav.Path
}

func (f *scriptedFinder) FindPath(req nav.Request) *nav.Path {
	f.calls++
	if f.plan != nil {
		return f.plan(req.Targets[0])
	}
	return straightTo(req.Targets[0], true)
}

func straightTo(target level.BlockPos, reached bool) *nav.Path {
	var nodes []nav.Node
	for x := 0; x <= target.X; x++ {
		nodes = append(nodes, nav.Node{X: x, Y: target.Y, Z: target.Z, Type: nav.Walkable})
	}
	return nav.NewPath(nodes, target, reached)
}

func newWalker(w level.World, f nav.Pathfinder, seed int64) *walker {
	e := &walker{pos: level.Vec3{X: 0.5, Z: 0.5}, rng: rand.New(rand.NewSource(seed))}
	e.nav = nav.New(w, e, nav.Ground{}, f)
	return e
}

func walkStore() *memory.Store {
	return memory.NewStore(memkeys.WalkTargetKey, memkeys.PathKey, memkeys.CantReachWalkTargetSince, memkeys.Home)
}

func TestMoveToTargetSinkFollowsPath(t *testing.T) {
	w := flatWorld(t)
	f := &scriptedFinder{}
	e := newWalker(w, f, 1)
	mem := walkStore()
	task := MoveToTargetSink[*walker](100, 100)

	memory.Set(mem, memkeys.WalkTargetKey, memkeys.WalkTarget{Pos: level.BlockPos{X: 6}, Speed: 1})
	require.True(t, task.TryStart(w, e, mem, 0))
	require.True(t, mem.Has(memkeys.PathKey, memory.Present))
	require.True(t, mem.Has(memkeys.CantReachWalkTargetSince, memory.Absent))
	require.Equal(t, level.BlockPos{X: 6}, e.nav.Path().Target())
	require.Equal(t, 1, f.calls)

	task.TickOrStop(w, e, mem, 1)
	require.Equal(t, 1, f.calls)

	task.DoStop(w, e, mem, 2)
	require.True(t, mem.Has(memkeys.WalkTargetKey, memory.Absent))
	require.True(t, mem.Has(memkeys.PathKey, memory.Absent))
	require.True(t, e.nav.IsDone())
}

func TestMoveToTargetSinkReplansWhenTargetDrifts(t *testing.T) {
	w := flatWorld(t)
	f := &scriptedFinder{}
	e := newWalker(w, f, 1)
	mem := walkStore()
	task := MoveToTargetSink[*walker](100, 100)

	memory.Set(mem, memkeys.WalkTargetKey, memkeys.WalkTarget{Pos: level.BlockPos{X: 6}, Speed: 1})
	require.True(t, task.TryStart(w, e, mem, 0))

	memory.Set(mem, memkeys.WalkTargetKey, memkeys.WalkTarget{Pos: level.BlockPos{X: 7}, Speed: 1})
	task.TickOrStop(w, e, mem, 1)
	require.Equal(t, 1, f.calls, "a one block drift keeps the path")

	memory.Set(mem, memkeys.WalkTargetKey, memkeys.WalkTarget{Pos: level.BlockPos{X: 9}, Speed: 1})
	task.TickOrStop(w, e, mem, 2)
	require.Equal(t, 2, f.calls)
	require.Equal(t, level.BlockPos{X: 9}, e.nav.Path().Target())
	got, ok := memory.Get(mem, memkeys.PathKey)
	require.True(t, ok)
	require.Same(t, e.nav.Path(), got)
}

func TestMoveToTargetSinkTracksUnreachableTargets(t *testing.T) {
	w := flatWorld(t)
	reachable := false
	f := &scriptedFinder{plan: func(target level.BlockPos) *nav.Path { return straightTo(target, reachable) }}
	e := newWalker(w, f, 1)
	mem := walkStore()
	task := MoveToTargetSink[*walker](100, 100)
	for i := 0; i < 5; i++ {
		w.Advance()
	}

	memory.Set(mem, memkeys.WalkTargetKey, memkeys.WalkTarget{Pos: level.BlockPos{X: 6}, Speed: 1})
	require.True(t, task.TryStart(w, e, mem, w.GameTime()))
	since, ok := memory.Get(mem, memkeys.CantReachWalkTargetSince)
	require.True(t, ok)
	require.EqualValues(t, 5, since)
	task.DoStop(w, e, mem, w.GameTime())

	// A later failure keeps the first timestamp.
	w.Advance()
	memory.Set(mem, memkeys.WalkTargetKey, memkeys.WalkTarget{Pos: level.BlockPos{X: 4}, Speed: 1})
	require.True(t, task.TryStart(w, e, mem, w.GameTime()))
	since, _ = memory.Get(mem, memkeys.CantReachWalkTargetSince)
	require.EqualValues(t, 5, since)
	task.DoStop(w, e, mem, w.GameTime())

	reachable = true
	memory.Set(mem, memkeys.WalkTargetKey, memkeys.WalkTarget{Pos: level.BlockPos{X: 3}, Speed: 1})
	require.True(t, task.TryStart(w, e, mem, w.GameTime()))
	require.True(t, mem.Has(memkeys.CantReachWalkTargetSince, memory.Absent))
}

func TestMoveToTargetSinkWalksTowardTargetWithoutPath(t *testing.T) {
	w := flatWorld(t)
	target := level.BlockPos{X: 30}
	f := &scriptedFinder{plan: func(p level.BlockPos) *nav.Path {
		if p == target {
			return nil
		}
		return nav.NewPath([]nav.Node{{X: p.X, Y: p.Y, Z: p.Z, Type: nav.Walkable}}, p, true)
	}}

	seed := int64(1)
	var want level.BlockPos
	for ; seed < 100; seed++ {
		var ok bool
		if want, ok = RandomPosTowards(w, newWalker(w, f, seed), target, 10, 7); ok {
			break
		}
	}
	require.Less(t, seed, int64(100))

	e := newWalker(w, f, seed)
	mem := walkStore()
	task := MoveToTargetSink[*walker](100, 100)
	memory.Set(mem, memkeys.WalkTargetKey, memkeys.WalkTarget{Pos: target, Speed: 1})
	require.True(t, task.TryStart(w, e, mem, 0))
	require.Equal(t, want, e.nav.Path().Target())
	require.Less(t, want.DistSqr(target), level.BlockPos{}.DistSqr(target))
	require.True(t, mem.Has(memkeys.CantReachWalkTargetSince, memory.Present))
}

func TestStuckWalkerWaitsBeforeRetrying(t *testing.T) {
	seed := int64(1)
	for rand.New(rand.NewSource(seed)).Intn(StuckCooldownTicks) == 0 {
		seed++
	}
	wantWait := rand.New(rand.NewSource(seed)).Intn(StuckCooldownTicks)

	w := flatWorld(t)
	e := newWalker(w, &scriptedFinder{}, seed)
	mem := walkStore()
	task := MoveToTargetSink[*walker](200, 200)
	memory.Set(mem, memkeys.WalkTargetKey, memkeys.WalkTarget{Pos: level.BlockPos{X: 6}, Speed: 1})
	require.True(t, task.TryStart(w, e, mem, 0))

	// The walker never moves, so navigation gives up after its stuck window.
	for i := 0; i < 150 && task.Status() != behavior.Stopped; i++ {
		w.Advance()
		e.nav.Tick()
		task.TickOrStop(w, e, mem, w.GameTime())
	}
	require.True(t, e.nav.IsStuck())
	require.True(t, mem.Has(memkeys.WalkTargetKey, memory.Absent))

	memory.Set(mem, memkeys.WalkTargetKey, memkeys.WalkTarget{Pos: level.BlockPos{X: 6}, Speed: 1})
	waited := 0
	for !task.TryStart(w, e, mem, w.GameTime()) {
		waited++
		require.LessOrEqual(t, waited, StuckCooldownTicks)
	}
	require.Equal(t, wantWait, waited)
}

func TestSetWalkTargetFromMemory(t *testing.T) {
	w := flatWorld(t)
	e := newWalker(w, &scriptedFinder{}, 1)
	walk := SetWalkTargetFromMemory[*walker](memkeys.Home, 0.5, 2, 48)

	mem := walkStore()
	memory.Set(mem, memkeys.Home, level.BlockPos{X: 10})
	require.True(t, walk.TryStart(w, e, mem, 0))
	walk.TickOrStop(w, e, mem, 0)
	got, ok := memory.Get(mem, memkeys.WalkTargetKey)
	require.True(t, ok)
	require.Equal(t, memkeys.WalkTarget{Pos: level.BlockPos{X: 10}, Speed: 0.5, CloseEnough: 2}, got)

	mem = walkStore()
	memory.Set(mem, memkeys.Home, level.BlockPos{X: 1})
	require.False(t, walk.TryStart(w, e, mem, 0), "already close enough")
	require.True(t, mem.Has(memkeys.WalkTargetKey, memory.Absent))

	mem = walkStore()
	memory.Set(mem, memkeys.Home, level.BlockPos{X: 100})
	require.True(t, walk.TryStart(w, e, mem, 0))
	walk.TickOrStop(w, e, mem, 0)
	require.True(t, mem.Has(memkeys.Home, memory.Absent), "too far away is forgotten")
	require.True(t, mem.Has(memkeys.WalkTargetKey, memory.Absent))
}

func TestSetWalkTargetForgetsLongUnreachableBlocks(t *testing.T) {
	w := flatWorld(t)
	e := newWalker(w, &scriptedFinder{}, 1)
	walk := SetWalkTargetFromMemory[*walker](memkeys.Home, 0.5, 2, 48)
	mem := walkStore()
	memory.Set(mem, memkeys.Home, level.BlockPos{X: 10})
	memory.Set(mem, memkeys.CantReachWalkTargetSince, uint64(100))

	require.True(t, walk.TryStart(w, e, mem, 100+TooLongUnreachableTicks))
	walk.TickOrStop(w, e, mem, 100+TooLongUnreachableTicks)
	require.True(t, mem.Has(memkeys.Home, memory.Present))
	mem.Erase(memkeys.WalkTargetKey)

	require.True(t, walk.TryStart(w, e, mem, 101+TooLongUnreachableTicks))
	require.True(t, mem.Has(memkeys.Home, memory.Absent))
	require.True(t, mem.Has(memkeys.CantReachWalkTargetSince, memory.Absent))
	require.True(t, mem.Has(memkeys.WalkTargetKey, memory.Absent))
}

var panicking = memory.NewFlagKey("panicking")

type thinker struct {
	rng *rand.Rand
	b   *brain.Brain[*thinker]
}

func (t *thinker) ID() string                    { return "thinker-1" }
func (t *thinker) Type() string                  { return "settler" }
func (t *thinker) Position() level.Vec3          { return level.Vec3{} }
func (t *thinker) Alive() bool                   { return true }
func (t *thinker) Random() *rand.Rand            { return t.rng }
func (t *thinker) Brain() *brain.Brain[*thinker] { return t.b }

func TestUpdateActivityFromScheduleOverrides(t *testing.T) {
	w := flatWorld(t)
	b := brain.New[*thinker]([]memory.Handle{panicking}, nil)
	b.SetCoreActivities(schedule.Core)
	require.NoError(t, b.AddActivity(schedule.Core, 0))
	require.NoError(t, b.AddActivity(schedule.Idle, 10))
	require.NoError(t, b.AddActivity(schedule.Work, 10))
	require.NoError(t, b.AddActivityAndRemoveMemoryWhenStopped(schedule.Panic, 10, nil, panicking))
	day, err := schedule.Parse("day", "at 0 work", 24000)
	require.NoError(t, err)
	b.SetSchedule(day)
	e := &thinker{rng: rand.New(rand.NewSource(1)), b: b}

	update := UpdateActivityFromSchedule[*thinker](schedule.Panic)
	run := func() {
		t.Helper()
		require.True(t, update.TryStart(w, e, b.Memory(), w.GameTime()))
		update.TickOrStop(w, e, b.Memory(), w.GameTime())
	}

	run()
	require.True(t, b.IsActive(schedule.Work))

	memory.Set(b.Memory(), panicking, memory.Unit{})
	run()
	require.True(t, b.IsActive(schedule.Panic))
	run()
	require.True(t, b.IsActive(schedule.Panic), "the schedule never preempts a valid override")

	// Same game tick: the schedule lookup is not throttled once the override ends.
	b.EraseMemory(panicking)
	run()
	require.True(t, b.IsActive(schedule.Work))
	require.False(t, b.IsActive(schedule.Panic))
}
