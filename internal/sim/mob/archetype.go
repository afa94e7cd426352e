package mob

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/google/uuid"

	"voxelmind.ai/internal/sim/brain"
	"voxelmind.ai/internal/sim/brain/behavior"
	"voxelmind.ai/internal/sim/brain/behaviors"
	"voxelmind.ai/internal/sim/brain/memkeys"
	"voxelmind.ai/internal/sim/brain/memory"
	"voxelmind.ai/internal/sim/brain/schedule"
	"voxelmind.ai/internal/sim/brain/sensing"
	"voxelmind.ai/internal/sim/level"
	"voxelmind.ai/internal/sim/nav"
)

// Env supplies the shared services an archetype is built against. Nil
// funcs fall back to defaults.
type Env struct {
	World        level.World
	Finder       nav.Pathfinder
	NavOptions   []nav.Option
	BrainOptions []brain.Option

	ScheduleFn    func(archetype string) *schedule.Schedule
	NewIDFn       func(rng *rand.Rand) string
	FollowRangeFn func(archetype string) float64

	// FixedSensorPhase starts every sensor on the first tick instead of a
	// random offset.
	FixedSensorPhase bool
}

func (e Env) Schedule(archetype string) *schedule.Schedule {
	if e.ScheduleFn == nil {
		return schedule.Empty
	}
	if s := e.ScheduleFn(archetype); s != nil {
		return s
	}
	return schedule.Empty
}

// NewID derives the id from the entity's own random source so seeded runs
// reproduce the same ids.
func (e Env) NewID(rng *rand.Rand) string {
	if e.NewIDFn != nil {
		return e.NewIDFn(rng)
	}
	id, err := uuid.NewRandomFromReader(rng)
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

type Archetype struct {
	Name  string
	Body  Body
	build func(m *Mob, env Env, opts []brain.Option) (*brain.Brain[*Mob], error)
}

var archetypes = map[string]Archetype{
	"settler": {
		Name:  "settler",
		Body:  Body{Width: 0.6, Height: 1.95, Speed: 0.25, FollowRange: 48},
		build: buildSettler,
	},
	"raider": {
		Name:  "raider",
		Body:  Body{Width: 0.6, Height: 1.95, Speed: 0.35, FollowRange: 32},
		build: buildRaider,
	},
}

// Archetypes lists the registered archetype names.
func Archetypes() []string {
	out := make([]string, 0, len(archetypes))
	for name := range archetypes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Spawn builds a mob of the named archetype at pos. seed drives everything
// random about it, its id included.
func Spawn(env Env, archetype string, pos level.Vec3, seed int64) (*Mob, error) {
	a, ok := archetypes[archetype]
	if !ok {
		return nil, fmt.Errorf("mob: unknown archetype %q", archetype)
	}
	if env.World == nil || env.Finder == nil {
		return nil, errors.New("mob: env needs a world and a pathfinder")
	}
	rng := rand.New(rand.NewSource(seed))
	m := &Mob{
		kind:   a.Name,
		body:   a.Body,
		seed:   seed,
		rng:    rng,
		pos:    pos,
		health: maxHealth,
	}
	if env.FollowRangeFn != nil {
		if r := env.FollowRangeFn(archetype); r > 0 {
			m.body.FollowRange = r
		}
	}
	m.id = env.NewID(rng)
	var mode nav.Mode = nav.Ground{CanOpenDoors: true, CanPassDoors: true, CanFloat: true}
	if a.Body.Flying {
		mode = nav.Fly{}
	}
	m.nav = nav.New(env.World, m, mode, env.Finder, env.NavOptions...)
	opts := append([]brain.Option(nil), env.BrainOptions...)
	if !env.FixedSensorPhase {
		opts = append(opts, brain.WithSensorJitter(rng, a.Name))
	}
	b, err := a.build(m, env, opts)
	if err != nil {
		return nil, fmt.Errorf("mob: build %s: %w", archetype, err)
	}
	m.brain = b
	return m, nil
}

// Restore spawns a mob and seeds its brain from snapshot entries.
func Restore(env Env, archetype, id string, pos level.Vec3, seed int64, entries []memory.Entry) (*Mob, int, error) {
	m, err := Spawn(env, archetype, pos, seed)
	if err != nil {
		return nil, 0, err
	}
	if id != "" {
		m.id = id
	}
	return m, m.brain.DecodeMemories(entries), nil
}

func walkKeys() []memory.Handle {
	return []memory.Handle{memkeys.WalkTargetKey, memkeys.PathKey, memkeys.CantReachWalkTargetSince, memkeys.LookTarget}
}

func stroll() behavior.Behavior[*Mob] {
	return behavior.NewRunOne[*Mob]("stroll_or_idle", []behavior.Precondition{behavior.Absent(memkeys.WalkTargetKey)},
		behavior.Weighted[*Mob]{Behavior: behaviors.RandomStroll[*Mob](0.5, 10, 7), Weight: 2},
		behavior.Weighted[*Mob]{Behavior: behavior.DoNothing[*Mob](30, 60), Weight: 1},
	)
}

func buildSettler(m *Mob, env Env, opts []brain.Option) (*brain.Brain[*Mob], error) {
	keys := append(walkKeys(), memkeys.LastSlept, memkeys.LastWorkedAtPoi)
	sensors := []sensing.Sensor{
		sensing.NewNearestLiving(16, 16),
		sensing.NewNearestPlayers(16),
		sensing.NewHurtBy(),
		sensing.NewNearestHostile(map[string]float64{"raider": 12}),
		sensing.NewNearestBlock("job_site", "CAULDRON", memkeys.JobSite, 24, 4),
		sensing.NewNearestBlock("home", "DOOR", memkeys.Home, 24, 4),
		sensing.NewNearestBlock("meeting_point", "LOG", memkeys.MeetingPoint, 32, 4),
	}
	b := brain.New[*Mob](keys, sensors, opts...)
	b.SetCoreActivities(schedule.Core)
	b.SetSchedule(env.Schedule("settler"))

	err := errors.Join(
		b.AddActivity(schedule.Core, 0,
			behaviors.UpdateActivityFromSchedule[*Mob](schedule.Panic),
			behaviors.MoveToTargetSink[*Mob](150, 250),
			behaviors.ForgetWhen[*Mob]("forget_stale_work", memkeys.LastWorkedAtPoi,
				func(w level.World, _ *Mob, at uint64) bool { return w.GameTime()-at > staleWorkTicks }),
		),
		b.AddActivityAndRemoveMemoriesWhenStopped(schedule.Panic,
			brain.Sequence(10, fleeFromHostile()),
			[]behavior.Precondition{behavior.Present(memkeys.NearestHostile)},
			[]memory.Handle{memkeys.WalkTargetKey}),
		b.AddActivity(schedule.Work, 10,
			behaviors.SetWalkTargetFromMemory[*Mob](memkeys.JobSite, 0.5, 1, 48),
			recordVisit("work_at_job_site", memkeys.JobSite, memkeys.LastWorkedAtPoi),
			stroll()),
		b.AddActivity(schedule.Meet, 10,
			behaviors.SetWalkTargetFromMemory[*Mob](memkeys.MeetingPoint, 0.5, 2, 64),
			stroll()),
		b.AddActivity(schedule.Rest, 10,
			behaviors.SetWalkTargetFromMemory[*Mob](memkeys.Home, 0.5, 1, 48),
			recordVisit("sleep_at_home", memkeys.Home, memkeys.LastSlept),
			behavior.DoNothing[*Mob](20, 40)),
		b.AddActivity(schedule.Idle, 10, stroll()),
	)
	if err != nil {
		return nil, err
	}
	b.UseDefaultActivity()
	return b, nil
}

func buildRaider(m *Mob, env Env, opts []brain.Option) (*brain.Brain[*Mob], error) {
	keys := append(walkKeys(), memkeys.AttackTarget)
	sensors := []sensing.Sensor{
		sensing.NewNearestLiving(24, 24),
		sensing.NewHurtBy(),
	}
	b := brain.New[*Mob](keys, sensors, opts...)
	b.SetCoreActivities(schedule.Core)
	b.SetSchedule(env.Schedule("raider"))

	err := errors.Join(
		b.AddActivity(schedule.Core, 0,
			behaviors.UpdateActivityFromSchedule[*Mob](schedule.Fight),
			behaviors.MoveToTargetSink[*Mob](150, 250),
			behaviors.ForgetWhen[*Mob]("forget_lost_target", memkeys.AttackTarget,
				func(_ level.World, e *Mob, t level.EntityRef) bool { _, ok := visible(e, t.ID); return !ok }),
		),
		b.AddActivityAndRemoveMemoriesWhenStopped(schedule.Fight,
			brain.Sequence(10, chaseTarget(0.8), meleeAttack(4, 20)),
			[]behavior.Precondition{behavior.Present(memkeys.AttackTarget)},
			[]memory.Handle{memkeys.WalkTargetKey}),
		b.AddActivity(schedule.Idle, 10, pickTarget("settler"), stroll()),
	)
	if err != nil {
		return nil, err
	}
	b.UseDefaultActivity()
	return b, nil
}
