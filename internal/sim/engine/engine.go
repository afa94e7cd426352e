// Package engine owns the simulation loop: it ticks every mob in parallel
// shards, commits their effects, advances the clock and hands out snapshots.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"voxelmind.ai/internal/observerproto"
	"voxelmind.ai/internal/persistence/snapshot"
	"voxelmind.ai/internal/sim/brain"
	"voxelmind.ai/internal/sim/brain/schedule"
	"voxelmind.ai/internal/sim/brain/sensing"
	"voxelmind.ai/internal/sim/level"
	"voxelmind.ai/internal/sim/level/voxel"
	"voxelmind.ai/internal/sim/mob"
	"voxelmind.ai/internal/sim/nav"
	"voxelmind.ai/internal/sim/pathfind"
	"voxelmind.ai/internal/sim/runner"
	"voxelmind.ai/internal/sim/tuning"
)

type Config struct {
	WorldID string
	Tuning  tuning.Tuning
	Sink    nav.Sink
	Log     *zap.Logger

	// OnTick receives the committed state after every tick. It runs on the
	// loop goroutine and must not block.
	OnTick func(observerproto.TickMsg)
}

type snapReq struct {
	resp chan snapResp
}

type snapResp struct {
	tick uint64
	err  error
}

type Engine struct {
	cfg Config
	log *zap.Logger

	world     *voxel.World
	env       mob.Env
	runner    *runner.Runner[*mob.Mob]
	periods   *sensing.PeriodTable
	schedules map[string]*schedule.Schedule

	mobs []*mob.Mob

	snapshots chan snapshot.SnapshotV1
	snapReq   chan snapReq
	stateReq  chan chan observerproto.BootstrapResponse
	tuningCh  chan tuning.Tuning
}

func New(cfg Config) (*Engine, error) {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Sink == nil {
		cfg.Sink = nav.SinkFuncs{}
	}
	t := cfg.Tuning
	w, err := voxel.New(t.WorldConfig())
	if err != nil {
		return nil, fmt.Errorf("engine: world: %w", err)
	}
	scheds, err := t.ParseSchedules()
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e := &Engine{
		cfg:       cfg,
		log:       cfg.Log,
		world:     w,
		periods:   t.PeriodTable(),
		schedules: scheds,
		snapshots: make(chan snapshot.SnapshotV1, 2),
		snapReq:   make(chan snapReq, 4),
		stateReq:  make(chan chan observerproto.BootstrapResponse, 4),
		tuningCh:  make(chan tuning.Tuning, 1),
	}
	e.env = mob.Env{
		World:  w,
		Finder: pathfind.New(),
		NavOptions: []nav.Option{
			nav.WithConfig(t.Navigation.Config),
			nav.WithSink(cfg.Sink),
			nav.WithLogger(cfg.Log.Named("nav")),
		},
		BrainOptions: []brain.Option{
			brain.WithScanPeriods(e.periods),
			brain.WithScheduleInterval(t.Brain.ScheduleIntervalTicks),
			brain.WithLogger(cfg.Log.Named("brain")),
		},
		ScheduleFn:       func(a string) *schedule.Schedule { return e.schedules[a] },
		FollowRangeFn:    t.FollowRange,
		FixedSensorPhase: !t.Jitter(),
	}
	e.runner = runner.New[*mob.Mob](runner.WithShards(t.Shards), runner.WithLogger(cfg.Log.Named("runner")))
	e.seedVillage()
	return e, nil
}

func (e *Engine) World() *voxel.World { return e.world }

// Mobs returns the live population. Only safe while the loop is not running.
func (e *Engine) Mobs() []*mob.Mob { return e.mobs }

// Snapshots delivers periodic and requested snapshots. Unread snapshots are
// dropped rather than stalling the loop.
func (e *Engine) Snapshots() <-chan snapshot.SnapshotV1 { return e.snapshots }

// seedVillage places one of each settler point of interest inside the spawn
// clearing so a fresh world has something to work, meet and sleep at.
func (e *Engine) seedVillage() {
	cfg := e.world.Config()
	r := cfg.SpawnClearRadius - 1
	if r < 2 {
		r = 2
	}
	y := cfg.SurfaceY
	e.world.SetBlock(level.BlockPos{X: r, Y: y, Z: 0}, "CAULDRON")
	e.world.SetBlock(level.BlockPos{X: -r, Y: y, Z: 0}, "DOOR")
	e.world.SetBlock(level.BlockPos{X: 0, Y: y, Z: r}, "LOG")
}

// Populate spawns the configured number of mobs per archetype. It is used
// for fresh worlds; resumed worlds use Restore.
func (e *Engine) Populate() error {
	t := e.cfg.Tuning
	cfg := e.world.Config()
	rng := rand.New(rand.NewSource(cfg.Seed))
	for _, name := range t.SpawnOrder() {
		for i := 0; i < t.Spawns[name]; i++ {
			pos, ok := e.spawnPos(rng)
			if !ok {
				return fmt.Errorf("engine: no free spawn column for %s", name)
			}
			m, err := mob.Spawn(e.env, name, pos, rng.Int63())
			if err != nil {
				return err
			}
			e.mobs = append(e.mobs, m)
		}
	}
	e.mobs = mob.Commit(e.world, e.mobs)
	e.log.Info("populated", zap.Int("mobs", len(e.mobs)))
	return nil
}

func (e *Engine) spawnPos(rng *rand.Rand) (level.Vec3, bool) {
	cfg := e.world.Config()
	r := cfg.SpawnClearRadius
	for i := 0; i < 64; i++ {
		x, z := rng.Intn(2*r+1)-r, rng.Intn(2*r+1)-r
		feet := level.BlockPos{X: x, Y: cfg.SurfaceY, Z: z}
		if e.world.BlockAt(feet).IsAir() && e.world.BlockAt(feet.Above()).IsAir() {
			return level.Vec3{X: float64(x) + 0.5, Y: float64(cfg.SurfaceY), Z: float64(z) + 0.5}, true
		}
	}
	return level.Vec3{}, false
}

// Restore replaces the population with the mobs in snap and rewinds the
// clock to its tick.
func (e *Engine) Restore(snap snapshot.SnapshotV1) error {
	e.world.SetGameTime(snap.Header.Tick)
	mobs := make([]*mob.Mob, 0, len(snap.Mobs))
	for _, rec := range snap.Mobs {
		m, skipped, err := mob.Import(e.env, rec)
		if err != nil {
			return fmt.Errorf("engine: restore %s: %w", rec.ID, err)
		}
		if skipped > 0 {
			e.log.Warn("restored with skipped memories", zap.String("mob", rec.ID), zap.Int("skipped", skipped))
		}
		mobs = append(mobs, m)
	}
	e.mobs = mob.Commit(e.world, mobs)
	e.log.Info("restored", zap.Uint64("tick", snap.Header.Tick), zap.Int("mobs", len(e.mobs)))
	return nil
}

// Step runs one tick: every mob thinks and moves against the world as it
// was, then their effects are committed and the clock advances.
func (e *Engine) Step(ctx context.Context) error {
	failed, err := e.runner.Step(ctx, e.world, e.mobs)
	if err != nil {
		return err
	}
	e.mobs = mob.Commit(e.world, e.mobs)
	tick := e.world.Advance()

	if e.cfg.OnTick != nil {
		e.cfg.OnTick(observerproto.TickMsg{
			Tick:    tick,
			DayTime: e.world.DayTime(),
			Mobs:    e.states(),
			Failed:  failed,
		})
	}
	if every := e.cfg.Tuning.SnapshotEveryTicks; every > 0 && tick%every == 0 {
		if _, err := e.emitSnapshot(); err != nil {
			e.log.Warn("periodic snapshot failed", zap.Uint64("tick", tick), zap.Error(err))
		}
	}
	return nil
}

// Run steps at the tuned tick rate until ctx is done. Requests made through
// RequestSnapshot, State and ApplyTuning are served between ticks.
func (e *Engine) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(e.cfg.Tuning.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-e.tuningCh:
			e.applyTuning(t)
		case req := <-e.snapReq:
			tick, err := e.emitSnapshot()
			req.resp <- snapResp{tick: tick, err: err}
		case resp := <-e.stateReq:
			resp <- e.bootstrap()
		case <-ticker.C:
			start := time.Now()
			if err := e.Step(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				e.log.Error("step failed", zap.Error(err))
			}
			if d := time.Since(start); d > interval {
				e.log.Debug("tick overran", zap.Duration("took", d), zap.Duration("budget", interval))
			}
		}
	}
}

// Snapshot captures every mob. Only safe while the loop is not running.
func (e *Engine) Snapshot() (snapshot.SnapshotV1, error) {
	cfg := e.world.Config()
	snap := snapshot.SnapshotV1{
		Header:    snapshot.Header{Version: snapshot.Version, WorldID: e.cfg.WorldID, Tick: e.world.GameTime()},
		Seed:      cfg.Seed,
		TickRate:  e.cfg.Tuning.TickRateHz,
		DayTicks:  cfg.DayTicks,
		MinY:      cfg.MinY,
		Height:    cfg.Height,
		BoundaryR: cfg.BoundaryR,
		Mobs:      make([]snapshot.MobV1, 0, len(e.mobs)),
	}
	for _, m := range e.mobs {
		rec, err := m.Export()
		if err != nil {
			return snap, err
		}
		snap.Mobs = append(snap.Mobs, rec)
	}
	return snap, nil
}

func (e *Engine) emitSnapshot() (uint64, error) {
	snap, err := e.Snapshot()
	if err != nil {
		return 0, err
	}
	select {
	case e.snapshots <- snap:
	default:
		return snap.Header.Tick, errors.New("engine: snapshot queue full")
	}
	return snap.Header.Tick, nil
}

// RequestSnapshot asks the running loop for a snapshot and returns its tick.
func (e *Engine) RequestSnapshot(ctx context.Context) (uint64, error) {
	req := snapReq{resp: make(chan snapResp, 1)}
	select {
	case e.snapReq <- req:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case r := <-req.resp:
		return r.tick, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// State asks the running loop for the current world description.
func (e *Engine) State(ctx context.Context) (observerproto.BootstrapResponse, error) {
	resp := make(chan observerproto.BootstrapResponse, 1)
	select {
	case e.stateReq <- resp:
	case <-ctx.Done():
		return observerproto.BootstrapResponse{}, ctx.Err()
	}
	select {
	case b := <-resp:
		return b, nil
	case <-ctx.Done():
		return observerproto.BootstrapResponse{}, ctx.Err()
	}
}

// ApplyTuning hands a reloaded tuning to the loop. Scan periods and
// schedules change for every mob; navigation settings only apply to mobs
// spawned afterwards. A newer tuning replaces one not yet applied.
func (e *Engine) ApplyTuning(t tuning.Tuning) {
	for {
		select {
		case e.tuningCh <- t:
			return
		default:
		}
		select {
		case <-e.tuningCh:
		default:
		}
	}
}

func (e *Engine) applyTuning(t tuning.Tuning) {
	scheds, err := t.ParseSchedules()
	if err != nil {
		e.log.Warn("tuning rejected", zap.Error(err))
		return
	}
	t.Publish(e.periods)
	e.schedules = scheds
	for _, m := range e.mobs {
		m.Brain().SetSchedule(e.env.Schedule(m.Type()))
	}
	e.cfg.Tuning.Brain = t.Brain
	e.cfg.Tuning.Schedules = t.Schedules
	e.log.Info("tuning applied", zap.Int("schedules", len(scheds)))
}

func (e *Engine) bootstrap() observerproto.BootstrapResponse {
	cfg := e.world.Config()
	return observerproto.BootstrapResponse{
		ProtocolVersion: observerproto.Version,
		Tick:            e.world.GameTime(),
		WorldParams: observerproto.WorldParams{
			TickRateHz: e.cfg.Tuning.TickRateHz,
			DayTicks:   cfg.DayTicks,
			Seed:       cfg.Seed,
			MinY:       cfg.MinY,
			Height:     cfg.Height,
			BoundaryR:  cfg.BoundaryR,
		},
		Mobs: e.states(),
	}
}

func (e *Engine) states() []observerproto.MobState {
	out := make([]observerproto.MobState, 0, len(e.mobs))
	for _, m := range e.mobs {
		p := m.Position()
		st := observerproto.MobState{
			ID:        m.ID(),
			Archetype: m.Type(),
			Pos:       [3]float64{p.X, p.Y, p.Z},
			Health:    m.Health(),
		}
		for _, a := range m.Brain().ActiveActivities() {
			st.Activities = append(st.Activities, string(a))
		}
		for _, b := range m.Brain().RunningBehaviors() {
			st.Running = append(st.Running, b.Name())
		}
		out = append(out, st)
	}
	return out
}
