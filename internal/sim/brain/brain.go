// Package brain schedules an entity's behaviors by priority and activity on
// top of its memory store and sensors.
package brain

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"go.uber.org/zap"

	"voxelmind.ai/internal/sim/brain/behavior"
	"voxelmind.ai/internal/sim/brain/memory"
	"voxelmind.ai/internal/sim/brain/schedule"
	"voxelmind.ai/internal/sim/brain/sensing"
	"voxelmind.ai/internal/sim/level"
)

// DefaultScheduleInterval is the minimum number of game ticks between two
// schedule lookups.
const DefaultScheduleInterval = 20

var (
	ErrUnknownActivity   = errors.New("brain: unknown activity")
	ErrDuplicateActivity = errors.New("brain: activity already registered")
)

// Prioritized pairs a behavior with the tier it is started in. Lower
// priorities get the first chance to start each tick.
type Prioritized[E level.Entity] struct {
	Priority int
	Behavior behavior.Behavior[E]
}

// Sequence assigns consecutive priorities starting at start.
func Sequence[E level.Entity](start int, bs ...behavior.Behavior[E]) []Prioritized[E] {
	out := make([]Prioritized[E], len(bs))
	for i, b := range bs {
		out[i] = Prioritized[E]{Priority: start + i, Behavior: b}
	}
	return out
}

type group[E level.Entity] struct {
	activity  schedule.Activity
	behaviors []behavior.Behavior[E]
}

type tier[E level.Entity] struct {
	priority int
	groups   []*group[E]
}

type Option func(*options)

type options struct {
	log              *zap.Logger
	periods          sensing.ScanPeriods
	jitter           *rand.Rand
	jitterType       string
	scheduleInterval uint64
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithScanPeriods applies per-type scan period overrides to every tunable
// sensor.
func WithScanPeriods(p sensing.ScanPeriods) Option {
	return func(o *options) { o.periods = p }
}

// WithSensorJitter delays each sensor's first update by a random fraction of
// its period for entityType so entities spawned together do not scan on the
// same tick.
func WithSensorJitter(rng *rand.Rand, entityType string) Option {
	return func(o *options) {
		o.jitter = rng
		o.jitterType = entityType
	}
}

func WithScheduleInterval(ticks uint64) Option {
	return func(o *options) {
		if ticks > 0 {
			o.scheduleInterval = ticks
		}
	}
}

// Brain is owned by exactly one entity and is not safe for concurrent use.
type Brain[E level.Entity] struct {
	opts    options
	log     *zap.Logger
	mem     *memory.Store
	sensors []sensing.Sensor

	tiers        []*tier[E]
	requirements map[schedule.Activity][]behavior.Precondition
	cleanup      map[schedule.Activity][]memory.Handle

	core            []schedule.Activity
	active          map[schedule.Activity]struct{}
	defaultActivity schedule.Activity

	sched         *schedule.Schedule
	lastSchedule  uint64
	scheduleDirty bool
}

// New builds a brain with the given memory keys and sensors. Keys the
// sensors write are registered too.
func New[E level.Entity](keys []memory.Handle, sensors []sensing.Sensor, opts ...Option) *Brain[E] {
	o := options{log: zap.NewNop(), scheduleInterval: DefaultScheduleInterval}
	for _, fn := range opts {
		fn(&o)
	}
	b := &Brain[E]{
		opts:            o,
		log:             o.log,
		mem:             memory.NewStore(keys...),
		requirements:    map[schedule.Activity][]behavior.Precondition{},
		cleanup:         map[schedule.Activity][]memory.Handle{},
		active:          map[schedule.Activity]struct{}{},
		defaultActivity: schedule.Idle,
		sched:           schedule.Empty,
		scheduleDirty:   true,
	}
	for _, s := range sensors {
		b.addSensor(s)
	}
	return b
}

func (b *Brain[E]) addSensor(s sensing.Sensor) {
	for _, k := range s.Requires() {
		b.mem.Register(k)
	}
	if t, ok := s.(sensing.Tunable); ok {
		if b.opts.periods != nil {
			t.SetScanPeriods(b.opts.periods)
		}
		if b.opts.jitter != nil {
			if p := t.Period(b.opts.jitterType); p > 1 {
				t.SetInitialDelay(b.opts.jitter.Intn(p))
			}
		}
	}
	b.sensors = append(b.sensors, s)
}

// Memory exposes the store for the typed accessors in package memory.
func (b *Brain[E]) Memory() *memory.Store { return b.mem }

func (b *Brain[E]) Sensors() []sensing.Sensor { return b.sensors }

func (b *Brain[E]) EraseMemory(k memory.Handle)                  { b.mem.Erase(k) }
func (b *Brain[E]) HasMemory(k memory.Handle, st memory.Status) bool { return b.mem.Has(k, st) }
func (b *Brain[E]) TimeUntilExpiry(k memory.Handle) int64         { return b.mem.TimeUntilExpiry(k) }
func (b *Brain[E]) ClearMemories()                               { b.mem.Clear() }

// IsMemoryValue reports whether k is present and equal to v.
func IsMemoryValue[E level.Entity, T comparable](b *Brain[E], k memory.Key[T], v T) bool {
	return memory.IsValue(b.mem, k, v)
}

func (b *Brain[E]) SetSchedule(s *schedule.Schedule) {
	if s == nil {
		s = schedule.Empty
	}
	b.sched = s
	b.scheduleDirty = true
}

// RefreshSchedule lets the next UpdateActivityFromSchedule skip the throttle.
func (b *Brain[E]) RefreshSchedule() { b.scheduleDirty = true }

func (b *Brain[E]) Schedule() *schedule.Schedule { return b.sched }

func (b *Brain[E]) SetCoreActivities(as ...schedule.Activity) {
	b.core = append([]schedule.Activity(nil), as...)
}

// SetDefaultActivity names the fallback for activities whose requirements
// do not hold. It must already be registered.
func (b *Brain[E]) SetDefaultActivity(a schedule.Activity) error {
	if _, ok := b.requirements[a]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownActivity, a)
	}
	b.defaultActivity = a
	return nil
}

func (b *Brain[E]) DefaultActivity() schedule.Activity { return b.defaultActivity }

func (b *Brain[E]) IsActive(a schedule.Activity) bool {
	_, ok := b.active[a]
	return ok
}

// ActiveActivities lists the active set, core activities first.
func (b *Brain[E]) ActiveActivities() []schedule.Activity {
	out := make([]schedule.Activity, 0, len(b.active))
	for a := range b.active {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := b.isCore(out[i]), b.isCore(out[j])
		if ci != cj {
			return ci
		}
		return out[i] < out[j]
	})
	return out
}

// ActiveNonCoreActivity returns the single active activity outside the
// core set, if any.
func (b *Brain[E]) ActiveNonCoreActivity() (schedule.Activity, bool) {
	for a := range b.active {
		if !b.isCore(a) {
			return a, true
		}
	}
	return "", false
}

func (b *Brain[E]) isCore(a schedule.Activity) bool {
	for _, c := range b.core {
		if c == a {
			return true
		}
	}
	return false
}

func (b *Brain[E]) UseDefaultActivity() { b.setActiveActivity(b.defaultActivity) }

// SetActiveActivityIfPossible activates a when its requirements hold and
// falls back to the default activity otherwise.
func (b *Brain[E]) SetActiveActivityIfPossible(a schedule.Activity) {
	if b.requirementsMet(a) {
		b.setActiveActivity(a)
		return
	}
	b.UseDefaultActivity()
}

// SetActiveActivityToFirstValid activates the first activity in order whose
// requirements hold and reports whether one did.
func (b *Brain[E]) SetActiveActivityToFirstValid(order ...schedule.Activity) bool {
	for _, a := range order {
		if b.requirementsMet(a) {
			b.setActiveActivity(a)
			return true
		}
	}
	return false
}

func (b *Brain[E]) requirementsMet(a schedule.Activity) bool {
	pre, ok := b.requirements[a]
	return ok && behavior.Met(pre, b.mem)
}

func (b *Brain[E]) setActiveActivity(a schedule.Activity) {
	if b.IsActive(a) {
		return
	}
	from, _ := b.ActiveNonCoreActivity()
	for other := range b.active {
		if other == a || b.isCore(other) {
			continue
		}
		for _, k := range b.cleanup[other] {
			b.mem.Erase(k)
		}
	}
	b.active = make(map[schedule.Activity]struct{}, len(b.core)+1)
	for _, c := range b.core {
		b.active[c] = struct{}{}
	}
	b.active[a] = struct{}{}
	b.log.Debug("activity switch", zap.String("from", string(from)), zap.String("to", string(a)))
}

// UpdateActivityFromSchedule switches to the scheduled activity for dayTime.
// Lookups are throttled by game time.
func (b *Brain[E]) UpdateActivityFromSchedule(dayTime, gameTime uint64) {
	if !b.scheduleDirty && gameTime >= b.lastSchedule && gameTime-b.lastSchedule < b.opts.scheduleInterval {
		return
	}
	b.scheduleDirty = false
	b.lastSchedule = gameTime
	a, ok := b.sched.ActivityAt(dayTime)
	if !ok || b.IsActive(a) {
		return
	}
	b.SetActiveActivityIfPossible(a)
}

// AddActivity registers behaviors with consecutive priorities from start.
func (b *Brain[E]) AddActivity(a schedule.Activity, start int, bs ...behavior.Behavior[E]) error {
	return b.AddActivityAndRemoveMemoriesWhenStopped(a, Sequence(start, bs...), nil, nil)
}

// AddActivityWithConditions registers behaviors that may only become active
// while requirements hold.
func (b *Brain[E]) AddActivityWithConditions(a schedule.Activity, bs []Prioritized[E], requirements []behavior.Precondition) error {
	return b.AddActivityAndRemoveMemoriesWhenStopped(a, bs, requirements, nil)
}

// AddActivityAndRemoveMemoryWhenStopped requires k to be present to
// activate a, and erases k when another activity replaces it.
func (b *Brain[E]) AddActivityAndRemoveMemoryWhenStopped(a schedule.Activity, start int, bs []behavior.Behavior[E], k memory.Handle) error {
	return b.AddActivityAndRemoveMemoriesWhenStopped(a, Sequence(start, bs...), []behavior.Precondition{behavior.Present(k)}, []memory.Handle{k})
}

func (b *Brain[E]) AddActivityAndRemoveMemoriesWhenStopped(a schedule.Activity, bs []Prioritized[E], requirements []behavior.Precondition, erase []memory.Handle) error {
	if a == "" {
		return fmt.Errorf("%w: empty name", ErrUnknownActivity)
	}
	if _, ok := b.requirements[a]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateActivity, a)
	}
	for _, p := range requirements {
		if !b.mem.IsRegistered(p.Key) {
			return fmt.Errorf("brain: activity %q requirement: %w", a, &memory.UnregisteredKeyError{Key: p.Key.Name()})
		}
	}
	for _, k := range erase {
		if !b.mem.IsRegistered(k) {
			return fmt.Errorf("brain: activity %q cleanup: %w", a, &memory.UnregisteredKeyError{Key: k.Name()})
		}
	}
	b.requirements[a] = append([]behavior.Precondition{}, requirements...)
	if len(erase) > 0 {
		b.cleanup[a] = append([]memory.Handle(nil), erase...)
	}
	for _, p := range bs {
		g := b.groupFor(p.Priority, a)
		g.behaviors = append(g.behaviors, p.Behavior)
	}
	return nil
}

func (b *Brain[E]) groupFor(priority int, a schedule.Activity) *group[E] {
	i := sort.Search(len(b.tiers), func(i int) bool { return b.tiers[i].priority >= priority })
	if i == len(b.tiers) || b.tiers[i].priority != priority {
		b.tiers = append(b.tiers, nil)
		copy(b.tiers[i+1:], b.tiers[i:])
		b.tiers[i] = &tier[E]{priority: priority}
	}
	t := b.tiers[i]
	for _, g := range t.groups {
		if g.activity == a {
			return g
		}
	}
	g := &group[E]{activity: a}
	t.groups = append(t.groups, g)
	return g
}

// RemoveAllBehaviors drops every registered behavior. Activities and their
// requirements stay registered.
func (b *Brain[E]) RemoveAllBehaviors() { b.tiers = nil }

// Tick expires memories, runs due sensors, starts eligible behaviors of the
// active activities and ticks every running behavior.
func (b *Brain[E]) Tick(w level.World, e E) {
	now := w.GameTime()
	b.mem.Tick()
	for _, s := range b.sensors {
		s.Tick(w, e, b.mem)
	}
	b.startEligible(w, e, now)
	b.tickRunning(w, e, now)
}

func (b *Brain[E]) startEligible(w level.World, e E, now uint64) {
	for _, t := range b.tiers {
		for _, g := range t.groups {
			if !b.IsActive(g.activity) {
				continue
			}
			for _, bh := range g.behaviors {
				if bh.Status() == behavior.Stopped {
					bh.TryStart(w, e, b.mem, now)
				}
			}
		}
	}
}

// Behaviors keep ticking after their activity is deactivated; they only
// lose the chance to start again.
func (b *Brain[E]) tickRunning(w level.World, e E, now uint64) {
	for _, bh := range b.RunningBehaviors() {
		bh.TickOrStop(w, e, b.mem, now)
	}
}

func (b *Brain[E]) RunningBehaviors() []behavior.Behavior[E] {
	var out []behavior.Behavior[E]
	for _, t := range b.tiers {
		for _, g := range t.groups {
			for _, bh := range g.behaviors {
				if bh.Status() == behavior.Running {
					out = append(out, bh)
				}
			}
		}
	}
	return out
}

func (b *Brain[E]) StopAll(w level.World, e E) {
	now := w.GameTime()
	for _, bh := range b.RunningBehaviors() {
		bh.DoStop(w, e, b.mem, now)
	}
}

// CopyWithoutBehaviors returns a brain with the same keys, fresh copies of
// the sensors and the currently present memories. Activities, behaviors
// and the schedule are not carried over.
func (b *Brain[E]) CopyWithoutBehaviors() *Brain[E] {
	sensors := make([]sensing.Sensor, len(b.sensors))
	for i, s := range b.sensors {
		sensors[i] = s.Clone()
	}
	opts := b.opts
	opts.jitter = nil
	nb := New[E](b.mem.Keys(), nil, func(o *options) { *o = opts })
	for _, s := range sensors {
		nb.addSensor(s)
	}
	nb.mem.CopyPresent(b.mem)
	return nb
}

// EncodeMemories returns the persistent memories for a snapshot.
func (b *Brain[E]) EncodeMemories() ([]memory.Entry, error) {
	return b.mem.Encode()
}

// DecodeMemories seeds memory from a snapshot. Entries that cannot be
// decoded are logged and skipped; the rest are kept. It returns the number
// of skipped entries.
func (b *Brain[E]) DecodeMemories(entries []memory.Entry) int {
	errs := b.mem.Decode(entries)
	for _, err := range errs {
		b.log.Warn("skipping memory entry", zap.Error(err))
	}
	return len(errs)
}
