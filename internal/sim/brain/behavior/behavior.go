// Package behavior implements the stopped/running state machine the brain
// schedules, plus a few generic composites.
package behavior

import (
	"voxelmind.ai/internal/sim/brain/memory"
	"voxelmind.ai/internal/sim/level"
)

type Status uint8

const (
	Stopped Status = iota
	Running
)

func (s Status) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// Behavior is driven by the brain: TryStart while stopped, TickOrStop once
// per tick while running, DoStop to force it off.
type Behavior[E level.Entity] interface {
	Name() string
	Status() Status
	TryStart(w level.World, e E, mem *memory.Store, now uint64) bool
	TickOrStop(w level.World, e E, mem *memory.Store, now uint64)
	DoStop(w level.World, e E, mem *memory.Store, now uint64)
}

// Precondition requires a memory slot to be in a given state.
type Precondition struct {
	Key    memory.Handle
	Status memory.Status
}

func Pre(k memory.Handle, st memory.Status) Precondition {
	return Precondition{Key: k, Status: st}
}

func Present(k memory.Handle) Precondition    { return Pre(k, memory.Present) }
func Absent(k memory.Handle) Precondition     { return Pre(k, memory.Absent) }
func Registered(k memory.Handle) Precondition { return Pre(k, memory.Registered) }

// Met reports whether every precondition holds against mem.
func Met(pre []Precondition, mem *memory.Store) bool {
	for _, p := range pre {
		if !mem.Has(p.Key, p.Status) {
			return false
		}
	}
	return true
}

// Logic supplies the hooks of a Task.
type Logic[E level.Entity] interface {
	CanStart(w level.World, e E, mem *memory.Store) bool
	Start(w level.World, e E, mem *memory.Store, now uint64)
	CanContinue(w level.World, e E, mem *memory.Store, now uint64) bool
	Tick(w level.World, e E, mem *memory.Store, now uint64)
	Stop(w level.World, e E, mem *memory.Store, now uint64)
}

// LogicFuncs adapts plain functions to Logic. A nil CanStartFn allows the
// start, a nil CanContinueFn ends the task after its first tick, and the
// other nil hooks do nothing.
type LogicFuncs[E level.Entity] struct {
	CanStartFn    func(w level.World, e E, mem *memory.Store) bool
	StartFn       func(w level.World, e E, mem *memory.Store, now uint64)
	CanContinueFn func(w level.World, e E, mem *memory.Store, now uint64) bool
	TickFn        func(w level.World, e E, mem *memory.Store, now uint64)
	StopFn        func(w level.World, e E, mem *memory.Store, now uint64)
}

func (f LogicFuncs[E]) CanStart(w level.World, e E, mem *memory.Store) bool {
	if f.CanStartFn == nil {
		return true
	}
	return f.CanStartFn(w, e, mem)
}

func (f LogicFuncs[E]) Start(w level.World, e E, mem *memory.Store, now uint64) {
	if f.StartFn != nil {
		f.StartFn(w, e, mem, now)
	}
}

func (f LogicFuncs[E]) CanContinue(w level.World, e E, mem *memory.Store, now uint64) bool {
	if f.CanContinueFn == nil {
		return false
	}
	return f.CanContinueFn(w, e, mem, now)
}

func (f LogicFuncs[E]) Tick(w level.World, e E, mem *memory.Store, now uint64) {
	if f.TickFn != nil {
		f.TickFn(w, e, mem, now)
	}
}

func (f LogicFuncs[E]) Stop(w level.World, e E, mem *memory.Store, now uint64) {
	if f.StopFn != nil {
		f.StopFn(w, e, mem, now)
	}
}

// Task is a precondition-gated behavior that runs for a duration sampled
// from [min, max] ticks.
type Task[E level.Entity] struct {
	name      string
	pre       []Precondition
	min, max  int
	status    Status
	remaining int
	logic     Logic[E]
}

func NewTask[E level.Entity](name string, pre []Precondition, min, max int, logic Logic[E]) *Task[E] {
	if min < 0 {
		min = 0
	}
	if max < min {
		max = min
	}
	return &Task[E]{name: name, pre: pre, min: min, max: max, logic: logic}
}

func (t *Task[E]) Name() string                  { return t.name }
func (t *Task[E]) Status() Status                { return t.status }
func (t *Task[E]) Preconditions() []Precondition { return t.pre }

// Remaining is the number of ticks left before the task times out.
func (t *Task[E]) Remaining() int { return t.remaining }

func (t *Task[E]) TryStart(w level.World, e E, mem *memory.Store, now uint64) bool {
	if t.status == Running || !Met(t.pre, mem) || !t.logic.CanStart(w, e, mem) {
		return false
	}
	t.status = Running
	t.remaining = t.min
	if t.max > t.min {
		t.remaining += e.Random().Intn(t.max - t.min + 1)
	}
	t.logic.Start(w, e, mem, now)
	return true
}

func (t *Task[E]) TickOrStop(w level.World, e E, mem *memory.Store, now uint64) {
	if t.remaining <= 0 || !t.logic.CanContinue(w, e, mem, now) {
		t.DoStop(w, e, mem, now)
		return
	}
	t.remaining--
	t.logic.Tick(w, e, mem, now)
}

func (t *Task[E]) DoStop(w level.World, e E, mem *memory.Store, now uint64) {
	t.status = Stopped
	t.logic.Stop(w, e, mem, now)
}

// DoNothing idles for a random number of ticks in [min, max].
func DoNothing[E level.Entity](min, max int) *Task[E] {
	return NewTask[E]("do_nothing", nil, min, max, LogicFuncs[E]{
		CanContinueFn: func(level.World, E, *memory.Store, uint64) bool { return true },
	})
}

// OneShot runs fn once when its preconditions hold and stops again within
// the same brain tick. fn reports whether it did anything.
type OneShot[E level.Entity] struct {
	name   string
	pre    []Precondition
	fn     func(w level.World, e E, mem *memory.Store, now uint64) bool
	status Status
}

func NewOneShot[E level.Entity](name string, pre []Precondition, fn func(w level.World, e E, mem *memory.Store, now uint64) bool) *OneShot[E] {
	return &OneShot[E]{name: name, pre: pre, fn: fn}
}

func (o *OneShot[E]) Name() string   { return o.name }
func (o *OneShot[E]) Status() Status { return o.status }

func (o *OneShot[E]) TryStart(w level.World, e E, mem *memory.Store, now uint64) bool {
	if o.status == Running || !Met(o.pre, mem) {
		return false
	}
	if !o.fn(w, e, mem, now) {
		return false
	}
	o.status = Running
	return true
}

func (o *OneShot[E]) TickOrStop(w level.World, e E, mem *memory.Store, now uint64) {
	o.DoStop(w, e, mem, now)
}

func (o *OneShot[E]) DoStop(level.World, E, *memory.Store, uint64) {
	o.status = Stopped
}
