package behavior

import (
	"math"
	"math/rand"
	"sort"

	"voxelmind.ai/internal/sim/brain/memory"
	"voxelmind.ai/internal/sim/level"
)

type Weighted[E level.Entity] struct {
	Behavior Behavior[E]
	Weight   int
}

// RunOne starts at most one child, picked by weighted shuffle among those
// whose own start conditions hold. It stays running while that child runs.
type RunOne[E level.Entity] struct {
	name     string
	pre      []Precondition
	children []Weighted[E]
	status   Status
}

func NewRunOne[E level.Entity](name string, pre []Precondition, children ...Weighted[E]) *RunOne[E] {
	return &RunOne[E]{name: name, pre: pre, children: children}
}

func (r *RunOne[E]) Name() string   { return r.name }
func (r *RunOne[E]) Status() Status { return r.status }

func (r *RunOne[E]) TryStart(w level.World, e E, mem *memory.Store, now uint64) bool {
	if r.status == Running || !Met(r.pre, mem) {
		return false
	}
	r.status = Running
	for _, i := range shuffleByWeight(r.children, e.Random()) {
		c := r.children[i].Behavior
		if c.Status() == Stopped && c.TryStart(w, e, mem, now) {
			break
		}
	}
	return true
}

func (r *RunOne[E]) TickOrStop(w level.World, e E, mem *memory.Store, now uint64) {
	running := false
	for _, c := range r.children {
		if c.Behavior.Status() != Running {
			continue
		}
		c.Behavior.TickOrStop(w, e, mem, now)
		if c.Behavior.Status() == Running {
			running = true
		}
	}
	if !running {
		r.DoStop(w, e, mem, now)
	}
}

func (r *RunOne[E]) DoStop(w level.World, e E, mem *memory.Store, now uint64) {
	r.status = Stopped
	for _, c := range r.children {
		if c.Behavior.Status() == Running {
			c.Behavior.DoStop(w, e, mem, now)
		}
	}
}

// shuffleByWeight orders indexes so heavier entries tend to come first.
// Zero or negative weights sort last.
func shuffleByWeight[E level.Entity](items []Weighted[E], rng *rand.Rand) []int {
	type scored struct {
		idx   int
		score float64
	}
	s := make([]scored, len(items))
	for i, it := range items {
		sc := math.Inf(1)
		if it.Weight > 0 {
			sc = -math.Pow(rng.Float64(), 1/float64(it.Weight))
		}
		s[i] = scored{idx: i, score: sc}
	}
	sort.SliceStable(s, func(a, b int) bool { return s[a].score < s[b].score })
	out := make([]int, len(s))
	for i, x := range s {
		out[i] = x.idx
	}
	return out
}
