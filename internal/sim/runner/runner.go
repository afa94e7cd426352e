// Package runner ticks a population of entities once per simulation step,
// splitting them into contiguous shards that run in parallel.
package runner

import (
	"context"
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"voxelmind.ai/internal/sim/level"
)

// Entity is anything that advances one tick against a read-only world.
type Entity interface {
	ID() string
	Tick(w level.World)
}

type Option func(*options)

type options struct {
	shards int
	log    *zap.Logger
}

// WithShards sets the number of parallel shards. It defaults to GOMAXPROCS.
func WithShards(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.shards = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

type Runner[T Entity] struct {
	opts options
}

func New[T Entity](opts ...Option) *Runner[T] {
	o := options{shards: runtime.GOMAXPROCS(0), log: zap.NewNop()}
	for _, fn := range opts {
		fn(&o)
	}
	return &Runner[T]{opts: o}
}

func (r *Runner[T]) Shards() int { return r.opts.shards }

// Span is a half-open index range [Lo, Hi).
type Span struct{ Lo, Hi int }

// Partition splits n items into at most shards contiguous spans whose sizes
// differ by at most one.
func Partition(n, shards int) []Span {
	if n <= 0 {
		return nil
	}
	if shards <= 0 {
		shards = 1
	}
	if shards > n {
		shards = n
	}
	out := make([]Span, 0, shards)
	base, extra := n/shards, n%shards
	lo := 0
	for i := 0; i < shards; i++ {
		size := base
		if i < extra {
			size++
		}
		out = append(out, Span{Lo: lo, Hi: lo + size})
		lo += size
	}
	return out
}

// Step ticks every entity exactly once. Each entity belongs to exactly one
// shard, so no two goroutines ever touch the same entity. A panicking
// entity is logged and reported in failed; the rest of its shard still
// runs. Step returns early with the context error when ctx is cancelled.
func (r *Runner[T]) Step(ctx context.Context, w level.World, entities []T) (failed []string, err error) {
	spans := Partition(len(entities), r.opts.shards)
	perShard := make([][]string, len(spans))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, sp := range spans {
		i, sp := i, sp
		eg.Go(func() error {
			for _, e := range entities[sp.Lo:sp.Hi] {
				if err := egCtx.Err(); err != nil {
					return err
				}
				if perr := r.tickOne(w, e); perr != nil {
					perShard[i] = append(perShard[i], e.ID())
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	for _, f := range perShard {
		failed = append(failed, f...)
	}
	return failed, nil
}

func (r *Runner[T]) tickOne(w level.World, e T) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("entity %s panicked: %v", e.ID(), v)
			r.opts.log.Error("entity tick failed",
				zap.String("entity", e.ID()),
				zap.Uint64("tick", w.GameTime()),
				zap.Any("panic", v),
				zap.Stack("stack"),
			)
		}
	}()
	e.Tick(w)
	return nil
}
