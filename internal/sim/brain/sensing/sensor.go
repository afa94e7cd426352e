// Package sensing holds the rate-limited pollers that derive facts from
// the world into an entity's memory.
package sensing

import (
	"sync/atomic"

	"voxelmind.ai/internal/sim/brain/memory"
	"voxelmind.ai/internal/sim/level"
)

// DefaultScanTicks is the period of sensors that do not set their own.
const DefaultScanTicks = 20

// Sensor writes derived facts into memory. Update recomputes from the world
// every time and never reads the sensor's own earlier output.
type Sensor interface {
	Name() string
	Requires() []memory.Handle
	// Tick counts down and runs the update when the sensor is due.
	Tick(w level.World, e level.Entity, mem *memory.Store)
	// Clone returns a sensor of the same configuration with its countdown
	// reset, for a brain copied onto another entity.
	Clone() Sensor
}

// ScanPeriods overrides scan periods per entity type and sensor name.
type ScanPeriods interface {
	ScanTicks(entityType, sensor string) (int, bool)
}

// Tunable is implemented by sensors built on Base.
type Tunable interface {
	SetScanPeriods(p ScanPeriods)
	SetInitialDelay(ticks int)
	Period(entityType string) int
}

// Base carries the countdown shared by all sensors. Embed it and call Due
// at the top of Tick.
type Base struct {
	name      string
	period    int
	countdown int
	periods   ScanPeriods
}

func NewBase(name string, period int) Base {
	if period <= 0 {
		period = DefaultScanTicks
	}
	return Base{name: name, period: period}
}

func (b *Base) Name() string { return b.name }

func (b *Base) SetScanPeriods(p ScanPeriods) { b.periods = p }

// SetInitialDelay postpones the first update; zero fires on the first tick.
func (b *Base) SetInitialDelay(ticks int) { b.countdown = ticks }

func (b *Base) Period(entityType string) int {
	if b.periods != nil {
		if t, ok := b.periods.ScanTicks(entityType, b.name); ok && t > 0 {
			return t
		}
	}
	return b.period
}

// Due decrements the countdown and reports whether the update should run.
func (b *Base) Due(entityType string) bool {
	b.countdown--
	if b.countdown > 0 {
		return false
	}
	b.countdown = b.Period(entityType)
	return true
}

// Func adapts an update function into a Sensor.
type Func struct {
	Base
	Keys     []memory.Handle
	UpdateFn func(w level.World, e level.Entity, mem *memory.Store)
}

func NewFunc(name string, period int, keys []memory.Handle, update func(w level.World, e level.Entity, mem *memory.Store)) *Func {
	return &Func{Base: NewBase(name, period), Keys: keys, UpdateFn: update}
}

func (f *Func) Requires() []memory.Handle { return f.Keys }

func (f *Func) Clone() Sensor {
	c := *f
	c.countdown = 0
	return &c
}

func (f *Func) Tick(w level.World, e level.Entity, mem *memory.Store) {
	if !f.Due(e.Type()) {
		return
	}
	if f.UpdateFn != nil {
		f.UpdateFn(w, e, mem)
	}
}

// PeriodTable is a ScanPeriods that can be swapped while shards read it.
type PeriodTable struct {
	v atomic.Pointer[periodTable]
}

type periodTable struct {
	def     int
	byType  map[string]map[string]int
	anyType map[string]int
}

// NewPeriodTable builds a table. byType maps entity type to sensor name to
// ticks; the entity type "*" applies to every type. def, when positive,
// overrides every sensor's built-in period.
func NewPeriodTable(def int, byType map[string]map[string]int) *PeriodTable {
	t := &PeriodTable{}
	t.Store(def, byType)
	return t
}

func (t *PeriodTable) Store(def int, byType map[string]map[string]int) {
	pt := &periodTable{def: def, byType: map[string]map[string]int{}, anyType: map[string]int{}}
	for typ, m := range byType {
		cp := make(map[string]int, len(m))
		for k, v := range m {
			cp[k] = v
		}
		if typ == "*" {
			pt.anyType = cp
			continue
		}
		pt.byType[typ] = cp
	}
	t.v.Store(pt)
}

func (t *PeriodTable) ScanTicks(entityType, sensor string) (int, bool) {
	pt := t.v.Load()
	if pt == nil {
		return 0, false
	}
	if v, ok := pt.byType[entityType][sensor]; ok {
		return v, true
	}
	if v, ok := pt.anyType[sensor]; ok {
		return v, true
	}
	if pt.def > 0 {
		return pt.def, true
	}
	return 0, false
}
