// Package schedule maps the time of day to the activity an entity should
// nominally be doing.
package schedule

import (
	"fmt"
	"sort"
)

// Activity names a behavioral mode such as "idle" or "rest".
type Activity string

const (
	Core  Activity = "core"
	Idle  Activity = "idle"
	Work  Activity = "work"
	Play  Activity = "play"
	Rest  Activity = "rest"
	Meet  Activity = "meet"
	Panic Activity = "panic"
	Raid  Activity = "raid"
	Fight Activity = "fight"
	Hide  Activity = "hide"
)

const DefaultDayTicks = 24000

type Entry struct {
	Start    uint64   `json:"start" yaml:"start"`
	Activity Activity `json:"activity" yaml:"activity"`
}

// Schedule is a day-long timeline of activity changes. The activity of the
// last entry carries over past midnight until the first entry.
type Schedule struct {
	dayTicks uint64
	entries  []Entry
}

// Empty nominates no activity at any time.
var Empty = &Schedule{dayTicks: DefaultDayTicks}

func (s *Schedule) DayTicks() uint64 { return s.dayTicks }

func (s *Schedule) Entries() []Entry { return append([]Entry(nil), s.entries...) }

// ActivityAt returns the activity for dayTime, or false for an empty schedule.
func (s *Schedule) ActivityAt(dayTime uint64) (Activity, bool) {
	if s == nil || len(s.entries) == 0 {
		return "", false
	}
	t := dayTime % s.dayTicks
	i := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].Start > t })
	if i == 0 {
		return s.entries[len(s.entries)-1].Activity, true
	}
	return s.entries[i-1].Activity, true
}

type Builder struct {
	dayTicks uint64
	entries  []Entry
}

func NewBuilder(dayTicks uint64) *Builder {
	if dayTicks == 0 {
		dayTicks = DefaultDayTicks
	}
	return &Builder{dayTicks: dayTicks}
}

// ChangeAt switches to a at tick start of every day.
func (b *Builder) ChangeAt(start uint64, a Activity) *Builder {
	b.entries = append(b.entries, Entry{Start: start, Activity: a})
	return b
}

func (b *Builder) Build() (*Schedule, error) {
	entries := append([]Entry(nil), b.entries...)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Start < entries[j].Start })
	for i, e := range entries {
		if e.Start >= b.dayTicks {
			return nil, fmt.Errorf("schedule: tick %d outside day of %d ticks", e.Start, b.dayTicks)
		}
		if e.Activity == "" {
			return nil, fmt.Errorf("schedule: empty activity at tick %d", e.Start)
		}
		if i > 0 && entries[i-1].Start == e.Start {
			return nil, fmt.Errorf("schedule: two activities at tick %d", e.Start)
		}
	}
	return &Schedule{dayTicks: b.dayTicks, entries: entries}, nil
}
