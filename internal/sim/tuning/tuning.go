package tuning

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"voxelmind.ai/internal/sim/brain/schedule"
	"voxelmind.ai/internal/sim/brain/sensing"
	"voxelmind.ai/internal/sim/level/voxel"
	"voxelmind.ai/internal/sim/nav"
)

//go:embed tuning.schema.json
var schemaJSON string

type Tuning struct {
	TickRateHz         int    `yaml:"tick_rate_hz"`
	DayTicks           int    `yaml:"day_ticks"`
	SnapshotEveryTicks uint64 `yaml:"snapshot_every_ticks"`
	Shards             int    `yaml:"shards"`

	World      World             `yaml:"world"`
	Brain      Brain             `yaml:"brain"`
	Navigation Navigation        `yaml:"navigation"`
	Schedules  map[string]string `yaml:"schedules"`
	Spawns     map[string]int    `yaml:"spawns"`
}

type World struct {
	Seed             int64 `yaml:"seed"`
	MinY             int   `yaml:"min_y"`
	Height           int   `yaml:"height"`
	BoundaryR        int   `yaml:"boundary_r"`
	SpawnClearRadius int   `yaml:"spawn_clear_radius"`
	ObstaclePermille int   `yaml:"obstacle_permille"`
}

type Brain struct {
	ScheduleIntervalTicks uint64 `yaml:"schedule_interval_ticks"`
	// DefaultScanTicks, when positive, replaces every sensor's built-in period.
	DefaultScanTicks int `yaml:"default_scan_ticks"`
	// ScanTicks maps archetype ("*" for all) to sensor name to period.
	ScanTicks    map[string]map[string]int `yaml:"scan_ticks"`
	SensorJitter *bool                     `yaml:"sensor_jitter"`
}

type Navigation struct {
	nav.Config  `yaml:",inline"`
	FollowRange map[string]float64 `yaml:"follow_range"`
}

func (t *Tuning) applyDefaults() {
	if t.TickRateHz <= 0 {
		t.TickRateHz = 20
	}
	if t.DayTicks <= 0 {
		t.DayTicks = schedule.DefaultDayTicks
	}
	if t.SnapshotEveryTicks == 0 {
		t.SnapshotEveryTicks = 6000
	}
	if t.Brain.ScheduleIntervalTicks == 0 {
		t.Brain.ScheduleIntervalTicks = 20
	}
	if t.Brain.SensorJitter == nil {
		on := true
		t.Brain.SensorJitter = &on
	}
	if t.Spawns == nil {
		t.Spawns = map[string]int{"settler": 8, "raider": 2}
	}
}

// Load reads, validates and defaults a tuning file.
func Load(path string) (Tuning, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, err
	}
	return Parse(raw)
}

// Parse validates raw YAML against the embedded schema before decoding it.
// Schedules are parsed too, so a returned Tuning always builds.
func Parse(raw []byte) (Tuning, error) {
	var t Tuning
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	if err := validate(doc); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.applyDefaults()
	if _, err := t.ParseSchedules(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("tuning.schema.json", strings.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return c.Compile("tuning.schema.json")
})

func validate(doc any) error {
	s, err := compileSchema()
	if err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	// The validator wants JSON values, so take the YAML tree through JSON.
	buf, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("not representable as JSON: %w", err)
	}
	var inst any
	if err := json.Unmarshal(buf, &inst); err != nil {
		return err
	}
	return s.Validate(inst)
}

// ParseSchedules compiles every archetype's schedule text.
func (t Tuning) ParseSchedules() (map[string]*schedule.Schedule, error) {
	out := make(map[string]*schedule.Schedule, len(t.Schedules))
	for _, name := range sortedKeys(t.Schedules) {
		s, err := schedule.Parse(name, t.Schedules[name], uint64(t.DayTicks))
		if err != nil {
			return nil, err
		}
		out[name] = s
	}
	return out, nil
}

// Publish installs this tuning's scan periods into table.
func (t Tuning) Publish(table *sensing.PeriodTable) {
	table.Store(t.Brain.DefaultScanTicks, t.Brain.ScanTicks)
}

func (t Tuning) PeriodTable() *sensing.PeriodTable {
	return sensing.NewPeriodTable(t.Brain.DefaultScanTicks, t.Brain.ScanTicks)
}

func (t Tuning) Jitter() bool { return t.Brain.SensorJitter == nil || *t.Brain.SensorJitter }

// FollowRange returns the configured follow range for archetype, or zero.
func (t Tuning) FollowRange(archetype string) float64 {
	return t.Navigation.FollowRange[archetype]
}

func (t Tuning) WorldConfig() voxel.Config {
	return voxel.Config{
		Seed:             t.World.Seed,
		MinY:             t.World.MinY,
		Height:           t.World.Height,
		BoundaryR:        t.World.BoundaryR,
		DayTicks:         t.DayTicks,
		SpawnClearRadius: t.World.SpawnClearRadius,
		ObstaclePermille: t.World.ObstaclePermille,
	}
}

// SpawnOrder lists archetype names with a positive spawn count, sorted.
func (t Tuning) SpawnOrder() []string {
	var out []string
	for _, name := range sortedKeys(t.Spawns) {
		if t.Spawns[name] > 0 {
			out = append(out, name)
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
