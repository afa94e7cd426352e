package nav

import "voxelmind.ai/internal/sim/level"

// DebugSnapshot is emitted once per Navigation tick while a path is active.
type DebugSnapshot struct {
	Tick          uint64         `json:"tick"`
	EntityID      string         `json:"entity_id"`
	Mode          string         `json:"mode"`
	Nodes         []Node         `json:"nodes"`
	NextIndex     int            `json:"next_index"`
	Target        level.BlockPos `json:"target"`
	MaxDistToNode float64        `json:"max_dist_to_node"`
}

type IncidentKind string

const (
	IncidentStuck   IncidentKind = "stuck"
	IncidentTimeout IncidentKind = "timeout"
)

// Incident records a path being abandoned for lack of progress.
type Incident struct {
	Tick     uint64         `json:"tick"`
	EntityID string         `json:"entity_id"`
	Kind     IncidentKind   `json:"kind"`
	Pos      level.Vec3     `json:"pos"`
	Target   level.BlockPos `json:"target"`
	Nodes    int            `json:"nodes"`
}

type Sink interface {
	PathDebug(s DebugSnapshot)
	PathIncident(i Incident)
}

// SinkFuncs adapts plain functions to Sink. Nil fields are skipped.
type SinkFuncs struct {
	PathDebugFn    func(s DebugSnapshot)
	PathIncidentFn func(i Incident)
}

func (f SinkFuncs) PathDebug(s DebugSnapshot) {
	if f.PathDebugFn != nil {
		f.PathDebugFn(s)
	}
}

func (f SinkFuncs) PathIncident(i Incident) {
	if f.PathIncidentFn != nil {
		f.PathIncidentFn(i)
	}
}

// MultiSink fans out to every sink in order.
type MultiSink []Sink

func (m MultiSink) PathDebug(s DebugSnapshot) {
	for _, x := range m {
		x.PathDebug(s)
	}
}

func (m MultiSink) PathIncident(i Incident) {
	for _, x := range m {
		x.PathIncident(i)
	}
}
