package observerproto

import "voxelmind.ai/internal/sim/nav"

// Version is the observer protocol version.
const Version = "0.2"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeTick      = "TICK"
	TypePath      = "PATH"
	TypeIncident  = "INCIDENT"
)

// Client -> Server. First message on the observer WS connection, and can be
// re-sent to change the filter.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// EntityIDs limits PATH and INCIDENT messages to these entities. Empty
	// means all of them.
	EntityIDs []string `json:"entity_ids,omitempty"`
	// Paths enables per-tick PATH messages, which are the bulk of the stream.
	Paths bool `json:"paths"`
}

// HTTP response for GET /debug/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
	Mobs            []MobState  `json:"mobs"`
}

type WorldParams struct {
	TickRateHz int   `json:"tick_rate_hz"`
	DayTicks   int   `json:"day_ticks"`
	Seed       int64 `json:"seed"`
	MinY       int   `json:"min_y"`
	Height     int   `json:"height"`
	BoundaryR  int   `json:"boundary_r"`
}

// Server -> Client. Sent once per committed tick.
type TickMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Tick            uint64     `json:"tick"`
	DayTime         uint64     `json:"day_time"`
	Mobs            []MobState `json:"mobs"`
	Failed          []string   `json:"failed,omitempty"`
}

type MobState struct {
	ID         string     `json:"id"`
	Archetype  string     `json:"archetype"`
	Pos        [3]float64 `json:"pos"`
	Health     float64    `json:"health"`
	Activities []string   `json:"activities"`
	Running    []string   `json:"running,omitempty"`
}

// Server -> Client. One entity's path as navigation saw it this tick.
type PathMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	Path            nav.DebugSnapshot `json:"path"`
}

type IncidentMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Incident        nav.Incident `json:"incident"`
}
