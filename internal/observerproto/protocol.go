package observerproto

import "reformkit/internal/protocol"

// Version is the observer protocol version (separate from the event record
// version).
const Version = "0.2"

// Client -> Server. First message on the observer WS connection, and can be
// re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// EveryTicks throttles PROGRESS messages; 1 sends every tick.
	EveryTicks int `json:"every_ticks"`
	// Events includes session events in PROGRESS messages.
	Events bool `json:"events"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion  string       `json:"protocol_version"`
	Tick             uint64       `json:"tick"`
	Planet           PlanetParams `json:"planet"`
	TickRateHz       int          `json:"tick_rate_hz"`
	WorkItemsPerTick int          `json:"work_items_per_tick"`
}

type PlanetParams struct {
	ID       int     `json:"id"`
	Radius   float64 `json:"radius"`
	Segments int     `json:"segments"`
	Cells    int     `json:"cells"`
}

// Server -> Client.
type ProgressMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	Planet          int    `json:"planet"`

	Index  IndexProgress    `json:"index"`
	Runs   []RunProgress    `json:"runs"`
	Events []protocol.Event `json:"events,omitempty"`
}

type IndexProgress struct {
	RowsDone      int     `json:"rows_done"`
	Rows          int     `json:"rows"`
	CellsResolved int     `json:"cells_resolved"`
	Fraction      float64 `json:"fraction"`
	Complete      bool    `json:"complete"`
}

type RunProgress struct {
	Name      string `json:"name"`
	State     string `json:"state"`
	Factory   string `json:"factory,omitempty"`
	Total     int    `json:"total"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Pending   int    `json:"pending"`
}
