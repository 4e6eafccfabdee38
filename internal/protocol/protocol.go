package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeEvent    = "EVENT"
	TypeProgress = "PROGRESS"
)

// Event types.
const (
	EventRunStart   = "RUN_START"
	EventRunEnd     = "RUN_END"
	EventIndexReady = "INDEX_READY"
	EventNotice     = "NOTICE"
)

// Run names.
const (
	RunDemolish  = "DEMOLISH"
	RunReform    = "REFORM"
	RunBuryVein  = "BURY_VEIN"
	RunRaiseVein = "RAISE_VEIN"
	RunIndex     = "INDEX"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// Event is one session event. The same record goes to the run log, the
// ledger and observers.
type Event struct {
	Tick    uint64 `json:"tick"`
	Planet  int    `json:"planet"`
	Type    string `json:"type"`
	Run     string `json:"run"`
	State   string `json:"state,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Factory string `json:"factory,omitempty"`

	Total     int `json:"total,omitempty"`
	Processed int `json:"processed,omitempty"`
	Failed    int `json:"failed,omitempty"`
	Dropped   int `json:"dropped,omitempty"`
}
