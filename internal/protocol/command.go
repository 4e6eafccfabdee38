package protocol

const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeCommand = "COMMAND"
	TypeAck     = "ACK"
)

// Command ops.
const (
	OpDemolish   = "DEMOLISH"
	OpReform     = "REFORM"
	OpBuryVeins  = "BURY_VEINS"
	OpRaiseVeins = "RAISE_VEINS"
	OpCancel     = "CANCEL"
	OpSetRegions = "SET_REGIONS"
)

// HELLO (client -> server), first message on the control connection.
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientID        string `json:"client_id"`
	Tick            uint64 `json:"tick"`
	Planet          int    `json:"planet"`
}

// COMMAND (client -> server). Origin is the player position the planners
// sort by.
type CommandMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	ReqID           string     `json:"req_id"`
	Op              string     `json:"op"`
	Origin          [3]float64 `json:"origin"`
	Regions         string     `json:"regions,omitempty"`
}

// ACK (server -> client)
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	Tick            uint64 `json:"tick"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}

func IsKnownOp(op string) bool {
	switch op {
	case OpDemolish, OpReform, OpBuryVeins, OpRaiseVeins, OpCancel, OpSetRegions:
		return true
	}
	return false
}
