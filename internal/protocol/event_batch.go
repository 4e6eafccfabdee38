package protocol

const (
	TypeEventBatchReq = "EVENT_BATCH_REQ"
	TypeEventBatch    = "EVENT_BATCH"
)

// EventBatchReqMsg asks for run events after SinceCursor (observer -> server).
// Run, when set, restricts the batch to one run name.
type EventBatchReqMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	SinceCursor     uint64 `json:"since_cursor"`
	Limit           int    `json:"limit"`
	Run             string `json:"run,omitempty"`
}

type EventBatchItem struct {
	Cursor uint64 `json:"cursor"`
	Event  Event  `json:"event"`
}

// EventBatchMsg answers EVENT_BATCH_REQ. NextCursor is the cursor to send
// next time; Truncated reports that events after SinceCursor were already
// evicted from the replay history.
type EventBatchMsg struct {
	Type            string           `json:"type"`
	ProtocolVersion string           `json:"protocol_version"`
	ReqID           string           `json:"req_id"`
	Planet          int              `json:"planet"`
	Events          []EventBatchItem `json:"events"`
	NextCursor      uint64           `json:"next_cursor"`
	HasMore         bool             `json:"has_more,omitempty"`
	Truncated       bool             `json:"truncated,omitempty"`
}
