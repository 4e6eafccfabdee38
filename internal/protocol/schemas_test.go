package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"reformkit/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	// Round-trip through JSON so the validator sees plain maps.
	asAny := func(v any) any {
		t.Helper()
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var out any
		if err := json.Unmarshal(b, &out); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return out
	}

	eventSchema := compile("event.schema.json")
	progressSchema := compile("progress.schema.json")
	commandSchema := compile("command.schema.json")
	ackSchema := compile("ack.schema.json")

	ev := protocol.Event{
		Tick: 9, Planet: 1, Type: protocol.EventRunEnd, Run: protocol.RunReform,
		State: "ENDED_EARLY", Code: protocol.ErrNoResource, Message: "Reform stopped",
		Total: 10, Processed: 4, Dropped: 6,
	}
	if err := eventSchema.Validate(asAny(ev)); err != nil {
		t.Fatalf("event: %v", err)
	}
	bad := protocol.Event{Tick: 1, Type: "EXPLODED", Run: protocol.RunReform}
	if err := eventSchema.Validate(asAny(bad)); err == nil {
		t.Fatalf("unknown event type accepted")
	}

	var progress any
	_ = json.Unmarshal([]byte(`{
	  "type":"PROGRESS",
	  "protocol_version":"0.2",
	  "tick":12,
	  "planet":1,
	  "index":{"rows_done":2,"rows":4,"cells_resolved":18,"fraction":0.5,"complete":false},
	  "runs":[{"name":"DEMOLISH","state":"IDLE","total":0,"processed":0,"failed":0,"pending":0}],
	  "events":[{"tick":12,"planet":1,"type":"NOTICE","run":"REFORM","code":"E_INDEX_BUILDING"}]
	}`), &progress)
	if err := progressSchema.Validate(progress); err != nil {
		t.Fatalf("progress: %v", err)
	}

	cmd := protocol.CommandMsg{Type: protocol.TypeCommand, ProtocolVersion: protocol.Version, ReqID: "r1", Op: protocol.OpBuryVeins, Origin: [3]float64{1, 2, 3}}
	if err := commandSchema.Validate(asAny(cmd)); err != nil {
		t.Fatalf("command: %v", err)
	}
	ack := protocol.AckMsg{Type: protocol.TypeAck, ProtocolVersion: protocol.Version, ReqID: "r1", Code: protocol.ErrBusy}
	if err := ackSchema.Validate(asAny(ack)); err != nil {
		t.Fatalf("ack: %v", err)
	}
}
