package loop

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"reformkit/internal/observerproto"
	"reformkit/internal/protocol"
	"reformkit/internal/sim/hostsim"
	"reformkit/internal/sim/resources"
	"reformkit/internal/sim/session"
	"reformkit/internal/sim/surface"
	"reformkit/internal/sim/tasks"
	"reformkit/internal/sim/tuning"
)

func newTestLoop(t *testing.T) (*Loop, *hostsim.Terrain) {
	t.Helper()
	cfg := tuning.Defaults()
	cfg.Regions = ""
	planet := surface.NewBandedPlanet(1, 100, 2, 5, 1, 1)
	terrain := hostsim.NewTerrain(planet)
	factories := hostsim.NewFactories()
	factories.Open(tasks.FactoryRef{PlanetID: 1, Index: 1})
	fixed := time.Unix(0, 0)
	sess := session.New(cfg, session.Host{
		Entities:      factories,
		Inventory:     hostsim.Inventory{resources.Foundation: 100},
		Notifier:      &hostsim.Notices{},
		ActiveFactory: factories.Active,
		Clock:         func() time.Time { return fixed },
	}, nil)
	sess.OnPlanetChanged(planet, terrain, terrain)
	return New(Config{TickRateHz: 50, HistoryLimit: 3}, sess, nil), terrain
}

func cmd(op string) CommandEnvelope {
	return CommandEnvelope{
		Cmd:  protocol.CommandMsg{Type: protocol.TypeCommand, ProtocolVersion: protocol.Version, ReqID: op, Op: op},
		Resp: make(chan protocol.AckMsg, 1),
	}
}

func TestLoop_CommandsAndAcks(t *testing.T) {
	l, terrain := newTestLoop(t)
	l.step(nil) // index completes

	reform := cmd(protocol.OpReform)
	again := cmd(protocol.OpReform)
	bad := cmd("PAINT_EVERYTHING")
	l.step([]CommandEnvelope{reform, again, bad})

	if ack := <-reform.Resp; !ack.Accepted || ack.ReqID != protocol.OpReform {
		t.Fatalf("reform ack=%+v", ack)
	}
	if ack := <-again.Resp; ack.Accepted || ack.Code != protocol.ErrBusy {
		t.Fatalf("second reform ack=%+v", ack)
	}
	if ack := <-bad.Resp; ack.Accepted || ack.Code != protocol.ErrBadRequest {
		t.Fatalf("bad op ack=%+v", ack)
	}
	if !terrain.IsPlanetFullyReformed() {
		t.Fatalf("planet not reformed after tick")
	}
	st := l.Stats()
	if st.Ticks != 2 || st.Commands != 3 {
		t.Fatalf("stats=%+v", st)
	}
	if snap := l.Snapshot(); snap.Tick != 2 || !snap.Index.Complete {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestLoop_SetRegionsPersists(t *testing.T) {
	l, _ := newTestLoop(t)
	var gotPlanet int
	var gotText string
	l.SetRegionSink(func(planet int, text string) { gotPlanet, gotText = planet, text })

	c := cmd(protocol.OpSetRegions)
	c.Cmd.Regions = `{"min_lat":0,"max_lat":90,"min_lon":0,"max_lon":0,"color_index":3}`
	l.step([]CommandEnvelope{c})
	ack := <-c.Resp
	if !ack.Accepted || ack.Message != "1 region(s)" {
		t.Fatalf("ack=%+v", ack)
	}
	if gotPlanet != 1 || gotText == "" {
		t.Fatalf("sink planet=%d text=%q", gotPlanet, gotText)
	}
}

func TestLoop_ObserverProgressAndReplay(t *testing.T) {
	l, _ := newTestLoop(t)
	out := make(chan []byte, 16)
	l.handleObserverJoin(ObserverJoinRequest{SessionID: "O1", Out: out, EveryTicks: 2, Events: true})

	l.step(nil) // tick 1: INDEX_READY, sent because it carries events
	l.step(nil) // tick 2: on the cadence
	l.step(nil) // tick 3: skipped

	if len(out) != 2 {
		t.Fatalf("frames=%d want 2", len(out))
	}
	var first observerproto.ProgressMsg
	if err := json.Unmarshal(<-out, &first); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if first.Type != protocol.TypeProgress || first.Tick != 1 || len(first.Events) != 1 || !first.Index.Complete {
		t.Fatalf("first=%+v", first)
	}
	if len(first.Runs) != 2 || first.Runs[1].State != "IDLE" {
		t.Fatalf("runs=%+v", first.Runs)
	}
	<-out

	// Four events through a history of three: the oldest is gone.
	for _, op := range []string{protocol.OpReform, protocol.OpDemolish} {
		l.step([]CommandEnvelope{cmd(op)})
	}
	for len(out) > 0 {
		<-out
	}
	l.handleEventBatch(EventBatchRequest{SessionID: "O1", Req: protocol.EventBatchReqMsg{ReqID: "r1", SinceCursor: 0, Limit: 2}})
	var batch protocol.EventBatchMsg
	if err := json.Unmarshal(<-out, &batch); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if batch.Type != protocol.TypeEventBatch || batch.ReqID != "r1" || len(batch.Events) != 2 {
		t.Fatalf("batch=%+v", batch)
	}
	if batch.Events[0].Cursor != 2 || batch.NextCursor != 3 {
		t.Fatalf("cursors first=%d next=%d", batch.Events[0].Cursor, batch.NextCursor)
	}
	if !batch.Truncated || !batch.HasMore || batch.Planet != 1 {
		t.Fatalf("batch flags=%+v", batch)
	}

	l.handleEventBatch(EventBatchRequest{SessionID: "O1", Req: protocol.EventBatchReqMsg{ReqID: "r2", SinceCursor: 1, Run: protocol.RunDemolish}})
	batch = protocol.EventBatchMsg{}
	if err := json.Unmarshal(<-out, &batch); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(batch.Events) != 1 || batch.Events[0].Cursor != 4 || batch.NextCursor != 4 || batch.Truncated || batch.HasMore {
		t.Fatalf("filtered batch=%+v", batch)
	}

	l.handleObserverLeave("O1")
	if _, ok := <-out; ok {
		t.Fatalf("out not closed on leave")
	}
	if l.Stats().Observers != 0 {
		t.Fatalf("observer count=%d", l.Stats().Observers)
	}
}

func TestLoop_RunStops(t *testing.T) {
	l, _ := newTestLoop(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	c := cmd(protocol.OpCancel)
	l.Inbox() <- c
	select {
	case ack := <-c.Resp:
		if !ack.Accepted {
			t.Fatalf("cancel ack=%+v", ack)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no ack")
	}
	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("run err=%v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("loop did not stop")
	}
}

func TestLoop_StopTwice(t *testing.T) {
	l, _ := newTestLoop(t)
	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	l.Stop()
	l.Stop()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run err=%v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("loop did not stop")
	}
	l.Stop()
}
