package main

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	persistlog "reformkit/internal/persistence/log"
	"reformkit/internal/protocol"
)

func ev(tick uint64, typ, run string) protocol.Event {
	return protocol.Event{Tick: tick, Planet: 1, Type: typ, Run: run}
}

func end(tick uint64, run, state string, total, processed, dropped int) protocol.Event {
	e := ev(tick, protocol.EventRunEnd, run)
	e.State, e.Total, e.Processed, e.Dropped = state, total, processed, dropped
	return e
}

func TestReplayer_FoldsRuns(t *testing.T) {
	rp := newReplayer("", 0, 0)
	start := ev(2, protocol.EventRunStart, protocol.RunReform)
	start.Total = 10
	err := rp.feed("a", []protocol.Event{
		ev(1, protocol.EventIndexReady, protocol.RunIndex),
		start,
		ev(2, protocol.EventRunStart, protocol.RunDemolish),
		ev(3, protocol.EventNotice, protocol.RunReform),
		end(4, protocol.RunDemolish, "COMPLETE", 3, 3, 0),
		end(6, protocol.RunReform, "ENDED_EARLY", 10, 4, 6),
	})
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(rp.runs) != 2 || rp.events != 6 {
		t.Fatalf("runs=%d events=%d", len(rp.runs), rp.events)
	}
	r := rp.runs[1]
	if r.Run != protocol.RunReform || r.StartTick != 2 || r.EndTick != 6 || r.Notices != 1 || r.Dropped != 6 {
		t.Fatalf("reform summary=%+v", r)
	}
	if open := rp.open(); len(open) != 0 {
		t.Fatalf("open=%v", open)
	}
}

func TestReplayer_Violations(t *testing.T) {
	cases := []struct {
		name string
		evs  []protocol.Event
		want string
	}{
		{"backwards", []protocol.Event{ev(5, protocol.EventNotice, ""), ev(4, protocol.EventNotice, "")}, "backwards"},
		{"double start", []protocol.Event{ev(1, protocol.EventRunStart, protocol.RunReform), ev(2, protocol.EventRunStart, protocol.RunReform)}, "while open"},
		{"accounting", []protocol.Event{end(3, protocol.RunDemolish, "COMPLETE", 5, 3, 1)}, "processed=3"},
	}
	for _, tc := range cases {
		err := newReplayer("", 0, 0).feed("f", tc.evs)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: err=%v want %q", tc.name, err, tc.want)
		}
	}
}

func TestReplayer_FilterAndFiles(t *testing.T) {
	dataDir := t.TempDir()
	rl := persistlog.NewRunLogger(dataDir)
	now := time.Date(2026, 1, 2, 3, 59, 0, 0, time.UTC)
	rl.Writer().SetClock(func() time.Time { return now })
	_ = rl.WriteEvent(ev(1, protocol.EventRunStart, protocol.RunDemolish))
	_ = rl.WriteEvent(ev(1, protocol.EventRunStart, protocol.RunReform))
	now = now.Add(time.Hour)
	_ = rl.WriteEvent(end(9, protocol.RunDemolish, "COMPLETE", 2, 2, 0))
	if err := rl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := listEventFiles(filepath.Join(dataDir, "events"))
	if err != nil || len(files) != 2 {
		t.Fatalf("files=%v err=%v", files, err)
	}
	rp := newReplayer(protocol.RunReform, 0, 0)
	for _, f := range files {
		evs, err := persistlog.ReadEvents(f)
		if err != nil {
			t.Fatalf("ReadEvents: %v", err)
		}
		if err := rp.feed(filepath.Base(f), evs); err != nil {
			t.Fatalf("feed: %v", err)
		}
	}
	if len(rp.runs) != 0 || rp.events != 1 {
		t.Fatalf("runs=%d events=%d", len(rp.runs), rp.events)
	}
	if open := rp.open(); len(open) != 1 || open[0] != protocol.RunReform {
		t.Fatalf("open=%v", open)
	}
}
