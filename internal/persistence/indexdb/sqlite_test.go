package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"reformkit/internal/protocol"
	"reformkit/internal/sim/tuning"
)

func TestSQLiteIndex_EventsAndRuns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")

	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	_ = idx.WriteEvent(protocol.Event{Tick: 3, Planet: 2, Type: protocol.EventRunStart, Run: protocol.RunReform, Total: 10})
	_ = idx.WriteEvent(protocol.Event{Tick: 3, Planet: 2, Type: protocol.EventNotice, Run: protocol.RunReform, Code: protocol.ErrNoResource})
	_ = idx.WriteEvent(protocol.Event{
		Tick: 7, Planet: 2, Type: protocol.EventRunEnd, Run: protocol.RunReform,
		State: "ENDED_EARLY", Code: protocol.ErrNoResource, Factory: "f", Total: 10, Processed: 4, Dropped: 6,
	})

	runs, err := idx.RecentRuns(context.Background(), 5)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs=%+v", runs)
	}
	r := runs[0]
	if r.Run != protocol.RunReform || r.StartTick != 3 || r.EndTick != 7 || r.State != "ENDED_EARLY" || r.Processed != 4 || r.Dropped != 6 {
		t.Fatalf("run mismatch: %+v", r)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM events WHERE planet=2`).Scan(&n); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if n != 3 {
		t.Fatalf("events=%d want 3", n)
	}
	var seq int
	var code string
	if err := db.QueryRow(`SELECT seq,code FROM events WHERE tick=3 AND type='NOTICE'`).Scan(&seq, &code); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if seq != 1 || code != protocol.ErrNoResource {
		t.Fatalf("seq=%d code=%q", seq, code)
	}
}

func TestSQLiteIndex_Regions(t *testing.T) {
	ctx := context.Background()
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer idx.Close()

	if _, ok, err := idx.LoadRegions(ctx, 1); err != nil || ok {
		t.Fatalf("empty load ok=%v err=%v", ok, err)
	}
	if err := idx.SaveRegions(ctx, 1, `{"a":1}`); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := idx.SaveRegions(ctx, 1, `{"a":2}$`); err != nil {
		t.Fatalf("save: %v", err)
	}
	text, ok, err := idx.LoadRegions(ctx, 1)
	if err != nil || !ok || text != `{"a":2}$` {
		t.Fatalf("load text=%q ok=%v err=%v", text, ok, err)
	}
}

func TestSQLiteIndex_UpsertTuning(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	d1, err := idx.UpsertTuning(ctx, tuning.Defaults())
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	d2, _ := idx.UpsertTuning(ctx, tuning.Defaults())
	tu := tuning.Defaults()
	tu.WorkItemsPerTick++
	d3, _ := idx.UpsertTuning(ctx, tu)
	if d1 == "" || d1 != d2 || d1 == d3 {
		t.Fatalf("digests d1=%s d2=%s d3=%s", d1, d2, d3)
	}
	_ = idx.Close()

	if _, err := idx.UpsertTuning(ctx, tu); !errors.Is(err, ErrClosed) {
		t.Fatalf("after close err=%v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	var digest string
	if err := db.QueryRow(`SELECT digest FROM config WHERE name='tuning'`).Scan(&digest); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if digest != d3 {
		t.Fatalf("stored digest=%s want %s", digest, d3)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqEvent}

	_ = s.WriteEvent(protocol.Event{Tick: 2})
	_ = s.WriteEvent(protocol.Event{Tick: 3})

	st := s.Stats()
	if st.DropEventTotal != 2 || st.QueueDepth != 1 {
		t.Fatalf("stats=%+v", st)
	}

	var nilIdx *SQLiteIndex
	if err := nilIdx.WriteEvent(protocol.Event{}); err != nil {
		t.Fatalf("nil index write: %v", err)
	}
}
