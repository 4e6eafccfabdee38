package main

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"reformkit/internal/persistence/indexdb"
	persistlog "reformkit/internal/persistence/log"
	"reformkit/internal/protocol"
)

func TestReadAudit_Filters(t *testing.T) {
	dataDir := t.TempDir()
	al := persistlog.NewAuditLogger(dataDir)
	base := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	now := base
	al.Writer().SetClock(func() time.Time { return now })
	entries := []persistlog.AuditEntry{
		{Tick: 1, Actor: "C1-ops", Action: protocol.OpReform},
		{Tick: 4, Actor: "C1-ops", Action: protocol.OpReform, Code: protocol.ErrBusy},
		{Tick: 9, Actor: "C2-bot", Action: protocol.OpDemolish},
	}
	for i, e := range entries {
		if i == 2 {
			now = base.Add(2 * time.Minute) // next hour file
		}
		if err := al.WriteAudit(e); err != nil {
			t.Fatalf("WriteAudit: %v", err)
		}
	}
	if err := al.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	dir := filepath.Join(dataDir, "audit")
	cases := []struct {
		name string
		f    auditFilter
		want []uint64
	}{
		{"all", auditFilter{}, []uint64{1, 4, 9}},
		{"actor", auditFilter{Actor: "C1-ops"}, []uint64{1, 4}},
		{"action", auditFilter{Action: protocol.OpDemolish}, []uint64{9}},
		{"ticks", auditFilter{SinceTick: 2, ToTick: 8}, []uint64{4}},
		{"rejected", auditFilter{Rejected: true}, []uint64{4}},
	}
	for _, tc := range cases {
		got, err := readAudit(dir, tc.f)
		if err != nil {
			t.Fatalf("%s: readAudit: %v", tc.name, err)
		}
		if len(got) != len(tc.want) {
			t.Fatalf("%s: got %d entries want %d", tc.name, len(got), len(tc.want))
		}
		for i := range got {
			if got[i].Tick != tc.want[i] {
				t.Fatalf("%s: entry %d tick=%d want %d", tc.name, i, got[i].Tick, tc.want[i])
			}
		}
	}
}

func TestQuery_LedgerTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.sqlite")
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	_ = idx.WriteEvent(protocol.Event{Tick: 2, Planet: 1, Type: protocol.EventRunStart, Run: protocol.RunDemolish, Total: 3})
	_ = idx.WriteEvent(protocol.Event{Tick: 5, Planet: 1, Type: protocol.EventRunEnd, Run: protocol.RunDemolish, State: "COMPLETE", Total: 3, Processed: 3})
	if err := idx.SaveRegions(context.Background(), 1, `{"color_index":3}`); err != nil {
		t.Fatalf("SaveRegions: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	count := func(q string, planet int, run string) int {
		n := 0
		if err := query(db, q, planet, run, 10, func(any) { n++ }); err != nil {
			t.Fatalf("%s: %v", q, err)
		}
		return n
	}
	if n := count("runs", 1, ""); n != 1 {
		t.Fatalf("runs=%d want 1", n)
	}
	if n := count("runs", 2, ""); n != 0 {
		t.Fatalf("runs on planet 2=%d want 0", n)
	}
	if n := count("events", 0, protocol.RunDemolish); n != 2 {
		t.Fatalf("events=%d want 2", n)
	}
	if n := count("events", 0, protocol.RunReform); n != 0 {
		t.Fatalf("reform events=%d want 0", n)
	}
	if n := count("regions", 1, ""); n != 1 {
		t.Fatalf("regions=%d want 1", n)
	}
	if err := query(db, "nope", 0, "", 1, func(any) {}); err == nil {
		t.Fatalf("expected unknown query error")
	}
}

func TestParseLatLon(t *testing.T) {
	if lat, lon, err := parseLatLon(" 12.5, -40 "); err != nil || lat != 12.5 || lon != -40 {
		t.Fatalf("got %v %v %v", lat, lon, err)
	}
	for _, bad := range []string{"", "1", "a,b", "91,0", "0,181"} {
		if _, _, err := parseLatLon(bad); err == nil {
			t.Fatalf("%q: expected error", bad)
		}
	}
}
