package main

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"reformkit/internal/protocol"
	"reformkit/internal/sim/hostsim"
	"reformkit/internal/sim/loop"
	"reformkit/internal/sim/reform"
	"reformkit/internal/sim/resources"
	"reformkit/internal/sim/session"
	"reformkit/internal/sim/tuning"
)

func testWorldConfig() hostWorldConfig {
	return hostWorldConfig{
		PlanetID:     3,
		Radius:       100,
		Rows:         4,
		EquatorWidth: 8,
		Bands:        2,
		RawPerCell:   1,
		Seed:         7,
		Entities:     12,
		Ghosts:       3,
		Veins:        5,
		Foundation:   40,
		Soil:         9,
	}
}

func TestBuildHostWorld_Seeded(t *testing.T) {
	cfg := testWorldConfig()
	a := buildHostWorld(cfg)
	b := buildHostWorld(cfg)

	ents, ghosts := a.factories.Counts(a.factory)
	if ents != 12 || ghosts != 3 {
		t.Fatalf("counts=%d/%d want 12/3", ents, ghosts)
	}
	if a.factories.Active() != a.factory {
		t.Fatalf("active=%+v want %+v", a.factories.Active(), a.factory)
	}
	if got := a.inventory.CurrentAmount(resources.Foundation); got != 40 {
		t.Fatalf("foundation=%d", got)
	}
	if got := a.inventory.CurrentAmount(resources.SoilPile); got != 9 {
		t.Fatalf("soil=%d", got)
	}
	var va, vb []reform.Vein
	a.terrain.EachVein(func(v reform.Vein) bool { va = append(va, v); return true })
	b.terrain.EachVein(func(v reform.Vein) bool { vb = append(vb, v); return true })
	if len(va) != 5 || len(vb) != 5 {
		t.Fatalf("veins=%d/%d want 5", len(va), len(vb))
	}
	for i := range va {
		if va[i] != vb[i] {
			t.Fatalf("same seed produced different vein %d: %+v vs %+v", i, va[i], vb[i])
		}
	}
}

type recordingEvents struct{ got []protocol.Event }

func (r *recordingEvents) WriteEvent(ev protocol.Event) error {
	r.got = append(r.got, ev)
	return nil
}

func TestMultiEventLogger_NilIndex(t *testing.T) {
	rec := &recordingEvents{}
	m := multiEventLogger{a: rec}
	if err := m.WriteEvent(protocol.Event{Type: protocol.EventRunStart}); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}
	if len(rec.got) != 1 {
		t.Fatalf("got %d events", len(rec.got))
	}
}

func TestMetricsHandler(t *testing.T) {
	world := buildHostWorld(testWorldConfig())
	cfg := tuning.Defaults()
	cfg.Regions = ""
	fixed := time.Unix(0, 0)
	sess := session.New(cfg, session.Host{
		Entities:      world.factories,
		Inventory:     world.inventory,
		Notifier:      &hostsim.Notices{},
		ActiveFactory: world.factories.Active,
		Clock:         func() time.Time { return fixed },
	}, nil)
	sess.OnPlanetChanged(world.planet, world.terrain, world.terrain)
	lp := loop.New(loop.Config{TickRateHz: 5}, sess, nil)

	rr := httptest.NewRecorder()
	metricsHandler(lp, nil)(rr, httptest.NewRequest("GET", "/metrics", nil))
	body := rr.Body.String()
	for _, want := range []string{
		`reformkit_tick{planet="3"} 0`,
		`reformkit_index_fraction{planet="3"}`,
		`reformkit_run_items{run="DEMOLISH"`,
		"reformkit_commands_total 0",
		"reformkit_observers 0",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "reformkit_index_queue_depth") {
		t.Fatalf("index metrics without an index backend")
	}
}

func TestRunsHandler_NoLedger(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/admin/v1/runs", nil)
	req.RemoteAddr = "127.0.0.1:4000"
	runsHandler(nil)(rr, req)
	if rr.Code != 503 {
		t.Fatalf("code=%d want 503", rr.Code)
	}

	rr = httptest.NewRecorder()
	req.RemoteAddr = "10.1.2.3:4000"
	runsHandler(nil)(rr, req)
	if rr.Code != 403 {
		t.Fatalf("remote code=%d want 403", rr.Code)
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("RK_TEST_BOOL", "")
	if !envBool("RK_TEST_BOOL", true) {
		t.Fatalf("empty should use default")
	}
	t.Setenv("RK_TEST_BOOL", "false")
	if envBool("RK_TEST_BOOL", true) {
		t.Fatalf("false not parsed")
	}
	t.Setenv("RK_TEST_BOOL", "maybe")
	if envBool("RK_TEST_BOOL", false) {
		t.Fatalf("garbage should use default")
	}
}
