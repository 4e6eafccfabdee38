package tuning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reformkit/internal/sim/decorate"
	"reformkit/internal/sim/resources"
)

func TestLoad_ConfigsTuningYAML(t *testing.T) {
	tune, err := Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("load tuning.yaml: %v", err)
	}
	if tune.WorkItemsPerTick != 25 || tune.Index.BudgetMs != 4 {
		t.Fatalf("unexpected tuning: %+v", tune)
	}
	if tune.Reform.FoundationPolicy != resources.Honest {
		t.Fatalf("foundation policy=%v", tune.Reform.FoundationPolicy)
	}
	if c := tune.Decorations.Equator.Config(); c != decorate.Paint(2) {
		t.Fatalf("equator config=%+v", c)
	}
	if tune.Regions == "" {
		t.Fatalf("expected default regions")
	}
}

func TestLoad_OverridesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	raw := `
work_items_per_tick: 0
reform:
  foundation_policy: half_cheat
  soil_policy: full_cheat
  min_lat: 60
  max_lat: -30
decorations:
  tropic: {enabled: true, kind: clear, color: 9}
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tune, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tune.WorkItemsPerTick != 1 {
		t.Fatalf("work items per tick should clamp to 1, got %d", tune.WorkItemsPerTick)
	}
	if tune.Reform.MinLat != -30 || tune.Reform.MaxLat != 60 {
		t.Fatalf("latitude bounds not ordered: %v..%v", tune.Reform.MinLat, tune.Reform.MaxLat)
	}
	p := tune.Policies()
	if p[resources.Foundation] != resources.HalfCheat || p[resources.SoilPile] != resources.FullCheat {
		t.Fatalf("policies=%v", p)
	}
	if c := tune.Decorations.Tropic.Config(); c.Kind != decorate.KindClear || c.ColorIndex != 9 {
		t.Fatalf("tropic config=%+v", c)
	}
	// Untouched keys keep their defaults.
	if tune.Index.MeridianIntervalDeg != 30 || !tune.Decorations.Pole.Enabled {
		t.Fatalf("defaults lost: %+v", tune)
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"policy":   "reform:\n  foundation_policy: sometimes\n",
		"latitude": "reform:\n  min_lat: -120\n  max_lat: 10\n",
		"pole":     "decorations:\n  pole_threshold_deg: 95\n",
		"kind":     "decorations:\n  pole: {kind: sparkle}\n",
	}
	for name, raw := range cases {
		path := filepath.Join(dir, name+".yaml")
		if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "tuning.yaml") {
			t.Fatalf("%s: expected tuning.yaml error, got %v", name, err)
		}
	}
}

func TestLoad_EmptyPathGivesDefaults(t *testing.T) {
	tune, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := tune.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !os.IsNotExist(err) {
		t.Fatalf("missing file err=%v", err)
	}
}
