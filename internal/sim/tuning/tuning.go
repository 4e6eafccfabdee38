package tuning

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"reformkit/internal/sim/decorate"
	"reformkit/internal/sim/geo"
	"reformkit/internal/sim/resources"
)

type Tuning struct {
	TickRateHz       int `yaml:"tick_rate_hz"`
	WorkItemsPerTick int `yaml:"work_items_per_tick"`

	Index  IndexTuning  `yaml:"index"`
	Reform ReformTuning `yaml:"reform"`

	Decorations Decorations `yaml:"decorations"`

	// Regions is the $-delimited region list, as stored by the host.
	Regions string `yaml:"regions"`
}

type IndexTuning struct {
	BudgetMs            int     `yaml:"budget_ms"`
	Precision           int     `yaml:"precision"`
	MeridianIntervalDeg float64 `yaml:"meridian_interval_deg"`
	RawSamples          int     `yaml:"raw_samples"`
}

type ReformTuning struct {
	FoundationPolicy resources.Policy `yaml:"foundation_policy"`
	SoilPolicy       resources.Policy `yaml:"soil_policy"`

	// Latitude constraint in degrees; equal bounds mean the whole planet.
	MinLat float64 `yaml:"min_lat"`
	MaxLat float64 `yaml:"max_lat"`

	FoundationPerCell int     `yaml:"foundation_per_cell"`
	SoilPerVein       int     `yaml:"soil_per_vein"`
	FlattenRadius     float64 `yaml:"flatten_radius"`
	SkipStations      bool    `yaml:"skip_stations"`
}

// Decoration toggles one guide-line rule.
type Decoration struct {
	Enabled bool                `yaml:"enabled"`
	Kind    decorate.ReformKind `yaml:"kind"`
	Color   int                 `yaml:"color"`
}

func (d Decoration) Config() decorate.DecorationConfig {
	k := d.Kind
	if k == decorate.KindUnset {
		k = decorate.KindPaint
	}
	return decorate.DecorationConfig{Kind: k, ColorIndex: d.Color}
}

type Decorations struct {
	Pole          Decoration `yaml:"pole"`
	Equator       Decoration `yaml:"equator"`
	MajorMeridian Decoration `yaml:"major_meridian"`
	MinorMeridian Decoration `yaml:"minor_meridian"`
	Tropic        Decoration `yaml:"tropic"`
	Regions       bool       `yaml:"regions"`

	MinorMeridianIntervalDeg float64 `yaml:"minor_meridian_interval_deg"`
	PoleThresholdDeg         float64 `yaml:"pole_threshold_deg"`

	// Base colours levelled cells no rule claims.
	Base Decoration `yaml:"base"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz:       5,
		WorkItemsPerTick: 25,
		Index: IndexTuning{
			BudgetMs:            4,
			Precision:           3,
			MeridianIntervalDeg: 30,
			RawSamples:          2,
		},
		Reform: ReformTuning{
			FoundationPolicy:  resources.Honest,
			SoilPolicy:        resources.Honest,
			FoundationPerCell: 1,
			SoilPerVein:       1,
			FlattenRadius:     1,
		},
		Decorations: Decorations{
			Pole:                     Decoration{Enabled: true, Color: 1},
			Equator:                  Decoration{Enabled: true, Color: 2},
			MajorMeridian:            Decoration{Enabled: true, Color: 3},
			MinorMeridian:            Decoration{Enabled: false, Color: 4},
			Tropic:                   Decoration{Enabled: true, Color: 5},
			Regions:                  true,
			MinorMeridianIntervalDeg: 10,
			PoleThresholdDeg:         80,
			Base:                     Decoration{Enabled: true, Color: 0},
		},
	}
}

// Normalize fills zero values with defaults and clamps out-of-range ones.
func (t *Tuning) Normalize() {
	d := Defaults()
	if t.TickRateHz <= 0 {
		t.TickRateHz = d.TickRateHz
	}
	if t.WorkItemsPerTick < 1 {
		t.WorkItemsPerTick = 1
	}
	if t.Index.BudgetMs <= 0 {
		t.Index.BudgetMs = d.Index.BudgetMs
	}
	if t.Index.Precision < 0 {
		t.Index.Precision = 0
	}
	if t.Index.Precision > geo.MaxPrecision {
		t.Index.Precision = geo.MaxPrecision
	}
	if t.Index.MeridianIntervalDeg <= 0 {
		t.Index.MeridianIntervalDeg = d.Index.MeridianIntervalDeg
	}
	if t.Index.RawSamples < 1 {
		t.Index.RawSamples = 1
	}
	if t.Reform.MinLat > t.Reform.MaxLat {
		t.Reform.MinLat, t.Reform.MaxLat = t.Reform.MaxLat, t.Reform.MinLat
	}
	if t.Reform.FoundationPerCell < 0 {
		t.Reform.FoundationPerCell = 0
	}
	if t.Reform.SoilPerVein < 0 {
		t.Reform.SoilPerVein = 0
	}
	if t.Reform.FlattenRadius <= 0 {
		t.Reform.FlattenRadius = d.Reform.FlattenRadius
	}
	if t.Decorations.MinorMeridianIntervalDeg <= 0 {
		t.Decorations.MinorMeridianIntervalDeg = d.Decorations.MinorMeridianIntervalDeg
	}
	if t.Decorations.PoleThresholdDeg <= 0 {
		t.Decorations.PoleThresholdDeg = d.Decorations.PoleThresholdDeg
	}
}

func (t Tuning) Validate() error {
	var errs []error
	if t.WorkItemsPerTick < 1 {
		errs = append(errs, fmt.Errorf("work_items_per_tick must be >= 1, got %d", t.WorkItemsPerTick))
	}
	if t.Reform.MinLat < -90 || t.Reform.MaxLat > 90 {
		errs = append(errs, fmt.Errorf("latitude bounds [%g, %g] outside [-90, 90]", t.Reform.MinLat, t.Reform.MaxLat))
	}
	if 360/t.Index.MeridianIntervalDeg < 1 {
		errs = append(errs, fmt.Errorf("meridian_interval_deg %g leaves no meridians", t.Index.MeridianIntervalDeg))
	}
	if t.Decorations.PoleThresholdDeg >= 90 {
		errs = append(errs, fmt.Errorf("pole_threshold_deg %g leaves no pole cap", t.Decorations.PoleThresholdDeg))
	}
	if !knownPolicy(t.Reform.FoundationPolicy) {
		errs = append(errs, fmt.Errorf("foundation_policy: unknown policy %d", int(t.Reform.FoundationPolicy)))
	}
	if !knownPolicy(t.Reform.SoilPolicy) {
		errs = append(errs, fmt.Errorf("soil_policy: unknown policy %d", int(t.Reform.SoilPolicy)))
	}
	return errors.Join(errs...)
}

func knownPolicy(p resources.Policy) bool {
	return p >= resources.Honest && p <= resources.FullCheat
}

// Policies returns the per-resource consumption policies.
func (t Tuning) Policies() map[resources.Kind]resources.Policy {
	return map[resources.Kind]resources.Policy{
		resources.Foundation: t.Reform.FoundationPolicy,
		resources.SoilPile:   t.Reform.SoilPolicy,
	}
}

// Load reads a tuning file over the defaults. An empty path returns the
// defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		t.Normalize()
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}
