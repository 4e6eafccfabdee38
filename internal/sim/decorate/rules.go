package decorate

import (
	"math"

	"reformkit/internal/sim/geo"
	"reformkit/internal/sim/regions"
)

// Guides is the part of the surface index the line rules read.
type Guides interface {
	Interner() *geo.Interner
	EquatorBand() []*geo.Coordinate
	MeridianSet() map[*geo.Coordinate]struct{}
	TropicSet() map[*geo.Coordinate]struct{}
	MajorMeridianLongitudes() []float64
}

// LonStepper is implemented by guides that know the longitude width of
// the cells on each row. lat is in interner units; 0 means unknown.
type LonStepper interface {
	LonStepDeg(lat int) float64
}

// MinorMeridianClearanceDeg keeps minor meridians away from major ones.
const MinorMeridianClearanceDeg = 5

// minorProbes is the number of interpolated longitudes tried between two
// consecutive queries on the same latitude.
const minorProbes = 3

type PoleRule struct {
	ThresholdDeg float64
	Config       DecorationConfig
}

func (r *PoleRule) Name() string { return "pole" }

func (r *PoleRule) Decide(c *geo.Coordinate) DecorationConfig {
	if math.Abs(c.LatDeg()) > r.ThresholdDeg {
		return r.Config
	}
	return None
}

type EquatorRule struct {
	Guides Guides
	Config DecorationConfig
}

func (r *EquatorRule) Name() string             { return "equator" }
func (r *EquatorRule) Orientation() Orientation { return EastWest }

func (r *EquatorRule) Decide(c *geo.Coordinate) DecorationConfig {
	for _, e := range r.Guides.EquatorBand() {
		if e.Lat == c.Lat {
			return r.Config
		}
	}
	return None
}

type MajorMeridianRule struct {
	Guides Guides
	Config DecorationConfig
}

func (r *MajorMeridianRule) Name() string             { return "major_meridian" }
func (r *MajorMeridianRule) Orientation() Orientation { return NorthSouth }

func (r *MajorMeridianRule) Decide(c *geo.Coordinate) DecorationConfig {
	if _, ok := r.Guides.MeridianSet()[c]; ok {
		return r.Config
	}
	return None
}

// MinorMeridianRule matches whole-degree longitudes that are multiples of
// IntervalDeg, away from major meridians. Grid stepping near the poles can
// skip the exact longitude, so when the previous query on the same latitude
// missed, a few longitudes between the two queries are probed as well.
type MinorMeridianRule struct {
	Guides      Guides
	IntervalDeg float64
	Config      DecorationConfig

	havePrev   bool
	prevLat    int
	prevLon    float64
	prevMissed bool
}

func (r *MinorMeridianRule) Name() string             { return "minor_meridian" }
func (r *MinorMeridianRule) Orientation() Orientation { return NorthSouth }

func (r *MinorMeridianRule) Reset() { r.havePrev = false }

// Skip records a coordinate claimed by an earlier rule so the next query
// does not interpolate across it.
func (r *MinorMeridianRule) Skip(c *geo.Coordinate) {
	r.havePrev = true
	r.prevLat = c.Lat
	r.prevLon = c.LonDeg()
	r.prevMissed = false
}

func (r *MinorMeridianRule) Decide(c *geo.Coordinate) DecorationConfig {
	lon := c.LonDeg()
	step := r.lonStep(c)
	hit := r.onMinor(lon, step)
	// With a known cell width each minor longitude already maps to exactly
	// one cell; probing is only needed without it.
	if !hit && step == 0 && r.havePrev && r.prevLat == c.Lat && r.prevMissed {
		for k := 1; k <= minorProbes; k++ {
			probe := r.prevLon + (lon-r.prevLon)*float64(k)/float64(minorProbes+1)
			if r.onMinor(probe, 0) {
				hit = true
				break
			}
		}
	}
	r.havePrev = true
	r.prevLat = c.Lat
	r.prevLon = lon
	r.prevMissed = !hit
	if hit {
		return r.Config
	}
	return None
}

func (r *MinorMeridianRule) lonStep(c *geo.Coordinate) float64 {
	if s, ok := r.Guides.(LonStepper); ok {
		return s.LonStepDeg(c.Lat)
	}
	return 0
}

// onMinor reports whether lon lies on a minor meridian. When step is the
// cell width in degrees the cell matches if it contains a multiple of
// IntervalDeg, so each minor meridian is one cell wide on every row;
// otherwise the whole-degree part of lon is tested.
func (r *MinorMeridianRule) onMinor(lon, step float64) bool {
	if r.IntervalDeg <= 0 {
		return false
	}
	if step > 0 {
		width := int(math.Round(360 / step))
		if width < 1 {
			return false
		}
		// Cells span [lo, lo+step); a meridian on a boundary belongs to the
		// cell east of it.
		lo := -180 + float64(cellColumn(lon, step, width))*step
		for m := math.Ceil(lo/r.IntervalDeg-1e-9) * r.IntervalDeg; m < lo+step-1e-9; m += r.IntervalDeg {
			if r.clearOfMajors(m) {
				return true
			}
		}
		return false
	}
	if math.Mod(math.Trunc(lon), r.IntervalDeg) != 0 {
		return false
	}
	return r.clearOfMajors(lon)
}

func (r *MinorMeridianRule) clearOfMajors(lon float64) bool {
	if r.Guides == nil {
		return true
	}
	for _, m := range r.Guides.MajorMeridianLongitudes() {
		if lonDistance(lon, m) < MinorMeridianClearanceDeg {
			return false
		}
	}
	return true
}

func cellColumn(lon, step float64, width int) int {
	c := int(math.Floor((lon+180)/step)) % width
	if c < 0 {
		c += width
	}
	return c
}

func lonDistance(a, b float64) float64 {
	d := math.Abs(geo.NormalizeLon(a - b))
	if d > 180 {
		d = 360 - d
	}
	return d
}

type TropicRule struct {
	Guides Guides
	Config DecorationConfig
}

func (r *TropicRule) Name() string             { return "tropic" }
func (r *TropicRule) Orientation() Orientation { return EastWest }

func (r *TropicRule) Decide(c *geo.Coordinate) DecorationConfig {
	key := r.Guides.Interner().InternUnits(c.Lat, 0)
	if _, ok := r.Guides.TropicSet()[key]; ok {
		return r.Config
	}
	return None
}

// RegionRule paints the colour of the first region containing the
// coordinate.
type RegionRule struct {
	Store *regions.Store
	Kind  ReformKind
}

func (r *RegionRule) Name() string { return "region" }

func (r *RegionRule) Decide(c *geo.Coordinate) DecorationConfig {
	reg, ok := r.Store.Match(c.LatDeg(), c.LonDeg())
	if !ok {
		return None
	}
	kind := r.Kind
	if kind == KindUnset {
		kind = KindPaint
	}
	return DecorationConfig{Kind: kind, ColorIndex: reg.ColorIndex}
}

// Func adapts a function to Rule.
type Func struct {
	RuleName string
	Fn       func(c *geo.Coordinate) DecorationConfig
	Dir      Orientation
}

func (f Func) Name() string                              { return f.RuleName }
func (f Func) Decide(c *geo.Coordinate) DecorationConfig { return f.Fn(c) }
func (f Func) Orientation() Orientation                  { return f.Dir }
