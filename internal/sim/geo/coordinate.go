package geo

import (
	"fmt"
	"math"
	"sync"
)

// MaxPrecision bounds the decimal places kept by a Coordinate.
const MaxPrecision = 6

// Coordinate is an interned (lat, lon) pair rounded toward zero at
// 10^Precision units per degree. Two coordinates with equal fields are the
// same pointer, so == is identity.
type Coordinate struct {
	Lat       int
	Lon       int
	Precision int
}

// Empty marks a coordinate that has not been computed yet.
var Empty = &Coordinate{Lat: math.MinInt32, Lon: math.MinInt32, Precision: -1}

// IsEmpty reports whether c is nil or the Empty sentinel.
func (c *Coordinate) IsEmpty() bool { return c == nil || c == Empty }

// LatDeg returns the latitude in degrees.
func (c *Coordinate) LatDeg() float64 {
	if c.IsEmpty() {
		return math.NaN()
	}
	return float64(c.Lat) / Scale(c.Precision)
}

// LonDeg returns the longitude in degrees.
func (c *Coordinate) LonDeg() float64 {
	if c.IsEmpty() {
		return math.NaN()
	}
	return float64(c.Lon) / Scale(c.Precision)
}

func (c *Coordinate) String() string {
	if c.IsEmpty() {
		return "(empty)"
	}
	return fmt.Sprintf("(%.*f, %.*f)", c.Precision, c.LatDeg(), c.Precision, c.LonDeg())
}

// Scale returns the number of units per degree at precision p.
func Scale(p int) float64 {
	return math.Pow10(clampPrecision(p))
}

// Round converts degrees to integer units at precision p, rounding toward zero.
// A tiny bias absorbs float noise such as 4.35*100 = 434.99999999999994.
func Round(deg float64, p int) int {
	v := deg * Scale(p)
	if v >= 0 {
		return int(math.Trunc(v + 1e-9))
	}
	return int(math.Trunc(v - 1e-9))
}

func clampPrecision(p int) int {
	if p < 0 {
		return 0
	}
	if p > MaxPrecision {
		return MaxPrecision
	}
	return p
}

type internKey struct {
	lat, lon, precision int
}

// Interner hands out one *Coordinate per (lat, lon, precision).
type Interner struct {
	mu    sync.Mutex
	byKey map[internKey]*Coordinate
	prec  int
}

func NewInterner(precision int) *Interner {
	return &Interner{
		byKey: make(map[internKey]*Coordinate),
		prec:  clampPrecision(precision),
	}
}

// Precision returns the number of decimal places coordinates keep.
func (in *Interner) Precision() int { return in.prec }

// Intern rounds a continuous (lat, lon) pair in degrees and returns the
// canonical coordinate for it.
func (in *Interner) Intern(latDeg, lonDeg float64) *Coordinate {
	if math.IsNaN(latDeg) || math.IsNaN(lonDeg) {
		return Empty
	}
	return in.InternUnits(Round(latDeg, in.prec), Round(lonDeg, in.prec))
}

// InternUnits returns the canonical coordinate for already-rounded units.
func (in *Interner) InternUnits(lat, lon int) *Coordinate {
	k := internKey{lat: lat, lon: lon, precision: in.prec}
	in.mu.Lock()
	defer in.mu.Unlock()
	if c, ok := in.byKey[k]; ok {
		return c
	}
	c := &Coordinate{Lat: lat, Lon: lon, Precision: in.prec}
	in.byKey[k] = c
	return c
}

// Len returns the number of distinct coordinates handed out.
func (in *Interner) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.byKey)
}
