package surface

import (
	"errors"
	"math"
	"sort"
	"time"

	"reformkit/internal/sim/geo"
)

// ErrCellUnmapped is reported when a cell or raw point has no coordinate
// yet. Callers skip the cell.
var ErrCellUnmapped = errors.New("cell not mapped")

type Options struct {
	// Precision is the number of decimal places kept by coordinates.
	Precision int
	// MeridianIntervalDeg spaces the major meridians.
	MeridianIntervalDeg float64
	// RawSamples is the per-axis sub-sampling used to map raw terrain
	// points onto cells.
	RawSamples int
	// Clock is used for the per-call budget. Defaults to time.Now.
	Clock func() time.Time
}

func DefaultOptions() Options {
	return Options{
		Precision:           3,
		MeridianIntervalDeg: 30,
		RawSamples:          2,
	}
}

// RowSpan is one resolved latitude row.
type RowSpan struct {
	Row    int
	Start  int
	Width  int
	LatDeg float64
}

// Progress is returned by Advance.
type Progress struct {
	RowsDone      int
	Rows          int
	CellsResolved int
	Complete      bool
}

// Fraction returns completion in [0,1].
func (p Progress) Fraction() float64 {
	if p.Rows <= 0 {
		return 0
	}
	return float64(p.RowsDone) / float64(p.Rows)
}

// Index maps reform grid cells to coordinates. It is filled in over many
// calls to Advance; lookups on parts not yet swept return geo.Empty.
type Index struct {
	planet Planet
	in     *geo.Interner
	opts   Options

	row       int
	col       int
	prevWidth int
	prevLat   float64
	rowOpen   bool
	resolved  int

	cellCoord []*geo.Coordinate
	rawCoord  []*geo.Coordinate
	cellRow   []int32
	rows      []RowSpan
	lonStep   map[int]float64

	equator       [2]*geo.Coordinate
	meridians     map[*geo.Coordinate]struct{}
	meridianCells []int
	tropics       map[*geo.Coordinate]struct{}
	tropicOrder   []*geo.Coordinate
}

func NewIndex(p Planet, opts Options) *Index {
	if opts.MeridianIntervalDeg <= 0 {
		opts.MeridianIntervalDeg = DefaultOptions().MeridianIntervalDeg
	}
	if opts.RawSamples < 1 {
		opts.RawSamples = 1
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	cells := p.CellCount()
	idx := &Index{
		planet:    p,
		in:        geo.NewInterner(opts.Precision),
		opts:      opts,
		cellCoord: make([]*geo.Coordinate, cells),
		rawCoord:  make([]*geo.Coordinate, p.RawPointCount()),
		cellRow:   make([]int32, cells),
		lonStep:   make(map[int]float64),
		meridians: make(map[*geo.Coordinate]struct{}),
		tropics:   make(map[*geo.Coordinate]struct{}),
	}
	for i := range idx.cellRow {
		idx.cellRow[i] = -1
	}
	return idx
}

func (x *Index) Planet() Planet               { return x.planet }
func (x *Index) Interner() *geo.Interner      { return x.in }
func (x *Index) IsComplete() bool             { return x.row >= x.planet.Segments() }
func (x *Index) CellCount() int               { return len(x.cellCoord) }
func (x *Index) MeridianIntervalDeg() float64 { return x.opts.MeridianIntervalDeg }

func (x *Index) Progress() Progress {
	return Progress{
		RowsDone:      x.row,
		Rows:          x.planet.Segments(),
		CellsResolved: x.resolved,
		Complete:      x.IsComplete(),
	}
}

// Advance resolves cells until the budget is spent or the sweep reaches
// the north pole. At least one cell is resolved per call so the sweep
// always makes progress.
func (x *Index) Advance(budget time.Duration) Progress {
	start := x.opts.Clock()
	segs := x.planet.Segments()
	worked := false
	for x.row < segs {
		width := x.planet.RowWidth(x.row)
		lat := RowLatitude(x.row, segs)
		if !x.rowOpen {
			x.beginRow(width, lat)
			x.rowOpen = true
		}
		for x.col < width {
			if worked && x.opts.Clock().Sub(start) >= budget {
				return x.Progress()
			}
			x.resolveCell(width, lat)
			x.col++
			worked = true
		}
		x.col = 0
		x.rowOpen = false
		x.prevWidth = width
		x.prevLat = lat
		x.row++
	}
	return x.Progress()
}

func (x *Index) beginRow(width int, lat float64) {
	if x.row > 0 && width != x.prevWidth {
		c := x.in.Intern(lat, 0)
		if _, ok := x.tropics[c]; !ok {
			x.tropics[c] = struct{}{}
			x.tropicOrder = append(x.tropicOrder, c)
		}
	}
	if lat > 0 && (x.row == 0 || x.prevLat <= 0) {
		x.equator[1] = x.in.Intern(lat, 0)
	}
	if lat < 0 && RowLatitude(x.row+1, x.planet.Segments()) >= 0 {
		x.equator[0] = x.in.Intern(lat, 0)
	}
	start := -1
	if width > 0 {
		x.lonStep[x.in.Intern(lat, 0).Lat] = 360 / float64(width)
		start = x.planet.CellIDForPoint(geo.PointAt(lat, ColLongitude(0, width), x.planet.Radius()))
	}
	x.rows = append(x.rows, RowSpan{Row: x.row, Start: start, Width: width, LatDeg: lat})
}

func (x *Index) resolveCell(width int, lat float64) {
	radius := x.planet.Radius()
	lon := ColLongitude(x.col, width)
	id := x.planet.CellIDForPoint(geo.PointAt(lat, lon, radius))
	if id < 0 || id >= len(x.cellCoord) {
		return
	}
	c := x.in.Intern(lat, lon)
	if x.cellCoord[id] == nil {
		x.resolved++
	}
	x.cellCoord[id] = c
	x.cellRow[id] = int32(len(x.rows) - 1)

	if x.isMeridianCol(x.col, width) {
		x.meridians[c] = struct{}{}
		x.meridianCells = append(x.meridianCells, id)
	}

	k := x.opts.RawSamples
	segs := float64(x.planet.Segments())
	for a := 0; a < k; a++ {
		subLat := -90 + (float64(x.row)+(float64(a)+0.5)/float64(k))*180/segs
		for b := 0; b < k; b++ {
			subLon := -180 + (float64(x.col)+(float64(b)+0.5)/float64(k))*360/float64(width)
			raw := x.planet.RawIndexForPoint(geo.PointAt(subLat, subLon, radius))
			if raw >= 0 && raw < len(x.rawCoord) {
				x.rawCoord[raw] = c
			}
		}
	}
}

func (x *Index) meridianCount() int {
	n := int(math.Round(360 / x.opts.MeridianIntervalDeg))
	if n < 1 {
		n = 1
	}
	return n
}

func (x *Index) isMeridianCol(col, width int) bool {
	n := x.meridianCount()
	for k := 0; k < n; k++ {
		if int(math.Round(float64(k)*float64(width)/float64(n)))%width == col {
			return true
		}
	}
	return false
}

// CoordinateForCell returns geo.Empty for unknown or not yet swept cells.
func (x *Index) CoordinateForCell(cell int) *geo.Coordinate {
	if cell < 0 || cell >= len(x.cellCoord) || x.cellCoord[cell] == nil {
		return geo.Empty
	}
	return x.cellCoord[cell]
}

// CellCoordinateForRawPoint returns the coordinate of the cell covering a
// raw terrain sample, or geo.Empty.
func (x *Index) CellCoordinateForRawPoint(raw int) *geo.Coordinate {
	if raw < 0 || raw >= len(x.rawCoord) || x.rawCoord[raw] == nil {
		return geo.Empty
	}
	return x.rawCoord[raw]
}

// Lookup is CoordinateForCell with an error for unmapped cells.
func (x *Index) Lookup(cell int) (*geo.Coordinate, error) {
	c := x.CoordinateForCell(cell)
	if c.IsEmpty() {
		return nil, ErrCellUnmapped
	}
	return c, nil
}

// RowOf returns the row a resolved cell belongs to.
func (x *Index) RowOf(cell int) (RowSpan, bool) {
	if cell < 0 || cell >= len(x.cellRow) || x.cellRow[cell] < 0 {
		return RowSpan{}, false
	}
	return x.rows[x.cellRow[cell]], true
}

// Rows returns the rows resolved so far, south to north.
func (x *Index) Rows() []RowSpan { return x.rows }

// EquatorBand returns the rows just south and north of 0°, as coordinates at
// longitude zero. Entries not yet reached are omitted.
func (x *Index) EquatorBand() []*geo.Coordinate {
	out := make([]*geo.Coordinate, 0, 2)
	for _, c := range x.equator {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// MeridianSet reports membership of cell coordinates on a major meridian.
func (x *Index) MeridianSet() map[*geo.Coordinate]struct{} { return x.meridians }

// MeridianCells returns the major meridian cell ids in ascending order.
func (x *Index) MeridianCells() []int {
	out := append([]int(nil), x.meridianCells...)
	sort.Ints(out)
	return out
}

// MajorMeridianLongitudes returns the longitudes major meridians run along.
func (x *Index) MajorMeridianLongitudes() []float64 {
	n := x.meridianCount()
	out := make([]float64, n)
	for k := range out {
		out[k] = geo.NormalizeLon(-180 + float64(k)*360/float64(n))
	}
	return out
}

// LonStepDeg returns the longitude width of a cell on the row at lat
// (interner units), or 0 for rows not yet reached.
func (x *Index) LonStepDeg(lat int) float64 { return x.lonStep[lat] }

// TropicSet holds one coordinate (at longitude zero) per row where the row
// width changed.
func (x *Index) TropicSet() map[*geo.Coordinate]struct{} { return x.tropics }

// Tropics returns tropic markers in discovery order, south to north.
func (x *Index) Tropics() []*geo.Coordinate { return x.tropicOrder }
