package surface

import (
	"math"

	"reformkit/internal/sim/geo"
)

// Planet is the read-only view of the host's reform grid the index builder
// needs. Row i counts from the south pole.
type Planet interface {
	ID() int
	Radius() float64
	Segments() int
	RowWidth(row int) int
	CellCount() int
	RawPointCount() int
	// CellIDForPoint returns -1 when the point maps to no cell.
	CellIDForPoint(p geo.Vec3) int
	// RawIndexForPoint returns -1 when the point maps to no raw sample.
	RawIndexForPoint(p geo.Vec3) int
}

// BandedPlanet is a latitude-banded reform grid: row widths shrink toward
// the poles in Bands discrete steps, so width changes land on a few
// "tropic" latitudes. Raw terrain data is RawPerCell times finer on both
// axes.
type BandedPlanet struct {
	PlanetID     int
	R            float64
	Rows         int
	EquatorWidth int
	Bands        int
	RawPerCell   int

	rowStart    []int
	rawRowStart []int
}

// NewBandedPlanet builds the row tables. rows should be even so that the
// equator falls between two rows.
func NewBandedPlanet(id int, radius float64, rows, equatorWidth, bands, rawPerCell int) *BandedPlanet {
	if rows < 2 {
		rows = 2
	}
	if bands < 1 {
		bands = 1
	}
	if equatorWidth < bands {
		equatorWidth = bands
	}
	if rawPerCell < 1 {
		rawPerCell = 1
	}
	p := &BandedPlanet{
		PlanetID:     id,
		R:            radius,
		Rows:         rows,
		EquatorWidth: equatorWidth,
		Bands:        bands,
		RawPerCell:   rawPerCell,
	}
	p.rowStart = make([]int, rows+1)
	p.rawRowStart = make([]int, rows*rawPerCell+1)
	for i := 0; i < rows; i++ {
		p.rowStart[i+1] = p.rowStart[i] + p.RowWidth(i)
	}
	for i := 0; i < rows*rawPerCell; i++ {
		p.rawRowStart[i+1] = p.rawRowStart[i] + p.RowWidth(i/rawPerCell)*rawPerCell
	}
	return p
}

func (p *BandedPlanet) ID() int         { return p.PlanetID }
func (p *BandedPlanet) Radius() float64 { return p.R }
func (p *BandedPlanet) Segments() int   { return p.Rows }
func (p *BandedPlanet) CellCount() int  { return p.rowStart[p.Rows] }

func (p *BandedPlanet) RawPointCount() int {
	return p.rawRowStart[len(p.rawRowStart)-1]
}

// RowLat returns the centre latitude of a row in degrees.
func (p *BandedPlanet) RowLat(row int) float64 {
	return RowLatitude(row, p.Rows)
}

func (p *BandedPlanet) RowWidth(row int) int {
	if row < 0 || row >= p.Rows {
		return 0
	}
	c := math.Cos(geo.DegToRad(p.RowLat(row)))
	steps := int(math.Ceil(c*float64(p.Bands) - 1e-9))
	if steps < 1 {
		steps = 1
	}
	return p.EquatorWidth / p.Bands * steps
}

// RowStart returns the id of the first cell in row.
func (p *BandedPlanet) RowStart(row int) int {
	if row < 0 || row > p.Rows {
		return -1
	}
	return p.rowStart[row]
}

func (p *BandedPlanet) CellIDForPoint(pt geo.Vec3) int {
	lat, lon := geo.LatLon(pt)
	row, col, ok := locate(lat, lon, p.Rows, p.RowWidth)
	if !ok {
		return -1
	}
	return p.rowStart[row] + col
}

func (p *BandedPlanet) RawIndexForPoint(pt geo.Vec3) int {
	lat, lon := geo.LatLon(pt)
	k := p.RawPerCell
	row, col, ok := locate(lat, lon, p.Rows*k, func(r int) int { return p.RowWidth(r/k) * k })
	if !ok {
		return -1
	}
	return p.rawRowStart[row] + col
}

// RowLatitude is the centre latitude of row i of n rows counted from the
// south pole.
func RowLatitude(i, n int) float64 {
	return -90 + (float64(i)+0.5)*180/float64(n)
}

// ColLongitude is the centre longitude of column c in a row of width w.
func ColLongitude(c, w int) float64 {
	return -180 + (float64(c)+0.5)*360/float64(w)
}

func locate(lat, lon float64, rows int, width func(int) int) (row, col int, ok bool) {
	if rows <= 0 {
		return 0, 0, false
	}
	row = int(math.Floor((lat + 90) / 180 * float64(rows)))
	if row < 0 {
		row = 0
	}
	if row >= rows {
		row = rows - 1
	}
	w := width(row)
	if w <= 0 {
		return 0, 0, false
	}
	col = int(math.Floor((geo.NormalizeLon(lon) + 180) / 360 * float64(w)))
	col %= w
	if col < 0 {
		col += w
	}
	return row, col, true
}
