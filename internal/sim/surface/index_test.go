package surface

import (
	"testing"
	"time"

	"reformkit/internal/sim/geo"
)

func testPlanet() *BandedPlanet {
	return NewBandedPlanet(1, 100, 20, 40, 4, 2)
}

func fullIndex(t *testing.T, interval float64) *Index {
	t.Helper()
	opts := DefaultOptions()
	opts.MeridianIntervalDeg = interval
	idx := NewIndex(testPlanet(), opts)
	p := idx.Advance(time.Hour)
	if !p.Complete || !idx.IsComplete() {
		t.Fatalf("expected complete sweep, got %+v", p)
	}
	return idx
}

func TestBandedPlanet_RowWidths(t *testing.T) {
	p := testPlanet()
	want := []int{10, 10, 20, 30, 30, 40, 40, 40, 40, 40, 40, 40, 40, 40, 40, 30, 30, 20, 10, 10}
	for i, w := range want {
		if got := p.RowWidth(i); got != w {
			t.Fatalf("row %d width=%d want %d", i, got, w)
		}
	}
	if p.CellCount() != 600 {
		t.Fatalf("cell count=%d want 600", p.CellCount())
	}
	if p.RawPointCount() != 2400 {
		t.Fatalf("raw count=%d want 2400", p.RawPointCount())
	}
}

func TestIndex_FullSweepMapsEveryCell(t *testing.T) {
	idx := fullIndex(t, 90)
	for id := 0; id < idx.CellCount(); id++ {
		if idx.CoordinateForCell(id).IsEmpty() {
			t.Fatalf("cell %d unmapped after complete sweep", id)
		}
	}
	c := idx.CoordinateForCell(0)
	if c.Lat != -85500 || c.Lon != -162000 {
		t.Fatalf("cell 0 coordinate=%+v", *c)
	}
	if !idx.CoordinateForCell(-1).IsEmpty() || !idx.CoordinateForCell(600).IsEmpty() {
		t.Fatalf("out of range cells must be Empty")
	}
	if _, err := idx.Lookup(700); err != ErrCellUnmapped {
		t.Fatalf("Lookup out of range err=%v", err)
	}
}

func TestIndex_RawPointsManyToOne(t *testing.T) {
	idx := fullIndex(t, 90)
	distinct := map[*geo.Coordinate]int{}
	for raw := 0; raw < idx.Planet().RawPointCount(); raw++ {
		c := idx.CellCoordinateForRawPoint(raw)
		if c.IsEmpty() {
			t.Fatalf("raw %d unmapped", raw)
		}
		distinct[c]++
	}
	if len(distinct) != 600 {
		t.Fatalf("distinct raw coordinates=%d want 600", len(distinct))
	}
	for c, n := range distinct {
		if n != 4 {
			t.Fatalf("coordinate %v covers %d raw points, want 4", c, n)
		}
	}
}

func TestIndex_DerivedSets(t *testing.T) {
	idx := fullIndex(t, 90)
	in := idx.Interner()

	band := idx.EquatorBand()
	if len(band) != 2 || band[0] != in.Intern(-4.5, 0) || band[1] != in.Intern(4.5, 0) {
		t.Fatalf("equator band=%v", band)
	}

	tropics := idx.TropicSet()
	if len(tropics) != 6 {
		t.Fatalf("tropic count=%d want 6: %v", len(tropics), idx.Tropics())
	}
	for _, lat := range []float64{-67.5, -58.5, -40.5, 49.5, 67.5, 76.5} {
		if _, ok := tropics[in.Intern(lat, 0)]; !ok {
			t.Fatalf("missing tropic marker at %v", lat)
		}
	}

	if got := len(idx.MeridianCells()); got != 80 {
		t.Fatalf("meridian cells=%d want 80", got)
	}
	if _, ok := idx.MeridianSet()[idx.CoordinateForCell(0)]; !ok {
		t.Fatalf("column 0 should lie on a major meridian")
	}
	if _, ok := idx.MeridianSet()[idx.CoordinateForCell(1)]; ok {
		t.Fatalf("column 1 should not lie on a major meridian")
	}
	lons := idx.MajorMeridianLongitudes()
	if len(lons) != 4 || lons[0] != -180 || lons[2] != 0 {
		t.Fatalf("major meridian longitudes=%v", lons)
	}
}

func TestIndex_AdvanceIsBudgeted(t *testing.T) {
	now := time.Unix(0, 0)
	opts := DefaultOptions()
	opts.Clock = func() time.Time {
		now = now.Add(time.Millisecond)
		return now
	}
	idx := NewIndex(testPlanet(), opts)

	p := idx.Advance(5 * time.Millisecond)
	if p.Complete {
		t.Fatalf("should not finish in one budgeted call")
	}
	if p.CellsResolved != 5 {
		t.Fatalf("resolved %d cells, want 5", p.CellsResolved)
	}
	if !idx.CoordinateForCell(599).IsEmpty() {
		t.Fatalf("cells past the cursor must read Empty")
	}
	if len(idx.EquatorBand()) != 0 {
		t.Fatalf("equator band should be empty before the sweep reaches it")
	}

	calls := 1
	for !idx.IsComplete() {
		idx.Advance(5 * time.Millisecond)
		calls++
		if calls > 1000 {
			t.Fatalf("sweep did not finish")
		}
	}
	if calls != 120 {
		t.Fatalf("calls=%d want 120", calls)
	}
	if idx.Progress().Fraction() != 1 {
		t.Fatalf("fraction=%v", idx.Progress().Fraction())
	}
}

func TestIndex_ZeroBudgetStillProgresses(t *testing.T) {
	idx := NewIndex(testPlanet(), DefaultOptions())
	p := idx.Advance(0)
	if p.CellsResolved != 1 {
		t.Fatalf("zero budget resolved %d cells, want 1", p.CellsResolved)
	}
}

func TestIndex_RowOf(t *testing.T) {
	idx := fullIndex(t, 30)
	row, ok := idx.RowOf(25)
	if !ok || row.Row != 2 || row.Start != 20 || row.Width != 20 {
		t.Fatalf("RowOf(25)=%+v ok=%v", row, ok)
	}
	if len(idx.Rows()) != 20 {
		t.Fatalf("rows=%d", len(idx.Rows()))
	}
}

func TestIndex_LonStepDeg(t *testing.T) {
	idx := fullIndex(t, 30)
	for _, tc := range []struct {
		lat  int
		want float64
	}{{-85500, 36}, {-67500, 18}, {4500, 9}, {85500, 36}, {1234, 0}} {
		if got := idx.LonStepDeg(tc.lat); got != tc.want {
			t.Fatalf("LonStepDeg(%d)=%v want %v", tc.lat, got, tc.want)
		}
	}
}
