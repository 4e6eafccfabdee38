package geo

import (
	"math"
	"testing"
)

func TestIntern_SameRoundedPairIsSameIdentity(t *testing.T) {
	in := NewInterner(1)
	a := in.Intern(1.2, 3.4)
	b := in.Intern(1.24, 3.43)
	if a != b {
		t.Fatalf("expected identical pointers, got %v and %v", a, b)
	}
	if a.Lat != 12 || a.Lon != 34 || a.Precision != 1 {
		t.Fatalf("unexpected units: %+v", *a)
	}
	if c := in.Intern(1.3, 3.4); c == a {
		t.Fatalf("distinct pairs must not share identity")
	}
	if in.Len() != 2 {
		t.Fatalf("interner len=%d want 2", in.Len())
	}
}

func TestInterner_PrecisionIsClamped(t *testing.T) {
	for _, tc := range []struct{ in, want int }{{3, 3}, {-2, 0}, {MaxPrecision + 5, MaxPrecision}} {
		in := NewInterner(tc.in)
		if got := in.Precision(); got != tc.want {
			t.Fatalf("NewInterner(%d).Precision()=%d want %d", tc.in, got, tc.want)
		}
		if c := in.Intern(1, 2); c.Precision != tc.want {
			t.Fatalf("coordinate precision=%d want %d", c.Precision, tc.want)
		}
	}
}

func TestRound_TowardZero(t *testing.T) {
	cases := []struct {
		deg  float64
		p    int
		want int
	}{
		{1.29, 1, 12},
		{-1.29, 1, -12},
		{4.35, 2, 435},
		{-0.05, 1, 0},
		{89.9999, 3, 89999},
	}
	for _, c := range cases {
		if got := Round(c.deg, c.p); got != c.want {
			t.Fatalf("Round(%v,%d)=%d want %d", c.deg, c.p, got, c.want)
		}
	}
}

func TestEmpty(t *testing.T) {
	var nilCoord *Coordinate
	if !nilCoord.IsEmpty() || !Empty.IsEmpty() {
		t.Fatalf("nil and Empty must be empty")
	}
	in := NewInterner(3)
	if !in.Intern(math.NaN(), 0).IsEmpty() {
		t.Fatalf("NaN input should intern to Empty")
	}
	if in.Intern(0, 0).IsEmpty() {
		t.Fatalf("origin is a real coordinate")
	}
}

func TestPointAtRoundTrip(t *testing.T) {
	for _, ll := range [][2]float64{{0, 0}, {45, 90}, {-30, -120}, {89, 179}} {
		lat, lon := LatLon(PointAt(ll[0], ll[1], 200))
		if math.Abs(lat-ll[0]) > 1e-9 || math.Abs(lon-ll[1]) > 1e-9 {
			t.Fatalf("round trip %v -> (%v,%v)", ll, lat, lon)
		}
	}
}

func TestNormalizeLon(t *testing.T) {
	if got := NormalizeLon(190); math.Abs(got+170) > 1e-9 {
		t.Fatalf("NormalizeLon(190)=%v", got)
	}
	if got := NormalizeLon(-180); math.Abs(got+180) > 1e-9 {
		t.Fatalf("NormalizeLon(-180)=%v", got)
	}
}
