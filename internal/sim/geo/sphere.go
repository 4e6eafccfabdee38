package geo

import "math"

// Vec3 is a point in planet space. Origin at the planet centre, Y toward
// the north pole, X toward 0° longitude on the equator.
type Vec3 struct{ X, Y, Z float64 }

func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

func (v Vec3) Len() float64 { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }

// Dist2 is the squared Euclidean distance between a and b.
func Dist2(a, b Vec3) float64 {
	d := a.Sub(b)
	return d.X*d.X + d.Y*d.Y + d.Z*d.Z
}

func DegToRad(d float64) float64 { return d * math.Pi / 180 }

func RadToDeg(r float64) float64 { return r * 180 / math.Pi }

// PointAt converts latitude/longitude in degrees to a point on a sphere.
func PointAt(latDeg, lonDeg, radius float64) Vec3 {
	lat := DegToRad(latDeg)
	lon := DegToRad(lonDeg)
	cosLat := math.Cos(lat)
	return Vec3{
		X: radius * cosLat * math.Cos(lon),
		Y: radius * math.Sin(lat),
		Z: radius * cosLat * math.Sin(lon),
	}
}

// LatLon converts a point back to latitude/longitude in degrees.
// The origin maps to (0, 0).
func LatLon(p Vec3) (latDeg, lonDeg float64) {
	r := p.Len()
	if r < 1e-10 {
		return 0, 0
	}
	return RadToDeg(math.Asin(clamp(p.Y/r, -1, 1))), RadToDeg(math.Atan2(p.Z, p.X))
}

// NormalizeLon wraps a longitude into [-180, 180).
func NormalizeLon(lonDeg float64) float64 {
	l := math.Mod(lonDeg+180, 360)
	if l < 0 {
		l += 360
	}
	return l - 180
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
