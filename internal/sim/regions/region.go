package regions

// RegionColorConfig paints a lat/lon rectangle. A bound pair with equal
// ends leaves that axis unbounded. Mirror also selects the band reflected
// across the equator. MinLon > MaxLon selects a range crossing the ±180°
// seam.
type RegionColorConfig struct {
	Name       string  `json:"name,omitempty"`
	MinLat     float64 `json:"min_lat"`
	MaxLat     float64 `json:"max_lat"`
	MinLon     float64 `json:"min_lon"`
	MaxLon     float64 `json:"max_lon"`
	Mirror     bool    `json:"mirror,omitempty"`
	ColorIndex int     `json:"color_index"`
}

func (r RegionColorConfig) LatBounded() bool { return r.MinLat != r.MaxLat }
func (r RegionColorConfig) LonBounded() bool { return r.MinLon != r.MaxLon }

// Normalize orders the latitude bounds.
func (r *RegionColorConfig) Normalize() {
	if r.MinLat > r.MaxLat {
		r.MinLat, r.MaxLat = r.MaxLat, r.MinLat
	}
}

// ContainsPosition reports whether (lat, lon) in degrees falls in the region.
func (r RegionColorConfig) ContainsPosition(lat, lon float64) bool {
	latOK := !r.LatBounded() || r.inLat(lat)
	lonOK := !r.LonBounded() || r.inLon(lon)
	return latOK && lonOK
}

func (r RegionColorConfig) inLat(lat float64) bool {
	lo, hi := r.MinLat, r.MaxLat
	if lo > hi {
		lo, hi = hi, lo
	}
	if lat >= lo && lat <= hi {
		return true
	}
	return r.Mirror && lat >= -hi && lat <= -lo
}

func (r RegionColorConfig) inLon(lon float64) bool {
	if r.MinLon <= r.MaxLon {
		return lon >= r.MinLon && lon <= r.MaxLon
	}
	return lon >= r.MinLon || lon <= r.MaxLon
}
