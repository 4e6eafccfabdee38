package reform

import (
	"reformkit/internal/sim/decorate"
	"reformkit/internal/sim/geo"
)

// Terrain is the host terrain store.
type Terrain interface {
	IsCellReformed(cell int) bool
	SetCellReformKind(cell int, kind decorate.ReformKind) error
	SetCellColor(cell int, color int) error
	IsPlanetFullyReformed() bool
	// FlattenAt levels the ground around p and returns the soil moved
	// (positive when soil was produced).
	FlattenAt(p geo.Vec3, radius float64) (int, error)
}

// Vein is an ore vein the host can bury or raise.
type Vein struct {
	ID     int
	Pos    geo.Vec3
	Buried bool
}

// Veins is implemented by terrain stores that expose veins.
type Veins interface {
	EachVein(fn func(Vein) bool)
	SetVeinBuried(id int, buried bool) error
}
