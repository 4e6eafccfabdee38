package tasks

import (
	"fmt"

	"reformkit/internal/sim/decorate"
	"reformkit/internal/sim/geo"
)

type Kind string

const (
	KindDemolish  Kind = "DEMOLISH"
	KindReform    Kind = "REFORM"
	KindPaint     Kind = "PAINT"
	KindBuryVein  Kind = "BURY_VEIN"
	KindRaiseVein Kind = "RAISE_VEIN"
)

// FactoryRef identifies the factory a queue was planned against. The zero
// value means no active factory.
type FactoryRef struct {
	PlanetID int
	Index    int
	// Epoch changes when the host reloads the factory in place.
	Epoch uint64
}

func (f FactoryRef) IsZero() bool { return f == FactoryRef{} }

func (f FactoryRef) String() string {
	return fmt.Sprintf("planet=%d factory=%d epoch=%d", f.PlanetID, f.Index, f.Epoch)
}

// Demolition phases, drained in ascending order.
const (
	PhaseInserters = iota
	PhaseBelts
	PhaseAssemblers
	PhaseStations
	PhaseOther
)

var phaseNames = [...]string{"INSERTERS", "BELTS", "ASSEMBLERS", "STATIONS", "OTHER"}

func PhaseName(p int) string {
	if p >= 0 && p < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("PHASE_%d", p)
}

// Demolition removes one entity. Negative ids are ghost placements.
type Demolition struct {
	Phase    int
	EntityID int
}

func (d Demolition) IsGhost() bool { return d.EntityID < 0 }

// GhostID is the host id of a ghost demolition.
func (d Demolition) GhostID() int { return -d.EntityID }

// Reform phases: levelling goes before painting so paint lands on the
// final surface.
const (
	PhaseLevel = iota
	PhasePaint
	PhaseVeins
)

// ReformItem is one terrain operation.
type ReformItem struct {
	Kind       Kind
	CellID     int
	Position   geo.Vec3
	Factory    FactoryRef
	Decoration decorate.DecorationConfig
	VeinID     int
	// Cost is what planning charged for the item, taken from the
	// inventory when the item runs.
	Cost int
}
