package session

import (
	"reformkit/internal/sim/scheduler"
	"reformkit/internal/sim/surface"
	"reformkit/internal/sim/tasks"
)

type RunStatus struct {
	Name      string
	State     scheduler.State
	Owner     tasks.FactoryRef
	Total     int
	Processed int
	Failed    int
	Pending   int
}

// Snapshot is an immutable view of session progress, safe to hand to other
// goroutines.
type Snapshot struct {
	Tick     uint64
	PlanetID int
	Planet   PlanetInfo
	Index    surface.Progress
	Runs     []RunStatus
	Waiting  bool
}

type PlanetInfo struct {
	ID       int
	Radius   float64
	Segments int
	Cells    int
}

func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{Tick: s.tick, Waiting: s.deferred != nil}
	if s.planet != nil {
		snap.PlanetID = s.planet.ID()
		snap.Planet = PlanetInfo{
			ID:       s.planet.ID(),
			Radius:   s.planet.Radius(),
			Segments: s.planet.Segments(),
			Cells:    s.planet.CellCount(),
		}
	}
	if s.index != nil {
		snap.Index = s.index.Progress()
	}
	snap.Runs = []RunStatus{
		runStatus(s.demolish, "DEMOLISH"),
		runStatus(s.terraform, s.terraformName()),
	}
	return snap
}

func (s *Session) terraformName() string {
	if s.terraRun == "" {
		return "REFORM"
	}
	return s.terraRun
}

func runStatus[T any](sc *scheduler.Scheduler[T], name string) RunStatus {
	return RunStatus{
		Name:      name,
		State:     sc.State(),
		Owner:     sc.Owner(),
		Total:     sc.Total(),
		Processed: sc.Processed(),
		Failed:    sc.Failed(),
		Pending:   sc.Pending(),
	}
}
