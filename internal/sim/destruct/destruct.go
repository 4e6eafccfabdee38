package destruct

import (
	"errors"
	"fmt"
	"sort"

	"reformkit/internal/sim/geo"
	"reformkit/internal/sim/scheduler"
	"reformkit/internal/sim/tasks"
)

// ErrNoActiveFactory is returned when planning has no factory to work on.
var ErrNoActiveFactory = errors.New("no active factory")

// Entity is a built entity as seen by the planner. Role flags come from
// component presence, so one entity may carry several.
type Entity struct {
	ID           int
	Pos          geo.Vec3
	HasInserter  bool
	HasBelt      bool
	HasAssembler bool
	HasStation   bool
}

// Ghost is a planned placement that has not been built yet.
type Ghost struct {
	ID  int
	Pos geo.Vec3
}

// Store is the host entity store. Ids are positive; 0 is never a live id.
type Store interface {
	HasFactory(f tasks.FactoryRef) bool
	EachEntity(f tasks.FactoryRef, fn func(Entity) bool)
	EachGhost(f tasks.FactoryRef, fn func(Ghost) bool)
	RemoveEntity(f tasks.FactoryRef, id int) error
	RemoveGhost(f tasks.FactoryRef, id int) error
}

type Options struct {
	// SkipStations leaves station entities standing.
	SkipStations bool
}

// Classify returns the demolition phase for e: the earliest of inserter,
// belt, assembler, station that e has a component for, else other.
func Classify(e Entity) int {
	switch {
	case e.HasInserter:
		return tasks.PhaseInserters
	case e.HasBelt:
		return tasks.PhaseBelts
	case e.HasAssembler:
		return tasks.PhaseAssemblers
	case e.HasStation:
		return tasks.PhaseStations
	default:
		return tasks.PhaseOther
	}
}

type planned struct {
	item tasks.Demolition
	d2   float64
}

// Plan builds the demolition queue for factory f. Within a phase, items
// closer to origin come first.
func Plan(store Store, f tasks.FactoryRef, origin geo.Vec3, opts Options) (tasks.Queue[tasks.Demolition], error) {
	var q tasks.Queue[tasks.Demolition]
	if store == nil || f.IsZero() || !store.HasFactory(f) {
		return q, ErrNoActiveFactory
	}

	seen := make(map[int]struct{})
	var items []planned
	add := func(id int, phase int, pos geo.Vec3) {
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		items = append(items, planned{
			item: tasks.Demolition{Phase: phase, EntityID: id},
			d2:   geo.Dist2(pos, origin),
		})
	}

	store.EachEntity(f, func(e Entity) bool {
		if e.ID <= 0 {
			return true
		}
		phase := Classify(e)
		if opts.SkipStations && e.HasStation {
			return true
		}
		add(e.ID, phase, e.Pos)
		return true
	})
	store.EachGhost(f, func(g Ghost) bool {
		if g.ID <= 0 {
			return true
		}
		add(-g.ID, tasks.PhaseOther, g.Pos)
		return true
	})

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.item.Phase != b.item.Phase {
			return a.item.Phase < b.item.Phase
		}
		if a.d2 != b.d2 {
			return a.d2 < b.d2
		}
		return a.item.EntityID < b.item.EntityID
	})
	for _, it := range items {
		q.Push(it.item.Phase, it.item)
	}
	return q, nil
}

// Handler removes each entity or ghost from the store.
func Handler(store Store, f tasks.FactoryRef) scheduler.Handler[tasks.Demolition] {
	return func(d tasks.Demolition) error {
		if d.IsGhost() {
			if err := store.RemoveGhost(f, d.GhostID()); err != nil {
				return fmt.Errorf("remove ghost %d: %w", d.GhostID(), err)
			}
			return nil
		}
		if err := store.RemoveEntity(f, d.EntityID); err != nil {
			return fmt.Errorf("remove entity %d (%s): %w", d.EntityID, tasks.PhaseName(d.Phase), err)
		}
		return nil
	}
}
