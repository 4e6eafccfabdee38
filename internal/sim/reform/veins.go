package reform

import (
	"sort"

	"reformkit/internal/sim/geo"
	"reformkit/internal/sim/resources"
	"reformkit/internal/sim/tasks"
)

type VeinOptions struct {
	Factory tasks.FactoryRef
	Origin  geo.Vec3
	// Bury selects burying; otherwise buried veins are raised.
	Bury        bool
	SoilPerVein int
}

// PlanVeins queues every vein not yet in the requested state, charging
// soil piles through gate under the same policies as foundations.
func PlanVeins(veins Veins, gate *resources.Gate, opts VeinOptions) Plan {
	var plan Plan
	if veins == nil {
		return plan
	}
	kind := tasks.KindRaiseVein
	if opts.Bury {
		kind = tasks.KindBuryVein
	}
	var todo []Vein
	veins.EachVein(func(v Vein) bool {
		if v.Buried != opts.Bury {
			todo = append(todo, v)
		}
		return true
	})
	sort.Slice(todo, func(i, j int) bool { return todo[i].ID < todo[j].ID })

	type queued struct {
		item tasks.ReformItem
		d2   float64
	}
	var items []queued
	for _, v := range todo {
		if err := gate.Check(resources.SoilPile, opts.SoilPerVein); err != nil {
			plan.Halted = err
			break
		}
		items = append(items, queued{
			item: tasks.ReformItem{
				Kind:     kind,
				CellID:   -1,
				Position: v.Pos,
				Factory:  opts.Factory,
				VeinID:   v.ID,
				Cost:     opts.SoilPerVein,
			},
			d2: geo.Dist2(v.Pos, opts.Origin),
		})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].d2 < items[j].d2 })
	for _, it := range items {
		plan.Queue.Push(tasks.PhaseVeins, it.item)
	}
	plan.Cells = len(items)
	return plan
}
