package reform

import (
	"fmt"

	"reformkit/internal/sim/decorate"
	"reformkit/internal/sim/resources"
	"reformkit/internal/sim/tasks"
)

// Executor applies reform items to the host. Resources are taken from the
// inventory as each item runs, under the same policies used for planning.
type Executor struct {
	Terrain       Terrain
	Veins         Veins
	Inventory     resources.Inventory
	Policies      map[resources.Kind]resources.Policy
	FlattenRadius float64
}

// Apply is a scheduler handler.
func (e *Executor) Apply(it tasks.ReformItem) error {
	switch it.Kind {
	case tasks.KindReform, tasks.KindPaint:
		return e.applyCell(it)
	case tasks.KindBuryVein, tasks.KindRaiseVein:
		return e.applyVein(it)
	default:
		return fmt.Errorf("unknown reform item kind %q", it.Kind)
	}
}

func (e *Executor) applyCell(it tasks.ReformItem) error {
	p := e.Policies[resources.Foundation]
	taken, err := resources.Charge(e.Inventory, p, resources.Foundation, it.Cost)
	if err != nil {
		return err
	}
	if it.Cost > 0 {
		soil, err := e.Terrain.FlattenAt(it.Position, e.FlattenRadius)
		if err != nil {
			resources.Refund(e.Inventory, resources.Foundation, taken)
			return fmt.Errorf("flatten cell %d: %w", it.CellID, err)
		}
		if soil > 0 && e.Inventory != nil {
			e.Inventory.AddResource(resources.SoilPile, soil)
		}
	}
	d := it.Decoration
	if !d.Touches() {
		return nil
	}
	if err := e.Terrain.SetCellReformKind(it.CellID, d.Kind); err != nil {
		return fmt.Errorf("set reform kind on cell %d: %w", it.CellID, err)
	}
	color := d.ColorIndex
	if d.Kind == decorate.KindClear {
		color = 0
	}
	if err := e.Terrain.SetCellColor(it.CellID, color); err != nil {
		return fmt.Errorf("set color on cell %d: %w", it.CellID, err)
	}
	return nil
}

func (e *Executor) applyVein(it tasks.ReformItem) error {
	if e.Veins == nil {
		return fmt.Errorf("vein %d: host exposes no veins", it.VeinID)
	}
	p := e.Policies[resources.SoilPile]
	taken, err := resources.Charge(e.Inventory, p, resources.SoilPile, it.Cost)
	if err != nil {
		return err
	}
	if err := e.Veins.SetVeinBuried(it.VeinID, it.Kind == tasks.KindBuryVein); err != nil {
		resources.Refund(e.Inventory, resources.SoilPile, taken)
		return fmt.Errorf("vein %d: %w", it.VeinID, err)
	}
	return nil
}
