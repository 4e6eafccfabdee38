package reform

import (
	"sort"

	"reformkit/internal/sim/decorate"
	"reformkit/internal/sim/geo"
	"reformkit/internal/sim/resources"
	"reformkit/internal/sim/surface"
	"reformkit/internal/sim/tasks"
)

type Options struct {
	Factory tasks.FactoryRef
	Origin  geo.Vec3
	// Latitude constraint in degrees. Equal bounds leave it unbounded.
	MinLat float64
	MaxLat float64
	// FoundationPerCell is charged for every cell not yet reformed.
	FoundationPerCell int
	// Base is applied to levelled cells no decoration rule claims.
	Base decorate.DecorationConfig
}

func (o Options) inLatitude(lat float64) bool {
	if o.MinLat == o.MaxLat {
		return true
	}
	lo, hi := o.MinLat, o.MaxLat
	if lo > hi {
		lo, hi = hi, lo
	}
	return lat >= lo && lat <= hi
}

// Plan is the outcome of a planning pass.
type Plan struct {
	Queue      tasks.Queue[tasks.ReformItem]
	Cells      int
	OutOfRange int
	Unmapped   int
	GapFilled  int
	// Halted is an *resources.ExhaustedError when an Honest budget ran
	// out; the queue then holds what was planned before the shortage.
	Halted error
}

type cellPlan struct {
	cell  int
	coord *geo.Coordinate
	cost  int
	deco  decorate.DecorationConfig
	// rule is the deciding rule's position in the chain, or -1.
	rule int
}

// PlanFullReform walks cells in ascending id order, charges foundation for
// cells that still need levelling and resolves decorations through chain
// (nil for none). The queue is ordered nearest to opts.Origin first.
func PlanFullReform(idx *surface.Index, terrain Terrain, chain *decorate.Chain, gate *resources.Gate, opts Options) Plan {
	var plan Plan
	if opts.Base.Kind == decorate.KindUnset {
		opts.Base = decorate.Paint(0)
	}
	if chain != nil {
		chain.Reset()
	}

	visited := make(map[int]*cellPlan)
	var order []*cellPlan
	for cell := 0; cell < idx.CellCount(); cell++ {
		coord := idx.CoordinateForCell(cell)
		if coord.IsEmpty() {
			plan.Unmapped++
			continue
		}
		if !opts.inLatitude(coord.LatDeg()) {
			plan.OutOfRange++
			continue
		}
		cost := 0
		if !terrain.IsCellReformed(cell) {
			cost = opts.FoundationPerCell
		}
		if err := gate.Check(resources.Foundation, cost); err != nil {
			plan.Halted = err
			break
		}
		cp := &cellPlan{cell: cell, coord: coord, cost: cost, deco: decorate.None, rule: -1}
		if chain != nil {
			cp.deco, cp.rule = chain.ResolveIndex(coord)
		}
		visited[cell] = cp
		order = append(order, cp)
	}

	if chain != nil {
		plan.GapFilled = fillGuideGaps(idx, chain, order, visited)
	}

	radius := idx.Planet().Radius()
	type queued struct {
		item tasks.ReformItem
		d2   float64
	}
	var items []queued
	for _, cp := range order {
		deco := cp.deco
		if !deco.Touches() {
			if cp.cost == 0 && terrain.IsCellReformed(cp.cell) {
				continue
			}
			deco = opts.Base
		}
		pos := geo.PointAt(cp.coord.LatDeg(), cp.coord.LonDeg(), radius)
		items = append(items, queued{
			item: tasks.ReformItem{
				Kind:       tasks.KindReform,
				CellID:     cp.cell,
				Position:   pos,
				Factory:    opts.Factory,
				Decoration: deco,
				Cost:       cp.cost,
			},
			d2: geo.Dist2(pos, opts.Origin),
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].d2 != items[j].d2 {
			return items[i].d2 < items[j].d2
		}
		return items[i].item.CellID < items[j].item.CellID
	})
	for _, it := range items {
		plan.Queue.Push(tasks.PhaseLevel, it.item)
	}
	plan.Cells = len(items)
	return plan
}

// fillGuideGaps closes short gaps in east-west guide lines row by row. Only
// cells the pass visited and left undecorated are filled. On a banded
// planet the stock equator and tropic guides already cover whole rows, so
// only custom east-west rules leave gaps here.
func fillGuideGaps(idx *surface.Index, chain *decorate.Chain, order []*cellPlan, visited map[int]*cellPlan) int {
	type lineKey struct {
		rule int
		row  int
	}
	rules := chain.Rules()
	var keys []lineKey
	cols := make(map[lineKey][]int)
	conf := make(map[lineKey]decorate.DecorationConfig)
	spans := make(map[lineKey]surface.RowSpan)
	for _, cp := range order {
		if cp.rule < 0 {
			continue
		}
		o, ok := rules[cp.rule].(decorate.Oriented)
		if !ok || o.Orientation() != decorate.EastWest {
			continue
		}
		span, ok := idx.RowOf(cp.cell)
		if !ok {
			continue
		}
		k := lineKey{rule: cp.rule, row: span.Row}
		if _, ok := cols[k]; !ok {
			keys = append(keys, k)
			conf[k] = cp.deco
			spans[k] = span
		}
		cols[k] = append(cols[k], cp.cell-span.Start)
	}

	filled := 0
	for _, k := range keys {
		span := spans[k]
		for _, col := range decorate.FillRowGaps(cols[k], span.Width) {
			cp := visited[span.Start+col]
			if cp == nil || cp.deco.Touches() {
				continue
			}
			cp.deco = conf[k]
			cp.rule = k.rule
			filled++
		}
	}
	return filled
}
