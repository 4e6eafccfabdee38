package main

import (
	"math/rand"

	"reformkit/internal/sim/destruct"
	"reformkit/internal/sim/geo"
	"reformkit/internal/sim/hostsim"
	"reformkit/internal/sim/reform"
	"reformkit/internal/sim/resources"
	"reformkit/internal/sim/surface"
	"reformkit/internal/sim/tasks"
)

// hostWorldConfig describes the simulated host the server drives: one
// banded planet with a single open factory.
type hostWorldConfig struct {
	PlanetID     int
	Radius       float64
	Rows         int
	EquatorWidth int
	Bands        int
	RawPerCell   int
	Seed         int64

	Entities       int
	Ghosts         int
	Veins          int
	Foundation     int
	Soil           int
	SoilPerFlatten int
}

type hostWorld struct {
	planet    *surface.BandedPlanet
	terrain   *hostsim.Terrain
	factories *hostsim.Factories
	inventory hostsim.Inventory
	factory   tasks.FactoryRef
}

func buildHostWorld(cfg hostWorldConfig) *hostWorld {
	planet := surface.NewBandedPlanet(cfg.PlanetID, cfg.Radius, cfg.Rows, cfg.EquatorWidth, cfg.Bands, cfg.RawPerCell)
	terrain := hostsim.NewTerrain(planet)
	terrain.SoilPerFlatten = cfg.SoilPerFlatten

	hw := &hostWorld{
		planet:    planet,
		terrain:   terrain,
		factories: hostsim.NewFactories(),
		inventory: hostsim.Inventory{},
		factory:   tasks.FactoryRef{PlanetID: cfg.PlanetID, Index: 1, Epoch: 1},
	}
	hw.inventory.AddResource(resources.Foundation, cfg.Foundation)
	hw.inventory.AddResource(resources.SoilPile, cfg.Soil)
	hw.factories.Open(hw.factory)

	rng := rand.New(rand.NewSource(cfg.Seed))
	point := func() geo.Vec3 {
		lat := rng.Float64()*160 - 80
		lon := rng.Float64()*360 - 180
		return geo.PointAt(lat, lon, cfg.Radius)
	}
	for i := 0; i < cfg.Entities; i++ {
		e := destruct.Entity{Pos: point()}
		switch rng.Intn(5) {
		case 0:
			e.HasInserter = true
		case 1:
			e.HasBelt = true
		case 2:
			e.HasAssembler = true
		case 3:
			e.HasStation = true
		}
		_, _ = hw.factories.AddEntity(hw.factory, e)
	}
	for i := 0; i < cfg.Ghosts; i++ {
		_, _ = hw.factories.AddGhost(hw.factory, destruct.Ghost{Pos: point()})
	}
	for i := 0; i < cfg.Veins; i++ {
		terrain.AddVein(reform.Vein{Pos: point(), Buried: rng.Intn(2) == 0})
	}
	return hw
}
