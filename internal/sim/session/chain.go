package session

import (
	"reformkit/internal/sim/decorate"
	"reformkit/internal/sim/regions"
	"reformkit/internal/sim/tuning"
)

// BuildChain registers the enabled decoration rules in precedence order:
// poles, equator, major meridians, minor meridians, tropics, user regions.
func BuildChain(d tuning.Decorations, g decorate.Guides, store *regions.Store) *decorate.Chain {
	c := decorate.NewChain()
	if d.Pole.Enabled {
		c.Register(&decorate.PoleRule{ThresholdDeg: d.PoleThresholdDeg, Config: d.Pole.Config()})
	}
	if d.Equator.Enabled {
		c.Register(&decorate.EquatorRule{Guides: g, Config: d.Equator.Config()})
	}
	if d.MajorMeridian.Enabled {
		c.Register(&decorate.MajorMeridianRule{Guides: g, Config: d.MajorMeridian.Config()})
	}
	if d.MinorMeridian.Enabled {
		c.Register(&decorate.MinorMeridianRule{Guides: g, IntervalDeg: d.MinorMeridianIntervalDeg, Config: d.MinorMeridian.Config()})
	}
	if d.Tropic.Enabled {
		c.Register(&decorate.TropicRule{Guides: g, Config: d.Tropic.Config()})
	}
	if d.Regions && store != nil {
		c.Register(&decorate.RegionRule{Store: store})
	}
	return c
}
