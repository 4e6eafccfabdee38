package decorate

import "reformkit/internal/sim/geo"

// Rule proposes a decoration for a coordinate or abstains by returning
// None (or the zero value).
type Rule interface {
	Name() string
	Decide(c *geo.Coordinate) DecorationConfig
}

// Orientation tells the planner which way a guide line runs, for gap
// interpolation.
type Orientation int

const (
	Area Orientation = iota
	EastWest
	NorthSouth
)

// Oriented is implemented by rules that draw guide lines.
type Oriented interface {
	Orientation() Orientation
}

// Resetter is implemented by rules that carry state between queries.
type Resetter interface {
	Reset()
}

// Skipper is implemented by stateful rules that need to see coordinates
// decided by an earlier rule in the chain.
type Skipper interface {
	Skip(c *geo.Coordinate)
}

// Chain resolves a coordinate against rules in registration order. The
// first rule that does not abstain decides.
type Chain struct {
	rules []Rule
}

func NewChain(rules ...Rule) *Chain {
	c := &Chain{}
	for _, r := range rules {
		c.Register(r)
	}
	return c
}

func (c *Chain) Register(r Rule) {
	if r != nil {
		c.rules = append(c.rules, r)
	}
}

func (c *Chain) Rules() []Rule { return c.rules }

func (c *Chain) Len() int { return len(c.rules) }

// Resolve returns the first non-None decision, or None.
func (c *Chain) Resolve(coord *geo.Coordinate) DecorationConfig {
	d, _ := c.ResolveRule(coord)
	return d
}

// ResolveRule is Resolve that also returns the deciding rule (nil when no
// rule matched). Empty coordinates always resolve to None.
func (c *Chain) ResolveRule(coord *geo.Coordinate) (DecorationConfig, Rule) {
	d, i := c.ResolveIndex(coord)
	if i < 0 {
		return d, nil
	}
	return d, c.rules[i]
}

// ResolveIndex is Resolve returning the position of the deciding rule, or
// -1.
func (c *Chain) ResolveIndex(coord *geo.Coordinate) (DecorationConfig, int) {
	if coord.IsEmpty() {
		return None, -1
	}
	for i, r := range c.rules {
		if d := r.Decide(coord); d.Touches() {
			for _, later := range c.rules[i+1:] {
				if s, ok := later.(Skipper); ok {
					s.Skip(coord)
				}
			}
			return d, i
		}
	}
	return None, -1
}

// Reset clears per-sweep state held by stateful rules.
func (c *Chain) Reset() {
	for _, r := range c.rules {
		if rs, ok := r.(Resetter); ok {
			rs.Reset()
		}
	}
}
