package resources

import (
	"errors"
	"fmt"
	"strings"
)

type Kind int

const (
	// Foundation marks a cell as artificially levelled.
	Foundation Kind = iota + 1
	// SoilPile raises or lowers natural terrain.
	SoilPile
)

func (k Kind) String() string {
	switch k {
	case Foundation:
		return "foundation"
	case SoilPile:
		return "soil_pile"
	default:
		return fmt.Sprintf("resource(%d)", int(k))
	}
}

// Policy controls what a shortage does.
type Policy int

const (
	// Honest halts when the resource runs out.
	Honest Policy = iota
	// HalfCheat takes what is there and carries on.
	HalfCheat
	// FullCheat never checks or deducts.
	FullCheat
)

func (p Policy) String() string {
	switch p {
	case Honest:
		return "honest"
	case HalfCheat:
		return "half_cheat"
	case FullCheat:
		return "full_cheat"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "honest":
		return Honest, nil
	case "half_cheat", "halfcheat", "half":
		return HalfCheat, nil
	case "full_cheat", "fullcheat", "full", "cheat":
		return FullCheat, nil
	}
	return Honest, fmt.Errorf("unknown consumption policy %q", s)
}

func (p *Policy) UnmarshalText(b []byte) error {
	v, err := ParsePolicy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func (p Policy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// ErrExhausted is matched by every *ExhaustedError.
var ErrExhausted = errors.New("resource exhausted")

type ExhaustedError struct {
	Kind Kind
	Need int
	Have int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s exhausted: need %d, have %d", e.Kind, e.Need, e.Have)
}

func (e *ExhaustedError) Unwrap() error { return ErrExhausted }

// Inventory is the host-side store resources are taken from.
type Inventory interface {
	// TakeResource removes up to n and returns what was actually taken.
	TakeResource(kind Kind, n int) int
	AddResource(kind Kind, n int)
	CurrentAmount(kind Kind) int
}

// Budget tracks one resource during a planning pass.
type Budget struct {
	Policy    Policy
	Required  int
	Available int
	Charged   int
}

// Shortfall is how much more was required than could be charged.
func (b Budget) Shortfall() int {
	if s := b.Required - b.Charged; s > 0 && b.Policy != FullCheat {
		return s
	}
	return 0
}

// Gate applies consumption policies to planning. It works on a snapshot of
// the inventory taken at construction; the inventory is only touched when
// work items execute (see Charge).
type Gate struct {
	budgets map[Kind]*Budget
}

func NewGate(inv Inventory, policies map[Kind]Policy) *Gate {
	g := &Gate{budgets: make(map[Kind]*Budget, 2)}
	for _, k := range []Kind{Foundation, SoilPile} {
		b := &Budget{Policy: policies[k]}
		if inv != nil {
			b.Available = inv.CurrentAmount(k)
		}
		g.budgets[k] = b
	}
	return g
}

func (g *Gate) budget(kind Kind) *Budget {
	b, ok := g.budgets[kind]
	if !ok {
		b = &Budget{}
		g.budgets[kind] = b
	}
	return b
}

// Budget returns a copy of the counters for kind.
func (g *Gate) Budget(kind Kind) Budget { return *g.budget(kind) }

func (g *Gate) Policy(kind Kind) Policy { return g.budget(kind).Policy }

// Consume charges amount against kind and reports whether planning may
// continue. Honest refuses without charging when short; HalfCheat charges
// what is left and continues; FullCheat charges nothing.
func (g *Gate) Consume(kind Kind, amount int) bool {
	if amount <= 0 {
		return true
	}
	b := g.budget(kind)
	switch b.Policy {
	case FullCheat:
		b.Required += amount
		return true
	case HalfCheat:
		b.Required += amount
		take := amount
		if take > b.Available {
			take = b.Available
		}
		b.Available -= take
		b.Charged += take
		return true
	default:
		if b.Available < amount {
			return false
		}
		b.Required += amount
		b.Available -= amount
		b.Charged += amount
		return true
	}
}

// Check is Consume returning an *ExhaustedError on refusal.
func (g *Gate) Check(kind Kind, amount int) error {
	if g.Consume(kind, amount) {
		return nil
	}
	return &ExhaustedError{Kind: kind, Need: amount, Have: g.budget(kind).Available}
}

// Charge takes amount from inv at execution time under policy p and returns
// what was taken. Honest returns an *ExhaustedError, taking nothing, when the
// inventory cannot cover the amount.
func Charge(inv Inventory, p Policy, kind Kind, amount int) (int, error) {
	if amount <= 0 || p == FullCheat || inv == nil {
		return 0, nil
	}
	if p == Honest {
		have := inv.CurrentAmount(kind)
		if have < amount {
			return 0, &ExhaustedError{Kind: kind, Need: amount, Have: have}
		}
	}
	got := inv.TakeResource(kind, amount)
	if p == Honest && got < amount {
		if got > 0 {
			inv.AddResource(kind, got)
		}
		return 0, &ExhaustedError{Kind: kind, Need: amount, Have: got}
	}
	return got, nil
}

// Refund returns a previous Charge to inv.
func Refund(inv Inventory, kind Kind, taken int) {
	if inv != nil && taken > 0 {
		inv.AddResource(kind, taken)
	}
}
