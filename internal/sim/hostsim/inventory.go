package hostsim

import "reformkit/internal/sim/resources"

// Inventory is a counter per resource kind. Counts never go negative.
type Inventory map[resources.Kind]int

func (inv Inventory) TakeResource(kind resources.Kind, n int) int {
	if n <= 0 {
		return 0
	}
	have := inv[kind]
	if n > have {
		n = have
	}
	if have-n == 0 {
		delete(inv, kind)
	} else {
		inv[kind] = have - n
	}
	return n
}

func (inv Inventory) AddResource(kind resources.Kind, n int) {
	if n > 0 {
		inv[kind] += n
	}
}

func (inv Inventory) CurrentAmount(kind resources.Kind) int { return inv[kind] }
