package hostsim

import (
	"errors"
	"sort"

	"reformkit/internal/sim/destruct"
	"reformkit/internal/sim/tasks"
)

var (
	ErrUnknownFactory = errors.New("unknown factory")
	ErrUnknownEntity  = errors.New("unknown entity")
)

type factory struct {
	entities map[int]destruct.Entity
	ghosts   map[int]destruct.Ghost
	nextID   int
}

// Factories is an in-memory entity store keyed by factory. It also tracks
// which factory is active, the way the host's player context does.
type Factories struct {
	byRef  map[tasks.FactoryRef]*factory
	active tasks.FactoryRef
}

func NewFactories() *Factories {
	return &Factories{byRef: map[tasks.FactoryRef]*factory{}}
}

// Open creates f if needed and makes it the active factory.
func (s *Factories) Open(f tasks.FactoryRef) {
	if _, ok := s.byRef[f]; !ok {
		s.byRef[f] = &factory{entities: map[int]destruct.Entity{}, ghosts: map[int]destruct.Ghost{}, nextID: 1}
	}
	s.active = f
}

// Leave clears the active factory.
func (s *Factories) Leave() { s.active = tasks.FactoryRef{} }

func (s *Factories) Active() tasks.FactoryRef { return s.active }

// AddEntity stores e, assigning the next free id when e.ID is zero.
func (s *Factories) AddEntity(f tasks.FactoryRef, e destruct.Entity) (int, error) {
	fc, ok := s.byRef[f]
	if !ok {
		return 0, ErrUnknownFactory
	}
	if e.ID == 0 {
		e.ID = fc.take()
	} else if e.ID >= fc.nextID {
		fc.nextID = e.ID + 1
	}
	fc.entities[e.ID] = e
	return e.ID, nil
}

func (s *Factories) AddGhost(f tasks.FactoryRef, g destruct.Ghost) (int, error) {
	fc, ok := s.byRef[f]
	if !ok {
		return 0, ErrUnknownFactory
	}
	if g.ID == 0 {
		g.ID = fc.take()
	} else if g.ID >= fc.nextID {
		fc.nextID = g.ID + 1
	}
	fc.ghosts[g.ID] = g
	return g.ID, nil
}

func (fc *factory) take() int {
	id := fc.nextID
	fc.nextID++
	return id
}

// Counts returns the number of built entities and ghosts in f.
func (s *Factories) Counts(f tasks.FactoryRef) (entities, ghosts int) {
	fc, ok := s.byRef[f]
	if !ok {
		return 0, 0
	}
	return len(fc.entities), len(fc.ghosts)
}

func (s *Factories) HasFactory(f tasks.FactoryRef) bool {
	if f.IsZero() {
		return false
	}
	_, ok := s.byRef[f]
	return ok
}

// EachEntity visits entities in id order.
func (s *Factories) EachEntity(f tasks.FactoryRef, fn func(destruct.Entity) bool) {
	fc, ok := s.byRef[f]
	if !ok {
		return
	}
	for _, id := range sortedKeys(fc.entities) {
		if !fn(fc.entities[id]) {
			return
		}
	}
}

func (s *Factories) EachGhost(f tasks.FactoryRef, fn func(destruct.Ghost) bool) {
	fc, ok := s.byRef[f]
	if !ok {
		return
	}
	for _, id := range sortedKeys(fc.ghosts) {
		if !fn(fc.ghosts[id]) {
			return
		}
	}
}

func (s *Factories) RemoveEntity(f tasks.FactoryRef, id int) error {
	fc, ok := s.byRef[f]
	if !ok {
		return ErrUnknownFactory
	}
	if _, ok := fc.entities[id]; !ok {
		return ErrUnknownEntity
	}
	delete(fc.entities, id)
	return nil
}

func (s *Factories) RemoveGhost(f tasks.FactoryRef, id int) error {
	fc, ok := s.byRef[f]
	if !ok {
		return ErrUnknownFactory
	}
	if _, ok := fc.ghosts[id]; !ok {
		return ErrUnknownEntity
	}
	delete(fc.ghosts, id)
	return nil
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
