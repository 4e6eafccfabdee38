package destruct

import (
	"errors"
	"reflect"
	"testing"

	"reformkit/internal/sim/geo"
	"reformkit/internal/sim/scheduler"
	"reformkit/internal/sim/tasks"
)

var factory = tasks.FactoryRef{PlanetID: 101, Index: 3}

type stubStore struct {
	entities []Entity
	ghosts   []Ghost
	removed  []int
	fail     map[int]bool
}

func (s *stubStore) HasFactory(f tasks.FactoryRef) bool { return f == factory }

func (s *stubStore) EachEntity(_ tasks.FactoryRef, fn func(Entity) bool) {
	for _, e := range s.entities {
		if !fn(e) {
			return
		}
	}
}

func (s *stubStore) EachGhost(_ tasks.FactoryRef, fn func(Ghost) bool) {
	for _, g := range s.ghosts {
		if !fn(g) {
			return
		}
	}
}

func (s *stubStore) RemoveEntity(_ tasks.FactoryRef, id int) error {
	if s.fail[id] {
		return errors.New("locked")
	}
	s.removed = append(s.removed, id)
	return nil
}

func (s *stubStore) RemoveGhost(_ tasks.FactoryRef, id int) error {
	s.removed = append(s.removed, -id)
	return nil
}

func at(x float64) geo.Vec3 { return geo.Vec3{X: x} }

func TestPlan_EndToEndPhaseOrder(t *testing.T) {
	store := &stubStore{
		entities: []Entity{
			{ID: 1, Pos: at(30), HasInserter: true},
			{ID: 2, Pos: at(10), HasInserter: true},
			{ID: 3, Pos: at(20), HasInserter: true},
			{ID: 4, Pos: at(5), HasBelt: true},
			{ID: 5, Pos: at(1), HasBelt: true},
		},
		ghosts: []Ghost{{ID: 7, Pos: at(0)}},
	}
	q, err := Plan(store, factory, geo.Vec3{}, Options{})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	want := []tasks.Demolition{
		{Phase: tasks.PhaseInserters, EntityID: 2},
		{Phase: tasks.PhaseInserters, EntityID: 3},
		{Phase: tasks.PhaseInserters, EntityID: 1},
		{Phase: tasks.PhaseBelts, EntityID: 5},
		{Phase: tasks.PhaseBelts, EntityID: 4},
		{Phase: tasks.PhaseOther, EntityID: -7},
	}
	if got := q.Items(); !reflect.DeepEqual(got, want) {
		t.Fatalf("queue=%v want %v", got, want)
	}
}

func TestClassify_Precedence(t *testing.T) {
	// Every combination of the four role flags.
	for mask := 0; mask < 16; mask++ {
		e := Entity{
			HasInserter:  mask&1 != 0,
			HasBelt:      mask&2 != 0,
			HasAssembler: mask&4 != 0,
			HasStation:   mask&8 != 0,
		}
		var want int
		switch {
		case e.HasInserter:
			want = tasks.PhaseInserters
		case e.HasBelt:
			want = tasks.PhaseBelts
		case e.HasAssembler:
			want = tasks.PhaseAssemblers
		case e.HasStation:
			want = tasks.PhaseStations
		default:
			want = tasks.PhaseOther
		}
		if got := Classify(e); got != want {
			t.Fatalf("mask %04b: phase=%d want %d", mask, got, want)
		}
	}
}

func TestPlan_EachEntityExactlyOnce(t *testing.T) {
	store := &stubStore{}
	for id := 1; id <= 64; id++ {
		store.entities = append(store.entities, Entity{
			ID:           id,
			Pos:          at(float64(64 - id)),
			HasInserter:  id%2 == 0,
			HasBelt:      id%3 == 0,
			HasAssembler: id%5 == 0,
			HasStation:   id%7 == 0,
		})
	}
	// Duplicate report from the host and a null id.
	store.entities = append(store.entities, Entity{ID: 6, HasBelt: true}, Entity{ID: 0, HasBelt: true})
	store.ghosts = []Ghost{{ID: 6}, {ID: 9}}

	q, err := Plan(store, factory, geo.Vec3{}, Options{})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	items := q.Items()
	if len(items) != 66 {
		t.Fatalf("items=%d want 66", len(items))
	}
	seen := map[int]bool{}
	lastPhase := -1
	for _, it := range items {
		if seen[it.EntityID] {
			t.Fatalf("entity %d scheduled twice", it.EntityID)
		}
		seen[it.EntityID] = true
		if it.Phase < lastPhase {
			t.Fatalf("phase order violated at %+v", it)
		}
		lastPhase = it.Phase
		if it.EntityID > 0 && it.Phase != Classify(store.entities[it.EntityID-1]) {
			t.Fatalf("entity %d in wrong phase %d", it.EntityID, it.Phase)
		}
	}
	if !seen[-6] || !seen[-9] {
		t.Fatalf("ghosts missing")
	}
}

func TestPlan_SkipStations(t *testing.T) {
	store := &stubStore{entities: []Entity{
		{ID: 1, HasStation: true},
		{ID: 2, HasStation: true, HasInserter: true},
		{ID: 3},
	}}
	q, _ := Plan(store, factory, geo.Vec3{}, Options{SkipStations: true})
	want := []tasks.Demolition{{Phase: tasks.PhaseOther, EntityID: 3}}
	if got := q.Items(); !reflect.DeepEqual(got, want) {
		t.Fatalf("queue=%v want %v", got, want)
	}
}

func TestPlan_NoActiveFactory(t *testing.T) {
	store := &stubStore{entities: []Entity{{ID: 1}}}
	for _, f := range []tasks.FactoryRef{{}, {PlanetID: 999}} {
		q, err := Plan(store, f, geo.Vec3{}, Options{})
		if !errors.Is(err, ErrNoActiveFactory) || q.Len() != 0 {
			t.Fatalf("factory %v: err=%v len=%d", f, err, q.Len())
		}
	}
}

func TestHandler_RunsUnderScheduler(t *testing.T) {
	store := &stubStore{
		entities: []Entity{{ID: 1, HasBelt: true}, {ID: 2, HasInserter: true}, {ID: 3}},
		ghosts:   []Ghost{{ID: 4}},
		fail:     map[int]bool{1: true},
	}
	q, _ := Plan(store, factory, geo.Vec3{}, Options{})
	s := scheduler.New[tasks.Demolition]("demolish", nil, nil)
	_ = s.Submit(factory, q)
	for i := 0; i < 10 && s.Busy(); i++ {
		s.Tick(1, Handler(store, factory))
	}
	if s.State() != scheduler.Complete || s.Failed() != 1 {
		t.Fatalf("state=%v failed=%d", s.State(), s.Failed())
	}
	if want := []int{2, -4, 3}; !reflect.DeepEqual(store.removed, want) {
		t.Fatalf("removed=%v want %v", store.removed, want)
	}
}
