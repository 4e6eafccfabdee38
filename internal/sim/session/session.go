package session

import (
	"errors"
	"fmt"
	"log"
	"time"

	"reformkit/internal/protocol"
	"reformkit/internal/sim/decorate"
	"reformkit/internal/sim/destruct"
	"reformkit/internal/sim/geo"
	"reformkit/internal/sim/reform"
	"reformkit/internal/sim/regions"
	"reformkit/internal/sim/resources"
	"reformkit/internal/sim/scheduler"
	"reformkit/internal/sim/surface"
	"reformkit/internal/sim/tasks"
	"reformkit/internal/sim/tuning"
)

var (
	ErrNoPlanet = errors.New("no planet loaded")
	ErrBusy     = errors.New("another run is in progress")
	ErrNoVeins  = errors.New("terrain exposes no veins")
)

// Notifier is the host popup sink. It must not block.
type Notifier interface {
	PopupAndLog(msg string)
}

// EventLogger receives every session event.
type EventLogger interface {
	WriteEvent(ev protocol.Event) error
}

// Host bundles the collaborators that outlive a planet.
type Host struct {
	Entities  destruct.Store
	Inventory resources.Inventory
	Notifier  Notifier
	// ActiveFactory reports the factory the player is in right now. It is
	// checked before every drain.
	ActiveFactory func() tasks.FactoryRef
	// Clock bounds index building; nil means time.Now.
	Clock func() time.Time
}

type pendingReform struct {
	origin geo.Vec3
}

// Session owns everything tied to the current planet: its index, decorator
// chain and the two run schedulers. All mutation happens in Tick or in the
// request methods, on the host's tick goroutine.
type Session struct {
	cfg  tuning.Tuning
	host Host
	log  *log.Logger

	events EventLogger
	outbox []protocol.Event

	planet  surface.Planet
	terrain reform.Terrain
	veins   reform.Veins
	index   *surface.Index
	chain   *decorate.Chain
	regions *regions.Store

	demolish   *scheduler.Scheduler[tasks.Demolition]
	demolishFn scheduler.Handler[tasks.Demolition]
	terraform  *scheduler.Scheduler[tasks.ReformItem]
	terraRun   string
	exec       *reform.Executor

	tick      uint64
	deferred  *pendingReform
	cancelled bool
}

func New(cfg tuning.Tuning, host Host, logger *log.Logger) *Session {
	cfg.Normalize()
	if host.Clock == nil {
		host.Clock = time.Now
	}
	if host.ActiveFactory == nil {
		host.ActiveFactory = func() tasks.FactoryRef { return tasks.FactoryRef{} }
	}
	s := &Session{
		cfg:     cfg,
		host:    host,
		log:     logger,
		regions: regions.NewStore(),
	}
	if cfg.Regions != "" {
		store, errs := regions.Decode(cfg.Regions, logger)
		s.regions = store
		if len(errs) > 0 {
			s.notice(protocol.RunReform, protocol.ErrBadRequest, fmt.Sprintf("skipped %d bad region record(s)", len(errs)))
		}
	}
	s.demolish = scheduler.New[tasks.Demolition]("demolish", host.ActiveFactory, logger)
	s.demolish.OnFinish(func(r scheduler.Result[tasks.Demolition]) {
		s.finished(protocol.RunDemolish, r.State, r.Owner, r.Total, r.Processed, r.Failed, len(r.Dropped), r.Err)
	})
	s.terraform = scheduler.New[tasks.ReformItem]("reform", host.ActiveFactory, logger)
	s.terraform.OnFinish(func(r scheduler.Result[tasks.ReformItem]) {
		s.finished(s.terraRun, r.State, r.Owner, r.Total, r.Processed, r.Failed, len(r.Dropped), r.Err)
	})
	return s
}

func (s *Session) SetEventLogger(l EventLogger) { s.events = l }

func (s *Session) Tuning() tuning.Tuning   { return s.cfg }
func (s *Session) Index() *surface.Index   { return s.index }
func (s *Session) Chain() *decorate.Chain  { return s.chain }
func (s *Session) Regions() *regions.Store { return s.regions }
func (s *Session) CurrentTick() uint64     { return s.tick }

// OnPlanetChanged discards the previous planet's index and starts a new
// one. Runs planned against the old planet are left to the context check on
// the next tick, which ends them with E_CONTEXT_CHANGED.
func (s *Session) OnPlanetChanged(p surface.Planet, terrain reform.Terrain, veins reform.Veins) {
	s.planet = p
	s.terrain = terrain
	s.veins = veins
	s.deferred = nil
	s.index = nil
	s.chain = nil
	if p == nil {
		return
	}
	s.index = surface.NewIndex(p, surface.Options{
		Precision:           s.cfg.Index.Precision,
		MeridianIntervalDeg: s.cfg.Index.MeridianIntervalDeg,
		RawSamples:          s.cfg.Index.RawSamples,
		Clock:               s.host.Clock,
	})
	s.chain = BuildChain(s.cfg.Decorations, s.index, s.regions)
	s.exec = &reform.Executor{
		Terrain:       terrain,
		Veins:         veins,
		Inventory:     s.host.Inventory,
		Policies:      s.cfg.Policies(),
		FlattenRadius: s.cfg.Reform.FlattenRadius,
	}
	s.logf("planet %d: index reset (%d cells)", p.ID(), p.CellCount())
}

// SetRegions replaces the region list from its $-delimited text form.
// Malformed records are skipped.
func (s *Session) SetRegions(text string) int {
	store, errs := regions.Decode(text, s.log)
	*s.regions = *store
	if len(errs) > 0 {
		s.notice(protocol.RunReform, protocol.ErrBadRequest, fmt.Sprintf("skipped %d bad region record(s)", len(errs)))
	}
	return s.regions.Len()
}

// Busy reports whether a run is draining or a reform is waiting for the
// index.
func (s *Session) Busy() bool {
	return s.demolish.Busy() || s.terraform.Busy() || s.deferred != nil
}

// Tick advances index building and drains at most WorkItemsPerTick items.
func (s *Session) Tick() {
	s.tick++
	if s.index != nil && !s.index.IsComplete() {
		budget := time.Duration(s.cfg.Index.BudgetMs) * time.Millisecond
		if p := s.index.Advance(budget); p.Complete {
			s.emit(protocol.Event{Type: protocol.EventIndexReady, Run: protocol.RunIndex, Total: p.CellsResolved})
			if d := s.deferred; d != nil {
				s.deferred = nil
				_ = s.startReform(d.origin)
			}
		}
	}
	n := s.cfg.WorkItemsPerTick
	if s.demolish.Busy() {
		s.demolish.Tick(n, s.demolishFn)
	}
	if s.terraform.Busy() {
		s.terraform.Tick(n, s.exec.Apply)
	}
}

// Cancel drops every pending item of the active run.
func (s *Session) Cancel() {
	if s.deferred != nil {
		s.deferred = nil
		s.notice(protocol.RunReform, "", "Reform cancelled before the index was ready")
	}
	s.cancelled = true
	s.demolish.Cancel()
	s.terraform.Cancel()
	s.cancelled = false
}

// Demolish plans and starts removal of every entity and ghost in the active
// factory, nearest to origin first.
func (s *Session) Demolish(origin geo.Vec3) error {
	if s.Busy() {
		s.notice(protocol.RunDemolish, protocol.ErrBusy, "Demolish: another run is in progress")
		return ErrBusy
	}
	f := s.host.ActiveFactory()
	q, err := destruct.Plan(s.host.Entities, f, origin, destruct.Options{SkipStations: s.cfg.Reform.SkipStations})
	if err != nil {
		s.notice(protocol.RunDemolish, protocol.ErrNoFactory, "Demolish: no active factory")
		return err
	}
	if q.Len() == 0 {
		s.notice(protocol.RunDemolish, "", "Demolish: nothing to remove")
		return nil
	}
	s.demolishFn = destruct.Handler(s.host.Entities, f)
	if err := s.demolish.Submit(f, q); err != nil {
		return err
	}
	s.emit(protocol.Event{Type: protocol.EventRunStart, Run: protocol.RunDemolish, Factory: f.String(), Total: q.Len()})
	return nil
}

// Reform plans and starts a full-planet reform. When the index is still
// building the request waits and starts on the tick the index completes.
func (s *Session) Reform(origin geo.Vec3) error {
	if s.Busy() {
		s.notice(protocol.RunReform, protocol.ErrBusy, "Reform: another run is in progress")
		return ErrBusy
	}
	if s.index == nil {
		s.notice(protocol.RunReform, protocol.ErrNoPlanet, "Reform: no planet loaded")
		return ErrNoPlanet
	}
	if s.host.ActiveFactory().IsZero() {
		s.notice(protocol.RunReform, protocol.ErrNoFactory, "Reform: no active factory")
		return destruct.ErrNoActiveFactory
	}
	if !s.index.IsComplete() {
		s.deferred = &pendingReform{origin: origin}
		p := s.index.Progress()
		s.notice(protocol.RunReform, protocol.ErrIndexBuilding,
			fmt.Sprintf("Reform: surface index %.0f%% built, reform will start when it completes", p.Fraction()*100))
		return nil
	}
	return s.startReform(origin)
}

func (s *Session) startReform(origin geo.Vec3) error {
	f := s.host.ActiveFactory()
	if f.IsZero() {
		s.notice(protocol.RunReform, protocol.ErrNoFactory, "Reform: no active factory")
		return destruct.ErrNoActiveFactory
	}
	base := decorate.None
	if s.cfg.Decorations.Base.Enabled {
		base = s.cfg.Decorations.Base.Config()
	}
	gate := resources.NewGate(s.host.Inventory, s.cfg.Policies())
	plan := reform.PlanFullReform(s.index, s.terrain, s.chain, gate, reform.Options{
		Factory:           f,
		Origin:            origin,
		MinLat:            s.cfg.Reform.MinLat,
		MaxLat:            s.cfg.Reform.MaxLat,
		FoundationPerCell: s.cfg.Reform.FoundationPerCell,
		Base:              base,
	})
	if plan.Halted != nil {
		s.notice(protocol.RunReform, protocol.ErrNoResource,
			fmt.Sprintf("Reform: planned %d cells before running out: %v", plan.Cells, plan.Halted))
	}
	if b := gate.Budget(resources.Foundation); b.Shortfall() > 0 {
		s.logf("reform: foundation short by %d (policy %s)", b.Shortfall(), b.Policy)
	}
	return s.submitReform(protocol.RunReform, f, plan)
}

// Veins buries (bury=true) or raises every vein on the planet.
func (s *Session) Veins(origin geo.Vec3, bury bool) error {
	run := protocol.RunRaiseVein
	if bury {
		run = protocol.RunBuryVein
	}
	if s.Busy() {
		s.notice(run, protocol.ErrBusy, "Veins: another run is in progress")
		return ErrBusy
	}
	if s.planet == nil {
		s.notice(run, protocol.ErrNoPlanet, "Veins: no planet loaded")
		return ErrNoPlanet
	}
	if s.veins == nil {
		s.notice(run, protocol.ErrBadRequest, "Veins: this planet has no veins")
		return ErrNoVeins
	}
	f := s.host.ActiveFactory()
	if f.IsZero() {
		s.notice(run, protocol.ErrNoFactory, "Veins: no active factory")
		return destruct.ErrNoActiveFactory
	}
	gate := resources.NewGate(s.host.Inventory, s.cfg.Policies())
	plan := reform.PlanVeins(s.veins, gate, reform.VeinOptions{
		Factory:     f,
		Origin:      origin,
		Bury:        bury,
		SoilPerVein: s.cfg.Reform.SoilPerVein,
	})
	if plan.Halted != nil {
		s.notice(run, protocol.ErrNoResource, fmt.Sprintf("Veins: planned %d veins before running out: %v", plan.Cells, plan.Halted))
	}
	return s.submitReform(run, f, plan)
}

func (s *Session) submitReform(run string, f tasks.FactoryRef, plan reform.Plan) error {
	if plan.Queue.Len() == 0 {
		msg := "nothing to do"
		if run == protocol.RunReform && s.terrain != nil && s.terrain.IsPlanetFullyReformed() {
			msg = "planet is already fully reformed"
		}
		s.notice(run, "", fmt.Sprintf("%s: %s", runLabel(run), msg))
		return nil
	}
	s.terraRun = run
	if err := s.terraform.Submit(f, plan.Queue); err != nil {
		return err
	}
	s.emit(protocol.Event{Type: protocol.EventRunStart, Run: run, Factory: f.String(), Total: plan.Queue.Len()})
	return nil
}

func (s *Session) finished(run string, st scheduler.State, owner tasks.FactoryRef, total, processed, failed, dropped int, err error) {
	ev := protocol.Event{
		Type:      protocol.EventRunEnd,
		Run:       run,
		State:     st.String(),
		Factory:   owner.String(),
		Total:     total,
		Processed: processed,
		Failed:    failed,
		Dropped:   dropped,
	}
	label := runLabel(run)
	switch {
	case st == scheduler.EndedError && errors.Is(err, scheduler.ErrContextChanged):
		ev.Code = protocol.ErrContextChanged
		ev.Message = fmt.Sprintf("%s aborted: the factory changed (%d of %d done)", label, processed, total)
	case st == scheduler.EndedError:
		ev.Code = protocol.ErrInternal
		ev.Message = fmt.Sprintf("%s aborted: %v", label, err)
	case st == scheduler.EndedEarly:
		ev.Code = protocol.ErrNoResource
		ev.Message = fmt.Sprintf("%s stopped: %v (%d of %d done)", label, err, processed, total)
	case s.cancelled:
		ev.Message = fmt.Sprintf("%s cancelled: %d of %d done", label, processed, total)
	default:
		ev.Message = fmt.Sprintf("%s complete: %d of %d done", label, processed, total)
	}
	if failed > 0 {
		if ev.Code == "" {
			ev.Code = protocol.ErrItemFailed
		}
		ev.Message += fmt.Sprintf(", %d failed", failed)
	}
	s.popup(ev.Message)
	s.emit(ev)
}

func (s *Session) notice(run, code, msg string) {
	s.popup(msg)
	s.emit(protocol.Event{Type: protocol.EventNotice, Run: run, Code: code, Message: msg})
}

func (s *Session) popup(msg string) {
	if s.host.Notifier != nil {
		s.host.Notifier.PopupAndLog(msg)
	}
}

func (s *Session) emit(ev protocol.Event) {
	ev.Tick = s.tick
	if s.planet != nil {
		ev.Planet = s.planet.ID()
	}
	if s.events != nil {
		if err := s.events.WriteEvent(ev); err != nil {
			s.logf("event log: %v", err)
		}
	}
	s.outbox = append(s.outbox, ev)
}

// TakeEvents returns the events emitted since the previous call.
func (s *Session) TakeEvents() []protocol.Event {
	out := s.outbox
	s.outbox = nil
	return out
}

func (s *Session) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func runLabel(run string) string {
	switch run {
	case protocol.RunDemolish:
		return "Demolish"
	case protocol.RunReform:
		return "Reform"
	case protocol.RunBuryVein:
		return "Bury veins"
	case protocol.RunRaiseVein:
		return "Raise veins"
	default:
		return run
	}
}
