package loop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"reformkit/internal/observerproto"
	"reformkit/internal/protocol"
	"reformkit/internal/sim/destruct"
	"reformkit/internal/sim/geo"
	"reformkit/internal/sim/session"
)

type Config struct {
	TickRateHz int
	// HistoryLimit bounds the events kept for EVENT_BATCH_REQ replay.
	HistoryLimit int
}

type CommandEnvelope struct {
	ClientID string
	Cmd      protocol.CommandMsg
	// Resp receives exactly one ACK; it should be buffered.
	Resp chan protocol.AckMsg
}

type ObserverJoinRequest struct {
	SessionID string
	Out       chan []byte

	EveryTicks int
	Events     bool
}

type ObserverSubscribeRequest struct {
	SessionID  string
	EveryTicks int
	Events     bool
}

// EventBatchRequest is answered on the observer's own Out channel.
type EventBatchRequest struct {
	SessionID string
	Req       protocol.EventBatchReqMsg
}

// RegionSink persists the region text after a SET_REGIONS command.
type RegionSink func(planet int, text string)

type observerClient struct {
	id         string
	out        chan []byte
	everyTicks int
	events     bool
}

// Stats are counters safe to read from any goroutine.
type Stats struct {
	Ticks         uint64
	Commands      uint64
	Observers     int64
	DroppedFrames uint64
}

// Loop owns a session and drives it at a fixed tick rate. Every session call
// happens on the Run goroutine; other goroutines talk to it over channels.
type Loop struct {
	cfg  Config
	sess *session.Session
	log  *log.Logger

	inbox         chan CommandEnvelope
	observerJoin  chan ObserverJoinRequest
	observerSub   chan ObserverSubscribeRequest
	observerLeave chan string
	eventBatch    chan EventBatchRequest
	stop          chan struct{}
	stopOnce      sync.Once

	observers  map[string]*observerClient
	history    []protocol.EventBatchItem
	nextCursor uint64

	regionSink RegionSink
	snap       atomic.Pointer[session.Snapshot]

	ticks         atomic.Uint64
	commands      atomic.Uint64
	observerCount atomic.Int64
	droppedFrames atomic.Uint64
}

func New(cfg Config, sess *session.Session, logger *log.Logger) *Loop {
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 5
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 4096
	}
	l := &Loop{
		cfg:           cfg,
		sess:          sess,
		log:           logger,
		inbox:         make(chan CommandEnvelope, 64),
		observerJoin:  make(chan ObserverJoinRequest, 16),
		observerSub:   make(chan ObserverSubscribeRequest, 64),
		observerLeave: make(chan string, 16),
		eventBatch:    make(chan EventBatchRequest, 64),
		stop:          make(chan struct{}),
		observers:     map[string]*observerClient{},
		nextCursor:    1,
	}
	snap := sess.Snapshot()
	l.snap.Store(&snap)
	return l
}

func (l *Loop) SetRegionSink(fn RegionSink) { l.regionSink = fn }

func (l *Loop) Inbox() chan<- CommandEnvelope                     { return l.inbox }
func (l *Loop) ObserverJoin() chan<- ObserverJoinRequest          { return l.observerJoin }
func (l *Loop) ObserverSubscribe() chan<- ObserverSubscribeRequest { return l.observerSub }
func (l *Loop) ObserverLeave() chan<- string                      { return l.observerLeave }
func (l *Loop) EventBatch() chan<- EventBatchRequest              { return l.eventBatch }

func (l *Loop) Config() Config { return l.cfg }

// Snapshot is the progress as of the last completed tick.
func (l *Loop) Snapshot() session.Snapshot { return *l.snap.Load() }

func (l *Loop) Stats() Stats {
	return Stats{
		Ticks:         l.ticks.Load(),
		Commands:      l.commands.Load(),
		Observers:     l.observerCount.Load(),
		DroppedFrames: l.droppedFrames.Load(),
	}
}

func (l *Loop) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(l.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer l.closeObservers()

	var pending []CommandEnvelope
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stop:
			return nil
		case env := <-l.inbox:
			pending = append(pending, env)
		case req := <-l.observerJoin:
			l.handleObserverJoin(req)
		case req := <-l.observerSub:
			l.handleObserverSubscribe(req)
		case id := <-l.observerLeave:
			l.handleObserverLeave(id)
		case req := <-l.eventBatch:
			l.handleEventBatch(req)
		case <-ticker.C:
			l.step(pending)
			pending = pending[:0]
		}
	}
}

// Stop makes Run return. It is safe to call more than once.
func (l *Loop) Stop() { l.stopOnce.Do(func() { close(l.stop) }) }

// step applies queued commands, advances the session one tick and fans the
// result out to observers.
func (l *Loop) step(cmds []CommandEnvelope) {
	for _, env := range cmds {
		ack := l.apply(env.Cmd)
		l.commands.Add(1)
		if env.Resp != nil {
			select {
			case env.Resp <- ack:
			default:
			}
		}
	}
	l.sess.Tick()
	events := l.sess.TakeEvents()
	for _, ev := range events {
		l.history = append(l.history, protocol.EventBatchItem{Cursor: l.nextCursor, Event: ev})
		l.nextCursor++
	}
	if over := len(l.history) - l.cfg.HistoryLimit; over > 0 {
		l.history = append(l.history[:0], l.history[over:]...)
	}
	snap := l.sess.Snapshot()
	l.snap.Store(&snap)
	l.ticks.Add(1)
	l.publish(snap, events)
}

func (l *Loop) apply(cmd protocol.CommandMsg) protocol.AckMsg {
	ack := protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		ReqID:           cmd.ReqID,
		Tick:            l.sess.CurrentTick(),
	}
	origin := geo.Vec3{X: cmd.Origin[0], Y: cmd.Origin[1], Z: cmd.Origin[2]}
	var err error
	switch cmd.Op {
	case protocol.OpDemolish:
		err = l.sess.Demolish(origin)
	case protocol.OpReform:
		err = l.sess.Reform(origin)
	case protocol.OpBuryVeins:
		err = l.sess.Veins(origin, true)
	case protocol.OpRaiseVeins:
		err = l.sess.Veins(origin, false)
	case protocol.OpCancel:
		l.sess.Cancel()
	case protocol.OpSetRegions:
		n := l.sess.SetRegions(cmd.Regions)
		ack.Message = fmt.Sprintf("%d region(s)", n)
		if l.regionSink != nil {
			l.regionSink(l.sess.Snapshot().PlanetID, l.sess.Regions().Encode())
		}
	default:
		ack.Code = protocol.ErrBadRequest
		ack.Message = fmt.Sprintf("unknown op %q", cmd.Op)
		return ack
	}
	if err != nil {
		ack.Code = codeFor(err)
		ack.Message = err.Error()
		return ack
	}
	ack.Accepted = true
	return ack
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, session.ErrBusy):
		return protocol.ErrBusy
	case errors.Is(err, session.ErrNoPlanet):
		return protocol.ErrNoPlanet
	case errors.Is(err, destruct.ErrNoActiveFactory):
		return protocol.ErrNoFactory
	case errors.Is(err, session.ErrNoVeins):
		return protocol.ErrBadRequest
	default:
		return protocol.ErrInternal
	}
}

func (l *Loop) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.Out == nil {
		return
	}
	if old := l.observers[req.SessionID]; old != nil {
		close(old.out)
	} else {
		l.observerCount.Add(1)
	}
	l.observers[req.SessionID] = &observerClient{
		id:         req.SessionID,
		out:        req.Out,
		everyTicks: clampEvery(req.EveryTicks, 1),
		events:     req.Events,
	}
}

func (l *Loop) handleObserverSubscribe(req ObserverSubscribeRequest) {
	c := l.observers[req.SessionID]
	if c == nil {
		return
	}
	c.everyTicks = clampEvery(req.EveryTicks, c.everyTicks)
	c.events = req.Events
}

func (l *Loop) handleObserverLeave(id string) {
	c := l.observers[id]
	if c == nil {
		return
	}
	delete(l.observers, id)
	l.observerCount.Add(-1)
	close(c.out)
}

func (l *Loop) closeObservers() {
	for id := range l.observers {
		l.handleObserverLeave(id)
	}
}

func (l *Loop) handleEventBatch(req EventBatchRequest) {
	c := l.observers[req.SessionID]
	if c == nil {
		return
	}
	limit := req.Req.Limit
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	msg := protocol.EventBatchMsg{
		Type:            protocol.TypeEventBatch,
		ProtocolVersion: protocol.Version,
		ReqID:           req.Req.ReqID,
		Planet:          l.sess.Snapshot().PlanetID,
		Events:          []protocol.EventBatchItem{},
		NextCursor:      req.Req.SinceCursor,
	}
	if len(l.history) > 0 && l.history[0].Cursor > req.Req.SinceCursor+1 {
		msg.Truncated = true
	}
	for _, it := range l.history {
		if it.Cursor <= req.Req.SinceCursor {
			continue
		}
		if len(msg.Events) >= limit {
			msg.HasMore = true
			break
		}
		msg.NextCursor = it.Cursor
		if req.Req.Run != "" && it.Event.Run != req.Req.Run {
			continue
		}
		msg.Events = append(msg.Events, it)
	}
	l.send(c, msg)
}

func (l *Loop) publish(snap session.Snapshot, events []protocol.Event) {
	if len(l.observers) == 0 {
		return
	}
	base := ProgressMsg(snap)
	for _, c := range l.observers {
		withEvents := c.events && len(events) > 0
		if snap.Tick%uint64(c.everyTicks) != 0 && !withEvents {
			continue
		}
		msg := base
		if c.events {
			msg.Events = events
		}
		l.send(c, msg)
	}
}

// send never blocks the tick; slow observers lose frames.
func (l *Loop) send(c *observerClient, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		if l.log != nil {
			l.log.Printf("observer %s: marshal: %v", c.id, err)
		}
		return
	}
	select {
	case c.out <- b:
	default:
		l.droppedFrames.Add(1)
	}
}

// ProgressMsg renders snap for observers.
func ProgressMsg(snap session.Snapshot) observerproto.ProgressMsg {
	msg := observerproto.ProgressMsg{
		Type:            protocol.TypeProgress,
		ProtocolVersion: observerproto.Version,
		Tick:            snap.Tick,
		Planet:          snap.PlanetID,
		Index: observerproto.IndexProgress{
			RowsDone:      snap.Index.RowsDone,
			Rows:          snap.Index.Rows,
			CellsResolved: snap.Index.CellsResolved,
			Fraction:      snap.Index.Fraction(),
			Complete:      snap.Index.Complete,
		},
	}
	for _, r := range snap.Runs {
		rp := observerproto.RunProgress{
			Name:      r.Name,
			State:     r.State.String(),
			Total:     r.Total,
			Processed: r.Processed,
			Failed:    r.Failed,
			Pending:   r.Pending,
		}
		if !r.Owner.IsZero() {
			rp.Factory = r.Owner.String()
		}
		msg.Runs = append(msg.Runs, rp)
	}
	return msg
}

func clampEvery(v, def int) int {
	if v <= 0 {
		return def
	}
	if v > 100 {
		return 100
	}
	return v
}
