package scheduler

import (
	"errors"
	"fmt"
	"log"

	"reformkit/internal/sim/resources"
	"reformkit/internal/sim/tasks"
)

type State int

const (
	Idle State = iota
	InProgress
	Complete
	EndedEarly
	EndedError
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case InProgress:
		return "IN_PROGRESS"
	case Complete:
		return "COMPLETE"
	case EndedEarly:
		return "ENDED_EARLY"
	case EndedError:
		return "ENDED_ERROR"
	default:
		return fmt.Sprintf("STATE(%d)", int(s))
	}
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool { return s == Complete || s == EndedEarly || s == EndedError }

var (
	// ErrContextChanged aborts a queue whose factory is no longer current.
	ErrContextChanged = errors.New("factory changed since planning")
	// ErrBusy is returned by Submit while a queue is running.
	ErrBusy = errors.New("scheduler busy")
	// ErrItemPanicked wraps a recovered handler panic.
	ErrItemPanicked = errors.New("work item panicked")
)

// Handler applies one item. Returning an error wrapping
// resources.ErrExhausted halts the run; any other error skips the item.
type Handler[T any] func(item T) error

// Result summarises a finished run.
type Result[T any] struct {
	Name      string
	State     State
	Owner     tasks.FactoryRef
	Total     int
	Processed int
	Failed    int
	Err       error
	// Dropped holds items cleared by cancellation or an early end.
	Dropped []T
}

// Scheduler drains one phase queue a bounded number of items per tick.
// It is not safe for concurrent use; the host calls it from its tick.
type Scheduler[T any] struct {
	name    string
	logger  *log.Logger
	current func() tasks.FactoryRef

	state     State
	owner     tasks.FactoryRef
	queue     tasks.Queue[T]
	total     int
	processed int
	failed    int
	err       error

	onFinish []func(Result[T])
}

// New returns an idle scheduler. current reports the host's active
// factory and is compared with the submitting owner before every tick; nil
// disables the check.
func New[T any](name string, current func() tasks.FactoryRef, logger *log.Logger) *Scheduler[T] {
	return &Scheduler[T]{name: name, current: current, logger: logger}
}

func (s *Scheduler[T]) Name() string            { return s.name }
func (s *Scheduler[T]) State() State            { return s.state }
func (s *Scheduler[T]) Owner() tasks.FactoryRef { return s.owner }
func (s *Scheduler[T]) Pending() int            { return s.queue.Len() }
func (s *Scheduler[T]) Processed() int          { return s.processed }
func (s *Scheduler[T]) Failed() int             { return s.failed }
func (s *Scheduler[T]) Total() int              { return s.total }
func (s *Scheduler[T]) Err() error              { return s.err }
func (s *Scheduler[T]) Busy() bool              { return s.state == InProgress }

// OnFinish registers fn to run once per terminal transition.
func (s *Scheduler[T]) OnFinish(fn func(Result[T])) {
	if fn != nil {
		s.onFinish = append(s.onFinish, fn)
	}
}

// Submit starts draining q on behalf of owner.
func (s *Scheduler[T]) Submit(owner tasks.FactoryRef, q tasks.Queue[T]) error {
	if s.state == InProgress {
		return ErrBusy
	}
	s.state = InProgress
	s.owner = owner
	s.queue = q
	s.total = q.Len()
	s.processed = 0
	s.failed = 0
	s.err = nil
	return nil
}

// Tick runs up to limit items through h and returns how many ran.
func (s *Scheduler[T]) Tick(limit int, h Handler[T]) int {
	if s.state != InProgress {
		return 0
	}
	if s.current != nil && s.current() != s.owner {
		s.finish(EndedError, ErrContextChanged)
		return 0
	}
	if limit < 1 {
		limit = 1
	}
	ran := 0
	for ran < limit {
		item, phase, ok := s.queue.Pop()
		if !ok {
			break
		}
		err := s.run(h, item)
		ran++
		s.processed++
		if err != nil {
			if errors.Is(err, resources.ErrExhausted) {
				s.finish(EndedEarly, err)
				return ran
			}
			s.failed++
			s.logf("%s: skip item (phase %d): %v", s.name, phase, err)
		}
		if s.state != InProgress {
			// Cancelled from inside the handler.
			return ran
		}
	}
	if s.queue.Len() == 0 {
		s.finish(Complete, nil)
	}
	return ran
}

// Cancel drops the remaining items and marks the run complete. It does not
// interrupt an item that is already running.
func (s *Scheduler[T]) Cancel() []T {
	if s.state != InProgress {
		return nil
	}
	return s.finish(Complete, nil)
}

func (s *Scheduler[T]) run(h Handler[T], item T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrItemPanicked, r)
		}
	}()
	return h(item)
}

func (s *Scheduler[T]) finish(state State, err error) []T {
	dropped := s.queue.Clear()
	s.state = state
	s.err = err
	res := Result[T]{
		Name:      s.name,
		State:     state,
		Owner:     s.owner,
		Total:     s.total,
		Processed: s.processed,
		Failed:    s.failed,
		Err:       err,
		Dropped:   dropped,
	}
	for _, fn := range s.onFinish {
		fn(res)
	}
	return dropped
}

func (s *Scheduler[T]) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
