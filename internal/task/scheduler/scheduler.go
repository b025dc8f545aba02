package scheduler

import (
	"context"
	"sync"
	"time"

	rtsup "telepal/internal/runtime/supervisor"
	logx "telepal/pkg/logx"
)

// maxSleep bounds a single wait so wall-clock jumps are noticed.
const maxSleep = 60 * time.Second

// Callback runs when a timer fires. Callbacks for different ids run
// concurrently.
type Callback func(ctx context.Context, id int64)

type Option func(*Scheduler)

func WithLogger(log logx.Logger) Option { return func(s *Scheduler) { s.log = log } }

// WithClock overrides time.Now for due checks.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

type Scheduler struct {
	log logx.Logger
	now func() time.Time

	mu   sync.Mutex
	h    entryHeap
	byID map[int64]*entry
	seq  uint64
	sup  *rtsup.Supervisor // nil while stopped

	wake chan struct{}
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		now:  time.Now,
		byID: map[int64]*entry{},
		wake: make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

// Start launches the loop. Calling Start on a running scheduler does nothing.
// Timers registered before Start fire once it runs.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return
	}
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	s.sup.Go0("scheduler.loop", s.loop)
	s.log.Info("scheduler started", logx.Int("timers", len(s.byID)))
}

// Schedule registers fn to fire for id at at, replacing any timer already
// held for id. A time in the past fires on the next loop pass.
func (s *Scheduler) Schedule(id int64, at time.Time, fn Callback) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.seq++
	if e, ok := s.byID[id]; ok {
		e.at, e.fn, e.seq = at, fn, s.seq
		heapFix(&s.h, e)
	} else {
		e := &entry{id: id, at: at, fn: fn, seq: s.seq}
		s.byID[id] = e
		heapPush(&s.h, e)
	}
	s.mu.Unlock()
	s.poke()
}

// Cancel drops the pending timer for id. It reports false when nothing was
// pending, including when the timer already fired.
func (s *Scheduler) Cancel(id int64) bool {
	s.mu.Lock()
	e, ok := s.byID[id]
	if ok {
		heapRemove(&s.h, e)
		delete(s.byID, id)
	}
	s.mu.Unlock()
	if ok {
		s.poke()
	}
	return ok
}

func (s *Scheduler) Has(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byID[id]
	return ok
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// Stop discards every pending timer without firing it and waits for
// callbacks already running, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	start := time.Now()
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	dropped := len(s.byID)
	s.h = nil
	s.byID = map[int64]*entry{}
	s.mu.Unlock()

	if sup == nil {
		return nil
	}
	sup.Cancel()
	err := sup.Wait(ctx)
	s.log.Info("scheduler stopped", logx.Int("dropped", dropped), logx.Duration("took", time.Since(start)))
	if err != nil && ctx.Err() != nil {
		return err
	}
	return nil
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	timer := time.NewTimer(maxSleep)
	defer timer.Stop()
	for {
		now := s.now()
		due, next := s.popDue(now)
		for _, e := range due {
			s.dispatch(ctx, e)
		}

		wait := maxSleep
		if !next.IsZero() {
			wait = min(max(next.Sub(now), 0), maxSleep)
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-timer.C:
		}
	}
}

func (s *Scheduler) popDue(now time.Time) ([]*entry, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*entry
	for {
		e := s.h.peek()
		if e == nil {
			return due, time.Time{}
		}
		if e.at.After(now) {
			return due, e.at
		}
		heapPop(&s.h)
		delete(s.byID, e.id)
		due = append(due, e)
	}
}

// dispatch runs the callback on its own goroutine. The callback context is
// detached from loop cancellation so Stop does not abort a delivery midway;
// Stop waits for it instead.
func (s *Scheduler) dispatch(ctx context.Context, e *entry) {
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	if sup == nil {
		return
	}
	id, fn := e.id, e.fn
	cctx := context.WithoutCancel(ctx)
	s.log.Debug("timer fired", logx.Int64("task_id", id), logx.Time("at", e.at))
	sup.Go0("scheduler.fire", func(context.Context) { fn(cctx, id) })
}
