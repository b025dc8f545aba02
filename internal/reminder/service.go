package reminder

import (
	"context"
	"errors"
	"sync"
	"time"

	"telepal/internal/eventbus"
	"telepal/internal/storage"
	"telepal/internal/task/scheduler"
	logx "telepal/pkg/logx"
)

// Notifier transmits reminder text to a chat. Formatting is its concern.
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, chatID int64, text string) error

func (f NotifierFunc) Send(ctx context.Context, chatID int64, text string) error {
	return f(ctx, chatID, text)
}

// Store is the subset of storage.Store the service needs.
type Store interface {
	Create(ctx context.Context, t storage.NewTask) (storage.Task, error)
	GetByID(ctx context.Context, id int64) (storage.Task, bool, error)
	GetPending(ctx context.Context, now time.Time, limit int) ([]storage.Task, error)
	GetByChat(ctx context.Context, chatID int64) ([]storage.Task, error)
	MarkExecuted(ctx context.Context, id int64, at time.Time) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
	PruneExecuted(ctx context.Context, before time.Time) (int64, error)
}

// Timers is the in-memory timer wheel. *scheduler.Scheduler implements it.
type Timers interface {
	Start(ctx context.Context)
	Schedule(id int64, at time.Time, fn scheduler.Callback)
	Cancel(id int64) bool
	Has(id int64) bool
	Stop(ctx context.Context) error
}

type Options struct {
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
	// DeliveryTimeout bounds one Notifier.Send. Defaults to 15s.
	DeliveryTimeout time.Duration
	// RecoveryLimit caps tasks loaded by Initialize and Resync. Defaults to 1000.
	RecoveryLimit int
	Logger        logx.Logger
	Bus           eventbus.Bus
}

// NewReminder is the input to AddTask. Owner and chat come from the
// caller's request, never from ambient state.
type NewReminder struct {
	OwnerID      int64
	TargetChatID int64
	ChatKind     storage.ChatKind
	Payload      string
	ExecuteAt    time.Time
}

type Service struct {
	store  Store
	timers Timers
	log    logx.Logger
	bus    eventbus.Bus

	clock           func() time.Time
	deliveryTimeout time.Duration
	recoveryLimit   int

	mu          sync.Mutex
	initialized bool
	notifier    Notifier
}

func New(store Store, timers Timers, opt Options) *Service {
	s := &Service{
		store:           store,
		timers:          timers,
		log:             opt.Logger,
		bus:             opt.Bus,
		clock:           opt.Clock,
		deliveryTimeout: opt.DeliveryTimeout,
		recoveryLimit:   opt.RecoveryLimit,
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.deliveryTimeout <= 0 {
		s.deliveryTimeout = 15 * time.Second
	}
	if s.recoveryLimit <= 0 {
		s.recoveryLimit = storage.DefaultPendingLimit
	}
	return s
}

func (s *Service) now() time.Time { return s.clock().UTC() }

// Initialize starts the timers and re-registers every pending future task.
// A second call logs a warning and returns nil.
func (s *Service) Initialize(ctx context.Context, n Notifier) error {
	if n == nil {
		return errors.New("reminder: notifier is required")
	}
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		s.log.Warn("reminder service already initialized")
		return nil
	}
	s.initialized = true
	s.notifier = n
	s.mu.Unlock()

	// The timer loop outlives the init call; Shutdown stops it.
	s.timers.Start(context.WithoutCancel(ctx))
	count, err := s.recoverPending(ctx)
	if err != nil {
		s.mu.Lock()
		s.initialized = false
		s.notifier = nil
		s.mu.Unlock()
		_ = s.timers.Stop(ctx)
		return err
	}
	s.log.Info("reminder service initialized", logx.Int("recovered", count))
	s.publish(EventRecovered, TaskEvent{Count: count})
	return nil
}

func (s *Service) recoverPending(ctx context.Context) (int, error) {
	tasks, err := s.store.GetPending(ctx, s.now(), s.recoveryLimit)
	if err != nil {
		return 0, storageErr("get pending", err)
	}
	for _, t := range tasks {
		s.timers.Schedule(t.ID, t.ExecuteAt, s.execute)
	}
	if len(tasks) == s.recoveryLimit {
		s.log.Warn("recovery limit reached; later tasks load on resync", logx.Int("limit", s.recoveryLimit))
	}
	return len(tasks), nil
}

func (s *Service) isInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// AddTask validates, persists and schedules a reminder, returning its id.
func (s *Service) AddTask(ctx context.Context, r NewReminder) (int64, error) {
	if !s.isInitialized() {
		return 0, ErrNotInitialized
	}
	if err := validatePayload(r.Payload); err != nil {
		return 0, err
	}
	now := s.now()
	if err := validateExecuteAt(r.ExecuteAt, now); err != nil {
		return 0, err
	}
	kind := storage.ChatPrivate
	if r.ChatKind != "" {
		k, err := storage.ParseChatKind(string(r.ChatKind))
		if err != nil {
			return 0, invalid("chat_kind", ReasonUnknownKind)
		}
		kind = k
	}

	task, err := s.store.Create(ctx, storage.NewTask{
		OwnerID:      r.OwnerID,
		TargetChatID: r.TargetChatID,
		ChatKind:     kind,
		Payload:      r.Payload,
		ExecuteAt:    r.ExecuteAt.UTC(),
		CreatedAt:    now,
	})
	if errors.Is(err, storage.ErrPayloadBound) {
		return 0, invalid("payload", err.Error())
	}
	if err != nil {
		return 0, storageErr("create", err)
	}

	log := s.log.With(logx.Int64("task_id", task.ID), logx.Int64("chat_id", task.TargetChatID))
	if task.ExecuteAt.After(s.now()) {
		s.timers.Schedule(task.ID, task.ExecuteAt, s.execute)
		log.Info("reminder scheduled", logx.Time("execute_at", task.ExecuteAt), logx.String("kind", string(kind)))
	} else {
		log.Warn("reminder time elapsed before scheduling; left pending", logx.Time("execute_at", task.ExecuteAt))
	}
	s.publish(EventCreated, TaskEvent{TaskID: task.ID, ChatID: task.TargetChatID})
	return task.ID, nil
}

// GetTasksByChat lists every task targeting chatID, in any state.
func (s *Service) GetTasksByChat(ctx context.Context, chatID int64) ([]storage.Task, error) {
	tasks, err := s.store.GetByChat(ctx, chatID)
	if err != nil {
		return nil, storageErr("get by chat", err)
	}
	return tasks, nil
}

// GetTaskByID reports ok=false for a missing task.
func (s *Service) GetTaskByID(ctx context.Context, id int64) (storage.Task, bool, error) {
	t, ok, err := s.store.GetByID(ctx, id)
	if err != nil {
		return storage.Task{}, false, storageErr("get", err)
	}
	return t, ok, nil
}

// CancelTask removes the timer and then the pending row. It performs no
// ownership check; callers do that with GetTaskByID first. The result
// reports whether a pending row was deleted.
func (s *Service) CancelTask(ctx context.Context, id int64) (bool, error) {
	hadTimer := s.timers.Cancel(id)
	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return false, storageErr("delete", err)
	}
	s.log.Info("reminder cancel",
		logx.Int64("task_id", id),
		logx.Bool("had_timer", hadTimer),
		logx.Bool("deleted", deleted),
	)
	if deleted {
		s.publish(EventCancelled, TaskEvent{TaskID: id})
	}
	return deleted, nil
}

// Resync schedules pending tasks that have no live timer, for example tasks
// that were beyond the recovery limit at startup. It returns how many were
// added.
func (s *Service) Resync(ctx context.Context) (int, error) {
	if !s.isInitialized() {
		return 0, ErrNotInitialized
	}
	tasks, err := s.store.GetPending(ctx, s.now(), s.recoveryLimit)
	if err != nil {
		return 0, storageErr("get pending", err)
	}
	added := 0
	for _, t := range tasks {
		if s.timers.Has(t.ID) {
			continue
		}
		s.timers.Schedule(t.ID, t.ExecuteAt, s.execute)
		added++
	}
	if added > 0 {
		s.log.Info("resync scheduled missing timers", logx.Int("added", added))
	}
	return added, nil
}

// PruneExecuted deletes executed tasks older than retention.
func (s *Service) PruneExecuted(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	n, err := s.store.PruneExecuted(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, storageErr("prune", err)
	}
	return n, nil
}

// Shutdown stops the timers and forgets the notifier. Store state is left
// untouched.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return nil
	}
	s.initialized = false
	s.notifier = nil
	s.mu.Unlock()

	start := time.Now()
	err := s.timers.Stop(ctx)
	s.log.Info("reminder service stopped", logx.Duration("took", time.Since(start)))
	return err
}
