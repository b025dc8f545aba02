package reminder

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"telepal/internal/storage"
	"telepal/internal/task/scheduler"
)

var errDown = errors.New("database is down")

type memStore struct {
	mu    sync.Mutex
	next  int64
	tasks map[int64]storage.Task

	failCreate  error
	failGet     error
	failPending error
	failMark    error
	failDelete  error

	onCreate func() // runs before the row is stored
}

func newMemStore() *memStore { return &memStore{tasks: map[int64]storage.Task{}} }

func (m *memStore) Create(ctx context.Context, t storage.NewTask) (storage.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return storage.Task{}, m.failCreate
	}
	if m.onCreate != nil {
		m.onCreate()
	}
	m.next++
	task := storage.Task{
		ID:           m.next,
		OwnerID:      t.OwnerID,
		TargetChatID: t.TargetChatID,
		ChatKind:     t.ChatKind,
		Payload:      t.Payload,
		ExecuteAt:    t.ExecuteAt.UTC(),
		CreatedAt:    t.CreatedAt.UTC(),
	}
	m.tasks[task.ID] = task
	return task, nil
}

func (m *memStore) GetByID(ctx context.Context, id int64) (storage.Task, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return storage.Task{}, false, m.failGet
	}
	t, ok := m.tasks[id]
	return t, ok, nil
}

func (m *memStore) GetPending(ctx context.Context, now time.Time, limit int) ([]storage.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPending != nil {
		return nil, m.failPending
	}
	var out []storage.Task
	for _, t := range m.tasks {
		if !t.IsExecuted && t.ExecuteAt.After(now) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExecuteAt.Before(out[j].ExecuteAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) GetByChat(ctx context.Context, chatID int64) ([]storage.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.Task
	for _, t := range m.tasks {
		if t.TargetChatID == chatID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) MarkExecuted(ctx context.Context, id int64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failMark != nil {
		return false, m.failMark
	}
	t, ok := m.tasks[id]
	if !ok || t.IsExecuted {
		return false, nil
	}
	t.IsExecuted = true
	t.ExecutedAt = at
	m.tasks[id] = t
	return true, nil
}

func (m *memStore) Delete(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDelete != nil {
		return false, m.failDelete
	}
	t, ok := m.tasks[id]
	if !ok || t.IsExecuted {
		return false, nil
	}
	delete(m.tasks, id)
	return true, nil
}

func (m *memStore) PruneExecuted(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, t := range m.tasks {
		if t.IsExecuted && t.ExecutedAt.Before(before) {
			delete(m.tasks, id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) put(t storage.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID > m.next {
		m.next = t.ID
	}
	m.tasks[t.ID] = t
}

func (m *memStore) get(id int64) storage.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks[id]
}

// countingTimers records Schedule calls and never fires on its own.
type countingTimers struct {
	mu        sync.Mutex
	started   int
	stopped   int
	scheduled int
	pending   map[int64]time.Time
	callbacks map[int64]scheduler.Callback
}

func newCountingTimers() *countingTimers {
	return &countingTimers{pending: map[int64]time.Time{}, callbacks: map[int64]scheduler.Callback{}}
}

func (c *countingTimers) Start(ctx context.Context) {
	c.mu.Lock()
	c.started++
	c.mu.Unlock()
}

func (c *countingTimers) Schedule(id int64, at time.Time, fn scheduler.Callback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scheduled++
	c.pending[id] = at
	c.callbacks[id] = fn
}

func (c *countingTimers) Cancel(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	delete(c.pending, id)
	delete(c.callbacks, id)
	return ok
}

func (c *countingTimers) Has(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	return ok
}

func (c *countingTimers) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped++
	c.pending = map[int64]time.Time{}
	return nil
}

func (c *countingTimers) scheduleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scheduled
}

// fire invokes the registered callback for id as the scheduler would.
func (c *countingTimers) fire(ctx context.Context, id int64) bool {
	c.mu.Lock()
	fn := c.callbacks[id]
	delete(c.pending, id)
	c.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(ctx, id)
	return true
}

type sent struct {
	chatID int64
	text   string
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []sent
	err   error
	block bool
	ch    chan sent
}

func newFakeNotifier() *fakeNotifier { return &fakeNotifier{ch: make(chan sent, 16)} }

func (f *fakeNotifier) Send(ctx context.Context, chatID int64, text string) error {
	f.mu.Lock()
	f.calls = append(f.calls, sent{chatID: chatID, text: text})
	err, block := f.err, f.block
	f.mu.Unlock()
	f.ch <- sent{chatID: chatID, text: text}
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func storageTask(id int64, at time.Time) storage.Task {
	return storage.Task{ID: id, TargetChatID: 1, ChatKind: storage.ChatPrivate, Payload: "p", ExecuteAt: at}
}
