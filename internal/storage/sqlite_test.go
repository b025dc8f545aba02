package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "telepal/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(context.Background(), Config{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "tasks.db"),
		BusyTimeout: time.Second,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

var base = time.Date(2030, 1, 2, 10, 0, 0, 0, time.UTC)

func mustCreate(t *testing.T, st Store, chatID int64, payload string, at time.Time) Task {
	t.Helper()
	task, err := st.Create(context.Background(), NewTask{
		OwnerID:      1,
		TargetChatID: chatID,
		ChatKind:     ChatPrivate,
		Payload:      payload,
		ExecuteAt:    at,
		CreatedAt:    base,
	})
	if err != nil {
		t.Fatalf("Create(%q): %v", payload, err)
	}
	return task
}

func TestCreateAndGet(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	loc := time.FixedZone("UTC+8", 8*3600)
	at := time.Date(2030, 1, 2, 18, 30, 0, 0, loc)
	created := mustCreate(t, st, 42, "buy milk", at)
	if created.ID == 0 {
		t.Fatal("expected assigned id")
	}

	got, ok, err := st.GetByID(ctx, created.ID)
	if err != nil || !ok {
		t.Fatalf("GetByID = ok:%v err:%v", ok, err)
	}
	if got.Payload != "buy milk" || got.TargetChatID != 42 || got.ChatKind != ChatPrivate {
		t.Fatalf("unexpected task: %+v", got)
	}
	if !got.ExecuteAt.Equal(at) || got.ExecuteAt.Location() != time.UTC {
		t.Fatalf("ExecuteAt = %v, want %v in UTC", got.ExecuteAt, at)
	}
	if got.IsExecuted || !got.ExecutedAt.IsZero() {
		t.Fatalf("new task should be pending: %+v", got)
	}

	if _, ok, err := st.GetByID(ctx, created.ID+100); ok || err != nil {
		t.Fatalf("missing id: ok=%v err=%v", ok, err)
	}
}

func TestCreateRejectsPayloadBound(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	for _, p := range []string{"", strings.Repeat("x", MaxPayloadRunes+1)} {
		_, err := st.Create(context.Background(), NewTask{ChatKind: ChatPrivate, Payload: p, ExecuteAt: base})
		if !errors.Is(err, ErrPayloadBound) {
			t.Fatalf("Create(len=%d) err = %v, want ErrPayloadBound", len(p), err)
		}
	}
	// Multi-byte characters count once each.
	mustCreate(t, st, 1, strings.Repeat("é", MaxPayloadRunes), base.Add(time.Hour))
}

func TestGetPendingFiltersAndOrders(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	late := mustCreate(t, st, 1, "late", base.Add(3*time.Hour))
	early := mustCreate(t, st, 1, "early", base.Add(1*time.Hour))
	mustCreate(t, st, 1, "past", base.Add(-time.Hour))
	done := mustCreate(t, st, 1, "done", base.Add(2*time.Hour))
	if ok, err := st.MarkExecuted(ctx, done.ID, base); err != nil || !ok {
		t.Fatalf("MarkExecuted = %v, %v", ok, err)
	}

	got, err := st.GetPending(ctx, base, 0)
	if err != nil {
		t.Fatalf("GetPending: %v", err)
	}
	if len(got) != 2 || got[0].ID != early.ID || got[1].ID != late.ID {
		t.Fatalf("pending = %+v", got)
	}

	got, err = st.GetPending(ctx, base, 1)
	if err != nil || len(got) != 1 || got[0].ID != early.ID {
		t.Fatalf("limited pending = %+v, %v", got, err)
	}
}

func TestMarkExecutedIsConditional(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	task := mustCreate(t, st, 1, "once", base.Add(time.Hour))

	first, err := st.MarkExecuted(ctx, task.ID, base.Add(time.Hour))
	if err != nil || !first {
		t.Fatalf("first MarkExecuted = %v, %v", first, err)
	}
	second, err := st.MarkExecuted(ctx, task.ID, base.Add(2*time.Hour))
	if err != nil || second {
		t.Fatalf("second MarkExecuted = %v, %v", second, err)
	}
	missing, err := st.MarkExecuted(ctx, task.ID+99, base)
	if err != nil || missing {
		t.Fatalf("missing MarkExecuted = %v, %v", missing, err)
	}

	got, _, _ := st.GetByID(ctx, task.ID)
	if !got.IsExecuted || !got.ExecutedAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("executed task = %+v", got)
	}
}

func TestDeleteOnlyPending(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	pending := mustCreate(t, st, 1, "pending", base.Add(time.Hour))
	done := mustCreate(t, st, 1, "done", base.Add(time.Hour))
	_, _ = st.MarkExecuted(ctx, done.ID, base)

	if ok, err := st.Delete(ctx, pending.ID); err != nil || !ok {
		t.Fatalf("Delete(pending) = %v, %v", ok, err)
	}
	if ok, err := st.Delete(ctx, pending.ID); err != nil || ok {
		t.Fatalf("Delete(again) = %v, %v", ok, err)
	}
	if ok, err := st.Delete(ctx, done.ID); err != nil || ok {
		t.Fatalf("Delete(executed) = %v, %v", ok, err)
	}
}

func TestGetByChatAnyState(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	a := mustCreate(t, st, 42, "a", base.Add(time.Hour))
	mustCreate(t, st, 42, "b", base.Add(2*time.Hour))
	mustCreate(t, st, 42, "c", base.Add(3*time.Hour))
	mustCreate(t, st, 7, "other", base.Add(time.Hour))
	_, _ = st.MarkExecuted(ctx, a.ID, base)

	got, err := st.GetByChat(ctx, 42)
	if err != nil {
		t.Fatalf("GetByChat: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("GetByChat len = %d, want 3", len(got))
	}
	if got[0].Payload != "a" || !got[0].IsExecuted {
		t.Fatalf("first = %+v", got[0])
	}
}

func TestPruneExecuted(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	old := mustCreate(t, st, 1, "old", base.Add(time.Hour))
	recent := mustCreate(t, st, 1, "recent", base.Add(time.Hour))
	mustCreate(t, st, 1, "pending", base.Add(time.Hour))
	_, _ = st.MarkExecuted(ctx, old.ID, base)
	_, _ = st.MarkExecuted(ctx, recent.ID, base.Add(48*time.Hour))

	n, err := st.PruneExecuted(ctx, base.Add(24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("PruneExecuted = %d, %v", n, err)
	}
	if _, ok, _ := st.GetByID(ctx, old.ID); ok {
		t.Fatal("old executed task should be pruned")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(context.Background(), Config{Driver: "mongo"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := Open(context.Background(), Config{Driver: "none"}, logx.Nop()); !errors.Is(err, ErrDisabled) {
		t.Fatalf("none driver err = %v", err)
	}
}

func TestRebind(t *testing.T) {
	t.Parallel()
	q := `UPDATE t SET a = ? WHERE id = ? AND b = ?`
	if got := sqliteDialect.rebind(q); got != q {
		t.Fatalf("sqlite rebind changed query: %q", got)
	}
	want := `UPDATE t SET a = $1 WHERE id = $2 AND b = $3`
	if got := postgresDialect.rebind(q); got != want {
		t.Fatalf("postgres rebind = %q, want %q", got, want)
	}
}
