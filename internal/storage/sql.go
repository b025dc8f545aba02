package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	logx "telepal/pkg/logx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const taskColumns = `id, owner_id, target_chat_id, chat_kind, payload, execute_at, is_executed, created_at, executed_at`

// sqlStore implements Store for every database/sql dialect.
type sqlStore struct {
	db  *sql.DB
	d   dialect
	log logx.Logger
}

func (s *sqlStore) Migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile(s.d.migration)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, string(b)); err != nil {
		return fmt.Errorf("storage: migrate %s: %w", s.d.name, err)
	}
	return nil
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) Create(ctx context.Context, t NewTask) (Task, error) {
	if n := utf8.RuneCountInString(t.Payload); n == 0 || n > MaxPayloadRunes {
		return Task{}, ErrPayloadBound
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	var id int64
	err := s.db.QueryRowContext(ctx, s.d.rebind(
		`INSERT INTO scheduled_tasks (owner_id, target_chat_id, chat_kind, payload, execute_at, is_executed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		t.OwnerID, t.TargetChatID, string(t.ChatKind), t.Payload,
		s.d.timeArg(t.ExecuteAt), false, s.d.timeArg(t.CreatedAt),
	).Scan(&id)
	if err != nil {
		return Task{}, fmt.Errorf("storage: create: %w", err)
	}
	return Task{
		ID:           id,
		OwnerID:      t.OwnerID,
		TargetChatID: t.TargetChatID,
		ChatKind:     t.ChatKind,
		Payload:      t.Payload,
		ExecuteAt:    t.ExecuteAt.UTC(),
		CreatedAt:    t.CreatedAt.UTC(),
	}, nil
}

func (s *sqlStore) GetByID(ctx context.Context, id int64) (Task, bool, error) {
	row := s.db.QueryRowContext(ctx, s.d.rebind(`SELECT `+taskColumns+` FROM scheduled_tasks WHERE id = ?`), id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, false, nil
	}
	if err != nil {
		return Task{}, false, fmt.Errorf("storage: get %d: %w", id, err)
	}
	return t, true, nil
}

func (s *sqlStore) GetPending(ctx context.Context, now time.Time, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = DefaultPendingLimit
	}
	rows, err := s.db.QueryContext(ctx, s.d.rebind(
		`SELECT `+taskColumns+` FROM scheduled_tasks
		 WHERE is_executed = ? AND execute_at > ?
		 ORDER BY execute_at ASC, id ASC
		 LIMIT ?`),
		false, s.d.timeArg(now), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: pending: %w", err)
	}
	return collect(rows)
}

func (s *sqlStore) GetByChat(ctx context.Context, chatID int64) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, s.d.rebind(
		`SELECT `+taskColumns+` FROM scheduled_tasks
		 WHERE target_chat_id = ?
		 ORDER BY execute_at ASC, id ASC`),
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: by chat %d: %w", chatID, err)
	}
	return collect(rows)
}

func (s *sqlStore) MarkExecuted(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.d.rebind(
		`UPDATE scheduled_tasks SET is_executed = ?, executed_at = ?
		 WHERE id = ? AND is_executed = ?`),
		true, s.d.timeArg(at), id, false,
	)
	if err != nil {
		return false, fmt.Errorf("storage: mark executed %d: %w", id, err)
	}
	return affectedOne(res)
}

func (s *sqlStore) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.d.rebind(
		`DELETE FROM scheduled_tasks WHERE id = ? AND is_executed = ?`), id, false)
	if err != nil {
		return false, fmt.Errorf("storage: delete %d: %w", id, err)
	}
	return affectedOne(res)
}

func (s *sqlStore) PruneExecuted(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.d.rebind(
		`DELETE FROM scheduled_tasks WHERE is_executed = ? AND executed_at < ?`),
		true, s.d.timeArg(before),
	)
	if err != nil {
		return 0, fmt.Errorf("storage: prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("storage: prune: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (Task, error) {
	var (
		t    Task
		kind string
	)
	err := r.Scan(
		&t.ID, &t.OwnerID, &t.TargetChatID, &kind, &t.Payload,
		scanTime(&t.ExecuteAt), &t.IsExecuted, scanTime(&t.CreatedAt), scanNullTime(&t.ExecutedAt),
	)
	if err != nil {
		return Task{}, err
	}
	t.ChatKind = ChatKind(kind)
	return t, nil
}

func collect(rows *sql.Rows) ([]Task, error) {
	defer rows.Close()
	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: rows: %w", err)
	}
	return out, nil
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("storage: rows affected: %w", err)
	}
	return n == 1, nil
}
