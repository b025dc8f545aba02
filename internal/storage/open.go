package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "telepal/pkg/logx"
)

// Store is the persistence API used by the reminder service and the CLI.
type Store interface {
	Create(ctx context.Context, t NewTask) (Task, error)
	GetByID(ctx context.Context, id int64) (Task, bool, error)
	// GetPending returns unexecuted tasks due strictly after now, earliest first.
	GetPending(ctx context.Context, now time.Time, limit int) ([]Task, error)
	// GetByChat returns every task targeting chatID, in any state.
	GetByChat(ctx context.Context, chatID int64) ([]Task, error)
	// MarkExecuted flips a pending task to executed. Only the call that
	// performed the flip gets true.
	MarkExecuted(ctx context.Context, id int64, at time.Time) (bool, error)
	// Delete removes a pending task.
	Delete(ctx context.Context, id int64) (bool, error)
	PruneExecuted(ctx context.Context, before time.Time) (int64, error)
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects the configured driver and applies the schema.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = "sqlite"
	}

	var (
		st  *sqlStore
		err error
	)
	switch driver {
	case "none":
		return nil, ErrDisabled
	case "sqlite", "sqlite3":
		st, err = openSQLite(ctx, cfg, log)
	case "postgres", "postgresql":
		st, err = openPostgres(ctx, cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	log.Debug("storage ready", logx.String("driver", st.d.name))
	return st, nil
}
