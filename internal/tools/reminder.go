package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"telepal/internal/reminder"
	"telepal/internal/storage"
	logx "telepal/pkg/logx"
)

// ReminderService is the slice of *reminder.Service the tools call.
type ReminderService interface {
	AddTask(ctx context.Context, r reminder.NewReminder) (int64, error)
	GetTasksByChat(ctx context.Context, chatID int64) ([]storage.Task, error)
	GetTaskByID(ctx context.Context, id int64) (storage.Task, bool, error)
	CancelTask(ctx context.Context, id int64) (bool, error)
}

// Scope identifies who is asking and where. Tools built for one request
// never see another request's scope.
type Scope struct {
	OwnerID  int64
	ChatID   int64
	ChatKind storage.ChatKind
}

type Env struct {
	Service  ReminderService
	Logger   logx.Logger
	Location *time.Location // default zone for get_current_time and listings
	Now      func() time.Time
}

func (e Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Env) loc() *time.Location {
	if e.Location != nil {
		return e.Location
	}
	return time.UTC
}

// ReminderTools returns the reminder tool set bound to scope.
func ReminderTools(env Env, scope Scope) []Tool {
	if env.Logger.IsZero() {
		env.Logger = logx.Nop()
	}
	return []Tool{
		&ScheduleReminderTool{env: env, scope: scope},
		&ListRemindersTool{env: env, scope: scope},
		&CancelReminderTool{env: env, scope: scope},
		&CurrentTimeTool{env: env},
	}
}

const timeExample = "2024-01-15T14:30:00+08:00"

type ScheduleReminderTool struct {
	env   Env
	scope Scope
}

func (t *ScheduleReminderTool) Name() string { return "schedule_reminder" }

func (t *ScheduleReminderTool) Description() string {
	return "Creates a reminder delivered to the current chat at execute_time. " +
		"Call get_current_time first and compute an absolute time with an explicit UTC offset."
}

func (t *ScheduleReminderTool) ParameterSchema() string {
	return schema(map[string]any{
		"execute_time": map[string]any{
			"type":        "string",
			"description": "ISO 8601 time with timezone, e.g. " + timeExample,
		},
		"content": map[string]any{
			"type":        "string",
			"description": fmt.Sprintf("Reminder text, at most %d characters.", reminder.MaxPayload),
		},
	}, "execute_time", "content")
}

func (t *ScheduleReminderTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	rawTime, _ := stringParam(params, "execute_time")
	content, _ := stringParam(params, "content")

	if n := len([]rune(content)); n > reminder.MaxPayload {
		return fmt.Sprintf("error: reminder content is too long (max %d characters), got %d", reminder.MaxPayload, n), nil
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "error: reminder content must not be empty", nil
	}

	at, err := reminder.ParseExecuteAt(rawTime)
	if err != nil {
		var ve *reminder.ValidationError
		if errors.As(err, &ve) && ve.Reason == reminder.ReasonMissingTZ {
			return "error: the time must include a timezone, e.g. " + timeExample, nil
		}
		return "error: bad time format, use ISO 8601 such as " + timeExample, nil
	}
	now := t.env.now().UTC()
	if !at.After(now) {
		return "error: execute_time must be in the future. current time (UTC): " + now.Format("2006-01-02 15:04:05"), nil
	}

	id, err := t.env.Service.AddTask(ctx, reminder.NewReminder{
		OwnerID:      t.scope.OwnerID,
		TargetChatID: t.scope.ChatID,
		ChatKind:     t.scope.ChatKind,
		Payload:      content,
		ExecuteAt:    at,
	})
	if err != nil {
		var ve *reminder.ValidationError
		if errors.As(err, &ve) {
			return "error: " + ve.Error(), nil
		}
		t.env.Logger.Error("schedule_reminder failed", logx.Int64("chat_id", t.scope.ChatID), logx.Err(err))
		return "sorry, the reminder could not be created right now. please try again later", nil
	}
	return fmt.Sprintf("created reminder (ID: %d)\ntime: %s\ncontent: %s", id, at.Format("2006-01-02 15:04"), content), nil
}

type ListRemindersTool struct {
	env   Env
	scope Scope
}

func (t *ListRemindersTool) Name() string { return "list_reminders" }

func (t *ListRemindersTool) Description() string {
	return "Lists reminders that target the current chat, pending first."
}

func (t *ListRemindersTool) ParameterSchema() string { return schema(map[string]any{}) }

func (t *ListRemindersTool) Execute(ctx context.Context, _ map[string]any) (string, error) {
	tasks, err := t.env.Service.GetTasksByChat(ctx, t.scope.ChatID)
	if err != nil {
		t.env.Logger.Error("list_reminders failed", logx.Int64("chat_id", t.scope.ChatID), logx.Err(err))
		return "sorry, reminders could not be loaded right now", nil
	}
	if len(tasks) == 0 {
		return "no reminders in this chat", nil
	}
	return FormatTasks(tasks, t.env.loc()), nil
}

// FormatTasks renders tasks one per line, pending before executed.
func FormatTasks(tasks []storage.Task, loc *time.Location) string {
	var b strings.Builder
	for _, pass := range []bool{false, true} {
		for _, task := range tasks {
			if task.IsExecuted != pass {
				continue
			}
			state := "pending"
			if task.IsExecuted {
				state = "done"
			}
			fmt.Fprintf(&b, "#%d [%s] %s %s\n", task.ID, state, task.ExecuteAt.In(loc).Format("2006-01-02 15:04 MST"), task.Payload)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

type CancelReminderTool struct {
	env   Env
	scope Scope
}

func (t *CancelReminderTool) Name() string { return "cancel_reminder" }

func (t *CancelReminderTool) Description() string {
	return "Cancels a pending reminder of the current chat by its ID."
}

func (t *CancelReminderTool) ParameterSchema() string {
	return schema(map[string]any{
		"task_id": map[string]any{"type": "integer", "description": "Reminder ID from list_reminders."},
	}, "task_id")
}

func (t *CancelReminderTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	id, ok := asInt64(params["task_id"])
	if !ok || id <= 0 {
		return "", fmt.Errorf("missing or invalid param: task_id")
	}
	task, found, err := t.env.Service.GetTaskByID(ctx, id)
	if err != nil {
		t.env.Logger.Error("cancel_reminder lookup failed", logx.Int64("task_id", id), logx.Err(err))
		return "sorry, the reminder could not be cancelled right now", nil
	}
	if !found {
		return fmt.Sprintf("reminder %d not found", id), nil
	}
	if task.TargetChatID != t.scope.ChatID {
		return fmt.Sprintf("reminder %d belongs to another chat", id), nil
	}
	if task.IsExecuted {
		return fmt.Sprintf("reminder %d was already delivered", id), nil
	}
	deleted, err := t.env.Service.CancelTask(ctx, id)
	if err != nil {
		t.env.Logger.Error("cancel_reminder failed", logx.Int64("task_id", id), logx.Err(err))
		return "sorry, the reminder could not be cancelled right now", nil
	}
	if !deleted {
		return fmt.Sprintf("reminder %d was already delivered", id), nil
	}
	return fmt.Sprintf("cancelled reminder %d", id), nil
}

type CurrentTimeTool struct {
	env Env
}

func (t *CurrentTimeTool) Name() string { return "get_current_time" }

func (t *CurrentTimeTool) Description() string {
	return "Returns the current time with its UTC offset. Use it before scheduling a reminder."
}

func (t *CurrentTimeTool) ParameterSchema() string {
	return schema(map[string]any{
		"timezone": map[string]any{"type": "string", "description": "IANA zone such as Asia/Shanghai. Optional."},
	})
}

func (t *CurrentTimeTool) Execute(_ context.Context, params map[string]any) (string, error) {
	loc := t.env.loc()
	if name, _ := stringParam(params, "timezone"); strings.TrimSpace(name) != "" {
		l, err := time.LoadLocation(strings.TrimSpace(name))
		if err != nil {
			return "", fmt.Errorf("unknown timezone %q", name)
		}
		loc = l
	}
	now := t.env.now().In(loc)
	return fmt.Sprintf("current time: %s\ntimezone: %s\nweekday: %s", now.Format(time.RFC3339), loc.String(), now.Weekday()), nil
}
