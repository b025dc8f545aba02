package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"telepal/internal/reminder"
	"telepal/internal/tools"
	logx "telepal/pkg/logx"
)

// StatusFunc reports runtime state for the owner-only /status command.
type StatusFunc func(ctx context.Context) string

type ReminderCommandsConfig struct {
	Service  tools.ReminderService
	Location *time.Location
	Now      func() time.Time
	Status   StatusFunc
}

const tryAgain = "something went wrong, please try again later"

// ReminderCommands returns /remind, /reminders, /cancel and, when Status is
// set, the owner-only /status.
func ReminderCommands(cfg ReminderCommandsConfig) []Command {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	h := &reminderHandlers{cfg: cfg}
	cmds := []Command{
		{
			Name:        "remind",
			Description: "schedule a reminder in this chat",
			Usage:       "/remind <90m|14:30|RFC3339> <text>",
			Handle:      h.remind,
		},
		{
			Name:        "reminders",
			Aliases:     []string{"list"},
			Description: "list reminders of this chat",
			Handle:      h.list,
		},
		{
			Name:        "cancel",
			Description: "cancel a pending reminder",
			Usage:       "/cancel <id>",
			Handle:      h.cancel,
		},
	}
	if cfg.Status != nil {
		cmds = append(cmds, Command{
			Name:        "status",
			Description: "runtime status",
			OwnerOnly:   true,
			Handle: func(ctx context.Context, req *Request) error {
				return req.Reply(ctx, cfg.Status(ctx))
			},
		})
	}
	return cmds
}

type reminderHandlers struct {
	cfg ReminderCommandsConfig
}

func (h *reminderHandlers) remind(ctx context.Context, req *Request) error {
	when, text, _ := strings.Cut(req.RawArgs, " ")
	text = strings.TrimSpace(text)
	if when == "" || text == "" {
		return req.Reply(ctx, "usage: /remind <when> <text>\nexamples: /remind 90m stretch, /remind 14:30 call mom")
	}
	at, err := ParseWhen(when, h.cfg.Now(), h.cfg.Location)
	if err != nil {
		return req.Reply(ctx, "cannot read time: "+err.Error())
	}

	id, err := h.cfg.Service.AddTask(ctx, reminder.NewReminder{
		OwnerID:      req.FromID,
		TargetChatID: req.Chat.ChatID,
		ChatKind:     req.ChatKind,
		Payload:      text,
		ExecuteAt:    at,
	})
	var ve *reminder.ValidationError
	switch {
	case errors.As(err, &ve):
		return req.Reply(ctx, "cannot schedule: "+ve.Error())
	case err != nil:
		req.Logger.Error("add reminder failed", logx.Err(err))
		_ = req.Reply(ctx, tryAgain)
		return err
	}
	return req.Reply(ctx, fmt.Sprintf("reminder #%d set for %s", id, at.In(h.cfg.Location).Format("2006-01-02 15:04 MST")))
}

func (h *reminderHandlers) list(ctx context.Context, req *Request) error {
	tasks, err := h.cfg.Service.GetTasksByChat(ctx, req.Chat.ChatID)
	if err != nil {
		_ = req.Reply(ctx, tryAgain)
		return err
	}
	if len(tasks) == 0 {
		return req.Reply(ctx, "no reminders in this chat")
	}
	return req.Reply(ctx, tools.FormatTasks(tasks, h.cfg.Location))
}

func (h *reminderHandlers) cancel(ctx context.Context, req *Request) error {
	if len(req.Args) != 1 {
		return req.Reply(ctx, "usage: /cancel <id>")
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(req.Args[0], "#"), 10, 64)
	if err != nil || id <= 0 {
		return req.Reply(ctx, "usage: /cancel <id>")
	}

	task, ok, err := h.cfg.Service.GetTaskByID(ctx, id)
	if err != nil {
		_ = req.Reply(ctx, tryAgain)
		return err
	}
	if !ok {
		return req.Reply(ctx, fmt.Sprintf("reminder #%d not found", id))
	}
	if task.TargetChatID != req.Chat.ChatID {
		return req.Reply(ctx, fmt.Sprintf("reminder #%d belongs to another chat", id))
	}
	if task.IsExecuted {
		return req.Reply(ctx, fmt.Sprintf("reminder #%d was already delivered", id))
	}

	deleted, err := h.cfg.Service.CancelTask(ctx, id)
	if err != nil {
		_ = req.Reply(ctx, tryAgain)
		return err
	}
	if !deleted {
		return req.Reply(ctx, fmt.Sprintf("reminder #%d was already delivered", id))
	}
	return req.Reply(ctx, fmt.Sprintf("reminder #%d cancelled", id))
}
