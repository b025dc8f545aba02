package reminder

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/google/uuid"

	logx "telepal/pkg/logx"
)

// execute is the timer callback. Every outcome is logged; nothing is
// returned because no caller is waiting.
//
// Order: re-read, skip if gone or executed, claim (conditional
// mark-executed), then deliver. A failed claim leaves the task pending;
// a failed delivery leaves it executed.
func (s *Service) execute(ctx context.Context, id int64) {
	log := s.log.With(logx.Int64("task_id", id), logx.String("run", uuid.NewString()))

	s.mu.Lock()
	n := s.notifier
	s.mu.Unlock()
	if n == nil {
		log.Warn("timer fired after shutdown; task left pending")
		return
	}

	task, ok, err := s.store.GetByID(ctx, id)
	if err != nil {
		log.Error("reload failed; task left pending", logx.Err(err))
		return
	}
	if !ok {
		log.Info("task no longer exists; skipping")
		return
	}
	if task.IsExecuted {
		log.Info("task already executed; skipping")
		return
	}

	claimed, err := s.store.MarkExecuted(ctx, id, s.now())
	if err != nil {
		log.Error("mark executed failed; task left pending", logx.Err(err))
		return
	}
	if !claimed {
		log.Info("task claimed by another fire; skipping")
		return
	}
	s.publish(EventFired, TaskEvent{TaskID: id, ChatID: task.TargetChatID})

	if err := s.deliver(ctx, n, task.TargetChatID, task.Payload); err != nil {
		log.Warn("delivery failed; task stays executed",
			logx.Int64("chat_id", task.TargetChatID),
			logx.Err(err),
		)
		s.publish(EventDeliveryFailed, TaskEvent{TaskID: id, ChatID: task.TargetChatID, Err: err.Error()})
		return
	}
	log.Info("reminder delivered",
		logx.Int64("chat_id", task.TargetChatID),
		logx.String("kind", string(task.ChatKind)),
	)
	s.publish(EventDelivered, TaskEvent{TaskID: id, ChatID: task.TargetChatID})
}

func (s *Service) deliver(ctx context.Context, n Notifier, chatID int64, text string) (err error) {
	dctx, cancel := context.WithTimeout(ctx, s.deliveryTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("notifier panicked",
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())),
			)
			err = fmt.Errorf("notifier panic: %v", r)
		}
	}()
	return n.Send(dctx, chatID, text)
}
