package reminder

import (
	"time"

	"telepal/internal/eventbus"
)

const (
	EventCreated        = "reminder.created"
	EventRecovered      = "reminder.recovered"
	EventFired          = "reminder.fired"
	EventDelivered      = "reminder.delivered"
	EventDeliveryFailed = "reminder.delivery_failed"
	EventCancelled      = "reminder.cancelled"
)

// TaskEvent is the payload of every reminder.* event.
type TaskEvent struct {
	TaskID int64
	ChatID int64
	Count  int // recovered only
	Err    string
}

func (s *Service) publish(typ string, ev TaskEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
}
