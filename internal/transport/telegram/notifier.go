package telegram

import (
	"context"
	"html"

	kit "telepal/internal/transport"
)

const reminderHeader = "⏰ <b>Reminder</b>\n\n"

// Notifier delivers reminder payloads as HTML messages.
type Notifier struct {
	sender kit.Sender
}

func NewNotifier(s kit.Sender) *Notifier { return &Notifier{sender: s} }

func (n *Notifier) Send(ctx context.Context, chatID int64, text string) error {
	_, err := n.sender.SendText(ctx, kit.ChatTarget{ChatID: chatID}, FormatReminder(text), &kit.SendOptions{
		ParseMode:      "HTML",
		DisablePreview: true,
	})
	return err
}

func FormatReminder(payload string) string {
	return reminderHeader + html.EscapeString(payload)
}
