// Package transport holds chat-platform-neutral message types shared by the
// bot router and the concrete adapters.
package transport

import "context"

type ChatType string

const (
	ChatPrivate    ChatType = "private"
	ChatGroup      ChatType = "group"
	ChatSuperGroup ChatType = "supergroup"
	ChatChannel    ChatType = "channel"
)

// IsGroup reports whether several users share the chat.
func (t ChatType) IsGroup() bool { return t == ChatGroup || t == ChatSuperGroup }

type Update struct {
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	ChatType     ChatType
	ThreadID     int // forum topic, 0 if none
	FromID       int64
	FromUsername string
	Text         string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string // "", "HTML", "MarkdownV2"
	DisablePreview bool
}

// Sender delivers text to a chat. Long text is split by the implementation.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

type Adapter interface {
	Sender
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}

type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters that can publish a command
// menu to the platform.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
