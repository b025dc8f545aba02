// Package bot routes Telegram slash commands to handlers through a small
// middleware chain and a bounded worker pool.
package bot

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	rtsup "telepal/internal/runtime/supervisor"
	"telepal/internal/storage"
	kit "telepal/internal/transport"
	logx "telepal/pkg/logx"
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	OwnerOnly   bool
	Hidden      bool // kept out of /help and the menu
	Timeout     time.Duration
	Handle      HandlerFunc
}

type Request struct {
	Message  *kit.Message
	Chat     kit.ChatTarget
	ChatKind storage.ChatKind
	FromID   int64
	Command  string
	Args     []string
	// RawArgs is the text after the command word, unsplit.
	RawArgs string
	ReqID   string
	Logger  logx.Logger

	sender kit.Sender
}

// Reply sends plain text back to the request's chat.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.sender.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true})
	return err
}

func (r *Request) logger(fallback logx.Logger) logx.Logger {
	if r != nil && !r.Logger.IsZero() {
		return r.Logger
	}
	return fallback
}

type Options struct {
	Logger         logx.Logger
	Owners         []int64
	DefaultTimeout time.Duration // per command unless Command.Timeout is set
	QueueSize      int
	Workers        int
}

type Router struct {
	log    logx.Logger
	sender kit.Sender
	opt    Options

	mu     sync.RWMutex
	cmds   map[string]*Command
	order  []*Command
	owners []int64

	jobs chan func(context.Context)
}

func NewRouter(sender kit.Sender, opt Options) *Router {
	if opt.Logger.IsZero() {
		opt.Logger = logx.Nop()
	}
	if opt.DefaultTimeout <= 0 {
		opt.DefaultTimeout = 30 * time.Second
	}
	if opt.QueueSize <= 0 {
		opt.QueueSize = 256
	}
	if opt.Workers <= 0 {
		opt.Workers = max(2, runtime.NumCPU())
	}
	return &Router{
		log:    opt.Logger,
		sender: sender,
		opt:    opt,
		cmds:   map[string]*Command{},
		owners: append([]int64(nil), opt.Owners...),
		jobs:   make(chan func(context.Context), opt.QueueSize),
	}
}

// SetCommands replaces the command table. /help is always added.
func (r *Router) SetCommands(cmds []Command) {
	cmds = append(cmds, Command{
		Name:        "help",
		Aliases:     []string{"start"},
		Description: "show this help",
		Usage:       "/help",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, r.helpText(isOwner(req.FromID, r.ownersSnapshot())))
		},
	})
	table := map[string]*Command{}
	order := make([]*Command, 0, len(cmds))
	for i := range cmds {
		c := &cmds[i]
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		table[name] = c
		for _, a := range c.Aliases {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
				if _, taken := table[a]; !taken {
					table[a] = c
				}
			}
		}
		order = append(order, c)
	}
	sort.Slice(order, func(i, j int) bool { return order[i].Name < order[j].Name })

	r.mu.Lock()
	r.cmds = table
	r.order = order
	r.mu.Unlock()
}

// SetOwners replaces the owner list; safe during hot reload.
func (r *Router) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	r.mu.Lock()
	r.owners = cp
	r.mu.Unlock()
}

func (r *Router) ownersSnapshot() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]int64(nil), r.owners...)
}

// MenuCommands lists visible, non-owner commands for the platform menu.
func (r *Router) MenuCommands() []kit.BotCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]kit.BotCommand, 0, len(r.order))
	for _, c := range r.order {
		if c.Hidden || c.OwnerOnly {
			continue
		}
		out = append(out, kit.BotCommand{Command: c.Name, Description: c.Description})
	}
	return out
}

func (r *Router) helpText(owner bool) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var b strings.Builder
	b.WriteString("commands:\n")
	for _, c := range r.order {
		if c.Hidden || (c.OwnerOnly && !owner) {
			continue
		}
		usage := c.Usage
		if usage == "" {
			usage = "/" + c.Name
		}
		fmt.Fprintf(&b, "%s - %s\n", usage, c.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

// prepare turns an update into a runnable job. ok is false for non-command
// text and for replies the router has already sent (unknown command,
// unauthorized).
func (r *Router) prepare(ctx context.Context, up kit.Update) (job func(context.Context), ok bool) {
	msg := up.Message
	if msg == nil {
		return nil, false
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return nil, false
	}
	word, rest, _ := strings.Cut(text[1:], " ")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	word = strings.ToLower(word)
	rest = strings.TrimSpace(rest)

	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	r.mu.RLock()
	cmd, found := r.cmds[word]
	r.mu.RUnlock()
	if !found {
		if !msg.ChatType.IsGroup() {
			_, _ = r.sender.SendText(ctx, chat, "unknown command. try /help", nil)
		}
		return nil, false
	}
	if cmd.OwnerOnly && !isOwner(msg.FromID, r.ownersSnapshot()) {
		_, _ = r.sender.SendText(ctx, chat, "unauthorized", nil)
		return nil, false
	}

	kind := storage.ChatPrivate
	if msg.ChatType.IsGroup() {
		kind = storage.ChatGroup
	}
	rid := uuid.NewString()
	req := &Request{
		Message:  msg,
		Chat:     chat,
		ChatKind: kind,
		FromID:   msg.FromID,
		Command:  cmd.Name,
		Args:     strings.Fields(rest),
		RawArgs:  rest,
		ReqID:    rid,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
		sender: r.sender,
	}
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = r.opt.DefaultTimeout
	}
	final := Chain(cmd.Handle,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(timeout),
	)
	return func(c context.Context) { _ = final(c, req) }, true
}

// HandleUpdate runs the command for up on the calling goroutine.
func (r *Router) HandleUpdate(ctx context.Context, up kit.Update) {
	if job, ok := r.prepare(ctx, up); ok {
		job(ctx)
	}
}

// DispatchLoop consumes updates until ctx is done or updates is closed,
// running commands on a fixed worker pool. A full queue is answered with
// "busy".
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx,
		rtsup.WithLogger(r.log),
		rtsup.WithCancelOnError(false),
	)
	for i := 0; i < r.opt.Workers; i++ {
		sup.GoRestart("command.worker."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-r.jobs:
					job(c)
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithStopOnCleanExit(true),
		)
	}
	r.log.Info("command dispatcher started", logx.Int("workers", r.opt.Workers), logx.Int("queue_cap", cap(r.jobs)))

	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			job, ok := r.prepare(ctx, up)
			if !ok {
				continue
			}
			select {
			case r.jobs <- job:
			default:
				if up.Message != nil {
					_, _ = r.sender.SendText(ctx, kit.ChatTarget{ChatID: up.Message.ChatID, ThreadID: up.Message.ThreadID}, "busy, try again", nil)
				}
			}
		}
	}
}

func isOwner(id int64, owners []int64) bool {
	for _, o := range owners {
		if o == id {
			return true
		}
	}
	return false
}
