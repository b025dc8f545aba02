package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	kit "telepal/internal/transport"
	logx "telepal/pkg/logx"
)

type captureSender struct {
	to   kit.ChatTarget
	text string
	opt  *kit.SendOptions
	err  error
}

func (c *captureSender) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	c.to, c.text, c.opt = to, text, opt
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 1}, c.err
}

func TestNotifierEscapesPayload(t *testing.T) {
	t.Parallel()
	s := &captureSender{}
	n := NewNotifier(s)
	if err := n.Send(context.Background(), 42, "pay <bills> & rent"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	want := "⏰ <b>Reminder</b>\n\npay &lt;bills&gt; &amp; rent"
	if s.text != want || s.to.ChatID != 42 || s.opt.ParseMode != "HTML" {
		t.Fatalf("sent %q to %d (%+v)", s.text, s.to.ChatID, s.opt)
	}
}

func TestNotifierReturnsSendError(t *testing.T) {
	t.Parallel()
	s := &captureSender{err: errors.New("forbidden: bot was blocked by the user")}
	if err := NewNotifier(s).Send(context.Background(), 1, "x"); err == nil {
		t.Fatal("expected error")
	}
}

type fakePoster struct {
	texts []string
	block chan struct{}
}

func (f *fakePoster) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	if f.block != nil {
		<-f.block
	}
	f.texts = append(f.texts, what.(string))
	return &tele.Message{ID: len(f.texts)}, nil
}

func offlineAdapter(t *testing.T, p poster, rps float64) *Adapter {
	t.Helper()
	a, err := New(Config{Token: "123:test", Offline: true, RatePerSec: rps}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.post = p
	return a
}

func TestSendTextChunks(t *testing.T) {
	t.Parallel()
	p := &fakePoster{}
	a := offlineAdapter(t, p, 1000)
	ref, err := a.SendText(context.Background(), kit.ChatTarget{ChatID: 9}, strings.Repeat("x", TextLimit+10), nil)
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if len(p.texts) != 2 || ref.MessageID != 1 || ref.ChatID != 9 {
		t.Fatalf("texts=%d ref=%+v", len(p.texts), ref)
	}
}

func TestSendTextHonoursDeadline(t *testing.T) {
	t.Parallel()
	p := &fakePoster{block: make(chan struct{})}
	defer close(p.block)
	a := offlineAdapter(t, p, 1000)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := a.SendText(ctx, kit.ChatTarget{ChatID: 1}, "hi", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestSendTextWaitsOnLimiter(t *testing.T) {
	t.Parallel()
	a := offlineAdapter(t, &fakePoster{}, 1)
	a.limiter = rate.NewLimiter(rate.Every(time.Hour), 1)
	if _, err := a.SendText(context.Background(), kit.ChatTarget{ChatID: 1}, "first", nil); err != nil {
		t.Fatalf("first send: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := a.SendText(ctx, kit.ChatTarget{ChatID: 1}, "second", nil); err == nil {
		t.Fatal("second send should fail waiting for a token")
	}
}
