package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	tgMaxText  = 3500
	tgMaxField = 600
	tgMaxStack = 900
	tgSendWait = 10 * time.Second
)

func (s *Service) startTelegramWorker() {
	ctx, cancel := context.WithCancel(context.Background())
	s.tgCancel = cancel
	s.tgWG.Add(1)
	go func() {
		defer s.tgWG.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case it := <-s.tgQueue:
				sctx, c := context.WithTimeout(ctx, tgSendWait)
				_ = s.sender.SendLog(sctx, it.chatID, it.threadID, it.text)
				c()
			}
		}
	}()
}

// telegramWriter is a zerolog.LevelWriter that never blocks the caller.
type telegramWriter struct{ svc *Service }

func (w *telegramWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.InfoLevel, p)
}

func (w *telegramWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	s := w.svc
	s.mu.Lock()
	chatID := s.cfg.Telegram.ChatID
	threadID := s.cfg.Telegram.ThreadID
	lim := s.limiter
	minLevel := s.minLevel
	s.mu.Unlock()

	if chatID == 0 || level < minLevel || lim == nil || !lim.Allow() {
		return len(p), nil
	}
	text := renderTelegram(p)
	if text == "" {
		return len(p), nil
	}
	select {
	case s.tgQueue <- tgItem{chatID: chatID, threadID: threadID, text: text}:
	default:
	}
	return len(p), nil
}

// renderTelegram turns one zerolog JSON line into a compact plain-text block.
func renderTelegram(p []byte) string {
	var m map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(p))), &m); err != nil {
		return truncate(strings.TrimSpace(string(p)), tgMaxText)
	}

	var b strings.Builder
	if lvl, _ := m["level"].(string); lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	msg, _ := m[zerolog.MessageFieldName].(string)
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := fmt.Sprint(m[k])
		if k == "stack" {
			b.WriteString("\n- stack=\n" + truncate(v, tgMaxStack))
			continue
		}
		b.WriteString("\n- " + k + "=" + truncate(v, tgMaxField))
	}
	return truncate(b.String(), tgMaxText)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n < 10 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
