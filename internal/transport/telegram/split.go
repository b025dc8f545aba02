package telegram

import "strings"

// TextLimit is the chunk size used for outgoing messages, below Telegram's
// 4096 character cap.
const TextLimit = 4000

// SplitText cuts s into chunks of at most limit runes. A chunk ends at the
// last newline in its window when that keeps it at least a third full. In
// HTML mode a chunk never ends inside an unterminated tag.
func SplitText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = TextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	html := strings.EqualFold(parseMode, "HTML")

	var out []string
	for start := 0; start < len(rs); {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			end = newlineCut(rs, start, end, limit)
			if html {
				end = tagCut(rs, start, end)
			}
		}
		if chunk := strings.TrimRight(string(rs[start:end]), "\n"); chunk != "" {
			out = append(out, chunk)
		}
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

func newlineCut(rs []rune, start, end, limit int) int {
	for i := end - 1; i > start; i-- {
		if rs[i] != '\n' {
			continue
		}
		if i-start >= limit/3 {
			return i + 1
		}
		break
	}
	return end
}

func tagCut(rs []rune, start, end int) int {
	open, closed := -1, -1
	for i := start; i < end; i++ {
		switch rs[i] {
		case '<':
			open = i
		case '>':
			closed = i
		}
	}
	if open > closed && open > start+1 {
		return open
	}
	return end
}
