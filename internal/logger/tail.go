package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultTailSize is the number of recent lines kept when the config leaves it unset.
const DefaultTailSize = 64

// tailBuffer is the ring shared by a TailHandler and its derived handlers.
type tailBuffer struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

func (b *tailBuffer) add(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines[b.next] = line
	b.next = (b.next + 1) % len(b.lines)
	if b.next == 0 {
		b.full = true
	}
}

func (b *tailBuffer) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.lines)
	b.next = 0
	b.full = false
}

// recent returns up to n lines, oldest first.
func (b *tailBuffer) recent(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := b.next
	if b.full {
		count = len(b.lines)
	}
	if n <= 0 || n > count {
		n = count
	}

	out := make([]string, 0, n)
	start := (b.next - n + len(b.lines)) % len(b.lines)
	for i := range n {
		out = append(out, b.lines[(start+i)%len(b.lines)])
	}
	return out
}

// TailHandler keeps the most recent warning and error lines in memory.
type TailHandler struct {
	buf   *tailBuffer
	level slog.Level
	tz    *time.Location
	attrs []slog.Attr
}

// NewTailHandler creates a tail retaining size lines at or above level.
func NewTailHandler(size int, level slog.Level, tz *time.Location) *TailHandler {
	if size <= 0 {
		size = DefaultTailSize
	}
	if tz == nil {
		tz = time.Local
	}
	return &TailHandler{
		buf:   &tailBuffer{lines: make([]string, size)},
		level: level,
		tz:    tz,
	}
}

// Recent returns up to n retained lines, oldest first. n <= 0 returns all of them.
func (h *TailHandler) Recent(n int) []string {
	return h.buf.recent(n)
}

// Reset discards the retained lines.
func (h *TailHandler) Reset() {
	h.buf.reset()
}

func (h *TailHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

//nolint:gocritic // slog.Handler interface requires record by value
func (h *TailHandler) Handle(_ context.Context, record slog.Record) error {
	module := ""
	var extra strings.Builder

	appendAttr := func(a slog.Attr) bool {
		if a.Key == moduleKey {
			module = a.Value.String()
			return true
		}
		if a.Key == errorKey {
			fmt.Fprintf(&extra, " (%s)", a.Value.String())
		}
		return true
	}
	for _, a := range h.attrs {
		appendAttr(a)
	}
	record.Attrs(appendAttr)

	line := fmt.Sprintf("%s %s", record.Time.In(h.tz).Format(time.TimeOnly), levelName(record.Level))
	if module != "" {
		line += " " + module + ":"
	}
	h.buf.add(line + " " + record.Message + extra.String())
	return nil
}

func (h *TailHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &next
}

// WithGroup is a no-op; grouped attributes are not rendered in the tail.
func (h *TailHandler) WithGroup(string) slog.Handler {
	return h
}
