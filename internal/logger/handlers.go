package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"
)

// newTextHandler builds the console handler. Console lines carry no timestamp;
// journald or the container runtime adds one.
func newTextHandler(w io.Writer, level slog.Level, tz *time.Location) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				return slog.Attr{}
			case slog.LevelKey:
				return slog.String(slog.LevelKey, levelName(a.Value.Any()))
			}
			if a.Value.Kind() == slog.KindTime {
				return slog.Time(a.Key, a.Value.Time().In(tz))
			}
			return a
		},
	})
}

// newJSONHandler builds the machine-readable file handler.
func newJSONHandler(w io.Writer, level slog.Level, tz *time.Location) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch {
			case a.Key == slog.LevelKey:
				return slog.String(slog.LevelKey, levelName(a.Value.Any()))
			case a.Value.Kind() == slog.KindTime:
				return slog.Time(a.Key, a.Value.Time().In(tz))
			}
			return a
		},
	})
}

// levelName renders trace level as TRACE instead of DEBUG-4.
func levelName(v any) string {
	level, ok := v.(slog.Level)
	if !ok {
		return strings.ToUpper(slog.AnyValue(v).String())
	}
	if level <= traceLevelValue {
		return "TRACE"
	}
	name := level.String()
	if len(name) > maxLevelWidth {
		name = name[:maxLevelWidth]
	}
	return name
}

// multiHandler fans a record out to several handlers
type multiHandler struct {
	handlers []slog.Handler
}

func newMultiHandler(handlers ...slog.Handler) slog.Handler {
	live := make([]slog.Handler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			live = append(live, h)
		}
	}
	if len(live) == 1 {
		return live[0]
	}
	return &multiHandler{handlers: live}
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

//nolint:gocritic // slog.Handler interface requires record by value
func (h *multiHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}
