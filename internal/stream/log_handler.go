package stream

import (
	"context"
	"log/slog"
	"strings"
)

// LogHandler returns a slog.Handler that mirrors records at or above level to
// stream clients as log events. Combine it with logging.TeeLogger.
func (h *Hub) LogHandler(level slog.Leveler) slog.Handler {
	if level == nil {
		level = slog.LevelWarn
	}
	return &logHandler{hub: h, level: level}
}

type logHandler struct {
	hub    *Hub
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

func (l *logHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= l.level.Level()
}

func (l *logHandler) Handle(_ context.Context, record slog.Record) error {
	fields := make(map[string]any, len(l.attrs)+record.NumAttrs())
	for _, attr := range l.attrs {
		addField(fields, nil, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		addField(fields, l.groups, attr)
		return true
	})
	if len(fields) == 0 {
		fields = nil
	}
	l.hub.broadcast(Event{
		Type:    EventLog,
		Level:   strings.ToLower(record.Level.String()),
		Message: record.Message,
		Fields:  fields,
	})
	return nil
}

func (l *logHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *l
	clone.attrs = append([]slog.Attr(nil), l.attrs...)
	for _, attr := range attrs {
		if len(l.groups) > 0 {
			attr.Key = strings.Join(l.groups, ".") + "." + attr.Key
		}
		clone.attrs = append(clone.attrs, attr)
	}
	return &clone
}

func (l *logHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return l
	}
	clone := *l
	clone.groups = append(append([]string(nil), l.groups...), name)
	return &clone
}

func addField(dst map[string]any, groups []string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}
	key := attr.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	if attr.Value.Kind() == slog.KindGroup {
		nested := groups
		if attr.Key != "" {
			nested = append(append([]string(nil), groups...), attr.Key)
		}
		for _, inner := range attr.Value.Group() {
			addField(dst, nested, inner)
		}
		return
	}
	switch attr.Value.Kind() {
	case slog.KindAny:
		if err, ok := attr.Value.Any().(error); ok {
			dst[key] = err.Error()
			return
		}
		dst[key] = attr.Value.Any()
	default:
		dst[key] = attr.Value.String()
	}
}
