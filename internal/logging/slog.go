package logging

import (
	"context"
	"log/slog"

	"go-tablelogger/internal/models"
)

// SlogHandler feeds slog records into the table sink. WithAttrs adds a map scope,
// WithGroup prefixes later keys with "group.".
type SlogHandler struct {
	sink     RecordSink
	nodeName string
	name     string
	level    slog.Leveler
	scopes   []models.Scope
	prefix   string
}

// NewSlogHandler returns a handler storing records at or above level under logger name.
func NewSlogHandler(sink RecordSink, nodeName, name string, level slog.Leveler) *SlogHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &SlogHandler{sink: sink, nodeName: nodeName, name: name, level: level}
}

var _ slog.Handler = (*SlogHandler)(nil)

func (h *SlogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *SlogHandler) Handle(_ context.Context, r slog.Record) error {
	rec := models.LogRecord{
		EventTime:      r.Time,
		NodeName:       h.nodeName,
		LogLevel:       slogOrdinal(r.Level),
		LogLevelString: r.Level.String(),
		LogName:        h.name,
		Message:        r.Message,
		Scopes:         append([]models.Scope(nil), h.scopes...),
	}

	var pairs []models.KeyValue
	r.Attrs(func(a slog.Attr) bool {
		pairs = h.collect(&rec, pairs, h.prefix, a)
		return true
	})
	if len(pairs) > 0 {
		rec.Scopes = append(rec.Scopes, models.MapScope(pairs...))
	}
	h.sink.Enqueue(rec)
	return nil
}

func (h *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := *h
	h2.scopes = append([]models.Scope(nil), h.scopes...)
	var pairs []models.KeyValue
	for _, a := range attrs {
		pairs = h.collect(nil, pairs, h.prefix, a)
	}
	if len(pairs) > 0 {
		h2.scopes = append(h2.scopes, models.MapScope(pairs...))
	}
	return &h2
}

func (h *SlogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.prefix = h.prefix + name + "."
	return &h2
}

// collect flattens a into pairs. Errors and event ids on a record are lifted into rec.
func (h *SlogHandler) collect(rec *models.LogRecord, pairs []models.KeyValue, prefix string, a slog.Attr) []models.KeyValue {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return pairs
	}
	if a.Value.Kind() == slog.KindGroup {
		inner := prefix
		if a.Key != "" {
			inner = prefix + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			pairs = h.collect(rec, pairs, inner, ga)
		}
		return pairs
	}
	if rec != nil && prefix == h.prefix {
		if err, ok := a.Value.Any().(error); ok {
			rec.Exception = err
			return pairs
		}
		if a.Key == EventIDKey && a.Value.Kind() == slog.KindInt64 {
			rec.EventID = int(a.Value.Int64())
			return pairs
		}
	}
	return append(pairs, models.KeyValue{Key: prefix + a.Key, Value: slogValue(a.Value)})
}

func slogValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time()
	default:
		return v.Any()
	}
}

// slogOrdinal maps slog levels onto the stored severity scale used by LevelOrdinal.
func slogOrdinal(level slog.Level) int {
	switch {
	case level < slog.LevelInfo:
		return 1
	case level < slog.LevelWarn:
		return 2
	case level < slog.LevelError:
		return 3
	default:
		return 4
	}
}
