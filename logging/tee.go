package logging

import (
	"context"
	"errors"
	"log/slog"
)

// sink 一个输出目标；min 非空时在全局级别之外再按该级别过滤.
type sink struct {
	handler slog.Handler
	min     slog.Leveler
}

func (s sink) accepts(ctx context.Context, l slog.Level) bool {
	if s.min != nil && l < s.min.Level() {
		return false
	}
	return s.handler.Enabled(ctx, l)
}

// teeHandler 把一条记录写到所有接受该级别的 sink，单个目标失败不影响其余目标.
// 典型用法：文件收全量 JSON，控制台只看 warn 以上.
type teeHandler struct {
	sinks []sink
}

func newTeeHandler(sinks ...sink) slog.Handler {
	return &teeHandler{sinks: sinks}
}

func (h *teeHandler) Enabled(ctx context.Context, l slog.Level) bool {
	for _, s := range h.sinks {
		if s.accepts(ctx, l) {
			return true
		}
	}
	return false
}

func (h *teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, s := range h.sinks {
		if !s.accepts(ctx, record.Level) {
			continue
		}
		if err := s.handler.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *teeHandler) derive(fn func(slog.Handler) slog.Handler) slog.Handler {
	sinks := make([]sink, len(h.sinks))
	for i, s := range h.sinks {
		sinks[i] = sink{handler: fn(s.handler), min: s.min}
	}
	return &teeHandler{sinks: sinks}
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.derive(func(next slog.Handler) slog.Handler { return next.WithAttrs(attrs) })
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	return h.derive(func(next slog.Handler) slog.Handler { return next.WithGroup(name) })
}
