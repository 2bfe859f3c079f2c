package logging

import (
	"context"
	stderrors "errors"
	"log/slog"
)

// FallbackHandler sends every record to a primary handler and, when that write
// fails, re-emits the record to a fallback handler with the failure attached.
type FallbackHandler struct {
	primary  slog.Handler
	fallback slog.Handler
}

// NewFallbackHandler pairs a primary handler with a fallback.
func NewFallbackHandler(primary, fallback slog.Handler) *FallbackHandler {
	return &FallbackHandler{primary: primary, fallback: fallback}
}

// Enabled reports the primary handler's decision.
func (h *FallbackHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.primary.Enabled(ctx, level)
}

// Handle writes to the primary handler and falls back on failure.
func (h *FallbackHandler) Handle(ctx context.Context, r slog.Record) error {
	err := h.primary.Handle(ctx, r.Clone())
	if err == nil {
		return nil
	}

	fr := r.Clone()
	fr.AddAttrs(slog.String("log_error", err.Error()))
	if ferr := h.fallback.Handle(ctx, fr); ferr != nil {
		return stderrors.Join(err, ferr)
	}
	return nil
}

// WithAttrs applies attrs to both handlers.
func (h *FallbackHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &FallbackHandler{
		primary:  h.primary.WithAttrs(attrs),
		fallback: h.fallback.WithAttrs(attrs),
	}
}

// WithGroup applies the group to both handlers.
func (h *FallbackHandler) WithGroup(name string) slog.Handler {
	return &FallbackHandler{
		primary:  h.primary.WithGroup(name),
		fallback: h.fallback.WithGroup(name),
	}
}
