// Package logging carries validation correlation IDs through contexts so
// every log line can be traced back to a model, element and constraint.
package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	modelIDKey ctxKey = iota
	elementIDKey
	constraintIDKey
)

// WithModelID returns a context with the model ID set.
func WithModelID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, modelIDKey, id)
}

// WithElementID returns a context with the element ID set.
func WithElementID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, elementIDKey, id)
}

// WithConstraintID returns a context with the constraint ID set.
func WithConstraintID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, constraintIDKey, id)
}

// ModelID extracts the model ID from the context, or "" if absent.
func ModelID(ctx context.Context) string {
	v, _ := ctx.Value(modelIDKey).(string)
	return v
}

// ElementID extracts the element ID from the context, or "" if absent.
func ElementID(ctx context.Context) string {
	v, _ := ctx.Value(elementIDKey).(string)
	return v
}

// ConstraintID extracts the constraint ID from the context, or "" if absent.
func ConstraintID(ctx context.Context) string {
	v, _ := ctx.Value(constraintIDKey).(string)
	return v
}

// WithIDs sets all three correlation IDs on the context at once.
func WithIDs(ctx context.Context, modelID, elementID, constraintID string) context.Context {
	ctx = WithModelID(ctx, modelID)
	ctx = WithElementID(ctx, elementID)
	ctx = WithConstraintID(ctx, constraintID)
	return ctx
}

// LogWith returns a logger enriched with correlation IDs from the context.
// Only non-empty values are added as attributes.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if id := ModelID(ctx); id != "" {
		logger = logger.With(slog.String("model_id", id))
	}
	if id := ElementID(ctx); id != "" {
		logger = logger.With(slog.String("element_id", id))
	}
	if id := ConstraintID(ctx); id != "" {
		logger = logger.With(slog.String("constraint_id", id))
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation IDs from the context into every log record.
// Use with slog.New(NewCorrelationHandler(inner)) so callers can use
// logger.InfoContext(ctx, ...) and IDs appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	if v := ModelID(ctx); v != "" {
		r.AddAttrs(slog.String("model_id", v))
	}
	if v := ElementID(ctx); v != "" {
		r.AddAttrs(slog.String("element_id", v))
	}
	if v := ConstraintID(ctx); v != "" {
		r.AddAttrs(slog.String("constraint_id", v))
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
