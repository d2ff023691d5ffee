package pipeline

import (
	"context"
	"fmt"
	"log/slog"
)

// StatusEmitter receives human-readable progress notices while a request is
// being enhanced ("describing image 2 of 3"). Implementations must be safe
// for concurrent use and should never block; the pipeline works fine with
// the no-op emitter.
type StatusEmitter interface {
	Status(ctx context.Context, message string, done bool)
}

// NopEmitter discards all notices.
type NopEmitter struct{}

func (NopEmitter) Status(context.Context, string, bool) {}

// LogEmitter writes notices to the structured log. This is the default
// status channel when no richer transport is wired.
type LogEmitter struct {
	Logger *slog.Logger
}

func (e LogEmitter) Status(_ context.Context, message string, done bool) {
	e.Logger.Info("pipeline status", "message", message, "done", done)
}

// statusNotifier adapts the emitter to the vision client's progress hooks.
type statusNotifier struct {
	ctx     context.Context
	emitter StatusEmitter
	imageNo int
	total   int
}

func (n *statusNotifier) GenerationRetry(model string, attempt, max int) {
	n.emitter.Status(n.ctx, fmt.Sprintf("image %d/%d: retrying with %s (attempt %d/%d)",
		n.imageNo, n.total, model, attempt, max), false)
}

func (n *statusNotifier) GenerationFallback(from, to string) {
	n.emitter.Status(n.ctx, fmt.Sprintf("image %d/%d: %s failed, trying fallback %s",
		n.imageNo, n.total, from, to), false)
}
