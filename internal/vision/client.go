// Package vision turns images into text descriptions by calling a
// vision-capable model, with bounded retry and a one-shot fallback model.
package vision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/af-corp/iris-gateway/internal/config"
	"github.com/af-corp/iris-gateway/internal/ratelimit"
	"github.com/af-corp/iris-gateway/internal/telemetry"
	"github.com/af-corp/iris-gateway/internal/types"
)

// ErrExhausted means every primary attempt and the fallback attempt failed
// for one image. Callers degrade to a placeholder description; the request
// as a whole keeps going.
var ErrExhausted = errors.New("description generation exhausted")

// ErrNoVisionModel means no vision model is configured at all. This is the
// one failure the pipeline surfaces to the caller.
var ErrNoVisionModel = errors.New("no vision model configured")

// Invoker is the outbound model-invocation capability: call a model by id
// with a prompt and one image, get generated text back.
type Invoker interface {
	Describe(ctx context.Context, model, prompt string, img types.ImageRef) (string, error)
}

// Notifier receives progress notices during one generation. Implementations
// must tolerate being called from the generating goroutine.
type Notifier interface {
	GenerationRetry(model string, attempt, max int)
	GenerationFallback(from, to string)
}

// Description is a successful generation result.
type Description struct {
	Text     string
	Model    string // model that actually produced the text
	Attempts int
	Fallback bool // true when the fallback model produced it
}

// Client invokes the configured vision models. Stateless between calls
// except for metrics.
type Client struct {
	invoker Invoker
	limiter *ratelimit.Limiter
	metrics *telemetry.Metrics
	logger  *slog.Logger

	primary   string
	fallback  string
	prompt    string
	maxRetry  int
	backoff   time.Duration
	timeout   time.Duration
	rateLimit config.RateLimitConfig
}

func NewClient(invoker Invoker, limiter *ratelimit.Limiter, metrics *telemetry.Metrics, cfg config.EnhanceConfig, logger *slog.Logger) *Client {
	return &Client{
		invoker:   invoker,
		limiter:   limiter,
		metrics:   metrics,
		logger:    logger,
		primary:   cfg.VisionModelID,
		fallback:  cfg.FallbackVisionModelID,
		prompt:    cfg.ImageDescriptionPrompt,
		maxRetry:  cfg.MaxRetryCount,
		backoff:   cfg.RetryBackoff,
		timeout:   cfg.VisionTimeout,
		rateLimit: cfg.RateLimit,
	}
}

// Prompt returns the description prompt this client sends. The cache key
// incorporates it so prompt changes never serve stale descriptions.
func (c *Client) Prompt() string { return c.prompt }

// Configured reports whether any vision model path exists.
func (c *Client) Configured() bool { return c.primary != "" || c.fallback != "" }

// Generate describes one image. The primary model is attempted up to
// max_retry_count times with exponential backoff; after that the fallback
// model gets exactly one attempt. Total failure returns ErrExhausted.
// notify may be nil.
func (c *Client) Generate(ctx context.Context, img types.ImageRef, notify Notifier) (Description, error) {
	if !c.Configured() {
		return Description{}, ErrNoVisionModel
	}

	attempts := 0
	var lastErr error

	for attempt := 1; attempt <= c.maxRetry && c.primary != ""; attempt++ {
		if attempt > 1 {
			if notify != nil {
				notify.GenerationRetry(c.primary, attempt, c.maxRetry)
			}
			if err := c.sleep(ctx, c.backoffFor(attempt)); err != nil {
				return Description{}, err
			}
		}
		attempts++
		text, err := c.invoke(ctx, c.primary, img)
		if err == nil {
			return Description{Text: text, Model: c.primary, Attempts: attempts}, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return Description{}, ctx.Err()
		}
		c.logger.Warn("vision generation attempt failed",
			"model", c.primary, "attempt", attempt, "max", c.maxRetry,
			"image", img.ID, "error", err)
	}

	if c.fallback != "" && c.fallback != c.primary {
		if notify != nil {
			notify.GenerationFallback(c.primary, c.fallback)
		}
		attempts++
		text, err := c.invoke(ctx, c.fallback, img)
		if err == nil {
			return Description{Text: text, Model: c.fallback, Attempts: attempts, Fallback: true}, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return Description{}, ctx.Err()
		}
		c.logger.Warn("fallback vision generation failed",
			"model", c.fallback, "image", img.ID, "error", err)
	}

	if lastErr != nil {
		return Description{}, fmt.Errorf("%w: %s", ErrExhausted, lastErr)
	}
	return Description{}, ErrExhausted
}

func (c *Client) invoke(ctx context.Context, model string, img types.ImageRef) (string, error) {
	if c.limiter != nil && c.rateLimit.Limit > 0 {
		res, _ := c.limiter.Allow(ctx, model, c.rateLimit.Limit, c.rateLimit.Window)
		if !res.Allowed {
			// Soft throttle: wait out the window estimate, then proceed.
			if err := c.sleep(ctx, res.RetryAfter); err != nil {
				return "", err
			}
		}
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	text, err := c.invoker.Describe(callCtx, model, c.prompt, img)
	if c.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		c.metrics.RecordGenerationAttempt(model, outcome)
	}
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", errors.New("vision model returned empty description")
	}
	return text, nil
}

// backoffFor returns the delay before the given attempt (2nd attempt waits
// one backoff, 3rd waits two, doubling each step).
func (c *Client) backoffFor(attempt int) time.Duration {
	d := c.backoff
	for i := 2; i < attempt; i++ {
		d *= 2
	}
	return d
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
