package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// LLM is a text completion backend that is asked to reply in JSON.
type LLM interface {
	Name() string
	Complete(ctx context.Context, system, prompt string) (string, error)
	Close() error
}

// Middleware decorates an LLM with a cross-cutting concern.
type Middleware func(LLM) LLM

// Wrap applies middlewares in left-to-right order: Wrap(inner, A, B)
// yields A(B(inner)).
func Wrap(inner LLM, mws ...Middleware) LLM {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// RateLimit caps the request rate. rps <= 0 disables limiting.
func RateLimit(rps float64, burst int) Middleware {
	return func(next LLM) LLM {
		if rps <= 0 {
			return next
		}
		if burst < 1 {
			burst = 1
		}
		return &rateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
	}
}

type rateLimited struct {
	next    LLM
	limiter *rate.Limiter
}

func (c *rateLimited) Name() string { return c.next.Name() }
func (c *rateLimited) Close() error { return c.next.Close() }
func (c *rateLimited) Complete(ctx context.Context, system, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	return c.next.Complete(ctx, system, prompt)
}

// Retry retries failed completions with exponential backoff. Permanent
// errors and context cancellation are not retried.
func Retry(maxRetries int, baseBackoff time.Duration) Middleware {
	return func(next LLM) LLM {
		return &retrying{next: next, maxRetries: maxRetries, base: baseBackoff}
	}
}

type retrying struct {
	next       LLM
	maxRetries int
	base       time.Duration
}

func (c *retrying) Name() string { return c.next.Name() }
func (c *retrying) Close() error { return c.next.Close() }
func (c *retrying) Complete(ctx context.Context, system, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.base * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		out, err := c.next.Complete(ctx, system, prompt)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if IsPermanent(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
	}
	return "", fmt.Errorf("after %d retries: %w", c.maxRetries, lastErr)
}

// Logging logs each completion with its duration.
func Logging(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next LLM) LLM {
		return &logged{next: next, logger: logger.Named("llm")}
	}
}

type logged struct {
	next   LLM
	logger *zap.Logger
}

func (c *logged) Name() string { return c.next.Name() }
func (c *logged) Close() error { return c.next.Close() }
func (c *logged) Complete(ctx context.Context, system, prompt string) (string, error) {
	start := time.Now()
	out, err := c.next.Complete(ctx, system, prompt)
	fields := []zap.Field{
		zap.String("backend", c.next.Name()),
		zap.Int("prompt_bytes", len(system)+len(prompt)),
		zap.Int("reply_bytes", len(out)),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		c.logger.Warn("completion failed", append(fields, zap.Error(err))...)
		return "", err
	}
	c.logger.Debug("completion", fields...)
	return out, nil
}

// Redactor removes sensitive text. It returns the cleaned text and the
// names of the rules that matched.
type Redactor interface {
	Redact(content string) (string, []string, error)
}

// Scrub redacts the prompt before it reaches next. The system prompt is
// fixed text and passes through untouched. A redactor failure fails the
// call rather than sending the raw prompt.
func Scrub(r Redactor, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next LLM) LLM {
		if r == nil {
			return next
		}
		return &scrubbed{next: next, redactor: r, logger: logger.Named("llm")}
	}
}

type scrubbed struct {
	next     LLM
	redactor Redactor
	logger   *zap.Logger
}

func (c *scrubbed) Name() string { return c.next.Name() }
func (c *scrubbed) Close() error { return c.next.Close() }
func (c *scrubbed) Complete(ctx context.Context, system, prompt string) (string, error) {
	clean, rules, err := c.redactor.Redact(prompt)
	if err != nil {
		return "", &PermanentError{Err: fmt.Errorf("scrubbing prompt: %w", err)}
	}
	if len(rules) > 0 {
		c.logger.Warn("redacted secrets from prompt",
			zap.String("backend", c.next.Name()),
			zap.Strings("rules", rules),
		)
	}
	return c.next.Complete(ctx, system, clean)
}
