package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	// maxRateLimitRetries bounds consecutive rate-limit backoffs before the
	// call is declared fatal for the whole run.
	maxRateLimitRetries = 5
	maxBackoff          = 300 * time.Second
	retryDelay          = 2 * time.Second
)

// Gateway wraps a Client with response sanitation and retry handling.
// Transient errors get a small fixed number of retries; rate-limit errors
// get exponential backoff and, if they persist, surface as ErrRateLimited
// so the caller can stop the run instead of burning quota.
type Gateway struct {
	client     Client
	maxRetries int
	logger     *slog.Logger
	sleep      func(time.Duration)
}

// NewGateway wraps client. maxRetries covers non-rate-limit failures per
// call.
func NewGateway(client Client, maxRetries int) *Gateway {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Gateway{
		client:     client,
		maxRetries: maxRetries,
		logger:     slog.Default().With("component", "llm"),
		sleep:      time.Sleep,
	}
}

// Call sends a system + user prompt pair and returns the sanitized
// response text. When schema is non-nil the request asks for
// schema-constrained JSON output.
func (g *Gateway) Call(ctx context.Context, system, user string, schema map[string]any) (string, error) {
	messages := []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
	opts := &Options{Temperature: 0.1}
	if schema != nil {
		opts.Schema = schema
		opts.SchemaName = "cti_extraction"
	}

	rateLimitHits := 0
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		raw, err := g.client.Chat(ctx, messages, opts)
		if err == nil {
			return SanitizeJSON(raw), nil
		}

		if IsRateLimit(err) {
			rateLimitHits++
			if rateLimitHits > maxRateLimitRetries {
				g.logger.Error("rate limit persists, giving up", "hits", rateLimitHits)
				return "", fmt.Errorf("%w: %v", ErrRateLimited, err)
			}
			delay := backoffDelay(rateLimitHits)
			g.logger.Warn("rate limited, backing off", "attempt", rateLimitHits, "delay", delay)
			g.sleep(delay)
			continue
		}

		rateLimitHits = 0
		attempt++
		if attempt > g.maxRetries {
			return "", fmt.Errorf("llm call failed after %d retries: %w", g.maxRetries, err)
		}
		g.logger.Warn("llm call failed, retrying", "attempt", attempt, "error", err)
		g.sleep(retryDelay)
	}
}

// backoffDelay is 2^k seconds capped at maxBackoff.
func backoffDelay(k int) time.Duration {
	if k > 8 {
		k = 8
	}
	d := time.Duration(1<<uint(k)) * time.Second
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}
