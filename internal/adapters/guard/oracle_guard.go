// Package guard wraps an extraction oracle with rate limiting, per-call
// timeouts and retries.
package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/mikey/llm-freight-intake/internal/config"
	"github.com/mikey/llm-freight-intake/internal/core"
	"github.com/mikey/llm-freight-intake/internal/metrics"
	"github.com/mikey/llm-freight-intake/internal/resilience"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// GuardedOracle decorates a core.ExtractionOracle
type GuardedOracle struct {
	inner    core.ExtractionOracle
	provider string
	limiter  *rate.Limiter
	retry    resilience.RetryConfig
	timeout  time.Duration
	logger   *zap.Logger
}

// NewGuardedOracle wraps inner. A zero RateLimit disables limiting.
func NewGuardedOracle(inner core.ExtractionOracle, provider string, cfg config.OracleGuardConfig, logger *zap.Logger) *GuardedOracle {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	retry := resilience.DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialBackoff > 0 {
		retry.InitialBackoff = cfg.InitialBackoff
	}
	retry.OnRetry = resilience.RetryLogger(logger, provider)

	return &GuardedOracle{
		inner:    inner,
		provider: provider,
		limiter:  rate.NewLimiter(limit, burst),
		retry:    retry,
		timeout:  cfg.Timeout,
		logger:   logger,
	}
}

// Extract waits for the limiter and calls the wrapped oracle, retrying
// transient failures
func (g *GuardedOracle) Extract(ctx context.Context, req core.ExtractionRequest) (*core.ExtractionResult, error) {
	start := time.Now()
	res, err := resilience.Do(ctx, g.retry, func(ctx context.Context) (*core.ExtractionResult, error) {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter error: %w", err)
		}
		if g.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}
		return g.inner.Extract(ctx, req)
	})
	metrics.RecordOracleCall(g.provider, err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%s extraction failed: %w", g.provider, err)
	}
	return res, nil
}

// Close closes the wrapped oracle when it holds resources
func (g *GuardedOracle) Close() error {
	if c, ok := g.inner.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
