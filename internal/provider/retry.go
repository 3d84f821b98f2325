package provider

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/paperbtc/turntrader/internal/models"
)

// RetryConfig bounds the retry loop around a candle fetch.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig is the production retry policy.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
}

// RetryProvider wraps a Provider with bounded retries on transient errors.
// Permanent errors (4xx other than 429, malformed responses) surface
// immediately.
type RetryProvider struct {
	next   Provider
	logger *logrus.Logger
	config RetryConfig
}

// NewRetryProvider wraps the given provider.
func NewRetryProvider(next Provider, logger *logrus.Logger, config ...RetryConfig) *RetryProvider {
	cfg := DefaultRetryConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	return &RetryProvider{
		next:   next,
		logger: logger,
		config: cfg,
	}
}

// Fetch retries the wrapped fetch with exponential backoff and jitter.
func (r *RetryProvider) Fetch(ctx context.Context, start, end time.Time, interval models.Interval) ([]models.Candle, error) {
	var lastErr error
	backoff := r.config.InitialBackoff

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch canceled: %w", ctx.Err())
		}

		candles, err := r.next.Fetch(ctx, start, end, interval)
		if err == nil {
			return candles, nil
		}

		lastErr = err
		if !isTransientError(err) || attempt == r.config.MaxRetries {
			break
		}

		if r.logger != nil {
			r.logger.WithError(err).Warnf("Fetch attempt %d/%d failed, retrying in %v",
				attempt+1, r.config.MaxRetries+1, backoff)
		}

		select {
		case <-time.After(backoff):
			backoff = r.nextBackoff(backoff)
		case <-ctx.Done():
			return nil, fmt.Errorf("fetch canceled during backoff: %w", ctx.Err())
		}
	}

	return nil, fmt.Errorf("fetch failed after %d attempt(s): %w", r.config.MaxRetries+1, lastErr)
}

func (r *RetryProvider) nextBackoff(current time.Duration) time.Duration {
	backoff := time.Duration(float64(current) * 1.5)
	if backoff > r.config.MaxBackoff {
		backoff = r.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err == nil {
			backoff += time.Duration(jitterVal.Int64())
		}
	}

	return backoff
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == 429 || apiErr.Status >= 500
	}

	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"server error",
		"rate limit",
		"network",
		"dns",
		"tcp",
		"eof",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
