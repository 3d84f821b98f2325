// Package provider supplies bounded, ordered candle windows for the
// simulator. It includes the Yahoo Finance chart client plus circuit-breaker
// and retry wrappers for it.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/paperbtc/turntrader/internal/models"
)

// Provider fetches an ordered candle sequence for the half-open range
// [start, end) at the given granularity. Timestamps are UTC and strictly
// ascending. An empty result is a valid response (market gap or no data for
// the range), not an error; implementations never return candles with
// timestamps beyond "now".
type Provider interface {
	Fetch(ctx context.Context, start, end time.Time, interval models.Interval) ([]models.Candle, error)
}

// APIError represents an upstream HTTP error with status code and body.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// CircuitBreakerProvider wraps a Provider with circuit breaker protection so
// a flapping data source fails fast instead of blocking every advance.
type CircuitBreakerProvider struct {
	next    Provider
	breaker *gobreaker.CircuitBreaker
}

// CircuitBreakerSettings configures circuit breaker behavior.
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// DefaultCircuitBreakerSettings returns the settings used in production.
func DefaultCircuitBreakerSettings() CircuitBreakerSettings {
	return CircuitBreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	}
}

// NewCircuitBreakerProvider wraps the given provider with a breaker.
func NewCircuitBreakerProvider(next Provider, settings CircuitBreakerSettings, logger *logrus.Logger) *CircuitBreakerProvider {
	gbSettings := gobreaker.Settings{
		Name:        "CandleProviderCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if logger != nil {
				logger.Warnf("Circuit breaker %s state changed from %s to %s", name, from, to)
			}
		},
	}

	return &CircuitBreakerProvider{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// Fetch executes the wrapped fetch through the breaker.
func (c *CircuitBreakerProvider) Fetch(ctx context.Context, start, end time.Time, interval models.Interval) ([]models.Candle, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.next.Fetch(ctx, start, end, interval)
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	candles, ok := res.([]models.Candle)
	if !ok {
		return nil, errors.New("circuit breaker: type assertion failed")
	}
	return candles, nil
}
