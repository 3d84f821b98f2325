package engine

import "errors"

// ErrInvalidIntent marks a malformed intent rejected by SetIntent. It never
// reaches Advance.
var ErrInvalidIntent = errors.New("invalid intent")

// ErrNoData is returned when the provider has no candles for the requested
// range. The advance aborts without mutating state; retrying later may
// succeed once data exists.
var ErrNoData = errors.New("no price data available for requested range")

// ErrFutureRange is returned when the requested window lies in the future.
// Ranges are pre-validated before the provider is called.
var ErrFutureRange = errors.New("requested range is in the future")

// Retryable reports whether a failed Advance may be retried as-is. Invalid
// input is the only non-retryable failure; data gaps and provider errors are
// scoped to the single call and leave state untouched.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrInvalidIntent)
}
