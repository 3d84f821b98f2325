package provider

import (
	"context"
	"crypto/rand"
	"math/big"
	"sync"
	"time"

	"github.com/paperbtc/turntrader/internal/models"
)

// Mock is an in-memory Provider backed by a fixed candle series. It is used
// in tests and as the offline "synthetic" data source.
type Mock struct {
	mu      sync.Mutex
	candles []models.Candle
	errs    []error
	calls   int
}

// NewMock creates a mock provider over the given ascending candle series.
func NewMock(candles []models.Candle) *Mock {
	return &Mock{candles: candles}
}

// FailNext queues errors returned by the next Fetch calls before any data is
// served again.
func (m *Mock) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, errs...)
}

// Calls returns how many times Fetch has been invoked.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Append extends the series, simulating new data arriving over time.
func (m *Mock) Append(candles ...models.Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candles = append(m.candles, candles...)
}

// Fetch returns the stored candles within [start, end).
func (m *Mock) Fetch(ctx context.Context, start, end time.Time, _ models.Interval) ([]models.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return nil, err
	}

	var out []models.Candle
	for _, c := range m.candles {
		if c.Time.Before(start) || !c.Time.Before(end) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// secureFloat64 generates a cryptographically secure random float64 in [0,1).
func secureFloat64() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		return 0.5
	}
	return float64(n.Int64()) / (1 << 53)
}

// NewSynthetic builds a mock provider over a random-walk candle series
// starting at startPrice, one candle per interval beginning at start. It
// backs the offline mode when no real data source is reachable.
func NewSynthetic(start time.Time, interval models.Interval, n int, startPrice float64) *Mock {
	step := interval.Duration()
	price := startPrice

	candles := make([]models.Candle, 0, n)
	for i := 0; i < n; i++ {
		open := price
		// Walk up to ±0.5% per candle.
		move := (secureFloat64() - 0.5) * 0.01 * open
		closePx := open + move
		high := open
		low := open
		if closePx > high {
			high = closePx
		}
		if closePx < low {
			low = closePx
		}
		high += secureFloat64() * 0.002 * open
		low -= secureFloat64() * 0.002 * open

		candles = append(candles, models.Candle{
			Time:   start.Add(time.Duration(i) * step).UTC(),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePx,
			Volume: 100 + secureFloat64()*1000,
		})
		price = closePx
	}

	return NewMock(candles)
}
