// Package fees implements the synthetic exchange fee model: a flat
// maker/taker trading fee plus a network fee that scales with trade size and
// simulated network conditions.
package fees

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/paperbtc/turntrader/internal/models"
)

// Schedule holds the fee parameters. All values are USD or unitless rates.
type Schedule struct {
	MakerRate float64
	TakerRate float64

	// NetworkBase is the network fee before congestion scaling and jitter.
	NetworkBase float64
	// NetworkCap bounds the final network fee.
	NetworkCap float64

	// Congestion scaling kicks in above CongestionThreshold: the multiplier
	// is 1 + (notional-threshold)/scale, capped at CongestionCap.
	CongestionThreshold float64
	CongestionScale     float64
	CongestionCap       float64

	// Jitter simulates varying network conditions as a uniform draw in
	// [JitterLow, JitterHigh].
	JitterLow  float64
	JitterHigh float64
}

// DefaultSchedule returns the standard schedule: 0.25%/0.5% maker/taker,
// $15 base network fee capped at $50, congestion above $5000 notional.
func DefaultSchedule() Schedule {
	return Schedule{
		MakerRate:           0.0025,
		TakerRate:           0.005,
		NetworkBase:         15.0,
		NetworkCap:          50.0,
		CongestionThreshold: 5000,
		CongestionScale:     20000,
		CongestionCap:       3.33,
		JitterLow:           0.8,
		JitterHigh:          1.2,
	}
}

// Model computes trade fees. The random source is injected so tests can seed
// it; the production default is time-seeded.
type Model struct {
	mu       sync.Mutex
	schedule Schedule
	rng      *rand.Rand
}

// NewModel creates a fee model. A nil source falls back to a time-seeded one.
func NewModel(schedule Schedule, src rand.Source) *Model {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Model{
		schedule: schedule,
		rng:      rand.New(src),
	}
}

// Compute returns (trading fee, network fee, total fee) for the given USD
// notional. Non-positive notional is invalid input the caller must reject;
// it yields zero fees here.
func (m *Model) Compute(notional float64, tier models.FeeTier) (trading, network, total float64) {
	if notional <= 0 {
		return 0, 0, 0
	}

	s := m.schedule
	rate := s.TakerRate
	if tier == models.TierMaker {
		rate = s.MakerRate
	}
	trading = notional * rate

	congestion := 1.0
	if notional > s.CongestionThreshold {
		congestion = 1 + (notional-s.CongestionThreshold)/s.CongestionScale
		congestion = math.Min(congestion, s.CongestionCap)
	}

	m.mu.Lock()
	jitter := s.JitterLow + m.rng.Float64()*(s.JitterHigh-s.JitterLow)
	m.mu.Unlock()

	network = s.NetworkBase * congestion * jitter
	network = math.Min(network, s.NetworkCap)
	network = math.Max(network, 0)

	return trading, network, trading + network
}

// Estimate returns a deterministic fee estimate at the taker rate, used for
// max-affordable hints before an intent is submitted. It overshoots slightly
// rather than undershooting so the settlement-time re-check rarely fails.
func (m *Model) Estimate(notional float64) float64 {
	if notional <= 0 {
		return 0
	}
	s := m.schedule
	trading := notional * s.TakerRate
	network := math.Min(s.NetworkBase+(notional/s.CongestionScale)*s.NetworkBase, s.NetworkCap)
	return trading + network
}

// Schedule returns the schedule the model was built with.
func (m *Model) Schedule() Schedule {
	return m.schedule
}
