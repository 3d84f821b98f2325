// Package engine owns the session state and the advance-turn algorithm: it
// slides the price window forward in lockstep with turns, settles pending
// intents against a single authoritative price, and appends the outcome to
// the ledger.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/paperbtc/turntrader/internal/fees"
	"github.com/paperbtc/turntrader/internal/ledger"
	"github.com/paperbtc/turntrader/internal/models"
	"github.com/paperbtc/turntrader/internal/provider"
)

// DefaultStartingCash is the opening cash balance for a fresh session.
const DefaultStartingCash = 10000.0

// Config holds the session parameters.
type Config struct {
	// StartingCash defaults to DefaultStartingCash when zero.
	StartingCash float64

	// Anchor is the point in history the session starts from. The first
	// turn settles at the close of the latest candle at or before it.
	Anchor time.Time

	// Interval is the candle granularity. Defaults to 5m.
	Interval models.Interval

	// Lookback bounds the first-turn fetch window ending at the anchor.
	// Defaults to 6h.
	Lookback time.Duration

	// FetchTimeout bounds each provider call. Defaults to 15s.
	FetchTimeout time.Duration

	// Clock is injectable for tests. Defaults to time.Now.
	Clock func() time.Time
}

// Engine is the turn-based state machine. All mutation goes through its
// methods and is serialized behind one mutex; the provider call inside
// Advance is the only operation that can block.
type Engine struct {
	mu       sync.Mutex
	cfg      Config
	provider provider.Provider
	fees     *fees.Model
	ledger   *ledger.Ledger
	logger   *logrus.Logger
	phase    *models.PhaseMachine

	sessionID    string
	portfolio    models.Portfolio
	turn         int
	lastConsumed time.Time
	lastPrice    float64
	pending      *models.TurnIntent
}

// New creates an engine with a fresh session.
func New(cfg Config, p provider.Provider, feeModel *fees.Model, logger *logrus.Logger) (*Engine, error) {
	if p == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if feeModel == nil {
		return nil, fmt.Errorf("fee model is required")
	}
	if cfg.Anchor.IsZero() {
		return nil, fmt.Errorf("anchor time is required")
	}
	if cfg.StartingCash == 0 {
		cfg.StartingCash = DefaultStartingCash
	}
	if cfg.StartingCash < 0 {
		return nil, fmt.Errorf("starting cash must be >= 0")
	}
	if cfg.Interval == "" {
		cfg.Interval = models.Interval5m
	}
	if _, err := models.ParseInterval(string(cfg.Interval)); err != nil {
		return nil, err
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 6 * time.Hour
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Engine{
		cfg:       cfg,
		provider:  p,
		fees:      feeModel,
		ledger:    ledger.New(),
		logger:    logger,
		phase:     models.NewPhaseMachine(),
		sessionID: uuid.New().String(),
		portfolio: models.Portfolio{Cash: cfg.StartingCash},
	}, nil
}

func (e *Engine) now() time.Time {
	if e.cfg.Clock != nil {
		return e.cfg.Clock()
	}
	return time.Now()
}

// ensureStarted moves an idle session into turn progression. Called with the
// lock held.
func (e *Engine) ensureStarted() {
	if e.phase.Current() == models.PhaseIdle {
		_ = e.phase.Transition(models.PhaseAwaitingIntent, "session_started")
	}
}

// SetIntent stores the pending intent for the next turn. Only shape is
// validated here; affordability is re-checked at settlement because fees are
// stochastic and balances are only authoritative at that moment.
func (e *Engine) SetIntent(intent models.TurnIntent) error {
	if err := intent.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidIntent, err)
	}
	if intent.Action == models.ActionHold {
		intent.Amount = 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.ensureStarted()
	e.pending = &intent
	return nil
}

// Advance settles one turn: it pulls the next settlement price, resolves the
// pending intent against it, appends a ledger entry, and increments the turn
// counter. On provider failure or an empty window it aborts without mutating
// any state and the error is retryable.
func (e *Engine) Advance(ctx context.Context) (models.LedgerEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ensureStarted()
	if err := e.phase.Transition(models.PhaseSettling, "advance_requested"); err != nil {
		return models.LedgerEntry{}, err
	}

	price, consumedAt, stale, err := e.settlementPrice(ctx)
	if err != nil {
		_ = e.phase.Transition(models.PhaseAwaitingIntent, "settlement_aborted")
		return models.LedgerEntry{}, err
	}

	intent := models.TurnIntent{Action: models.ActionHold}
	if e.pending != nil {
		intent = *e.pending
	}

	entry := e.settle(intent, price)
	entry.ID = uuid.New().String()
	entry.Turn = e.turn + 1
	entry.Time = e.now().UTC()
	entry.Stale = stale

	e.ledger.Append(entry)
	e.turn++
	e.pending = nil
	e.lastPrice = price
	if !consumedAt.IsZero() {
		e.lastConsumed = consumedAt
	}
	_ = e.phase.Transition(models.PhaseAwaitingIntent, "turn_settled")

	e.logger.WithFields(logrus.Fields{
		"turn":   entry.Turn,
		"action": entry.Action,
		"price":  entry.SettledPrice,
		"cash":   e.portfolio.Cash,
		"asset":  e.portfolio.Asset,
		"stale":  stale,
	}).Info("Turn settled")

	return entry, nil
}

// settlementPrice determines the authoritative price for this turn. It does
// not mutate engine state; the caller applies consumedAt only after the turn
// commits.
func (e *Engine) settlementPrice(ctx context.Context) (price float64, consumedAt time.Time, stale bool, err error) {
	now := e.now().UTC()
	step := e.cfg.Interval.Duration()

	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()

	if e.lastConsumed.IsZero() {
		// First turn: settle at the close of the latest candle at or
		// before the anchor.
		anchor := e.cfg.Anchor.UTC()
		if anchor.After(now) {
			return 0, time.Time{}, false, ErrFutureRange
		}

		candles, ferr := e.provider.Fetch(fetchCtx, anchor.Add(-e.cfg.Lookback), anchor.Add(step), e.cfg.Interval)
		if ferr != nil {
			return 0, time.Time{}, false, fmt.Errorf("fetching price window: %w", ferr)
		}

		var last *models.Candle
		for i := range candles {
			if !candles[i].Time.After(anchor) {
				last = &candles[i]
			}
		}
		if last == nil || last.Close <= 0 {
			return 0, time.Time{}, false, ErrNoData
		}
		return last.Close, last.Time, false, nil
	}

	// Subsequent turns: settle at the open of the first candle after the
	// last consumed timestamp. The window spans the full lookback so a
	// market gap is skipped, not treated as a stall; no candle at all in
	// the window means a stale tick.
	start := e.lastConsumed
	if start.After(now) {
		return 0, time.Time{}, false, ErrFutureRange
	}

	end := start.Add(e.cfg.Lookback)
	if maxEnd := now.Add(step); end.After(maxEnd) {
		end = maxEnd
	}

	candles, ferr := e.provider.Fetch(fetchCtx, start, end, e.cfg.Interval)
	if ferr != nil {
		return 0, time.Time{}, false, fmt.Errorf("fetching price window: %w", ferr)
	}

	for _, c := range candles {
		if c.Time.After(e.lastConsumed) {
			if c.Open <= 0 {
				return 0, time.Time{}, false, ErrNoData
			}
			return c.Open, c.Time, false, nil
		}
	}

	if e.lastPrice <= 0 {
		return 0, time.Time{}, false, ErrNoData
	}
	return e.lastPrice, time.Time{}, true, nil
}

// settle resolves the intent against the settlement price and mutates
// balances. Trades the balances cannot cover become *_failed entries; the
// non-negative balance invariant is enforced here, never clamped.
func (e *Engine) settle(intent models.TurnIntent, price float64) models.LedgerEntry {
	entry := models.LedgerEntry{
		Action:          intent.Action,
		RequestedAmount: intent.Amount,
		SettledPrice:    price,
	}

	switch intent.Action {
	case models.ActionBuy:
		trading, network, total := e.fees.Compute(intent.Amount, models.TierTaker)
		totalCost := intent.Amount + total
		if totalCost > e.portfolio.Cash {
			entry.Action = models.ActionBuyFailed
			entry.FailureReason = fmt.Sprintf("insufficient cash: need $%.2f including fees", totalCost)
			return entry
		}

		assetBought := intent.Amount / price
		e.portfolio.Cash -= totalCost
		e.portfolio.Asset += assetBought

		entry.AssetAmount = assetBought
		entry.TradingFee = trading
		entry.NetworkFee = network
		entry.TotalFees = total
		entry.TotalCost = totalCost

	case models.ActionSell:
		assetToSell := intent.Amount / price
		if assetToSell > e.portfolio.Asset {
			entry.Action = models.ActionSellFailed
			entry.FailureReason = "insufficient asset balance"
			return entry
		}

		trading, network, total := e.fees.Compute(intent.Amount, models.TierTaker)
		net := intent.Amount - total
		if e.portfolio.Cash+net < 0 {
			// A sale too small to cover its own fees would push cash
			// negative.
			entry.Action = models.ActionSellFailed
			entry.FailureReason = fmt.Sprintf("sale amount does not cover fees ($%.2f)", total)
			return entry
		}

		e.portfolio.Asset -= assetToSell
		e.portfolio.Cash += net

		entry.AssetAmount = assetToSell
		entry.TradingFee = trading
		entry.NetworkFee = network
		entry.TotalFees = total
		entry.NetProceeds = net
	}

	return entry
}

// Reset reinitializes the session to its defaults: full starting cash, no
// asset, turn zero, empty ledger, anchor window unset.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.portfolio = models.Portfolio{Cash: e.cfg.StartingCash}
	e.turn = 0
	e.lastConsumed = time.Time{}
	e.lastPrice = 0
	e.pending = nil
	e.ledger.Reset()
	e.phase.Reset()
	e.sessionID = uuid.New().String()

	e.logger.WithField("session_id", e.sessionID).Info("Session reset")
}

// Snapshot returns a read-only copy of the session state.
func (e *Engine) Snapshot() models.SessionSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := models.SessionSnapshot{
		SessionID:    e.sessionID,
		Phase:        e.phase.Current(),
		Portfolio:    e.portfolio,
		CurrentPrice: e.lastPrice,
		Valuation:    e.portfolio.Valuation(e.lastPrice),
		Turn:         e.turn,
		LastConsumed: e.lastConsumed,
		Anchor:       e.cfg.Anchor.UTC(),
		Interval:     e.cfg.Interval,
		Ledger:       e.ledger.Len(),
	}
	if e.pending != nil {
		p := *e.pending
		snap.Pending = &p
	}
	return snap
}

// Recent returns the last n ledger entries, most recent first.
func (e *Engine) Recent(n int) []models.LedgerEntry {
	return e.ledger.Recent(n)
}

// Entries returns the full ledger in turn order.
func (e *Engine) Entries() []models.LedgerEntry {
	return e.ledger.All()
}

// MaxBuyNotional estimates the largest buy the cash balance can cover after
// fees. The estimate deliberately overshoots fees, and settlement re-checks
// affordability regardless.
func (e *Engine) MaxBuyNotional() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	max := e.portfolio.Cash - e.fees.Estimate(e.portfolio.Cash)
	if max < 0 {
		return 0
	}
	return max
}

// MaxSellNotional returns the USD value of the asset balance at the current
// price. Fees come out of the proceeds, so the full value is sellable.
func (e *Engine) MaxSellNotional() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.portfolio.Asset * e.lastPrice
}
