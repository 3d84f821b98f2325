// Package models provides data structures and state management for the
// turn-based trading session.
package models

import (
	"fmt"
	"math"
	"time"
)

// Action identifies what a turn intent asks the engine to do, or what a
// settled turn actually did.
type Action string

const (
	ActionHold Action = "hold"
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"

	// Ledger-only outcomes for trades rejected at settlement time.
	ActionBuyFailed  Action = "buy_failed"
	ActionSellFailed Action = "sell_failed"
)

// FeeTier classifies the fee rate applied to a trade. Turn settlement always
// uses the taker tier; the maker tier exists for estimate displays.
type FeeTier string

const (
	TierMaker FeeTier = "maker"
	TierTaker FeeTier = "taker"
)

// TurnIntent is the pending action for the next turn. It is created by the
// caller-facing layer, consumed exactly once by the engine on advance, then
// discarded.
type TurnIntent struct {
	Action Action  `json:"action"`
	Amount float64 `json:"amount"` // USD notional, ignored for hold
}

// Validate checks the intent for shape only. Affordability is deliberately
// not checked here; balances are re-validated at settlement.
func (i TurnIntent) Validate() error {
	switch i.Action {
	case ActionHold:
		return nil
	case ActionBuy, ActionSell:
		if math.IsNaN(i.Amount) || math.IsInf(i.Amount, 0) {
			return fmt.Errorf("amount must be a finite number")
		}
		if i.Amount <= 0 {
			return fmt.Errorf("%s amount must be > 0, got %.2f", i.Action, i.Amount)
		}
		return nil
	default:
		return fmt.Errorf("unknown action %q", i.Action)
	}
}

// Portfolio holds the simulated balances. Both balances are invariant
// non-negative: any settlement that would break that is rejected, not
// clamped.
type Portfolio struct {
	Cash  float64 `json:"cash"`  // USD
	Asset float64 `json:"asset"` // units of the traded asset (e.g. BTC)
}

// Valuation returns cash plus the asset balance marked at the given price.
func (p Portfolio) Valuation(price float64) float64 {
	return p.Cash + p.Asset*price
}

// LedgerEntry records the outcome of one settled turn. Immutable once
// appended; ordering equals turn order.
type LedgerEntry struct {
	ID     string    `json:"id"`
	Turn   int       `json:"turn"`
	Time   time.Time `json:"time"`
	Action Action    `json:"action"`

	RequestedAmount float64 `json:"requested_amount"`
	SettledPrice    float64 `json:"settled_price"`
	AssetAmount     float64 `json:"asset_amount,omitempty"`

	TradingFee float64 `json:"trading_fee,omitempty"`
	NetworkFee float64 `json:"network_fee,omitempty"`
	TotalFees  float64 `json:"total_fees,omitempty"`

	TotalCost   float64 `json:"total_cost,omitempty"`   // buys: amount + fees
	NetProceeds float64 `json:"net_proceeds,omitempty"` // sells: amount - fees

	FailureReason string `json:"failure_reason,omitempty"`

	// Stale marks a turn settled against the previous price because no new
	// candle was available yet.
	Stale bool `json:"stale,omitempty"`
}

// Succeeded reports whether the entry records a completed action rather than
// a rejected trade.
func (e LedgerEntry) Succeeded() bool {
	return e.Action != ActionBuyFailed && e.Action != ActionSellFailed
}

// SessionSnapshot is a read-only copy of the session state exposed to the
// display layer. Mutation happens only through the engine.
type SessionSnapshot struct {
	SessionID    string      `json:"session_id"`
	Phase        Phase       `json:"phase"`
	Portfolio    Portfolio   `json:"portfolio"`
	CurrentPrice float64     `json:"current_price"`
	Valuation    float64     `json:"valuation"`
	Turn         int         `json:"turn"`
	Pending      *TurnIntent `json:"pending_intent,omitempty"`

	// LastConsumed is the timestamp of the most recent candle the session
	// has settled against. Zero until the first turn.
	LastConsumed time.Time `json:"last_consumed,omitzero"`

	Anchor   time.Time `json:"anchor"`
	Interval Interval  `json:"interval"`
	Ledger   int       `json:"ledger_entries"`
}
