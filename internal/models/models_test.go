package models

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"
)

func TestTurnIntent_Validate(t *testing.T) {
	tests := []struct {
		name    string
		intent  TurnIntent
		wantErr bool
	}{
		{name: "hold", intent: TurnIntent{Action: ActionHold}, wantErr: false},
		{name: "hold ignores amount", intent: TurnIntent{Action: ActionHold, Amount: 123}, wantErr: false},
		{name: "buy positive", intent: TurnIntent{Action: ActionBuy, Amount: 100}, wantErr: false},
		{name: "sell positive", intent: TurnIntent{Action: ActionSell, Amount: 0.01}, wantErr: false},
		{name: "buy zero", intent: TurnIntent{Action: ActionBuy, Amount: 0}, wantErr: true},
		{name: "sell negative", intent: TurnIntent{Action: ActionSell, Amount: -5}, wantErr: true},
		{name: "buy NaN", intent: TurnIntent{Action: ActionBuy, Amount: math.NaN()}, wantErr: true},
		{name: "buy Inf", intent: TurnIntent{Action: ActionBuy, Amount: math.Inf(1)}, wantErr: true},
		{name: "unknown action", intent: TurnIntent{Action: Action("short"), Amount: 100}, wantErr: true},
		{name: "ledger-only action rejected", intent: TurnIntent{Action: ActionBuyFailed, Amount: 100}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.intent.Validate()
			if tt.wantErr && err == nil {
				t.Errorf("Validate(%+v) should fail", tt.intent)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate(%+v) failed: %v", tt.intent, err)
			}
		})
	}
}

func TestPortfolio_Valuation(t *testing.T) {
	p := Portfolio{Cash: 5000, Asset: 0.1}

	if got := p.Valuation(50000); got != 10000 {
		t.Errorf("Valuation = %v, want 10000", got)
	}
	if got := p.Valuation(0); got != 5000 {
		t.Errorf("Valuation at zero price = %v, want cash only", got)
	}
}

func TestParseInterval(t *testing.T) {
	valid := map[string]time.Duration{
		"5m":  5 * time.Minute,
		"10m": 10 * time.Minute,
		"15m": 15 * time.Minute,
		"30m": 30 * time.Minute,
		"1h":  time.Hour,
	}
	for s, want := range valid {
		iv, err := ParseInterval(s)
		if err != nil {
			t.Fatalf("ParseInterval(%q) failed: %v", s, err)
		}
		if iv.Duration() != want {
			t.Errorf("%q duration = %v, want %v", s, iv.Duration(), want)
		}
	}

	for _, s := range []string{"", "1m", "2h", "1d", "bogus"} {
		if _, err := ParseInterval(s); err == nil {
			t.Errorf("ParseInterval(%q) should fail", s)
		}
	}
}

func TestInterval_WindowPoints(t *testing.T) {
	tests := map[Interval]int{
		Interval5m:  60,
		Interval10m: 30,
		Interval15m: 20,
		Interval30m: 10,
		Interval1h:  5,
	}
	for iv, want := range tests {
		if got := iv.WindowPoints(); got != want {
			t.Errorf("%s WindowPoints = %d, want %d", iv, got, want)
		}
	}
}

func TestSessionSnapshot_LastConsumedOmittedUntilFirstTurn(t *testing.T) {
	fresh, err := json.Marshal(SessionSnapshot{})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if strings.Contains(string(fresh), "last_consumed") {
		t.Errorf("Zero last_consumed should be omitted, got %s", fresh)
	}

	settled, err := json.Marshal(SessionSnapshot{
		LastConsumed: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(settled), "last_consumed") {
		t.Errorf("Set last_consumed should be serialized, got %s", settled)
	}
}

func TestLedgerEntry_Succeeded(t *testing.T) {
	for _, a := range []Action{ActionHold, ActionBuy, ActionSell} {
		if !(LedgerEntry{Action: a}).Succeeded() {
			t.Errorf("%s should count as succeeded", a)
		}
	}
	for _, a := range []Action{ActionBuyFailed, ActionSellFailed} {
		if (LedgerEntry{Action: a}).Succeeded() {
			t.Errorf("%s should not count as succeeded", a)
		}
	}
}
