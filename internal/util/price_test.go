package util

import (
	"math"
	"testing"
)

func TestRoundToTick(t *testing.T) {
	tests := []struct {
		name     string
		x        float64
		tick     float64
		expected float64
	}{
		{name: "btc quantity to 4 decimals", x: 0.02345678, tick: 0.0001, expected: 0.0235},
		{name: "rounds down", x: 0.02344, tick: 0.0001, expected: 0.0234},
		{name: "usd to cents", x: 1234.5678, tick: 0.01, expected: 1234.57},
		{name: "whole dollar tick", x: 49987.4, tick: 1, expected: 49987},
		{name: "zero value", x: 0, tick: 0.01, expected: 0},
		{name: "zero tick passes through", x: 1.2345, tick: 0, expected: 1.2345},
		{name: "negative tick passes through", x: 1.2345, tick: -0.01, expected: 1.2345},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoundToTick(tt.x, tt.tick)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("RoundToTick(%v, %v) = %v, want %v", tt.x, tt.tick, got, tt.expected)
			}
		})
	}
}
