// Package util provides common utility functions for price and quantity
// rounding.
package util

import "math"

// RoundToTick rounds x to the nearest tick increment. Used to round asset
// quantities (e.g. BTC to 0.0001) and USD values for display.
func RoundToTick(x, tick float64) float64 {
	if tick <= 0 {
		return x
	}
	return math.Round(x/tick) * tick
}
