package models

import (
	"fmt"
	"time"
)

// Interval is the candle granularity for the price window.
type Interval string

const (
	Interval5m  Interval = "5m"
	Interval10m Interval = "10m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
)

var intervalDurations = map[Interval]time.Duration{
	Interval5m:  5 * time.Minute,
	Interval10m: 10 * time.Minute,
	Interval15m: 15 * time.Minute,
	Interval30m: 30 * time.Minute,
	Interval1h:  time.Hour,
}

// ParseInterval validates and returns an Interval from its string form.
func ParseInterval(s string) (Interval, error) {
	iv := Interval(s)
	if _, ok := intervalDurations[iv]; !ok {
		return "", fmt.Errorf("unsupported interval %q (want 5m, 10m, 15m, 30m or 1h)", s)
	}
	return iv, nil
}

// Duration returns the wall-clock length of one candle.
func (i Interval) Duration() time.Duration {
	if d, ok := intervalDurations[i]; ok {
		return d
	}
	return 5 * time.Minute
}

// WindowPoints returns how many candles cover the five-hour display window
// used by the chart layer.
func (i Interval) WindowPoints() int {
	d := i.Duration()
	return int((5 * time.Hour) / d)
}

// Candle is one OHLC point. Timestamps are UTC; sequences are strictly
// ascending.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume,omitempty"`
}
