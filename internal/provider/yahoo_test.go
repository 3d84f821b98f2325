package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperbtc/turntrader/internal/models"
)

var chartStart = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

// chartJSON builds a v8 chart payload. A nil price marks the slot null the
// way Yahoo encodes gaps.
func chartJSON(timestamps []int64, opens, highs, lows, closes, volumes []*float64) string {
	payload := map[string]interface{}{
		"chart": map[string]interface{}{
			"result": []map[string]interface{}{{
				"timestamp": timestamps,
				"indicators": map[string]interface{}{
					"quote": []map[string]interface{}{{
						"open":   opens,
						"high":   highs,
						"low":    lows,
						"close":  closes,
						"volume": volumes,
					}},
				},
			}},
			"error": nil,
		},
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

func f(v float64) *float64 { return &v }

func TestYahooClient_Fetch(t *testing.T) {
	ts := []int64{
		chartStart.Unix(),
		chartStart.Add(5 * time.Minute).Unix(),
		chartStart.Add(10 * time.Minute).Unix(),
	}
	body := chartJSON(ts,
		[]*float64{f(50000), f(50100), f(50200)},
		[]*float64{f(50050), f(50150), f(50250)},
		[]*float64{f(49950), f(50050), f(50150)},
		[]*float64{f(50020), f(50120), f(50220)},
		[]*float64{f(100), f(110), f(120)},
	)

	var gotPath string
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	defer server.Close()

	client := NewYahooClient("BTC-USD").WithBaseURL(server.URL)
	candles, err := client.Fetch(context.Background(), chartStart, chartStart.Add(15*time.Minute), models.Interval5m)
	require.NoError(t, err)

	require.Len(t, candles, 3)
	assert.Equal(t, chartStart, candles[0].Time)
	assert.InDelta(t, 50000.0, candles[0].Open, 1e-9)
	assert.InDelta(t, 50020.0, candles[0].Close, 1e-9)
	assert.InDelta(t, 100.0, candles[0].Volume, 1e-9)
	assert.True(t, candles[1].Time.Before(candles[2].Time), "ascending order")

	assert.Equal(t, "/v8/finance/chart/BTC-USD", gotPath)
	assert.Contains(t, gotQuery, "interval=5m")
	assert.Contains(t, gotQuery, fmt.Sprintf("period1=%d", chartStart.Unix()))
}

func TestYahooClient_FetchHalfOpenRange(t *testing.T) {
	// The server returns one candle before the range and one exactly at the
	// end boundary; both must be filtered out.
	ts := []int64{
		chartStart.Add(-5 * time.Minute).Unix(),
		chartStart.Unix(),
		chartStart.Add(5 * time.Minute).Unix(),
	}
	body := chartJSON(ts,
		[]*float64{f(1), f(2), f(3)},
		[]*float64{f(1), f(2), f(3)},
		[]*float64{f(1), f(2), f(3)},
		[]*float64{f(1), f(2), f(3)},
		[]*float64{f(1), f(2), f(3)},
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	defer server.Close()

	client := NewYahooClient("BTC-USD").WithBaseURL(server.URL)
	candles, err := client.Fetch(context.Background(), chartStart, chartStart.Add(5*time.Minute), models.Interval5m)
	require.NoError(t, err)

	require.Len(t, candles, 1)
	assert.Equal(t, chartStart, candles[0].Time)
}

func TestYahooClient_FetchSkipsNullCandles(t *testing.T) {
	ts := []int64{
		chartStart.Unix(),
		chartStart.Add(5 * time.Minute).Unix(),
	}
	// Second slot has a null close, so only the first candle survives.
	body := chartJSON(ts,
		[]*float64{f(50000), f(50100)},
		[]*float64{f(50050), f(50150)},
		[]*float64{f(49950), f(50050)},
		[]*float64{f(50020), nil},
		[]*float64{f(100), f(110)},
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	defer server.Close()

	client := NewYahooClient("BTC-USD").WithBaseURL(server.URL)
	candles, err := client.Fetch(context.Background(), chartStart, chartStart.Add(time.Hour), models.Interval5m)
	require.NoError(t, err)

	require.Len(t, candles, 1)
	assert.Equal(t, chartStart, candles[0].Time)
}

func TestYahooClient_FetchUnevenQuoteArrays(t *testing.T) {
	// A malformed payload with quote arrays shorter than the timestamp
	// list must not panic; truncated slots are skipped.
	ts := []int64{
		chartStart.Unix(),
		chartStart.Add(5 * time.Minute).Unix(),
		chartStart.Add(10 * time.Minute).Unix(),
	}
	body := chartJSON(ts,
		[]*float64{f(50000), f(50100), f(50200)},
		[]*float64{f(50050), f(50150), f(50250)},
		[]*float64{f(49950)},
		[]*float64{f(50020), f(50120)},
		[]*float64{f(100)},
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	defer server.Close()

	client := NewYahooClient("BTC-USD").WithBaseURL(server.URL)
	candles, err := client.Fetch(context.Background(), chartStart, chartStart.Add(time.Hour), models.Interval5m)
	require.NoError(t, err)

	require.Len(t, candles, 1, "only the slot covered by every array survives")
	assert.Equal(t, chartStart, candles[0].Time)
}

func TestYahooClient_FetchEmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":[],"error":null}}`)
	}))
	defer server.Close()

	client := NewYahooClient("BTC-USD").WithBaseURL(server.URL)
	candles, err := client.Fetch(context.Background(), chartStart, chartStart.Add(time.Hour), models.Interval5m)
	require.NoError(t, err)
	assert.Empty(t, candles, "empty window is a valid response")
}

func TestYahooClient_FetchServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "upstream broke")
	}))
	defer server.Close()

	client := NewYahooClient("BTC-USD").WithBaseURL(server.URL)
	_, err := client.Fetch(context.Background(), chartStart, chartStart.Add(time.Hour), models.Interval5m)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Contains(t, apiErr.Body, "upstream broke")
}

func TestYahooClient_FetchChartError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`)
	}))
	defer server.Close()

	client := NewYahooClient("NOPE-USD").WithBaseURL(server.URL)
	_, err := client.Fetch(context.Background(), chartStart, chartStart.Add(time.Hour), models.Interval5m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Not Found")
}

func TestYahooClient_FetchContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewYahooClient("BTC-USD").WithBaseURL(server.URL)
	_, err := client.Fetch(ctx, chartStart, chartStart.Add(time.Hour), models.Interval5m)
	require.Error(t, err)
}
