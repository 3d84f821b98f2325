package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/paperbtc/turntrader/internal/models"
)

const defaultYahooBaseURL = "https://query1.finance.yahoo.com"

// YahooClient fetches OHLC candles from the Yahoo Finance v8 chart API.
type YahooClient struct {
	client  *http.Client
	baseURL string
	symbol  string
	timeout time.Duration
}

// NewYahooClient creates a client for the given symbol (e.g. "BTC-USD").
func NewYahooClient(symbol string) *YahooClient {
	return &YahooClient{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: defaultYahooBaseURL,
		symbol:  symbol,
		timeout: 10 * time.Second,
	}
}

// WithBaseURL overrides the API base URL. Used by tests to point the client
// at a local server.
func (y *YahooClient) WithBaseURL(baseURL string) *YahooClient {
	if baseURL != "" {
		y.baseURL = strings.TrimRight(baseURL, "/")
	}
	return y
}

// WithHTTPClient overrides the HTTP client.
func (y *YahooClient) WithHTTPClient(c *http.Client) *YahooClient {
	if c != nil {
		y.client = c
	}
	return y
}

// WithTimeout sets the per-request timeout.
func (y *YahooClient) WithTimeout(timeout time.Duration) *YahooClient {
	if timeout > 0 {
		y.timeout = timeout
		y.client.Timeout = timeout
	}
	return y
}

// chartResponse mirrors the subset of the v8 chart payload we consume.
// Yahoo encodes gaps as nulls, hence the pointer slices.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Fetch returns candles in [start, end) at the given interval, ascending by
// timestamp. Candles with missing OHLC fields are skipped.
func (y *YahooClient) Fetch(ctx context.Context, start, end time.Time, interval models.Interval) ([]models.Candle, error) {
	reqCtx, cancel := context.WithTimeout(ctx, y.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("period1", strconv.FormatInt(start.UTC().Unix(), 10))
	params.Set("period2", strconv.FormatInt(end.UTC().Unix(), 10))
	params.Set("interval", string(interval))
	params.Set("includePrePost", "false")

	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", y.baseURL, url.PathEscape(y.symbol), params.Encode())

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "turntrader/1.0 (+yahoo-chart)")

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching chart data: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if readErr != nil {
			return nil, &APIError{Status: resp.StatusCode, Body: "failed to read error body"}
		}
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	var chart chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return nil, fmt.Errorf("decoding chart response: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("chart API error %s: %s", chart.Chart.Error.Code, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	now := time.Now().UTC()

	candles := make([]models.Candle, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		t := time.Unix(ts, 0).UTC()
		// Yahoo's range is inclusive; the contract is half-open [start, end)
		// and never beyond now.
		if t.Before(start) || !t.Before(end) || t.After(now) {
			continue
		}
		// Bounds-check each slice separately; malformed payloads can carry
		// quote arrays shorter than the timestamp list.
		if i >= len(quote.Open) || i >= len(quote.High) ||
			i >= len(quote.Low) || i >= len(quote.Close) {
			continue
		}
		if quote.Open[i] == nil || quote.High[i] == nil ||
			quote.Low[i] == nil || quote.Close[i] == nil {
			continue
		}
		c := models.Candle{
			Time:  t,
			Open:  *quote.Open[i],
			High:  *quote.High[i],
			Low:   *quote.Low[i],
			Close: *quote.Close[i],
		}
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			c.Volume = *quote.Volume[i]
		}
		candles = append(candles, c)
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].Time.Before(candles[j].Time) })
	return candles, nil
}
