package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/vitos/lendflow/internal/domain"
	"golang.org/x/time/rate"
)

// rangeParams maps a UI range to the candle interval and look-back.
var rangeParams = map[string]struct {
	interval string
	span     time.Duration
}{
	"1d":  {"hour", 24 * time.Hour},
	"7d":  {"hour", 7 * 24 * time.Hour},
	"30d": {"day", 30 * 24 * time.Hour},
	"90d": {"day", 90 * 24 * time.Hour},
	"1y":  {"day", 365 * 24 * time.Hour},
}

// Client implements domain.PricesAPI. Outgoing requests wait on a token
// bucket so polling several charts never exceeds the API quota.
type Client struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter

	timeNow func() time.Time // For testing
}

var _ domain.PricesAPI = (*Client)(nil)

// NewClient allows perMinute requests with an equal burst. perMinute <= 0
// disables the limit.
func NewClient(baseURL string, perMinute int, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if perMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		timeNow: time.Now,
	}
}

type ohlcResponse struct {
	Data []struct {
		Time  int64   `json:"time"`
		Open  float64 `json:"open"`
		High  float64 `json:"high"`
		Low   float64 `json:"low"`
		Close float64 `json:"close"`
	} `json:"data"`
}

func (c *Client) PriceHistory(ctx context.Context, chain domain.ChainID, address, rng string) (domain.TimeSeries, error) {
	p, ok := rangeParams[rng]
	if !ok {
		return nil, fmt.Errorf("unsupported price range %q", rng)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	end := c.timeNow()
	q := url.Values{
		"interval": {p.interval},
		"start":    {strconv.FormatInt(end.Add(-p.span).Unix(), 10)},
		"end":      {strconv.FormatInt(end.Unix(), 10)},
	}
	target := fmt.Sprintf("%s/v1/ohlc/%s/%s?%s", c.baseURL, url.PathEscape(string(chain)), url.PathEscape(address), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("prices API error %d: %s", resp.StatusCode, string(body))
	}

	var result ohlcResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode price history: %w", err)
	}
	series := make(domain.TimeSeries, 0, len(result.Data))
	for _, d := range result.Data {
		series = append(series, domain.PricePoint{Time: d.Time, Open: d.Open, High: d.High, Low: d.Low, Close: d.Close})
	}
	return series, nil
}
