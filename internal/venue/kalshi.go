package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"VerseRisk/internal/event"
	"VerseRisk/internal/fixedpoint"
)

// KalshiClient reads markets from the Kalshi trade API.
type KalshiClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

func NewKalshiClient(baseURL string, limiter *rate.Limiter) *KalshiClient {
	return &KalshiClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: limiter,
	}
}

func (c *KalshiClient) Source() event.OracleSource {
	return event.SourceKalshi
}

// kalshiMarket is the upstream shape. Prices are integer cents.
type kalshiMarket struct {
	Market struct {
		Ticker      string `json:"ticker"`
		Status      string `json:"status"`
		YesBid      int64  `json:"yes_bid"`
		YesAsk      int64  `json:"yes_ask"`
		NoBid       int64  `json:"no_bid"`
		NoAsk       int64  `json:"no_ask"`
		Liquidity   int64  `json:"liquidity"`
		Volume24h   int64  `json:"volume_24h"`
		Result      string `json:"result"`
		LastUpdated string `json:"last_updated_ts,omitempty"`
	} `json:"market"`
}

func (c *KalshiClient) FetchQuote(ctx context.Context, market string) (Quote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Quote{}, err
	}

	url := fmt.Sprintf("%s/markets/%s", c.baseURL, market)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Quote{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("kalshi fetch %s: %w", market, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("kalshi fetch %s: status %d", market, resp.StatusCode)
	}

	var m kalshiMarket
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return Quote{}, fmt.Errorf("kalshi decode %s: %w", market, err)
	}
	return c.convert(m), nil
}

// centsToPrice converts integer cents (0-100) to price scale.
const centsToPrice = fixedpoint.PriceScale / 100

func (c *KalshiClient) convert(m kalshiMarket) Quote {
	// Mid of bid/ask; fall back to the one-sided quote when a side is empty.
	yes := midCents(m.Market.YesBid, m.Market.YesAsk) * centsToPrice
	no := midCents(m.Market.NoBid, m.Market.NoAsk) * centsToPrice

	status := event.MarketStatusUnknown
	resolved := false
	switch m.Market.Status {
	case "active", "open":
		status = event.MarketStatusActive
	case "paused":
		status = event.MarketStatusPaused
	case "closed":
		status = event.MarketStatusResolving
	case "settled", "finalized":
		status = event.MarketStatusResolved
		resolved = true
	}

	winner := int32(0)
	if resolved && m.Market.Result == "yes" {
		winner = 1
	}

	updatedUs := int64(0)
	if m.Market.LastUpdated != "" {
		if ts, err := time.Parse(time.RFC3339, m.Market.LastUpdated); err == nil {
			updatedUs = ts.UnixMicro()
		}
	}

	return Quote{
		Source:    event.SourceKalshi,
		Outcomes:  []string{"no", "yes"},
		Prices:    []int64{no, yes},
		Liquidity: m.Market.Liquidity * centsToPrice,
		Volume24h: m.Market.Volume24h * fixedpoint.PriceScale,
		Status:    status,
		Resolved:  resolved,
		Winner:    winner,
		UpdatedUs: updatedUs,
	}
}

func midCents(bid, ask int64) int64 {
	switch {
	case bid > 0 && ask > 0:
		return (bid + ask) / 2
	case ask > 0:
		return ask
	default:
		return bid
	}
}
