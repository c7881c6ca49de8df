package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"VerseRisk/internal/event"
)

// PolymarketClient reads markets from the Polymarket gamma API.
type PolymarketClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

func NewPolymarketClient(baseURL string, limiter *rate.Limiter) *PolymarketClient {
	return &PolymarketClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: limiter,
	}
}

func (c *PolymarketClient) Source() event.OracleSource {
	return event.SourcePolymarket
}

// polymarketMarket is the upstream shape. Outcomes and outcome prices are
// double-encoded: JSON arrays serialized as strings inside the object.
type polymarketMarket struct {
	Slug          string `json:"slug"`
	Outcomes      string `json:"outcomes"`
	OutcomePrices string `json:"outcomePrices"`
	Liquidity     string `json:"liquidity"`
	Volume24h     string `json:"volume24hr"`
	Active        bool   `json:"active"`
	Closed        bool   `json:"closed"`
	UpdatedAt     string `json:"updatedAt"`
}

func (c *PolymarketClient) FetchQuote(ctx context.Context, market string) (Quote, error) {
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
		return Quote{}, fmt.Errorf("polymarket fetch %s: %w", market, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("polymarket fetch %s: status %d", market, resp.StatusCode)
	}

	var m polymarketMarket
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return Quote{}, fmt.Errorf("polymarket decode %s: %w", market, err)
	}
	return c.convert(m)
}

func (c *PolymarketClient) convert(m polymarketMarket) (Quote, error) {
	var outcomes []string
	if err := json.Unmarshal([]byte(m.Outcomes), &outcomes); err != nil {
		return Quote{}, fmt.Errorf("polymarket outcomes: %w", err)
	}
	var priceStrs []string
	if err := json.Unmarshal([]byte(m.OutcomePrices), &priceStrs); err != nil {
		return Quote{}, fmt.Errorf("polymarket outcomePrices: %w", err)
	}
	if len(outcomes) != len(priceStrs) {
		return Quote{}, fmt.Errorf("polymarket outcomes/prices length mismatch: %d vs %d", len(outcomes), len(priceStrs))
	}

	prices := make([]int64, len(priceStrs))
	for i, s := range priceStrs {
		p, err := parsePrice(s)
		if err != nil {
			return Quote{}, fmt.Errorf("polymarket outcome %d: %w", i, err)
		}
		prices[i] = p
	}

	liquidity, err := parseDecimal(m.Liquidity)
	if err != nil {
		return Quote{}, fmt.Errorf("polymarket liquidity: %w", err)
	}
	volume, err := parseDecimal(m.Volume24h)
	if err != nil {
		return Quote{}, fmt.Errorf("polymarket volume: %w", err)
	}

	status := event.MarketStatusActive
	resolved := false
	switch {
	case m.Closed:
		status = event.MarketStatusResolved
		resolved = true
	case !m.Active:
		status = event.MarketStatusPaused
	}

	winner := int32(0)
	if resolved {
		for i, p := range prices {
			if p > prices[winner] {
				winner = int32(i)
			}
		}
	}

	updatedUs := int64(0)
	if m.UpdatedAt != "" {
		if ts, err := time.Parse(time.RFC3339, m.UpdatedAt); err == nil {
			updatedUs = ts.UnixMicro()
		}
	}

	return Quote{
		Source:    event.SourcePolymarket,
		Outcomes:  outcomes,
		Prices:    prices,
		Liquidity: liquidity,
		Volume24h: volume,
		Status:    status,
		Resolved:  resolved,
		Winner:    winner,
		UpdatedUs: updatedUs,
	}, nil
}
