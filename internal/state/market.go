package state

import (
	"fmt"
	"sort"

	"VerseRisk/internal/event"
	"VerseRisk/internal/fixedpoint"
)

// Market is one verse in the catalog. OutcomePrices stay normalized: their
// sum tracks unity in price scale within the AMM tolerance.
type Market struct {
	ID            string
	Status        event.MarketStatus
	OutcomeCount  int32
	VerseDepth    int32
	ParentMarket  string
	OutcomePrices []int64
	Liquidity     int64
	UpdateSeq     int64
	Version       int64
}

// IsActive reports whether the verse accepts new exposure.
func (m *Market) IsActive() bool {
	return m.Status == event.MarketStatusActive
}

// MarketCatalog tracks every known verse. Mutated only from the core loop.
type MarketCatalog struct {
	markets map[string]*Market
}

func NewMarketCatalog() *MarketCatalog {
	return &MarketCatalog{markets: make(map[string]*Market)}
}

// Get returns the market or nil.
func (mc *MarketCatalog) Get(id string) *Market {
	return mc.markets[id]
}

// Apply registers a market or moves it through its lifecycle. Out-of-order
// updates are silently ignored, matching the idempotent replay contract.
func (mc *MarketCatalog) Apply(u *event.MarketStatusUpdate) *Market {
	m := mc.markets[u.Market]
	if m == nil {
		m = &Market{
			ID:            u.Market,
			OutcomeCount:  u.OutcomeCount,
			VerseDepth:    u.VerseDepth,
			ParentMarket:  u.ParentMarket,
			OutcomePrices: defaultPrices(u.OutcomeCount),
		}
		mc.markets[u.Market] = m
	}
	if u.UpdateSeq <= m.UpdateSeq && m.UpdateSeq != 0 {
		return m
	}
	m.Status = u.Status
	if u.OutcomeCount > 0 {
		m.OutcomeCount = u.OutcomeCount
	}
	m.VerseDepth = u.VerseDepth
	m.UpdateSeq = u.UpdateSeq
	m.Version++
	return m
}

// defaultPrices spreads unity evenly across the outcomes.
func defaultPrices(outcomes int32) []int64 {
	if outcomes <= 0 {
		return nil
	}
	prices := make([]int64, outcomes)
	each := fixedpoint.PriceScale / int64(outcomes)
	for i := range prices {
		prices[i] = each
	}
	// Remainder lands on the first outcome so the sum stays exact.
	prices[0] += fixedpoint.PriceScale - each*int64(outcomes)
	return prices
}

// All returns every market sorted by ID for deterministic iteration.
func (mc *MarketCatalog) All() []*Market {
	out := make([]*Market, 0, len(mc.markets))
	for _, m := range mc.markets {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Restore reinstates a market from a snapshot.
func (mc *MarketCatalog) Restore(m *Market) {
	mc.markets[m.ID] = m
}

// SetOutcomePrices replaces the price vector, used by the trade and
// liquidation paths after AMM updates.
func (mc *MarketCatalog) SetOutcomePrices(id string, prices []int64) error {
	m := mc.markets[id]
	if m == nil {
		return fmt.Errorf("market %s not in catalog", id)
	}
	if int32(len(prices)) != m.OutcomeCount {
		return fmt.Errorf("market %s: %d prices for %d outcomes", id, len(prices), m.OutcomeCount)
	}
	m.OutcomePrices = append(m.OutcomePrices[:0], prices...)
	m.Version++
	return nil
}

// UnityDeviationBps measures how far the outcome prices drift from summing
// to 1.0. The AMM invariant check after liquidations uses this.
func (m *Market) UnityDeviationBps() int64 {
	var sum int64
	for _, p := range m.OutcomePrices {
		sum += p
	}
	return fixedpoint.DeviationBps(sum, fixedpoint.PriceScale)
}
