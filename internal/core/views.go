package core

import (
	"fmt"

	"VerseRisk/internal/keeper"
	"VerseRisk/internal/oracle"
	"VerseRisk/internal/risk"
	"VerseRisk/internal/state"
)

// Read views copy state out under the core lock so HTTP handlers never
// touch live structures.

// MarketPriceView is a point-in-time read of one market's pricing.
type MarketPriceView struct {
	Market         string
	Status         string
	OutcomePrices  []int64
	MedianPrice    int64
	Confidence     int64
	Sources        int
	FallbackActive bool
	UpdateSeq      int64
	AsOfSequence   int64
}

// MarketPrice aggregates the oracle median and catalog state for a market.
// Takes the write lock: MedianPrice refreshes the aggregator's staleness
// markers and last-good cache.
func (c *RiskCore) MarketPrice(marketID string, nowSlot int64) (*MarketPriceView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.catalog.Get(marketID)
	if m == nil {
		return nil, fmt.Errorf("market %s not in catalog", marketID)
	}

	view := &MarketPriceView{
		Market:         m.ID,
		Status:         m.Status.String(),
		OutcomePrices:  append([]int64(nil), m.OutcomePrices...),
		FallbackActive: c.oracle.FallbackActive(marketID),
		UpdateSeq:      m.UpdateSeq,
		AsOfSequence:   c.sequence - 1,
	}

	agg, err := c.oracle.MedianPrice(marketID, nowSlot)
	if err != nil {
		// Median unavailable is not an error for the view: the market row
		// still answers, with zero oracle fields.
		if last, ok := c.oracle.LastPrice(marketID); ok {
			agg = last
		} else {
			agg = oracle.AggregatePrice{}
		}
	}
	view.MedianPrice = agg.Price
	view.Confidence = agg.Confidence
	view.Sources = agg.Sources

	return view, nil
}

// PositionHealthView is a copy of one position's risk record with its
// current mark and health ratio attached.
type PositionHealthView struct {
	Health      risk.PositionHealth
	Position    state.Position
	MarkPrice   int64
	HealthRatio int64
	Queued      bool
	QueueTier   string

	AsOfSequence int64
}

// PositionHealth copies the live risk record for one position. Write lock
// for the same reason as MarketPrice.
func (c *RiskCore) PositionHealth(id [32]byte, nowSlot int64) (*PositionHealthView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.health.Get(id)
	if h == nil {
		return nil, fmt.Errorf("position %x not monitored", id[:8])
	}
	pos := c.positions.Get(id)
	if pos == nil {
		return nil, fmt.Errorf("position %x has health but no record", id[:8])
	}

	view := &PositionHealthView{
		Health:       *h,
		Position:     *pos,
		AsOfSequence: c.sequence - 1,
	}
	view.Health.ChainSteps = append([]risk.ChainStepRecord(nil), h.ChainSteps...)

	if agg, err := c.oracle.MedianPrice(h.Market, nowSlot); err == nil {
		view.MarkPrice = agg.Price
		view.HealthRatio = risk.HealthRatio(agg.Price, h.LiquidationPrice, h.Direction)
	} else if last, ok := c.oracle.LastPrice(h.Market); ok {
		view.MarkPrice = last.Price
		view.HealthRatio = risk.HealthRatio(last.Price, h.LiquidationPrice, h.Direction)
	}

	if tier, ok := c.queue.Contains(id); ok {
		view.Queued = true
		view.QueueTier = tier.String()
	}

	return view, nil
}

// QueueView is a copy of both liquidation tiers plus counters.
type QueueView struct {
	High   []keeper.Entry
	Medium []keeper.Entry
	Stats  keeper.QueueStats

	AsOfSequence int64
}

// LiquidationQueue copies the pending liquidation queue.
func (c *RiskCore) LiquidationQueue() *QueueView {
	c.mu.RLock()
	defer c.mu.RUnlock()

	high, medium := c.queue.Snapshot()
	return &QueueView{
		High:         high,
		Medium:       medium,
		Stats:        c.queue.Stats,
		AsOfSequence: c.sequence - 1,
	}
}

// KeeperView is a copy of one keeper's registry record.
type KeeperView struct {
	Keeper keeper.Keeper

	AsOfSequence int64
}

// KeeperRoster copies the keeper registry in priority order.
func (c *RiskCore) KeeperRoster() []KeeperView {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ranked := c.keepers.Ranked()
	views := make([]KeeperView, 0, len(ranked))
	for _, k := range ranked {
		views = append(views, KeeperView{
			Keeper:       *k,
			AsOfSequence: c.sequence - 1,
		})
	}
	return views
}

// ConfigView copies the live risk parameters.
func (c *RiskCore) ConfigView() risk.GlobalConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// MarketList copies the catalog for listing endpoints.
func (c *RiskCore) MarketList() []state.Market {
	c.mu.RLock()
	defer c.mu.RUnlock()

	all := c.catalog.All()
	out := make([]state.Market, 0, len(all))
	for _, m := range all {
		cp := *m
		cp.OutcomePrices = append([]int64(nil), m.OutcomePrices...)
		out = append(out, cp)
	}
	return out
}
