package oracle

import (
	"VerseRisk/internal/event"
	"VerseRisk/internal/fixedpoint"
)

// Default aggregation parameters. All are config-overridable; the values
// here are the operating defaults.
const (
	// MaxPriceAgeSlots is how old a feed may be before it is excluded
	// from the median.
	MaxPriceAgeSlots = int64(30)

	// MaxFallbackSlots bounds how long a fallback snapshot stays usable.
	MaxFallbackSlots = int64(300)

	// MinLiquidity is the venue depth floor, $10k at price scale.
	MinLiquidity = int64(10_000 * 100_000_000)

	// ConfidenceThreshold is the minimum feed confidence in bps.
	ConfidenceThreshold = int64(9_500)

	// MaxPriceDeviationBps bounds how far yes+no may drift from unity.
	MaxPriceDeviationBps = int64(500)

	// HistoryCap bounds the rolling per-market price history.
	HistoryCap = 100
)

// FeedStatus classifies the current usability of one source's feed.
type FeedStatus int32

const (
	FeedStatusDisconnected FeedStatus = iota
	FeedStatusActive
	FeedStatusInsufficient
	FeedStatusStale
)

func (s FeedStatus) String() string {
	switch s {
	case FeedStatusActive:
		return "active"
	case FeedStatusInsufficient:
		return "insufficient"
	case FeedStatusStale:
		return "stale"
	default:
		return "disconnected"
	}
}

// PriceFeed is the latest accepted observation from one source.
type PriceFeed struct {
	Source         event.OracleSource
	YesPrice       int64 // Fixed-point: price scale
	NoPrice        int64 // Fixed-point: price scale
	Liquidity      int64
	Confidence     int64 // bps, 0..10_000
	UpdateSeq      int64
	LastUpdateSlot int64
	LastTimestamp  int64
	Status         FeedStatus
}

// FreshAt reports whether the feed is usable for aggregation at nowSlot.
func (f *PriceFeed) FreshAt(nowSlot, maxAgeSlots int64) bool {
	if f.Status == FeedStatusDisconnected {
		return false
	}
	return nowSlot-f.LastUpdateSlot <= maxAgeSlots
}

// PricePoint is one entry of the rolling aggregate-price history.
type PricePoint struct {
	Price     int64
	Slot      int64
	Timestamp int64
}

// AggregatePrice is a median computation result.
type AggregatePrice struct {
	Price      int64
	Confidence int64 // bps; minimum across contributing feeds
	Sources    int
	Slot       int64
}

// feedConfidence scores a feed in bps from its unity spread and depth.
// Spread past MaxPriceDeviationBps would have been rejected, so the
// penalty tops out there; depth adds up to 500 bps back.
func feedConfidence(yesPrice, noPrice, liquidity int64) int64 {
	spread := fixedpoint.DeviationBps(yesPrice+noPrice, fixedpoint.PriceScale)
	if spread > MaxPriceDeviationBps {
		spread = MaxPriceDeviationBps
	}

	conf := fixedpoint.BpsDenom - spread
	conf += liquidityScore(liquidity)
	if conf > fixedpoint.BpsDenom {
		conf = fixedpoint.BpsDenom
	}
	if conf < 0 {
		conf = 0
	}
	return conf
}

// liquidityScore grants up to 500 bps for depth above the floor,
// saturating at 5x MinLiquidity.
func liquidityScore(liquidity int64) int64 {
	if liquidity <= MinLiquidity {
		return 0
	}
	score := fixedpoint.MulDiv(liquidity-MinLiquidity, 100, MinLiquidity, fixedpoint.RoundDown)
	if score > 500 {
		score = 500
	}
	return score
}
