package oracle

import (
	"fmt"

	"VerseRisk/internal/fixedpoint"
)

// fallbackState freezes the last good aggregate when live sources drop
// below quorum. Confidence decays linearly to zero across the window.
type fallbackState struct {
	snapshot      AggregatePrice
	activatedSlot int64
}

// ActivateFallback snapshots the last good aggregate for a market. Returns
// ErrNoPriceHistory when no aggregate was ever computed, and
// ErrInsufficientConfidence when the snapshot was already below half the
// confidence threshold.
func (a *Aggregator) ActivateFallback(market string, nowSlot int64) error {
	last, ok := a.lastGood[market]
	if !ok {
		return fmt.Errorf("%s: %w", market, ErrNoPriceHistory)
	}
	if last.Confidence < a.cfg.ConfidenceThreshold/2 {
		return fmt.Errorf("%s: snapshot confidence %dbps: %w", market, last.Confidence, ErrInsufficientConfidence)
	}
	a.fallback[market] = &fallbackState{snapshot: last, activatedSlot: nowSlot}
	return nil
}

// FallbackActive reports whether a fallback snapshot exists for the market.
func (a *Aggregator) FallbackActive(market string) bool {
	_, ok := a.fallback[market]
	return ok
}

// DeactivateFallback clears the fallback, typically once MedianPrice
// succeeds again.
func (a *Aggregator) DeactivateFallback(market string) {
	delete(a.fallback, market)
}

// FallbackPrice serves the decayed snapshot price while live aggregation is
// unavailable.
func (a *Aggregator) FallbackPrice(market string, nowSlot int64) (AggregatePrice, error) {
	fb, ok := a.fallback[market]
	if !ok {
		return AggregatePrice{}, fmt.Errorf("%s: %w", market, ErrFallbackNotActive)
	}

	elapsed := nowSlot - fb.activatedSlot
	if elapsed > a.cfg.MaxFallbackSlots {
		return AggregatePrice{}, fmt.Errorf("%s: %d slots elapsed: %w", market, elapsed, ErrFallbackExpired)
	}
	if elapsed < 0 {
		elapsed = 0
	}

	decayed := fb.snapshot.Confidence -
		fixedpoint.MulDiv(fb.snapshot.Confidence, elapsed, a.cfg.MaxFallbackSlots, fixedpoint.RoundDown)
	if decayed < a.cfg.ConfidenceThreshold/2 {
		return AggregatePrice{}, fmt.Errorf("%s: decayed confidence %dbps: %w", market, decayed, ErrInsufficientConfidence)
	}

	out := fb.snapshot
	out.Confidence = decayed
	out.Slot = nowSlot
	return out, nil
}
