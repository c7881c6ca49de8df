package risk

import (
	"fmt"

	"VerseRisk/internal/event"
	"VerseRisk/internal/fixedpoint"
)

// Monitor runs one health check against the aggregate price observed at
// priceSlot. Stale prices fail the check outright: a liquidation decided on
// old data is worse than a late one.
func Monitor(cfg *GlobalConfig, h *PositionHealth, markPrice, priceSlot, nowSlot, nowMicros int64) (MonitorResult, error) {
	if cfg.EmergencyHalt {
		return MonitorResult{}, ErrEmergencyHalt
	}
	if age := nowSlot - priceSlot; age > cfg.MaxPriceAgeSlots {
		return MonitorResult{}, fmt.Errorf("%s: price %d slots old: %w", h.Market, age, ErrStalePriceFeed)
	}

	ratio := HealthRatio(markPrice, h.LiquidationPrice, h.Direction)
	res := MonitorResult{
		HealthRatio:       ratio,
		EffectiveLeverage: h.EffectiveLeverage,
	}

	switch {
	case ratio <= fixedpoint.One:
		res.NeedsLiquidation = true
		res.AddToQueue = true
		res.Tier = TierHigh
	case ratio < cfg.CriticalThreshold:
		res.WarningIssued = true
		res.AddToQueue = true
		res.Tier = TierHigh
	case ratio < cfg.WarningThreshold:
		res.WarningIssued = true
		res.AddToQueue = true
		res.Tier = TierMedium
	}
	if res.AddToQueue {
		res.Type = ChooseLiquidationType(cfg, h, markPrice)
	}

	h.LastCheckSlot = nowSlot
	h.LastCheckTime = nowMicros

	cfg.Stats.ChecksPerformed++
	if res.WarningIssued {
		cfg.Stats.WarningsIssued++
	}
	if res.NeedsLiquidation {
		cfg.Stats.LiquidationsTriggered++
		if res.Type == LiquidationEmergency {
			cfg.Stats.EmergencyLiquidations++
		}
	}
	return res, nil
}

// ChooseLiquidationType picks the liquidation size from the remaining
// cushion between mark and liquidation price. A wide cushion allows an
// orderly partial; a mark at or past the edge needs everything closed.
func ChooseLiquidationType(cfg *GlobalConfig, h *PositionHealth, markPrice int64) LiquidationType {
	breached := markPrice <= h.LiquidationPrice
	if h.Direction == event.SideShort {
		breached = markPrice >= h.LiquidationPrice
	}
	if breached {
		return LiquidationEmergency
	}

	dist := fixedpoint.DeviationBps(markPrice, h.LiquidationPrice)
	switch {
	case dist > cfg.PartialBps:
		return LiquidationPartial
	case dist >= cfg.EmergencyBps:
		return LiquidationFull
	default:
		return LiquidationEmergency
	}
}

// AddChainStep compounds the step multiplier onto the position's effective
// leverage. On rejection the record is left untouched, byte for byte.
func (h *PositionHealth) AddChainStep(cfg *GlobalConfig, stepType event.ChainStepType, slot int64) error {
	mult, err := StepMultiplier(stepType)
	if err != nil {
		return err
	}

	next := fixedpoint.Mul(h.EffectiveLeverage, mult)
	if next > cfg.MaxEffectiveLeverage {
		return fmt.Errorf("effective leverage %d would exceed cap %d: %w",
			next, cfg.MaxEffectiveLeverage, ErrMaxLeverageExceeded)
	}

	h.EffectiveLeverage = next
	h.LiquidationPrice = LiquidationPrice(h.EntryPrice, next, h.Direction, cfg.MaintenanceFactor)
	h.ChainSteps = append(h.ChainSteps, ChainStepRecord{
		Type:        stepType,
		Multiplier:  mult,
		AppliedSlot: slot,
	})
	return nil
}
