package risk

import (
	"fmt"

	"github.com/google/uuid"

	"VerseRisk/internal/event"
	"VerseRisk/internal/fixedpoint"
)

// LiquidationPrice returns the price at which losses consume the margin.
// Long: entry * (1 - maintenanceFactor/leverage), mirrored above entry for
// shorts. Fixed evaluation order keeps the result grouping-independent.
func LiquidationPrice(entryPrice, leverage int64, direction event.Side, maintenanceFactor int64) int64 {
	if leverage <= 0 {
		return 0
	}
	// distance = entry * (maintenanceFactor / leverage)
	ratio := fixedpoint.MulDiv(maintenanceFactor, fixedpoint.One, leverage, fixedpoint.RoundHalfEven)
	distance := fixedpoint.MulDiv(entryPrice, ratio, fixedpoint.One, fixedpoint.RoundHalfEven)

	if direction == event.SideShort {
		return entryPrice + distance
	}
	liq := entryPrice - distance
	if liq < 0 {
		liq = 0
	}
	return liq
}

// HealthRatio measures distance from liquidation in ratio scale: 1.0 means
// the mark price sits exactly at the liquidation price.
func HealthRatio(markPrice, liquidationPrice int64, direction event.Side) int64 {
	if direction == event.SideShort {
		if markPrice <= 0 {
			return 0
		}
		return fixedpoint.MulDiv(liquidationPrice, fixedpoint.One, markPrice, fixedpoint.RoundHalfEven)
	}
	if liquidationPrice <= 0 {
		// Liquidation at zero cannot be reached from above.
		return fixedpoint.One * 1000
	}
	return fixedpoint.MulDiv(markPrice, fixedpoint.One, liquidationPrice, fixedpoint.RoundHalfEven)
}

// NewPositionHealth builds the risk record for a freshly opened position.
// Base leverage must respect the market's outcome-count tier cap.
func NewPositionHealth(
	positionID [32]byte,
	owner uuid.UUID,
	market string,
	outcome int32,
	direction event.Side,
	margin, leverage, entryPrice int64,
	outcomeCount int32,
	cfg *GlobalConfig,
	slot, timestamp int64,
) (*PositionHealth, error) {
	if leverage <= 0 {
		return nil, fmt.Errorf("leverage %d: %w", leverage, ErrInvalidLeverage)
	}
	if cap := MaxLeverageForOutcomeCount(outcomeCount); leverage > cap {
		return nil, fmt.Errorf("leverage %d over tier cap %d for %d outcomes: %w",
			leverage, cap, outcomeCount, ErrMaxLeverageExceeded)
	}

	size := fixedpoint.MulDiv(margin, leverage, fixedpoint.One, fixedpoint.RoundHalfEven)
	return &PositionHealth{
		PositionID:        positionID,
		Owner:             owner,
		Market:            market,
		Outcome:           outcome,
		Direction:         direction,
		Margin:            margin,
		Size:              size,
		EntryPrice:        entryPrice,
		BaseLeverage:      leverage,
		EffectiveLeverage: leverage,
		LiquidationPrice:  LiquidationPrice(entryPrice, leverage, direction, cfg.MaintenanceFactor),
		LastCheckSlot:     slot,
		LastCheckTime:     timestamp,
	}, nil
}
