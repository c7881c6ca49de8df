package risk

import (
	"github.com/google/uuid"

	"VerseRisk/internal/fixedpoint"
)

// GlobalConfig carries the platform-wide risk parameters. Mutated only by
// RiskParamUpdate events from the configured authority.
type GlobalConfig struct {
	Authority     uuid.UUID
	EmergencyHalt bool

	MaxPriceAgeSlots int64

	// Health thresholds in ratio scale. Liquidation triggers at 1.0;
	// warning and critical sit above it.
	WarningThreshold  int64
	CriticalThreshold int64

	// MaintenanceFactor scales the liquidation distance: 1.0 liquidates
	// exactly when losses consume the full margin.
	MaintenanceFactor int64

	// MaxEffectiveLeverage caps base leverage compounded by chain steps.
	MaxEffectiveLeverage int64

	// Liquidation-type boundaries, bps distance from the liquidation price.
	PartialBps   int64 // above: partial
	EmergencyBps int64 // below: emergency

	LiquidationCooldownSlots int64

	KeeperRewardBps int64 // of liquidated notional
	StopBountyBps   int64 // prepaid user stop orders
	SlashBps        int64 // of keeper stake on failed execution

	Stats MonitoringStats
}

// MonitoringStats is the rolling operational counter set.
type MonitoringStats struct {
	ChecksPerformed       int64
	WarningsIssued        int64
	LiquidationsTriggered int64
	EmergencyLiquidations int64
}

// DefaultConfig returns the operating defaults.
func DefaultConfig() GlobalConfig {
	return GlobalConfig{
		MaxPriceAgeSlots:         30,
		WarningThreshold:         1_100_000, // 1.10
		CriticalThreshold:        1_050_000, // 1.05
		MaintenanceFactor:        fixedpoint.One,
		MaxEffectiveLeverage:     200 * fixedpoint.One,
		PartialBps:               500,
		EmergencyBps:             100,
		LiquidationCooldownSlots: 25,
		KeeperRewardBps:          5,
		StopBountyBps:            2,
		SlashBps:                 500, // 5% of stake
	}
}

// MaxLeverageForOutcomeCount returns the base-leverage tier cap in ratio
// scale. More outcomes means thinner books, so caps tighten fast.
func MaxLeverageForOutcomeCount(outcomes int32) int64 {
	var multiple int64
	switch {
	case outcomes <= 1:
		multiple = 100
	case outcomes == 2:
		multiple = 70
	case outcomes <= 4:
		multiple = 25
	case outcomes <= 8:
		multiple = 15
	case outcomes <= 16:
		multiple = 12
	case outcomes <= 64:
		multiple = 10
	default:
		multiple = 5
	}
	return multiple * fixedpoint.One
}
