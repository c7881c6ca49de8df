package risk

import (
	"github.com/google/uuid"

	"VerseRisk/internal/event"
	"VerseRisk/internal/fixedpoint"
)

// Step multipliers in ratio scale. Each chain step compounds the position's
// effective leverage multiplicatively.
const (
	MultiplierBorrow    = int64(1_500_000) // 1.5x
	MultiplierLend      = int64(1_200_000) // 1.2x
	MultiplierLiquidity = int64(1_200_000) // 1.2x
	MultiplierStake     = int64(1_100_000) // 1.1x
)

// StepMultiplier returns the leverage multiplier for a chain step type.
// Position-opening steps carry no multiplier of their own.
func StepMultiplier(t event.ChainStepType) (int64, error) {
	switch t {
	case event.ChainStepBorrow:
		return MultiplierBorrow, nil
	case event.ChainStepLend:
		return MultiplierLend, nil
	case event.ChainStepProvideLiquidity:
		return MultiplierLiquidity, nil
	case event.ChainStepStake:
		return MultiplierStake, nil
	case event.ChainStepOpenPosition:
		return fixedpoint.One, nil
	default:
		return 0, ErrUnknownStepType
	}
}

// ChainStepRecord is one applied step in a position's leverage history.
type ChainStepRecord struct {
	Type        event.ChainStepType
	Multiplier  int64 // ratio scale
	AppliedSlot int64
}

// PositionHealth is the monitored risk record for one leveraged position.
type PositionHealth struct {
	PositionID [32]byte
	Owner      uuid.UUID
	Market     string
	Outcome    int32
	Direction  event.Side

	Margin     int64 // Collateral posted, price scale
	Size       int64 // Notional exposure, price scale
	EntryPrice int64 // price scale

	BaseLeverage      int64 // ratio scale
	EffectiveLeverage int64 // ratio scale; base compounded by chain steps
	LiquidationPrice  int64 // price scale

	ChainSteps          []ChainStepRecord
	PartialLiquidations int32
	TotalLiquidated     int64 // Cumulative notional removed, price scale

	LastCheckSlot int64
	LastCheckTime int64
	Closed        bool
}

// Notional returns the current exposure.
func (h *PositionHealth) Notional() int64 {
	return h.Size
}

// LiquidationType picks how much of a position gets closed.
type LiquidationType int32

const (
	LiquidationNone LiquidationType = iota
	LiquidationPartial
	LiquidationFull
	LiquidationEmergency
)

func (t LiquidationType) String() string {
	switch t {
	case LiquidationPartial:
		return "partial"
	case LiquidationFull:
		return "full"
	case LiquidationEmergency:
		return "emergency"
	default:
		return "none"
	}
}

// PartialFraction is the slice of a position removed by one partial
// liquidation, in ratio scale (30%).
const PartialFraction = int64(300_000)

// QueueTier routes a distressed position to keeper dispatch.
type QueueTier int32

const (
	TierNone QueueTier = iota
	TierMedium
	TierHigh
)

func (q QueueTier) String() string {
	switch q {
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	default:
		return "none"
	}
}

// MonitorResult is one health check outcome.
type MonitorResult struct {
	HealthRatio       int64 // ratio scale; 1.0 = at liquidation threshold
	EffectiveLeverage int64
	NeedsLiquidation  bool
	WarningIssued     bool
	AddToQueue        bool
	Tier              QueueTier
	Type              LiquidationType
}
