package chain

import (
	"github.com/google/uuid"

	"VerseRisk/internal/event"
	"VerseRisk/internal/fixedpoint"
)

// MaxChainDepth bounds how many steps one chain may compose.
const MaxChainDepth = 5

// Yield parameters for liquidity-provision steps: target loss-versus-
// rebalancing in bps and the time-decay constant.
const (
	LvrTargetBps = int64(500)
	Tau          = int64(1_000)
)

// StakeDepthDivisor scales the staking bonus by verse depth:
// return = stake * (1 + depth/32).
const StakeDepthDivisor = int64(32)

// MaxStepLeverage caps the leverage of a chain-opened position at 50x.
const MaxStepLeverage = 50 * fixedpoint.One

// ChainStatus tracks the chain lifecycle.
type ChainStatus int32

const (
	StatusInitialized ChainStatus = iota
	StatusActive
	StatusCompleted
	StatusFailed
)

func (s ChainStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "initialized"
	}
}

// AppliedStep is one committed step with its funding flow.
type AppliedStep struct {
	Spec       event.ChainStepSpec
	Input      int64
	Output     int64
	Multiplier int64 // ratio scale
	Yield      int64 // liquidity steps only
	PositionID [32]byte
}

// ChainState is the persistent record of one capital chain.
type ChainState struct {
	ID                uuid.UUID
	Owner             uuid.UUID
	Verse             string
	Deposit           int64
	Balance           int64
	Steps             []AppliedStep
	Status            ChainStatus
	EffectiveLeverage int64 // ratio scale; product of step multipliers
	CreatedSlot       int64
}

// Depth returns the number of applied steps.
func (c *ChainState) Depth() int {
	return len(c.Steps)
}

// borrowOutput sizes a borrow against its input with diminishing returns:
// amount = input * multiplier / sqrt(depth+1).
func borrowOutput(input, multiplier int64, depth int) int64 {
	out := fixedpoint.MulDiv(input, multiplier, fixedpoint.One, fixedpoint.RoundHalfEven)
	// sqrt(depth+1) in ratio scale
	sqrtScaled := fixedpoint.Sqrt(int64(depth+1) * fixedpoint.One * fixedpoint.One)
	return fixedpoint.MulDiv(out, fixedpoint.One, sqrtScaled, fixedpoint.RoundHalfEven)
}

// liquidityYield approximates LP income over the decay horizon:
// yield = amount * lvrTarget * tau / 1000.
func liquidityYield(amount int64) int64 {
	y := fixedpoint.ApplyBps(amount, LvrTargetBps)
	return fixedpoint.MulDiv(y, Tau, 1_000, fixedpoint.RoundHalfEven)
}

// stakeOutput grants a depth bonus: stake * (1 + depth/32).
func stakeOutput(amount int64, verseDepth int32) int64 {
	bonus := fixedpoint.MulDiv(amount, int64(verseDepth), StakeDepthDivisor, fixedpoint.RoundHalfEven)
	return amount + bonus
}
