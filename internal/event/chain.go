package event

import (
	"fmt"

	"github.com/google/uuid"
)

// ChainStepType enumerates the composable capital operations.
type ChainStepType int32

const (
	ChainStepUnknown ChainStepType = iota
	ChainStepBorrow
	ChainStepLend
	ChainStepProvideLiquidity
	ChainStepStake
	ChainStepOpenPosition
)

func (t ChainStepType) String() string {
	switch t {
	case ChainStepBorrow:
		return "borrow"
	case ChainStepLend:
		return "lend"
	case ChainStepProvideLiquidity:
		return "provide_liquidity"
	case ChainStepStake:
		return "stake"
	case ChainStepOpenPosition:
		return "open_position"
	default:
		return "unknown"
	}
}

// ChainStepSpec describes one step of a chain request. InputStep names the
// index of an earlier step whose output funds this one, or -1 for the
// initial deposit. Forward references are invalid, which keeps the funding
// graph acyclic by construction.
type ChainStepSpec struct {
	Type      ChainStepType
	Market    string
	Outcome   int32
	Direction Side
	Amount    int64 // Fixed-point: price scale; 0 = use full input
	Leverage  int64 // Fixed-point: ratio scale, open_position steps only
	InputStep int32
}

// ChainExecute runs a full chain atomically: every step validates and
// applies, or none do. Idempotency key: chain_id.
type ChainExecute struct {
	ChainID   uuid.UUID // Idempotency key
	Owner     uuid.UUID
	Market    string // Root verse the chain anchors to
	Deposit   int64  // Fixed-point: price scale
	Steps     []ChainStepSpec
	ExecSeq   int64
	SlotSeen  int64
	Timestamp int64
}

func (c *ChainExecute) IdempotencyKey() string {
	return c.ChainID.String()
}

func (c *ChainExecute) EventType() EventType {
	return EventTypeChainExecute
}

func (c *ChainExecute) MarketID() *string {
	m := c.Market
	return &m
}

func (c *ChainExecute) SourceSequence() int64 {
	return c.ExecSeq
}

func (c *ChainExecute) Slot() int64 {
	return c.SlotSeen
}

// ChainStepAdd extends an existing chain by one step.
type ChainStepAdd struct {
	ChainID   uuid.UUID
	Market    string
	Step      ChainStepSpec
	StepSeq   int64
	SlotSeen  int64
	Timestamp int64
}

func (c *ChainStepAdd) IdempotencyKey() string {
	return fmt.Sprintf("%s:step:%d", c.ChainID, c.StepSeq)
}

func (c *ChainStepAdd) EventType() EventType {
	return EventTypeChainStepAdd
}

func (c *ChainStepAdd) MarketID() *string {
	m := c.Market
	return &m
}

func (c *ChainStepAdd) SourceSequence() int64 {
	return c.StepSeq
}

func (c *ChainStepAdd) Slot() int64 {
	return c.SlotSeen
}
