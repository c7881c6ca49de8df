package event

import (
	"github.com/google/uuid"
)

// Side represents position direction
type Side int32

const (
	SideFlat Side = iota
	SideLong
	SideShort
)

func (s Side) String() string {
	switch s {
	case SideLong:
		return "long"
	case SideShort:
		return "short"
	default:
		return "flat"
	}
}

// PositionOpen opens a leveraged position on one outcome of a market.
// Idempotency key: intent_id (UUID from the order gateway).
type PositionOpen struct {
	IntentID  uuid.UUID // Idempotency key
	Trader    uuid.UUID
	Market    string
	Outcome   int32
	Direction Side
	Margin    int64 // Fixed-point: price scale (collateral posted)
	Leverage  int64 // Fixed-point: ratio scale (10x == 10_000_000)
	OpenSeq   int64
	SlotSeen  int64
	Timestamp int64
}

func (p *PositionOpen) IdempotencyKey() string {
	return p.IntentID.String()
}

func (p *PositionOpen) EventType() EventType {
	return EventTypePositionOpen
}

func (p *PositionOpen) MarketID() *string {
	m := p.Market
	return &m
}

func (p *PositionOpen) SourceSequence() int64 {
	return p.OpenSeq
}

func (p *PositionOpen) Slot() int64 {
	return p.SlotSeen
}
