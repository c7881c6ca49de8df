package state

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/google/uuid"

	"VerseRisk/internal/event"
	"VerseRisk/internal/fixedpoint"
)

// Position is a user's leveraged exposure to one outcome of a verse.
// Positions are never deleted: a fully liquidated or closed position keeps
// its record with zero size for audit replay.
type Position struct {
	ID         [32]byte
	Owner      uuid.UUID
	Market     string
	Outcome    int32
	Direction  event.Side
	Size       int64 // Notional, price scale
	EntryPrice int64 // price scale
	Margin     int64 // price scale

	RealizedPnL int64
	Closed      bool
	OpenedSlot  int64
	Version     int64 // Bumped on every mutation
}

// PositionID derives the stable 32-byte identifier from owner, market and
// the slot the position opened at.
func PositionID(owner uuid.UUID, market string, slot int64) [32]byte {
	h := sha256.New()
	h.Write(owner[:])
	h.Write([]byte(market))
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(slot))
	h.Write(buf[:])
	var id [32]byte
	copy(id[:], h.Sum(nil))
	return id
}

// IsFlat reports whether the position carries exposure.
func (p *Position) IsFlat() bool {
	return p.Closed || p.Size == 0
}

// SideSign returns +1 for long, -1 for short, 0 for flat.
func (p *Position) SideSign() int64 {
	switch p.Direction {
	case event.SideLong:
		return 1
	case event.SideShort:
		return -1
	default:
		return 0
	}
}

// UnrealizedPnL is derived on read, never cached across events.
func (p *Position) UnrealizedPnL(markPrice int64) int64 {
	if p.IsFlat() || p.EntryPrice == 0 {
		return 0
	}
	diff := markPrice - p.EntryPrice
	return p.SideSign() * fixedpoint.MulDiv(p.Size, diff, p.EntryPrice, fixedpoint.RoundHalfEven)
}
