package state

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"VerseRisk/internal/event"
	"VerseRisk/internal/fixedpoint"
)

// PositionManager owns every position record. Single-threaded, driven by
// the core loop.
type PositionManager struct {
	positions map[[32]byte]*Position

	// byOwner speeds up per-user queries; values share the same records.
	byOwner map[uuid.UUID][][32]byte
}

func NewPositionManager() *PositionManager {
	return &PositionManager{
		positions: make(map[[32]byte]*Position),
		byOwner:   make(map[uuid.UUID][][32]byte),
	}
}

// Get returns the position or nil.
func (pm *PositionManager) Get(id [32]byte) *Position {
	return pm.positions[id]
}

// Open creates a new position record. The ID derives from owner, market and
// slot, so re-applying the same open is a no-op returning the existing record.
func (pm *PositionManager) Open(
	owner uuid.UUID,
	market string,
	outcome int32,
	direction event.Side,
	margin, size, entryPrice, slot int64,
) *Position {
	id := PositionID(owner, market, slot)
	if existing := pm.positions[id]; existing != nil {
		return existing
	}
	pos := &Position{
		ID:         id,
		Owner:      owner,
		Market:     market,
		Outcome:    outcome,
		Direction:  direction,
		Size:       size,
		EntryPrice: entryPrice,
		Margin:     margin,
		OpenedSlot: slot,
	}
	pm.positions[id] = pos
	pm.byOwner[owner] = append(pm.byOwner[owner], id)
	return pos
}

// Restore installs a persisted position record during snapshot restore.
func (pm *PositionManager) Restore(pos *Position) {
	if existing := pm.positions[pos.ID]; existing == nil {
		pm.byOwner[pos.Owner] = append(pm.byOwner[pos.Owner], pos.ID)
	}
	pm.positions[pos.ID] = pos
}

// All returns every position ordered by ID, for snapshotting.
func (pm *PositionManager) All() []*Position {
	out := make([]*Position, 0, len(pm.positions))
	for _, p := range pm.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out
}

// OwnerPositions returns the records for one owner, open and closed.
func (pm *PositionManager) OwnerPositions(owner uuid.UUID) []*Position {
	ids := pm.byOwner[owner]
	out := make([]*Position, 0, len(ids))
	for _, id := range ids {
		out = append(out, pm.positions[id])
	}
	return out
}

// ApplyLiquidation removes notional from a position. fraction is in ratio
// scale; One or more closes the whole position. Returns the notional
// actually removed.
func (pm *PositionManager) ApplyLiquidation(id [32]byte, fraction int64, markPrice int64) (int64, error) {
	pos := pm.positions[id]
	if pos == nil {
		return 0, fmt.Errorf("position %x not found", id[:8])
	}
	if pos.IsFlat() {
		return 0, fmt.Errorf("position %x already flat", id[:8])
	}

	if fraction >= fixedpoint.One {
		removed := pos.Size
		pos.RealizedPnL += pos.UnrealizedPnL(markPrice)
		pos.Size = 0
		pos.Closed = true
		pos.Version++
		return removed, nil
	}

	removed := fixedpoint.MulDiv(pos.Size, fraction, fixedpoint.One, fixedpoint.RoundHalfEven)
	slicePnL := fixedpoint.MulDiv(pos.UnrealizedPnL(markPrice), fraction, fixedpoint.One, fixedpoint.RoundHalfEven)
	pos.RealizedPnL += slicePnL
	pos.Size -= removed
	pos.Margin -= fixedpoint.MulDiv(pos.Margin, fraction, fixedpoint.One, fixedpoint.RoundHalfEven)
	pos.Version++
	return removed, nil
}

// Count returns the number of records, open and closed.
func (pm *PositionManager) Count() int {
	return len(pm.positions)
}
