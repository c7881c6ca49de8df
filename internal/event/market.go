package event

import "fmt"

// MarketStatus mirrors the lifecycle a venue reports for a market.
type MarketStatus int32

const (
	MarketStatusUnknown MarketStatus = iota
	MarketStatusActive
	MarketStatusPaused
	MarketStatusResolving
	MarketStatusResolved
	MarketStatusVoided
)

func (s MarketStatus) String() string {
	switch s {
	case MarketStatusActive:
		return "active"
	case MarketStatusPaused:
		return "paused"
	case MarketStatusResolving:
		return "resolving"
	case MarketStatusResolved:
		return "resolved"
	case MarketStatusVoided:
		return "voided"
	default:
		return "unknown"
	}
}

// MarketSnapshot is one venue's view of a market at a point in time.
// Outcome labels and prices are parallel slices sorted by label, so two
// snapshots of the same market compare positionally.
type MarketSnapshot struct {
	Source     OracleSource
	Outcomes   []string
	Prices     []int64 // Fixed-point: price scale, one per outcome
	Volume24h  int64
	Status     MarketStatus
	Resolved   bool
	Winner     int32 // Outcome index, valid only when Resolved
	LastUpdate int64 // Epoch microseconds
}

// MarketSnapshotPair carries two venues' snapshots of the same market for
// cross-validation. Idempotency key: market + pair sequence.
type MarketSnapshotPair struct {
	Market     string
	Primary    MarketSnapshot
	Comparison MarketSnapshot
	PairSeq    int64
	SlotSeen   int64
	Timestamp  int64
}

func (m *MarketSnapshotPair) IdempotencyKey() string {
	return fmt.Sprintf("%s:pair:%d", m.Market, m.PairSeq)
}

func (m *MarketSnapshotPair) EventType() EventType {
	return EventTypeMarketSnapshotPair
}

func (m *MarketSnapshotPair) MarketID() *string {
	mk := m.Market
	return &mk
}

func (m *MarketSnapshotPair) SourceSequence() int64 {
	return m.PairSeq
}

func (m *MarketSnapshotPair) Slot() int64 {
	return m.SlotSeen
}

// MarketStatusUpdate registers a market or moves it through its lifecycle.
// OutcomeCount and VerseDepth drive the leverage tier cap.
type MarketStatusUpdate struct {
	Market       string
	Status       MarketStatus
	OutcomeCount int32
	VerseDepth   int32 // Nesting depth: 0 = root verse
	ParentMarket string
	UpdateSeq    int64
	SlotSeen     int64
	Timestamp    int64
}

func (m *MarketStatusUpdate) IdempotencyKey() string {
	return fmt.Sprintf("%s:status:%d", m.Market, m.UpdateSeq)
}

func (m *MarketStatusUpdate) EventType() EventType {
	return EventTypeMarketStatusUpdate
}

func (m *MarketStatusUpdate) MarketID() *string {
	mk := m.Market
	return &mk
}

func (m *MarketStatusUpdate) SourceSequence() int64 {
	return m.UpdateSeq
}

func (m *MarketStatusUpdate) Slot() int64 {
	return m.SlotSeen
}
