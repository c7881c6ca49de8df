package event

import (
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeOraclePriceUpdate
	EventTypeMarketSnapshotPair
	EventTypeMarketStatusUpdate
	EventTypePositionOpen
	EventTypeChainExecute
	EventTypeChainStepAdd
	EventTypeKeeperRegister
	EventTypeKeeperStake
	EventTypeLiquidationSubmit
	EventTypeRiskParamUpdate
)

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Market context (nullable for global events)
	MarketID *string

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Slot height the input was observed at. Staleness windows and keeper
	// cooldowns are measured in slots, not wall-clock time.
	Slot int64

	// Upstream sequence for ordering validation
	SourceSequence int64

	// Binary-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// MarketID returns the market context (nil for global events)
	MarketID() *string

	// SourceSequence returns upstream ordering key
	SourceSequence() int64

	// Slot returns the slot height the input was observed at
	Slot() int64
}

func (et EventType) String() string {
	switch et {
	case EventTypeOraclePriceUpdate:
		return "OraclePriceUpdate"
	case EventTypeMarketSnapshotPair:
		return "MarketSnapshotPair"
	case EventTypeMarketStatusUpdate:
		return "MarketStatusUpdate"
	case EventTypePositionOpen:
		return "PositionOpen"
	case EventTypeChainExecute:
		return "ChainExecute"
	case EventTypeChainStepAdd:
		return "ChainStepAdd"
	case EventTypeKeeperRegister:
		return "KeeperRegister"
	case EventTypeKeeperStake:
		return "KeeperStake"
	case EventTypeLiquidationSubmit:
		return "LiquidationSubmit"
	case EventTypeRiskParamUpdate:
		return "RiskParamUpdate"
	default:
		return "Unknown"
	}
}
