package event

import "fmt"

// OracleSource identifies which venue a price observation came from.
type OracleSource int32

const (
	SourceUnknown OracleSource = iota
	SourcePolymarket
	SourceKalshi
	SourceInternalAMM
)

func (s OracleSource) String() string {
	switch s {
	case SourcePolymarket:
		return "polymarket"
	case SourceKalshi:
		return "kalshi"
	case SourceInternalAMM:
		return "internal_amm"
	default:
		return "unknown"
	}
}

// OraclePriceUpdate is a single-source price observation for one market.
// Idempotency key: source + market + upstream sequence.
type OraclePriceUpdate struct {
	Source    OracleSource
	Market    string
	YesPrice  int64 // Fixed-point: price scale (decimal_precision=8)
	NoPrice   int64 // Fixed-point: price scale
	Liquidity int64 // Venue depth at top of book, price scale
	Volume24h int64 // Rolling 24h volume, price scale
	Signature [64]byte
	PubKey    [32]byte
	UpdateSeq int64 // Monotonic per source+market
	SlotSeen  int64
	Timestamp int64 // Epoch microseconds (versioned input)
}

func (o *OraclePriceUpdate) IdempotencyKey() string {
	return fmt.Sprintf("%s:%s:price:%d", o.Source, o.Market, o.UpdateSeq)
}

func (o *OraclePriceUpdate) EventType() EventType {
	return EventTypeOraclePriceUpdate
}

func (o *OraclePriceUpdate) MarketID() *string {
	m := o.Market
	return &m
}

func (o *OraclePriceUpdate) SourceSequence() int64 {
	return o.UpdateSeq
}

func (o *OraclePriceUpdate) Slot() int64 {
	return o.SlotSeen
}
