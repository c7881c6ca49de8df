// Package venue polls external prediction-market venues and relays their
// order books as signed oracle observations. The relayer is just another
// producer: everything it emits enters through the normal NATS subjects, so
// the core never trusts it more than any other upstream.
package venue

import (
	"context"
	"fmt"
	"strings"

	"VerseRisk/internal/event"
	"VerseRisk/internal/fixedpoint"
)

// Quote is one venue's view of a market, normalized to fixed-point.
type Quote struct {
	Source    event.OracleSource
	Outcomes  []string
	Prices    []int64 // Fixed-point: price scale, one per outcome
	Liquidity int64
	Volume24h int64
	Status    event.MarketStatus
	Resolved  bool
	Winner    int32
	UpdatedUs int64
}

// YesPrice returns the price of the "yes"-like outcome: the outcome labeled
// yes when present, otherwise index 0.
func (q Quote) YesPrice() int64 {
	for i, label := range q.Outcomes {
		if strings.EqualFold(label, "yes") {
			return q.Prices[i]
		}
	}
	if len(q.Prices) > 0 {
		return q.Prices[0]
	}
	return 0
}

// Venue fetches quotes from one upstream.
type Venue interface {
	Source() event.OracleSource
	FetchQuote(ctx context.Context, market string) (Quote, error)
}

// parsePrice converts a decimal string like "0.62" into price scale.
// Venues quote probabilities, so anything outside [0, 1] is rejected.
func parsePrice(s string) (int64, error) {
	v, err := parseDecimal(s)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > fixedpoint.PriceScale {
		return 0, fmt.Errorf("price %s outside [0, 1]", s)
	}
	return v, nil
}

// parseDecimal converts a non-negative decimal string into price scale
// (8 fractional digits). Extra precision is truncated.
func parseDecimal(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	intPart, fracPart, _ := strings.Cut(s, ".")
	if intPart == "" {
		intPart = "0"
	}

	var value int64
	for _, c := range intPart {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("bad decimal %q", s)
		}
		value = value*10 + int64(c-'0')
		if value > (1<<62)/fixedpoint.PriceScale {
			return 0, fmt.Errorf("decimal %q overflows", s)
		}
	}
	value *= fixedpoint.PriceScale

	scale := int64(fixedpoint.PriceScale / 10)
	for _, c := range fracPart {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("bad decimal %q", s)
		}
		if scale == 0 {
			break
		}
		value += int64(c-'0') * scale
		scale /= 10
	}
	return value, nil
}
