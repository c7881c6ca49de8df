package venue

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"VerseRisk/internal/event"
	"VerseRisk/internal/oracle"
)

// publisher is the slice of jetstream.JetStream the relayer needs.
type publisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// SlotLength is the nominal slot duration used to derive slot heights from
// wall-clock time.
const SlotLength = 400 * time.Millisecond

// Relayer polls the configured venues on an interval and publishes what it
// sees: one signed price update per venue, plus a snapshot pair for
// cross-validation whenever two venues answered.
type Relayer struct {
	venues   []Venue
	js       publisher
	markets  []string
	interval time.Duration
	signer   ed25519.PrivateKey
	slotFn   func() int64
	log      zerolog.Logger

	updateSeqs map[string]int64 // source:market
	pairSeqs   map[string]int64 // market
}

func NewRelayer(js publisher, venues []Venue, markets []string, interval time.Duration, signer ed25519.PrivateKey, log zerolog.Logger) *Relayer {
	return &Relayer{
		venues:     venues,
		js:         js,
		markets:    markets,
		interval:   interval,
		signer:     signer,
		slotFn:     func() int64 { return time.Now().UnixNano() / int64(SlotLength) },
		log:        log,
		updateSeqs: make(map[string]int64),
		pairSeqs:   make(map[string]int64),
	}
}

// Run polls until the context is cancelled.
func (r *Relayer) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, market := range r.markets {
				r.pollMarket(ctx, market)
			}
		}
	}
}

func (r *Relayer) pollMarket(ctx context.Context, market string) {
	slot := r.slotFn()
	quotes := make([]Quote, 0, len(r.venues))

	for _, v := range r.venues {
		quote, err := v.FetchQuote(ctx, market)
		if err != nil {
			r.log.Warn().Err(err).Str("market", market).Stringer("source", v.Source()).Msg("venue fetch failed")
			continue
		}
		quotes = append(quotes, quote)

		if err := r.publishPrice(ctx, market, quote, slot); err != nil {
			r.log.Warn().Err(err).Str("market", market).Msg("price publish failed")
		}
	}

	// Cross-validation needs two independent views.
	if len(quotes) >= 2 {
		if err := r.publishPair(ctx, market, quotes[0], quotes[1], slot); err != nil {
			r.log.Warn().Err(err).Str("market", market).Msg("pair publish failed")
		}
	}
}

func (r *Relayer) publishPrice(ctx context.Context, market string, q Quote, slot int64) error {
	seqKey := fmt.Sprintf("%s:%s", q.Source, market)
	r.updateSeqs[seqKey]++

	wire, err := json.Marshal(r.PriceUpdateWire(market, q, slot, r.updateSeqs[seqKey]))
	if err != nil {
		return err
	}
	_, err = r.js.Publish(ctx, fmt.Sprintf("verse.oracle.prices.%s", market), wire)
	return err
}

// PriceUpdateWire builds the signed wire payload for one quote. The no price
// is complemented from yes when the venue quotes a single probability.
func (r *Relayer) PriceUpdateWire(market string, q Quote, slot, seq int64) map[string]interface{} {
	yes := q.YesPrice()
	no := int64(0)
	for i, label := range q.Outcomes {
		if strings.EqualFold(label, "no") {
			no = q.Prices[i]
		}
	}

	upd := &event.OraclePriceUpdate{
		Source:    q.Source,
		Market:    market,
		YesPrice:  yes,
		NoPrice:   no,
		Liquidity: q.Liquidity,
		Volume24h: q.Volume24h,
		UpdateSeq: seq,
		SlotSeen:  slot,
		Timestamp: q.UpdatedUs,
	}
	copy(upd.Signature[:], ed25519.Sign(r.signer, oracle.SigningBytes(upd)))
	copy(upd.PubKey[:], r.signer.Public().(ed25519.PublicKey))

	return map[string]interface{}{
		"source":       upd.Source.String(),
		"market":       upd.Market,
		"yes_price":    upd.YesPrice,
		"no_price":     upd.NoPrice,
		"liquidity":    upd.Liquidity,
		"volume_24h":   upd.Volume24h,
		"signature":    hex.EncodeToString(upd.Signature[:]),
		"pub_key":      hex.EncodeToString(upd.PubKey[:]),
		"update_seq":   upd.UpdateSeq,
		"slot":         upd.SlotSeen,
		"timestamp_us": upd.Timestamp,
	}
}

func (r *Relayer) publishPair(ctx context.Context, market string, primary, comparison Quote, slot int64) error {
	r.pairSeqs[market]++

	wire, err := json.Marshal(map[string]interface{}{
		"market":       market,
		"primary":      snapshotWire(primary),
		"comparison":   snapshotWire(comparison),
		"pair_seq":     r.pairSeqs[market],
		"slot":         slot,
		"timestamp_us": time.Now().UnixMicro(),
	})
	if err != nil {
		return err
	}
	_, err = r.js.Publish(ctx, fmt.Sprintf("verse.markets.snapshots.%s", market), wire)
	return err
}

// snapshotWire normalizes a quote for positional comparison: outcomes sorted
// by lowercased label, prices carried along.
func snapshotWire(q Quote) map[string]interface{} {
	type pair struct {
		label string
		price int64
	}
	pairs := make([]pair, len(q.Outcomes))
	for i := range q.Outcomes {
		pairs[i] = pair{label: strings.ToLower(q.Outcomes[i]), price: q.Prices[i]}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].label < pairs[j].label })

	outcomes := make([]string, len(pairs))
	prices := make([]int64, len(pairs))
	for i, p := range pairs {
		outcomes[i] = p.label
		prices[i] = p.price
	}

	return map[string]interface{}{
		"source":         q.Source.String(),
		"outcomes":       outcomes,
		"prices":         prices,
		"volume_24h":     q.Volume24h,
		"status":         q.Status.String(),
		"resolved":       q.Resolved,
		"winner":         q.Winner,
		"last_update_us": q.UpdatedUs,
	}
}
