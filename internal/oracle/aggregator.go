package oracle

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"VerseRisk/internal/event"
	"VerseRisk/internal/fixedpoint"
)

// AuditSink receives security-relevant rejections (bad signatures, price-sum
// violations). Fire-and-forget: the aggregator never blocks on it.
type AuditSink interface {
	SecurityEvent(kind string, detail map[string]string)
}

// Config holds the aggregation parameters. Zero fields fall back to the
// package defaults.
type Config struct {
	MaxPriceAgeSlots     int64
	MaxFallbackSlots     int64
	MinLiquidity         int64
	ConfidenceThreshold  int64
	MaxPriceDeviationBps int64

	// MaxUpdatesPerSecond caps per source+market submissions. Zero disables
	// the limit.
	MaxUpdatesPerSecond float64
	UpdateBurst         int
}

func (c Config) withDefaults() Config {
	if c.MaxPriceAgeSlots == 0 {
		c.MaxPriceAgeSlots = MaxPriceAgeSlots
	}
	if c.MaxFallbackSlots == 0 {
		c.MaxFallbackSlots = MaxFallbackSlots
	}
	if c.MinLiquidity == 0 {
		c.MinLiquidity = MinLiquidity
	}
	if c.ConfidenceThreshold == 0 {
		c.ConfidenceThreshold = ConfidenceThreshold
	}
	if c.MaxPriceDeviationBps == 0 {
		c.MaxPriceDeviationBps = MaxPriceDeviationBps
	}
	if c.UpdateBurst == 0 {
		c.UpdateBurst = 1
	}
	return c
}

// sourceStats tracks accept/reject counts per source for reliability scoring.
type sourceStats struct {
	Accepted int64
	Rejected int64
}

// Aggregator maintains per-market price feeds from multiple sources and
// computes the median price. Single-threaded: called only from the core
// engine loop, so no locking.
type Aggregator struct {
	cfg         Config
	authorities map[event.OracleSource]ed25519.PublicKey
	feeds       map[string]map[event.OracleSource]*PriceFeed
	history     map[string][]PricePoint
	lastGood    map[string]AggregatePrice
	fallback    map[string]*fallbackState
	limiters    map[string]*rate.Limiter
	stats       map[event.OracleSource]*sourceStats
	audit       AuditSink
}

func NewAggregator(cfg Config, authorities map[event.OracleSource]ed25519.PublicKey, audit AuditSink) *Aggregator {
	return &Aggregator{
		cfg:         cfg.withDefaults(),
		authorities: authorities,
		feeds:       make(map[string]map[event.OracleSource]*PriceFeed),
		history:     make(map[string][]PricePoint),
		lastGood:    make(map[string]AggregatePrice),
		fallback:    make(map[string]*fallbackState),
		limiters:    make(map[string]*rate.Limiter),
		stats:       make(map[event.OracleSource]*sourceStats),
		audit:       audit,
	}
}

// SubmitUpdate verifies and stores one source observation.
// Rejections never mutate the stored feed.
func (a *Aggregator) SubmitUpdate(u *event.OraclePriceUpdate) error {
	if !a.allowUpdate(u) {
		a.markRejected(u.Source)
		return fmt.Errorf("%s/%s: %w", u.Source, u.Market, ErrUpdateTooFrequent)
	}

	if err := a.verifySignature(u); err != nil {
		a.markRejected(u.Source)
		a.security("oracle_bad_signature", u)
		return err
	}

	// Yes and no must price the same event: their sum stays within the
	// deviation band around unity.
	sumDev := fixedpoint.DeviationBps(u.YesPrice+u.NoPrice, fixedpoint.PriceScale)
	if sumDev > a.cfg.MaxPriceDeviationBps {
		a.markRejected(u.Source)
		a.security("oracle_price_sum", u)
		return fmt.Errorf("%s/%s: sum deviation %dbps: %w", u.Source, u.Market, sumDev, ErrInvalidPriceSum)
	}

	feed := &PriceFeed{
		Source:         u.Source,
		YesPrice:       u.YesPrice,
		NoPrice:        u.NoPrice,
		Liquidity:      u.Liquidity,
		Confidence:     feedConfidence(u.YesPrice, u.NoPrice, u.Liquidity),
		UpdateSeq:      u.UpdateSeq,
		LastUpdateSlot: u.SlotSeen,
		LastTimestamp:  u.Timestamp,
		Status:         FeedStatusActive,
	}
	if u.Liquidity < a.cfg.MinLiquidity {
		feed.Status = FeedStatusInsufficient
	}

	byMarket, ok := a.feeds[u.Market]
	if !ok {
		byMarket = make(map[event.OracleSource]*PriceFeed)
		a.feeds[u.Market] = byMarket
	}
	byMarket[u.Source] = feed
	a.markAccepted(u.Source)
	return nil
}

// MedianPrice aggregates the fresh feeds for a market at nowSlot.
// Two fresh sources average; three or more take the middle value(s).
func (a *Aggregator) MedianPrice(market string, nowSlot int64) (AggregatePrice, error) {
	fresh := a.freshFeeds(market, nowSlot)
	if len(fresh) < 2 {
		return AggregatePrice{}, fmt.Errorf("%s: %d fresh of required 2: %w",
			market, len(fresh), ErrInsufficientOracleSources)
	}

	prices := make([]int64, 0, len(fresh))
	minConf := int64(fixedpoint.BpsDenom)
	for _, f := range fresh {
		prices = append(prices, f.YesPrice)
		if f.Confidence < minConf {
			minConf = f.Confidence
		}
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i] < prices[j] })

	var median int64
	n := len(prices)
	if n%2 == 1 {
		median = prices[n/2]
	} else {
		median = fixedpoint.MulDiv(prices[n/2-1]+prices[n/2], 1, 2, fixedpoint.RoundHalfEven)
	}

	agg := AggregatePrice{Price: median, Confidence: minConf, Sources: n, Slot: nowSlot}
	a.lastGood[market] = agg
	a.recordPoint(market, PricePoint{Price: median, Slot: nowSlot})
	return agg, nil
}

// freshFeeds returns active feeds within the staleness window, marking the
// rest so Feeds() reflects why they were excluded.
func (a *Aggregator) freshFeeds(market string, nowSlot int64) []*PriceFeed {
	byMarket := a.feeds[market]
	fresh := make([]*PriceFeed, 0, len(byMarket))
	for _, f := range byMarket {
		if !f.FreshAt(nowSlot, a.cfg.MaxPriceAgeSlots) {
			if f.Status == FeedStatusActive {
				f.Status = FeedStatusStale
			}
			continue
		}
		if f.Status != FeedStatusActive {
			continue
		}
		fresh = append(fresh, f)
	}
	return fresh
}

// Feeds returns the stored feeds for a market, keyed by source.
func (a *Aggregator) Feeds(market string) map[event.OracleSource]*PriceFeed {
	return a.feeds[market]
}

// LastPrice returns the most recent good aggregate for a market.
func (a *Aggregator) LastPrice(market string) (AggregatePrice, bool) {
	agg, ok := a.lastGood[market]
	return agg, ok
}

// History returns a copy of the rolling aggregate-price history.
func (a *Aggregator) History(market string) []PricePoint {
	h := a.history[market]
	out := make([]PricePoint, len(h))
	copy(out, h)
	return out
}

func (a *Aggregator) recordPoint(market string, p PricePoint) {
	h := append(a.history[market], p)
	if len(h) > HistoryCap {
		h = h[len(h)-HistoryCap:]
	}
	a.history[market] = h
}

// SourceReliability returns the acceptance rate for a source in bps, or
// full score when the source has no samples yet.
func (a *Aggregator) SourceReliability(src event.OracleSource) int64 {
	st, ok := a.stats[src]
	if !ok || st.Accepted+st.Rejected == 0 {
		return fixedpoint.BpsDenom
	}
	return fixedpoint.MulDiv(st.Accepted, fixedpoint.BpsDenom, st.Accepted+st.Rejected, fixedpoint.RoundDown)
}

func (a *Aggregator) markAccepted(src event.OracleSource) {
	a.sourceStats(src).Accepted++
}

func (a *Aggregator) markRejected(src event.OracleSource) {
	a.sourceStats(src).Rejected++
}

func (a *Aggregator) sourceStats(src event.OracleSource) *sourceStats {
	st, ok := a.stats[src]
	if !ok {
		st = &sourceStats{}
		a.stats[src] = st
	}
	return st
}

// allowUpdate applies the per source+market frequency limit, driven by the
// event's versioned timestamp so replays behave identically.
func (a *Aggregator) allowUpdate(u *event.OraclePriceUpdate) bool {
	if a.cfg.MaxUpdatesPerSecond <= 0 {
		return true
	}
	key := fmt.Sprintf("%s|%s", u.Source, u.Market)
	lim, ok := a.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(a.cfg.MaxUpdatesPerSecond), a.cfg.UpdateBurst)
		a.limiters[key] = lim
	}
	return lim.AllowN(time.UnixMicro(u.Timestamp), 1)
}

func (a *Aggregator) verifySignature(u *event.OraclePriceUpdate) error {
	authority, ok := a.authorities[u.Source]
	if !ok {
		return fmt.Errorf("%s: %w", u.Source, ErrUnknownSource)
	}
	if !ed25519.Verify(authority, SigningBytes(u), u.Signature[:]) {
		return fmt.Errorf("%s/%s seq %d: %w", u.Source, u.Market, u.UpdateSeq, ErrInvalidOracleSignature)
	}
	return nil
}

func (a *Aggregator) security(kind string, u *event.OraclePriceUpdate) {
	if a.audit == nil {
		return
	}
	a.audit.SecurityEvent(kind, map[string]string{
		"source": u.Source.String(),
		"market": u.Market,
		"seq":    fmt.Sprintf("%d", u.UpdateSeq),
	})
}

// SigningBytes is the canonical message an oracle authority signs:
// market bytes followed by the numeric fields little-endian.
func SigningBytes(u *event.OraclePriceUpdate) []byte {
	buf := make([]byte, 0, len(u.Market)+48)
	buf = append(buf, u.Market...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(u.YesPrice))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(u.NoPrice))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(u.Liquidity))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(u.Volume24h))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(u.UpdateSeq))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(u.SlotSeen))
	return buf
}
