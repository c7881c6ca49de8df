package crossval

import (
	"fmt"

	"github.com/rs/zerolog"

	"VerseRisk/internal/event"
	"VerseRisk/internal/fixedpoint"
)

// Config holds validation thresholds. Deviations are in bps, drift in
// microseconds. Zero fields fall back to the defaults.
type Config struct {
	PriceCriticalBps  int64
	PriceHighBps      int64
	PriceMediumBps    int64
	PriceLowBps       int64 // Reporting floor; smaller deviations are ignored
	VolumeHighBps     int64
	VolumeMediumBps   int64
	DriftHighMicros   int64
	DriftMediumMicros int64

	// FailThreshold is the confidence below which a comparison fails.
	FailThreshold int32

	HistoryCap int
}

func (c Config) withDefaults() Config {
	if c.PriceCriticalBps == 0 {
		c.PriceCriticalBps = 2_000 // 20%
	}
	if c.PriceHighBps == 0 {
		c.PriceHighBps = 1_000
	}
	if c.PriceMediumBps == 0 {
		c.PriceMediumBps = 500
	}
	if c.PriceLowBps == 0 {
		c.PriceLowBps = 100
	}
	if c.VolumeHighBps == 0 {
		c.VolumeHighBps = 5_000
	}
	if c.VolumeMediumBps == 0 {
		c.VolumeMediumBps = 2_000
	}
	if c.DriftHighMicros == 0 {
		c.DriftHighMicros = 3_600 * 1_000_000 // 1h
	}
	if c.DriftMediumMicros == 0 {
		c.DriftMediumMicros = 600 * 1_000_000 // 10m
	}
	if c.FailThreshold == 0 {
		c.FailThreshold = 70
	}
	if c.HistoryCap == 0 {
		c.HistoryCap = 1_000
	}
	return c
}

// Validator compares two venues' views of the same market and keeps rolling
// per-source reliability. Single-threaded, driven by the core loop.
type Validator struct {
	cfg         Config
	history     []ValidationResult
	reliability map[event.OracleSource]int64 // 0..100, starts at 100
	log         zerolog.Logger
}

func NewValidator(cfg Config, log zerolog.Logger) *Validator {
	return &Validator{
		cfg:         cfg.withDefaults(),
		reliability: make(map[event.OracleSource]int64),
		log:         log,
	}
}

// ValidateMarket compares primary against comparison at nowMicros and
// records the result. The comparison source's reliability moves with the
// outcome: +1 on a clean pass, minus the worst severity's penalty otherwise.
func (v *Validator) ValidateMarket(market string, primary, comparison event.MarketSnapshot, nowMicros int64) ValidationResult {
	result := ValidationResult{
		Market:        market,
		PrimarySource: primary.Source,
		CompareSource: comparison.Source,
		ValidatedAt:   nowMicros,
	}

	v.checkMissing(&result, primary, comparison)
	if len(result.Discrepancies) == 0 {
		comparable := v.checkOutcomes(&result, primary, comparison)
		if comparable {
			// Positional price comparison only makes sense when both
			// venues agree on the outcome structure.
			v.checkPrices(&result, primary, comparison)
		}
		v.checkVolume(&result, primary, comparison)
		v.checkStatus(&result, primary, comparison)
		v.checkDrift(&result, primary, comparison)
	}

	confidence := int32(100)
	for _, d := range result.Discrepancies {
		confidence -= d.Severity.confidencePenalty()
	}
	if confidence < 0 {
		confidence = 0
	}
	result.Confidence = confidence

	switch {
	case confidence < v.cfg.FailThreshold:
		result.Status = StatusFailed
	case len(result.Discrepancies) > 0:
		result.Status = StatusPassedWithWarnings
	default:
		result.Status = StatusPassed
	}

	v.updateReliability(comparison.Source, &result)
	v.record(result)
	v.alert(&result)
	return result
}

func (v *Validator) checkMissing(r *ValidationResult, primary, comparison event.MarketSnapshot) {
	for _, snap := range []struct {
		s    event.MarketSnapshot
		name string
	}{{primary, "primary"}, {comparison, "comparison"}} {
		if len(snap.s.Outcomes) == 0 || len(snap.s.Prices) == 0 {
			r.Discrepancies = append(r.Discrepancies, Discrepancy{
				Type:         DiscrepancyMissingData,
				Severity:     SeverityHigh,
				OutcomeIndex: -1,
				Detail:       fmt.Sprintf("%s snapshot from %s has no outcome data", snap.name, snap.s.Source),
			})
		}
	}
}

func (v *Validator) checkOutcomes(r *ValidationResult, primary, comparison event.MarketSnapshot) bool {
	if len(primary.Outcomes) != len(comparison.Outcomes) {
		r.Discrepancies = append(r.Discrepancies, Discrepancy{
			Type:         DiscrepancyOutcomeMismatch,
			Severity:     SeverityCritical,
			OutcomeIndex: -1,
			Detail: fmt.Sprintf("outcome count %d vs %d",
				len(primary.Outcomes), len(comparison.Outcomes)),
		})
		return false
	}
	for i := range primary.Outcomes {
		if primary.Outcomes[i] != comparison.Outcomes[i] {
			r.Discrepancies = append(r.Discrepancies, Discrepancy{
				Type:         DiscrepancyOutcomeMismatch,
				Severity:     SeverityCritical,
				OutcomeIndex: int32(i),
				Detail: fmt.Sprintf("outcome %d label %q vs %q",
					i, primary.Outcomes[i], comparison.Outcomes[i]),
			})
		}
	}
	if primary.Resolved && comparison.Resolved && primary.Winner != comparison.Winner {
		r.Discrepancies = append(r.Discrepancies, Discrepancy{
			Type:         DiscrepancyOutcomeMismatch,
			Severity:     SeverityCritical,
			OutcomeIndex: primary.Winner,
			Detail:       fmt.Sprintf("resolved winner %d vs %d", primary.Winner, comparison.Winner),
		})
	}
	return true
}

func (v *Validator) checkPrices(r *ValidationResult, primary, comparison event.MarketSnapshot) {
	n := len(primary.Prices)
	if len(comparison.Prices) < n {
		n = len(comparison.Prices)
	}
	for i := 0; i < n; i++ {
		dev := fixedpoint.DeviationBps(comparison.Prices[i], primary.Prices[i])
		if dev < v.cfg.PriceLowBps {
			continue
		}
		sev := SeverityLow
		switch {
		case dev > v.cfg.PriceCriticalBps:
			sev = SeverityCritical
		case dev > v.cfg.PriceHighBps:
			sev = SeverityHigh
		case dev > v.cfg.PriceMediumBps:
			sev = SeverityMedium
		}
		r.Discrepancies = append(r.Discrepancies, Discrepancy{
			Type:         DiscrepancyPriceDeviation,
			Severity:     sev,
			OutcomeIndex: int32(i),
			DeviationBps: dev,
			Detail:       fmt.Sprintf("outcome %d price deviates %dbps", i, dev),
		})
	}
}

func (v *Validator) checkVolume(r *ValidationResult, primary, comparison event.MarketSnapshot) {
	dev := fixedpoint.DeviationBps(comparison.Volume24h, primary.Volume24h)
	if dev <= v.cfg.VolumeMediumBps {
		return
	}
	sev := SeverityMedium
	if dev > v.cfg.VolumeHighBps {
		sev = SeverityHigh
	}
	r.Discrepancies = append(r.Discrepancies, Discrepancy{
		Type:         DiscrepancyVolumeDeviation,
		Severity:     sev,
		OutcomeIndex: -1,
		DeviationBps: dev,
		Detail:       fmt.Sprintf("24h volume deviates %dbps", dev),
	})
}

func (v *Validator) checkStatus(r *ValidationResult, primary, comparison event.MarketSnapshot) {
	if primary.Status == comparison.Status {
		return
	}
	r.Discrepancies = append(r.Discrepancies, Discrepancy{
		Type:         DiscrepancyStatusMismatch,
		Severity:     SeverityHigh,
		OutcomeIndex: -1,
		Detail:       fmt.Sprintf("status %s vs %s", primary.Status, comparison.Status),
	})
}

func (v *Validator) checkDrift(r *ValidationResult, primary, comparison event.MarketSnapshot) {
	drift := primary.LastUpdate - comparison.LastUpdate
	if drift < 0 {
		drift = -drift
	}
	if drift <= v.cfg.DriftMediumMicros {
		return
	}
	sev := SeverityMedium
	if drift > v.cfg.DriftHighMicros {
		sev = SeverityHigh
	}
	r.Discrepancies = append(r.Discrepancies, Discrepancy{
		Type:         DiscrepancyTimestampDrift,
		Severity:     sev,
		OutcomeIndex: -1,
		Detail:       fmt.Sprintf("snapshots drift %dus apart", drift),
	})
}

func (v *Validator) updateReliability(src event.OracleSource, r *ValidationResult) {
	score, ok := v.reliability[src]
	if !ok {
		score = 100
	}
	if len(r.Discrepancies) == 0 {
		score++
	} else {
		score -= r.MaxSeverity().reliabilityPenalty()
	}
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	v.reliability[src] = score
}

// SourceReliability returns the rolling 0..100 score for a source.
func (v *Validator) SourceReliability(src event.OracleSource) int64 {
	score, ok := v.reliability[src]
	if !ok {
		return 100
	}
	return score
}

func (v *Validator) record(r ValidationResult) {
	v.history = append(v.history, r)
	if len(v.history) > v.cfg.HistoryCap {
		v.history = v.history[len(v.history)-v.cfg.HistoryCap:]
	}
}

func (v *Validator) alert(r *ValidationResult) {
	if r.Status != StatusFailed && r.MaxSeverity() < SeverityCritical {
		return
	}
	v.log.Warn().
		Str("market", r.Market).
		Str("primary", r.PrimarySource.String()).
		Str("comparison", r.CompareSource.String()).
		Str("status", r.Status.String()).
		Int32("confidence", r.Confidence).
		Int("discrepancies", len(r.Discrepancies)).
		Msg("cross-validation alert")
}
