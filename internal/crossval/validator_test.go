package crossval_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VerseRisk/internal/crossval"
	"VerseRisk/internal/event"
)

func newValidator() *crossval.Validator {
	return crossval.NewValidator(crossval.Config{}, zerolog.Nop())
}

func snapshot(src event.OracleSource, prices []int64, volume, lastUpdate int64) event.MarketSnapshot {
	outcomes := make([]string, len(prices))
	for i := range prices {
		outcomes[i] = string(rune('A' + i))
	}
	return event.MarketSnapshot{
		Source:     src,
		Outcomes:   outcomes,
		Prices:     prices,
		Volume24h:  volume,
		Status:     event.MarketStatusActive,
		LastUpdate: lastUpdate,
	}
}

func TestValidateMarket_CleanPass(t *testing.T) {
	v := newValidator()
	p := snapshot(event.SourcePolymarket, []int64{50_000_000, 50_000_000}, 1_000_000, 1000)
	c := snapshot(event.SourceKalshi, []int64{50_000_000, 50_000_000}, 1_000_000, 1000)

	r := v.ValidateMarket("verse-1", p, c, 2000)

	assert.Equal(t, crossval.StatusPassed, r.Status)
	assert.Equal(t, int32(100), r.Confidence)
	assert.Empty(t, r.Discrepancies)
}

func TestValidateMarket_PriceSeverityLadder(t *testing.T) {
	cases := []struct {
		name     string
		compare  int64
		severity crossval.Severity
	}{
		{"25pct critical", 62_500_000, crossval.SeverityCritical},
		{"15pct high", 57_500_000, crossval.SeverityHigh},
		{"8pct medium", 54_000_000, crossval.SeverityMedium},
		{"2pct low", 51_000_000, crossval.SeverityLow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := newValidator()
			p := snapshot(event.SourcePolymarket, []int64{50_000_000}, 1_000_000, 1000)
			c := snapshot(event.SourceKalshi, []int64{tc.compare}, 1_000_000, 1000)

			r := v.ValidateMarket("verse-1", p, c, 2000)

			require.Len(t, r.Discrepancies, 1)
			assert.Equal(t, crossval.DiscrepancyPriceDeviation, r.Discrepancies[0].Type)
			assert.Equal(t, tc.severity, r.Discrepancies[0].Severity)
		})
	}
}

func TestValidateMarket_SubFloorDeviationIgnored(t *testing.T) {
	v := newValidator()
	p := snapshot(event.SourcePolymarket, []int64{50_000_000}, 1_000_000, 1000)
	c := snapshot(event.SourceKalshi, []int64{50_025_000}, 1_000_000, 1000) // 5bps

	r := v.ValidateMarket("verse-1", p, c, 2000)

	assert.Equal(t, crossval.StatusPassed, r.Status)
}

func TestValidateMarket_OutcomeMismatchIsCritical(t *testing.T) {
	v := newValidator()
	p := snapshot(event.SourcePolymarket, []int64{50_000_000, 50_000_000}, 1_000_000, 1000)
	c := snapshot(event.SourceKalshi, []int64{100_000_000}, 1_000_000, 1000)

	r := v.ValidateMarket("verse-1", p, c, 2000)

	require.NotEmpty(t, r.Discrepancies)
	assert.Equal(t, crossval.SeverityCritical, r.MaxSeverity())
	assert.Equal(t, crossval.StatusFailed, r.Status)
	assert.Equal(t, int32(50), r.Confidence)
}

func TestValidateMarket_ResolvedWinnerDisagreement(t *testing.T) {
	v := newValidator()
	p := snapshot(event.SourcePolymarket, []int64{100_000_000, 0}, 1_000_000, 1000)
	c := snapshot(event.SourceKalshi, []int64{100_000_000, 0}, 1_000_000, 1000)
	p.Resolved, p.Winner = true, 0
	c.Resolved, c.Winner = true, 1

	r := v.ValidateMarket("verse-1", p, c, 2000)

	assert.Equal(t, crossval.StatusFailed, r.Status)
}

func TestValidateMarket_TimestampDrift(t *testing.T) {
	v := newValidator()
	p := snapshot(event.SourcePolymarket, []int64{50_000_000}, 1_000_000, 0)
	c := snapshot(event.SourceKalshi, []int64{50_000_000}, 1_000_000, 2*3_600*1_000_000)

	r := v.ValidateMarket("verse-1", p, c, 0)

	require.Len(t, r.Discrepancies, 1)
	assert.Equal(t, crossval.DiscrepancyTimestampDrift, r.Discrepancies[0].Type)
	assert.Equal(t, crossval.SeverityHigh, r.Discrepancies[0].Severity)
	assert.Equal(t, crossval.StatusPassedWithWarnings, r.Status)
}

func TestValidateMarket_MissingDataShortCircuits(t *testing.T) {
	v := newValidator()
	p := snapshot(event.SourcePolymarket, []int64{50_000_000}, 1_000_000, 1000)
	c := event.MarketSnapshot{Source: event.SourceKalshi}

	r := v.ValidateMarket("verse-1", p, c, 2000)

	require.Len(t, r.Discrepancies, 1)
	assert.Equal(t, crossval.DiscrepancyMissingData, r.Discrepancies[0].Type)
}

func TestReliability_MovesWithOutcomes(t *testing.T) {
	v := newValidator()
	p := snapshot(event.SourcePolymarket, []int64{50_000_000}, 1_000_000, 1000)
	bad := snapshot(event.SourceKalshi, []int64{65_000_000}, 1_000_000, 1000) // critical

	assert.Equal(t, int64(100), v.SourceReliability(event.SourceKalshi))
	v.ValidateMarket("verse-1", p, bad, 2000)
	assert.Equal(t, int64(90), v.SourceReliability(event.SourceKalshi))

	good := snapshot(event.SourceKalshi, []int64{50_000_000}, 1_000_000, 1000)
	v.ValidateMarket("verse-1", p, good, 2000)
	assert.Equal(t, int64(91), v.SourceReliability(event.SourceKalshi))
}

func TestReport_CountsAndRecommendations(t *testing.T) {
	v := newValidator()
	p := snapshot(event.SourcePolymarket, []int64{50_000_000}, 1_000_000, 1000)
	bad := snapshot(event.SourceKalshi, []int64{65_000_000}, 1_000_000, 1000)
	good := snapshot(event.SourceKalshi, []int64{50_000_000}, 1_000_000, 1000)

	v.ValidateMarket("verse-1", p, bad, 2000)
	v.ValidateMarket("verse-1", p, good, 2000)
	v.ValidateMarket("verse-1", p, good, 2000)

	rep := v.Report(0)
	assert.Equal(t, 3, rep.Total)
	assert.Equal(t, 2, rep.Passed)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.BySeverity[crossval.SeverityCritical])
	assert.NotEmpty(t, rep.Recommendations)
}

func TestHistory_BoundedFIFO(t *testing.T) {
	v := crossval.NewValidator(crossval.Config{HistoryCap: 10}, zerolog.Nop())
	p := snapshot(event.SourcePolymarket, []int64{50_000_000}, 1_000_000, 1000)
	c := snapshot(event.SourceKalshi, []int64{50_000_000}, 1_000_000, 1000)

	for i := 0; i < 25; i++ {
		v.ValidateMarket("verse-1", p, c, int64(i))
	}
	rep := v.Report(0)
	assert.Equal(t, 10, rep.Total)
}
