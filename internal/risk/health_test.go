package risk_test

import (
	"reflect"
	"testing"

	"github.com/google/uuid"

	"VerseRisk/internal/event"
	"VerseRisk/internal/fixedpoint"
	"VerseRisk/internal/risk"
)

const (
	entry50 = int64(50 * 100_000_000) // $50.00 at price scale
	lev10x  = int64(10 * 1_000_000)
	lev100x = int64(100 * 1_000_000)
)

func newHealth(t *testing.T, cfg *risk.GlobalConfig, leverage int64) *risk.PositionHealth {
	t.Helper()
	h, err := risk.NewPositionHealth(
		[32]byte{1}, uuid.MustParse("550e8400-e29b-41d4-a716-446655440000"),
		"verse-1", 0, event.SideLong,
		100_000_000, leverage, entry50,
		1, cfg, 100, 100_000_000,
	)
	if err != nil {
		t.Fatalf("NewPositionHealth: %v", err)
	}
	return h
}

// ============================================================================
// Test: LiquidationPrice
// ============================================================================

func TestLiquidationPrice_Long100x(t *testing.T) {
	// 100x long at 50.00 liquidates at 49.50
	got := risk.LiquidationPrice(entry50, lev100x, event.SideLong, fixedpoint.One)
	if got != 49_50_000_000 {
		t.Errorf("got %d, want 4950000000", got)
	}
}

func TestLiquidationPrice_ShortMirrored(t *testing.T) {
	got := risk.LiquidationPrice(entry50, lev100x, event.SideShort, fixedpoint.One)
	if got != 50_50_000_000 {
		t.Errorf("got %d, want 5050000000", got)
	}
}

func TestLiquidationPrice_MonotonicInLeverage(t *testing.T) {
	// Higher leverage moves the long liquidation price toward entry.
	prev := int64(-1)
	for _, lev := range []int64{2, 5, 10, 25, 50, 100} {
		liq := risk.LiquidationPrice(entry50, lev*fixedpoint.One, event.SideLong, fixedpoint.One)
		if liq <= prev {
			t.Fatalf("liq price must rise with leverage: %dx -> %d, prev %d", lev, liq, prev)
		}
		if liq >= entry50 {
			t.Fatalf("long liq price must stay below entry, got %d at %dx", liq, lev)
		}
		prev = liq
	}
}

func TestHealthRatio_AtLiquidationIsOne(t *testing.T) {
	liq := risk.LiquidationPrice(entry50, lev10x, event.SideLong, fixedpoint.One)
	if got := risk.HealthRatio(liq, liq, event.SideLong); got != fixedpoint.One {
		t.Errorf("ratio at liquidation = %d, want %d", got, fixedpoint.One)
	}
}

// ============================================================================
// Test: tier caps
// ============================================================================

func TestNewPositionHealth_TierCapRejects(t *testing.T) {
	cfg := risk.DefaultConfig()
	// Two-outcome markets cap at 70x.
	_, err := risk.NewPositionHealth(
		[32]byte{1}, uuid.New(), "verse-1", 0, event.SideLong,
		100_000_000, 80*fixedpoint.One, entry50, 2, &cfg, 100, 0,
	)
	if err == nil {
		t.Fatal("80x on a binary market should be rejected")
	}
}

func TestMaxLeverageForOutcomeCount_Tiers(t *testing.T) {
	cases := []struct {
		outcomes int32
		multiple int64
	}{
		{1, 100}, {2, 70}, {3, 25}, {4, 25}, {5, 15}, {8, 15},
		{9, 12}, {16, 12}, {17, 10}, {64, 10}, {65, 5}, {200, 5},
	}
	for _, c := range cases {
		if got := risk.MaxLeverageForOutcomeCount(c.outcomes); got != c.multiple*fixedpoint.One {
			t.Errorf("%d outcomes: got %d, want %dx", c.outcomes, got, c.multiple)
		}
	}
}

// ============================================================================
// Test: chain step composition
// ============================================================================

func TestAddChainStep_Composition(t *testing.T) {
	cfg := risk.DefaultConfig()
	h := newHealth(t, &cfg, lev100x)

	if err := h.AddChainStep(&cfg, event.ChainStepBorrow, 101); err != nil {
		t.Fatal(err)
	}
	if h.EffectiveLeverage != 150*fixedpoint.One {
		t.Errorf("after borrow: %d, want 150x", h.EffectiveLeverage)
	}

	if err := h.AddChainStep(&cfg, event.ChainStepProvideLiquidity, 102); err != nil {
		t.Fatal(err)
	}
	if h.EffectiveLeverage != 180*fixedpoint.One {
		t.Errorf("after liquidity: %d, want 180x", h.EffectiveLeverage)
	}
	if len(h.ChainSteps) != 2 {
		t.Errorf("steps recorded = %d, want 2", len(h.ChainSteps))
	}
}

func TestAddChainStep_TightensLiquidationPrice(t *testing.T) {
	cfg := risk.DefaultConfig()
	h := newHealth(t, &cfg, lev10x)
	before := h.LiquidationPrice

	if err := h.AddChainStep(&cfg, event.ChainStepBorrow, 101); err != nil {
		t.Fatal(err)
	}
	if h.LiquidationPrice <= before {
		t.Errorf("long liq price should tighten toward entry: %d -> %d", before, h.LiquidationPrice)
	}
}

func TestAddChainStep_CapRejectionLeavesRecordUnchanged(t *testing.T) {
	cfg := risk.DefaultConfig()
	h := newHealth(t, &cfg, lev100x)
	must(t, h.AddChainStep(&cfg, event.ChainStepBorrow, 101))    // 150x
	must(t, h.AddChainStep(&cfg, event.ChainStepLend, 102))      // 180x
	snapshot := *h
	snapshot.ChainSteps = append([]risk.ChainStepRecord(nil), h.ChainSteps...)

	// 180x * 1.2 = 216x > 200x cap
	err := h.AddChainStep(&cfg, event.ChainStepProvideLiquidity, 103)
	if err == nil {
		t.Fatal("step past the cap should be rejected")
	}

	got := *h
	got.ChainSteps = append([]risk.ChainStepRecord(nil), h.ChainSteps...)
	if !reflect.DeepEqual(snapshot, got) {
		t.Error("rejected step must not mutate the health record")
	}
}

// ============================================================================
// Test: Monitor
// ============================================================================

func TestMonitor_StalePrice(t *testing.T) {
	cfg := risk.DefaultConfig()
	h := newHealth(t, &cfg, lev10x)

	_, err := risk.Monitor(&cfg, h, entry50, 100, 131, 0)
	if err == nil {
		t.Fatal("31-slot-old price should fail the check")
	}
}

func TestMonitor_Healthy(t *testing.T) {
	cfg := risk.DefaultConfig()
	h := newHealth(t, &cfg, lev10x) // liq at 45.00

	res, err := risk.Monitor(&cfg, h, entry50, 100, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.NeedsLiquidation || res.WarningIssued || res.AddToQueue {
		t.Errorf("healthy position flagged: %+v", res)
	}
}

func TestMonitor_WarningTierMedium(t *testing.T) {
	cfg := risk.DefaultConfig()
	h := newHealth(t, &cfg, lev10x) // liq 45.00

	// 49.00/45.00 = 1.0889, between critical (1.05) and warning (1.10)
	res, err := risk.Monitor(&cfg, h, 49_00_000_000, 100, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !res.WarningIssued || res.NeedsLiquidation {
		t.Fatalf("expected warning only: %+v", res)
	}
	if res.Tier != risk.TierMedium {
		t.Errorf("tier = %s, want medium", res.Tier)
	}
}

func TestMonitor_CriticalTierHigh(t *testing.T) {
	cfg := risk.DefaultConfig()
	h := newHealth(t, &cfg, lev10x)

	// 47.00/45.00 = 1.0444 < critical threshold
	res, err := risk.Monitor(&cfg, h, 47_00_000_000, 100, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Tier != risk.TierHigh || res.NeedsLiquidation {
		t.Errorf("expected high-tier warning: %+v", res)
	}
}

func TestMonitor_BreachNeedsLiquidation(t *testing.T) {
	cfg := risk.DefaultConfig()
	h := newHealth(t, &cfg, lev10x)

	res, err := risk.Monitor(&cfg, h, 44_00_000_000, 100, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !res.NeedsLiquidation || res.Tier != risk.TierHigh {
		t.Errorf("breached position must queue high: %+v", res)
	}
	if res.Type != risk.LiquidationEmergency {
		t.Errorf("type = %s, want emergency past the liquidation price", res.Type)
	}
}

func TestMonitor_EmergencyHalt(t *testing.T) {
	cfg := risk.DefaultConfig()
	cfg.EmergencyHalt = true
	h := newHealth(t, &cfg, lev10x)

	if _, err := risk.Monitor(&cfg, h, entry50, 100, 100, 0); err == nil {
		t.Fatal("halt should stop monitoring")
	}
}

// ============================================================================
// Test: liquidation type boundaries
// ============================================================================

func TestChooseLiquidationType_Boundaries(t *testing.T) {
	cfg := risk.DefaultConfig()
	h := newHealth(t, &cfg, lev10x) // liq 45.00
	liq := h.LiquidationPrice

	bpsAbove := func(bps int64) int64 {
		return liq + fixedpoint.ApplyBps(liq, bps)
	}

	cases := []struct {
		name string
		mark int64
		want risk.LiquidationType
	}{
		{"501bps above", bpsAbove(501), risk.LiquidationPartial},
		{"500bps above", bpsAbove(500), risk.LiquidationFull},
		{"100bps above", bpsAbove(100), risk.LiquidationFull},
		{"99bps above", bpsAbove(99), risk.LiquidationEmergency},
		{"at liquidation", liq, risk.LiquidationEmergency},
		{"below liquidation", liq - 1, risk.LiquidationEmergency},
	}
	for _, c := range cases {
		if got := risk.ChooseLiquidationType(&cfg, h, c.mark); got != c.want {
			t.Errorf("%s: got %s, want %s", c.name, got, c.want)
		}
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
