package chain_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"VerseRisk/internal/chain"
	"VerseRisk/internal/event"
	"VerseRisk/internal/fixedpoint"
	"VerseRisk/internal/risk"
	"VerseRisk/internal/state"
)

type fixture struct {
	catalog   *state.MarketCatalog
	positions *state.PositionManager
	health    *risk.Registry
	cfg       risk.GlobalConfig
	ex        *chain.Executor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		catalog:   state.NewMarketCatalog(),
		positions: state.NewPositionManager(),
		health:    risk.NewRegistry(),
		cfg:       risk.DefaultConfig(),
	}
	f.catalog.Apply(&event.MarketStatusUpdate{
		Market: "verse-1", Status: event.MarketStatusActive,
		OutcomeCount: 2, UpdateSeq: 1,
	})
	f.ex = chain.NewExecutor(f.catalog, f.positions, f.health, &f.cfg)
	return f
}

func execReq(deposit int64, steps ...event.ChainStepSpec) *event.ChainExecute {
	return &event.ChainExecute{
		ChainID:  uuid.New(),
		Owner:    uuid.MustParse("550e8400-e29b-41d4-a716-446655440000"),
		Market:   "verse-1",
		Deposit:  deposit,
		Steps:    steps,
		SlotSeen: 100,
	}
}

// ============================================================================
// Test: validation
// ============================================================================

func TestExecute_DepthLimit(t *testing.T) {
	f := newFixture(t)
	steps := make([]event.ChainStepSpec, 6)
	for i := range steps {
		steps[i] = event.ChainStepSpec{Type: event.ChainStepLend, InputStep: int32(i) - 1}
	}

	_, err := f.ex.Execute(execReq(1_000_000, steps...))
	if !errors.Is(err, chain.ErrChainTooDeep) {
		t.Fatalf("err = %v, want ErrChainTooDeep", err)
	}
}

func TestExecute_ZeroDeposit(t *testing.T) {
	f := newFixture(t)
	_, err := f.ex.Execute(execReq(0, event.ChainStepSpec{Type: event.ChainStepLend, InputStep: -1}))
	if !errors.Is(err, chain.ErrInvalidPosition) {
		t.Fatalf("err = %v, want ErrInvalidPosition", err)
	}
}

func TestExecute_InactiveVerse(t *testing.T) {
	f := newFixture(t)
	f.catalog.Apply(&event.MarketStatusUpdate{
		Market: "verse-1", Status: event.MarketStatusPaused, UpdateSeq: 2,
	})

	_, err := f.ex.Execute(execReq(1_000_000, event.ChainStepSpec{Type: event.ChainStepLend, InputStep: -1}))
	if !errors.Is(err, chain.ErrInactiveVerse) {
		t.Fatalf("err = %v, want ErrInactiveVerse", err)
	}
}

func TestExecute_ForwardReferenceRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.ex.Execute(execReq(1_000_000,
		event.ChainStepSpec{Type: event.ChainStepLend, InputStep: 1}, // forward ref
		event.ChainStepSpec{Type: event.ChainStepLend, InputStep: -1},
	))
	if !errors.Is(err, chain.ErrInvalidStepInput) {
		t.Fatalf("err = %v, want ErrInvalidStepInput", err)
	}
}

func TestExecute_DoubleSpendRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.ex.Execute(execReq(1_000_000,
		event.ChainStepSpec{Type: event.ChainStepLend, InputStep: -1},
		event.ChainStepSpec{Type: event.ChainStepLend, InputStep: 0},
		event.ChainStepSpec{Type: event.ChainStepLend, InputStep: 0}, // step 0 spent twice
	))
	if !errors.Is(err, chain.ErrInvalidStepInput) {
		t.Fatalf("err = %v, want ErrInvalidStepInput", err)
	}
}

func TestExecute_InvalidOutcome(t *testing.T) {
	f := newFixture(t)
	_, err := f.ex.Execute(execReq(1_000_000, event.ChainStepSpec{
		Type: event.ChainStepOpenPosition, Outcome: 2, Direction: event.SideLong,
		Leverage: 10 * fixedpoint.One, InputStep: -1,
	}))
	if !errors.Is(err, chain.ErrInvalidOutcome) {
		t.Fatalf("err = %v, want ErrInvalidOutcome", err)
	}
}

func TestExecute_InvalidLeverage(t *testing.T) {
	f := newFixture(t)
	for _, lev := range []int64{0, -1, 51 * fixedpoint.One} {
		_, err := f.ex.Execute(execReq(1_000_000, event.ChainStepSpec{
			Type: event.ChainStepOpenPosition, Outcome: 0, Direction: event.SideLong,
			Leverage: lev, InputStep: -1,
		}))
		if !errors.Is(err, chain.ErrInvalidLeverage) {
			t.Fatalf("leverage %d: err = %v, want ErrInvalidLeverage", lev, err)
		}
	}
}

// ============================================================================
// Test: step application
// ============================================================================

func TestExecute_BorrowDiminishingReturns(t *testing.T) {
	f := newFixture(t)
	cs, err := f.ex.Execute(execReq(1_000_000,
		event.ChainStepSpec{Type: event.ChainStepBorrow, InputStep: -1},
	))
	if err != nil {
		t.Fatal(err)
	}
	// First step: 1_000_000 * 1.5 / sqrt(1) = 1_500_000
	if cs.Steps[0].Output != 1_500_000 {
		t.Errorf("borrow output = %d, want 1_500_000", cs.Steps[0].Output)
	}
	if cs.Balance != 1_500_000 {
		t.Errorf("balance = %d, want 1_500_000", cs.Balance)
	}
}

func TestExecute_MultiplierComposition(t *testing.T) {
	f := newFixture(t)
	cs, err := f.ex.Execute(execReq(1_000_000,
		event.ChainStepSpec{Type: event.ChainStepBorrow, InputStep: -1},
		event.ChainStepSpec{Type: event.ChainStepProvideLiquidity, InputStep: 0},
	))
	if err != nil {
		t.Fatal(err)
	}
	// 1.5 * 1.2 = 1.8
	if cs.EffectiveLeverage != 1_800_000 {
		t.Errorf("effective leverage = %d, want 1_800_000", cs.EffectiveLeverage)
	}
	if cs.Steps[1].Yield == 0 {
		t.Error("liquidity step should accrue yield")
	}
	if cs.Status != chain.StatusActive {
		t.Errorf("status = %s, want active", cs.Status)
	}
}

func TestExecute_OpenPositionCreatesHealthRecord(t *testing.T) {
	f := newFixture(t)
	cs, err := f.ex.Execute(execReq(100_000_000,
		event.ChainStepSpec{
			Type: event.ChainStepOpenPosition, Outcome: 0, Direction: event.SideLong,
			Leverage: 10 * fixedpoint.One, InputStep: -1,
		},
	))
	if err != nil {
		t.Fatal(err)
	}

	pos := f.positions.Get(cs.Steps[0].PositionID)
	if pos == nil {
		t.Fatal("position not created")
	}
	if pos.Size != 1_000_000_000 {
		t.Errorf("size = %d, want margin*10", pos.Size)
	}
	h := f.health.Get(pos.ID)
	if h == nil {
		t.Fatal("health record not created")
	}
	if h.BaseLeverage != 10*fixedpoint.One {
		t.Errorf("base leverage = %d", h.BaseLeverage)
	}
	if cs.Balance != 0 {
		t.Errorf("terminal open should consume the balance, got %d", cs.Balance)
	}
}

func TestExecute_ChainStepsCompoundIntoHealth(t *testing.T) {
	f := newFixture(t)
	cs, err := f.ex.Execute(execReq(100_000_000,
		event.ChainStepSpec{Type: event.ChainStepBorrow, InputStep: -1}, // 1.5x
		event.ChainStepSpec{
			Type: event.ChainStepOpenPosition, Outcome: 0, Direction: event.SideLong,
			Leverage: 10 * fixedpoint.One, InputStep: 0,
		},
	))
	if err != nil {
		t.Fatal(err)
	}
	if cs.EffectiveLeverage != 15*fixedpoint.One {
		t.Errorf("chain effective leverage = %d, want 15x", cs.EffectiveLeverage)
	}

	h := f.health.Get(cs.Steps[1].PositionID)
	if h == nil {
		t.Fatal("health record not created")
	}
	if h.BaseLeverage != 10*fixedpoint.One {
		t.Errorf("base leverage = %d, want 10x", h.BaseLeverage)
	}
	if h.EffectiveLeverage != 15*fixedpoint.One {
		t.Errorf("effective leverage = %d, want 15x compounded through the borrow", h.EffectiveLeverage)
	}
	if len(h.ChainSteps) != 1 || h.ChainSteps[0].Multiplier != 1_500_000 {
		t.Errorf("chain step history = %+v, want one 1.5x borrow", h.ChainSteps)
	}

	// Compounding must tighten the liquidation price toward entry.
	baseOnly := risk.LiquidationPrice(h.EntryPrice, h.BaseLeverage, event.SideLong, f.cfg.MaintenanceFactor)
	want := risk.LiquidationPrice(h.EntryPrice, h.EffectiveLeverage, event.SideLong, f.cfg.MaintenanceFactor)
	if h.LiquidationPrice != want {
		t.Errorf("liquidation price = %d, want %d at compounded leverage", h.LiquidationPrice, want)
	}
	if h.LiquidationPrice <= baseOnly {
		t.Errorf("liquidation price %d not tightened past base-leverage %d", h.LiquidationPrice, baseOnly)
	}
}

func TestAddStep_OpenCompoundsCommittedSteps(t *testing.T) {
	f := newFixture(t)
	cs, err := f.ex.Execute(execReq(100_000_000,
		event.ChainStepSpec{Type: event.ChainStepBorrow, InputStep: -1}, // 1.5x
	))
	if err != nil {
		t.Fatal(err)
	}

	cs, err = f.ex.AddStep(&event.ChainStepAdd{
		ChainID: cs.ID, Market: "verse-1",
		Step: event.ChainStepSpec{
			Type: event.ChainStepOpenPosition, Outcome: 0, Direction: event.SideLong,
			Leverage: 10 * fixedpoint.One, InputStep: 0,
		},
		StepSeq: 1, SlotSeen: 101,
	})
	if err != nil {
		t.Fatal(err)
	}

	h := f.health.Get(cs.Steps[1].PositionID)
	if h == nil {
		t.Fatal("health record not created")
	}
	if h.EffectiveLeverage != 15*fixedpoint.One {
		t.Errorf("effective leverage = %d, want the committed borrow compounded in", h.EffectiveLeverage)
	}
	if len(h.ChainSteps) != 1 {
		t.Errorf("chain step history length = %d, want 1", len(h.ChainSteps))
	}
}

// ============================================================================
// Test: atomicity
// ============================================================================

func TestExecute_FailureCommitsNothing(t *testing.T) {
	f := newFixture(t)

	// Last step invalid: whole chain must roll up to nothing.
	cs, err := f.ex.Execute(execReq(100_000_000,
		event.ChainStepSpec{Type: event.ChainStepBorrow, InputStep: -1},
		event.ChainStepSpec{
			Type: event.ChainStepOpenPosition, Outcome: 5, Direction: event.SideLong,
			Leverage: 10 * fixedpoint.One, InputStep: 0,
		},
	))
	if err == nil {
		t.Fatal("chain with invalid terminal step must fail")
	}
	if cs.Status != chain.StatusFailed {
		t.Errorf("status = %s, want failed", cs.Status)
	}
	if len(cs.Steps) != 0 {
		t.Errorf("failed chain recorded %d steps, want 0", len(cs.Steps))
	}
	if f.positions.Count() != 0 {
		t.Error("no positions may be created on failure")
	}
	if f.health.Count() != 0 {
		t.Error("no health records may be created on failure")
	}
}

func TestAddStep_CapRejectionLeavesChainUnchanged(t *testing.T) {
	f := newFixture(t)
	f.cfg.MaxEffectiveLeverage = 2 * fixedpoint.One

	cs, err := f.ex.Execute(execReq(1_000_000,
		event.ChainStepSpec{Type: event.ChainStepBorrow, InputStep: -1}, // 1.5x
	))
	if err != nil {
		t.Fatal(err)
	}
	snapshot := *cs
	snapshot.Steps = append([]chain.AppliedStep(nil), cs.Steps...)

	// 1.5 * 1.5 = 2.25x > 2x cap
	_, err = f.ex.AddStep(&event.ChainStepAdd{
		ChainID: cs.ID, Market: "verse-1",
		Step:    event.ChainStepSpec{Type: event.ChainStepBorrow, InputStep: 0},
		StepSeq: 1, SlotSeen: 101,
	})
	if !errors.Is(err, risk.ErrMaxLeverageExceeded) {
		t.Fatalf("err = %v, want ErrMaxLeverageExceeded", err)
	}

	got := *cs
	got.Steps = append([]chain.AppliedStep(nil), cs.Steps...)
	if !reflect.DeepEqual(snapshot, got) {
		t.Error("rejected step must not mutate the chain record")
	}
}

func TestExecute_CompletesAtMaxDepth(t *testing.T) {
	f := newFixture(t)
	cs, err := f.ex.Execute(execReq(1_000_000,
		event.ChainStepSpec{Type: event.ChainStepLend, InputStep: -1},
		event.ChainStepSpec{Type: event.ChainStepLend, InputStep: 0},
		event.ChainStepSpec{Type: event.ChainStepLend, InputStep: 1},
		event.ChainStepSpec{Type: event.ChainStepStake, InputStep: 2},
		event.ChainStepSpec{Type: event.ChainStepStake, InputStep: 3},
	))
	if err != nil {
		t.Fatal(err)
	}
	if cs.Status != chain.StatusCompleted {
		t.Errorf("status = %s, want completed at depth 5", cs.Status)
	}
	if _, err := f.ex.AddStep(&event.ChainStepAdd{
		ChainID: cs.ID,
		Step:    event.ChainStepSpec{Type: event.ChainStepLend, InputStep: 4},
	}); !errors.Is(err, chain.ErrChainTooDeep) {
		t.Errorf("err = %v, want ErrChainTooDeep on a completed chain", err)
	}
}

func TestExecute_ReplayReturnsExisting(t *testing.T) {
	f := newFixture(t)
	req := execReq(1_000_000, event.ChainStepSpec{Type: event.ChainStepLend, InputStep: -1})

	first, err := f.ex.Execute(req)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.ex.Execute(req)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("replaying the same chain ID must return the stored record")
	}
}
