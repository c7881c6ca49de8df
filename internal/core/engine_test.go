package core_test

import (
	"crypto/ed25519"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"VerseRisk/internal/core"
	"VerseRisk/internal/event"
	"VerseRisk/internal/fixedpoint"
	"VerseRisk/internal/keeper"
	"VerseRisk/internal/ledger"
	"VerseRisk/internal/oracle"
	"VerseRisk/internal/risk"
	"VerseRisk/internal/state"
)

var coreSeed = [ed25519.SeedSize]byte{9, 9, 9, 9}

const (
	margin100  = int64(100 * 100_000_000)     // $100 collateral
	size10x    = int64(1_000 * 100_000_000)   // $1000 notional at 10x
	leverage10 = 10 * fixedpoint.One
)

type coreFixture struct {
	t    *testing.T
	core *core.RiskCore
	priv ed25519.PrivateKey

	persist chan core.CoreOutput
	notices chan core.LiquidationNotice
}

func newCoreFixture(t *testing.T) *coreFixture {
	t.Helper()
	priv := ed25519.NewKeyFromSeed(coreSeed[:])
	pub := priv.Public().(ed25519.PublicKey)

	persist := make(chan core.CoreOutput, 256)
	notices := make(chan core.LiquidationNotice, 16)
	c := core.NewRiskCore(core.Deps{
		Config: risk.DefaultConfig(),
		Authorities: map[event.OracleSource]ed25519.PublicKey{
			event.SourcePolymarket: pub,
			event.SourceKalshi:     pub,
		},
		PersistChan: persist,
		NotifyChan:  notices,
		Logger:      zerolog.Nop(),
	})
	return &coreFixture{t: t, core: c, priv: priv, persist: persist, notices: notices}
}

func (f *coreFixture) apply(evt event.Event) {
	f.t.Helper()
	if err := f.core.ProcessEvent(evt); err != nil {
		f.t.Fatalf("process %v: %v", evt.EventType(), err)
	}
}

// signedPrice builds an authority-signed observation for verse-1.
func (f *coreFixture) signedPrice(src event.OracleSource, yes, slot, seq int64) *event.OraclePriceUpdate {
	u := &event.OraclePriceUpdate{
		Source:    src,
		Market:    "verse-1",
		YesPrice:  yes,
		NoPrice:   fixedpoint.PriceScale - yes,
		Liquidity: oracle.MinLiquidity,
		UpdateSeq: seq,
		SlotSeen:  slot,
		Timestamp: slot * 1_000_000,
	}
	copy(u.Signature[:], ed25519.Sign(f.priv, oracle.SigningBytes(u)))
	return u
}

func (f *coreFixture) fund(trader uuid.UUID, amount int64) {
	f.core.Balances().SetBalance(
		ledger.NewUserAccountKey(trader, ledger.SubTypeCollateral, ledger.AssetUSDC), amount)
}

// ============================================================================
// Test: full liquidation flow through the pipeline
// ============================================================================

// Registers a market, feeds two signed oracle sources, opens a 10x long,
// drops the price into the warning band and runs a keeper through partial
// liquidation, cooldown rejection and the post-cooldown retry.
func TestProcessEvent_LiquidationFlow(t *testing.T) {
	f := newCoreFixture(t)
	trader := uuid.New()
	keeperID := uuid.New()

	f.apply(&event.MarketStatusUpdate{
		Market: "verse-1", Status: event.MarketStatusActive,
		OutcomeCount: 2, UpdateSeq: 0, SlotSeen: 100, Timestamp: 100_000_000,
	})
	f.fund(trader, 5*margin100)

	f.apply(f.signedPrice(event.SourcePolymarket, 50_000_000, 100, 1))
	f.apply(f.signedPrice(event.SourceKalshi, 50_000_000, 100, 1))

	if agg, ok := f.core.Oracle().LastPrice("verse-1"); !ok || agg.Price != 50_000_000 {
		t.Fatalf("aggregate = %+v ok=%v, want median 0.50", agg, ok)
	}

	f.apply(&event.PositionOpen{
		IntentID: uuid.New(), Trader: trader, Market: "verse-1",
		Outcome: 0, Direction: event.SideLong,
		Margin: margin100, Leverage: leverage10,
		OpenSeq: 1, SlotSeen: 100, Timestamp: 100_000_000,
	})

	posID := state.PositionID(trader, "verse-1", 100)
	h := f.core.Health().Get(posID)
	if h == nil {
		t.Fatal("health record not created")
	}
	if h.Size != size10x {
		t.Errorf("size = %d, want %d", h.Size, size10x)
	}
	if h.LiquidationPrice != 45_000_000 {
		t.Errorf("liquidation price = %d, want 0.45", h.LiquidationPrice)
	}

	f.apply(&event.KeeperRegister{
		KeeperID: keeperID, Operator: uuid.New(),
		Stake: 2 * keeper.MinKeeperStake,
		RegSeq: 0, SlotSeen: 100, Timestamp: 100_000_000,
	})

	// Drop to 0.48: health 48/45 = 1.067 lands in the warning band.
	f.apply(f.signedPrice(event.SourcePolymarket, 48_000_000, 110, 2))
	f.apply(f.signedPrice(event.SourceKalshi, 48_000_000, 110, 2))

	if high, medium := f.core.Queue().Len(); high != 0 || medium != 1 {
		t.Fatalf("queue high=%d medium=%d, want one medium entry", high, medium)
	}
	// The entry carries the risk figures from the sweep, so keepers can
	// prioritize straight off the queue.
	if _, medium := f.core.Queue().Snapshot(); len(medium) == 1 {
		e := medium[0]
		if e.Trader != trader {
			t.Errorf("queued trader = %s, want the position owner", e.Trader)
		}
		if e.HealthRatio != 1_066_667 {
			t.Errorf("queued health ratio = %d, want 48/45", e.HealthRatio)
		}
		if e.EffectiveLeverage != leverage10 {
			t.Errorf("queued effective leverage = %d, want 10x", e.EffectiveLeverage)
		}
		if e.EnqueuedSlot != 110 || e.EnqueuedTime != 110_000_000 {
			t.Errorf("queued at slot=%d time=%d, want the sweep's slot", e.EnqueuedSlot, e.EnqueuedTime)
		}
	}
	select {
	case n := <-f.notices:
		if n.PositionID != posID || n.Tier != risk.TierMedium {
			t.Errorf("notice = %+v, want medium tier for the position", n)
		}
	default:
		t.Fatal("no liquidation notice delivered")
	}

	// Cushion 667bps above the liquidation price: partial, 30% of the
	// position, reward 5bps of removed notional.
	f.apply(&event.LiquidationSubmit{
		KeeperID: keeperID, PositionID: posID, Market: "verse-1",
		SubmitSeq: 2, SlotSeen: 112, Timestamp: 112_000_000,
	})

	pos := f.core.Positions().Get(posID)
	if pos.Size != size10x-30_000_000_000 {
		t.Errorf("size after partial = %d, want 70%% remaining", pos.Size)
	}
	rewards := f.core.Balances().GetBalance(
		ledger.NewKeeperAccountKey(keeperID, ledger.SubTypeKeeperRewards, ledger.AssetUSDC))
	if rewards != 15_000_000 {
		t.Errorf("keeper reward = %d, want 15_000_000 (5bps of removed)", rewards)
	}
	insurance := f.core.Balances().GetBalance(
		ledger.NewSystemAccountKey("insurance", ledger.SubTypeSystemInsuranceFund, ledger.AssetUSDC))
	if insurance != 2_985_000_000 {
		t.Errorf("insurance fund = %d, want seized minus reward", insurance)
	}

	// Cooldown: 3 of 25 slots elapsed.
	err := f.core.ProcessEvent(&event.LiquidationSubmit{
		KeeperID: keeperID, PositionID: posID, Market: "verse-1",
		SubmitSeq: 3, SlotSeen: 115, Timestamp: 115_000_000,
	})
	if !errors.Is(err, keeper.ErrLiquidationCooldown) {
		t.Fatalf("err = %v, want ErrLiquidationCooldown", err)
	}

	// Past the cooldown the next partial goes through.
	f.apply(&event.LiquidationSubmit{
		KeeperID: keeperID, PositionID: posID, Market: "verse-1",
		SubmitSeq: 4, SlotSeen: 140, Timestamp: 140_000_000,
	})
	if got := f.core.Positions().Get(posID).Size; got != 49_000_000_000 {
		t.Errorf("size after second partial = %d, want 49_000_000_000", got)
	}

	// 9 applied events; the cooldown rejection consumed no sequence.
	if f.core.Sequence() != 9 {
		t.Errorf("sequence = %d, want 9", f.core.Sequence())
	}
}

// ============================================================================
// Test: hash chain
// ============================================================================

func TestProcessEvent_HashChainLinks(t *testing.T) {
	f := newCoreFixture(t)
	trader := uuid.New()
	f.fund(trader, 5*margin100)

	f.apply(&event.MarketStatusUpdate{
		Market: "verse-1", Status: event.MarketStatusActive,
		OutcomeCount: 2, UpdateSeq: 0, SlotSeen: 100, Timestamp: 100_000_000,
	})
	f.apply(&event.PositionOpen{
		IntentID: uuid.New(), Trader: trader, Market: "verse-1",
		Outcome: 0, Direction: event.SideLong,
		Margin: margin100, Leverage: leverage10,
		OpenSeq: 1, SlotSeen: 100, Timestamp: 100_000_000,
	})
	f.apply(&event.RiskParamUpdate{
		Param: "keeper_reward_bps", Value: 10, ParamSeq: 0, SlotSeen: 101, Timestamp: 101_000_000,
	})

	var outputs []core.CoreOutput
	for len(f.persist) > 0 {
		outputs = append(outputs, <-f.persist)
	}
	if len(outputs) != 3 {
		t.Fatalf("persisted %d outputs, want 3", len(outputs))
	}
	for i, out := range outputs {
		if out.Envelope.Sequence != int64(i) {
			t.Errorf("envelope %d sequence = %d", i, out.Envelope.Sequence)
		}
		if i > 0 && out.Envelope.PrevHash != outputs[i-1].Envelope.StateHash {
			t.Errorf("envelope %d prev hash does not link to predecessor", i)
		}
	}
	if tip := f.core.StateHash(); tip != outputs[2].Envelope.StateHash {
		t.Error("chain tip does not match the last envelope")
	}
}

// ============================================================================
// Test: replay and ordering
// ============================================================================

func TestProcessEvent_DuplicateSkipped(t *testing.T) {
	f := newCoreFixture(t)
	u := &event.MarketStatusUpdate{
		Market: "verse-1", Status: event.MarketStatusActive,
		OutcomeCount: 2, UpdateSeq: 0, SlotSeen: 100, Timestamp: 100_000_000,
	}
	f.apply(u)
	hash := f.core.StateHash()

	if err := f.core.ProcessEvent(u); err != nil {
		t.Fatalf("redelivery must be silently skipped: %v", err)
	}
	if f.core.Sequence() != 1 {
		t.Errorf("sequence = %d, want 1 after replay", f.core.Sequence())
	}
	if f.core.StateHash() != hash {
		t.Error("replay must not advance the hash chain")
	}
}

func TestProcessEvent_SequenceGapRejected(t *testing.T) {
	f := newCoreFixture(t)
	trader := uuid.New()
	f.fund(trader, 5*margin100)
	f.apply(&event.MarketStatusUpdate{
		Market: "verse-1", Status: event.MarketStatusActive,
		OutcomeCount: 2, UpdateSeq: 0, SlotSeen: 100, Timestamp: 100_000_000,
	})

	err := f.core.ProcessEvent(&event.PositionOpen{
		IntentID: uuid.New(), Trader: trader, Market: "verse-1",
		Outcome: 0, Direction: event.SideLong,
		Margin: margin100, Leverage: leverage10,
		OpenSeq: 7, SlotSeen: 100, Timestamp: 100_000_000,
	})
	if err == nil || !strings.Contains(err.Error(), "sequence gap") {
		t.Fatalf("err = %v, want sequence gap rejection", err)
	}
	if f.core.Sequence() != 1 {
		t.Errorf("rejected event must not consume a sequence, got %d", f.core.Sequence())
	}
}

func TestProcessEvent_LossyOraclePartitionToleratesGaps(t *testing.T) {
	f := newCoreFixture(t)
	f.apply(f.signedPrice(event.SourcePolymarket, 50_000_000, 100, 1))
	// The poller skipped seq 2-4; the update still lands.
	f.apply(f.signedPrice(event.SourcePolymarket, 51_000_000, 105, 5))
	// A stale replay of seq 3 is ignored without error.
	f.apply(f.signedPrice(event.SourcePolymarket, 49_000_000, 102, 3))
}

// ============================================================================
// Test: risk parameter updates
// ============================================================================

func TestProcessEvent_RiskParamUpdate(t *testing.T) {
	f := newCoreFixture(t)
	f.apply(&event.RiskParamUpdate{
		Param: "keeper_reward_bps", Value: 12, ParamSeq: 0, SlotSeen: 100, Timestamp: 100_000_000,
	})
	if got := f.core.Config().KeeperRewardBps; got != 12 {
		t.Errorf("keeper_reward_bps = %d, want 12", got)
	}

	err := f.core.ProcessEvent(&event.RiskParamUpdate{
		Param: "no_such_param", Value: 1, ParamSeq: 1, SlotSeen: 100, Timestamp: 100_000_000,
	})
	if err == nil {
		t.Fatal("unknown parameter must be rejected")
	}
}

func TestProcessEvent_EmergencyHaltBlocksOpens(t *testing.T) {
	f := newCoreFixture(t)
	trader := uuid.New()
	f.fund(trader, 5*margin100)
	f.apply(&event.MarketStatusUpdate{
		Market: "verse-1", Status: event.MarketStatusActive,
		OutcomeCount: 2, UpdateSeq: 0, SlotSeen: 100, Timestamp: 100_000_000,
	})
	f.apply(&event.RiskParamUpdate{
		Param: "emergency_halt", Value: 1, ParamSeq: 0, SlotSeen: 100, Timestamp: 100_000_000,
	})

	err := f.core.ProcessEvent(&event.PositionOpen{
		IntentID: uuid.New(), Trader: trader, Market: "verse-1",
		Outcome: 0, Direction: event.SideLong,
		Margin: margin100, Leverage: leverage10,
		OpenSeq: 1, SlotSeen: 100, Timestamp: 100_000_000,
	})
	if !errors.Is(err, risk.ErrEmergencyHalt) {
		t.Fatalf("err = %v, want ErrEmergencyHalt", err)
	}
}

// ============================================================================
// Test: snapshot round trip
// ============================================================================

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	f := newCoreFixture(t)
	trader := uuid.New()
	f.fund(trader, 5*margin100)

	status := &event.MarketStatusUpdate{
		Market: "verse-1", Status: event.MarketStatusActive,
		OutcomeCount: 2, UpdateSeq: 0, SlotSeen: 100, Timestamp: 100_000_000,
	}
	f.apply(status)
	f.apply(&event.PositionOpen{
		IntentID: uuid.New(), Trader: trader, Market: "verse-1",
		Outcome: 0, Direction: event.SideLong,
		Margin: margin100, Leverage: leverage10,
		OpenSeq: 1, SlotSeen: 100, Timestamp: 100_000_000,
	})
	f.apply(&event.RiskParamUpdate{
		Param: "keeper_reward_bps", Value: 12, ParamSeq: 0, SlotSeen: 101, Timestamp: 101_000_000,
	})

	snap := f.core.CreateSnapshotState()

	g := newCoreFixture(t)
	g.core.RestoreFromSnapshot(snap)

	if g.core.Sequence() != f.core.Sequence() {
		t.Errorf("restored sequence = %d, want %d", g.core.Sequence(), f.core.Sequence())
	}
	if g.core.StateHash() != f.core.StateHash() {
		t.Error("restored hash tip differs")
	}
	if g.core.Config().KeeperRewardBps != 12 {
		t.Error("restored config lost the parameter update")
	}

	posID := state.PositionID(trader, "verse-1", 100)
	restored := g.core.Positions().Get(posID)
	if restored == nil || restored.Size != size10x {
		t.Fatalf("restored position = %+v, want size %d", restored, size10x)
	}
	marginKey := ledger.NewUserAccountKey(trader, ledger.SubTypeMargin, ledger.AssetUSDC)
	if got := g.core.Balances().GetBalance(marginKey); got != margin100 {
		t.Errorf("restored margin balance = %d, want %d", got, margin100)
	}

	// Warmed idempotency plus restored cursors: replaying a processed
	// event is a silent no-op.
	if err := g.core.ProcessEvent(status); err != nil {
		t.Fatalf("replay after restore: %v", err)
	}
	if g.core.Sequence() != f.core.Sequence() {
		t.Error("replay after restore must not consume a sequence")
	}
}
