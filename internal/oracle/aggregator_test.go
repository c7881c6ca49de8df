package oracle_test

import (
	"crypto/ed25519"
	"testing"

	"VerseRisk/internal/event"
	"VerseRisk/internal/fixedpoint"
	"VerseRisk/internal/oracle"
)

var testSeed = [ed25519.SeedSize]byte{1, 2, 3, 4}

func testKeys() (ed25519.PublicKey, ed25519.PrivateKey) {
	priv := ed25519.NewKeyFromSeed(testSeed[:])
	return priv.Public().(ed25519.PublicKey), priv
}

func newTestAggregator(t *testing.T) (*oracle.Aggregator, ed25519.PrivateKey) {
	t.Helper()
	pub, priv := testKeys()
	authorities := map[event.OracleSource]ed25519.PublicKey{
		event.SourcePolymarket:  pub,
		event.SourceKalshi:      pub,
		event.SourceInternalAMM: pub,
	}
	return oracle.NewAggregator(oracle.Config{}, authorities, nil), priv
}

func signedUpdate(priv ed25519.PrivateKey, src event.OracleSource, market string, yes, slot, seq int64) *event.OraclePriceUpdate {
	u := &event.OraclePriceUpdate{
		Source:    src,
		Market:    market,
		YesPrice:  yes,
		NoPrice:   fixedpoint.PriceScale - yes,
		Liquidity: oracle.MinLiquidity,
		UpdateSeq: seq,
		SlotSeen:  slot,
		Timestamp: slot * 1_000_000,
	}
	copy(u.Signature[:], ed25519.Sign(priv, oracle.SigningBytes(u)))
	return u
}

// ============================================================================
// Test: SubmitUpdate
// ============================================================================

func TestSubmitUpdate_Accepts(t *testing.T) {
	agg, priv := newTestAggregator(t)
	u := signedUpdate(priv, event.SourcePolymarket, "verse-1", 50_000_000, 10, 1)

	if err := agg.SubmitUpdate(u); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	feed := agg.Feeds("verse-1")[event.SourcePolymarket]
	if feed == nil {
		t.Fatal("feed not stored")
	}
	if feed.Status != oracle.FeedStatusActive {
		t.Errorf("status = %s, want active", feed.Status)
	}
}

func TestSubmitUpdate_RejectsBadSignature(t *testing.T) {
	agg, priv := newTestAggregator(t)
	u := signedUpdate(priv, event.SourcePolymarket, "verse-1", 50_000_000, 10, 1)
	u.YesPrice += 1 // signature no longer covers the payload

	err := agg.SubmitUpdate(u)
	if err == nil {
		t.Fatal("tampered update should be rejected")
	}
	if agg.Feeds("verse-1")[event.SourcePolymarket] != nil {
		t.Error("rejected update must not be stored")
	}
}

func TestSubmitUpdate_RejectsPriceSumViolation(t *testing.T) {
	agg, priv := newTestAggregator(t)
	u := &event.OraclePriceUpdate{
		Source:    event.SourcePolymarket,
		Market:    "verse-1",
		YesPrice:  50_000_000,
		NoPrice:   40_000_000, // sum 0.90, 1000bps off unity
		Liquidity: oracle.MinLiquidity,
		UpdateSeq: 1,
		SlotSeen:  10,
		Timestamp: 10_000_000,
	}
	copy(u.Signature[:], ed25519.Sign(priv, oracle.SigningBytes(u)))

	if err := agg.SubmitUpdate(u); err == nil {
		t.Fatal("price sum violation should be rejected")
	}
}

func TestSubmitUpdate_LowLiquidityMarkedInsufficient(t *testing.T) {
	agg, priv := newTestAggregator(t)
	u := signedUpdate(priv, event.SourcePolymarket, "verse-1", 50_000_000, 10, 1)
	u.Liquidity = oracle.MinLiquidity / 2
	copy(u.Signature[:], ed25519.Sign(priv, oracle.SigningBytes(u)))

	if err := agg.SubmitUpdate(u); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	feed := agg.Feeds("verse-1")[event.SourcePolymarket]
	if feed.Status != oracle.FeedStatusInsufficient {
		t.Errorf("status = %s, want insufficient", feed.Status)
	}
}

// ============================================================================
// Test: MedianPrice
// ============================================================================

func TestMedianPrice_RequiresTwoSources(t *testing.T) {
	agg, priv := newTestAggregator(t)
	if err := agg.SubmitUpdate(signedUpdate(priv, event.SourcePolymarket, "verse-1", 50_000_000, 10, 1)); err != nil {
		t.Fatal(err)
	}

	_, err := agg.MedianPrice("verse-1", 10)
	if err == nil {
		t.Fatal("single source should not aggregate")
	}
}

func TestMedianPrice_TwoSourcesAverage(t *testing.T) {
	agg, priv := newTestAggregator(t)
	must(t, agg.SubmitUpdate(signedUpdate(priv, event.SourcePolymarket, "verse-1", 100, 10, 1)))
	must(t, agg.SubmitUpdate(signedUpdate(priv, event.SourceKalshi, "verse-1", 105, 10, 1)))

	got, err := agg.MedianPrice("verse-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	// (100+105)/2 = 102.5, half-even rounds to 102
	if got.Price != 102 {
		t.Errorf("price = %d, want 102", got.Price)
	}
	if got.Sources != 2 {
		t.Errorf("sources = %d, want 2", got.Sources)
	}
}

func TestMedianPrice_StaleSourceExcluded(t *testing.T) {
	agg, priv := newTestAggregator(t)
	must(t, agg.SubmitUpdate(signedUpdate(priv, event.SourcePolymarket, "verse-1", 100, 100, 1)))
	must(t, agg.SubmitUpdate(signedUpdate(priv, event.SourceKalshi, "verse-1", 105, 100, 1)))
	// 60 slots old at read time, past the 30-slot window
	must(t, agg.SubmitUpdate(signedUpdate(priv, event.SourceInternalAMM, "verse-1", 300, 40, 1)))

	got, err := agg.MedianPrice("verse-1", 100)
	if err != nil {
		t.Fatal(err)
	}
	if got.Price != 102 {
		t.Errorf("price = %d, want 102 (stale outlier excluded)", got.Price)
	}
}

func TestMedianPrice_ThreeSourcesMiddle(t *testing.T) {
	agg, priv := newTestAggregator(t)
	must(t, agg.SubmitUpdate(signedUpdate(priv, event.SourcePolymarket, "verse-1", 48_000_000, 10, 1)))
	must(t, agg.SubmitUpdate(signedUpdate(priv, event.SourceKalshi, "verse-1", 50_000_000, 10, 1)))
	must(t, agg.SubmitUpdate(signedUpdate(priv, event.SourceInternalAMM, "verse-1", 51_000_000, 10, 1)))

	got, err := agg.MedianPrice("verse-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if got.Price != 50_000_000 {
		t.Errorf("price = %d, want middle value 50_000_000", got.Price)
	}
}

// ============================================================================
// Test: fallback
// ============================================================================

func TestFallback_ServesDecayedSnapshot(t *testing.T) {
	agg, priv := newTestAggregator(t)
	must(t, agg.SubmitUpdate(signedUpdate(priv, event.SourcePolymarket, "verse-1", 50_000_000, 10, 1)))
	must(t, agg.SubmitUpdate(signedUpdate(priv, event.SourceKalshi, "verse-1", 50_000_000, 10, 1)))
	if _, err := agg.MedianPrice("verse-1", 10); err != nil {
		t.Fatal(err)
	}

	if err := agg.ActivateFallback("verse-1", 50); err != nil {
		t.Fatal(err)
	}
	got, err := agg.FallbackPrice("verse-1", 60)
	if err != nil {
		t.Fatal(err)
	}
	if got.Price != 50_000_000 {
		t.Errorf("price = %d, want snapshot price", got.Price)
	}
	fresh, _ := agg.FallbackPrice("verse-1", 50)
	if got.Confidence >= fresh.Confidence {
		t.Error("confidence should decay with elapsed slots")
	}
}

func TestFallback_ExpiresAfterWindow(t *testing.T) {
	agg, priv := newTestAggregator(t)
	must(t, agg.SubmitUpdate(signedUpdate(priv, event.SourcePolymarket, "verse-1", 50_000_000, 10, 1)))
	must(t, agg.SubmitUpdate(signedUpdate(priv, event.SourceKalshi, "verse-1", 50_000_000, 10, 1)))
	if _, err := agg.MedianPrice("verse-1", 10); err != nil {
		t.Fatal(err)
	}
	must(t, agg.ActivateFallback("verse-1", 50))

	if _, err := agg.FallbackPrice("verse-1", 50+oracle.MaxFallbackSlots+1); err == nil {
		t.Fatal("fallback past the window should fail")
	}
}

func TestFallback_RequiresPriorAggregate(t *testing.T) {
	agg, _ := newTestAggregator(t)
	if err := agg.ActivateFallback("verse-unknown", 10); err == nil {
		t.Fatal("fallback without history should fail")
	}
}

// ============================================================================
// Test: history
// ============================================================================

func TestHistory_Bounded(t *testing.T) {
	agg, priv := newTestAggregator(t)
	for i := int64(0); i < 150; i++ {
		must(t, agg.SubmitUpdate(signedUpdate(priv, event.SourcePolymarket, "verse-1", 50_000_000, i, i)))
		must(t, agg.SubmitUpdate(signedUpdate(priv, event.SourceKalshi, "verse-1", 50_000_000, i, i)))
		if _, err := agg.MedianPrice("verse-1", i); err != nil {
			t.Fatal(err)
		}
	}
	h := agg.History("verse-1")
	if len(h) != 100 {
		t.Errorf("history length = %d, want 100", len(h))
	}
	if h[len(h)-1].Slot != 149 {
		t.Errorf("newest point slot = %d, want 149", h[len(h)-1].Slot)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
