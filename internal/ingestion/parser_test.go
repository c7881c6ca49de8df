package ingestion_test

import (
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"VerseRisk/internal/event"
	"VerseRisk/internal/ingestion"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawEvent{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParseOraclePriceUpdate(t *testing.T) {
	sig := make([]byte, 64)
	sig[0] = 0xAB
	pub := make([]byte, 32)
	pub[0] = 0xCD

	payload := map[string]interface{}{
		"source":       "polymarket",
		"market":       "verse-1",
		"yes_price":    int64(62_000_000),
		"no_price":     int64(38_000_000),
		"liquidity":    int64(500_000_000_000),
		"volume_24h":   int64(90_000_000_000),
		"signature":    hex.EncodeToString(sig),
		"pub_key":      hex.EncodeToString(pub),
		"update_seq":   int64(42),
		"slot":         int64(1000),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "OraclePriceUpdate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	op, ok := evt.(*event.OraclePriceUpdate)
	if !ok {
		t.Fatalf("expected *event.OraclePriceUpdate, got %T", evt)
	}
	if op.Source != event.SourcePolymarket {
		t.Errorf("source: got %v, want polymarket", op.Source)
	}
	if op.YesPrice != 62_000_000 || op.NoPrice != 38_000_000 {
		t.Errorf("prices: got %d/%d", op.YesPrice, op.NoPrice)
	}
	if op.Signature[0] != 0xAB || op.PubKey[0] != 0xCD {
		t.Error("binary fields not decoded")
	}
	if op.UpdateSeq != 42 || op.SlotSeen != 1000 {
		t.Errorf("seq/slot: got %d/%d", op.UpdateSeq, op.SlotSeen)
	}
	if op.EventType() != event.EventTypeOraclePriceUpdate {
		t.Errorf("event type: got %v", op.EventType())
	}
}

func TestParseOraclePriceUpdate_BadBinaryFields(t *testing.T) {
	base := map[string]interface{}{
		"source":  "kalshi",
		"market":  "verse-1",
		"pub_key": hex.EncodeToString(make([]byte, 32)),
	}

	base["signature"] = "zzzz"
	if _, err := ingestion.ParseRawEvent(rawFromJSON(t, base), "OraclePriceUpdate"); err == nil {
		t.Error("non-hex signature accepted")
	}

	base["signature"] = hex.EncodeToString(make([]byte, 16))
	if _, err := ingestion.ParseRawEvent(rawFromJSON(t, base), "OraclePriceUpdate"); err == nil {
		t.Error("short signature accepted")
	}
}

func TestParseMarketSnapshotPair(t *testing.T) {
	snapshot := func(source string, yes int64) map[string]interface{} {
		return map[string]interface{}{
			"source":         source,
			"outcomes":       []string{"no", "yes"},
			"prices":         []int64{100_000_000 - yes, yes},
			"volume_24h":     int64(10_000_000_000),
			"status":         "active",
			"resolved":       false,
			"winner":         int32(0),
			"last_update_us": int64(1700000000000000),
		}
	}
	payload := map[string]interface{}{
		"market":       "verse-1",
		"primary":      snapshot("polymarket", 62_000_000),
		"comparison":   snapshot("kalshi", 61_500_000),
		"pair_seq":     int64(7),
		"slot":         int64(1200),
		"timestamp_us": int64(1700000000000000),
	}

	evt, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "MarketSnapshotPair")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	pair := evt.(*event.MarketSnapshotPair)
	if pair.Primary.Source != event.SourcePolymarket || pair.Comparison.Source != event.SourceKalshi {
		t.Error("sources not mapped")
	}
	if pair.Primary.Status != event.MarketStatusActive {
		t.Errorf("status: got %v", pair.Primary.Status)
	}
	if len(pair.Primary.Prices) != 2 || pair.Primary.Prices[1] != 62_000_000 {
		t.Errorf("prices: got %v", pair.Primary.Prices)
	}
	if pair.PairSeq != 7 {
		t.Errorf("pair_seq: got %d", pair.PairSeq)
	}
}

func TestParseMarketSnapshotPair_LengthMismatch(t *testing.T) {
	payload := map[string]interface{}{
		"market": "verse-1",
		"primary": map[string]interface{}{
			"source":   "polymarket",
			"outcomes": []string{"no", "yes"},
			"prices":   []int64{40_000_000},
		},
		"comparison": map[string]interface{}{
			"source":   "kalshi",
			"outcomes": []string{},
			"prices":   []int64{},
		},
	}
	if _, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "MarketSnapshotPair"); err == nil {
		t.Error("ragged outcome/price slices accepted")
	}
}

func TestParsePositionOpen(t *testing.T) {
	payload := map[string]interface{}{
		"intent_id":    "550e8400-e29b-41d4-a716-446655440000",
		"trader":       "660e8400-e29b-41d4-a716-446655440001",
		"market":       "verse-1",
		"outcome":      int32(1),
		"direction":    "short",
		"margin":       int64(10_000_000_000),
		"leverage":     int64(10_000_000),
		"open_seq":     int64(3),
		"slot":         int64(1500),
		"timestamp_us": int64(1700000000000000),
	}

	evt, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "PositionOpen")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	po := evt.(*event.PositionOpen)
	if po.Direction != event.SideShort {
		t.Errorf("direction: got %v", po.Direction)
	}
	if po.Margin != 10_000_000_000 || po.Leverage != 10_000_000 {
		t.Errorf("margin/leverage: got %d/%d", po.Margin, po.Leverage)
	}

	payload["direction"] = "sideways"
	if _, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "PositionOpen"); err == nil {
		t.Error("unknown direction accepted")
	}
}

func TestParseChainExecute(t *testing.T) {
	payload := map[string]interface{}{
		"chain_id": "550e8400-e29b-41d4-a716-446655440000",
		"owner":    "660e8400-e29b-41d4-a716-446655440001",
		"market":   "verse-1",
		"deposit":  int64(50_000_000_000),
		"steps": []map[string]interface{}{
			{"type": "open_position", "market": "verse-1", "outcome": int32(0), "direction": "long", "leverage": int64(5_000_000), "input_step": int32(-1)},
			{"type": "lend", "market": "verse-1", "amount": int64(0), "input_step": int32(0)},
		},
		"exec_seq":     int64(9),
		"slot":         int64(2000),
		"timestamp_us": int64(1700000000000000),
	}

	evt, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "ChainExecute")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	ce := evt.(*event.ChainExecute)
	if len(ce.Steps) != 2 {
		t.Fatalf("steps: got %d", len(ce.Steps))
	}
	if ce.Steps[0].Type != event.ChainStepOpenPosition || ce.Steps[0].InputStep != -1 {
		t.Errorf("step 0: %+v", ce.Steps[0])
	}
	// Direction is optional for non-position steps.
	if ce.Steps[1].Type != event.ChainStepLend || ce.Steps[1].Direction != event.SideFlat {
		t.Errorf("step 1: %+v", ce.Steps[1])
	}

	payload["steps"] = []map[string]interface{}{{"type": "teleport"}}
	if _, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "ChainExecute"); err == nil {
		t.Error("unknown step type accepted")
	}
}

func TestParseChainStepAdd(t *testing.T) {
	payload := map[string]interface{}{
		"chain_id":     "550e8400-e29b-41d4-a716-446655440000",
		"market":       "verse-1",
		"step":         map[string]interface{}{"type": "stake", "market": "verse-1", "input_step": int32(1)},
		"step_seq":     int64(4),
		"slot":         int64(2100),
		"timestamp_us": int64(1700000000000000),
	}

	evt, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "ChainStepAdd")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	sa := evt.(*event.ChainStepAdd)
	if sa.Step.Type != event.ChainStepStake || sa.Step.InputStep != 1 {
		t.Errorf("step: %+v", sa.Step)
	}
}

func TestParseKeeperEvents(t *testing.T) {
	reg := map[string]interface{}{
		"keeper_id":    "550e8400-e29b-41d4-a716-446655440000",
		"operator":     "660e8400-e29b-41d4-a716-446655440001",
		"stake":        int64(200_000_000_000),
		"reg_seq":      int64(0),
		"slot":         int64(100),
		"timestamp_us": int64(1700000000000000),
	}
	evt, err := ingestion.ParseRawEvent(rawFromJSON(t, reg), "KeeperRegister")
	if err != nil {
		t.Fatalf("parse register failed: %v", err)
	}
	if kr := evt.(*event.KeeperRegister); kr.Stake != 200_000_000_000 {
		t.Errorf("stake: got %d", kr.Stake)
	}

	stake := map[string]interface{}{
		"keeper_id":    "550e8400-e29b-41d4-a716-446655440000",
		"delta":        int64(-50_000_000_000),
		"stake_seq":    int64(1),
		"slot":         int64(110),
		"timestamp_us": int64(1700000000000000),
	}
	evt, err = ingestion.ParseRawEvent(rawFromJSON(t, stake), "KeeperStake")
	if err != nil {
		t.Fatalf("parse stake failed: %v", err)
	}
	if ks := evt.(*event.KeeperStake); ks.Delta != -50_000_000_000 {
		t.Errorf("delta: got %d", ks.Delta)
	}
}

func TestParseLiquidationSubmit(t *testing.T) {
	posID := make([]byte, 32)
	posID[0] = 0x01
	posID[31] = 0xFF

	payload := map[string]interface{}{
		"keeper_id":    "550e8400-e29b-41d4-a716-446655440000",
		"position_id":  hex.EncodeToString(posID),
		"market":       "verse-1",
		"submit_seq":   int64(12),
		"slot":         int64(3000),
		"timestamp_us": int64(1700000000000000),
	}

	evt, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "LiquidationSubmit")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	ls := evt.(*event.LiquidationSubmit)
	if ls.PositionID[0] != 0x01 || ls.PositionID[31] != 0xFF {
		t.Error("position_id not decoded")
	}

	payload["position_id"] = hex.EncodeToString(posID[:16])
	if _, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "LiquidationSubmit"); err == nil {
		t.Error("short position_id accepted")
	}
}

func TestParseRiskParamUpdate(t *testing.T) {
	payload := map[string]interface{}{
		"param":        "keeper_reward_bps",
		"value":        int64(12),
		"param_seq":    int64(0),
		"slot":         int64(50),
		"timestamp_us": int64(1700000000000000),
	}

	evt, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "RiskParamUpdate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	rp := evt.(*event.RiskParamUpdate)
	if rp.Param != "keeper_reward_bps" || rp.Value != 12 {
		t.Errorf("got %+v", rp)
	}
}

func TestParseRawEvent_UnknownType(t *testing.T) {
	if _, err := ingestion.ParseRawEvent(rawFromJSON(t, map[string]interface{}{}), "OrderFill"); err == nil {
		t.Error("unknown event type accepted")
	}
}
