package ingestion

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"VerseRisk/internal/event"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string) into a
// typed event.Event. The ingestion shell validates, parses, and converts raw
// events before sending them to the deterministic core.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "OraclePriceUpdate":
		return parseOraclePriceUpdate(raw.Data)
	case "MarketSnapshotPair":
		return parseMarketSnapshotPair(raw.Data)
	case "MarketStatusUpdate":
		return parseMarketStatusUpdate(raw.Data)
	case "PositionOpen":
		return parsePositionOpen(raw.Data)
	case "ChainExecute":
		return parseChainExecute(raw.Data)
	case "ChainStepAdd":
		return parseChainStepAdd(raw.Data)
	case "KeeperRegister":
		return parseKeeperRegister(raw.Data)
	case "KeeperStake":
		return parseKeeperStake(raw.Data)
	case "LiquidationSubmit":
		return parseLiquidationSubmit(raw.Data)
	case "RiskParamUpdate":
		return parseRiskParamUpdate(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers. Binary fields
// (signatures, keys, position ids) travel hex-encoded.

type oraclePriceJSON struct {
	Source      string `json:"source"`
	Market      string `json:"market"`
	YesPrice    int64  `json:"yes_price"`
	NoPrice     int64  `json:"no_price"`
	Liquidity   int64  `json:"liquidity"`
	Volume24h   int64  `json:"volume_24h"`
	Signature   string `json:"signature"`
	PubKey      string `json:"pub_key"`
	UpdateSeq   int64  `json:"update_seq"`
	SlotSeen    int64  `json:"slot"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseOraclePriceUpdate(data []byte) (*event.OraclePriceUpdate, error) {
	var j oraclePriceJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse OraclePriceUpdate: %w", err)
	}

	source, err := parseSource(j.Source)
	if err != nil {
		return nil, err
	}

	evt := &event.OraclePriceUpdate{
		Source:    source,
		Market:    j.Market,
		YesPrice:  j.YesPrice,
		NoPrice:   j.NoPrice,
		Liquidity: j.Liquidity,
		Volume24h: j.Volume24h,
		UpdateSeq: j.UpdateSeq,
		SlotSeen:  j.SlotSeen,
		Timestamp: j.TimestampUs,
	}
	if err := decodeHex(evt.Signature[:], j.Signature, "signature"); err != nil {
		return nil, err
	}
	if err := decodeHex(evt.PubKey[:], j.PubKey, "pub_key"); err != nil {
		return nil, err
	}
	return evt, nil
}

type marketSnapshotJSON struct {
	Source       string   `json:"source"`
	Outcomes     []string `json:"outcomes"`
	Prices       []int64  `json:"prices"`
	Volume24h    int64    `json:"volume_24h"`
	Status       string   `json:"status"`
	Resolved     bool     `json:"resolved"`
	Winner       int32    `json:"winner"`
	LastUpdateUs int64    `json:"last_update_us"`
}

type snapshotPairJSON struct {
	Market      string             `json:"market"`
	Primary     marketSnapshotJSON `json:"primary"`
	Comparison  marketSnapshotJSON `json:"comparison"`
	PairSeq     int64              `json:"pair_seq"`
	SlotSeen    int64              `json:"slot"`
	TimestampUs int64              `json:"timestamp_us"`
}

func parseMarketSnapshotPair(data []byte) (*event.MarketSnapshotPair, error) {
	var j snapshotPairJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse MarketSnapshotPair: %w", err)
	}

	primary, err := convertSnapshot(j.Primary)
	if err != nil {
		return nil, fmt.Errorf("primary: %w", err)
	}
	comparison, err := convertSnapshot(j.Comparison)
	if err != nil {
		return nil, fmt.Errorf("comparison: %w", err)
	}

	return &event.MarketSnapshotPair{
		Market:     j.Market,
		Primary:    primary,
		Comparison: comparison,
		PairSeq:    j.PairSeq,
		SlotSeen:   j.SlotSeen,
		Timestamp:  j.TimestampUs,
	}, nil
}

func convertSnapshot(j marketSnapshotJSON) (event.MarketSnapshot, error) {
	source, err := parseSource(j.Source)
	if err != nil {
		return event.MarketSnapshot{}, err
	}
	if len(j.Outcomes) != len(j.Prices) {
		return event.MarketSnapshot{}, fmt.Errorf("outcomes/prices length mismatch: %d vs %d", len(j.Outcomes), len(j.Prices))
	}
	return event.MarketSnapshot{
		Source:     source,
		Outcomes:   j.Outcomes,
		Prices:     j.Prices,
		Volume24h:  j.Volume24h,
		Status:     parseStatus(j.Status),
		Resolved:   j.Resolved,
		Winner:     j.Winner,
		LastUpdate: j.LastUpdateUs,
	}, nil
}

type marketStatusJSON struct {
	Market       string `json:"market"`
	Status       string `json:"status"`
	OutcomeCount int32  `json:"outcome_count"`
	VerseDepth   int32  `json:"verse_depth"`
	ParentMarket string `json:"parent_market,omitempty"`
	UpdateSeq    int64  `json:"update_seq"`
	SlotSeen     int64  `json:"slot"`
	TimestampUs  int64  `json:"timestamp_us"`
}

func parseMarketStatusUpdate(data []byte) (*event.MarketStatusUpdate, error) {
	var j marketStatusJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse MarketStatusUpdate: %w", err)
	}
	return &event.MarketStatusUpdate{
		Market:       j.Market,
		Status:       parseStatus(j.Status),
		OutcomeCount: j.OutcomeCount,
		VerseDepth:   j.VerseDepth,
		ParentMarket: j.ParentMarket,
		UpdateSeq:    j.UpdateSeq,
		SlotSeen:     j.SlotSeen,
		Timestamp:    j.TimestampUs,
	}, nil
}

type positionOpenJSON struct {
	IntentID    string `json:"intent_id"`
	Trader      string `json:"trader"`
	Market      string `json:"market"`
	Outcome     int32  `json:"outcome"`
	Direction   string `json:"direction"`
	Margin      int64  `json:"margin"`
	Leverage    int64  `json:"leverage"`
	OpenSeq     int64  `json:"open_seq"`
	SlotSeen    int64  `json:"slot"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parsePositionOpen(data []byte) (*event.PositionOpen, error) {
	var j positionOpenJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PositionOpen: %w", err)
	}
	intentID, err := uuid.Parse(j.IntentID)
	if err != nil {
		return nil, fmt.Errorf("parse intent_id: %w", err)
	}
	trader, err := uuid.Parse(j.Trader)
	if err != nil {
		return nil, fmt.Errorf("parse trader: %w", err)
	}
	direction, err := parseSide(j.Direction)
	if err != nil {
		return nil, err
	}
	return &event.PositionOpen{
		IntentID:  intentID,
		Trader:    trader,
		Market:    j.Market,
		Outcome:   j.Outcome,
		Direction: direction,
		Margin:    j.Margin,
		Leverage:  j.Leverage,
		OpenSeq:   j.OpenSeq,
		SlotSeen:  j.SlotSeen,
		Timestamp: j.TimestampUs,
	}, nil
}

type chainStepJSON struct {
	Type      string `json:"type"`
	Market    string `json:"market"`
	Outcome   int32  `json:"outcome"`
	Direction string `json:"direction,omitempty"`
	Amount    int64  `json:"amount"`
	Leverage  int64  `json:"leverage"`
	InputStep int32  `json:"input_step"`
}

type chainExecuteJSON struct {
	ChainID     string          `json:"chain_id"`
	Owner       string          `json:"owner"`
	Market      string          `json:"market"`
	Deposit     int64           `json:"deposit"`
	Steps       []chainStepJSON `json:"steps"`
	ExecSeq     int64           `json:"exec_seq"`
	SlotSeen    int64           `json:"slot"`
	TimestampUs int64           `json:"timestamp_us"`
}

func parseChainExecute(data []byte) (*event.ChainExecute, error) {
	var j chainExecuteJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ChainExecute: %w", err)
	}
	chainID, err := uuid.Parse(j.ChainID)
	if err != nil {
		return nil, fmt.Errorf("parse chain_id: %w", err)
	}
	owner, err := uuid.Parse(j.Owner)
	if err != nil {
		return nil, fmt.Errorf("parse owner: %w", err)
	}

	steps := make([]event.ChainStepSpec, 0, len(j.Steps))
	for i, sj := range j.Steps {
		step, err := convertChainStep(sj)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		steps = append(steps, step)
	}

	return &event.ChainExecute{
		ChainID:   chainID,
		Owner:     owner,
		Market:    j.Market,
		Deposit:   j.Deposit,
		Steps:     steps,
		ExecSeq:   j.ExecSeq,
		SlotSeen:  j.SlotSeen,
		Timestamp: j.TimestampUs,
	}, nil
}

type chainStepAddJSON struct {
	ChainID     string        `json:"chain_id"`
	Market      string        `json:"market"`
	Step        chainStepJSON `json:"step"`
	StepSeq     int64         `json:"step_seq"`
	SlotSeen    int64         `json:"slot"`
	TimestampUs int64         `json:"timestamp_us"`
}

func parseChainStepAdd(data []byte) (*event.ChainStepAdd, error) {
	var j chainStepAddJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ChainStepAdd: %w", err)
	}
	chainID, err := uuid.Parse(j.ChainID)
	if err != nil {
		return nil, fmt.Errorf("parse chain_id: %w", err)
	}
	step, err := convertChainStep(j.Step)
	if err != nil {
		return nil, fmt.Errorf("step: %w", err)
	}
	return &event.ChainStepAdd{
		ChainID:   chainID,
		Market:    j.Market,
		Step:      step,
		StepSeq:   j.StepSeq,
		SlotSeen:  j.SlotSeen,
		Timestamp: j.TimestampUs,
	}, nil
}

func convertChainStep(j chainStepJSON) (event.ChainStepSpec, error) {
	stepType, err := parseStepType(j.Type)
	if err != nil {
		return event.ChainStepSpec{}, err
	}
	direction := event.SideFlat
	if j.Direction != "" {
		direction, err = parseSide(j.Direction)
		if err != nil {
			return event.ChainStepSpec{}, err
		}
	}
	return event.ChainStepSpec{
		Type:      stepType,
		Market:    j.Market,
		Outcome:   j.Outcome,
		Direction: direction,
		Amount:    j.Amount,
		Leverage:  j.Leverage,
		InputStep: j.InputStep,
	}, nil
}

type keeperRegisterJSON struct {
	KeeperID    string `json:"keeper_id"`
	Operator    string `json:"operator"`
	Stake       int64  `json:"stake"`
	RegSeq      int64  `json:"reg_seq"`
	SlotSeen    int64  `json:"slot"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseKeeperRegister(data []byte) (*event.KeeperRegister, error) {
	var j keeperRegisterJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse KeeperRegister: %w", err)
	}
	keeperID, err := uuid.Parse(j.KeeperID)
	if err != nil {
		return nil, fmt.Errorf("parse keeper_id: %w", err)
	}
	operator, err := uuid.Parse(j.Operator)
	if err != nil {
		return nil, fmt.Errorf("parse operator: %w", err)
	}
	return &event.KeeperRegister{
		KeeperID:  keeperID,
		Operator:  operator,
		Stake:     j.Stake,
		RegSeq:    j.RegSeq,
		SlotSeen:  j.SlotSeen,
		Timestamp: j.TimestampUs,
	}, nil
}

type keeperStakeJSON struct {
	KeeperID    string `json:"keeper_id"`
	Delta       int64  `json:"delta"`
	StakeSeq    int64  `json:"stake_seq"`
	SlotSeen    int64  `json:"slot"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseKeeperStake(data []byte) (*event.KeeperStake, error) {
	var j keeperStakeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse KeeperStake: %w", err)
	}
	keeperID, err := uuid.Parse(j.KeeperID)
	if err != nil {
		return nil, fmt.Errorf("parse keeper_id: %w", err)
	}
	return &event.KeeperStake{
		KeeperID:  keeperID,
		Delta:     j.Delta,
		StakeSeq:  j.StakeSeq,
		SlotSeen:  j.SlotSeen,
		Timestamp: j.TimestampUs,
	}, nil
}

type liquidationSubmitJSON struct {
	KeeperID    string `json:"keeper_id"`
	PositionID  string `json:"position_id"`
	Market      string `json:"market"`
	SubmitSeq   int64  `json:"submit_seq"`
	SlotSeen    int64  `json:"slot"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseLiquidationSubmit(data []byte) (*event.LiquidationSubmit, error) {
	var j liquidationSubmitJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse LiquidationSubmit: %w", err)
	}
	keeperID, err := uuid.Parse(j.KeeperID)
	if err != nil {
		return nil, fmt.Errorf("parse keeper_id: %w", err)
	}
	evt := &event.LiquidationSubmit{
		KeeperID:  keeperID,
		Market:    j.Market,
		SubmitSeq: j.SubmitSeq,
		SlotSeen:  j.SlotSeen,
		Timestamp: j.TimestampUs,
	}
	if err := decodeHex(evt.PositionID[:], j.PositionID, "position_id"); err != nil {
		return nil, err
	}
	return evt, nil
}

type riskParamUpdateJSON struct {
	Param       string `json:"param"`
	Value       int64  `json:"value"`
	ParamSeq    int64  `json:"param_seq"`
	SlotSeen    int64  `json:"slot"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseRiskParamUpdate(data []byte) (*event.RiskParamUpdate, error) {
	var j riskParamUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RiskParamUpdate: %w", err)
	}
	return &event.RiskParamUpdate{
		Param:     j.Param,
		Value:     j.Value,
		ParamSeq:  j.ParamSeq,
		SlotSeen:  j.SlotSeen,
		Timestamp: j.TimestampUs,
	}, nil
}

// --- field helpers ---

func parseSource(s string) (event.OracleSource, error) {
	switch s {
	case "polymarket":
		return event.SourcePolymarket, nil
	case "kalshi":
		return event.SourceKalshi, nil
	case "internal_amm":
		return event.SourceInternalAMM, nil
	default:
		return event.SourceUnknown, fmt.Errorf("unknown oracle source %q", s)
	}
}

func parseStatus(s string) event.MarketStatus {
	switch s {
	case "active":
		return event.MarketStatusActive
	case "paused":
		return event.MarketStatusPaused
	case "resolving":
		return event.MarketStatusResolving
	case "resolved":
		return event.MarketStatusResolved
	case "voided":
		return event.MarketStatusVoided
	default:
		return event.MarketStatusUnknown
	}
}

func parseSide(s string) (event.Side, error) {
	switch s {
	case "long":
		return event.SideLong, nil
	case "short":
		return event.SideShort, nil
	default:
		return event.SideFlat, fmt.Errorf("unknown direction %q", s)
	}
}

func parseStepType(s string) (event.ChainStepType, error) {
	switch s {
	case "borrow":
		return event.ChainStepBorrow, nil
	case "lend":
		return event.ChainStepLend, nil
	case "provide_liquidity":
		return event.ChainStepProvideLiquidity, nil
	case "stake":
		return event.ChainStepStake, nil
	case "open_position":
		return event.ChainStepOpenPosition, nil
	default:
		return event.ChainStepUnknown, fmt.Errorf("unknown chain step type %q", s)
	}
}

// decodeHex fills dst from a hex string, requiring an exact length match.
func decodeHex(dst []byte, src, field string) error {
	raw, err := hex.DecodeString(src)
	if err != nil {
		return fmt.Errorf("parse %s: %w", field, err)
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("parse %s: got %d bytes, want %d", field, len(raw), len(dst))
	}
	copy(dst, raw)
	return nil
}
