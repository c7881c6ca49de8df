package event

import "fmt"

// RiskParamUpdate changes one global risk parameter. Param names match the
// GlobalConfig field set (e.g. "max_price_age_slots", "keeper_reward_bps").
// Applies at the sequence it is processed; in-flight events ahead of it in
// the log see the old value.
type RiskParamUpdate struct {
	Param     string
	Value     int64
	ParamSeq  int64
	SlotSeen  int64
	Timestamp int64
}

func (r *RiskParamUpdate) IdempotencyKey() string {
	return fmt.Sprintf("param:%s:%d", r.Param, r.ParamSeq)
}

func (r *RiskParamUpdate) EventType() EventType {
	return EventTypeRiskParamUpdate
}

func (r *RiskParamUpdate) MarketID() *string {
	return nil
}

func (r *RiskParamUpdate) SourceSequence() int64 {
	return r.ParamSeq
}

func (r *RiskParamUpdate) Slot() int64 {
	return r.SlotSeen
}
