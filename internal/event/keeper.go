package event

import (
	"fmt"

	"github.com/google/uuid"
)

// KeeperRegister enrolls a keeper into the dispatch registry.
// Idempotency key: keeper_id + registration sequence.
type KeeperRegister struct {
	KeeperID  uuid.UUID
	Operator  uuid.UUID
	Stake     int64 // Fixed-point: price scale (MMT staked)
	RegSeq    int64
	SlotSeen  int64
	Timestamp int64
}

func (k *KeeperRegister) IdempotencyKey() string {
	return fmt.Sprintf("%s:register:%d", k.KeeperID, k.RegSeq)
}

func (k *KeeperRegister) EventType() EventType {
	return EventTypeKeeperRegister
}

func (k *KeeperRegister) MarketID() *string {
	return nil
}

func (k *KeeperRegister) SourceSequence() int64 {
	return k.RegSeq
}

func (k *KeeperRegister) Slot() int64 {
	return k.SlotSeen
}

// KeeperStake adjusts a keeper's stake. Negative delta is a withdrawal;
// withdrawals below the minimum stake deactivate the keeper.
type KeeperStake struct {
	KeeperID  uuid.UUID
	Delta     int64
	StakeSeq  int64
	SlotSeen  int64
	Timestamp int64
}

func (k *KeeperStake) IdempotencyKey() string {
	return fmt.Sprintf("%s:stake:%d", k.KeeperID, k.StakeSeq)
}

func (k *KeeperStake) EventType() EventType {
	return EventTypeKeeperStake
}

func (k *KeeperStake) MarketID() *string {
	return nil
}

func (k *KeeperStake) SourceSequence() int64 {
	return k.StakeSeq
}

func (k *KeeperStake) Slot() int64 {
	return k.SlotSeen
}

// LiquidationSubmit is a keeper's claim to execute a pending liquidation.
// Idempotency key: keeper + position + submit sequence.
type LiquidationSubmit struct {
	KeeperID   uuid.UUID
	PositionID [32]byte
	Market     string
	SubmitSeq  int64
	SlotSeen   int64
	Timestamp  int64
}

func (l *LiquidationSubmit) IdempotencyKey() string {
	return fmt.Sprintf("%s:%x:liq:%d", l.KeeperID, l.PositionID[:8], l.SubmitSeq)
}

func (l *LiquidationSubmit) EventType() EventType {
	return EventTypeLiquidationSubmit
}

func (l *LiquidationSubmit) MarketID() *string {
	m := l.Market
	return &m
}

func (l *LiquidationSubmit) SourceSequence() int64 {
	return l.SubmitSeq
}

func (l *LiquidationSubmit) Slot() int64 {
	return l.SlotSeen
}
