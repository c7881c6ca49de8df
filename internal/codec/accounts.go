package codec

import (
	"fmt"

	"VerseRisk/internal/chain"
	"VerseRisk/internal/event"
	"VerseRisk/internal/keeper"
	"VerseRisk/internal/risk"
	"VerseRisk/internal/state"
)

// maxHealthSteps bounds the chain-step history a health record persists.
// Chains cap at five steps; the extra slots absorb replays of repaired
// chains without a layout bump.
const maxHealthSteps = 8

// ============================================================================
// Position
// ============================================================================

const positionSize = 9 + 32 + 16 + marketFieldLen + 4 + 4 + 8*5 + 1 + 8

// EncodePosition serializes a position record.
func EncodePosition(p *state.Position) ([]byte, error) {
	w := newWriter(discPosition, positionSize)
	w.bytes32(p.ID)
	w.uuid(p.Owner)
	if err := w.market(p.Market); err != nil {
		return nil, err
	}
	w.i32(p.Outcome)
	w.i32(int32(p.Direction))
	w.i64(p.Size)
	w.i64(p.EntryPrice)
	w.i64(p.Margin)
	w.i64(p.RealizedPnL)
	w.bool(p.Closed)
	w.i64(p.OpenedSlot)
	w.i64(p.Version)
	return w.buf, nil
}

// DecodePosition reverses EncodePosition.
func DecodePosition(buf []byte) (*state.Position, error) {
	r := newReader(buf, discPosition)
	p := &state.Position{
		ID:        r.bytes32(),
		Owner:     r.uuid(),
		Market:    r.market(),
		Outcome:   r.i32(),
		Direction: event.Side(r.i32()),
	}
	p.Size = r.i64()
	p.EntryPrice = r.i64()
	p.Margin = r.i64()
	p.RealizedPnL = r.i64()
	p.Closed = r.bool()
	p.OpenedSlot = r.i64()
	p.Version = r.i64()
	if err := r.finish(); err != nil {
		return nil, fmt.Errorf("position: %w", err)
	}
	return p, nil
}

// ============================================================================
// PositionHealth
// ============================================================================

const healthStepSize = 4 + 8 + 8

const positionHealthSize = 9 + 32 + 16 + marketFieldLen + 4 + 4 +
	8*6 + 1 + maxHealthSteps*healthStepSize + 4 + 8*3 + 1

// EncodePositionHealth serializes a health record, chain steps inline.
func EncodePositionHealth(h *risk.PositionHealth) ([]byte, error) {
	if len(h.ChainSteps) > maxHealthSteps {
		return nil, fmt.Errorf("%d chain steps: %w", len(h.ChainSteps), ErrTooManySteps)
	}
	w := newWriter(discPositionHealth, positionHealthSize)
	w.bytes32(h.PositionID)
	w.uuid(h.Owner)
	if err := w.market(h.Market); err != nil {
		return nil, err
	}
	w.i32(h.Outcome)
	w.i32(int32(h.Direction))
	w.i64(h.Margin)
	w.i64(h.Size)
	w.i64(h.EntryPrice)
	w.i64(h.BaseLeverage)
	w.i64(h.EffectiveLeverage)
	w.i64(h.LiquidationPrice)
	w.byte(byte(len(h.ChainSteps)))
	for i := 0; i < maxHealthSteps; i++ {
		var s risk.ChainStepRecord
		if i < len(h.ChainSteps) {
			s = h.ChainSteps[i]
		}
		w.i32(int32(s.Type))
		w.i64(s.Multiplier)
		w.i64(s.AppliedSlot)
	}
	w.i32(h.PartialLiquidations)
	w.i64(h.TotalLiquidated)
	w.i64(h.LastCheckSlot)
	w.i64(h.LastCheckTime)
	w.bool(h.Closed)
	return w.buf, nil
}

// DecodePositionHealth reverses EncodePositionHealth.
func DecodePositionHealth(buf []byte) (*risk.PositionHealth, error) {
	r := newReader(buf, discPositionHealth)
	h := &risk.PositionHealth{
		PositionID: r.bytes32(),
		Owner:      r.uuid(),
		Market:     r.market(),
		Outcome:    r.i32(),
		Direction:  event.Side(r.i32()),
	}
	h.Margin = r.i64()
	h.Size = r.i64()
	h.EntryPrice = r.i64()
	h.BaseLeverage = r.i64()
	h.EffectiveLeverage = r.i64()
	h.LiquidationPrice = r.i64()
	count := int(r.byte())
	if count > maxHealthSteps {
		return nil, fmt.Errorf("%d chain steps: %w", count, ErrTooManySteps)
	}
	for i := 0; i < maxHealthSteps; i++ {
		s := risk.ChainStepRecord{
			Type:        event.ChainStepType(r.i32()),
			Multiplier:  r.i64(),
			AppliedSlot: r.i64(),
		}
		if i < count {
			h.ChainSteps = append(h.ChainSteps, s)
		}
	}
	h.PartialLiquidations = r.i32()
	h.TotalLiquidated = r.i64()
	h.LastCheckSlot = r.i64()
	h.LastCheckTime = r.i64()
	h.Closed = r.bool()
	if err := r.finish(); err != nil {
		return nil, fmt.Errorf("position health: %w", err)
	}
	return h, nil
}

// ============================================================================
// ChainState
// ============================================================================

const appliedStepSize = 4 + marketFieldLen + 4 + 4 + 8 + 8 + 4 + // spec
	8 + 8 + 8 + 8 + 32 // flow

const chainStateSize = 9 + 16 + 16 + marketFieldLen +
	8*2 + 4 + 8 + 8 + 1 + chain.MaxChainDepth*appliedStepSize

// EncodeChainState serializes a chain record with its applied steps.
func EncodeChainState(c *chain.ChainState) ([]byte, error) {
	if len(c.Steps) > chain.MaxChainDepth {
		return nil, fmt.Errorf("%d steps: %w", len(c.Steps), ErrTooManySteps)
	}
	w := newWriter(discChainState, chainStateSize)
	w.uuid(c.ID)
	w.uuid(c.Owner)
	if err := w.market(c.Verse); err != nil {
		return nil, err
	}
	w.i64(c.Deposit)
	w.i64(c.Balance)
	w.i32(int32(c.Status))
	w.i64(c.EffectiveLeverage)
	w.i64(c.CreatedSlot)
	w.byte(byte(len(c.Steps)))
	for i := 0; i < chain.MaxChainDepth; i++ {
		var s chain.AppliedStep
		if i < len(c.Steps) {
			s = c.Steps[i]
		}
		w.i32(int32(s.Spec.Type))
		if err := w.market(s.Spec.Market); err != nil {
			return nil, err
		}
		w.i32(s.Spec.Outcome)
		w.i32(int32(s.Spec.Direction))
		w.i64(s.Spec.Amount)
		w.i64(s.Spec.Leverage)
		w.i32(s.Spec.InputStep)
		w.i64(s.Input)
		w.i64(s.Output)
		w.i64(s.Multiplier)
		w.i64(s.Yield)
		w.bytes32(s.PositionID)
	}
	return w.buf, nil
}

// DecodeChainState reverses EncodeChainState.
func DecodeChainState(buf []byte) (*chain.ChainState, error) {
	r := newReader(buf, discChainState)
	c := &chain.ChainState{
		ID:    r.uuid(),
		Owner: r.uuid(),
		Verse: r.market(),
	}
	c.Deposit = r.i64()
	c.Balance = r.i64()
	c.Status = chain.ChainStatus(r.i32())
	c.EffectiveLeverage = r.i64()
	c.CreatedSlot = r.i64()
	count := int(r.byte())
	if count > chain.MaxChainDepth {
		return nil, fmt.Errorf("%d steps: %w", count, ErrTooManySteps)
	}
	for i := 0; i < chain.MaxChainDepth; i++ {
		s := chain.AppliedStep{
			Spec: event.ChainStepSpec{
				Type:      event.ChainStepType(r.i32()),
				Market:    r.market(),
				Outcome:   r.i32(),
				Direction: event.Side(r.i32()),
				Amount:    r.i64(),
				Leverage:  r.i64(),
				InputStep: r.i32(),
			},
			Input:      r.i64(),
			Output:     r.i64(),
			Multiplier: r.i64(),
			Yield:      r.i64(),
			PositionID: r.bytes32(),
		}
		if i < count {
			c.Steps = append(c.Steps, s)
		}
	}
	if err := r.finish(); err != nil {
		return nil, fmt.Errorf("chain state: %w", err)
	}
	return c, nil
}

// ============================================================================
// LiquidationQueue
// ============================================================================

const queueEntrySize = 32 + 16 + 4 + 8*4

// EncodeQueue serializes both tiers in FIFO order plus the rolling stats.
func EncodeQueue(q *keeper.Queue) ([]byte, error) {
	high, medium := q.Snapshot()
	if len(high) > maxQueueTier || len(medium) > maxQueueTier {
		return nil, fmt.Errorf("tiers %d/%d: %w", len(high), len(medium), ErrQueueTooLarge)
	}
	w := newWriter(discQueue, 9+8*4+2+2+(len(high)+len(medium))*queueEntrySize)
	w.i64(q.Stats.Enqueued)
	w.i64(q.Stats.Moved)
	w.i64(q.Stats.Removed)
	w.i64(q.Stats.Executed)
	w.u16(uint16(len(high)))
	w.u16(uint16(len(medium)))
	for _, e := range append(high, medium...) {
		w.bytes32(e.PositionID)
		w.uuid(e.Trader)
		w.i32(int32(e.Tier))
		w.i64(e.HealthRatio)
		w.i64(e.EffectiveLeverage)
		w.i64(e.EnqueuedSlot)
		w.i64(e.EnqueuedTime)
	}
	return w.buf, nil
}

// DecodeQueue reverses EncodeQueue.
func DecodeQueue(buf []byte) (*keeper.Queue, error) {
	r := newReader(buf, discQueue)
	stats := keeper.QueueStats{
		Enqueued: r.i64(),
		Moved:    r.i64(),
		Removed:  r.i64(),
		Executed: r.i64(),
	}
	nHigh := int(r.u16())
	nMedium := int(r.u16())
	if nHigh > maxQueueTier || nMedium > maxQueueTier {
		return nil, fmt.Errorf("tiers %d/%d: %w", nHigh, nMedium, ErrQueueTooLarge)
	}
	readEntry := func() keeper.Entry {
		return keeper.Entry{
			PositionID:        r.bytes32(),
			Trader:            r.uuid(),
			Tier:              risk.QueueTier(r.i32()),
			HealthRatio:       r.i64(),
			EffectiveLeverage: r.i64(),
			EnqueuedSlot:      r.i64(),
			EnqueuedTime:      r.i64(),
		}
	}
	high := make([]keeper.Entry, 0, nHigh)
	for i := 0; i < nHigh; i++ {
		high = append(high, readEntry())
	}
	medium := make([]keeper.Entry, 0, nMedium)
	for i := 0; i < nMedium; i++ {
		medium = append(medium, readEntry())
	}
	if err := r.finish(); err != nil {
		return nil, fmt.Errorf("liquidation queue: %w", err)
	}
	return keeper.RestoreQueue(high, medium, stats), nil
}

// ============================================================================
// GlobalConfig
// ============================================================================

const globalConfigSize = 9 + 16 + 1 + 8*11 + 8*4

// EncodeGlobalConfig serializes the risk parameter set and its counters.
func EncodeGlobalConfig(cfg *risk.GlobalConfig) []byte {
	w := newWriter(discGlobalConfig, globalConfigSize)
	w.uuid(cfg.Authority)
	w.bool(cfg.EmergencyHalt)
	w.i64(cfg.MaxPriceAgeSlots)
	w.i64(cfg.WarningThreshold)
	w.i64(cfg.CriticalThreshold)
	w.i64(cfg.MaintenanceFactor)
	w.i64(cfg.MaxEffectiveLeverage)
	w.i64(cfg.PartialBps)
	w.i64(cfg.EmergencyBps)
	w.i64(cfg.LiquidationCooldownSlots)
	w.i64(cfg.KeeperRewardBps)
	w.i64(cfg.StopBountyBps)
	w.i64(cfg.SlashBps)
	w.i64(cfg.Stats.ChecksPerformed)
	w.i64(cfg.Stats.WarningsIssued)
	w.i64(cfg.Stats.LiquidationsTriggered)
	w.i64(cfg.Stats.EmergencyLiquidations)
	return w.buf
}

// DecodeGlobalConfig reverses EncodeGlobalConfig.
func DecodeGlobalConfig(buf []byte) (*risk.GlobalConfig, error) {
	r := newReader(buf, discGlobalConfig)
	cfg := &risk.GlobalConfig{
		Authority:     r.uuid(),
		EmergencyHalt: r.bool(),
	}
	cfg.MaxPriceAgeSlots = r.i64()
	cfg.WarningThreshold = r.i64()
	cfg.CriticalThreshold = r.i64()
	cfg.MaintenanceFactor = r.i64()
	cfg.MaxEffectiveLeverage = r.i64()
	cfg.PartialBps = r.i64()
	cfg.EmergencyBps = r.i64()
	cfg.LiquidationCooldownSlots = r.i64()
	cfg.KeeperRewardBps = r.i64()
	cfg.StopBountyBps = r.i64()
	cfg.SlashBps = r.i64()
	cfg.Stats.ChecksPerformed = r.i64()
	cfg.Stats.WarningsIssued = r.i64()
	cfg.Stats.LiquidationsTriggered = r.i64()
	cfg.Stats.EmergencyLiquidations = r.i64()
	if err := r.finish(); err != nil {
		return nil, fmt.Errorf("global config: %w", err)
	}
	return cfg, nil
}
