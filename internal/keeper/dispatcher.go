package keeper

import (
	"fmt"

	"github.com/google/uuid"

	"VerseRisk/internal/event"
	"VerseRisk/internal/fixedpoint"
	"VerseRisk/internal/ledger"
	"VerseRisk/internal/risk"
	"VerseRisk/internal/state"
)

// AMMToleranceBps bounds how far a market's outcome prices may drift from
// unity after a liquidation touches them.
const AMMToleranceBps = int64(100)

// StopOrder is a user-funded instruction to close a position at a trigger
// price, with the keeper bounty prepaid.
type StopOrder struct {
	PositionID   [32]byte
	Owner        uuid.UUID
	TriggerPrice int64
	Bounty       int64
	PlacedSlot   int64
}

// ExecutionResult reports one committed liquidation.
type ExecutionResult struct {
	Type    risk.LiquidationType
	Removed int64 // Notional closed, price scale
	Seized  int64 // Margin moved to insurance
	Reward  int64 // Keeper payment
	Batch   *ledger.Batch
}

// Dispatcher validates keeper claims and commits liquidations. All checks
// run before any state moves; a failed check leaves positions, queue and
// ledger untouched.
type Dispatcher struct {
	registry  *Registry
	queue     *Queue
	positions *state.PositionManager
	health    *risk.Registry
	catalog   *state.MarketCatalog
	cfg       *risk.GlobalConfig
	journal   *ledger.JournalGenerator
	balances  *ledger.BalanceTracker

	lastLiquidation map[[32]byte]int64
	stops           map[[32]byte]*StopOrder
}

func NewDispatcher(
	registry *Registry,
	queue *Queue,
	positions *state.PositionManager,
	health *risk.Registry,
	catalog *state.MarketCatalog,
	cfg *risk.GlobalConfig,
	journal *ledger.JournalGenerator,
	balances *ledger.BalanceTracker,
) *Dispatcher {
	return &Dispatcher{
		registry:        registry,
		queue:           queue,
		positions:       positions,
		health:          health,
		catalog:         catalog,
		cfg:             cfg,
		journal:         journal,
		balances:        balances,
		lastLiquidation: make(map[[32]byte]int64),
		stops:           make(map[[32]byte]*StopOrder),
	}
}

// LiquidationQueue exposes the underlying queue for monitors feeding it.
func (d *Dispatcher) LiquidationQueue() *Queue {
	return d.queue
}

// eligibleKeeper runs the standing checks on a claiming keeper.
func (d *Dispatcher) eligibleKeeper(id uuid.UUID) (*Keeper, error) {
	k := d.registry.Get(id)
	if k == nil || k.Status == StatusInactive {
		return nil, fmt.Errorf("keeper %s: %w", id, ErrKeeperNotActive)
	}
	if k.Status == StatusSuspended {
		return nil, fmt.Errorf("keeper %s: %w", id, ErrKeeperSuspended)
	}
	if k.Stake < MinKeeperStake {
		return nil, fmt.Errorf("keeper %s stake %d: %w", id, k.Stake, ErrKeeperNotStaking)
	}
	return k, nil
}

// Execute processes a keeper's liquidation claim against the mark price
// observed at priceSlot.
func (d *Dispatcher) Execute(sub *event.LiquidationSubmit, markPrice, priceSlot int64) (*ExecutionResult, error) {
	k, err := d.eligibleKeeper(sub.KeeperID)
	if err != nil {
		return nil, err
	}

	if _, queued := d.queue.Contains(sub.PositionID); !queued {
		return nil, fmt.Errorf("position %x: %w", sub.PositionID[:8], ErrNotQueued)
	}

	h := d.health.Get(sub.PositionID)
	if h == nil {
		return nil, fmt.Errorf("position %x: %w", sub.PositionID[:8], ErrUnknownPosition)
	}

	if age := sub.SlotSeen - priceSlot; age > d.cfg.MaxPriceAgeSlots {
		return nil, fmt.Errorf("price %d slots old: %w", age, risk.ErrStalePriceFeed)
	}

	if last, ok := d.lastLiquidation[sub.PositionID]; ok {
		if elapsed := sub.SlotSeen - last; elapsed < d.cfg.LiquidationCooldownSlots {
			return nil, fmt.Errorf("%d of %d slots elapsed: %w",
				elapsed, d.cfg.LiquidationCooldownSlots, ErrLiquidationCooldown)
		}
	}

	ratio := risk.HealthRatio(markPrice, h.LiquidationPrice, h.Direction)
	if ratio >= d.cfg.WarningThreshold {
		// Price moved back; the queue entry is obsolete.
		d.queue.Remove(sub.PositionID)
		return nil, fmt.Errorf("health %d: %w", ratio, ErrPositionRecovered)
	}

	ltype := risk.ChooseLiquidationType(d.cfg, h, markPrice)

	// AMM invariant check before anything commits.
	if m := d.catalog.Get(h.Market); m != nil {
		if dev := m.UnityDeviationBps(); dev > AMMToleranceBps {
			d.failKeeper(k, sub.IdempotencyKey(), sub.Timestamp)
			return nil, fmt.Errorf("%s deviates %dbps: %w", h.Market, dev, ErrAMMInvariantViolation)
		}
	}

	pos := d.positions.Get(sub.PositionID)
	if pos == nil || pos.IsFlat() {
		d.queue.Remove(sub.PositionID)
		return nil, fmt.Errorf("position %x: %w", sub.PositionID[:8], ErrUnknownPosition)
	}

	fraction := fixedpoint.One
	if ltype == risk.LiquidationPartial {
		fraction = risk.PartialFraction
	}
	seized := fixedpoint.MulDiv(pos.Margin, fraction, fixedpoint.One, fixedpoint.RoundHalfEven)

	// Stage the ledger batch first: it validates balances without applying.
	removedPreview := fixedpoint.MulDiv(pos.Size, fraction, fixedpoint.One, fixedpoint.RoundHalfEven)
	reward := fixedpoint.ApplyBps(removedPreview, d.cfg.KeeperRewardBps)
	if reward > seized {
		reward = seized
	}
	batch, err := d.journal.GenerateLiquidation(sub.IdempotencyKey(), pos.Owner, k.ID, seized, reward, sub.Timestamp)
	if err != nil {
		d.failKeeper(k, sub.IdempotencyKey(), sub.Timestamp)
		return nil, fmt.Errorf("liquidation ledger: %w", err)
	}

	// Commit.
	removed, err := d.positions.ApplyLiquidation(sub.PositionID, fraction, markPrice)
	if err != nil {
		d.failKeeper(k, sub.IdempotencyKey(), sub.Timestamp)
		return nil, err
	}
	if err := d.balances.ApplyBatch(batch); err != nil {
		return nil, fmt.Errorf("apply liquidation batch: %w", err)
	}

	h.TotalLiquidated += removed
	d.lastLiquidation[sub.PositionID] = sub.SlotSeen

	if ltype == risk.LiquidationPartial {
		h.PartialLiquidations++
		h.Margin -= seized
		h.Size -= removed
	} else {
		d.queue.Remove(sub.PositionID)
		d.health.Remove(sub.PositionID)
		delete(d.stops, sub.PositionID)
	}

	d.registry.RecordSuccess(k)
	d.queue.Stats.Executed++

	return &ExecutionResult{
		Type:    ltype,
		Removed: removed,
		Seized:  seized,
		Reward:  reward,
		Batch:   batch,
	}, nil
}

// failKeeper books a failed attempt: performance penalty plus a stake
// slash into the insurance fund.
func (d *Dispatcher) failKeeper(k *Keeper, eventRef string, timestamp int64) {
	d.registry.RecordFailure(k)

	slash := fixedpoint.ApplyBps(k.Stake, d.cfg.SlashBps)
	if slash <= 0 {
		return
	}
	batch, err := d.journal.GenerateStakeSlash(eventRef+":slash", k.ID, slash, timestamp)
	if err != nil {
		return
	}
	if err := d.balances.ApplyBatch(batch); err != nil {
		return
	}
	k.Stake -= slash
	d.registry.UpdateKeeperTier(k)
}

// PlaceStop reserves the prepaid bounty and records the stop order.
func (d *Dispatcher) PlaceStop(positionID [32]byte, triggerPrice, slot, timestamp int64) (*StopOrder, error) {
	if _, exists := d.stops[positionID]; exists {
		return nil, fmt.Errorf("position %x: %w", positionID[:8], ErrStopExists)
	}
	pos := d.positions.Get(positionID)
	if pos == nil || pos.IsFlat() {
		return nil, fmt.Errorf("position %x: %w", positionID[:8], ErrUnknownPosition)
	}

	bounty := fixedpoint.ApplyBps(pos.Size, d.cfg.StopBountyBps)
	ref := fmt.Sprintf("stop:%x:%d", positionID[:8], slot)
	batch, err := d.journal.GenerateStopBountyReserve(ref, pos.Owner, bounty, timestamp)
	if err != nil {
		return nil, err
	}
	if err := d.balances.ApplyBatch(batch); err != nil {
		return nil, err
	}

	stop := &StopOrder{
		PositionID:   positionID,
		Owner:        pos.Owner,
		TriggerPrice: triggerPrice,
		Bounty:       bounty,
		PlacedSlot:   slot,
	}
	d.stops[positionID] = stop
	return stop, nil
}

// ExecuteStop closes a stopped-out position and pays the prepaid bounty.
func (d *Dispatcher) ExecuteStop(keeperID uuid.UUID, positionID [32]byte, markPrice, slot, timestamp int64) (*ExecutionResult, error) {
	k, err := d.eligibleKeeper(keeperID)
	if err != nil {
		return nil, err
	}
	stop := d.stops[positionID]
	if stop == nil {
		return nil, fmt.Errorf("position %x: %w", positionID[:8], ErrUnknownStop)
	}
	pos := d.positions.Get(positionID)
	if pos == nil || pos.IsFlat() {
		delete(d.stops, positionID)
		return nil, fmt.Errorf("position %x: %w", positionID[:8], ErrUnknownPosition)
	}

	triggered := markPrice <= stop.TriggerPrice
	if pos.Direction == event.SideShort {
		triggered = markPrice >= stop.TriggerPrice
	}
	if !triggered {
		return nil, fmt.Errorf("mark %d vs trigger %d: %w", markPrice, stop.TriggerPrice, ErrStopNotTriggered)
	}

	ref := fmt.Sprintf("stopexec:%x:%d", positionID[:8], slot)
	batch, err := d.journal.GenerateStopBountyPayout(ref, stop.Owner, k.ID, stop.Bounty, timestamp)
	if err != nil {
		return nil, err
	}

	removed, err := d.positions.ApplyLiquidation(positionID, fixedpoint.One, markPrice)
	if err != nil {
		return nil, err
	}
	if err := d.balances.ApplyBatch(batch); err != nil {
		return nil, fmt.Errorf("apply bounty batch: %w", err)
	}

	d.queue.Remove(positionID)
	d.health.Remove(positionID)
	delete(d.stops, positionID)
	d.registry.RecordSuccess(k)

	return &ExecutionResult{
		Type:    risk.LiquidationFull,
		Removed: removed,
		Reward:  stop.Bounty,
		Batch:   batch,
	}, nil
}
