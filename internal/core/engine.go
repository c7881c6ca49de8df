package core

import (
	"crypto/ed25519"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"VerseRisk/internal/chain"
	"VerseRisk/internal/crossval"
	"VerseRisk/internal/event"
	"VerseRisk/internal/fixedpoint"
	"VerseRisk/internal/keeper"
	"VerseRisk/internal/ledger"
	"VerseRisk/internal/observability"
	"VerseRisk/internal/oracle"
	"VerseRisk/internal/risk"
	"VerseRisk/internal/state"
)

// RiskCore is the single-threaded event processor. Every state mutation in
// the system flows through ProcessEvent; the workers around it only move
// bytes in and out. The mutex exists solely for the read views the query
// layer takes between events; there is never writer contention.
type RiskCore struct {
	mu       sync.RWMutex
	sequence int64
	hasher   *StateHasher
	cfg      risk.GlobalConfig

	oracle     *oracle.Aggregator
	crossval   *crossval.Validator
	catalog    *state.MarketCatalog
	positions  *state.PositionManager
	health     *risk.Registry
	chains     *chain.Executor
	keepers    *keeper.Registry
	queue      *keeper.Queue
	dispatcher *keeper.Dispatcher
	balances   *ledger.BalanceTracker
	journal    *ledger.JournalGenerator

	idempotency *IdempotencyChecker
	sequences   *SequenceValidator
	metrics     *observability.Metrics
	log         zerolog.Logger

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
	notifyChan     chan<- LiquidationNotice
}

// CoreOutput is one processed event with its ledger effect and digest.
type CoreOutput struct {
	Envelope   *event.EventEnvelope
	Batch      *ledger.Batch
	StateDelta []byte
}

// LiquidationNotice tells keepers a position entered the queue. Delivery is
// best effort; the queue itself is the source of truth.
type LiquidationNotice struct {
	PositionID  [32]byte
	Market      string
	Tier        risk.QueueTier
	HealthRatio int64
	Slot        int64
}

// Deps wires the core's collaborators.
type Deps struct {
	StartSequence int64
	Config        risk.GlobalConfig

	OracleConfig   oracle.Config
	Authorities    map[event.OracleSource]ed25519.PublicKey
	CrossvalConfig crossval.Config

	PersistChan    chan<- CoreOutput
	ProjectionChan chan<- CoreOutput
	NotifyChan     chan<- LiquidationNotice

	DBChecker           DBIdempotencyChecker
	IdempotencyCapacity int

	Metrics *observability.Metrics
	Audit   oracle.AuditSink
	Logger  zerolog.Logger
}

func NewRiskCore(deps Deps) *RiskCore {
	if deps.IdempotencyCapacity <= 0 {
		deps.IdempotencyCapacity = 1_000_000
	}

	balances := ledger.NewBalanceTracker()
	journal := ledger.NewJournalGenerator(deps.StartSequence, balances)
	catalog := state.NewMarketCatalog()
	positions := state.NewPositionManager()
	health := risk.NewRegistry()
	keepers := keeper.NewRegistry()
	queue := keeper.NewQueue()

	c := &RiskCore{
		sequence:  deps.StartSequence,
		hasher:    NewStateHasher(),
		cfg:       deps.Config,
		oracle:    oracle.NewAggregator(deps.OracleConfig, deps.Authorities, deps.Audit),
		crossval:  crossval.NewValidator(deps.CrossvalConfig, deps.Logger),
		catalog:   catalog,
		positions: positions,
		health:    health,
		keepers:   keepers,
		queue:     queue,
		balances:  balances,
		journal:   journal,

		idempotency: NewIdempotencyChecker(deps.IdempotencyCapacity, deps.DBChecker),
		sequences:   NewSequenceValidator(),
		metrics:     deps.Metrics,
		log:         deps.Logger,

		persistChan:    deps.PersistChan,
		projectionChan: deps.ProjectionChan,
		notifyChan:     deps.NotifyChan,
	}
	c.chains = chain.NewExecutor(catalog, positions, health, &c.cfg)
	c.dispatcher = keeper.NewDispatcher(keepers, queue, positions, health, catalog, &c.cfg, journal, balances)
	return c
}

// dispatchResult carries a handler's ledger effect. applied marks batches
// the handler already committed (the keeper dispatcher applies its own).
type dispatchResult struct {
	batch   *ledger.Batch
	applied bool
}

// ProcessEvent runs the full pipeline: dedup, sequence validation,
// dispatch, batch application, hash chain, emit.
func (c *RiskCore) ProcessEvent(evt event.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	eventType := evt.EventType().String()
	key := evt.IdempotencyKey()

	isDuplicate := c.idempotency.IsDuplicate(eventType, key)

	// Oracle prices and venue snapshots arrive over lossy polling; their
	// partitions tolerate gaps. Everything else is strictly ordered.
	switch e := evt.(type) {
	case *event.OraclePriceUpdate:
		if !c.sequences.ValidateLossy(fmt.Sprintf("price:%s:%s", e.Market, e.Source), e.UpdateSeq) {
			if c.metrics != nil {
				c.metrics.CoreEventsRejected.WithLabelValues(eventType, "stale").Inc()
			}
			return nil
		}
	case *event.MarketSnapshotPair:
		if !c.sequences.ValidateLossy("pair:"+e.Market, e.PairSeq) {
			if c.metrics != nil {
				c.metrics.CoreEventsRejected.WithLabelValues(eventType, "stale").Inc()
			}
			return nil
		}
	default:
		if err := c.sequences.ValidateSequence(c.partition(evt), evt.SourceSequence(), isDuplicate); err != nil {
			return fmt.Errorf("sequence validation failed: %w", err)
		}
	}

	if isDuplicate {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "duplicate").Inc()
		}
		return nil
	}

	res, err := c.dispatch(evt)
	if err != nil {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "dispatch").Inc()
		}
		return fmt.Errorf("dispatch %s: %w", eventType, err)
	}

	if res.batch != nil && len(res.batch.Journals) > 0 && !res.applied {
		if err := c.balances.ApplyBatch(res.batch); err != nil {
			panic(fmt.Sprintf("FATAL: staged batch failed to apply: %v", err))
		}
	}

	digest := c.stateDigest(res.batch)
	prevHash := c.hasher.Tip()
	stateHash := c.hasher.ComputeHash(c.sequence, digest)

	payload, err := event.Marshal(evt)
	if err != nil {
		c.log.Error().Err(err).Str("event_type", eventType).Msg("event payload encode failed")
	}

	envelope := &event.EventEnvelope{
		Sequence:       c.sequence,
		IdempotencyKey: key,
		EventType:      evt.EventType(),
		MarketID:       evt.MarketID(),
		Timestamp:      time.UnixMicro(c.eventTimestamp(evt)),
		Slot:           evt.Slot(),
		SourceSequence: evt.SourceSequence(),
		Payload:        payload,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}
	c.sequence++

	output := CoreOutput{
		Envelope:   envelope,
		Batch:      res.batch,
		StateDelta: digest,
	}

	// Persistence is a blocking send: the core stalls rather than lose an
	// event. Projections drop on overflow and rebuild from the log.
	if c.persistChan != nil {
		c.persistChan <- output
	}
	if c.projectionChan != nil {
		select {
		case c.projectionChan <- output:
		default:
			if c.metrics != nil {
				c.metrics.ProjectionDrops.WithLabelValues("core").Inc()
			}
		}
	}

	c.idempotency.MarkProcessed(eventType, key)

	if c.metrics != nil {
		c.metrics.CoreEventsApplied.WithLabelValues(eventType).Inc()
		c.metrics.CoreEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(c.sequence))
		high, medium := c.queue.Len()
		c.metrics.QueueDepth.WithLabelValues("high").Set(float64(high))
		c.metrics.QueueDepth.WithLabelValues("medium").Set(float64(medium))
	}

	return nil
}

func (c *RiskCore) dispatch(evt event.Event) (dispatchResult, error) {
	switch e := evt.(type) {
	case *event.OraclePriceUpdate:
		return c.handleOraclePrice(e)
	case *event.MarketSnapshotPair:
		return c.handleSnapshotPair(e)
	case *event.MarketStatusUpdate:
		c.catalog.Apply(e)
		return dispatchResult{}, nil
	case *event.PositionOpen:
		return c.handlePositionOpen(e)
	case *event.ChainExecute:
		return c.handleChainExecute(e)
	case *event.ChainStepAdd:
		return c.handleChainStepAdd(e)
	case *event.KeeperRegister:
		return c.handleKeeperRegister(e)
	case *event.KeeperStake:
		return c.handleKeeperStake(e)
	case *event.LiquidationSubmit:
		return c.handleLiquidationSubmit(e)
	case *event.RiskParamUpdate:
		return dispatchResult{}, c.applyRiskParam(e)
	default:
		return dispatchResult{}, fmt.Errorf("unknown event type: %T", evt)
	}
}

// handleOraclePrice stores the submission, recomputes the aggregate, aligns
// catalog prices and sweeps position health for the market.
func (c *RiskCore) handleOraclePrice(e *event.OraclePriceUpdate) (dispatchResult, error) {
	src := e.Source.String()
	if err := c.oracle.SubmitUpdate(e); err != nil {
		if c.metrics != nil {
			c.metrics.OracleUpdatesRejected.WithLabelValues(src, "validation").Inc()
		}
		return dispatchResult{}, err
	}
	if c.metrics != nil {
		c.metrics.OracleUpdatesAccepted.WithLabelValues(src).Inc()
	}

	agg, err := c.oracle.MedianPrice(e.Market, e.SlotSeen)
	if err != nil {
		// Not enough fresh sources. Serve the decayed fallback if one is
		// armed, otherwise try to arm it from the last good aggregate.
		if !c.oracle.FallbackActive(e.Market) {
			if aerr := c.oracle.ActivateFallback(e.Market, e.SlotSeen); aerr != nil {
				// No fallback possible; positions keep their last check.
				return dispatchResult{}, nil
			}
		}
		if c.metrics != nil {
			c.metrics.OracleFallbackActive.WithLabelValues(e.Market).Set(1)
		}
		agg, err = c.oracle.FallbackPrice(e.Market, e.SlotSeen)
		if err != nil {
			return dispatchResult{}, nil
		}
	} else if c.oracle.FallbackActive(e.Market) {
		c.oracle.DeactivateFallback(e.Market)
		if c.metrics != nil {
			c.metrics.OracleFallbackActive.WithLabelValues(e.Market).Set(0)
		}
	}

	if c.metrics != nil {
		c.metrics.OracleMedianPrice.WithLabelValues(e.Market).Set(float64(agg.Price))
		c.metrics.OracleConfidence.WithLabelValues(e.Market).Set(float64(agg.Confidence))
	}

	// Keep binary catalog prices on the oracle aggregate so the AMM unity
	// check sees what liquidations will trade against.
	if m := c.catalog.Get(e.Market); m != nil && m.OutcomeCount == 2 {
		_ = c.catalog.SetOutcomePrices(e.Market, []int64{agg.Price, fixedpoint.PriceScale - agg.Price})
	}

	c.sweepMarket(e.Market, agg, e.SlotSeen, e.Timestamp)
	return dispatchResult{}, nil
}

// sweepMarket runs a health check on every open position in the market and
// queues the distressed ones.
func (c *RiskCore) sweepMarket(market string, agg oracle.AggregatePrice, nowSlot, nowMicros int64) {
	for _, h := range c.health.All() {
		if h.Market != market || h.Closed {
			continue
		}
		mark := c.markPriceFor(market, h.Outcome, agg)
		res, err := risk.Monitor(&c.cfg, h, mark, agg.Slot, nowSlot, nowMicros)
		if err != nil {
			c.log.Debug().Err(err).Hex("position", h.PositionID[:8]).Msg("health check skipped")
			continue
		}
		if c.metrics != nil {
			c.metrics.HealthChecksTotal.Inc()
			if res.WarningIssued {
				c.metrics.WarningsIssued.Inc()
			}
		}
		if !res.AddToQueue {
			continue
		}
		c.queue.Enqueue(keeper.Entry{
			PositionID:        h.PositionID,
			Trader:            h.Owner,
			Tier:              res.Tier,
			HealthRatio:       res.HealthRatio,
			EffectiveLeverage: res.EffectiveLeverage,
			EnqueuedSlot:      nowSlot,
			EnqueuedTime:      nowMicros,
		})
		c.notify(LiquidationNotice{
			PositionID:  h.PositionID,
			Market:      market,
			Tier:        res.Tier,
			HealthRatio: res.HealthRatio,
			Slot:        nowSlot,
		})
	}
}

// markPriceFor maps the aggregate YES price onto a specific outcome.
func (c *RiskCore) markPriceFor(market string, outcome int32, agg oracle.AggregatePrice) int64 {
	if outcome == 0 {
		return agg.Price
	}
	m := c.catalog.Get(market)
	if m != nil && m.OutcomeCount == 2 && outcome == 1 {
		return fixedpoint.PriceScale - agg.Price
	}
	if m != nil && int(outcome) < len(m.OutcomePrices) {
		return m.OutcomePrices[outcome]
	}
	return agg.Price
}

func (c *RiskCore) handleSnapshotPair(e *event.MarketSnapshotPair) (dispatchResult, error) {
	r := c.crossval.ValidateMarket(e.Market, e.Primary, e.Comparison, e.Timestamp)
	if c.metrics != nil {
		c.metrics.CrossvalChecks.WithLabelValues(r.Status.String()).Inc()
		for _, d := range r.Discrepancies {
			c.metrics.CrossvalDiscrepancies.WithLabelValues(d.Type.String(), d.Severity.String()).Inc()
		}
	}
	return dispatchResult{}, nil
}

func (c *RiskCore) handlePositionOpen(e *event.PositionOpen) (dispatchResult, error) {
	if c.cfg.EmergencyHalt {
		return dispatchResult{}, risk.ErrEmergencyHalt
	}
	m := c.catalog.Get(e.Market)
	if m == nil || !m.IsActive() {
		return dispatchResult{}, fmt.Errorf("market %s not active", e.Market)
	}
	if e.Outcome < 0 || int(e.Outcome) >= len(m.OutcomePrices) {
		return dispatchResult{}, fmt.Errorf("outcome %d out of range for %s", e.Outcome, e.Market)
	}
	entry := m.OutcomePrices[e.Outcome]

	id := state.PositionID(e.Trader, e.Market, e.SlotSeen)
	h, err := risk.NewPositionHealth(id, e.Trader, e.Market, e.Outcome, e.Direction,
		e.Margin, e.Leverage, entry, m.OutcomeCount, &c.cfg, e.SlotSeen, e.Timestamp)
	if err != nil {
		return dispatchResult{}, err
	}

	batch, err := c.journal.GenerateMarginReserve(e.IdempotencyKey(), e.Trader, e.Margin, e.Timestamp)
	if err != nil {
		return dispatchResult{}, err
	}

	c.positions.Open(e.Trader, e.Market, e.Outcome, e.Direction, e.Margin, h.Size, entry, e.SlotSeen)
	c.health.Put(h)
	return dispatchResult{batch: batch}, nil
}

func (c *RiskCore) handleChainExecute(e *event.ChainExecute) (dispatchResult, error) {
	if c.cfg.EmergencyHalt {
		return dispatchResult{}, risk.ErrEmergencyHalt
	}
	if existing := c.chains.Get(e.ChainID); existing != nil {
		// Redelivery of a chain already decided; the deposit must not
		// lock twice.
		return dispatchResult{}, nil
	}

	// The deposit locks as margin up front; the batch only applies when
	// every step commits.
	batch, err := c.journal.GenerateMarginReserve(e.IdempotencyKey(), e.Owner, e.Deposit, e.Timestamp)
	if err != nil {
		return dispatchResult{}, err
	}

	cs, err := c.chains.Execute(e)
	if c.metrics != nil && cs != nil {
		c.metrics.ChainsExecuted.WithLabelValues(cs.Status.String()).Inc()
	}
	if err != nil {
		return dispatchResult{}, err
	}
	if c.metrics != nil {
		c.metrics.ChainDepth.Observe(float64(cs.Depth()))
	}
	return dispatchResult{batch: batch}, nil
}

func (c *RiskCore) handleChainStepAdd(e *event.ChainStepAdd) (dispatchResult, error) {
	if c.cfg.EmergencyHalt {
		return dispatchResult{}, risk.ErrEmergencyHalt
	}
	if _, err := c.chains.AddStep(e); err != nil {
		return dispatchResult{}, err
	}
	return dispatchResult{}, nil
}

func (c *RiskCore) handleKeeperRegister(e *event.KeeperRegister) (dispatchResult, error) {
	c.keepers.Register(e)
	if e.Stake <= 0 {
		return dispatchResult{}, nil
	}
	batch, err := c.journal.GenerateStakeDeposit(e.IdempotencyKey(), e.KeeperID, e.Stake, e.Timestamp)
	if err != nil {
		return dispatchResult{}, err
	}
	return dispatchResult{batch: batch}, nil
}

func (c *RiskCore) handleKeeperStake(e *event.KeeperStake) (dispatchResult, error) {
	if c.keepers.Get(e.KeeperID) == nil {
		return dispatchResult{}, fmt.Errorf("keeper %s: %w", e.KeeperID, keeper.ErrKeeperNotActive)
	}

	var batch *ledger.Batch
	var err error
	switch {
	case e.Delta > 0:
		batch, err = c.journal.GenerateStakeDeposit(e.IdempotencyKey(), e.KeeperID, e.Delta, e.Timestamp)
	case e.Delta < 0:
		batch, err = c.journal.GenerateStakeWithdraw(e.IdempotencyKey(), e.KeeperID, -e.Delta, e.Timestamp)
	default:
		return dispatchResult{}, nil
	}
	if err != nil {
		return dispatchResult{}, err
	}

	if _, err := c.keepers.AdjustStake(e.KeeperID, e.Delta); err != nil {
		return dispatchResult{}, err
	}
	return dispatchResult{batch: batch}, nil
}

func (c *RiskCore) handleLiquidationSubmit(e *event.LiquidationSubmit) (dispatchResult, error) {
	agg, ok := c.oracle.LastPrice(e.Market)
	if c.oracle.FallbackActive(e.Market) {
		fb, err := c.oracle.FallbackPrice(e.Market, e.SlotSeen)
		if err != nil {
			return dispatchResult{}, err
		}
		agg, ok = fb, true
	}
	if !ok {
		return dispatchResult{}, fmt.Errorf("market %s: %w", e.Market, oracle.ErrNoPriceHistory)
	}

	mark := agg.Price
	if h := c.health.Get(e.PositionID); h != nil {
		mark = c.markPriceFor(e.Market, h.Outcome, agg)
	}

	res, err := c.dispatcher.Execute(e, mark, agg.Slot)
	if err != nil {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(e.EventType().String(), "keeper").Inc()
		}
		return dispatchResult{}, err
	}

	if c.metrics != nil {
		c.metrics.LiquidationsExecuted.WithLabelValues(res.Type.String()).Inc()
		if res.Reward > 0 {
			c.metrics.KeeperRewardsPaid.Inc()
		}
	}
	// The dispatcher applied its own batch before mutating positions.
	return dispatchResult{batch: res.Batch, applied: true}, nil
}

// applyRiskParam mutates one global risk parameter by name.
func (c *RiskCore) applyRiskParam(e *event.RiskParamUpdate) error {
	switch e.Param {
	case "emergency_halt":
		c.cfg.EmergencyHalt = e.Value != 0
	case "max_price_age_slots":
		c.cfg.MaxPriceAgeSlots = e.Value
	case "warning_threshold":
		c.cfg.WarningThreshold = e.Value
	case "critical_threshold":
		c.cfg.CriticalThreshold = e.Value
	case "maintenance_factor":
		c.cfg.MaintenanceFactor = e.Value
	case "max_effective_leverage":
		c.cfg.MaxEffectiveLeverage = e.Value
	case "partial_bps":
		c.cfg.PartialBps = e.Value
	case "emergency_bps":
		c.cfg.EmergencyBps = e.Value
	case "liquidation_cooldown_slots":
		c.cfg.LiquidationCooldownSlots = e.Value
	case "keeper_reward_bps":
		c.cfg.KeeperRewardBps = e.Value
	case "stop_bounty_bps":
		c.cfg.StopBountyBps = e.Value
	case "slash_bps":
		c.cfg.SlashBps = e.Value
	default:
		return fmt.Errorf("unknown risk parameter %q", e.Param)
	}
	c.log.Info().Str("param", e.Param).Int64("value", e.Value).Msg("risk parameter updated")
	return nil
}

func (c *RiskCore) notify(n LiquidationNotice) {
	if c.notifyChan == nil {
		return
	}
	select {
	case c.notifyChan <- n:
	default:
	}
}

// partition determines the sequence-validation partition for an event.
func (c *RiskCore) partition(evt event.Event) string {
	if marketID := evt.MarketID(); marketID != nil {
		return fmt.Sprintf("market:%s", *marketID)
	}
	return "global"
}

// eventTimestamp extracts the versioned input timestamp in microseconds.
// The core never reads the wall clock.
func (c *RiskCore) eventTimestamp(evt event.Event) int64 {
	switch e := evt.(type) {
	case *event.OraclePriceUpdate:
		return e.Timestamp
	case *event.MarketSnapshotPair:
		return e.Timestamp
	case *event.MarketStatusUpdate:
		return e.Timestamp
	case *event.PositionOpen:
		return e.Timestamp
	case *event.ChainExecute:
		return e.Timestamp
	case *event.ChainStepAdd:
		return e.Timestamp
	case *event.KeeperRegister:
		return e.Timestamp
	case *event.KeeperStake:
		return e.Timestamp
	case *event.LiquidationSubmit:
		return e.Timestamp
	case *event.RiskParamUpdate:
		return e.Timestamp
	default:
		panic(fmt.Sprintf("FATAL: eventTimestamp called with unhandled event type %T", evt))
	}
}

// stateDigest builds canonical bytes over the accounts the batch touched.
func (c *RiskCore) stateDigest(batch *ledger.Batch) []byte {
	affected := make(map[ledger.AccountKey]bool)
	if batch != nil {
		for _, j := range batch.Journals {
			affected[j.DebitAccount] = true
			affected[j.CreditAccount] = true
		}
	}

	accounts := make([]ledger.AccountKey, 0, len(affected))
	for key := range affected {
		accounts = append(accounts, key)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountPath() < accounts[j].AccountPath()
	})

	digest := make([]byte, 0, len(accounts)*64)
	for _, key := range accounts {
		balance := c.balances.GetBalance(key)
		path := key.AccountPath()
		digest = append(digest, byte(len(path)))
		digest = append(digest, []byte(path)...)
		digest = appendInt64LE(digest, balance)
	}
	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

// --- Accessors for the query layer and workers ---

// Sequence returns the next global sequence the core will assign.
func (c *RiskCore) Sequence() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sequence
}

// StateHash returns the current hash-chain tip.
func (c *RiskCore) StateHash() [32]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hasher.Tip()
}

// Config returns the live risk parameters.
func (c *RiskCore) Config() *risk.GlobalConfig {
	return &c.cfg
}

// Oracle exposes the price aggregator for read paths.
func (c *RiskCore) Oracle() *oracle.Aggregator {
	return c.oracle
}

// Crossval exposes the cross-venue validator for read paths.
func (c *RiskCore) Crossval() *crossval.Validator {
	return c.crossval
}

// Catalog exposes the market catalog for read paths.
func (c *RiskCore) Catalog() *state.MarketCatalog {
	return c.catalog
}

// Positions exposes the position records for read paths.
func (c *RiskCore) Positions() *state.PositionManager {
	return c.positions
}

// Health exposes the live health records for read paths.
func (c *RiskCore) Health() *risk.Registry {
	return c.health
}

// Chains exposes the chain executor for read paths.
func (c *RiskCore) Chains() *chain.Executor {
	return c.chains
}

// Keepers exposes the keeper registry for read paths.
func (c *RiskCore) Keepers() *keeper.Registry {
	return c.keepers
}

// Queue exposes the liquidation queue for read paths.
func (c *RiskCore) Queue() *keeper.Queue {
	return c.queue
}

// Balances exposes the balance tracker for read paths.
func (c *RiskCore) Balances() *ledger.BalanceTracker {
	return c.balances
}

// --- Snapshot create & restore ---

// SnapshotState is the serializable in-memory state for warm restarts.
type SnapshotState struct {
	Sequence  int64
	StateHash [32]byte

	Balances map[ledger.AccountKey]int64
	Config   risk.GlobalConfig

	Markets   []*state.Market
	Positions []*state.Position
	Health    []*risk.PositionHealth
	Chains    []*chain.ChainState
	Keepers   []*keeper.Keeper

	QueueHigh   []keeper.Entry
	QueueMedium []keeper.Entry
	QueueStats  keeper.QueueStats

	SequenceState   map[string]int64
	IdempotencyKeys []string
}

// CreateSnapshotState captures the current in-memory state.
func (c *RiskCore) CreateSnapshotState() *SnapshotState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	high, medium := c.queue.Snapshot()
	return &SnapshotState{
		Sequence:        c.sequence - 1,
		StateHash:       c.hasher.Tip(),
		Balances:        c.balances.Snapshot(),
		Config:          c.cfg,
		Markets:         c.catalog.All(),
		Positions:       c.positions.All(),
		Health:          c.health.All(),
		Chains:          c.chains.All(),
		Keepers:         c.keepers.All(),
		QueueHigh:       high,
		QueueMedium:     medium,
		QueueStats:      c.queue.Stats,
		SequenceState:   c.sequences.Partitions(),
		IdempotencyKeys: c.idempotency.Keys(),
	}
}

// RestoreFromSnapshot reinstates a snapshot before event replay.
func (c *RiskCore) RestoreFromSnapshot(snap *SnapshotState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sequence = snap.Sequence + 1
	c.hasher.SetTip(snap.StateHash)
	c.cfg = snap.Config

	for key, balance := range snap.Balances {
		c.balances.SetBalance(key, balance)
	}
	for _, m := range snap.Markets {
		c.catalog.Restore(m)
	}
	for _, pos := range snap.Positions {
		c.positions.Restore(pos)
	}
	for _, h := range snap.Health {
		c.health.Put(h)
	}
	for _, cs := range snap.Chains {
		c.chains.Restore(cs)
	}
	for _, k := range snap.Keepers {
		c.keepers.Restore(k)
	}
	for _, e := range snap.QueueHigh {
		c.queue.Enqueue(e)
	}
	for _, e := range snap.QueueMedium {
		c.queue.Enqueue(e)
	}
	c.queue.Stats = snap.QueueStats

	for partition, nextSeq := range snap.SequenceState {
		c.sequences.RestorePartition(partition, nextSeq)
	}
	c.idempotency.Warm(snap.IdempotencyKeys)
	c.journal.SetSequence(snap.Sequence + 1)
}
