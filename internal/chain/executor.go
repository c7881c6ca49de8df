package chain

import (
	"fmt"

	"github.com/google/uuid"

	"VerseRisk/internal/event"
	"VerseRisk/internal/fixedpoint"
	"VerseRisk/internal/risk"
	"VerseRisk/internal/state"
)

// Executor validates and applies chains atomically. All effects are staged
// against local copies first; state mutates only after every step passed.
type Executor struct {
	catalog   *state.MarketCatalog
	positions *state.PositionManager
	health    *risk.Registry
	cfg       *risk.GlobalConfig

	chains map[uuid.UUID]*ChainState
}

func NewExecutor(catalog *state.MarketCatalog, positions *state.PositionManager, health *risk.Registry, cfg *risk.GlobalConfig) *Executor {
	return &Executor{
		catalog:   catalog,
		positions: positions,
		health:    health,
		cfg:       cfg,
		chains:    make(map[uuid.UUID]*ChainState),
	}
}

// Get returns the chain record or nil.
func (ex *Executor) Get(id uuid.UUID) *ChainState {
	return ex.chains[id]
}

// Restore installs a persisted chain record during snapshot restore.
func (ex *Executor) Restore(cs *ChainState) {
	ex.chains[cs.ID] = cs
}

// All returns every chain record, order unspecified.
func (ex *Executor) All() []*ChainState {
	out := make([]*ChainState, 0, len(ex.chains))
	for _, cs := range ex.chains {
		out = append(out, cs)
	}
	return out
}

// stagedStep is a fully validated step awaiting commit.
type stagedStep struct {
	applied  AppliedStep
	openSpec *openStage
}

// openStage carries everything needed to create a position at commit time.
type openStage struct {
	market     string
	outcome    int32
	direction  event.Side
	margin     int64
	size       int64
	entryPrice int64
	outcomes   int32
}

// Execute runs a full chain. On any validation failure nothing is
// committed and the stored chain (if new) records StatusFailed with no
// steps.
func (ex *Executor) Execute(req *event.ChainExecute) (*ChainState, error) {
	if existing := ex.chains[req.ChainID]; existing != nil {
		// Replay of an already processed chain.
		return existing, nil
	}

	cs := &ChainState{
		ID:                req.ChainID,
		Owner:             req.Owner,
		Verse:             req.Market,
		Deposit:           req.Deposit,
		Balance:           req.Deposit,
		Status:            StatusInitialized,
		EffectiveLeverage: fixedpoint.One,
		CreatedSlot:       req.SlotSeen,
	}

	staged, finalBalance, effLev, err := ex.stage(cs, req.Steps, req.SlotSeen)
	if err != nil {
		cs.Status = StatusFailed
		ex.chains[req.ChainID] = cs
		return cs, err
	}

	ex.commit(cs, staged, finalBalance, effLev, req.SlotSeen)
	ex.chains[req.ChainID] = cs
	return cs, nil
}

// AddStep extends an active chain by one step, same stage-then-commit
// discipline.
func (ex *Executor) AddStep(req *event.ChainStepAdd) (*ChainState, error) {
	cs := ex.chains[req.ChainID]
	if cs == nil {
		return nil, fmt.Errorf("%s: %w", req.ChainID, ErrUnknownChain)
	}
	if cs.Status != StatusActive && cs.Status != StatusCompleted {
		return cs, fmt.Errorf("%s status %s: %w", req.ChainID, cs.Status, ErrChainNotActive)
	}

	staged, finalBalance, effLev, err := ex.stageOnto(cs, []event.ChainStepSpec{req.Step}, req.SlotSeen)
	if err != nil {
		return cs, err
	}
	ex.commit(cs, staged, finalBalance, effLev, req.SlotSeen)
	return cs, nil
}

func (ex *Executor) stage(cs *ChainState, specs []event.ChainStepSpec, slot int64) ([]stagedStep, int64, int64, error) {
	if cs.Deposit <= 0 {
		return nil, 0, 0, fmt.Errorf("deposit %d: %w", cs.Deposit, ErrInvalidPosition)
	}
	verse := ex.catalog.Get(cs.Verse)
	if verse == nil || !verse.IsActive() {
		return nil, 0, 0, fmt.Errorf("%s: %w", cs.Verse, ErrInactiveVerse)
	}
	return ex.stageOnto(cs, specs, slot)
}

// stageOnto validates specs against the chain without mutating it.
// Returns the staged steps, the resulting balance and effective leverage.
func (ex *Executor) stageOnto(cs *ChainState, specs []event.ChainStepSpec, slot int64) ([]stagedStep, int64, int64, error) {
	base := len(cs.Steps)
	if base+len(specs) > MaxChainDepth {
		return nil, 0, 0, fmt.Errorf("%d steps: %w", base+len(specs), ErrChainTooDeep)
	}

	verse := ex.catalog.Get(cs.Verse)
	if verse == nil || !verse.IsActive() {
		return nil, 0, 0, fmt.Errorf("%s: %w", cs.Verse, ErrInactiveVerse)
	}

	// Outputs of committed steps plus staged ones, by absolute index.
	outputs := make([]int64, base, base+len(specs))
	consumed := make([]bool, base, base+len(specs))
	depositUsed := false
	for i, s := range cs.Steps {
		outputs[i] = s.Output
		if s.Spec.InputStep >= 0 {
			consumed[s.Spec.InputStep] = true
		} else {
			depositUsed = true
		}
	}

	staged := make([]stagedStep, 0, len(specs))
	balance := cs.Balance
	effLev := cs.EffectiveLeverage

	for i, spec := range specs {
		idx := base + i

		input, err := takeInput(spec.InputStep, idx, cs.Deposit, outputs, consumed, &depositUsed)
		if err != nil {
			return nil, 0, 0, err
		}
		if spec.Amount > 0 && spec.Amount < input {
			input = spec.Amount
		}

		st := stagedStep{applied: AppliedStep{Spec: spec, Input: input}}

		switch spec.Type {
		case event.ChainStepBorrow, event.ChainStepLend,
			event.ChainStepProvideLiquidity, event.ChainStepStake:
			mult, merr := risk.StepMultiplier(spec.Type)
			if merr != nil {
				return nil, 0, 0, merr
			}
			st.applied.Multiplier = mult
			switch spec.Type {
			case event.ChainStepBorrow:
				st.applied.Output = borrowOutput(input, mult, idx)
			case event.ChainStepProvideLiquidity:
				st.applied.Output = fixedpoint.Mul(input, mult)
				st.applied.Yield = liquidityYield(input)
			case event.ChainStepStake:
				st.applied.Output = stakeOutput(fixedpoint.Mul(input, mult), verse.VerseDepth)
			default:
				st.applied.Output = fixedpoint.Mul(input, mult)
			}
			next := fixedpoint.Mul(effLev, mult)
			if next > ex.cfg.MaxEffectiveLeverage {
				return nil, 0, 0, fmt.Errorf("chain leverage %d over cap %d: %w",
					next, ex.cfg.MaxEffectiveLeverage, risk.ErrMaxLeverageExceeded)
			}
			effLev = next
			balance = balance - input + st.applied.Output

		case event.ChainStepOpenPosition:
			open, oerr := ex.stageOpen(cs, spec, input)
			if oerr != nil {
				return nil, 0, 0, oerr
			}
			st.openSpec = open
			st.applied.Multiplier = fixedpoint.One
			st.applied.Output = 0 // Terminal: margin leaves the chain balance.
			next := fixedpoint.MulDiv(effLev, spec.Leverage, fixedpoint.One, fixedpoint.RoundHalfEven)
			if next > ex.cfg.MaxEffectiveLeverage {
				return nil, 0, 0, fmt.Errorf("chain leverage %d over cap %d: %w",
					next, ex.cfg.MaxEffectiveLeverage, risk.ErrMaxLeverageExceeded)
			}
			effLev = next
			balance -= input

		default:
			return nil, 0, 0, risk.ErrUnknownStepType
		}

		outputs = append(outputs, st.applied.Output)
		consumed = append(consumed, false)
		staged = append(staged, st)
	}

	return staged, balance, effLev, nil
}

// takeInput resolves and consumes a step's funding source.
func takeInput(inputStep int32, idx int, deposit int64, outputs []int64, consumed []bool, depositUsed *bool) (int64, error) {
	if inputStep < 0 {
		if *depositUsed {
			return 0, fmt.Errorf("deposit already consumed: %w", ErrInvalidStepInput)
		}
		*depositUsed = true
		return deposit, nil
	}
	if int(inputStep) >= idx {
		return 0, fmt.Errorf("step %d references step %d: %w", idx, inputStep, ErrInvalidStepInput)
	}
	if consumed[inputStep] {
		return 0, fmt.Errorf("step %d output already consumed: %w", inputStep, ErrInvalidStepInput)
	}
	if outputs[inputStep] <= 0 {
		return 0, fmt.Errorf("step %d produced no output: %w", inputStep, ErrInvalidStepInput)
	}
	consumed[inputStep] = true
	return outputs[inputStep], nil
}

func (ex *Executor) stageOpen(cs *ChainState, spec event.ChainStepSpec, margin int64) (*openStage, error) {
	market := cs.Verse
	if spec.Market != "" {
		market = spec.Market
	}
	m := ex.catalog.Get(market)
	if m == nil || !m.IsActive() {
		return nil, fmt.Errorf("%s: %w", market, ErrInactiveVerse)
	}
	if spec.Outcome < 0 || spec.Outcome >= m.OutcomeCount {
		return nil, fmt.Errorf("outcome %d of %d: %w", spec.Outcome, m.OutcomeCount, ErrInvalidOutcome)
	}
	if spec.Leverage <= 0 || spec.Leverage > MaxStepLeverage {
		return nil, fmt.Errorf("leverage %d: %w", spec.Leverage, ErrInvalidLeverage)
	}
	if cap := risk.MaxLeverageForOutcomeCount(m.OutcomeCount); spec.Leverage > cap {
		return nil, fmt.Errorf("leverage %d over tier cap %d: %w", spec.Leverage, cap, risk.ErrMaxLeverageExceeded)
	}

	entry := m.OutcomePrices[spec.Outcome]
	size := fixedpoint.MulDiv(margin, spec.Leverage, fixedpoint.One, fixedpoint.RoundHalfEven)
	return &openStage{
		market:     market,
		outcome:    spec.Outcome,
		direction:  spec.Direction,
		margin:     margin,
		size:       size,
		entryPrice: entry,
		outcomes:   m.OutcomeCount,
	}, nil
}

// commit applies staged steps. Nothing here can fail: all validation,
// including every leverage cap, happened during staging, so an error out
// of the health layer means staging and commit disagree — panic rather
// than run a live position at the wrong leverage.
func (ex *Executor) commit(cs *ChainState, staged []stagedStep, balance, effLev, slot int64) {
	// Health record of the chain's opened position, if any. Steps committed
	// after the open keep compounding onto it.
	open := ex.openHealth(cs)

	for i := range staged {
		st := &staged[i]
		if st.openSpec != nil {
			o := st.openSpec
			pos := ex.positions.Open(cs.Owner, o.market, o.outcome, o.direction,
				o.margin, o.size, o.entryPrice, slot)
			st.applied.PositionID = pos.ID

			h, err := risk.NewPositionHealth(pos.ID, cs.Owner, o.market, o.outcome,
				o.direction, o.margin, st.applied.Spec.Leverage, o.entryPrice,
				o.outcomes, ex.cfg, slot, 0)
			if err != nil {
				panic(fmt.Sprintf("chain %s: health record for committed position: %v", cs.ID, err))
			}
			// Steps before the open tighten the liquidation price through
			// the compounded multipliers.
			for _, prior := range cs.Steps {
				if prior.Spec.Type == event.ChainStepOpenPosition {
					continue
				}
				if aerr := h.AddChainStep(ex.cfg, prior.Spec.Type, slot); aerr != nil {
					panic(fmt.Sprintf("chain %s: compound step %s: %v", cs.ID, prior.Spec.Type, aerr))
				}
			}
			ex.health.Put(h)
			open = h
		} else if open != nil && !open.Closed {
			if aerr := open.AddChainStep(ex.cfg, st.applied.Spec.Type, slot); aerr != nil {
				panic(fmt.Sprintf("chain %s: compound step %s: %v", cs.ID, st.applied.Spec.Type, aerr))
			}
		}
		cs.Steps = append(cs.Steps, st.applied)
	}
	cs.Balance = balance
	cs.EffectiveLeverage = effLev
	cs.Status = StatusActive
	if cs.Depth() == MaxChainDepth {
		cs.Status = StatusCompleted
	}
}

// openHealth returns the live health record of the chain's most recently
// opened position, or nil.
func (ex *Executor) openHealth(cs *ChainState) *risk.PositionHealth {
	for i := len(cs.Steps) - 1; i >= 0; i-- {
		if cs.Steps[i].PositionID != ([32]byte{}) {
			if h := ex.health.Get(cs.Steps[i].PositionID); h != nil && !h.Closed {
				return h
			}
		}
	}
	return nil
}
