package keeper

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"VerseRisk/internal/event"
	"VerseRisk/internal/fixedpoint"
)

const (
	// PerformanceStart is the score a fresh keeper begins with.
	PerformanceStart = int64(10_000)

	// SuccessBonus / FailurePenalty move the performance score.
	SuccessBonus   = int64(10)
	FailurePenalty = int64(500)

	// SuspensionThresholdBps suspends keepers whose success rate drops
	// below 80%, once they have enough attempts to judge.
	SuspensionThresholdBps   = int64(8_000)
	MinAttemptsForSuspension = int64(10)

	// MinKeeperStake is the MMT floor for execution rights ($1k at scale).
	MinKeeperStake = int64(1_000 * 100_000_000)
)

// KeeperStatus gates execution rights.
type KeeperStatus int32

const (
	StatusInactive KeeperStatus = iota
	StatusActive
	StatusSuspended
)

func (s KeeperStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusSuspended:
		return "suspended"
	default:
		return "inactive"
	}
}

// Keeper is one registered liquidation executor.
type Keeper struct {
	ID               uuid.UUID
	Operator         uuid.UUID
	Stake            int64 // MMT at price scale
	PerformanceScore int64 // 0..10_000
	Attempts         int64
	Successes        int64
	Status           KeeperStatus
	RegisteredSlot   int64
}

// Priority orders keepers for dispatch: stake weighted by performance.
func (k *Keeper) Priority() int64 {
	return fixedpoint.MulDiv(k.Stake, k.PerformanceScore, PerformanceStart, fixedpoint.RoundDown)
}

// SuccessRateBps returns the lifetime success rate, full score when unjudged.
func (k *Keeper) SuccessRateBps() int64 {
	if k.Attempts == 0 {
		return fixedpoint.BpsDenom
	}
	return fixedpoint.MulDiv(k.Successes, fixedpoint.BpsDenom, k.Attempts, fixedpoint.RoundDown)
}

// Registry tracks every registered keeper. Single-threaded, core-driven.
type Registry struct {
	keepers map[uuid.UUID]*Keeper
}

func NewRegistry() *Registry {
	return &Registry{keepers: make(map[uuid.UUID]*Keeper)}
}

func (r *Registry) Get(id uuid.UUID) *Keeper {
	return r.keepers[id]
}

// Register enrolls a keeper. Re-registration of a known ID is a no-op.
func (r *Registry) Register(ev *event.KeeperRegister) *Keeper {
	if existing := r.keepers[ev.KeeperID]; existing != nil {
		return existing
	}
	k := &Keeper{
		ID:               ev.KeeperID,
		Operator:         ev.Operator,
		Stake:            ev.Stake,
		PerformanceScore: PerformanceStart,
		RegisteredSlot:   ev.SlotSeen,
	}
	if k.Stake >= MinKeeperStake {
		k.Status = StatusActive
	}
	r.keepers[ev.KeeperID] = k
	return k
}

// Restore installs a persisted keeper record during snapshot restore.
func (r *Registry) Restore(k *Keeper) {
	r.keepers[k.ID] = k
}

// AdjustStake applies a stake delta. Dropping below the minimum
// deactivates the keeper until restaked.
func (r *Registry) AdjustStake(id uuid.UUID, delta int64) (*Keeper, error) {
	k := r.keepers[id]
	if k == nil {
		return nil, fmt.Errorf("keeper %s: %w", id, ErrKeeperNotActive)
	}
	if delta < 0 && k.Stake+delta < 0 {
		return nil, fmt.Errorf("keeper %s: withdrawal %d exceeds stake %d", id, -delta, k.Stake)
	}
	k.Stake += delta
	r.UpdateKeeperTier(k)
	return k, nil
}

// UpdateKeeperTier recomputes a keeper's status from stake and track
// record. Suspension wins over everything except an empty stake.
func (r *Registry) UpdateKeeperTier(k *Keeper) {
	switch {
	case k.Stake < MinKeeperStake:
		k.Status = StatusInactive
	case k.Attempts >= MinAttemptsForSuspension && k.SuccessRateBps() < SuspensionThresholdBps:
		k.Status = StatusSuspended
	default:
		k.Status = StatusActive
	}
}

// RecordSuccess credits a completed liquidation.
func (r *Registry) RecordSuccess(k *Keeper) {
	k.Attempts++
	k.Successes++
	k.PerformanceScore += SuccessBonus
	if k.PerformanceScore > PerformanceStart {
		k.PerformanceScore = PerformanceStart
	}
	r.UpdateKeeperTier(k)
}

// RecordFailure debits a failed liquidation attempt. The stake slash is
// applied by the dispatcher's ledger flow; here only the score moves.
func (r *Registry) RecordFailure(k *Keeper) {
	k.Attempts++
	k.PerformanceScore -= FailurePenalty
	if k.PerformanceScore < 0 {
		k.PerformanceScore = 0
	}
	r.UpdateKeeperTier(k)
}

// All returns every keeper ordered by ID, for snapshotting.
func (r *Registry) All() []*Keeper {
	out := make([]*Keeper, 0, len(r.keepers))
	for _, k := range r.keepers {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// Ranked returns active keepers ordered by descending priority, ties
// broken by ID for determinism.
func (r *Registry) Ranked() []*Keeper {
	out := make([]*Keeper, 0, len(r.keepers))
	for _, k := range r.keepers {
		if k.Status == StatusActive {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := out[i].Priority(), out[j].Priority()
		if pi != pj {
			return pi > pj
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}
