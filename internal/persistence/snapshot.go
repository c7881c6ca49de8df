package persistence

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"VerseRisk/internal/codec"
	"VerseRisk/internal/core"
	"VerseRisk/internal/event"
	"VerseRisk/internal/keeper"
	"VerseRisk/internal/ledger"
	"VerseRisk/internal/risk"
	"VerseRisk/internal/state"
)

// SnapshotManager handles creating and loading state snapshots for recovery.
// Snapshots carry balances, positions, health records, chains, keepers, the
// liquidation queue, sequence cursors, the idempotency LRU, and the state
// hash tip.
type SnapshotManager struct {
	db *sql.DB
}

// SnapshotData is the serialized form of core.SnapshotState. Account state
// (positions, health, chains, config) travels as binary codec blobs inside
// the JSON wrapper; operational state stays plain JSON.
type SnapshotData struct {
	Sequence        int64             `json:"sequence"`
	StateHash       []byte            `json:"state_hash"`
	Config          []byte            `json:"config"`
	Balances        []BalanceSnapshot `json:"balances"`
	Markets         []MarketSnapshot  `json:"markets"`
	Positions       [][]byte          `json:"positions"`
	Health          [][]byte          `json:"health"`
	Chains          [][]byte          `json:"chains"`
	Keepers         []KeeperSnapshot  `json:"keepers"`
	QueueHigh       []QueueEntrySnap  `json:"queue_high"`
	QueueMedium     []QueueEntrySnap  `json:"queue_medium"`
	QueueStats      QueueStatsSnap    `json:"queue_stats"`
	SequenceState   map[string]int64  `json:"sequence_state"`
	IdempotencyKeys []string          `json:"idempotency_keys"`
	CreatedAt       time.Time         `json:"created_at"`
}

// BalanceSnapshot is one account balance. The entity id is hex so system
// account names survive the round trip byte-for-byte.
type BalanceSnapshot struct {
	Scope    uint8  `json:"scope"`
	EntityID string `json:"entity_id"`
	SubType  uint8  `json:"sub_type"`
	AssetID  uint16 `json:"asset_id"`
	Balance  int64  `json:"balance"`
}

type MarketSnapshot struct {
	ID            string  `json:"id"`
	Status        int32   `json:"status"`
	OutcomeCount  int32   `json:"outcome_count"`
	VerseDepth    int32   `json:"verse_depth"`
	ParentMarket  string  `json:"parent_market,omitempty"`
	OutcomePrices []int64 `json:"outcome_prices"`
	Liquidity     int64   `json:"liquidity"`
	UpdateSeq     int64   `json:"update_seq"`
	Version       int64   `json:"version"`
}

type KeeperSnapshot struct {
	ID               string `json:"id"`
	Operator         string `json:"operator"`
	Stake            int64  `json:"stake"`
	PerformanceScore int64  `json:"performance_score"`
	Attempts         int64  `json:"attempts"`
	Successes        int64  `json:"successes"`
	Status           int32  `json:"status"`
	RegisteredSlot   int64  `json:"registered_slot"`
}

type QueueEntrySnap struct {
	PositionID        string `json:"position_id"`
	Trader            string `json:"trader"`
	Tier              int32  `json:"tier"`
	HealthRatio       int64  `json:"health_ratio"`
	EffectiveLeverage int64  `json:"effective_leverage"`
	EnqueuedSlot      int64  `json:"enqueued_slot"`
	EnqueuedTime      int64  `json:"enqueued_time"`
}

type QueueStatsSnap struct {
	Enqueued int64 `json:"enqueued"`
	Moved    int64 `json:"moved"`
	Removed  int64 `json:"removed"`
	Executed int64 `json:"executed"`
}

// FromCoreSnapshot converts the core's in-memory capture into the storable
// form.
func FromCoreSnapshot(s *core.SnapshotState) (*SnapshotData, error) {
	sd := &SnapshotData{
		Sequence:        s.Sequence,
		StateHash:       append([]byte(nil), s.StateHash[:]...),
		Config:          codec.EncodeGlobalConfig(&s.Config),
		SequenceState:   s.SequenceState,
		IdempotencyKeys: s.IdempotencyKeys,
		CreatedAt:       time.Now().UTC(),
	}

	sd.Balances = make([]BalanceSnapshot, 0, len(s.Balances))
	for key, balance := range s.Balances {
		sd.Balances = append(sd.Balances, BalanceSnapshot{
			Scope:    uint8(key.Scope),
			EntityID: hex.EncodeToString(key.EntityID[:]),
			SubType:  uint8(key.SubType),
			AssetID:  uint16(key.AssetID),
			Balance:  balance,
		})
	}

	for _, m := range s.Markets {
		sd.Markets = append(sd.Markets, MarketSnapshot{
			ID:            m.ID,
			Status:        int32(m.Status),
			OutcomeCount:  m.OutcomeCount,
			VerseDepth:    m.VerseDepth,
			ParentMarket:  m.ParentMarket,
			OutcomePrices: m.OutcomePrices,
			Liquidity:     m.Liquidity,
			UpdateSeq:     m.UpdateSeq,
			Version:       m.Version,
		})
	}

	for _, p := range s.Positions {
		blob, err := codec.EncodePosition(p)
		if err != nil {
			return nil, fmt.Errorf("encode position: %w", err)
		}
		sd.Positions = append(sd.Positions, blob)
	}
	for _, h := range s.Health {
		blob, err := codec.EncodePositionHealth(h)
		if err != nil {
			return nil, fmt.Errorf("encode health: %w", err)
		}
		sd.Health = append(sd.Health, blob)
	}
	for _, c := range s.Chains {
		blob, err := codec.EncodeChainState(c)
		if err != nil {
			return nil, fmt.Errorf("encode chain: %w", err)
		}
		sd.Chains = append(sd.Chains, blob)
	}

	for _, k := range s.Keepers {
		sd.Keepers = append(sd.Keepers, KeeperSnapshot{
			ID:               k.ID.String(),
			Operator:         k.Operator.String(),
			Stake:            k.Stake,
			PerformanceScore: k.PerformanceScore,
			Attempts:         k.Attempts,
			Successes:        k.Successes,
			Status:           int32(k.Status),
			RegisteredSlot:   k.RegisteredSlot,
		})
	}

	sd.QueueHigh = queueEntriesOut(s.QueueHigh)
	sd.QueueMedium = queueEntriesOut(s.QueueMedium)
	sd.QueueStats = QueueStatsSnap{
		Enqueued: s.QueueStats.Enqueued,
		Moved:    s.QueueStats.Moved,
		Removed:  s.QueueStats.Removed,
		Executed: s.QueueStats.Executed,
	}

	return sd, nil
}

// ToCoreSnapshot rebuilds the core's restore input.
func (sd *SnapshotData) ToCoreSnapshot() (*core.SnapshotState, error) {
	s := &core.SnapshotState{
		Sequence:        sd.Sequence,
		Balances:        make(map[ledger.AccountKey]int64, len(sd.Balances)),
		SequenceState:   sd.SequenceState,
		IdempotencyKeys: sd.IdempotencyKeys,
	}
	if len(sd.StateHash) != len(s.StateHash) {
		return nil, fmt.Errorf("state hash is %d bytes", len(sd.StateHash))
	}
	copy(s.StateHash[:], sd.StateHash)

	cfg, err := codec.DecodeGlobalConfig(sd.Config)
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	s.Config = *cfg

	for _, b := range sd.Balances {
		key := ledger.AccountKey{
			Scope:   ledger.AccountScope(b.Scope),
			SubType: ledger.AccountSubType(b.SubType),
			AssetID: ledger.AssetID(b.AssetID),
		}
		entity, err := hex.DecodeString(b.EntityID)
		if err != nil || len(entity) != len(key.EntityID) {
			return nil, fmt.Errorf("bad entity id %q", b.EntityID)
		}
		copy(key.EntityID[:], entity)
		s.Balances[key] = b.Balance
	}

	for _, m := range sd.Markets {
		s.Markets = append(s.Markets, &state.Market{
			ID:            m.ID,
			Status:        event.MarketStatus(m.Status),
			OutcomeCount:  m.OutcomeCount,
			VerseDepth:    m.VerseDepth,
			ParentMarket:  m.ParentMarket,
			OutcomePrices: m.OutcomePrices,
			Liquidity:     m.Liquidity,
			UpdateSeq:     m.UpdateSeq,
			Version:       m.Version,
		})
	}

	for _, blob := range sd.Positions {
		p, err := codec.DecodePosition(blob)
		if err != nil {
			return nil, fmt.Errorf("decode position: %w", err)
		}
		s.Positions = append(s.Positions, p)
	}
	for _, blob := range sd.Health {
		h, err := codec.DecodePositionHealth(blob)
		if err != nil {
			return nil, fmt.Errorf("decode health: %w", err)
		}
		s.Health = append(s.Health, h)
	}
	for _, blob := range sd.Chains {
		c, err := codec.DecodeChainState(blob)
		if err != nil {
			return nil, fmt.Errorf("decode chain: %w", err)
		}
		s.Chains = append(s.Chains, c)
	}

	for _, k := range sd.Keepers {
		id, err := uuid.Parse(k.ID)
		if err != nil {
			return nil, fmt.Errorf("keeper id: %w", err)
		}
		operator, err := uuid.Parse(k.Operator)
		if err != nil {
			return nil, fmt.Errorf("keeper operator: %w", err)
		}
		s.Keepers = append(s.Keepers, &keeper.Keeper{
			ID:               id,
			Operator:         operator,
			Stake:            k.Stake,
			PerformanceScore: k.PerformanceScore,
			Attempts:         k.Attempts,
			Successes:        k.Successes,
			Status:           keeper.KeeperStatus(k.Status),
			RegisteredSlot:   k.RegisteredSlot,
		})
	}

	if s.QueueHigh, err = queueEntriesIn(sd.QueueHigh); err != nil {
		return nil, err
	}
	if s.QueueMedium, err = queueEntriesIn(sd.QueueMedium); err != nil {
		return nil, err
	}
	s.QueueStats = keeper.QueueStats{
		Enqueued: sd.QueueStats.Enqueued,
		Moved:    sd.QueueStats.Moved,
		Removed:  sd.QueueStats.Removed,
		Executed: sd.QueueStats.Executed,
	}

	return s, nil
}

func queueEntriesOut(entries []keeper.Entry) []QueueEntrySnap {
	out := make([]QueueEntrySnap, 0, len(entries))
	for _, e := range entries {
		out = append(out, QueueEntrySnap{
			PositionID:        hex.EncodeToString(e.PositionID[:]),
			Trader:            e.Trader.String(),
			Tier:              int32(e.Tier),
			HealthRatio:       e.HealthRatio,
			EffectiveLeverage: e.EffectiveLeverage,
			EnqueuedSlot:      e.EnqueuedSlot,
			EnqueuedTime:      e.EnqueuedTime,
		})
	}
	return out
}

func queueEntriesIn(entries []QueueEntrySnap) ([]keeper.Entry, error) {
	out := make([]keeper.Entry, 0, len(entries))
	for _, e := range entries {
		entry := keeper.Entry{
			Tier:              risk.QueueTier(e.Tier),
			HealthRatio:       e.HealthRatio,
			EffectiveLeverage: e.EffectiveLeverage,
			EnqueuedSlot:      e.EnqueuedSlot,
			EnqueuedTime:      e.EnqueuedTime,
		}
		raw, err := hex.DecodeString(e.PositionID)
		if err != nil || len(raw) != len(entry.PositionID) {
			return nil, fmt.Errorf("bad position id %q", e.PositionID)
		}
		copy(entry.PositionID[:], raw)
		if e.Trader != "" {
			trader, err := uuid.Parse(e.Trader)
			if err != nil {
				return nil, fmt.Errorf("bad trader id %q", e.Trader)
			}
			entry.Trader = trader
		}
		out = append(out, entry)
	}
	return out, nil
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a snapshot to Postgres. Snapshots are taken
// periodically (every snapshot_interval events) and verified by checking the
// hash chain from the snapshot sequence forward.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *SnapshotData) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	snapshotID := uuid.New()
	sizeBytes := len(data)
	formatVersion := int32(1) // v1: JSON wrapper around codec account blobs

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, snapshotID, snap.Sequence, data, snap.StateHash, formatVersion, sizeBytes, snap.CreatedAt)

	return err
}

// LoadLatestSnapshot loads the most recent verified snapshot. On warm
// restart the caller restores it and replays events from sequence+1.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotData, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM event_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // No snapshot — cold start
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap SnapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// MarkVerified marks a snapshot as verified after integrity check.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE event_log.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadEventsFrom loads events from a given sequence for replay, used for
// both warm restart (replay from snapshot) and cold restart (replay all).
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, market_id, payload,
		       state_hash, prev_hash, timestamp, source_sequence
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.MarketID,
			&e.Payload, &e.StateHash, &e.PrevHash, &e.Timestamp, &e.SourceSequence,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM event_log.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil // Empty event log
	}
	return seq.Int64, nil
}
