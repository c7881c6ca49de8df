package query

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"VerseRisk/internal/core"
	"VerseRisk/internal/keeper"
	"VerseRisk/internal/projection"
)

// QueryService answers read requests. Live risk state (prices, health,
// queue, keepers) comes straight from the core's read views; historical
// data (journals, balances, liquidation history) from Postgres. Responses
// carry as_of_sequence so callers can reason about freshness.
type QueryService struct {
	core    *core.RiskCore
	db      *sql.DB
	history *projection.LiquidationHistory
	slotFn  func() int64
}

func NewQueryService(c *core.RiskCore, db *sql.DB, history *projection.LiquidationHistory, slotLength time.Duration) *QueryService {
	return &QueryService{
		core:    c,
		db:      db,
		history: history,
		slotFn: func() int64 {
			return time.Now().UnixNano() / int64(slotLength)
		},
	}
}

// --- Live reads ---

// GetMarketPrice returns the oracle median and catalog state for a market.
func (qs *QueryService) GetMarketPrice(ctx context.Context, marketID string) (*MarketPriceResponse, error) {
	view, err := qs.core.MarketPrice(marketID, qs.slotFn())
	if err != nil {
		return nil, err
	}
	return &MarketPriceResponse{
		Market:         view.Market,
		Status:         view.Status,
		OutcomePrices:  view.OutcomePrices,
		MedianPrice:    view.MedianPrice,
		Confidence:     view.Confidence,
		Sources:        view.Sources,
		FallbackActive: view.FallbackActive,
		UpdateSeq:      view.UpdateSeq,
		AsOfSequence:   view.AsOfSequence,
	}, nil
}

// ListMarkets returns the catalog.
func (qs *QueryService) ListMarkets(ctx context.Context) []MarketSummary {
	markets := qs.core.MarketList()
	out := make([]MarketSummary, 0, len(markets))
	for _, m := range markets {
		out = append(out, MarketSummary{
			Market:        m.ID,
			Status:        m.Status.String(),
			OutcomeCount:  m.OutcomeCount,
			VerseDepth:    m.VerseDepth,
			ParentMarket:  m.ParentMarket,
			OutcomePrices: m.OutcomePrices,
			Liquidity:     m.Liquidity,
		})
	}
	return out
}

// GetPositionHealth returns the live risk record for one position.
func (qs *QueryService) GetPositionHealth(ctx context.Context, positionIDHex string) (*PositionHealthResponse, error) {
	var id [32]byte
	raw, err := hex.DecodeString(positionIDHex)
	if err != nil || len(raw) != 32 {
		return nil, fmt.Errorf("position id must be 32 hex-encoded bytes")
	}
	copy(id[:], raw)

	view, err := qs.core.PositionHealth(id, qs.slotFn())
	if err != nil {
		return nil, err
	}

	h := view.Health
	resp := &PositionHealthResponse{
		PositionID:          positionIDHex,
		Owner:               h.Owner.String(),
		Market:              h.Market,
		Outcome:             h.Outcome,
		Direction:           h.Direction.String(),
		Margin:              h.Margin,
		Size:                h.Size,
		EntryPrice:          h.EntryPrice,
		BaseLeverage:        h.BaseLeverage,
		EffectiveLeverage:   h.EffectiveLeverage,
		LiquidationPrice:    h.LiquidationPrice,
		MarkPrice:           view.MarkPrice,
		HealthRatio:         view.HealthRatio,
		PartialLiquidations: h.PartialLiquidations,
		TotalLiquidated:     h.TotalLiquidated,
		Queued:              view.Queued,
		QueueTier:           view.QueueTier,
		Closed:              h.Closed,
		AsOfSequence:        view.AsOfSequence,
	}
	for _, step := range h.ChainSteps {
		resp.ChainSteps = append(resp.ChainSteps, ChainStepResponse{
			Type:        step.Type.String(),
			Multiplier:  step.Multiplier,
			AppliedSlot: step.AppliedSlot,
		})
	}
	return resp, nil
}

// GetLiquidationQueue returns both pending tiers.
func (qs *QueryService) GetLiquidationQueue(ctx context.Context) *QueueResponse {
	view := qs.core.LiquidationQueue()

	resp := &QueueResponse{
		High:         make([]QueueEntryResponse, 0, len(view.High)),
		Medium:       make([]QueueEntryResponse, 0, len(view.Medium)),
		Enqueued:     view.Stats.Enqueued,
		Moved:        view.Stats.Moved,
		Removed:      view.Stats.Removed,
		Executed:     view.Stats.Executed,
		AsOfSequence: view.AsOfSequence,
	}
	for _, e := range view.High {
		resp.High = append(resp.High, queueEntryOut(e))
	}
	for _, e := range view.Medium {
		resp.Medium = append(resp.Medium, queueEntryOut(e))
	}
	return resp
}

func queueEntryOut(e keeper.Entry) QueueEntryResponse {
	return QueueEntryResponse{
		PositionID:        hex.EncodeToString(e.PositionID[:]),
		Trader:            e.Trader.String(),
		Tier:              e.Tier.String(),
		HealthRatio:       e.HealthRatio,
		EffectiveLeverage: e.EffectiveLeverage,
		EnqueuedSlot:      e.EnqueuedSlot,
		EnqueuedTime:      e.EnqueuedTime,
	}
}

// ListKeepers returns the keeper roster in dispatch priority order.
func (qs *QueryService) ListKeepers(ctx context.Context) []KeeperResponse {
	roster := qs.core.KeeperRoster()
	out := make([]KeeperResponse, 0, len(roster))
	for _, v := range roster {
		k := v.Keeper
		out = append(out, KeeperResponse{
			KeeperID:         k.ID.String(),
			Operator:         k.Operator.String(),
			Stake:            k.Stake,
			PerformanceScore: k.PerformanceScore,
			Attempts:         k.Attempts,
			Successes:        k.Successes,
			Status:           int32(k.Status),
			RegisteredSlot:   k.RegisteredSlot,
			AsOfSequence:     v.AsOfSequence,
		})
	}
	return out
}

// --- Projection reads ---

// GetTraderBalances returns every projected balance under a trader's
// account scope.
func (qs *QueryService) GetTraderBalances(ctx context.Context, trader uuid.UUID) (*TraderBalancesResponse, error) {
	asOf, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	prefix := fmt.Sprintf("user:%s:%%", trader)
	rows, err := qs.db.QueryContext(ctx, `
		SELECT account_path, asset_id, balance, last_sequence
		FROM projections.balances
		WHERE account_path LIKE $1
		ORDER BY account_path, asset_id
	`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resp := &TraderBalancesResponse{
		Trader:       trader.String(),
		AsOfSequence: asOf,
	}
	for rows.Next() {
		var b BalanceResponse
		if err := rows.Scan(&b.AccountPath, &b.AssetID, &b.Balance, &b.LastSequence); err != nil {
			return nil, err
		}
		resp.Balances = append(resp.Balances, b)
	}
	return resp, rows.Err()
}

// GetJournalHistory pages through journal rows touching a trader's
// accounts, newest first.
func (qs *QueryService) GetJournalHistory(ctx context.Context, trader uuid.UUID, limit int, afterSequence *int64) ([]JournalHistoryEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	prefix := fmt.Sprintf("user:%s:%%", trader)
	query := `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, asset_id, amount, journal_type, timestamp
		FROM event_log.journal
		WHERE (debit_account LIKE $1 OR credit_account LIKE $1)
	`
	args := []interface{}{prefix}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY sequence DESC LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.AssetID, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetLiquidationHistory returns recent liquidation-flow journals from the
// in-memory projection, filtered by market or account.
func (qs *QueryService) GetLiquidationHistory(ctx context.Context, market, account string, limit int) []LiquidationHistoryEntry {
	if qs.history == nil {
		return nil
	}

	var raw []projection.HistoryEntry
	switch {
	case account != "":
		raw = qs.history.QueryByEntity(account, limit)
	default:
		raw = qs.history.QueryByMarket(market, limit)
	}

	out := make([]LiquidationHistoryEntry, 0, len(raw))
	for _, e := range raw {
		out = append(out, LiquidationHistoryEntry{
			Sequence:      e.Sequence,
			EventRef:      e.EventRef,
			Market:        e.Market,
			DebitAccount:  e.DebitAccount,
			CreditAccount: e.CreditAccount,
			Amount:        e.Amount,
			JournalType:   e.JournalType,
			Timestamp:     e.Timestamp,
		})
	}
	return out
}

// --- Admin ---

// VerifyIntegrity checks hash chain continuity in the event log and the
// zero-sum invariant across projected balances.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{
		CoreSequence: qs.core.Sequence() - 1,
	}

	watermark, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}
	report.Watermark = watermark

	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash != e2.state_hash
		ORDER BY e1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	balanceRows, err := qs.db.QueryContext(ctx, `
		SELECT asset_id, SUM(balance) AS total
		FROM projections.balances
		GROUP BY asset_id
		HAVING SUM(balance) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var assetID uint16
		var total int64
		if err := balanceRows.Scan(&assetID, &total); err != nil {
			return nil, err
		}
		report.UnbalancedAssets = append(report.UnbalancedAssets, UnbalancedAsset{
			AssetID:   assetID,
			Imbalance: total,
		})
	}
	if err := balanceRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedAssets) == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}
