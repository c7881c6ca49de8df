package projection

import (
	"strings"
	"sync"
)

// HistoryEntry is one liquidation-flow journal kept in memory for fast
// account-scoped queries.
type HistoryEntry struct {
	Sequence      int64
	EventRef      string
	Market        string
	DebitAccount  string
	CreditAccount string
	Amount        int64
	JournalType   int32
	Timestamp     int64
}

// LiquidationHistory is an in-memory projection of liquidation activity.
// It is rebuilt from projections.liquidation_history on startup and kept
// current by the projection worker. Bounded by maxEntries, oldest dropped.
type LiquidationHistory struct {
	mu         sync.RWMutex
	entries    []HistoryEntry
	maxEntries int
}

const defaultMaxHistoryEntries = 100_000

func NewLiquidationHistory() *LiquidationHistory {
	return &LiquidationHistory{
		maxEntries: defaultMaxHistoryEntries,
	}
}

// Add appends an entry. Entries arrive in sequence order from the worker.
func (lh *LiquidationHistory) Add(entry HistoryEntry) {
	lh.mu.Lock()
	defer lh.mu.Unlock()

	lh.entries = append(lh.entries, entry)
	if len(lh.entries) > lh.maxEntries {
		drop := len(lh.entries) - lh.maxEntries
		lh.entries = lh.entries[drop:]
	}
}

// QueryByAccount returns the most recent entries touching an account path,
// newest first, up to limit.
func (lh *LiquidationHistory) QueryByAccount(accountPath string, limit int) []HistoryEntry {
	lh.mu.RLock()
	defer lh.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	results := make([]HistoryEntry, 0, limit)
	for i := len(lh.entries) - 1; i >= 0 && len(results) < limit; i-- {
		e := lh.entries[i]
		if e.DebitAccount == accountPath || e.CreditAccount == accountPath {
			results = append(results, e)
		}
	}
	return results
}

// QueryByMarket returns the most recent entries for a market, newest first.
func (lh *LiquidationHistory) QueryByMarket(marketID string, limit int) []HistoryEntry {
	lh.mu.RLock()
	defer lh.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	results := make([]HistoryEntry, 0, limit)
	for i := len(lh.entries) - 1; i >= 0 && len(results) < limit; i-- {
		if lh.entries[i].Market == marketID {
			results = append(results, lh.entries[i])
		}
	}
	return results
}

// QueryByEntity matches entries whose debit or credit path contains the
// entity id segment, e.g. "keeper:<uuid>". Used by the keeper earnings view.
func (lh *LiquidationHistory) QueryByEntity(entitySegment string, limit int) []HistoryEntry {
	lh.mu.RLock()
	defer lh.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	results := make([]HistoryEntry, 0, limit)
	for i := len(lh.entries) - 1; i >= 0 && len(results) < limit; i-- {
		e := lh.entries[i]
		if strings.Contains(e.DebitAccount, entitySegment) || strings.Contains(e.CreditAccount, entitySegment) {
			results = append(results, e)
		}
	}
	return results
}

// Len returns the number of entries held.
func (lh *LiquidationHistory) Len() int {
	lh.mu.RLock()
	defer lh.mu.RUnlock()
	return len(lh.entries)
}
