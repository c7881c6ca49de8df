package query

// MarketPriceResponse is the oracle and catalog view of one market.
type MarketPriceResponse struct {
	Market         string  `json:"market"`
	Status         string  `json:"status"`
	OutcomePrices  []int64 `json:"outcome_prices"`
	MedianPrice    int64   `json:"median_price"`
	Confidence     int64   `json:"confidence_bps"`
	Sources        int     `json:"sources"`
	FallbackActive bool    `json:"fallback_active"`
	UpdateSeq      int64   `json:"update_seq"`
	AsOfSequence   int64   `json:"as_of_sequence"`
}

// MarketSummary is one row of the market listing.
type MarketSummary struct {
	Market        string  `json:"market"`
	Status        string  `json:"status"`
	OutcomeCount  int32   `json:"outcome_count"`
	VerseDepth    int32   `json:"verse_depth"`
	ParentMarket  string  `json:"parent_market,omitempty"`
	OutcomePrices []int64 `json:"outcome_prices"`
	Liquidity     int64   `json:"liquidity"`
}

// ChainStepResponse is one recorded leverage step.
type ChainStepResponse struct {
	Type       string `json:"type"`
	Multiplier int64  `json:"multiplier"`
	AppliedSlot int64 `json:"applied_slot"`
}

// PositionHealthResponse is the live risk view of one position.
type PositionHealthResponse struct {
	PositionID string `json:"position_id"`
	Owner      string `json:"owner"`
	Market     string `json:"market"`
	Outcome    int32  `json:"outcome"`
	Direction  string `json:"direction"`

	Margin     int64 `json:"margin"`
	Size       int64 `json:"size"`
	EntryPrice int64 `json:"entry_price"`

	BaseLeverage      int64 `json:"base_leverage"`
	EffectiveLeverage int64 `json:"effective_leverage"`
	LiquidationPrice  int64 `json:"liquidation_price"`
	MarkPrice         int64 `json:"mark_price"`
	HealthRatio       int64 `json:"health_ratio"`

	ChainSteps          []ChainStepResponse `json:"chain_steps,omitempty"`
	PartialLiquidations int32               `json:"partial_liquidations"`
	TotalLiquidated     int64               `json:"total_liquidated"`

	Queued    bool   `json:"queued"`
	QueueTier string `json:"queue_tier,omitempty"`
	Closed    bool   `json:"closed"`

	AsOfSequence int64 `json:"as_of_sequence"`
}

// QueueEntryResponse is one pending liquidation, with the risk figures
// observed when the position entered the queue.
type QueueEntryResponse struct {
	PositionID        string `json:"position_id"`
	Trader            string `json:"trader"`
	Tier              string `json:"tier"`
	HealthRatio       int64  `json:"health_ratio"`
	EffectiveLeverage int64  `json:"effective_leverage"`
	EnqueuedSlot      int64  `json:"enqueued_slot"`
	EnqueuedTime      int64  `json:"enqueued_time"`
}

// QueueResponse is both liquidation tiers plus lifetime counters.
type QueueResponse struct {
	High   []QueueEntryResponse `json:"high"`
	Medium []QueueEntryResponse `json:"medium"`

	Enqueued int64 `json:"enqueued"`
	Moved    int64 `json:"moved"`
	Removed  int64 `json:"removed"`
	Executed int64 `json:"executed"`

	AsOfSequence int64 `json:"as_of_sequence"`
}

// KeeperResponse is one keeper's registry record.
type KeeperResponse struct {
	KeeperID         string `json:"keeper_id"`
	Operator         string `json:"operator"`
	Stake            int64  `json:"stake"`
	PerformanceScore int64  `json:"performance_score"`
	Attempts         int64  `json:"attempts"`
	Successes        int64  `json:"successes"`
	Status           int32  `json:"status"`
	RegisteredSlot   int64  `json:"registered_slot"`
	AsOfSequence     int64  `json:"as_of_sequence"`
}

// BalanceResponse is one projected account balance.
type BalanceResponse struct {
	AccountPath  string `json:"account_path"`
	AssetID      uint16 `json:"asset_id"`
	Balance      int64  `json:"balance"`
	LastSequence int64  `json:"last_sequence"`
}

// TraderBalancesResponse groups a trader's projected balances.
type TraderBalancesResponse struct {
	Trader       string            `json:"trader"`
	Balances     []BalanceResponse `json:"balances"`
	AsOfSequence int64             `json:"as_of_sequence"`
}

// JournalHistoryEntry is one journal row from the event log.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	AssetID       uint16 `json:"asset_id"`
	Amount        int64  `json:"amount"`
	JournalType   int32  `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// LiquidationHistoryEntry is one liquidation-flow journal.
type LiquidationHistoryEntry struct {
	Sequence      int64  `json:"sequence"`
	EventRef      string `json:"event_ref"`
	Market        string `json:"market,omitempty"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	Amount        int64  `json:"amount"`
	JournalType   int32  `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification pass.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	HashChainBreaks  []int64           `json:"hash_chain_breaks,omitempty"`
	UnbalancedAssets []UnbalancedAsset `json:"unbalanced_assets,omitempty"`
	Watermark        int64             `json:"watermark"`
	CoreSequence     int64             `json:"core_sequence"`
}

// UnbalancedAsset is an asset whose global balance sum is non-zero.
type UnbalancedAsset struct {
	AssetID   uint16 `json:"asset_id"`
	Imbalance int64  `json:"imbalance"`
}
