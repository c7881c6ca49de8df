package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// BalanceTracker maintains in-memory account balances
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// SetBalance overwrites an account balance during snapshot restore.
func (bt *BalanceTracker) SetBalance(key AccountKey, balance int64) {
	bt.balances[key] = balance
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// GetUserCollateral returns a trader's free collateral
func (bt *BalanceTracker) GetUserCollateral(userID uuid.UUID) int64 {
	return bt.GetBalance(NewUserAccountKey(userID, SubTypeCollateral, AssetUSDC))
}

// GetUserMargin returns a trader's margin-locked collateral
func (bt *BalanceTracker) GetUserMargin(userID uuid.UUID) int64 {
	return bt.GetBalance(NewUserAccountKey(userID, SubTypeMargin, AssetUSDC))
}

// GetKeeperStake returns a keeper's staked MMT
func (bt *BalanceTracker) GetKeeperStake(keeperID uuid.UUID) int64 {
	return bt.GetBalance(NewKeeperAccountKey(keeperID, SubTypeKeeperStake, AssetMMT))
}

// GetKeeperRewards returns a keeper's accumulated USDC rewards
func (bt *BalanceTracker) GetKeeperRewards(keeperID uuid.UUID) int64 {
	return bt.GetBalance(NewKeeperAccountKey(keeperID, SubTypeKeeperRewards, AssetUSDC))
}

// GetInsuranceFund returns the insurance fund balance
func (bt *BalanceTracker) GetInsuranceFund() int64 {
	return bt.GetBalance(NewSystemAccountKey("insurance", SubTypeSystemInsuranceFund, AssetUSDC))
}

// ValidateSufficient checks an account can cover a transfer
func (bt *BalanceTracker) ValidateSufficient(key AccountKey, required int64) error {
	balance := bt.GetBalance(key)
	if balance < required {
		return fmt.Errorf("account %s: have=%d, need=%d", key.AccountPath(), balance, required)
	}
	return nil
}

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// ComputeGlobalBalance sums all account balances per asset. A zero-sum
// ledger yields zero for every asset.
func (bt *BalanceTracker) ComputeGlobalBalance() map[AssetID]int64 {
	totals := make(map[AssetID]int64)

	for key, balance := range bt.balances {
		totals[key.AssetID] += balance
	}

	return totals
}

// Snapshot returns a copy of all balances (for state hashing)
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}
