package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalGenerator creates balanced journal batches for the risk-engine
// money flows: margin locking, liquidation transfers, keeper rewards and
// slashing, stop bounties.
type JournalGenerator struct {
	sequence       int64
	balanceTracker *BalanceTracker
}

func NewJournalGenerator(startSequence int64, tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{
		sequence:       startSequence,
		balanceTracker: tracker,
	}
}

func (jg *JournalGenerator) newBatch(eventRef string, timestamp int64) *Batch {
	return &Batch{
		BatchID:   uuid.New(),
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
	}
}

func (jg *JournalGenerator) addEntry(b *Batch, debit, credit AccountKey, asset AssetID, amount int64, jt JournalType) {
	b.Journals = append(b.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       b.BatchID,
		EventRef:      b.EventRef,
		Sequence:      b.Sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		AssetID:       asset,
		Amount:        amount,
		JournalType:   jt,
		Timestamp:     b.Timestamp,
	})
}

// GenerateDeposit credits a trader's collateral from the external boundary.
func (jg *JournalGenerator) GenerateDeposit(eventRef string, userID uuid.UUID, amount, timestamp int64) (*Batch, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("deposit amount %d must be positive", amount)
	}
	b := jg.newBatch(eventRef, timestamp)
	jg.addEntry(b,
		NewUserAccountKey(userID, SubTypeCollateral, AssetUSDC),
		NewExternalAccountKey(SubTypeExternalDeposits, AssetUSDC),
		AssetUSDC, amount, JournalTypeDeposit)
	jg.sequence++
	return b, nil
}

// GenerateMarginReserve locks collateral as position margin.
// Moves funds: user:collateral → user:margin
func (jg *JournalGenerator) GenerateMarginReserve(eventRef string, userID uuid.UUID, amount, timestamp int64) (*Batch, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("margin amount %d must be positive", amount)
	}
	collateral := NewUserAccountKey(userID, SubTypeCollateral, AssetUSDC)
	if err := jg.balanceTracker.ValidateSufficient(collateral, amount); err != nil {
		return nil, err
	}
	b := jg.newBatch(eventRef, timestamp)
	jg.addEntry(b,
		NewUserAccountKey(userID, SubTypeMargin, AssetUSDC),
		collateral,
		AssetUSDC, amount, JournalTypeMarginReserve)
	jg.sequence++
	return b, nil
}

// GenerateLiquidation moves seized margin to the insurance fund and pays
// the keeper reward out of it, one balanced batch.
// Moves funds: user:margin → system:insurance_fund → keeper:rewards
func (jg *JournalGenerator) GenerateLiquidation(
	eventRef string,
	userID, keeperID uuid.UUID,
	seizedMargin, keeperReward, timestamp int64,
) (*Batch, error) {
	if seizedMargin <= 0 {
		return nil, fmt.Errorf("seized margin %d must be positive", seizedMargin)
	}
	if keeperReward < 0 || keeperReward > seizedMargin {
		return nil, fmt.Errorf("keeper reward %d outside seized margin %d", keeperReward, seizedMargin)
	}

	insurance := NewSystemAccountKey("insurance", SubTypeSystemInsuranceFund, AssetUSDC)
	b := jg.newBatch(eventRef, timestamp)
	jg.addEntry(b,
		insurance,
		NewUserAccountKey(userID, SubTypeMargin, AssetUSDC),
		AssetUSDC, seizedMargin, JournalTypeLiquidationTransfer)
	if keeperReward > 0 {
		jg.addEntry(b,
			NewKeeperAccountKey(keeperID, SubTypeKeeperRewards, AssetUSDC),
			insurance,
			AssetUSDC, keeperReward, JournalTypeKeeperReward)
	}
	jg.sequence++
	return b, nil
}

// GenerateStopBountyReserve prepays a stop-order bounty from collateral.
// Moves funds: user:collateral → user:stop_bounty
func (jg *JournalGenerator) GenerateStopBountyReserve(eventRef string, userID uuid.UUID, amount, timestamp int64) (*Batch, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("bounty amount %d must be positive", amount)
	}
	collateral := NewUserAccountKey(userID, SubTypeCollateral, AssetUSDC)
	if err := jg.balanceTracker.ValidateSufficient(collateral, amount); err != nil {
		return nil, err
	}
	b := jg.newBatch(eventRef, timestamp)
	jg.addEntry(b,
		NewUserAccountKey(userID, SubTypeStopBounty, AssetUSDC),
		collateral,
		AssetUSDC, amount, JournalTypeStopBountyReserve)
	jg.sequence++
	return b, nil
}

// GenerateStopBountyPayout releases the prepaid bounty to the executing
// keeper. Moves funds: user:stop_bounty → keeper:rewards
func (jg *JournalGenerator) GenerateStopBountyPayout(eventRef string, userID, keeperID uuid.UUID, amount, timestamp int64) (*Batch, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("bounty amount %d must be positive", amount)
	}
	bounty := NewUserAccountKey(userID, SubTypeStopBounty, AssetUSDC)
	if err := jg.balanceTracker.ValidateSufficient(bounty, amount); err != nil {
		return nil, err
	}
	b := jg.newBatch(eventRef, timestamp)
	jg.addEntry(b,
		NewKeeperAccountKey(keeperID, SubTypeKeeperRewards, AssetUSDC),
		bounty,
		AssetUSDC, amount, JournalTypeStopBountyPayout)
	jg.sequence++
	return b, nil
}

// GenerateStakeDeposit stakes MMT from the external boundary.
func (jg *JournalGenerator) GenerateStakeDeposit(eventRef string, keeperID uuid.UUID, amount, timestamp int64) (*Batch, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("stake amount %d must be positive", amount)
	}
	b := jg.newBatch(eventRef, timestamp)
	jg.addEntry(b,
		NewKeeperAccountKey(keeperID, SubTypeKeeperStake, AssetMMT),
		NewExternalAccountKey(SubTypeExternalDeposits, AssetMMT),
		AssetMMT, amount, JournalTypeStakeDeposit)
	jg.sequence++
	return b, nil
}

// GenerateStakeWithdraw returns staked MMT to the external boundary.
func (jg *JournalGenerator) GenerateStakeWithdraw(eventRef string, keeperID uuid.UUID, amount, timestamp int64) (*Batch, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("withdraw amount %d must be positive", amount)
	}
	stake := NewKeeperAccountKey(keeperID, SubTypeKeeperStake, AssetMMT)
	if err := jg.balanceTracker.ValidateSufficient(stake, amount); err != nil {
		return nil, err
	}
	b := jg.newBatch(eventRef, timestamp)
	jg.addEntry(b,
		NewExternalAccountKey(SubTypeExternalWithdrawals, AssetMMT),
		stake,
		AssetMMT, amount, JournalTypeStakeWithdraw)
	jg.sequence++
	return b, nil
}

// GenerateStakeSlash confiscates part of a keeper's stake into the
// insurance fund. Moves funds: keeper:stake → system:insurance_fund
func (jg *JournalGenerator) GenerateStakeSlash(eventRef string, keeperID uuid.UUID, amount, timestamp int64) (*Batch, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("slash amount %d must be positive", amount)
	}
	stake := NewKeeperAccountKey(keeperID, SubTypeKeeperStake, AssetMMT)
	if err := jg.balanceTracker.ValidateSufficient(stake, amount); err != nil {
		return nil, err
	}
	b := jg.newBatch(eventRef, timestamp)
	jg.addEntry(b,
		NewSystemAccountKey("insurance", SubTypeSystemInsuranceFund, AssetMMT),
		stake,
		AssetMMT, amount, JournalTypeStakeSlash)
	jg.sequence++
	return b, nil
}

// Sequence returns the next sequence the generator will assign.
func (jg *JournalGenerator) Sequence() int64 {
	return jg.sequence
}

// SetSequence restores the generator cursor during snapshot recovery.
func (jg *JournalGenerator) SetSequence(seq int64) {
	jg.sequence = seq
}
