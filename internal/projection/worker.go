package projection

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"VerseRisk/internal/ledger"
)

// ProjectionOutput mirrors the data projection workers need. The
// orchestrator bridges core.CoreOutput into this form.
type ProjectionOutput struct {
	Sequence       int64
	EventType      string
	MarketID       *string
	JournalEntries []JournalEntry
	Timestamp      int64
}

// JournalEntry is a simplified journal for projection consumption.
type JournalEntry struct {
	JournalID     string
	EventRef      string
	DebitAccount  string
	CreditAccount string
	AssetID       uint16
	Amount        int64
	JournalType   int32
}

// ProjectionWorker updates projection tables from processed events. The
// projection channel is non-blocking with drop: if projections fall behind
// they are rebuilt from the event log, never the other way around.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan ProjectionOutput
	history   *LiquidationHistory
	log       zerolog.Logger
	lastSeq   int64
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan ProjectionOutput, history *LiquidationHistory, log zerolog.Logger) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		history:   history,
		log:       log,
	}
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.processOutput(ctx, output); err != nil {
				// Continue — projections are eventually consistent and can
				// be rebuilt from the event log.
				pw.log.Warn().Err(err).Int64("sequence", output.Sequence).Msg("projection update failed")
			}

			pw.lastSeq = output.Sequence
		}
	}
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output ProjectionOutput) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, j := range output.JournalEntries {
		if err := pw.updateBalanceProjection(ctx, tx, output.Sequence, j); err != nil {
			return fmt.Errorf("balance projection: %w", err)
		}
		if err := pw.updateLiquidationHistory(ctx, tx, output, j); err != nil {
			return fmt.Errorf("liquidation history: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

// updateBalanceProjection applies one journal to the balance table. The
// ledger convention is debit increases, credit decreases.
func (pw *ProjectionWorker) updateBalanceProjection(ctx context.Context, tx *sql.Tx, sequence int64, j JournalEntry) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance + $3, last_sequence = $4
	`, j.DebitAccount, j.AssetID, j.Amount, sequence); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, -$3, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance - $3, last_sequence = $4
	`, j.CreditAccount, j.AssetID, j.Amount, sequence); err != nil {
		return err
	}

	return nil
}

// updateLiquidationHistory records liquidation-flow journals so keepers and
// traders can audit seizures, rewards, and slashes without scanning the log.
func (pw *ProjectionWorker) updateLiquidationHistory(ctx context.Context, tx *sql.Tx, output ProjectionOutput, j JournalEntry) error {
	switch ledger.JournalType(j.JournalType) {
	case ledger.JournalTypeLiquidationTransfer,
		ledger.JournalTypeKeeperReward,
		ledger.JournalTypeStopBountyPayout,
		ledger.JournalTypeStakeSlash,
		ledger.JournalTypeInsuranceDebit:
	default:
		return nil
	}

	if pw.history != nil {
		pw.history.Add(HistoryEntry{
			Sequence:      output.Sequence,
			EventRef:      j.EventRef,
			Market:        derefOr(output.MarketID, ""),
			DebitAccount:  j.DebitAccount,
			CreditAccount: j.CreditAccount,
			Amount:        j.Amount,
			JournalType:   j.JournalType,
			Timestamp:     output.Timestamp,
		})
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.liquidation_history
			(journal_id, event_ref, sequence, market_id, debit_account, credit_account, amount, journal_type, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (journal_id) DO NOTHING
	`, j.JournalID, j.EventRef, output.Sequence, output.MarketID,
		j.DebitAccount, j.CreditAccount, j.Amount, j.JournalType, output.Timestamp)
	return err
}

func derefOr(s *string, fallback string) string {
	if s != nil {
		return *s
	}
	return fallback
}

// RebuildProjections rebuilds the balance projection from the event log.
func RebuildProjections(ctx context.Context, db *sql.DB, log zerolog.Logger) error {
	truncateStatements := []string{
		`TRUNCATE projections.balances`,
		`TRUNCATE projections.liquidation_history`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	// Debits add, credits subtract.
	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			debit_account AS account_path,
			asset_id,
			SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.journal
		GROUP BY debit_account, asset_id
		ON CONFLICT (account_path, asset_id) DO UPDATE
			SET balance = EXCLUDED.balance, last_sequence = EXCLUDED.last_sequence
	`)
	if err != nil {
		return fmt.Errorf("rebuild debit balances: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			credit_account AS account_path,
			asset_id,
			-SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.journal
		GROUP BY credit_account, asset_id
		ON CONFLICT (account_path, asset_id) DO UPDATE
			SET balance = projections.balances.balance + EXCLUDED.balance,
			    last_sequence = GREATEST(projections.balances.last_sequence, EXCLUDED.last_sequence)
	`)
	if err != nil {
		return fmt.Errorf("rebuild credit balances: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.liquidation_history
			(journal_id, event_ref, sequence, market_id, debit_account, credit_account, amount, journal_type, timestamp)
		SELECT
			j.journal_id, j.event_ref, j.sequence, e.market_id,
			j.debit_account, j.credit_account, j.amount, j.journal_type, j.timestamp
		FROM event_log.journal j
		LEFT JOIN event_log.events e ON e.sequence = j.sequence
		WHERE j.journal_type IN ($1, $2, $3, $4, $5)
		ON CONFLICT (journal_id) DO NOTHING
	`, int32(ledger.JournalTypeLiquidationTransfer), int32(ledger.JournalTypeKeeperReward),
		int32(ledger.JournalTypeStopBountyPayout), int32(ledger.JournalTypeStakeSlash),
		int32(ledger.JournalTypeInsuranceDebit))
	if err != nil {
		return fmt.Errorf("rebuild liquidation history: %w", err)
	}

	log.Info().Msg("projection rebuild complete")
	return nil
}
