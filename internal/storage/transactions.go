package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Veraticus/gigproof/internal/model"
)

// UpsertClassifiedTransactions stores classified transactions keyed by user
// and source ID. Re-classifying a transaction overwrites that user's row only.
func (s *SQLiteStorage) UpsertClassifiedTransactions(ctx context.Context, txs []model.ClassifiedTransaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(txs) == 0 {
		return nil
	}
	for i := range txs {
		if err := validateClassified(&txs[i]); err != nil {
			return fmt.Errorf("transaction at index %d: %w", i, err)
		}
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO classified_transactions (
				id, user_id, account_id, date, description, merchant_name,
				currency_code, amount, hash, platform_label, income_amount,
				is_gig_income, classified_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id, id) DO UPDATE SET
				account_id = excluded.account_id,
				date = excluded.date,
				description = excluded.description,
				merchant_name = excluded.merchant_name,
				currency_code = excluded.currency_code,
				amount = excluded.amount,
				hash = excluded.hash,
				platform_label = excluded.platform_label,
				income_amount = excluded.income_amount,
				is_gig_income = excluded.is_gig_income,
				classified_at = excluded.classified_at
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, ct := range txs {
			var label sql.NullString
			if ct.PlatformLabel != nil {
				label = sql.NullString{String: *ct.PlatformLabel, Valid: true}
			}

			if _, err := stmt.ExecContext(ctx,
				ct.ID,
				ct.UserID,
				ct.AccountID,
				ct.Date.UTC(),
				ct.Description,
				ct.MerchantName,
				ct.CurrencyCode,
				ct.Amount,
				ct.GenerateHash(),
				label,
				ct.IncomeAmount,
				ct.IsGigIncome,
				ct.ClassifiedAt.UTC(),
			); err != nil {
				return fmt.Errorf("failed to save transaction %s: %w", ct.ID, err)
			}
		}
		return nil
	})
}

// GetGigIncome returns the user's gig income transactions dated in
// [start, end], newest first.
func (s *SQLiteStorage) GetGigIncome(ctx context.Context, userID string, start, end time.Time) ([]model.ClassifiedTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end date %v is before start date %v", ErrInvalidDateRange, end, start)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, account_id, date, description, merchant_name,
		       currency_code, amount, platform_label, income_amount,
		       is_gig_income, classified_at
		FROM classified_transactions
		WHERE user_id = ? AND is_gig_income = 1 AND date >= ? AND date <= ?
		ORDER BY date DESC, id
	`, userID, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query gig income: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []model.ClassifiedTransaction
	for rows.Next() {
		var (
			ct    model.ClassifiedTransaction
			label sql.NullString
		)
		if err := rows.Scan(
			&ct.ID,
			&ct.UserID,
			&ct.AccountID,
			&ct.Date,
			&ct.Description,
			&ct.MerchantName,
			&ct.CurrencyCode,
			&ct.Amount,
			&label,
			&ct.IncomeAmount,
			&ct.IsGigIncome,
			&ct.ClassifiedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if label.Valid {
			l := label.String
			ct.PlatformLabel = &l
		}
		result = append(result, ct)
	}
	return result, rows.Err()
}
