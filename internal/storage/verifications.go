package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/gigproof/internal/common"
	"github.com/Veraticus/gigproof/internal/model"
)

const verificationColumns = `
	report_id, verification_code, verification_hash, hash_scheme, user_id,
	period_start, period_end, total_90_days, monthly_average, weekly_average,
	consistency_score, currency_code, platform_breakdown, created_at, expires_at,
	verification_count, last_verified_at`

// IssueVerification spends one of the user's credits and inserts rec in a
// single transaction. The decrement is conditional on a positive balance so
// concurrent issuance can never drive credits below zero.
func (s *SQLiteStorage) IssueVerification(ctx context.Context, rec *model.VerificationRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRecord(rec); err != nil {
		return err
	}

	breakdown, err := encodeBreakdown(rec.Figures.PlatformBreakdown)
	if err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE users SET credits = credits - 1 WHERE id = ? AND credits > 0
		`, rec.UserID)
		if err != nil {
			return fmt.Errorf("failed to spend credit: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return s.explainNoCredit(ctx, tx, rec.UserID)
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO verifications (`+verificationColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ReportID,
			rec.VerificationCode,
			strings.ToLower(rec.VerificationHash),
			rec.HashScheme,
			rec.UserID,
			rec.PeriodStart.UTC(),
			rec.PeriodEnd.UTC(),
			rec.Figures.Total90Days,
			rec.Figures.MonthlyAverage,
			rec.Figures.WeeklyAverage,
			rec.Figures.ConsistencyScore,
			rec.Figures.CurrencyCode,
			breakdown,
			rec.CreatedAt.UTC(),
			rec.ExpiresAt.UTC(),
			rec.VerificationCount,
			nullTime(rec.LastVerifiedAt),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: verification %s", common.ErrDuplicateEntry, rec.ReportID)
			}
			return fmt.Errorf("failed to insert verification: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStorage) explainNoCredit(ctx context.Context, q queryable, userID string) error {
	var exists int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, userID).Scan(&exists)
	if err != nil {
		return notFound(err, "user "+userID)
	}
	return common.ErrInsufficientCredits
}

// GetVerificationByCode returns the record issued under code.
func (s *SQLiteStorage) GetVerificationByCode(ctx context.Context, code string) (*model.VerificationRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(code, "code"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+verificationColumns+`
		FROM verifications WHERE verification_code = ?`, code)
	rec, err := scanVerification(row)
	if err != nil {
		return nil, notFound(err, "verification code")
	}
	return rec, nil
}

// GetVerificationByHash returns the record whose content hash is hash.
func (s *SQLiteStorage) GetVerificationByHash(ctx context.Context, hash string) (*model.VerificationRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(hash, "hash"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+verificationColumns+`
		FROM verifications WHERE verification_hash = ?`, strings.ToLower(hash))
	rec, err := scanVerification(row)
	if err != nil {
		return nil, notFound(err, "verification hash")
	}
	return rec, nil
}

// RecordVerificationHit increments the record's lookup count, stamps the
// lookup time and returns the new count.
func (s *SQLiteStorage) RecordVerificationHit(ctx context.Context, reportID string, at time.Time) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(reportID, "reportID"); err != nil {
		return 0, err
	}

	var count int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE verifications
			SET verification_count = verification_count + 1, last_verified_at = ?
			WHERE report_id = ?
		`, at.UTC(), reportID)
		if err != nil {
			return fmt.Errorf("failed to record verification: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: report %s", common.ErrNotFound, reportID)
		}
		return tx.QueryRowContext(ctx,
			`SELECT verification_count FROM verifications WHERE report_id = ?`, reportID).Scan(&count)
	})
	return count, err
}

// ListVerifications returns the user's records, newest first.
func (s *SQLiteStorage) ListVerifications(ctx context.Context, userID string) ([]model.VerificationRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+verificationColumns+`
		FROM verifications WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query verifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.VerificationRecord
	for rows.Next() {
		rec, err := scanVerification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan verification: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func scanVerification(row rowScanner) (*model.VerificationRecord, error) {
	var (
		rec          model.VerificationRecord
		breakdown    string
		lastVerified sql.NullTime
	)
	if err := row.Scan(
		&rec.ReportID,
		&rec.VerificationCode,
		&rec.VerificationHash,
		&rec.HashScheme,
		&rec.UserID,
		&rec.PeriodStart,
		&rec.PeriodEnd,
		&rec.Figures.Total90Days,
		&rec.Figures.MonthlyAverage,
		&rec.Figures.WeeklyAverage,
		&rec.Figures.ConsistencyScore,
		&rec.Figures.CurrencyCode,
		&breakdown,
		&rec.CreatedAt,
		&rec.ExpiresAt,
		&rec.VerificationCount,
		&lastVerified,
	); err != nil {
		return nil, err
	}

	var err error
	if rec.Figures.PlatformBreakdown, err = decodeBreakdown(breakdown); err != nil {
		return nil, err
	}
	if lastVerified.Valid {
		t := lastVerified.Time
		rec.LastVerifiedAt = &t
	}
	return &rec, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
