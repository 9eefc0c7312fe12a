package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/gigproof/internal/model"
)

// GetLockout returns the failure state for ip. An IP with no history gets a
// zero state rather than an error.
func (s *SQLiteStorage) GetLockout(ctx context.Context, ip string) (*model.LockoutState, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ip, "ip"); err != nil {
		return nil, err
	}

	state := &model.LockoutState{IP: ip}
	var lockedUntil sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT failure_count, locked_until FROM lockouts WHERE ip = ?
	`, ip).Scan(&state.FailureCount, &lockedUntil)
	if errors.Is(err, sql.ErrNoRows) {
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query lockout: %w", err)
	}

	if lockedUntil.Valid {
		t := lockedUntil.Time
		state.LockedUntil = &t
	}
	return state, nil
}

// IncrementLookupFailures adds one consecutive failure for ip and returns the
// new count.
func (s *SQLiteStorage) IncrementLookupFailures(ctx context.Context, ip string, at time.Time) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(ip, "ip"); err != nil {
		return 0, err
	}

	var count int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO lockouts (ip, failure_count, last_failure_at) VALUES (?, 1, ?)
			ON CONFLICT(ip) DO UPDATE SET
				failure_count = failure_count + 1,
				last_failure_at = excluded.last_failure_at
		`, ip, at.UTC()); err != nil {
			return fmt.Errorf("failed to increment failures: %w", err)
		}
		return tx.QueryRowContext(ctx, `SELECT failure_count FROM lockouts WHERE ip = ?`, ip).Scan(&count)
	})
	return count, err
}

// LockIP blocks lookups from ip until the given time.
func (s *SQLiteStorage) LockIP(ctx context.Context, ip string, until time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(ip, "ip"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lockouts (ip, failure_count, locked_until) VALUES (?, 0, ?)
		ON CONFLICT(ip) DO UPDATE SET locked_until = excluded.locked_until
	`, ip, until.UTC())
	if err != nil {
		return fmt.Errorf("failed to lock ip: %w", err)
	}
	return nil
}

// ClearLockout resets the failure count and any lock for ip.
func (s *SQLiteStorage) ClearLockout(ctx context.Context, ip string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(ip, "ip"); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM lockouts WHERE ip = ?`, ip); err != nil {
		return fmt.Errorf("failed to clear lockout: %w", err)
	}
	return nil
}

// RecordLookupAttempt appends an audit event for a lookup.
func (s *SQLiteStorage) RecordLookupAttempt(ctx context.Context, attempt *model.LookupAttempt) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if attempt == nil {
		return fmt.Errorf("%w: attempt", ErrNilParameter)
	}
	if err := validateString(attempt.IP, "attempt.IP"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lookup_attempts (ip, code, content_hash, outcome, consumes_quota, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, attempt.IP, attempt.Code, attempt.ContentHash, string(attempt.Outcome), attempt.ConsumesRateLimit(), attempt.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record lookup attempt: %w", err)
	}
	return nil
}

// CountLookupAttempts counts quota-consuming attempts from ip at or after since.
func (s *SQLiteStorage) CountLookupAttempts(ctx context.Context, ip string, since time.Time) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(ip, "ip"); err != nil {
		return 0, err
	}

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM lookup_attempts
		WHERE ip = ? AND consumes_quota = 1 AND created_at >= ?
	`, ip, since.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count lookup attempts: %w", err)
	}
	return count, nil
}
