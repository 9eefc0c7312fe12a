package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Veraticus/gigproof/internal/model"
)

// UpsertIncomeSummary replaces the user's live income summary.
func (s *SQLiteStorage) UpsertIncomeSummary(ctx context.Context, summary *model.IncomeSummary) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateSummary(summary); err != nil {
		return err
	}

	breakdown, err := encodeBreakdown(summary.PlatformBreakdown)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO income_summaries (
			user_id, period_start, period_end, total_90_days, monthly_average,
			weekly_average, consistency_score, currency_code, platform_breakdown, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			period_start = excluded.period_start,
			period_end = excluded.period_end,
			total_90_days = excluded.total_90_days,
			monthly_average = excluded.monthly_average,
			weekly_average = excluded.weekly_average,
			consistency_score = excluded.consistency_score,
			currency_code = excluded.currency_code,
			platform_breakdown = excluded.platform_breakdown,
			updated_at = excluded.updated_at
	`,
		summary.UserID,
		summary.PeriodStart.UTC(),
		summary.PeriodEnd.UTC(),
		summary.Total90Days,
		summary.MonthlyAverage,
		summary.WeeklyAverage,
		summary.ConsistencyScore,
		summary.CurrencyCode,
		breakdown,
		summary.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save income summary: %w", err)
	}
	return nil
}

// GetIncomeSummary returns the user's live income summary.
func (s *SQLiteStorage) GetIncomeSummary(ctx context.Context, userID string) (*model.IncomeSummary, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	var (
		summary   model.IncomeSummary
		breakdown string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, period_start, period_end, total_90_days, monthly_average,
		       weekly_average, consistency_score, currency_code, platform_breakdown, updated_at
		FROM income_summaries
		WHERE user_id = ?
	`, userID).Scan(
		&summary.UserID,
		&summary.PeriodStart,
		&summary.PeriodEnd,
		&summary.Total90Days,
		&summary.MonthlyAverage,
		&summary.WeeklyAverage,
		&summary.ConsistencyScore,
		&summary.CurrencyCode,
		&breakdown,
		&summary.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "income summary for "+userID)
	}

	if summary.PlatformBreakdown, err = decodeBreakdown(breakdown); err != nil {
		return nil, err
	}
	return &summary, nil
}

func encodeBreakdown(rows []model.PlatformTotal) (string, error) {
	if rows == nil {
		rows = []model.PlatformTotal{}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("failed to marshal platform breakdown: %w", err)
	}
	return string(data), nil
}

func decodeBreakdown(data string) ([]model.PlatformTotal, error) {
	rows := []model.PlatformTotal{}
	if data == "" {
		return rows, nil
	}
	if err := json.Unmarshal([]byte(data), &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal platform breakdown: %w", err)
	}
	return rows, nil
}
