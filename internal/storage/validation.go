// Package storage provides the SQLite persistence layer for users, classified
// transactions, income summaries and verification records.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/gigproof/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrInvalidDateRange   = errors.New("start date must be before end date")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidSummary     = errors.New("invalid income summary")
	ErrInvalidRecord      = errors.New("invalid verification record")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateClassified validates a classified transaction before it is stored.
func validateClassified(tx *model.ClassifiedTransaction) error {
	if tx == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if tx.UserID == "" {
		return fmt.Errorf("%w: %s missing user ID", ErrInvalidTransaction, tx.ID)
	}
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTransaction, err)
	}
	if tx.IncomeAmount < 0 {
		return fmt.Errorf("%w: %s has negative income amount", ErrInvalidTransaction, tx.ID)
	}
	return nil
}

func validateSummary(summary *model.IncomeSummary) error {
	if summary == nil {
		return fmt.Errorf("%w: summary", ErrNilParameter)
	}
	if summary.UserID == "" {
		return fmt.Errorf("%w: missing user ID", ErrInvalidSummary)
	}
	if summary.PeriodEnd.Before(summary.PeriodStart) {
		return fmt.Errorf("%w: %w", ErrInvalidSummary, ErrInvalidDateRange)
	}
	return nil
}

func validateRecord(rec *model.VerificationRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: record", ErrNilParameter)
	}
	switch {
	case rec.ReportID == "":
		return fmt.Errorf("%w: missing report ID", ErrInvalidRecord)
	case rec.VerificationCode == "":
		return fmt.Errorf("%w: missing code", ErrInvalidRecord)
	case rec.VerificationHash == "":
		return fmt.Errorf("%w: missing hash", ErrInvalidRecord)
	case rec.UserID == "":
		return fmt.Errorf("%w: missing user ID", ErrInvalidRecord)
	case !rec.ExpiresAt.After(rec.CreatedAt):
		return fmt.Errorf("%w: expiry must follow creation", ErrInvalidRecord)
	}
	return nil
}
