// Package report assembles the data handed to report renderers.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/gigproof/internal/common"
	"github.com/Veraticus/gigproof/internal/model"
)

// Store loads the profile and summary behind a report.
type Store interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
	GetIncomeSummary(ctx context.Context, userID string) (*model.IncomeSummary, error)
}

// Issuer creates the verification record a report is printed with.
type Issuer interface {
	Issue(ctx context.Context, userID string) (*model.VerificationRecord, error)
}

// Renderer publishes an assembled report somewhere.
type Renderer interface {
	Write(ctx context.Context, payload *model.ReportPayload) error
}

// Assembler combines a user's profile, income summary and a freshly issued
// verification record into a ReportPayload.
type Assembler struct {
	store  Store
	issuer Issuer
	logger *slog.Logger
}

// NewAssembler creates an assembler.
func NewAssembler(store Store, issuer Issuer) *Assembler {
	return &Assembler{
		store:  store,
		issuer: issuer,
		logger: slog.Default().With("component", "report"),
	}
}

// Assemble loads the user's profile and income summary, issues a
// verification record and returns the report payload. Issue errors propagate
// unchanged and are not retried, so a failed issuance never spends a credit
// twice.
func (a *Assembler) Assemble(ctx context.Context, userID string) (*model.ReportPayload, error) {
	if userID == "" {
		return nil, common.ErrUnauthorized
	}

	user, err := a.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthorized
		}
		return nil, fmt.Errorf("%w: loading user: %w", common.ErrUpstreamUnavailable, err)
	}

	summary, err := a.store.GetIncomeSummary(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrNoIncomeData
		}
		return nil, fmt.Errorf("%w: loading income summary: %w", common.ErrUpstreamUnavailable, err)
	}

	rec, err := a.issuer.Issue(ctx, userID)
	if err != nil {
		return nil, err
	}

	// The record's frozen figures are authoritative even if a sync replaced
	// the live summary between the read above and issuance.
	summary.PeriodStart = rec.PeriodStart
	summary.PeriodEnd = rec.PeriodEnd
	applyFigures(summary, rec.Figures)

	payload := &model.ReportPayload{
		ReportID:         rec.ReportID,
		VerificationCode: rec.VerificationCode,
		VerificationHash: rec.VerificationHash,
		ExpiresAt:        rec.ExpiresAt,
		UserInfo: model.UserInfo{
			Name:  user.Name,
			Email: user.Email,
		},
		Summary: *summary,
	}

	a.logger.Info("Assembled report",
		"report_id", payload.ReportID,
		"user_id", userID)

	return payload, nil
}

// AssembleAndRender assembles a report and hands it to each renderer in order.
func (a *Assembler) AssembleAndRender(ctx context.Context, userID string, renderers ...Renderer) (*model.ReportPayload, error) {
	payload, err := a.Assemble(ctx, userID)
	if err != nil {
		return nil, err
	}

	for _, r := range renderers {
		if err := r.Write(ctx, payload); err != nil {
			return payload, fmt.Errorf("%w: rendering report %s: %w", common.ErrUpstreamUnavailable, payload.ReportID, err)
		}
	}
	return payload, nil
}

func applyFigures(summary *model.IncomeSummary, f model.IncomeFigures) {
	summary.CurrencyCode = f.CurrencyCode
	summary.PlatformBreakdown = f.PlatformBreakdown
	summary.Total90Days = f.Total90Days
	summary.MonthlyAverage = f.MonthlyAverage
	summary.WeeklyAverage = f.WeeklyAverage
	summary.ConsistencyScore = f.ConsistencyScore
}
