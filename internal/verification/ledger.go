package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/Veraticus/gigproof/internal/common"
	"github.com/Veraticus/gigproof/internal/model"
	"github.com/google/uuid"
)

// maxCodeAttempts bounds retries when a generated code collides.
const maxCodeAttempts = 3

// Store is the persistence the ledger depends on. Lookups that miss return
// an error wrapping common.ErrNotFound.
type Store interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
	GetIncomeSummary(ctx context.Context, userID string) (*model.IncomeSummary, error)

	// IssueVerification atomically spends one credit and inserts rec. It
	// fails with common.ErrInsufficientCredits when no credit is left and
	// common.ErrDuplicateEntry when the code is already taken.
	IssueVerification(ctx context.Context, rec *model.VerificationRecord) error
	GetVerificationByCode(ctx context.Context, code string) (*model.VerificationRecord, error)
	GetVerificationByHash(ctx context.Context, hash string) (*model.VerificationRecord, error)
	RecordVerificationHit(ctx context.Context, reportID string, at time.Time) (int, error)

	GetLockout(ctx context.Context, ip string) (*model.LockoutState, error)
	IncrementLookupFailures(ctx context.Context, ip string, at time.Time) (int, error)
	LockIP(ctx context.Context, ip string, until time.Time) error
	ClearLockout(ctx context.Context, ip string) error
	RecordLookupAttempt(ctx context.Context, attempt *model.LookupAttempt) error
	CountLookupAttempts(ctx context.Context, ip string, since time.Time) (int, error)
}

// LookupRequest identifies a report by code or content hash. IP is the
// caller's source address used for throttling.
type LookupRequest struct {
	Code        string `json:"code"`
	ContentHash string `json:"contentHash"`
	IP          string `json:"-"`
}

// IncomeData is the authoritative snapshot returned to relying parties.
type IncomeData struct {
	PeriodStart time.Time `json:"periodStart"`
	PeriodEnd   time.Time `json:"periodEnd"`
	IssuedAt    time.Time `json:"issuedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
	model.IncomeFigures
}

// Result is the response to a verification lookup.
type Result struct {
	IncomeData        *IncomeData              `json:"incomeData,omitempty"`
	LastVerifiedAt    *time.Time               `json:"lastVerifiedAt,omitempty"`
	Status            model.VerificationStatus `json:"status"`
	VerificationCode  string                   `json:"verificationCode,omitempty"`
	Message           string                   `json:"message"`
	VerificationCount int                      `json:"verificationCount,omitempty"`
	Found             bool                     `json:"found"`
}

// FailureResult renders a lookup error as a Result.
func FailureResult(err error) *Result {
	status, _ := common.StatusOf(err)
	return &Result{
		Found:   false,
		Status:  model.VerificationStatus(status),
		Message: common.MessageOf(err),
	}
}

// Ledger issues and verifies report records.
type Ledger struct {
	store  Store
	hasher Hasher
	codes  CodeGenerator
	clock  common.Clock
	logger *slog.Logger
	policy Policy
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithHasher overrides the default SHA-256 hasher.
func WithHasher(h Hasher) Option {
	return func(l *Ledger) { l.hasher = h }
}

// WithCodeGenerator overrides the crypto/rand code generator.
func WithCodeGenerator(g CodeGenerator) Option {
	return func(l *Ledger) { l.codes = g }
}

// WithClock overrides the system clock.
func WithClock(c common.Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

// WithPolicy overrides the default throttling policy.
func WithPolicy(p Policy) Option {
	return func(l *Ledger) { l.policy = p }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// NewLedger creates a ledger over store.
func NewLedger(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		hasher: SHA256Hasher{},
		codes:  RandomCodes(),
		clock:  common.SystemClock{},
		policy: DefaultPolicy(),
		logger: slog.Default().With("component", "verification"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Issue creates a verification record for the user's current income summary
// and spends one report credit.
func (l *Ledger) Issue(ctx context.Context, userID string) (*model.VerificationRecord, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, common.ErrUnauthorized
	}

	user, err := l.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthorized
		}
		return nil, fmt.Errorf("%w: loading user: %w", common.ErrUpstreamUnavailable, err)
	}

	summary, err := l.store.GetIncomeSummary(ctx, user.ID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrNoIncomeData
		}
		return nil, fmt.Errorf("%w: loading income summary: %w", common.ErrUpstreamUnavailable, err)
	}
	if len(summary.PlatformBreakdown) == 0 {
		return nil, common.ErrNoIncomeData
	}

	if user.Credits <= 0 {
		return nil, common.ErrInsufficientCredits
	}

	now := l.clock.Now()
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		rec, err := l.newRecord(user.ID, summary, now)
		if err != nil {
			return nil, err
		}

		err = l.store.IssueVerification(ctx, rec)
		switch {
		case err == nil:
			l.logger.Info("Issued verification record",
				"report_id", rec.ReportID,
				"user_id", rec.UserID,
				"expires_at", rec.ExpiresAt)
			return rec, nil
		case errors.Is(err, common.ErrDuplicateEntry):
			l.logger.Warn("Verification code collision, regenerating", "attempt", attempt)
			continue
		case errors.Is(err, common.ErrInsufficientCredits):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: saving verification record: %w", common.ErrUpstreamUnavailable, err)
		}
	}

	return nil, fmt.Errorf("%w: could not allocate a unique verification code", common.ErrInternal)
}

func (l *Ledger) newRecord(userID string, summary *model.IncomeSummary, now time.Time) (*model.VerificationRecord, error) {
	code, err := l.codes()
	if err != nil {
		return nil, fmt.Errorf("%w: generating verification code: %w", common.ErrInternal, err)
	}

	rec := &model.VerificationRecord{
		ReportID:         uuid.NewString(),
		VerificationCode: code,
		UserID:           userID,
		CreatedAt:        now,
		ExpiresAt:        now.Add(l.policy.Validity),
		PeriodStart:      summary.PeriodStart,
		PeriodEnd:        summary.PeriodEnd,
		Figures:          summary.Figures(),
		HashScheme:       l.hasher.Scheme(),
	}
	rec.VerificationHash = l.hasher.Hash(hashInputOf(rec))

	return rec, nil
}

func hashInputOf(rec *model.VerificationRecord) HashInput {
	return HashInput{
		Code:     rec.VerificationCode,
		UserID:   rec.UserID,
		IssuedAt: rec.CreatedAt,
		Figures:  rec.Figures,
	}
}

// Lookup answers a relying party's verification request. Lockout is checked
// first and does not consume quota; the hourly and daily quotas are checked
// before the record is queried.
func (l *Ledger) Lookup(ctx context.Context, req LookupRequest) (*Result, error) {
	ip := strings.TrimSpace(req.IP)
	if ip == "" {
		ip = "unknown"
	}
	code := NormalizeCode(req.Code)
	hash := strings.ToLower(strings.TrimSpace(req.ContentHash))
	now := l.clock.Now()

	attempt := &model.LookupAttempt{IP: ip, Code: code, ContentHash: hash, CreatedAt: now}

	if err := l.checkLockout(ctx, ip, now); err != nil {
		attempt.Outcome = model.VerificationLockedOut
		l.recordAttempt(ctx, attempt, err)
		return nil, err
	}

	if err := l.checkRateLimit(ctx, ip, now); err != nil {
		attempt.Outcome = model.VerificationRateLimited
		l.recordAttempt(ctx, attempt, err)
		return nil, err
	}

	if (code == "") == (hash == "") {
		err := common.NewUserError("Provide exactly one of a verification code or a content hash.", common.ErrBadRequest)
		attempt.Outcome = model.VerificationBadRequest
		l.recordAttempt(ctx, attempt, err)
		return nil, err
	}

	rec, err := l.find(ctx, code, hash)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			attempt.Outcome = model.VerificationNotFound
			l.recordAttempt(ctx, attempt, err)
			if lockErr := l.registerFailure(ctx, ip, now); lockErr != nil {
				return nil, lockErr
			}
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("%w: querying verification record: %w", common.ErrUpstreamUnavailable, err)
	}

	if rec.HashScheme == l.hasher.Scheme() && !Matches(l.hasher, hashInputOf(rec), rec.VerificationHash) {
		l.logger.Error("Verification record failed integrity check", "report_id", rec.ReportID)
		return nil, fmt.Errorf("%w: stored record does not match its hash", common.ErrInternal)
	}

	status := rec.StatusAt(now)

	count, err := l.store.RecordVerificationHit(ctx, rec.ReportID, now)
	if err != nil {
		return nil, fmt.Errorf("%w: recording verification: %w", common.ErrUpstreamUnavailable, err)
	}
	if err := l.store.ClearLockout(ctx, ip); err != nil {
		return nil, fmt.Errorf("%w: clearing lockout: %w", common.ErrUpstreamUnavailable, err)
	}

	attempt.Outcome = status
	l.recordAttempt(ctx, attempt, nil)

	return &Result{
		Found:             true,
		Status:            status,
		VerificationCode:  rec.VerificationCode,
		VerificationCount: count,
		LastVerifiedAt:    &now,
		IncomeData: &IncomeData{
			PeriodStart:   rec.PeriodStart,
			PeriodEnd:     rec.PeriodEnd,
			IssuedAt:      rec.CreatedAt,
			ExpiresAt:     rec.ExpiresAt,
			IncomeFigures: rec.Figures,
		},
		Message: messageFor(status, rec.ExpiresAt),
	}, nil
}

func (l *Ledger) find(ctx context.Context, code, hash string) (*model.VerificationRecord, error) {
	if code != "" {
		return l.store.GetVerificationByCode(ctx, code)
	}
	return l.store.GetVerificationByHash(ctx, hash)
}

func (l *Ledger) checkLockout(ctx context.Context, ip string, now time.Time) error {
	state, err := l.store.GetLockout(ctx, ip)
	if err != nil {
		return fmt.Errorf("%w: loading lockout: %w", common.ErrUpstreamUnavailable, err)
	}

	if state.IsLocked(now) {
		remaining := int(math.Ceil(state.LockedUntil.Sub(now).Minutes()))
		return common.NewUserError(
			fmt.Sprintf("Too many failed verification attempts. Try again in %d minute%s.", remaining, plural(remaining)),
			common.ErrLockedOut)
	}

	// An elapsed lock starts the IP over with a clean failure count
	if state.LockedUntil != nil {
		if err := l.store.ClearLockout(ctx, ip); err != nil {
			return fmt.Errorf("%w: clearing expired lockout: %w", common.ErrUpstreamUnavailable, err)
		}
	}

	return nil
}

func (l *Ledger) checkRateLimit(ctx context.Context, ip string, now time.Time) error {
	hourly, err := l.store.CountLookupAttempts(ctx, ip, now.Add(-time.Hour))
	if err != nil {
		return fmt.Errorf("%w: counting attempts: %w", common.ErrUpstreamUnavailable, err)
	}
	if hourly >= l.policy.HourlyLimit {
		return common.ErrRateLimited
	}

	daily, err := l.store.CountLookupAttempts(ctx, ip, now.Add(-24*time.Hour))
	if err != nil {
		return fmt.Errorf("%w: counting attempts: %w", common.ErrUpstreamUnavailable, err)
	}
	if daily >= l.policy.DailyLimit {
		return common.ErrRateLimited
	}

	return nil
}

// registerFailure counts a miss and locks the IP once the threshold is hit.
// The increment is not serialized; concurrent misses may allow an extra try.
func (l *Ledger) registerFailure(ctx context.Context, ip string, now time.Time) error {
	failures, err := l.store.IncrementLookupFailures(ctx, ip, now)
	if err != nil {
		return fmt.Errorf("%w: recording failure: %w", common.ErrUpstreamUnavailable, err)
	}

	if failures >= l.policy.MaxConsecutiveFailures {
		until := now.Add(l.policy.LockoutDuration)
		if err := l.store.LockIP(ctx, ip, until); err != nil {
			return fmt.Errorf("%w: locking ip: %w", common.ErrUpstreamUnavailable, err)
		}
		l.logger.Warn("Locked out IP after repeated failed lookups",
			"ip", ip,
			"failures", failures,
			"locked_until", until)
	}

	return nil
}

// recordAttempt writes the audit event. A failed write is logged rather than
// returned so the caller still sees the lookup's own outcome.
func (l *Ledger) recordAttempt(ctx context.Context, attempt *model.LookupAttempt, cause error) {
	level := slog.LevelInfo
	attrs := []any{"ip", attempt.IP, "outcome", attempt.Outcome}
	if cause != nil {
		level = slog.LevelWarn
		attrs = append(attrs, "error", cause)
	}
	l.logger.Log(ctx, level, "Verification lookup", attrs...)

	if err := l.store.RecordLookupAttempt(ctx, attempt); err != nil {
		l.logger.Error("Failed to record lookup attempt", "ip", attempt.IP, "error", err)
	}
}

func messageFor(status model.VerificationStatus, expiresAt time.Time) string {
	if status == model.VerificationExpired {
		return fmt.Sprintf("This report was issued by GigProof but expired on %s. The figures shown are the figures originally issued; "+
			"treat any document showing different figures as altered.", expiresAt.Format("January 2, 2006"))
	}
	return "This report is authentic. If the figures on the document you received differ from the figures shown here, " +
		"the document has been altered."
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
