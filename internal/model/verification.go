package model

import "time"

// VerificationStatus is the outcome of a verification lookup.
type VerificationStatus string

// Verification status constants.
const (
	VerificationValid       VerificationStatus = "valid"
	VerificationExpired     VerificationStatus = "expired"
	VerificationNotFound    VerificationStatus = "not_found"
	VerificationRateLimited VerificationStatus = "rate_limited"
	VerificationLockedOut   VerificationStatus = "locked_out"
	VerificationBadRequest  VerificationStatus = "bad_request"
)

// VerificationRecord is the authoritative snapshot behind an issued report.
// Only VerificationCount and LastVerifiedAt change after creation.
type VerificationRecord struct {
	CreatedAt         time.Time
	ExpiresAt         time.Time
	PeriodStart       time.Time
	PeriodEnd         time.Time
	LastVerifiedAt    *time.Time
	ReportID          string
	VerificationCode  string
	VerificationHash  string
	HashScheme        string
	UserID            string
	Figures           IncomeFigures
	VerificationCount int
}

// StatusAt reports whether the record is valid or expired at now.
func (r *VerificationRecord) StatusAt(now time.Time) VerificationStatus {
	if now.After(r.ExpiresAt) {
		return VerificationExpired
	}
	return VerificationValid
}

// LockoutState tracks consecutive failed lookups from one source IP.
type LockoutState struct {
	LockedUntil  *time.Time
	IP           string
	FailureCount int
}

// IsLocked reports whether the IP is locked out at now.
func (l *LockoutState) IsLocked(now time.Time) bool {
	return l.LockedUntil != nil && now.Before(*l.LockedUntil)
}

// LookupAttempt is an audit event for one verification lookup.
type LookupAttempt struct {
	CreatedAt   time.Time
	IP          string
	Code        string
	ContentHash string
	Outcome     VerificationStatus
}

// ConsumesRateLimit reports whether the attempt counts toward the
// per-IP lookup quota. Rejected attempts do not.
func (a *LookupAttempt) ConsumesRateLimit() bool {
	return a.Outcome != VerificationRateLimited && a.Outcome != VerificationLockedOut
}
