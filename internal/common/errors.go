// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Common application errors.
var (
	// Request errors.
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")

	// Income and credit errors.
	ErrNoIncomeData        = errors.New("no income data")
	ErrInsufficientCredits = errors.New("insufficient credits")

	// Verification errors.
	ErrNotFound    = errors.New("not found")
	ErrRateLimited = errors.New("rate limited")
	ErrLockedOut   = errors.New("locked out")

	// Infrastructure errors.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrInternal            = errors.New("internal error")
	ErrDuplicateEntry      = errors.New("duplicate entry")

	// Plaid errors.
	ErrPlaidConnection = errors.New("plaid connection failed")
	ErrPlaidRateLimit  = errors.New("plaid rate limit exceeded")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Machine-readable statuses returned to API callers.
const (
	StatusUnauthorized        = "unauthorized"
	StatusBadRequest          = "bad_request"
	StatusNoIncomeData        = "no_income_data"
	StatusInsufficientCredits = "insufficient_credits"
	StatusNotFound            = "not_found"
	StatusRateLimited         = "rate_limited"
	StatusLockedOut           = "locked_out"
	StatusUpstreamUnavailable = "upstream_unavailable"
	StatusInternal            = "internal"
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// errorKind ties a sentinel to its transport representation.
type errorKind struct {
	sentinel   error
	status     string
	httpStatus int
	message    string
}

// errorKinds is matched in order. Infrastructure failures come first so a
// wrapped cause such as an upstream not-found is not reported as a client error.
var errorKinds = []errorKind{
	{ErrInternal, StatusInternal, http.StatusInternalServerError, "An unexpected error occurred."},
	{ErrUpstreamUnavailable, StatusUpstreamUnavailable, http.StatusBadGateway, "A dependent service is unavailable. Please try again."},
	{ErrPlaidConnection, StatusUpstreamUnavailable, http.StatusBadGateway, "Your bank connection is unavailable. Please try again."},
	{ErrPlaidRateLimit, StatusUpstreamUnavailable, http.StatusBadGateway, "Your bank connection is busy. Please try again shortly."},
	{ErrLockedOut, StatusLockedOut, http.StatusTooManyRequests, "Too many failed attempts. Please try again later."},
	{ErrRateLimited, StatusRateLimited, http.StatusTooManyRequests, "Too many verification attempts. Please try again later."},
	{ErrUnauthorized, StatusUnauthorized, http.StatusUnauthorized, "Authentication is required."},
	{ErrBadRequest, StatusBadRequest, http.StatusBadRequest, "The request is missing required fields."},
	{ErrNoIncomeData, StatusNoIncomeData, http.StatusUnprocessableEntity, "No income data is available yet. Link a bank account and sync first."},
	{ErrInsufficientCredits, StatusInsufficientCredits, http.StatusPaymentRequired, "You have no report credits remaining."},
	{ErrNotFound, StatusNotFound, http.StatusNotFound, "No report matches that verification code."},
}

// StatusOf maps an error to its machine-readable status and HTTP status code.
// Unrecognized errors map to StatusInternal.
func StatusOf(err error) (string, int) {
	for _, k := range errorKinds {
		if errors.Is(err, k.sentinel) {
			return k.status, k.httpStatus
		}
	}
	return StatusInternal, http.StatusInternalServerError
}

// MessageOf returns a human-readable message for err that is safe to show
// to end users. Internal error text is never included.
func MessageOf(err error) string {
	var userErr *UserError
	if errors.As(err, &userErr) && userErr.UserMessage != "" {
		return userErr.UserMessage
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.sentinel) {
			return k.message
		}
	}
	return "An unexpected error occurred."
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	// Check for specific retryable errors
	if errors.Is(err, ErrPlaidRateLimit) ||
		errors.Is(err, ErrUpstreamUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Check for retryable error type
	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
