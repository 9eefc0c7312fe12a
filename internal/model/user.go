package model

import "time"

// User is a GigProof account holder with a paid report-credit balance.
type User struct {
	CreatedAt        time.Time
	ID               string
	Name             string
	Email            string
	PlaidAccessToken string
	PlaidItemID      string
	Credits          int
}

// UserInfo is the profile portion of a report.
type UserInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ReportPayload is handed to report renderers.
type ReportPayload struct {
	ExpiresAt        time.Time     `json:"expiresAt"`
	ReportID         string        `json:"reportId"`
	VerificationCode string        `json:"verificationCode"`
	VerificationHash string        `json:"verificationHash"`
	UserInfo         UserInfo      `json:"userInfo"`
	Summary          IncomeSummary `json:"summary"`
}
