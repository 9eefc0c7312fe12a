// Package sheets renders income reports into Google Sheets.
package sheets

import (
	"fmt"
	"os"
	"time"
)

// Config holds the configuration for the Google Sheets writer.
type Config struct {
	ClientID           string
	ClientSecret       string
	RefreshToken       string
	ServiceAccountPath string
	SpreadsheetID      string // write into this spreadsheet instead of creating one per report
	TitlePrefix        string
	TimeZone           string
	VerifyURL          string // printed in the verification instructions
	RetryAttempts      int
	RetryDelay         time.Duration
	EnableFormatting   bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		EnableFormatting: true,
		TitlePrefix:      "GigProof Income Report",
		TimeZone:         "America/New_York",
		RetryAttempts:    3,
		RetryDelay:       time.Second,
	}
}

// LoadFromEnv fills unset credentials from GOOGLE_SHEETS_* environment
// variables.
func (c *Config) LoadFromEnv() {
	setFromEnv(&c.ClientID, "GOOGLE_SHEETS_CLIENT_ID")
	setFromEnv(&c.ClientSecret, "GOOGLE_SHEETS_CLIENT_SECRET")
	setFromEnv(&c.RefreshToken, "GOOGLE_SHEETS_REFRESH_TOKEN")
	setFromEnv(&c.ServiceAccountPath, "GOOGLE_SHEETS_SERVICE_ACCOUNT_PATH")
	setFromEnv(&c.SpreadsheetID, "GOOGLE_SHEETS_SPREADSHEET_ID")
}

func setFromEnv(field *string, key string) {
	if *field != "" {
		return
	}
	if v := os.Getenv(key); v != "" {
		*field = v
	}
}

// HasAuth reports whether exactly one complete authentication method is
// configured.
func (c *Config) HasAuth() bool {
	return c.Validate() == nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	hasOAuth := c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
	hasServiceAccount := c.ServiceAccountPath != ""

	if !hasOAuth && !hasServiceAccount {
		return fmt.Errorf("no authentication method configured")
	}

	if hasOAuth && hasServiceAccount {
		return fmt.Errorf("multiple authentication methods configured; use either OAuth2 or service account")
	}

	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry attempts cannot be negative")
	}

	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay cannot be negative")
	}

	if c.TimeZone != "" {
		if _, err := time.LoadLocation(c.TimeZone); err != nil {
			return fmt.Errorf("invalid time zone %q: %w", c.TimeZone, err)
		}
	}

	return nil
}
