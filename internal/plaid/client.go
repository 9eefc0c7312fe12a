// Package plaid provides a client for interacting with the Plaid API.
package plaid

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/gigproof/internal/common"
	"github.com/Veraticus/gigproof/internal/model"
	"github.com/Veraticus/gigproof/internal/service"
	"github.com/plaid/plaid-go/v20/plaid"
)

const (
	dateLayout = "2006-01-02"

	// Plaid's max page size.
	pageSize = int32(500)

	rateLimitCode = "RATE_LIMIT_EXCEEDED"
)

// Config holds Plaid API configuration.
type Config struct {
	ClientID    string
	Secret      string
	Environment string // sandbox or production
	ClientName  string // shown to the user in Link
	RedirectURI string // required by OAuth institutions in production
	BaseURL     string // overrides the environment's API host
}

// Validate ensures all required fields are present.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("%w: plaid client ID is required", common.ErrMissingConfig)
	}
	if c.Secret == "" {
		return fmt.Errorf("%w: plaid secret is required", common.ErrMissingConfig)
	}
	if c.Environment == "" {
		return fmt.Errorf("%w: plaid environment is required", common.ErrMissingConfig)
	}

	validEnvs := map[string]bool{
		"sandbox":    true,
		"production": true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("%w: invalid Plaid environment: must be sandbox or production", common.ErrInvalidConfig)
	}

	return nil
}

// Client fetches transactions and runs the Link token flow against Plaid.
type Client struct {
	client      *plaid.APIClient
	logger      *slog.Logger
	retryOpts   service.RetryOptions
	environment string
	clientName  string
	redirectURI string
}

// NewClient creates a new Plaid client with the given configuration.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configuration := plaid.NewConfiguration()
	configuration.AddDefaultHeader("PLAID-CLIENT-ID", cfg.ClientID)
	configuration.AddDefaultHeader("PLAID-SECRET", cfg.Secret)

	switch {
	case cfg.BaseURL != "":
		configuration.UseEnvironment(plaid.Environment(cfg.BaseURL))
	case cfg.Environment == "production":
		configuration.UseEnvironment(plaid.Production)
	default:
		configuration.UseEnvironment(plaid.Sandbox)
	}

	clientName := cfg.ClientName
	if clientName == "" {
		clientName = "GigProof"
	}

	return &Client{
		client:      plaid.NewAPIClient(configuration),
		environment: cfg.Environment,
		clientName:  clientName,
		redirectURI: cfg.RedirectURI,
		logger:      slog.Default().With("component", "plaid"),
		retryOpts: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}, nil
}

// GetTransactions fetches the item's posted transactions within the date
// range. Amounts keep Plaid's sign convention: negative amounts are credits.
func (c *Client) GetTransactions(ctx context.Context, accessToken string, startDate, endDate time.Time) ([]model.Transaction, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context cannot be nil")
	}
	if accessToken == "" {
		return nil, fmt.Errorf("%w: plaid access token is required", common.ErrMissingConfig)
	}
	if startDate.After(endDate) {
		return nil, fmt.Errorf("start date must be before end date")
	}

	c.logger.Info("Fetching transactions from Plaid",
		"start_date", startDate.Format(dateLayout),
		"end_date", endDate.Format(dateLayout))

	var allTransactions []plaid.Transaction
	offset := int32(0)

	for {
		var (
			page  []plaid.Transaction
			total int32
		)

		retryErr := common.WithRetry(ctx, func() error {
			request := plaid.NewTransactionsGetRequest(
				accessToken,
				startDate.Format(dateLayout),
				endDate.Format(dateLayout),
			)
			request.SetOptions(plaid.TransactionsGetRequestOptions{
				Count:  plaid.PtrInt32(pageSize),
				Offset: plaid.PtrInt32(offset),
			})

			resp, _, err := c.client.PlaidApi.TransactionsGet(ctx).TransactionsGetRequest(*request).Execute()
			if err != nil {
				return c.classifyError("fetch transactions", err)
			}

			page = resp.GetTransactions()
			total = resp.GetTotalTransactions()

			c.logger.Debug("Fetched transaction batch",
				"count", len(page),
				"offset", offset,
				"total", total)

			return nil
		}, c.retryOpts)

		if retryErr != nil {
			return nil, retryErr
		}

		allTransactions = append(allTransactions, page...)

		if len(page) < int(pageSize) || int32(len(allTransactions)) >= total {
			break
		}

		offset += pageSize
	}

	c.logger.Info("Fetched all transactions", "count", len(allTransactions))

	transactions := make([]model.Transaction, 0, len(allTransactions))
	for _, pt := range allTransactions {
		if pt.GetPending() {
			continue
		}
		tx, err := mapPlaidTransaction(pt)
		if err != nil {
			c.logger.Warn("Skipping unparseable transaction",
				"transaction_id", pt.GetTransactionId(),
				"error", err)
			continue
		}
		transactions = append(transactions, tx)
	}

	return transactions, nil
}

// classifyError turns an API failure into a retryable rate-limit error or a
// connection error.
func (c *Client) classifyError(op string, err error) error {
	plaidError := extractPlaidError(err)
	if plaidError == nil {
		return fmt.Errorf("%w: failed to %s: %w", common.ErrPlaidConnection, op, err)
	}

	if plaidError.ErrorCode == rateLimitCode {
		c.logger.Warn("Rate limit hit, will retry", "error", plaidError.ErrorMessage)
		return &common.RetryableError{
			Err:       fmt.Errorf("%w: %s", common.ErrPlaidRateLimit, plaidError.ErrorMessage),
			Retryable: true,
		}
	}

	return fmt.Errorf("%w: plaid API error: %s - %s", common.ErrPlaidConnection, plaidError.ErrorCode, plaidError.ErrorMessage)
}

// mapPlaidTransaction converts a Plaid transaction to our internal model.
func mapPlaidTransaction(pt plaid.Transaction) (model.Transaction, error) {
	date, err := time.Parse(dateLayout, pt.GetDate())
	if err != nil {
		return model.Transaction{}, fmt.Errorf("invalid date %q: %w", pt.GetDate(), err)
	}

	currency := pt.GetIsoCurrencyCode()
	if currency == "" {
		currency = pt.GetUnofficialCurrencyCode()
	}

	return model.Transaction{
		Date:         date,
		ID:           pt.GetTransactionId(),
		AccountID:    pt.GetAccountId(),
		Description:  pt.GetName(),
		MerchantName: cleanMerchantName(pt.GetMerchantName()),
		CurrencyCode: strings.ToUpper(currency),
		Amount:       pt.GetAmount(),
	}, nil
}

// cleanMerchantName standardizes merchant names by removing trailing
// transaction IDs and common corporate suffixes.
func cleanMerchantName(name string) string {
	parts := strings.Fields(name)
	if len(parts) > 1 {
		lastPart := parts[len(parts)-1]
		// A long all-digit tail is a processor reference, not part of the name
		if len(lastPart) > 5 && isAllDigits(lastPart) {
			parts = parts[:len(parts)-1]
		}
	}
	name = strings.Join(parts, " ")

	suffixes := []string{
		" llc",
		" inc",
		" corp",
		" corporation",
		" company",
		" co",
		" ltd",
		" limited",
	}

	// Keep removing suffixes until none are found (handles multiple suffixes)
	changed := true
	for changed {
		changed = false
		lower := strings.ToLower(name)
		for _, suffix := range suffixes {
			if strings.HasSuffix(lower, suffix) {
				name = strings.TrimRight(name[:len(name)-len(suffix)], " ,.")
				changed = true
				break
			}
		}
	}

	return strings.TrimSpace(name)
}

// isAllDigits checks if a string contains only digits.
func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// extractPlaidError attempts to extract a Plaid error from a generic error.
func extractPlaidError(err error) *plaid.PlaidError {
	plaidErr, convErr := plaid.ToPlaidError(err)
	if convErr != nil {
		return nil
	}
	return &plaidErr
}

// CreateLinkToken creates a Link token for the given user.
func (c *Client) CreateLinkToken(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", common.ErrUnauthorized
	}

	request := plaid.NewLinkTokenCreateRequest(
		c.clientName,
		"en",
		[]plaid.CountryCode{plaid.COUNTRYCODE_US},
		plaid.LinkTokenCreateRequestUser{ClientUserId: userID},
	)
	request.SetProducts([]plaid.Products{plaid.PRODUCTS_TRANSACTIONS})

	if c.redirectURI != "" {
		request.SetRedirectUri(c.redirectURI)
	}

	resp, _, err := c.client.PlaidApi.LinkTokenCreate(ctx).LinkTokenCreateRequest(*request).Execute()
	if err != nil {
		return "", c.classifyError("create link token", err)
	}

	return resp.GetLinkToken(), nil
}

// ExchangePublicToken exchanges a public token from Link for an access token
// and item ID.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (string, string, error) {
	if publicToken == "" {
		return "", "", fmt.Errorf("%w: public token is required", common.ErrBadRequest)
	}

	request := plaid.NewItemPublicTokenExchangeRequest(publicToken)
	resp, _, err := c.client.PlaidApi.ItemPublicTokenExchange(ctx).ItemPublicTokenExchangeRequest(*request).Execute()
	if err != nil {
		return "", "", c.classifyError("exchange public token", err)
	}

	return resp.GetAccessToken(), resp.GetItemId(), nil
}

var (
	_ TransactionFetcher = (*Client)(nil)
	_ Linker             = (*Client)(nil)
)
