// Package simplefin fetches bank transactions through a SimpleFIN Bridge
// access URL, as an alternative to Plaid.
package simplefin

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/gigproof/internal/common"
	"github.com/Veraticus/gigproof/internal/model"
	"github.com/Veraticus/gigproof/internal/service"
	"github.com/shopspring/decimal"
)

type accountSet struct {
	Errors   []string  `json:"errors"`
	Accounts []account `json:"accounts"`
}

type account struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Currency     string        `json:"currency"`
	Transactions []transaction `json:"transactions"`
}

type transaction struct {
	ID          string `json:"id"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Payee       string `json:"payee"`
	Posted      int64  `json:"posted"`
	Pending     bool   `json:"pending"`
}

// Client reads accounts from SimpleFIN access URLs. The access URL plays
// the role of the access token in sync.TransactionSource.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	retryOpts  service.RetryOptions
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryOptions overrides the retry policy.
func WithRetryOptions(opts service.RetryOptions) Option {
	return func(c *Client) { c.retryOpts = opts }
}

// NewClient creates a SimpleFIN client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default().With("component", "simplefin"),
		retryOpts: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Claim exchanges a one-time setup token for a long-lived access URL. The
// setup token is the base64-encoded claim URL issued by the bridge.
func (c *Client) Claim(ctx context.Context, setupToken string) (string, error) {
	token := strings.TrimSpace(setupToken)
	decoded, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		decoded, err = base64.StdEncoding.DecodeString(token)
		if err != nil {
			return "", common.NewUserError("The SimpleFIN setup token is not valid.", fmt.Errorf("%w: %w", common.ErrBadRequest, err))
		}
	}

	claimURL := string(decoded)
	if !isHTTPURL(claimURL) {
		return "", common.NewUserError("The SimpleFIN setup token is not valid.", common.ErrBadRequest)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claimURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create claim request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: claiming access URL: %w", common.ErrUpstreamUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("failed to read claim response: %w", err)
	}
	if resp.StatusCode == http.StatusForbidden {
		return "", common.NewUserError("This SimpleFIN setup token was already claimed.", common.ErrUnauthorized)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: simplefin claim returned %d", common.ErrUpstreamUnavailable, resp.StatusCode)
	}

	accessURL := strings.TrimSpace(string(body))
	if !isHTTPURL(accessURL) {
		return "", fmt.Errorf("%w: simplefin returned an invalid access URL", common.ErrUpstreamUnavailable)
	}
	return accessURL, nil
}

// GetTransactions fetches posted transactions in [startDate, endDate] from
// every account behind accessURL. Amounts are negated so credits are
// negative, matching the Plaid convention.
func (c *Client) GetTransactions(ctx context.Context, accessURL string, startDate, endDate time.Time) ([]model.Transaction, error) {
	if accessURL == "" {
		return nil, fmt.Errorf("%w: simplefin access URL is required", common.ErrMissingConfig)
	}

	u, err := url.Parse(strings.TrimRight(accessURL, "/") + "/accounts")
	if err != nil {
		return nil, fmt.Errorf("invalid simplefin access URL: %w", err)
	}
	q := u.Query()
	q.Set("start-date", strconv.FormatInt(startDate.Unix(), 10))
	// end-date is exclusive
	q.Set("end-date", strconv.FormatInt(endDate.Add(time.Second).Unix(), 10))
	u.RawQuery = q.Encode()

	var set accountSet
	err = common.WithRetry(ctx, func() error {
		var fetchErr error
		set, fetchErr = c.fetch(ctx, u.String())
		return fetchErr
	}, c.retryOpts)
	if err != nil {
		return nil, err
	}

	for _, msg := range set.Errors {
		c.logger.Warn("SimpleFIN reported an account error", "message", msg)
	}

	var txs []model.Transaction
	for _, acct := range set.Accounts {
		for _, tx := range acct.Transactions {
			if tx.Pending {
				continue
			}

			date := time.Unix(tx.Posted, 0).UTC()
			if date.Before(startDate) || date.After(endDate) {
				continue
			}

			converted, err := convertTransaction(acct, tx, date)
			if err != nil {
				return nil, err
			}
			txs = append(txs, converted)
		}
	}

	c.logger.Info("Fetched SimpleFIN transactions", "accounts", len(set.Accounts), "transactions", len(txs))
	return txs, nil
}

func (c *Client) fetch(ctx context.Context, target string) (accountSet, error) {
	var set accountSet

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return set, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return set, ctx.Err()
		}
		return set, &common.RetryableError{Err: fmt.Errorf("%w: %w", common.ErrUpstreamUnavailable, err), Retryable: true}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return set, common.NewUserError("SimpleFIN rejected the access URL. Reconnect the bank.", common.ErrUnauthorized)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return set, &common.RetryableError{Err: fmt.Errorf("%w: simplefin returned %d", common.ErrUpstreamUnavailable, resp.StatusCode), Retryable: true}
	case resp.StatusCode != http.StatusOK:
		// Plain error so WithRetry gives up immediately
		return set, fmt.Errorf("simplefin returned %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return set, fmt.Errorf("decoding simplefin response: %w", err)
	}
	return set, nil
}

func convertTransaction(acct account, tx transaction, date time.Time) (model.Transaction, error) {
	amount, err := decimal.NewFromString(tx.Amount)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("%w: invalid amount %q on transaction %s", common.ErrUpstreamUnavailable, tx.Amount, tx.ID)
	}

	currency := strings.ToUpper(acct.Currency)
	if len(currency) != 3 {
		// Custom currencies are identified by URL
		currency = ""
	}

	return model.Transaction{
		ID:           fmt.Sprintf("sfin-%s-%s", acct.ID, tx.ID),
		AccountID:    acct.ID,
		Date:         date,
		Description:  tx.Description,
		MerchantName: strings.TrimSpace(tx.Payee),
		CurrencyCode: currency,
		Amount:       amount.Neg().InexactFloat64(),
	}, nil
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
