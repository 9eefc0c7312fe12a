package model

import (
	"crypto/sha256"
	"fmt"
	"math"
	"time"
)

// Transaction is a bank transaction as normalized from a transaction source.
// Amount keeps the source sign convention: negative amounts are credits
// (money arriving in the account).
type Transaction struct {
	Date         time.Time
	ID           string
	UserID       string
	AccountID    string
	Description  string // Raw transaction description
	MerchantName string // Optional merchant name supplied by the source
	CurrencyCode string
	Amount       float64
}

// IsCredit reports whether the transaction moved money into the account.
func (t *Transaction) IsCredit() bool {
	return t.Amount < 0
}

// MatchText is the text platform keywords are matched against.
func (t *Transaction) MatchText() string {
	if t.MerchantName == "" {
		return t.Description
	}
	return t.Description + " " + t.MerchantName
}

// Validate checks the fields classification depends on.
func (t *Transaction) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("transaction missing ID")
	}
	if t.Date.IsZero() {
		return fmt.Errorf("transaction %s missing date", t.ID)
	}
	if math.IsNaN(t.Amount) || math.IsInf(t.Amount, 0) {
		return fmt.Errorf("transaction %s has non-finite amount", t.ID)
	}
	return nil
}

// GenerateHash creates a fingerprint of the transaction's identifying fields.
func (t *Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%.2f:%s:%s",
		t.Date.Format("2006-01-02"),
		t.Amount,
		t.Description,
		t.AccountID)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
