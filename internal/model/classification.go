// Package model defines the core domain models used throughout the application.
package model

import "time"

// ClassifiedTransaction is a derived copy of a Transaction annotated with
// the gig platform it matched and whether it counts as gig income. It is
// keyed by the source transaction ID; re-classifying overwrites it.
type ClassifiedTransaction struct {
	ClassifiedAt  time.Time
	PlatformLabel *string
	Transaction
	IncomeAmount float64 // abs(Transaction.Amount)
	IsGigIncome  bool
}

// Platform returns the matched platform label or "" when none matched.
func (c *ClassifiedTransaction) Platform() string {
	if c.PlatformLabel == nil {
		return ""
	}
	return *c.PlatformLabel
}
