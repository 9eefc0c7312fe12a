// Package classifier decides which bank transactions count as gig income.
package classifier

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/Veraticus/gigproof/internal/common"
	"github.com/Veraticus/gigproof/internal/model"
	"github.com/Veraticus/gigproof/internal/platform"
)

// Environment selects the classification policy.
type Environment string

// Supported environments.
const (
	EnvironmentSandbox    Environment = "sandbox"
	EnvironmentProduction Environment = "production"
)

// ParseEnvironment maps a configured environment name to an Environment.
// Plaid's "development" environment carries synthetic data and classifies
// like sandbox.
func ParseEnvironment(name string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sandbox", "development", "test":
		return EnvironmentSandbox, nil
	case "production":
		return EnvironmentProduction, nil
	default:
		return "", fmt.Errorf("%w: unknown environment %q", common.ErrInvalidConfig, name)
	}
}

// Strategy is a gig-income policy over the two facts classification uses.
type Strategy interface {
	IsGigIncome(isCredit, matched bool) bool
	Name() string
}

// SandboxStrategy counts any matched or credited transaction so synthetic
// sandbox data still yields income records.
type SandboxStrategy struct{}

// IsGigIncome implements Strategy.
func (SandboxStrategy) IsGigIncome(isCredit, matched bool) bool {
	return matched || isCredit
}

// Name implements Strategy.
func (SandboxStrategy) Name() string { return string(EnvironmentSandbox) }

// ProductionStrategy counts only credits from a recognized platform.
type ProductionStrategy struct{}

// IsGigIncome implements Strategy.
func (ProductionStrategy) IsGigIncome(isCredit, matched bool) bool {
	return matched && isCredit
}

// Name implements Strategy.
func (ProductionStrategy) Name() string { return string(EnvironmentProduction) }

// StrategyFor returns the strategy for env.
func StrategyFor(env Environment) Strategy {
	if env == EnvironmentProduction {
		return ProductionStrategy{}
	}
	return SandboxStrategy{}
}

// Classify reports whether tx counts as gig income in env given the
// platform label the matcher produced (nil when nothing matched).
func Classify(tx model.Transaction, platformLabel *string, env Environment) bool {
	return StrategyFor(env).IsGigIncome(tx.IsCredit(), platformLabel != nil)
}

// Classifier annotates transactions with platform labels and income flags.
type Classifier struct {
	matcher  *platform.Matcher
	strategy Strategy
	clock    common.Clock
	logger   *slog.Logger
}

// New creates a classifier for env over the given matcher.
func New(matcher *platform.Matcher, env Environment, clock common.Clock) *Classifier {
	if clock == nil {
		clock = common.SystemClock{}
	}
	return &Classifier{
		matcher:  matcher,
		strategy: StrategyFor(env),
		clock:    clock,
		logger:   slog.Default().With("component", "classifier", "strategy", StrategyFor(env).Name()),
	}
}

// Result is the output of a batch classification.
type Result struct {
	Classified []model.ClassifiedTransaction
	Skipped    int
}

// GigIncomeCount returns how many classified transactions are gig income.
func (r Result) GigIncomeCount() int {
	n := 0
	for _, c := range r.Classified {
		if c.IsGigIncome {
			n++
		}
	}
	return n
}

// ClassifyOne annotates a single transaction. The source is not modified.
func (c *Classifier) ClassifyOne(tx model.Transaction) (model.ClassifiedTransaction, error) {
	if err := tx.Validate(); err != nil {
		return model.ClassifiedTransaction{}, err
	}

	label := c.matcher.MatchTransaction(tx)

	return model.ClassifiedTransaction{
		Transaction:   tx,
		PlatformLabel: label,
		IsGigIncome:   c.strategy.IsGigIncome(tx.IsCredit(), label != nil),
		IncomeAmount:  math.Abs(tx.Amount),
		ClassifiedAt:  c.clock.Now(),
	}, nil
}

// ClassifyAll annotates a batch. Malformed transactions are logged and
// skipped so one bad record does not abort a sync.
func (c *Classifier) ClassifyAll(txs []model.Transaction) Result {
	result := Result{Classified: make([]model.ClassifiedTransaction, 0, len(txs))}

	for _, tx := range txs {
		classified, err := c.ClassifyOne(tx)
		if err != nil {
			c.logger.Warn("Skipping malformed transaction", "transaction_id", tx.ID, "error", err)
			result.Skipped++
			continue
		}
		result.Classified = append(result.Classified, classified)
	}

	c.logger.Debug("Classified transactions",
		"total", len(txs),
		"gig_income", result.GigIncomeCount(),
		"skipped", result.Skipped)

	return result
}
