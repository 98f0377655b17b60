package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence. The evaluation core
// never calls it mid-resolution; rule sets, the condition catalog and the
// premium grid are loaded up front and passed in as immutable snapshots.
type Repository interface {
	// Condition catalog
	SaveCondition(ctx context.Context, cond *HealthCondition) error
	GetCondition(ctx context.Context, code string) (*HealthCondition, error)
	ListConditions(ctx context.Context) ([]*HealthCondition, error)

	// Products
	SaveProduct(ctx context.Context, product *Product) error
	GetProduct(ctx context.Context, productID string) (*Product, error)
	ListProducts(ctx context.Context) ([]*Product, error)

	// Rule sets and rules
	SaveRuleSet(ctx context.Context, rs *RuleSet) error
	GetRuleSet(ctx context.Context, ruleSetID string) (*RuleSet, error)
	ListRuleSets(ctx context.Context) ([]*RuleSet, error)
	ListLiveRuleSets(ctx context.Context) ([]*RuleSet, error)
	ReplaceRules(ctx context.Context, ruleSetID string, rules []*Rule) error

	// UpdateReviewStatus performs the lifecycle transition as a
	// compare-and-set: the row is updated only while its current status
	// equals from. Returns ErrConflict when the precondition fails, so two
	// concurrent approvals cannot both succeed.
	UpdateReviewStatus(ctx context.Context, ruleSetID string, from, to ReviewStatus, approvedBy, rejectReason string, decidedAt time.Time) error

	// Premium rates. ReplacePremiumRates swaps one classification's grid
	// atomically: all cells replaced in a single transaction or none.
	ReplacePremiumRates(ctx context.Context, productID string, class Classification, cells []RateCell) error
	ListPremiumRates(ctx context.Context, productID string) ([]*PremiumRate, error)

	// Decisions
	SaveDecision(ctx context.Context, decision *Decision) error
	GetDecision(ctx context.Context, decisionID string) (*Decision, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
