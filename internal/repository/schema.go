package repository

// Schema definitions for the Harrier database.
// Compatible with both SQLite and PostgreSQL.

const schemaConditions = `
CREATE TABLE IF NOT EXISTS conditions (
    code TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    category TEXT NOT NULL,
    follow_ups TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conditions_category ON conditions(category);
`

const schemaProducts = `
CREATE TABLE IF NOT EXISTS products (
    id TEXT PRIMARY KEY,
    carrier_id TEXT NOT NULL,
    name TEXT NOT NULL,
    kind TEXT NOT NULL,
    term_years INTEGER NOT NULL DEFAULT 0,
    min_issue_age INTEGER NOT NULL DEFAULT 0,
    max_issue_age INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_products_carrier ON products(carrier_id);
`

// product_id and condition_code use '' rather than NULL for the wider
// scopes so the live-uniqueness index can compare them.
const schemaRuleSets = `
CREATE TABLE IF NOT EXISTS rule_sets (
    id TEXT PRIMARY KEY,
    scope TEXT NOT NULL,
    carrier_id TEXT NOT NULL,
    product_id TEXT NOT NULL DEFAULT '',
    condition_code TEXT NOT NULL DEFAULT '',
    name TEXT NOT NULL,
    description TEXT,
    review_status TEXT NOT NULL DEFAULT 'draft',
    active INTEGER NOT NULL DEFAULT 1,
    approved_by TEXT NOT NULL DEFAULT '',
    approved_at TIMESTAMP,
    reject_reason TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rule_sets_carrier ON rule_sets(carrier_id);
CREATE INDEX IF NOT EXISTS idx_rule_sets_status ON rule_sets(review_status);
`

// At most one live (approved and active) rule set may exist per
// (carrier, product, condition) slot. The partial unique index enforces
// the invariant in both SQLite and PostgreSQL.
const schemaRuleSetsLiveIndex = `
CREATE UNIQUE INDEX IF NOT EXISTS idx_rule_sets_live
    ON rule_sets(carrier_id, product_id, condition_code)
    WHERE review_status = 'approved' AND active = 1;
`

const schemaRules = `
CREATE TABLE IF NOT EXISTS rules (
    id TEXT PRIMARY KEY,
    rule_set_id TEXT NOT NULL,
    priority INTEGER NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    age_min INTEGER,
    age_max INTEGER,
    gender TEXT NOT NULL DEFAULT 'any',
    predicate TEXT,
    outcome TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rules_rule_set ON rules(rule_set_id, priority);
`

const schemaPremiumRates = `
CREATE TABLE IF NOT EXISTS premium_rates (
    product_id TEXT NOT NULL,
    gender TEXT NOT NULL,
    tobacco_class TEXT NOT NULL,
    health_class TEXT NOT NULL,
    term_years INTEGER NOT NULL DEFAULT 0,
    age INTEGER NOT NULL,
    face_amount BIGINT NOT NULL,
    monthly_premium REAL NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (product_id, gender, tobacco_class, health_class, term_years, age, face_amount)
);

CREATE INDEX IF NOT EXISTS idx_premium_rates_product ON premium_rates(product_id);
`

const schemaDecisions = `
CREATE TABLE IF NOT EXISTS decisions (
    id TEXT PRIMARY KEY,
    carrier_id TEXT NOT NULL,
    product_id TEXT NOT NULL,
    age INTEGER NOT NULL,
    gender TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    outcome TEXT NOT NULL,
    condition_results TEXT NOT NULL,
    monthly_premium REAL NOT NULL DEFAULT 0,
    premium_status TEXT NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_product ON decisions(carrier_id, product_id);
CREATE INDEX IF NOT EXISTS idx_decisions_timestamp ON decisions(timestamp);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaConditions,
		schemaProducts,
		schemaRuleSets,
		schemaRuleSetsLiveIndex,
		schemaRules,
		schemaPremiumRates,
		schemaDecisions,
	}
}
