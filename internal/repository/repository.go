// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-insurance/harrier/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict signals a failed compare-and-set: the row's current
	// review status no longer matches the caller's precondition.
	ErrConflict = errors.New("concurrent modification")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveCondition upserts a health condition definition.
func (r *SQLRepository) SaveCondition(ctx context.Context, cond *domain.HealthCondition) error {
	if cond.Code == "" {
		return fmt.Errorf("%w: condition code is required", ErrInvalidInput)
	}

	followUps, _ := json.Marshal(cond.FollowUps)
	now := time.Now().UTC()

	query := `
		INSERT INTO conditions (code, name, category, follow_ups, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			follow_ups = excluded.follow_ups,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		cond.Code, cond.Name, string(cond.Category), string(followUps), now, now,
	)
	return err
}

// GetCondition retrieves a health condition by code.
func (r *SQLRepository) GetCondition(ctx context.Context, code string) (*domain.HealthCondition, error) {
	query := `
		SELECT code, name, category, follow_ups
		FROM conditions
		WHERE code = ?
	`

	var cond domain.HealthCondition
	var followUps string

	err := r.db.QueryRowContext(ctx, r.rebind(query), code).Scan(
		&cond.Code, &cond.Name, &cond.Category, &followUps,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if followUps != "" {
		json.Unmarshal([]byte(followUps), &cond.FollowUps)
	}

	return &cond, nil
}

// ListConditions retrieves the full condition catalog ordered by code.
func (r *SQLRepository) ListConditions(ctx context.Context) ([]*domain.HealthCondition, error) {
	query := `
		SELECT code, name, category, follow_ups
		FROM conditions
		ORDER BY code
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conditions []*domain.HealthCondition
	for rows.Next() {
		var cond domain.HealthCondition
		var followUps string

		if err := rows.Scan(&cond.Code, &cond.Name, &cond.Category, &followUps); err != nil {
			return nil, err
		}
		if followUps != "" {
			json.Unmarshal([]byte(followUps), &cond.FollowUps)
		}
		conditions = append(conditions, &cond)
	}

	return conditions, rows.Err()
}

// SaveProduct upserts a product.
func (r *SQLRepository) SaveProduct(ctx context.Context, product *domain.Product) error {
	if product.ID == "" || product.CarrierID == "" {
		return fmt.Errorf("%w: product id and carrier id are required", ErrInvalidInput)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO products (id, carrier_id, name, kind, term_years, min_issue_age, max_issue_age, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			carrier_id = excluded.carrier_id,
			name = excluded.name,
			kind = excluded.kind,
			term_years = excluded.term_years,
			min_issue_age = excluded.min_issue_age,
			max_issue_age = excluded.max_issue_age,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		product.ID, product.CarrierID, product.Name, string(product.Kind),
		product.TermYears, product.MinIssueAge, product.MaxIssueAge, now, now,
	)
	return err
}

// GetProduct retrieves a product by ID.
func (r *SQLRepository) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	query := `
		SELECT id, carrier_id, name, kind, term_years, min_issue_age, max_issue_age
		FROM products
		WHERE id = ?
	`

	var product domain.Product
	err := r.db.QueryRowContext(ctx, r.rebind(query), productID).Scan(
		&product.ID, &product.CarrierID, &product.Name, &product.Kind,
		&product.TermYears, &product.MinIssueAge, &product.MaxIssueAge,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &product, nil
}

// ListProducts retrieves all products ordered by carrier then name.
func (r *SQLRepository) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	query := `
		SELECT id, carrier_id, name, kind, term_years, min_issue_age, max_issue_age
		FROM products
		ORDER BY carrier_id, name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*domain.Product
	for rows.Next() {
		var product domain.Product
		if err := rows.Scan(
			&product.ID, &product.CarrierID, &product.Name, &product.Kind,
			&product.TermYears, &product.MinIssueAge, &product.MaxIssueAge,
		); err != nil {
			return nil, err
		}
		products = append(products, &product)
	}

	return products, rows.Err()
}

// SaveRuleSet upserts a rule set's metadata and replaces its rules when
// the caller provides any. Review status is written only on insert; the
// lifecycle transition path is UpdateReviewStatus.
func (r *SQLRepository) SaveRuleSet(ctx context.Context, rs *domain.RuleSet) error {
	if rs.ID == "" || rs.CarrierID == "" {
		return fmt.Errorf("%w: rule set id and carrier id are required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	active := 0
	if rs.Active {
		active = 1
	}
	status := rs.ReviewStatus
	if status == "" {
		status = domain.StatusDraft
	}

	query := `
		INSERT INTO rule_sets (
			id, scope, carrier_id, product_id, condition_code, name, description,
			review_status, active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			scope = excluded.scope,
			carrier_id = excluded.carrier_id,
			product_id = excluded.product_id,
			condition_code = excluded.condition_code,
			name = excluded.name,
			description = excluded.description,
			active = excluded.active,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rs.ID, string(rs.Scope), rs.CarrierID, rs.ProductID, rs.ConditionCode,
		rs.Name, rs.Description, string(status), active, now, now,
	)
	if err != nil {
		return err
	}

	if rs.Rules != nil {
		return r.ReplaceRules(ctx, rs.ID, rs.Rules)
	}
	return nil
}

// GetRuleSet retrieves a rule set with its rules in priority order.
func (r *SQLRepository) GetRuleSet(ctx context.Context, ruleSetID string) (*domain.RuleSet, error) {
	query := `
		SELECT id, scope, carrier_id, product_id, condition_code, name, description,
			   review_status, active, approved_by, approved_at, reject_reason,
			   created_at, updated_at
		FROM rule_sets
		WHERE id = ?
	`

	rs, err := r.scanRuleSet(r.db.QueryRowContext(ctx, r.rebind(query), ruleSetID))
	if err != nil {
		return nil, err
	}

	rules, err := r.listRules(ctx, ruleSetID)
	if err != nil {
		return nil, err
	}
	rs.Rules = rules
	return rs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLRepository) scanRuleSet(row rowScanner) (*domain.RuleSet, error) {
	var rs domain.RuleSet
	var description sql.NullString
	var active int
	var approvedAt sql.NullTime

	err := row.Scan(
		&rs.ID, &rs.Scope, &rs.CarrierID, &rs.ProductID, &rs.ConditionCode,
		&rs.Name, &description, &rs.ReviewStatus, &active,
		&rs.ApprovedBy, &approvedAt, &rs.RejectReason,
		&rs.CreatedAt, &rs.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rs.Description = description.String
	rs.Active = active == 1
	if approvedAt.Valid {
		t := approvedAt.Time
		rs.ApprovedAt = &t
	}
	return &rs, nil
}

// ListRuleSets retrieves all rule sets with their rules.
func (r *SQLRepository) ListRuleSets(ctx context.Context) ([]*domain.RuleSet, error) {
	return r.listRuleSetsWhere(ctx, "")
}

// ListLiveRuleSets retrieves the approved and active rule sets that serve
// resolution traffic.
func (r *SQLRepository) ListLiveRuleSets(ctx context.Context) ([]*domain.RuleSet, error) {
	return r.listRuleSetsWhere(ctx, "WHERE review_status = 'approved' AND active = 1")
}

func (r *SQLRepository) listRuleSetsWhere(ctx context.Context, where string) ([]*domain.RuleSet, error) {
	query := fmt.Sprintf(`
		SELECT id, scope, carrier_id, product_id, condition_code, name, description,
			   review_status, active, approved_by, approved_at, reject_reason,
			   created_at, updated_at
		FROM rule_sets
		%s
		ORDER BY carrier_id, product_id, condition_code
	`, where)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sets []*domain.RuleSet
	for rows.Next() {
		rs, err := r.scanRuleSet(rows)
		if err != nil {
			return nil, err
		}
		sets = append(sets, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, rs := range sets {
		rules, err := r.listRules(ctx, rs.ID)
		if err != nil {
			return nil, err
		}
		rs.Rules = rules
	}
	return sets, nil
}

func (r *SQLRepository) listRules(ctx context.Context, ruleSetID string) ([]*domain.Rule, error) {
	query := `
		SELECT id, rule_set_id, priority, name, description, age_min, age_max,
			   gender, predicate, outcome
		FROM rules
		WHERE rule_set_id = ?
		ORDER BY priority, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), ruleSetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.Rule
	for rows.Next() {
		var rule domain.Rule
		var description sql.NullString
		var ageMin, ageMax sql.NullInt64
		var predicate sql.NullString
		var outcome string

		if err := rows.Scan(
			&rule.ID, &rule.RuleSetID, &rule.Priority, &rule.Name, &description,
			&ageMin, &ageMax, &rule.Gender, &predicate, &outcome,
		); err != nil {
			return nil, err
		}

		rule.Description = description.String
		if ageMin.Valid {
			v := int(ageMin.Int64)
			rule.AgeMin = &v
		}
		if ageMax.Valid {
			v := int(ageMax.Int64)
			rule.AgeMax = &v
		}
		if predicate.Valid && predicate.String != "" {
			if err := json.Unmarshal([]byte(predicate.String), &rule.Predicate); err != nil {
				return nil, fmt.Errorf("failed to parse predicate for rule %s: %w", rule.ID, err)
			}
		}
		if err := json.Unmarshal([]byte(outcome), &rule.Outcome); err != nil {
			return nil, fmt.Errorf("failed to parse outcome for rule %s: %w", rule.ID, err)
		}
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// ReplaceRules swaps a rule set's rules in one transaction.
func (r *SQLRepository) ReplaceRules(ctx context.Context, ruleSetID string, rules []*domain.Rule) error {
	if ruleSetID == "" {
		return fmt.Errorf("%w: rule set id is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM rules WHERE rule_set_id = ?`), ruleSetID); err != nil {
		return err
	}

	now := time.Now().UTC()
	insert := r.rebind(`
		INSERT INTO rules (
			id, rule_set_id, priority, name, description, age_min, age_max,
			gender, predicate, outcome, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	for _, rule := range rules {
		var predicate any
		if rule.Predicate != nil {
			encoded, err := json.Marshal(rule.Predicate)
			if err != nil {
				return fmt.Errorf("failed to encode predicate for rule %s: %w", rule.ID, err)
			}
			predicate = string(encoded)
		}
		outcome, err := json.Marshal(rule.Outcome)
		if err != nil {
			return fmt.Errorf("failed to encode outcome for rule %s: %w", rule.ID, err)
		}
		gender := rule.Gender
		if gender == "" {
			gender = domain.GenderAny
		}

		if _, err := tx.ExecContext(ctx, insert,
			rule.ID, ruleSetID, rule.Priority, rule.Name, rule.Description,
			rule.AgeMin, rule.AgeMax, string(gender), predicate, string(outcome),
			now, now,
		); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx,
		r.rebind(`UPDATE rule_sets SET updated_at = ? WHERE id = ?`), now, ruleSetID,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// UpdateReviewStatus performs a lifecycle transition as a compare-and-set.
// The update applies only while the row still holds the expected status;
// zero rows affected means a concurrent writer won and the caller gets
// ErrConflict (or ErrNotFound when the rule set does not exist at all).
func (r *SQLRepository) UpdateReviewStatus(ctx context.Context, ruleSetID string, from, to domain.ReviewStatus, approvedBy, rejectReason string, decidedAt time.Time) error {
	var approvedAt any
	if to == domain.StatusApproved {
		approvedAt = decidedAt
	}

	query := `
		UPDATE rule_sets
		SET review_status = ?, approved_by = ?, approved_at = ?, reject_reason = ?, updated_at = ?
		WHERE id = ? AND review_status = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		string(to), approvedBy, approvedAt, rejectReason, decidedAt,
		ruleSetID, string(from),
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := r.GetRuleSet(ctx, ruleSetID); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

// ReplacePremiumRates swaps one classification's grid atomically: the
// transaction deletes the old cells and inserts the batch, so a failed
// upsert never leaves a partially saved grid.
func (r *SQLRepository) ReplacePremiumRates(ctx context.Context, productID string, class domain.Classification, cells []domain.RateCell) error {
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	del := r.rebind(`
		DELETE FROM premium_rates
		WHERE product_id = ? AND gender = ? AND tobacco_class = ? AND health_class = ? AND term_years = ?
	`)
	if _, err := tx.ExecContext(ctx, del,
		productID, string(class.Gender), string(class.TobaccoClass), class.HealthClass, class.TermYears,
	); err != nil {
		return err
	}

	now := time.Now().UTC()
	insert := r.rebind(`
		INSERT INTO premium_rates (
			product_id, gender, tobacco_class, health_class, term_years,
			age, face_amount, monthly_premium, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	for _, cell := range cells {
		if _, err := tx.ExecContext(ctx, insert,
			productID, string(class.Gender), string(class.TobaccoClass), class.HealthClass, class.TermYears,
			cell.Age, cell.FaceAmount, cell.MonthlyPremium, now,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListPremiumRates retrieves every populated cell for a product.
func (r *SQLRepository) ListPremiumRates(ctx context.Context, productID string) ([]*domain.PremiumRate, error) {
	query := `
		SELECT product_id, gender, tobacco_class, health_class, term_years,
			   age, face_amount, monthly_premium
		FROM premium_rates
		WHERE product_id = ?
		ORDER BY gender, tobacco_class, health_class, term_years, age, face_amount
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rates []*domain.PremiumRate
	for rows.Next() {
		var rate domain.PremiumRate
		if err := rows.Scan(
			&rate.ProductID,
			&rate.Classification.Gender, &rate.Classification.TobaccoClass,
			&rate.Classification.HealthClass, &rate.Classification.TermYears,
			&rate.Age, &rate.FaceAmount, &rate.MonthlyPremium,
		); err != nil {
			return nil, err
		}
		rates = append(rates, &rate)
	}

	return rates, rows.Err()
}

// SaveDecision stores an underwriting decision record.
func (r *SQLRepository) SaveDecision(ctx context.Context, decision *domain.Decision) error {
	if decision.ID == "" {
		return fmt.Errorf("%w: decision id is required", ErrInvalidInput)
	}

	outcome, _ := json.Marshal(decision.Outcome)
	conditionResults, _ := json.Marshal(decision.ConditionResults)
	metadata, _ := json.Marshal(decision.Metadata)

	query := `
		INSERT INTO decisions (
			id, carrier_id, product_id, age, gender, timestamp,
			outcome, condition_results, monthly_premium, premium_status, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		decision.ID, decision.CarrierID, decision.ProductID,
		decision.Age, string(decision.Gender), decision.Timestamp,
		string(outcome), string(conditionResults),
		decision.MonthlyPremium, decision.PremiumStatus, string(metadata),
	)
	return err
}

// GetDecision retrieves a stored decision by ID.
func (r *SQLRepository) GetDecision(ctx context.Context, decisionID string) (*domain.Decision, error) {
	query := `
		SELECT id, carrier_id, product_id, age, gender, timestamp,
			   outcome, condition_results, monthly_premium, premium_status, metadata
		FROM decisions
		WHERE id = ?
	`

	var decision domain.Decision
	var outcome, conditionResults, metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), decisionID).Scan(
		&decision.ID, &decision.CarrierID, &decision.ProductID,
		&decision.Age, &decision.Gender, &decision.Timestamp,
		&outcome, &conditionResults,
		&decision.MonthlyPremium, &decision.PremiumStatus, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(outcome), &decision.Outcome)
	json.Unmarshal([]byte(conditionResults), &decision.ConditionResults)
	json.Unmarshal([]byte(metadata), &decision.Metadata)

	return &decision, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
