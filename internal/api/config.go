package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-insurance/harrier/internal/cache"
	"github.com/opensource-insurance/harrier/internal/coverage"
	"github.com/opensource-insurance/harrier/internal/domain"
	"github.com/opensource-insurance/harrier/internal/generator"
	"github.com/opensource-insurance/harrier/internal/premium"
)

// ============================================================================
// CONDITION CATALOG
// ============================================================================

// ListConditions returns the full condition catalog.
func (h *Handler) ListConditions(w http.ResponseWriter, r *http.Request) {
	conditions, err := h.repo.ListConditions(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conditions": conditions,
		"count":      len(conditions),
	})
}

// GetCondition retrieves a condition by code.
func (h *Handler) GetCondition(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	cond, err := h.repo.GetCondition(r.Context(), code)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, cond)
}

// CreateCondition creates or updates a health condition definition.
func (h *Handler) CreateCondition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var cond domain.HealthCondition
	if err := json.NewDecoder(r.Body).Decode(&cond); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if cond.Code == "" || cond.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "code and name are required",
		})
		return
	}
	for _, q := range cond.FollowUps {
		if q.Key == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "follow-up question key cannot be empty",
			})
			return
		}
		if domain.IsIntrinsicField(q.Key) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "follow-up key '" + q.Key + "' shadows an intrinsic field",
			})
			return
		}
	}

	if err := h.repo.SaveCondition(ctx, &cond); err != nil {
		writeDomainError(w, err)
		return
	}

	h.publishConfigEvent(ctx, domain.TopicCatalogUpdated, map[string]string{"code": cond.Code})

	slog.Info("condition saved", "code", cond.Code, "name", cond.Name)
	writeJSON(w, http.StatusCreated, &cond)
}

// ============================================================================
// PRODUCT CATALOG
// ============================================================================

// ListProducts returns all products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.repo.ListProducts(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"products": products,
		"count":    len(products),
	})
}

// CreateProduct creates or updates a product definition.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var product domain.Product
	if err := json.NewDecoder(r.Body).Decode(&product); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if product.ID == "" || product.CarrierID == "" || product.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, carrierId and name are required",
		})
		return
	}
	if product.Kind != domain.ProductTerm && product.Kind != domain.ProductWholeLife {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "kind must be term or whole_life",
		})
		return
	}
	if product.Kind == domain.ProductTerm && product.TermYears <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "term products require termYears",
		})
		return
	}
	if product.MinIssueAge < 0 || product.MaxIssueAge < product.MinIssueAge {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "issue age range is invalid",
		})
		return
	}

	if err := h.repo.SaveProduct(ctx, &product); err != nil {
		writeDomainError(w, err)
		return
	}

	slog.Info("product saved", "id", product.ID, "carrier_id", product.CarrierID)
	writeJSON(w, http.StatusCreated, &product)
}

// ============================================================================
// RULE SET MANAGEMENT
// ============================================================================

// ListRuleSets returns all rule sets.
func (h *Handler) ListRuleSets(w http.ResponseWriter, r *http.Request) {
	sets, err := h.repo.ListRuleSets(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ruleSets": sets,
		"count":    len(sets),
	})
}

// GetRuleSet retrieves a rule set with its rules.
func (h *Handler) GetRuleSet(w http.ResponseWriter, r *http.Request) {
	rs, err := h.repo.GetRuleSet(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rs)
}

// CreateRuleSet creates a rule set in draft state. Predicates are compiled
// against the condition catalog before anything is written.
func (h *Handler) CreateRuleSet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var rs domain.RuleSet
	if err := json.NewDecoder(r.Body).Decode(&rs); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if rs.ID == "" {
		rs.ID = uuid.New().String()
	}
	for _, rule := range rs.Rules {
		if rule.ID == "" {
			rule.ID = uuid.New().String()
		}
		rule.RuleSetID = rs.ID
	}

	// New rule sets always start in draft; review status moves only through
	// the lifecycle endpoints.
	rs.ReviewStatus = domain.StatusDraft
	rs.Active = true
	now := time.Now().UTC()
	rs.CreatedAt = now
	rs.UpdatedAt = now

	catalog, err := h.catalog(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.compiler.ValidateRuleSet(&rs, catalog); err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.repo.SaveRuleSet(ctx, &rs); err != nil {
		writeDomainError(w, err)
		return
	}

	slog.Info("rule set created",
		"rule_set_id", rs.ID,
		"scope", rs.Scope,
		"carrier_id", rs.CarrierID,
		"rule_count", len(rs.Rules),
	)
	writeJSON(w, http.StatusCreated, &rs)
}

// ReplaceRules replaces the rules of an existing rule set. Editing an
// approved set does not revert it; the gap is logged so reviewers can see
// live configuration changed underneath its approval.
func (h *Handler) ReplaceRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleSetID := chi.URLParam(r, "id")

	var rules []*domain.Rule
	if err := json.NewDecoder(r.Body).Decode(&rules); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	rs, err := h.repo.GetRuleSet(ctx, ruleSetID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	for _, rule := range rules {
		if rule.ID == "" {
			rule.ID = uuid.New().String()
		}
		rule.RuleSetID = rs.ID
	}

	catalog, err := h.catalog(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	candidate := *rs
	candidate.Rules = rules
	if err := h.compiler.ValidateRuleSet(&candidate, catalog); err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.repo.ReplaceRules(ctx, rs.ID, rules); err != nil {
		writeDomainError(w, err)
		return
	}

	if rs.ReviewStatus == domain.StatusApproved {
		slog.Warn("rules replaced in approved rule set",
			"rule_set_id", rs.ID,
			"rule_count", len(rules),
		)
	}
	if rs.Live() {
		h.publishConfigEvent(ctx, domain.TopicRuleSetUpdated, map[string]string{"ruleSetId": rs.ID})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ruleSetId": rs.ID,
		"count":     len(rules),
	})
}

// SubmitRuleSet moves a draft rule set to pending review.
func (h *Handler) SubmitRuleSet(w http.ResponseWriter, r *http.Request) {
	rs, err := h.lifecycle.Submit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

// ApproveRequest is the request body for POST /rulesets/{id}/approve.
type ApproveRequest struct {
	ApprovedBy string `json:"approvedBy"`
}

// ApproveRuleSet approves a pending rule set.
func (h *Handler) ApproveRuleSet(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	rs, err := h.lifecycle.Approve(r.Context(), chi.URLParam(r, "id"), req.ApprovedBy)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

// RejectRequest is the request body for POST /rulesets/{id}/reject.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// RejectRuleSet rejects a pending rule set with a mandatory reason.
func (h *Handler) RejectRuleSet(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	rs, err := h.lifecycle.Reject(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

// RevertRuleSet returns an approved or rejected rule set to draft.
func (h *Handler) RevertRuleSet(w http.ResponseWriter, r *http.Request) {
	rs, err := h.lifecycle.RevertToDraft(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

// ReloadRuleSets reloads the condition catalog and live rule sets from the
// repository into the resolver engine.
func (h *Handler) ReloadRuleSets(w http.ResponseWriter, r *http.Request) {
	if h.reloader == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "reload not available",
		})
		return
	}

	if err := h.reloader.ReloadRuleSets(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "rule sets reloaded",
		"ruleSets": h.engine.RuleSetsCount(),
	})
}

// ============================================================================
// COVERAGE REPORTING
// ============================================================================

// GetCoverage returns the coverage report across all carriers and products.
func (h *Handler) GetCoverage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.cache != nil {
		if report, err := cache.GetCoverageReport(ctx, h.cache); err == nil && report != nil {
			writeJSON(w, http.StatusOK, report)
			return
		}
	}

	report, err := h.coverageReport(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if h.cache != nil {
		_ = cache.SetCoverageReport(ctx, h.cache, report, time.Minute)
	}

	writeJSON(w, http.StatusOK, report)
}

// GetCarrierCoverage returns the coverage view for one carrier.
func (h *Handler) GetCarrierCoverage(w http.ResponseWriter, r *http.Request) {
	carrierID := chi.URLParam(r, "carrierID")

	report, err := h.coverageReport(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var products []domain.ProductCoverage
	for _, p := range report.Products {
		if p.CarrierID == carrierID {
			products = append(products, p)
		}
	}
	// Carriers and Products are derived from the same coverage keys, so a
	// carrier absent from the stats map has no product entries either.
	stats, ok := report.Carriers[carrierID]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no coverage configured for carrier",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"carrierId":       carrierID,
		"totalConditions": report.TotalConditions,
		"stats":           stats,
		"products":        products,
	})
}

func (h *Handler) coverageReport(ctx context.Context) (*domain.CoverageReport, error) {
	sets, err := h.repo.ListLiveRuleSets(ctx)
	if err != nil {
		return nil, err
	}
	catalog, err := h.catalog(ctx)
	if err != nil {
		return nil, err
	}
	return coverage.Report(coverage.Compute(sets), catalog), nil
}

// catalog builds a fresh catalog from the repository. Save-time validation
// must see conditions created since the engine's last reload, so it cannot
// use the engine's evaluation snapshot.
func (h *Handler) catalog(ctx context.Context) (*domain.Catalog, error) {
	conditions, err := h.repo.ListConditions(ctx)
	if err != nil {
		return nil, err
	}
	return domain.NewCatalog(conditions), nil
}

// ============================================================================
// PREMIUM RATES
// ============================================================================

// RatesRequest is the request body for PUT /products/{id}/rates.
type RatesRequest struct {
	Classification domain.Classification `json:"classification"`
	Cells          []domain.RateCell     `json:"cells"`
}

// ReplaceRates replaces one classification's premium grid. The batch is
// validated up front and written in a single transaction.
func (h *Handler) ReplaceRates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID := chi.URLParam(r, "id")

	var req RatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if _, err := h.repo.GetProduct(ctx, productID); err != nil {
		writeDomainError(w, err)
		return
	}

	if err := premium.ValidateBatch(req.Cells); err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.repo.ReplacePremiumRates(ctx, productID, req.Classification, req.Cells); err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.rates.Replace(productID, req.Classification, req.Cells); err != nil {
		writeDomainError(w, err)
		return
	}

	h.publishConfigEvent(ctx, domain.TopicRatesUpdated, map[string]string{"productId": productID})

	slog.Info("premium rates replaced",
		"product_id", productID,
		"classification", req.Classification.String(),
		"cell_count", len(req.Cells),
	)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"productId": productID,
		"count":     len(req.Cells),
	})
}

// LookupPremium resolves a monthly premium for one grid point.
// Out-of-range and unresolvable lookups are reported, never extrapolated.
func (h *Handler) LookupPremium(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")
	q := r.URL.Query()

	age, err := strconv.Atoi(q.Get("age"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "age query parameter is required",
		})
		return
	}
	face, err := strconv.ParseInt(q.Get("faceAmount"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "faceAmount query parameter is required",
		})
		return
	}
	termYears, _ := strconv.Atoi(q.Get("termYears"))

	tobacco := domain.TobaccoClass(q.Get("tobacco"))
	if tobacco == "" {
		tobacco = domain.TobaccoNone
	}
	class := domain.Classification{
		Gender:       domain.Gender(q.Get("gender")),
		TobaccoClass: tobacco,
		HealthClass:  q.Get("healthClass"),
		TermYears:    termYears,
	}

	monthly, err := h.rates.Lookup(productID, class, age, face)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"productId": productID,
			"status":    domain.PremiumNotAvailable,
			"detail":    err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"productId":      productID,
		"status":         domain.PremiumPriced,
		"monthlyPremium": monthly,
	})
}

// ReloadRates rebuilds every premium grid from the repository.
func (h *Handler) ReloadRates(w http.ResponseWriter, r *http.Request) {
	if h.reloader == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "reload not available",
		})
		return
	}

	if err := h.reloader.ReloadRates(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":   "premium rates reloaded",
		"rateGrids": h.rates.GridCount(),
	})
}

// ============================================================================
// RULE GENERATION
// ============================================================================

// GenerateKnockoutsRequest is the request body for POST /generate/knockouts.
type GenerateKnockoutsRequest struct {
	CarrierID        string             `json:"carrierId"`
	NumberThresholds map[string]float64 `json:"numberThresholds,omitempty"`
	FlagKnockouts    bool               `json:"flagKnockouts"`
	DryRun           bool               `json:"dryRun,omitempty"`
}

// GenerateKnockouts generates draft knockout rule sets from the condition
// catalog. Output is deterministic, so re-running is an idempotent upsert.
func (h *Handler) GenerateKnockouts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req GenerateKnockoutsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	conditions, err := h.repo.ListConditions(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	sets, err := generator.GenerateKnockoutRuleSets(conditions, generator.KnockoutStrategy{
		CarrierID:        req.CarrierID,
		NumberThresholds: req.NumberThresholds,
		FlagKnockouts:    req.FlagKnockouts,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if !req.DryRun {
		for _, rs := range sets {
			if err := h.repo.SaveRuleSet(ctx, rs); err != nil {
				writeDomainError(w, err)
				return
			}
		}
	}

	slog.Info("knockout rule sets generated",
		"carrier_id", req.CarrierID,
		"count", len(sets),
		"dry_run", req.DryRun,
	)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"ruleSets": sets,
		"count":    len(sets),
		"dryRun":   req.DryRun,
	})
}

// GenerateAgeBandsRequest is the request body for POST /generate/age-bands.
type GenerateAgeBandsRequest struct {
	CarrierID   string             `json:"carrierId"`
	Eligibility domain.Eligibility `json:"eligibility,omitempty"`
	DryRun      bool               `json:"dryRun,omitempty"`
}

// GenerateAgeBands generates draft product-scoped rule sets that enforce
// each product's issue age window.
func (h *Handler) GenerateAgeBands(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req GenerateAgeBandsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	products, err := h.repo.ListProducts(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	sets, err := generator.GenerateAgeRuleSets(products, generator.AgeStrategy{
		CarrierID:   req.CarrierID,
		Eligibility: req.Eligibility,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if !req.DryRun {
		for _, rs := range sets {
			if err := h.repo.SaveRuleSet(ctx, rs); err != nil {
				writeDomainError(w, err)
				return
			}
		}
	}

	slog.Info("age band rule sets generated",
		"carrier_id", req.CarrierID,
		"count", len(sets),
		"dry_run", req.DryRun,
	)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"ruleSets": sets,
		"count":    len(sets),
		"dryRun":   req.DryRun,
	})
}

func (h *Handler) publishConfigEvent(ctx context.Context, topic string, payload map[string]string) {
	if h.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := h.bus.Publish(ctx, topic, data); err != nil {
		slog.Warn("failed to publish configuration event",
			"topic", topic,
			"error", err,
		)
	}
}
