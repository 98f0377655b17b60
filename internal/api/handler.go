package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-insurance/harrier/internal/cache"
	"github.com/opensource-insurance/harrier/internal/domain"
	"github.com/opensource-insurance/harrier/internal/lifecycle"
	"github.com/opensource-insurance/harrier/internal/predicate"
	"github.com/opensource-insurance/harrier/internal/premium"
	"github.com/opensource-insurance/harrier/internal/repository"
	"github.com/opensource-insurance/harrier/internal/resolver"
)

// Reloader re-reads configuration from the repository into the in-memory
// engine and premium store. Implemented by the worker.
type Reloader interface {
	ReloadRuleSets(ctx context.Context) error
	ReloadRates(ctx context.Context) error
}

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	engine    *resolver.Engine
	rates     *premium.Store
	lifecycle *lifecycle.Manager
	compiler  *predicate.Compiler
	reloader  Reloader
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cacheStore domain.Cache, bus domain.EventBus, engine *resolver.Engine, rates *premium.Store, manager *lifecycle.Manager, compiler *predicate.Compiler, reloader Reloader, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cacheStore,
		bus:       bus,
		engine:    engine,
		rates:     rates,
		lifecycle: manager,
		compiler:  compiler,
		reloader:  reloader,
		version:   version,
	}
}

// ApplicantInfo is the applicant portion of an underwriting request.
type ApplicantInfo struct {
	Age     int                       `json:"age"`
	Gender  domain.Gender             `json:"gender"`
	Tobacco domain.TobaccoClass       `json:"tobacco,omitempty"`
	Answers map[string]map[string]any `json:"answers,omitempty"`
}

// UnderwriteRequest is the request body for POST /underwrite.
type UnderwriteRequest struct {
	Applicant  ApplicantInfo `json:"applicant"`
	Target     domain.Target `json:"target"`
	FaceAmount int64         `json:"faceAmount,omitempty"`
}

// Underwrite handles POST /underwrite requests.
func (h *Handler) Underwrite(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	traceID := GetTraceID(ctx)

	var req UnderwriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Applicant.Age <= 0 || req.Applicant.Age > 120 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "applicant.age must be between 1 and 120",
		})
		return
	}
	if req.Applicant.Gender != domain.GenderMale && req.Applicant.Gender != domain.GenderFemale {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "applicant.gender must be male or female",
		})
		return
	}
	if req.Target.CarrierID == "" || req.Target.ProductID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "target.carrierId and target.productId are required",
		})
		return
	}

	// The product record supplies the term length for premium classification.
	var product *domain.Product
	if h.repo != nil {
		var err error
		product, err = h.repo.GetProduct(ctx, req.Target.ProductID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				writeJSON(w, http.StatusNotFound, map[string]string{
					"error": "product not found",
				})
				return
			}
			slog.Error("failed to load product", "product_id", req.Target.ProductID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to load product",
			})
			return
		}
	}

	profile := &domain.ApplicantProfile{
		Age:     req.Applicant.Age,
		Gender:  req.Applicant.Gender,
		Answers: req.Applicant.Answers,
	}

	resolveStart := time.Now()
	outcome, results, err := h.engine.Resolve(ctx, profile, req.Target)
	if err != nil {
		slog.Error("resolution failed",
			"carrier_id", req.Target.CarrierID,
			"product_id", req.Target.ProductID,
			"trace_id", traceID,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "resolution failed",
		})
		return
	}
	resolveMs := time.Since(resolveStart).Milliseconds()

	// Premium pricing runs only when the aggregate outcome carries a health
	// class and a face amount was requested. Declines are never priced.
	premiumStart := time.Now()
	premiumStatus := domain.PremiumNotApplicable
	var monthlyPremium float64

	if outcome.Eligibility != domain.EligibilityDecline && outcome.HealthClass != "" && req.FaceAmount > 0 {
		tobacco := req.Applicant.Tobacco
		if tobacco == "" {
			tobacco = domain.TobaccoNone
		}
		termYears := 0
		if product != nil {
			termYears = product.TermYears
		}
		class := domain.Classification{
			Gender:       req.Applicant.Gender,
			TobaccoClass: tobacco,
			HealthClass:  outcome.HealthClass,
			TermYears:    termYears,
		}

		quoted, err := h.rates.Quote(req.Target.ProductID, class, req.Applicant.Age, req.FaceAmount, outcome)
		switch {
		case err == nil:
			monthlyPremium = quoted
			premiumStatus = domain.PremiumPriced
		default:
			// Out-of-range and missing-cell lookups are presented as
			// unavailable, never substituted with an extrapolation.
			premiumStatus = domain.PremiumNotAvailable
			slog.Info("premium not available",
				"product_id", req.Target.ProductID,
				"classification", class.String(),
				"error", err,
			)
		}
	}
	premiumMs := time.Since(premiumStart).Milliseconds()

	decision := &domain.Decision{
		ID:               uuid.New().String(),
		CarrierID:        req.Target.CarrierID,
		ProductID:        req.Target.ProductID,
		Age:              req.Applicant.Age,
		Gender:           req.Applicant.Gender,
		Timestamp:        time.Now().UTC(),
		Outcome:          *outcome,
		ConditionResults: results,
		MonthlyPremium:   monthlyPremium,
		PremiumStatus:    premiumStatus,
		Metadata: domain.DecisionMetadata{
			TraceID:             traceID,
			ResolveMs:           resolveMs,
			PremiumMs:           premiumMs,
			TotalMs:             time.Since(start).Milliseconds(),
			ConditionsEvaluated: len(results),
			EngineVersion:       h.version,
		},
	}

	if h.repo != nil {
		if err := h.repo.SaveDecision(ctx, decision); err != nil {
			slog.Error("failed to save decision", "decision_id", decision.ID, "error", err)
		}
	}
	if h.cache != nil {
		_ = cache.SetDecision(ctx, h.cache, decision, 10*time.Minute)
	}

	h.publishDecision(ctx, decision)

	writeJSON(w, http.StatusOK, decision)
}

// publishDecision emits the decision event, and a referral event when the
// aggregate outcome calls for manual review.
func (h *Handler) publishDecision(ctx context.Context, decision *domain.Decision) {
	if h.bus == nil {
		return
	}

	payload, err := json.Marshal(decision)
	if err != nil {
		return
	}

	if err := h.bus.Publish(ctx, domain.TopicDecision, payload); err != nil {
		slog.Warn("failed to publish decision event",
			"decision_id", decision.ID,
			"error", err,
		)
	}

	if decision.Outcome.Eligibility == domain.EligibilityRefer {
		if err := h.bus.Publish(ctx, domain.TopicReferral, payload); err != nil {
			slog.Warn("failed to publish referral event",
				"decision_id", decision.ID,
				"error", err,
			)
		}
	}
}

// GetDecision retrieves a stored decision by ID.
func (h *Handler) GetDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	decisionID := chi.URLParam(r, "id")

	if decisionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "decision id is required",
		})
		return
	}

	if h.cache != nil {
		if decision, err := cache.GetDecision(ctx, h.cache, decisionID); err == nil && decision != nil {
			writeJSON(w, http.StatusOK, decision)
			return
		}
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	decision, err := h.repo.GetDecision(ctx, decisionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "decision not found",
			})
			return
		}
		slog.Error("failed to get decision", "id", decisionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get decision",
		})
		return
	}

	if h.cache != nil {
		_ = cache.SetDecision(ctx, h.cache, decision, 10*time.Minute)
	}

	writeJSON(w, http.StatusOK, decision)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ready":     true,
		"ruleSets":  h.engine.RuleSetsCount(),
		"rateGrids": h.rates.GridCount(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeDomainError maps repository sentinels and domain error types onto
// HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	var configErr *domain.ConfigurationError
	var validationErr *domain.ValidationError
	var stateErr *domain.InvalidStateError

	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, repository.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, repository.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.As(err, &stateErr):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.As(err, &configErr), errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
