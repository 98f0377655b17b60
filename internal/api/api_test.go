package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/opensource-insurance/harrier/internal/bus"
	"github.com/opensource-insurance/harrier/internal/domain"
	"github.com/opensource-insurance/harrier/internal/lifecycle"
	"github.com/opensource-insurance/harrier/internal/predicate"
	"github.com/opensource-insurance/harrier/internal/premium"
	"github.com/opensource-insurance/harrier/internal/repository"
	"github.com/opensource-insurance/harrier/internal/resolver"
	"github.com/opensource-insurance/harrier/internal/worker"
)

// createTestServer wires a server over a temp sqlite repository, a channel
// bus and real engines.
func createTestServer(t *testing.T) *Server {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "harrier-api-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	compiler, err := predicate.NewCompiler()
	if err != nil {
		t.Fatalf("failed to create compiler: %v", err)
	}
	engine := resolver.NewEngine(compiler)
	rates := premium.NewStore()

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager := lifecycle.NewManager(repo, eventBus, logger)
	reloader := worker.NewWorker(nil, repo, engine, rates, nil)

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	return NewServer(cfg, repo, nil, eventBus, engine, rates, manager, compiler, reloader, "test-v1")
}

func doJSON(t *testing.T, server *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	} else {
		buf.WriteString("{}")
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func seedWorkflow(t *testing.T, server *Server) {
	t.Helper()

	rr := doJSON(t, server, http.MethodPost, "/conditions", &domain.HealthCondition{
		Code:     "diabetes_type2",
		Name:     "Type 2 Diabetes",
		Category: domain.CategoryMetabolic,
		FollowUps: []domain.FollowUpQuestion{
			{Key: "a1c", Prompt: "Most recent A1C", Type: domain.FieldNumber, Required: true},
			{Key: "insulin", Prompt: "Currently on insulin", Type: domain.FieldFlag},
		},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("failed to create condition: %d %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodPost, "/products", &domain.Product{
		ID:          "prod-term-20",
		CarrierID:   "carrier-001",
		Name:        "Level Term 20",
		Kind:        domain.ProductTerm,
		TermYears:   20,
		MinIssueAge: 18,
		MaxIssueAge: 70,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("failed to create product: %d %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodPost, "/rulesets", &domain.RuleSet{
		ID:            "rs-diabetes",
		Scope:         domain.ScopeCondition,
		CarrierID:     "carrier-001",
		ConditionCode: "diabetes_type2",
		Name:          "Type 2 diabetes program",
		Rules: []*domain.Rule{
			{
				ID: "r-decline", Priority: 10, Name: "A1C knockout",
				Predicate: domain.Leaf("a1c", domain.OpGt, 10.0),
				Outcome:   domain.Outcome{Eligibility: domain.EligibilityDecline, Reason: "A1C above 10"},
			},
			{
				ID: "r-standard", Priority: 20, Name: "A1C controlled",
				Predicate: domain.Leaf("a1c", domain.OpLte, 8.0),
				Outcome: domain.Outcome{
					Eligibility: domain.EligibilityAccept,
					HealthClass: "standard",
					Reason:      "well controlled diabetes",
				},
			},
		},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("failed to create rule set: %d %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodPost, "/rulesets/rs-diabetes/submit", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("failed to submit rule set: %d %s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, server, http.MethodPost, "/rulesets/rs-diabetes/approve", ApproveRequest{ApprovedBy: "reviewer@example.com"})
	if rr.Code != http.StatusOK {
		t.Fatalf("failed to approve rule set: %d %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodPost, "/rulesets/reload", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("failed to reload rule sets: %d %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodPut, "/products/prod-term-20/rates", RatesRequest{
		Classification: domain.Classification{
			Gender:       domain.GenderFemale,
			TobaccoClass: domain.TobaccoNone,
			HealthClass:  "standard",
			TermYears:    20,
		},
		Cells: []domain.RateCell{
			{Age: 40, FaceAmount: 250000, MonthlyPremium: 25.00},
			{Age: 50, FaceAmount: 250000, MonthlyPremium: 45.00},
		},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("failed to replace rates: %d %s", rr.Code, rr.Body.String())
	}
}

func TestUnderwriteEndpoint(t *testing.T) {
	server := createTestServer(t)
	seedWorkflow(t, server)

	t.Run("AcceptAndPriced", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/underwrite", UnderwriteRequest{
			Applicant: ApplicantInfo{
				Age:    45,
				Gender: domain.GenderFemale,
				Answers: map[string]map[string]any{
					"diabetes_type2": {"a1c": 6.5},
				},
			},
			Target:     domain.Target{CarrierID: "carrier-001", ProductID: "prod-term-20"},
			FaceAmount: 250000,
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var decision domain.Decision
		if err := json.Unmarshal(rr.Body.Bytes(), &decision); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}

		if decision.ID == "" {
			t.Error("expected decision id")
		}
		if decision.Outcome.Eligibility != domain.EligibilityAccept {
			t.Errorf("expected accept, got %s", decision.Outcome.Eligibility)
		}
		if decision.Outcome.HealthClass != "standard" {
			t.Errorf("expected standard health class, got %s", decision.Outcome.HealthClass)
		}
		if decision.PremiumStatus != domain.PremiumPriced {
			t.Fatalf("expected priced, got %s", decision.PremiumStatus)
		}
		// Age 45 interpolates halfway between 25.00 and 45.00.
		if decision.MonthlyPremium != 35.00 {
			t.Errorf("expected premium 35.00, got %.2f", decision.MonthlyPremium)
		}
		if decision.Metadata.EngineVersion != "test-v1" {
			t.Errorf("expected engine version test-v1, got %s", decision.Metadata.EngineVersion)
		}

		// The decision is retrievable afterwards.
		get := doJSON(t, server, http.MethodGet, "/decisions/"+decision.ID, nil)
		if get.Code != http.StatusOK {
			t.Errorf("expected decision lookup 200, got %d", get.Code)
		}
	})

	t.Run("DeclineNotPriced", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/underwrite", UnderwriteRequest{
			Applicant: ApplicantInfo{
				Age:    45,
				Gender: domain.GenderFemale,
				Answers: map[string]map[string]any{
					"diabetes_type2": {"a1c": 11.2},
				},
			},
			Target:     domain.Target{CarrierID: "carrier-001", ProductID: "prod-term-20"},
			FaceAmount: 250000,
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var decision domain.Decision
		json.Unmarshal(rr.Body.Bytes(), &decision)

		if decision.Outcome.Eligibility != domain.EligibilityDecline {
			t.Errorf("expected decline, got %s", decision.Outcome.Eligibility)
		}
		if decision.PremiumStatus != domain.PremiumNotApplicable {
			t.Errorf("expected not_applicable, got %s", decision.PremiumStatus)
		}
		if decision.MonthlyPremium != 0 {
			t.Errorf("expected no premium, got %.2f", decision.MonthlyPremium)
		}
	})

	t.Run("UnconfiguredConditionDefaultsToRefer", func(t *testing.T) {
		// Asthma is not in the catalog resolution path of any rule set, so
		// the declared condition falls through every scope.
		rr := doJSON(t, server, http.MethodPost, "/conditions", &domain.HealthCondition{
			Code:     "asthma",
			Name:     "Asthma",
			Category: domain.CategoryRespiratory,
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("failed to create condition: %d", rr.Code)
		}
		rr = doJSON(t, server, http.MethodPost, "/rulesets/reload", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("failed to reload: %d", rr.Code)
		}

		rr = doJSON(t, server, http.MethodPost, "/underwrite", UnderwriteRequest{
			Applicant: ApplicantInfo{
				Age:    45,
				Gender: domain.GenderFemale,
				Answers: map[string]map[string]any{
					"asthma": {},
				},
			},
			Target:     domain.Target{CarrierID: "carrier-001", ProductID: "prod-term-20"},
			FaceAmount: 250000,
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var decision domain.Decision
		json.Unmarshal(rr.Body.Bytes(), &decision)

		if decision.Outcome.Eligibility != domain.EligibilityRefer {
			t.Errorf("expected refer, got %s", decision.Outcome.Eligibility)
		}
	})

	t.Run("OutOfRangePresentedAsNotAvailable", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/underwrite", UnderwriteRequest{
			Applicant: ApplicantInfo{
				Age:    30, // below the populated age range
				Gender: domain.GenderFemale,
				Answers: map[string]map[string]any{
					"diabetes_type2": {"a1c": 6.0},
				},
			},
			Target:     domain.Target{CarrierID: "carrier-001", ProductID: "prod-term-20"},
			FaceAmount: 250000,
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var decision domain.Decision
		json.Unmarshal(rr.Body.Bytes(), &decision)

		if decision.Outcome.Eligibility != domain.EligibilityAccept {
			t.Errorf("expected accept, got %s", decision.Outcome.Eligibility)
		}
		if decision.PremiumStatus != domain.PremiumNotAvailable {
			t.Errorf("expected rate_not_available, got %s", decision.PremiumStatus)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/underwrite", bytes.NewBufferString("not-json"))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingTarget", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/underwrite", UnderwriteRequest{
			Applicant: ApplicantInfo{Age: 45, Gender: domain.GenderFemale},
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("UnknownProduct", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/underwrite", UnderwriteRequest{
			Applicant: ApplicantInfo{Age: 45, Gender: domain.GenderFemale},
			Target:    domain.Target{CarrierID: "carrier-001", ProductID: "prod-missing"},
		})
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestRuleSetEndpoints(t *testing.T) {
	server := createTestServer(t)
	seedWorkflow(t, server)

	t.Run("GetRuleSet", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/rulesets/rs-diabetes", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}

		var rs domain.RuleSet
		json.Unmarshal(rr.Body.Bytes(), &rs)
		if rs.ReviewStatus != domain.StatusApproved {
			t.Errorf("expected approved, got %s", rs.ReviewStatus)
		}
		if len(rs.Rules) != 2 {
			t.Errorf("expected 2 rules, got %d", len(rs.Rules))
		}
	})

	t.Run("UnknownRuleSet", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/rulesets/rs-missing", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rr.Code)
		}
	})

	t.Run("RejectsUnknownPredicateField", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/rulesets", &domain.RuleSet{
			Scope:         domain.ScopeCondition,
			CarrierID:     "carrier-001",
			ConditionCode: "diabetes_type2",
			Name:          "Bad field",
			Rules: []*domain.Rule{
				{
					Priority:  10,
					Name:      "references unknown field",
					Predicate: domain.Leaf("cholesterol", domain.OpGt, 200.0),
					Outcome:   domain.Outcome{Eligibility: domain.EligibilityDecline, Reason: "nope"},
				},
			},
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("ReferencesConditionSavedBeforeReload", func(t *testing.T) {
		// Save-time validation reads conditions from the repository, so a
		// rule set may reference a condition created moments ago even though
		// the engine has not reloaded its snapshot yet.
		rr := doJSON(t, server, http.MethodPost, "/conditions", &domain.HealthCondition{
			Code:     "copd",
			Name:     "COPD",
			Category: domain.CategoryRespiratory,
			FollowUps: []domain.FollowUpQuestion{
				{Key: "fev1_pct", Prompt: "FEV1 percent predicted", Type: domain.FieldNumber, Required: true},
			},
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("failed to create condition: %d %s", rr.Code, rr.Body.String())
		}

		rr = doJSON(t, server, http.MethodPost, "/rulesets", &domain.RuleSet{
			ID:            "rs-copd",
			Scope:         domain.ScopeCondition,
			CarrierID:     "carrier-001",
			ConditionCode: "copd",
			Name:          "COPD program",
			Rules: []*domain.Rule{
				{
					ID: "r-copd-decline", Priority: 10, Name: "Severe obstruction",
					Predicate: domain.Leaf("fev1_pct", domain.OpLt, 50.0),
					Outcome:   domain.Outcome{Eligibility: domain.EligibilityDecline, Reason: "FEV1 below 50 percent"},
				},
			},
		})
		if rr.Code != http.StatusCreated {
			t.Errorf("expected 201 for rule set on freshly saved condition, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("DirectApproveFromDraftConflicts", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/rulesets", &domain.RuleSet{
			ID:        "rs-draft",
			Scope:     domain.ScopeCarrier,
			CarrierID: "carrier-002",
			Name:      "Carrier default",
			Rules: []*domain.Rule{
				{
					Priority: 10, Name: "default refer",
					Outcome: domain.Outcome{Eligibility: domain.EligibilityRefer, Reason: "manual review"},
				},
			},
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("failed to create rule set: %d", rr.Code)
		}

		rr = doJSON(t, server, http.MethodPost, "/rulesets/rs-draft/approve", ApproveRequest{ApprovedBy: "reviewer"})
		if rr.Code != http.StatusConflict {
			t.Errorf("expected 409, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("RejectRequiresReason", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/rulesets/rs-draft/submit", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("failed to submit: %d", rr.Code)
		}

		rr = doJSON(t, server, http.MethodPost, "/rulesets/rs-draft/reject", RejectRequest{})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400 without reason, got %d", rr.Code)
		}

		rr = doJSON(t, server, http.MethodPost, "/rulesets/rs-draft/reject", RejectRequest{Reason: "too permissive"})
		if rr.Code != http.StatusOK {
			t.Errorf("expected 200 with reason, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("ReplaceRulesWarnsButSucceedsOnApprovedSet", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPut, "/rulesets/rs-diabetes/rules", []*domain.Rule{
			{
				Priority: 10, Name: "refer everything",
				Outcome: domain.Outcome{Eligibility: domain.EligibilityRefer, Reason: "program under review"},
			},
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}

		get := doJSON(t, server, http.MethodGet, "/rulesets/rs-diabetes", nil)
		var rs domain.RuleSet
		json.Unmarshal(get.Body.Bytes(), &rs)
		if len(rs.Rules) != 1 {
			t.Errorf("expected 1 rule after replace, got %d", len(rs.Rules))
		}
		if rs.ReviewStatus != domain.StatusApproved {
			t.Errorf("replace must not change review status, got %s", rs.ReviewStatus)
		}
	})
}

func TestCoverageEndpoint(t *testing.T) {
	server := createTestServer(t)
	seedWorkflow(t, server)

	rr := doJSON(t, server, http.MethodGet, "/coverage", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var report domain.CoverageReport
	if err := json.Unmarshal(rr.Body.Bytes(), &report); err != nil {
		t.Fatalf("failed to parse report: %v", err)
	}
	if report.TotalConditions != 1 {
		t.Errorf("expected 1 catalog condition, got %d", report.TotalConditions)
	}
	if len(report.Products) != 1 {
		t.Fatalf("expected 1 coverage bucket, got %d", len(report.Products))
	}
	if report.Products[0].Percent != 100 {
		t.Errorf("expected 100%% coverage, got %d", report.Products[0].Percent)
	}

	carrier := doJSON(t, server, http.MethodGet, "/coverage/carrier-001", nil)
	if carrier.Code != http.StatusOK {
		t.Errorf("expected 200 for carrier view, got %d", carrier.Code)
	}

	missing := doJSON(t, server, http.MethodGet, "/coverage/carrier-unknown", nil)
	if missing.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown carrier, got %d", missing.Code)
	}
}

func TestRatesEndpoints(t *testing.T) {
	server := createTestServer(t)
	seedWorkflow(t, server)

	t.Run("LookupExact", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet,
			"/products/prod-term-20/premium?age=40&faceAmount=250000&gender=female&healthClass=standard&termYears=20", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp struct {
			Status         string  `json:"status"`
			MonthlyPremium float64 `json:"monthlyPremium"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Status != domain.PremiumPriced {
			t.Errorf("expected priced, got %s", resp.Status)
		}
		if resp.MonthlyPremium != 25.00 {
			t.Errorf("expected 25.00, got %.2f", resp.MonthlyPremium)
		}
	})

	t.Run("LookupOutOfRange", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet,
			"/products/prod-term-20/premium?age=80&faceAmount=250000&gender=female&healthClass=standard&termYears=20", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}

		var resp struct {
			Status string `json:"status"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Status != domain.PremiumNotAvailable {
			t.Errorf("expected rate_not_available, got %s", resp.Status)
		}
	})

	t.Run("RejectsBadBatch", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPut, "/products/prod-term-20/rates", RatesRequest{
			Classification: domain.Classification{
				Gender:       domain.GenderMale,
				TobaccoClass: domain.TobaccoNone,
				HealthClass:  "standard",
				TermYears:    20,
			},
			Cells: []domain.RateCell{
				{Age: 40, FaceAmount: 250000, MonthlyPremium: -5.00},
			},
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for negative premium, got %d", rr.Code)
		}
	})

	t.Run("UnknownProduct", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPut, "/products/prod-missing/rates", RatesRequest{
			Cells: []domain.RateCell{{Age: 40, FaceAmount: 250000, MonthlyPremium: 10}},
		})
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rr.Code)
		}
	})
}

func TestGenerateEndpoints(t *testing.T) {
	server := createTestServer(t)
	seedWorkflow(t, server)

	t.Run("Knockouts", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/generate/knockouts", GenerateKnockoutsRequest{
			CarrierID:        "carrier-001",
			NumberThresholds: map[string]float64{"diabetes_type2.a1c": 12.0},
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp struct {
			RuleSets []*domain.RuleSet `json:"ruleSets"`
			Count    int               `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Count != 1 {
			t.Fatalf("expected 1 generated rule set, got %d", resp.Count)
		}
		if resp.RuleSets[0].ReviewStatus != domain.StatusDraft {
			t.Errorf("generated rule sets must be drafts, got %s", resp.RuleSets[0].ReviewStatus)
		}

		// Saved, not just returned.
		get := doJSON(t, server, http.MethodGet, "/rulesets/"+resp.RuleSets[0].ID, nil)
		if get.Code != http.StatusOK {
			t.Errorf("expected generated set persisted, got %d", get.Code)
		}
	})

	t.Run("AgeBandsDryRun", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/generate/age-bands", GenerateAgeBandsRequest{
			CarrierID: "carrier-001",
			DryRun:    true,
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp struct {
			RuleSets []*domain.RuleSet `json:"ruleSets"`
			Count    int               `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Count != 1 {
			t.Fatalf("expected 1 generated rule set, got %d", resp.Count)
		}

		get := doJSON(t, server, http.MethodGet, "/rulesets/"+resp.RuleSets[0].ID, nil)
		if get.Code != http.StatusNotFound {
			t.Errorf("dry run must not persist, got %d", get.Code)
		}
	})

	t.Run("RequiresCarrier", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/generate/knockouts", GenerateKnockoutsRequest{})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400 without carrier, got %d", rr.Code)
		}
	})
}

func TestHealthEndpoints(t *testing.T) {
	server := createTestServer(t)

	rr := doJSON(t, server, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var health map[string]string
	json.Unmarshal(rr.Body.Bytes(), &health)
	if health["status"] != "healthy" {
		t.Errorf("expected healthy, got %s", health["status"])
	}
	if health["version"] != "test-v1" {
		t.Errorf("expected version test-v1, got %s", health["version"])
	}

	rr = doJSON(t, server, http.MethodGet, "/ready", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200 for ready, got %d", rr.Code)
	}
}
