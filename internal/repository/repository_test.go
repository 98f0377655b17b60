package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/opensource-insurance/harrier/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	// Create temp database file
	tmpFile, err := os.CreateTemp("", "harrier-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetCondition", func(t *testing.T) {
		cond := &domain.HealthCondition{
			Code:     "diabetes_type2",
			Name:     "Type 2 Diabetes",
			Category: domain.CategoryMetabolic,
			FollowUps: []domain.FollowUpQuestion{
				{Key: "a1c", Prompt: "Most recent A1C", Type: domain.FieldNumber, Required: true},
				{Key: "insulin", Prompt: "Currently on insulin", Type: domain.FieldFlag},
			},
		}

		if err := repo.SaveCondition(ctx, cond); err != nil {
			t.Fatalf("SaveCondition failed: %v", err)
		}

		retrieved, err := repo.GetCondition(ctx, cond.Code)
		if err != nil {
			t.Fatalf("GetCondition failed: %v", err)
		}
		if retrieved.Name != cond.Name {
			t.Errorf("expected name %s, got %s", cond.Name, retrieved.Name)
		}
		if len(retrieved.FollowUps) != 2 {
			t.Errorf("expected 2 follow-ups, got %d", len(retrieved.FollowUps))
		}
		if retrieved.FollowUps[0].Key != "a1c" || !retrieved.FollowUps[0].Required {
			t.Errorf("follow-up schema did not round-trip: %+v", retrieved.FollowUps[0])
		}
	})

	t.Run("UpsertConditionOverwrites", func(t *testing.T) {
		cond := &domain.HealthCondition{
			Code:     "diabetes_type2",
			Name:     "Diabetes Mellitus Type 2",
			Category: domain.CategoryMetabolic,
		}
		if err := repo.SaveCondition(ctx, cond); err != nil {
			t.Fatalf("SaveCondition failed: %v", err)
		}
		retrieved, err := repo.GetCondition(ctx, cond.Code)
		if err != nil {
			t.Fatalf("GetCondition failed: %v", err)
		}
		if retrieved.Name != "Diabetes Mellitus Type 2" {
			t.Errorf("expected upsert to overwrite name, got %s", retrieved.Name)
		}
	})

	t.Run("GetConditionNotFound", func(t *testing.T) {
		_, err := repo.GetCondition(ctx, "no-such-condition")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("SaveAndListProducts", func(t *testing.T) {
		products := []*domain.Product{
			{ID: "prod-term20", CarrierID: "carrier-1", Name: "Term 20", Kind: domain.ProductTerm, TermYears: 20, MinIssueAge: 18, MaxIssueAge: 70},
			{ID: "prod-wl", CarrierID: "carrier-1", Name: "Whole Life", Kind: domain.ProductWholeLife, MinIssueAge: 0, MaxIssueAge: 85},
		}
		for _, p := range products {
			if err := repo.SaveProduct(ctx, p); err != nil {
				t.Fatalf("SaveProduct failed: %v", err)
			}
		}

		retrieved, err := repo.GetProduct(ctx, "prod-term20")
		if err != nil {
			t.Fatalf("GetProduct failed: %v", err)
		}
		if retrieved.TermYears != 20 || retrieved.Kind != domain.ProductTerm {
			t.Errorf("product did not round-trip: %+v", retrieved)
		}

		listed, err := repo.ListProducts(ctx)
		if err != nil {
			t.Fatalf("ListProducts failed: %v", err)
		}
		if len(listed) != 2 {
			t.Errorf("expected 2 products, got %d", len(listed))
		}
	})

	t.Run("SaveProductRequiresIDs", func(t *testing.T) {
		err := repo.SaveProduct(ctx, &domain.Product{Name: "orphan"})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestRuleSetPersistence(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ageMax := 60
	rs := &domain.RuleSet{
		ID:            "rs-001",
		Scope:         domain.ScopeCondition,
		CarrierID:     "carrier-1",
		ProductID:     "prod-term20",
		ConditionCode: "diabetes_type2",
		Name:          "Diabetes program",
		Description:   "tiered A1C bands",
		ReviewStatus:  domain.StatusDraft,
		Active:        true,
		Rules: []*domain.Rule{
			{
				ID: "r-2", RuleSetID: "rs-001", Priority: 20, Name: "rated band",
				Gender:    domain.GenderAny,
				Predicate: domain.LeafBetween("a1c", 8.0, 10.0),
				Outcome:   domain.Outcome{Eligibility: domain.EligibilityAccept, HealthClass: "substandard", TableRating: 2, Reason: "A1C 8-10"},
			},
			{
				ID: "r-1", RuleSetID: "rs-001", Priority: 10, Name: "knockout",
				Gender: domain.GenderAny, AgeMax: &ageMax,
				Predicate: domain.Leaf("a1c", domain.OpGt, 10.0),
				Outcome:   domain.Outcome{Eligibility: domain.EligibilityDecline, Reason: "A1C above 10"},
			},
		},
	}

	t.Run("SaveAndGetRuleSet", func(t *testing.T) {
		if err := repo.SaveRuleSet(ctx, rs); err != nil {
			t.Fatalf("SaveRuleSet failed: %v", err)
		}

		retrieved, err := repo.GetRuleSet(ctx, "rs-001")
		if err != nil {
			t.Fatalf("GetRuleSet failed: %v", err)
		}
		if retrieved.ReviewStatus != domain.StatusDraft {
			t.Errorf("expected draft status, got %s", retrieved.ReviewStatus)
		}
		if len(retrieved.Rules) != 2 {
			t.Fatalf("expected 2 rules, got %d", len(retrieved.Rules))
		}
		// Rules come back in priority order regardless of insert order.
		if retrieved.Rules[0].ID != "r-1" {
			t.Errorf("expected priority ordering, got %s first", retrieved.Rules[0].ID)
		}
		if retrieved.Rules[0].AgeMax == nil || *retrieved.Rules[0].AgeMax != 60 {
			t.Errorf("age band did not round-trip: %+v", retrieved.Rules[0].AgeMax)
		}
		if retrieved.Rules[1].Predicate == nil || retrieved.Rules[1].Predicate.Operator != domain.OpBetween {
			t.Errorf("predicate did not round-trip: %+v", retrieved.Rules[1].Predicate)
		}
	})

	t.Run("ReplaceRules", func(t *testing.T) {
		replacement := []*domain.Rule{{
			ID: "r-3", RuleSetID: "rs-001", Priority: 5, Name: "new knockout",
			Gender:  domain.GenderAny,
			Outcome: domain.Outcome{Eligibility: domain.EligibilityRefer, Reason: "manual review"},
		}}
		if err := repo.ReplaceRules(ctx, "rs-001", replacement); err != nil {
			t.Fatalf("ReplaceRules failed: %v", err)
		}
		retrieved, err := repo.GetRuleSet(ctx, "rs-001")
		if err != nil {
			t.Fatalf("GetRuleSet failed: %v", err)
		}
		if len(retrieved.Rules) != 1 || retrieved.Rules[0].ID != "r-3" {
			t.Errorf("expected rules to be replaced, got %+v", retrieved.Rules)
		}
	})

	t.Run("ListLiveRuleSetsExcludesDrafts", func(t *testing.T) {
		live, err := repo.ListLiveRuleSets(ctx)
		if err != nil {
			t.Fatalf("ListLiveRuleSets failed: %v", err)
		}
		if len(live) != 0 {
			t.Errorf("draft rule set must not be live, got %d", len(live))
		}
	})
}

func TestUpdateReviewStatusCAS(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rs := &domain.RuleSet{
		ID:            "rs-cas",
		Scope:         domain.ScopeCondition,
		CarrierID:     "carrier-1",
		ConditionCode: "asthma",
		Name:          "Asthma program",
		ReviewStatus:  domain.StatusPendingReview,
		Active:        true,
		Rules: []*domain.Rule{{
			ID: "r-1", Priority: 10, Name: "default", Gender: domain.GenderAny,
			Outcome: domain.Outcome{Eligibility: domain.EligibilityAccept, Reason: "ok"},
		}},
	}
	if err := repo.SaveRuleSet(ctx, rs); err != nil {
		t.Fatalf("SaveRuleSet failed: %v", err)
	}

	now := time.Now().UTC()

	t.Run("FirstApproveSucceeds", func(t *testing.T) {
		err := repo.UpdateReviewStatus(ctx, "rs-cas", domain.StatusPendingReview, domain.StatusApproved, "reviewer-1", "", now)
		if err != nil {
			t.Fatalf("UpdateReviewStatus failed: %v", err)
		}
		retrieved, _ := repo.GetRuleSet(ctx, "rs-cas")
		if retrieved.ReviewStatus != domain.StatusApproved {
			t.Errorf("expected approved, got %s", retrieved.ReviewStatus)
		}
		if retrieved.ApprovedBy != "reviewer-1" || retrieved.ApprovedAt == nil {
			t.Errorf("approval attribution missing: %+v", retrieved)
		}
	})

	t.Run("SecondApproveConflicts", func(t *testing.T) {
		err := repo.UpdateReviewStatus(ctx, "rs-cas", domain.StatusPendingReview, domain.StatusApproved, "reviewer-2", "", now)
		if !errors.Is(err, ErrConflict) {
			t.Errorf("expected ErrConflict on stale precondition, got %v", err)
		}
	})

	t.Run("UnknownRuleSetNotFound", func(t *testing.T) {
		err := repo.UpdateReviewStatus(ctx, "rs-missing", domain.StatusPendingReview, domain.StatusApproved, "", "", now)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("LiveRuleSetAppearsInListing", func(t *testing.T) {
		live, err := repo.ListLiveRuleSets(ctx)
		if err != nil {
			t.Fatalf("ListLiveRuleSets failed: %v", err)
		}
		if len(live) != 1 || live[0].ID != "rs-cas" {
			t.Errorf("expected rs-cas live, got %+v", live)
		}
	})
}

func TestLiveUniquenessIndex(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for _, id := range []string{"rs-a", "rs-b"} {
		rs := &domain.RuleSet{
			ID: id, Scope: domain.ScopeCondition, CarrierID: "carrier-1",
			ProductID: "prod-1", ConditionCode: "diabetes_type2",
			Name: id, ReviewStatus: domain.StatusPendingReview, Active: true,
		}
		if err := repo.SaveRuleSet(ctx, rs); err != nil {
			t.Fatalf("SaveRuleSet failed: %v", err)
		}
	}

	if err := repo.UpdateReviewStatus(ctx, "rs-a", domain.StatusPendingReview, domain.StatusApproved, "reviewer", "", now); err != nil {
		t.Fatalf("first approval failed: %v", err)
	}
	// Approving a second set for the same slot violates the partial
	// unique index.
	err := repo.UpdateReviewStatus(ctx, "rs-b", domain.StatusPendingReview, domain.StatusApproved, "reviewer", "", now)
	if err == nil {
		t.Fatal("expected second live rule set for the same slot to be rejected")
	}
}

func TestPremiumRatePersistence(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	class := domain.Classification{
		Gender:       domain.GenderMale,
		TobaccoClass: domain.TobaccoNone,
		HealthClass:  "standard",
		TermYears:    20,
	}

	t.Run("ReplaceAndList", func(t *testing.T) {
		cells := []domain.RateCell{
			{Age: 40, FaceAmount: 100000, MonthlyPremium: 50.00},
			{Age: 50, FaceAmount: 100000, MonthlyPremium: 70.00},
		}
		if err := repo.ReplacePremiumRates(ctx, "prod-1", class, cells); err != nil {
			t.Fatalf("ReplacePremiumRates failed: %v", err)
		}

		rates, err := repo.ListPremiumRates(ctx, "prod-1")
		if err != nil {
			t.Fatalf("ListPremiumRates failed: %v", err)
		}
		if len(rates) != 2 {
			t.Fatalf("expected 2 rates, got %d", len(rates))
		}
		if rates[0].Classification != class {
			t.Errorf("classification did not round-trip: %+v", rates[0].Classification)
		}
	})

	t.Run("ReplaceSwapsWholeClassification", func(t *testing.T) {
		if err := repo.ReplacePremiumRates(ctx, "prod-1", class, []domain.RateCell{
			{Age: 45, FaceAmount: 250000, MonthlyPremium: 95.00},
		}); err != nil {
			t.Fatalf("ReplacePremiumRates failed: %v", err)
		}
		rates, err := repo.ListPremiumRates(ctx, "prod-1")
		if err != nil {
			t.Fatalf("ListPremiumRates failed: %v", err)
		}
		if len(rates) != 1 || rates[0].Age != 45 {
			t.Errorf("expected old cells to be replaced, got %+v", rates)
		}
	})

	t.Run("OtherClassificationUntouched", func(t *testing.T) {
		other := class
		other.Gender = domain.GenderFemale
		if err := repo.ReplacePremiumRates(ctx, "prod-1", other, []domain.RateCell{
			{Age: 40, FaceAmount: 100000, MonthlyPremium: 45.00},
		}); err != nil {
			t.Fatalf("ReplacePremiumRates failed: %v", err)
		}
		rates, err := repo.ListPremiumRates(ctx, "prod-1")
		if err != nil {
			t.Fatalf("ListPremiumRates failed: %v", err)
		}
		if len(rates) != 2 {
			t.Errorf("expected both classifications present, got %d rates", len(rates))
		}
	})
}

func TestDecisionPersistence(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	decision := &domain.Decision{
		ID:        "dec-001",
		CarrierID: "carrier-1",
		ProductID: "prod-1",
		Age:       45,
		Gender:    domain.GenderMale,
		Timestamp: time.Now().UTC(),
		Outcome: domain.AggregateOutcome{
			Eligibility: domain.EligibilityAccept,
			HealthClass: "standard",
			Reasons:     []string{"well controlled diabetes"},
		},
		ConditionResults: []domain.ConditionResult{
			{ConditionCode: "diabetes_type2", RuleSetID: "rs-001", RuleID: "r-standard", Matched: true},
		},
		MonthlyPremium: 62.50,
		PremiumStatus:  domain.PremiumPriced,
		Metadata:       domain.DecisionMetadata{TotalMs: 3, ConditionsEvaluated: 1, EngineVersion: "test"},
	}

	if err := repo.SaveDecision(ctx, decision); err != nil {
		t.Fatalf("SaveDecision failed: %v", err)
	}

	retrieved, err := repo.GetDecision(ctx, "dec-001")
	if err != nil {
		t.Fatalf("GetDecision failed: %v", err)
	}
	if retrieved.Outcome.Eligibility != domain.EligibilityAccept {
		t.Errorf("outcome did not round-trip: %+v", retrieved.Outcome)
	}
	if len(retrieved.ConditionResults) != 1 || retrieved.ConditionResults[0].ConditionCode != "diabetes_type2" {
		t.Errorf("condition results did not round-trip: %+v", retrieved.ConditionResults)
	}
	if retrieved.MonthlyPremium != 62.50 || retrieved.PremiumStatus != domain.PremiumPriced {
		t.Errorf("premium did not round-trip: %v %s", retrieved.MonthlyPremium, retrieved.PremiumStatus)
	}
}
