// Package lifecycle implements the rule set approval workflow: the state
// machine that gates which rule sets may serve live underwriting traffic.
package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-insurance/harrier/internal/domain"
)

// transitions is the full legal transition table. Everything absent is an
// InvalidStateError. There is deliberately no draft -> approved shortcut:
// every rule set passes through review.
var transitions = map[domain.ReviewStatus][]domain.ReviewStatus{
	domain.StatusDraft:         {domain.StatusPendingReview},
	domain.StatusPendingReview: {domain.StatusApproved, domain.StatusRejected},
	domain.StatusApproved:      {domain.StatusDraft},
	domain.StatusRejected:      {domain.StatusDraft},
}

// CanTransition reports whether from -> to is a legal workflow move.
func CanTransition(from, to domain.ReviewStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Manager drives rule set lifecycle transitions. The transition itself is
// a compare-and-set at the repository so two concurrent approvals of the
// same rule set cannot both succeed.
type Manager struct {
	repo   domain.Repository
	bus    domain.EventBus
	logger *slog.Logger
}

// NewManager creates a lifecycle manager.
func NewManager(repo domain.Repository, bus domain.EventBus, logger *slog.Logger) *Manager {
	return &Manager{repo: repo, bus: bus, logger: logger}
}

// Submit moves a draft rule set into review. A rule set with no rules
// cannot be submitted; an empty approved set could silently widen
// coverage to nothing.
func (m *Manager) Submit(ctx context.Context, ruleSetID string) (*domain.RuleSet, error) {
	rs, err := m.repo.GetRuleSet(ctx, ruleSetID)
	if err != nil {
		return nil, err
	}
	if err := m.checkTransition(rs, domain.StatusPendingReview); err != nil {
		return nil, err
	}
	if len(rs.Rules) == 0 {
		return nil, &domain.ConfigurationError{Detail: fmt.Sprintf("rule set %s has no rules to review", ruleSetID)}
	}

	if err := m.repo.UpdateReviewStatus(ctx, ruleSetID, rs.ReviewStatus, domain.StatusPendingReview, "", "", time.Now().UTC()); err != nil {
		return nil, err
	}
	rs.ReviewStatus = domain.StatusPendingReview

	m.logger.Info("rule set submitted for review",
		slog.String("rule_set_id", ruleSetID),
		slog.Int("rules", len(rs.Rules)))
	return rs, nil
}

// Approve moves a pending rule set to approved and announces it so live
// engines reload.
func (m *Manager) Approve(ctx context.Context, ruleSetID, approvedBy string) (*domain.RuleSet, error) {
	rs, err := m.repo.GetRuleSet(ctx, ruleSetID)
	if err != nil {
		return nil, err
	}
	if err := m.checkTransition(rs, domain.StatusApproved); err != nil {
		return nil, err
	}
	if approvedBy == "" {
		return nil, &domain.ValidationError{Detail: "approvedBy is required"}
	}

	decidedAt := time.Now().UTC()
	if err := m.repo.UpdateReviewStatus(ctx, ruleSetID, rs.ReviewStatus, domain.StatusApproved, approvedBy, "", decidedAt); err != nil {
		return nil, err
	}
	rs.ReviewStatus = domain.StatusApproved
	rs.ApprovedBy = approvedBy
	rs.ApprovedAt = &decidedAt

	m.logger.Info("rule set approved",
		slog.String("rule_set_id", ruleSetID),
		slog.String("approved_by", approvedBy))
	m.publish(ctx, domain.TopicRuleSetApproved, rs)
	return rs, nil
}

// Reject moves a pending rule set to rejected. A reject without a reason
// gives the author nothing to fix, so the reason is mandatory.
func (m *Manager) Reject(ctx context.Context, ruleSetID, reason string) (*domain.RuleSet, error) {
	rs, err := m.repo.GetRuleSet(ctx, ruleSetID)
	if err != nil {
		return nil, err
	}
	if err := m.checkTransition(rs, domain.StatusRejected); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, &domain.ValidationError{Detail: "rejection reason is required"}
	}

	if err := m.repo.UpdateReviewStatus(ctx, ruleSetID, rs.ReviewStatus, domain.StatusRejected, "", reason, time.Now().UTC()); err != nil {
		return nil, err
	}
	rs.ReviewStatus = domain.StatusRejected
	rs.RejectReason = reason

	m.logger.Info("rule set rejected",
		slog.String("rule_set_id", ruleSetID),
		slog.String("reason", reason))
	return rs, nil
}

// RevertToDraft takes an approved or rejected rule set back to draft for
// further editing. Reverting an approved set removes it from live
// traffic, so the event is announced for engine reloads.
func (m *Manager) RevertToDraft(ctx context.Context, ruleSetID string) (*domain.RuleSet, error) {
	rs, err := m.repo.GetRuleSet(ctx, ruleSetID)
	if err != nil {
		return nil, err
	}
	if err := m.checkTransition(rs, domain.StatusDraft); err != nil {
		return nil, err
	}

	wasApproved := rs.ReviewStatus == domain.StatusApproved
	if err := m.repo.UpdateReviewStatus(ctx, ruleSetID, rs.ReviewStatus, domain.StatusDraft, "", "", time.Now().UTC()); err != nil {
		return nil, err
	}
	rs.ReviewStatus = domain.StatusDraft
	rs.ApprovedBy = ""
	rs.ApprovedAt = nil
	rs.RejectReason = ""

	m.logger.Info("rule set reverted to draft",
		slog.String("rule_set_id", ruleSetID),
		slog.Bool("was_approved", wasApproved))
	if wasApproved {
		m.publish(ctx, domain.TopicRuleSetReverted, rs)
	}
	return rs, nil
}

func (m *Manager) checkTransition(rs *domain.RuleSet, to domain.ReviewStatus) error {
	if !CanTransition(rs.ReviewStatus, to) {
		return &domain.InvalidStateError{
			RuleSetID: rs.ID,
			From:      rs.ReviewStatus,
			To:        to,
		}
	}
	return nil
}

// publish announces a lifecycle event. Delivery failures are logged but
// never fail the transition: the repository is the source of truth and
// workers re-sync on their periodic sweep.
func (m *Manager) publish(ctx context.Context, topic string, rs *domain.RuleSet) {
	if m.bus == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"ruleSetId":     rs.ID,
		"scope":         rs.Scope,
		"carrierId":     rs.CarrierID,
		"productId":     rs.ProductID,
		"conditionCode": rs.ConditionCode,
		"reviewStatus":  rs.ReviewStatus,
	})
	if err != nil {
		m.logger.Error("failed to encode lifecycle event", slog.String("error", err.Error()))
		return
	}
	if err := m.bus.Publish(ctx, topic, payload); err != nil {
		m.logger.Warn("failed to publish lifecycle event",
			slog.String("topic", topic),
			slog.String("error", err.Error()))
	}
}
