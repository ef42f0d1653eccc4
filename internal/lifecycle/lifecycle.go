// Package lifecycle manages the persisted state of guardrail-evaluated
// actions: creation in their initial state, human accept/reject transitions,
// logical expiry, and learning-event emission on resolution.
package lifecycle

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/strideworks/coachguard/internal/models"
	"github.com/strideworks/coachguard/internal/store"
)

// Decision-window durations. Expiry is logical: expired proposals drop out
// of the awaiting-decision view but remain stored for audit.
const (
	// DefaultActionTTL is how long a proposed action awaits a decision.
	DefaultActionTTL = 72 * time.Hour
	// UrgentActionTTL is the shorter window for urgent-priority actions;
	// urgent advice that sat for days is stale.
	UrgentActionTTL = 24 * time.Hour
)

// Learning-event outcomes recorded when actions resolve.
const (
	OutcomeAccepted    = "accepted"
	OutcomeRejected    = "rejected"
	OutcomeAutoApplied = "auto_applied"
)

// Manager governs agent-action state transitions against a Store.
type Manager struct {
	store store.Store
	now   func() time.Time
}

// NewManager creates a lifecycle manager backed by the given store.
func NewManager(st store.Store) *Manager {
	return &Manager{store: st, now: time.Now}
}

// NewManagerWithClock creates a manager with an injected clock, for tests.
func NewManagerWithClock(st store.Store, now func() time.Time) *Manager {
	return &Manager{store: st, now: now}
}

// CreateFromVerdict persists a new action in the initial state the guardrail
// verdict dictates: AUTO_APPLIED when the verdict allows it (the action's
// effect is considered applied atomically with the record), otherwise
// PROPOSED. The expiry window is always set.
func (m *Manager) CreateFromVerdict(subjectID, perceptionID string, proposal models.ProposedAction, verdict models.GuardrailCheckResult) (models.AgentAction, error) {
	now := m.now()
	ttl := DefaultActionTTL
	if proposal.Priority == models.PriorityUrgent {
		ttl = UrgentActionTTL
	}

	status := models.StatusProposed
	if verdict.CanAutoApply {
		status = models.StatusAutoApplied
	}

	action := models.AgentAction{
		ID:                uuid.NewString(),
		SubjectID:         subjectID,
		PerceptionID:      perceptionID,
		ActionType:        proposal.ActionType,
		Params:            proposal.Params,
		Confidence:        proposal.Confidence,
		Priority:          proposal.Priority,
		Status:            status,
		RequiresOversight: verdict.RequiresCoachOversight,
		ProposedAt:        now,
		ExpiresAt:         now.Add(ttl),
	}
	if err := m.store.SaveAction(action); err != nil {
		slog.Error("Manager.CreateFromVerdict save failed", "error", err, "subjectID", subjectID, "actionType", proposal.ActionType)
		return models.AgentAction{}, fmt.Errorf("failed to persist action: %w", err)
	}

	if status == models.StatusAutoApplied {
		m.recordOutcome(action, OutcomeAutoApplied)
	}
	slog.Debug("Manager.CreateFromVerdict persisted action",
		"actionID", action.ID, "subjectID", subjectID, "actionType", action.ActionType, "status", action.Status)
	return action, nil
}

// Accept transitions a proposed action to ACCEPTED. Expired proposals can no
// longer be accepted; terminal actions never transition.
func (m *Manager) Accept(actionID, resolvedBy string) (*models.AgentAction, error) {
	return m.resolve(actionID, resolvedBy, models.StatusAccepted, OutcomeAccepted)
}

// Reject transitions a proposed action to REJECTED.
func (m *Manager) Reject(actionID, resolvedBy string) (*models.AgentAction, error) {
	return m.resolve(actionID, resolvedBy, models.StatusRejected, OutcomeRejected)
}

func (m *Manager) resolve(actionID, resolvedBy string, to models.ActionStatus, outcome string) (*models.AgentAction, error) {
	action, err := m.store.GetAction(actionID)
	if err != nil {
		return nil, err
	}
	if action == nil {
		return nil, models.ErrActionNotFound
	}
	if models.IsTerminalStatus(action.Status) {
		return nil, models.ErrActionNotPending
	}
	now := m.now()
	if action.Expired(now) {
		return nil, models.ErrActionExpired
	}
	// The store re-checks the proposed status inside the update, so a
	// concurrent resolution loses cleanly.
	if err := m.store.ResolveAction(actionID, to, resolvedBy, now); err != nil {
		slog.Error("Manager.resolve transition failed", "error", err, "actionID", actionID, "to", to)
		return nil, err
	}
	action.Status = to
	action.ResolvedBy = resolvedBy
	action.ResolvedAt = &now
	m.recordOutcome(*action, outcome)
	slog.Info("Manager.resolve action resolved", "actionID", actionID, "status", to, "resolvedBy", resolvedBy)
	return action, nil
}

// ListPending returns the actions awaiting a decision: proposed and not yet
// expired.
func (m *Manager) ListPending(subjectID string) ([]models.AgentAction, error) {
	return m.store.ListActions(subjectID, store.ActionFilter{PendingOnly: true, Now: m.now()})
}

// ListByStatus returns all actions with the given status, including expired
// ones, for audit and history views.
func (m *Manager) ListByStatus(subjectID string, status models.ActionStatus) ([]models.AgentAction, error) {
	return m.store.ListActions(subjectID, store.ActionFilter{Status: status})
}

// recordOutcome emits a learning event. Failures are logged, not surfaced:
// losing one outcome sample never fails the action transition it records.
func (m *Manager) recordOutcome(action models.AgentAction, outcome string) {
	event := models.LearningEvent{
		ID:         uuid.NewString(),
		SubjectID:  action.SubjectID,
		ActionID:   action.ID,
		ActionType: action.ActionType,
		Outcome:    outcome,
		CreatedAt:  m.now(),
	}
	if err := m.store.SaveLearningEvent(event); err != nil {
		slog.Error("Manager.recordOutcome failed", "error", err, "actionID", action.ID, "outcome", outcome)
	}
}
