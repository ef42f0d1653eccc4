// Package privacy implements the GDPR data lifecycle for agent state:
// deletion, anonymization, and verification summaries.
//
// Deletions run inside one storage transaction; the audit-log entry is
// written after the transaction commits, deliberately outside it, so a
// logging failure never rolls back a completed deletion and a deletion
// failure never produces an orphaned audit entry. Audit logs themselves are
// retained indefinitely and never touched by these operations.
package privacy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/strideworks/coachguard/internal/models"
	"github.com/strideworks/coachguard/internal/store"
)

// Service performs privacy operations over agent state.
type Service struct {
	store store.Store
	locks *store.SubjectLocks
	now   func() time.Time
}

// NewService creates a privacy service. The subject locks must be the same
// registry the agent orchestrator uses, so a deletion excludes a concurrent
// cycle creating rows for the subject mid-delete.
func NewService(st store.Store, locks *store.SubjectLocks) *Service {
	return &Service{store: st, locks: locks, now: time.Now}
}

// NewServiceWithClock creates a service with an injected clock, for tests.
func NewServiceWithClock(st store.Store, locks *store.SubjectLocks, now func() time.Time) *Service {
	return &Service{store: st, locks: locks, now: now}
}

// DeleteAgentData erases all agent state owned by the subject and records
// one audit entry. The deletion result is returned even when the audit
// insert fails: the data-removal obligation has already been met, and the
// failure is logged for out-of-band retry.
func (s *Service) DeleteAgentData(ctx context.Context, subjectID, requestedBy string) (models.DeletionResult, error) {
	if subjectID == "" {
		return models.DeletionResult{}, models.ErrEmptySubject
	}
	release := s.locks.Acquire(subjectID)
	defer release()

	counts, err := s.store.DeleteAgentData(subjectID)
	if err != nil {
		slog.Error("Service.DeleteAgentData failed", "error", err, "subjectID", subjectID)
		return models.DeletionResult{}, fmt.Errorf("failed to delete agent data: %w", err)
	}

	result := models.DeletionResult{
		Counts:      counts,
		Categories:  touchedCategories(counts),
		AuditLogged: s.writeAudit(subjectID, requestedBy, models.AuditOpDeletion, counts),
	}
	slog.Info("Service.DeleteAgentData completed",
		"subjectID", subjectID, "requestedBy", requestedBy, "total", counts.Total(), "auditLogged", result.AuditLogged)
	return result, nil
}

// AnonymizeAgentData strips the subject linkage from learning events while
// deleting preferences, consent, actions, and perceptions, preserving
// aggregate learning signal without retaining identifying data.
func (s *Service) AnonymizeAgentData(ctx context.Context, subjectID, requestedBy string) (models.DeletionResult, error) {
	if subjectID == "" {
		return models.DeletionResult{}, models.ErrEmptySubject
	}
	release := s.locks.Acquire(subjectID)
	defer release()

	counts, err := s.store.AnonymizeAgentData(subjectID)
	if err != nil {
		slog.Error("Service.AnonymizeAgentData failed", "error", err, "subjectID", subjectID)
		return models.DeletionResult{}, fmt.Errorf("failed to anonymize agent data: %w", err)
	}

	result := models.DeletionResult{
		Counts:      counts,
		Categories:  touchedCategories(counts),
		AuditLogged: s.writeAudit(subjectID, requestedBy, models.AuditOpAnonymization, counts),
	}
	slog.Info("Service.AnonymizeAgentData completed",
		"subjectID", subjectID, "requestedBy", requestedBy, "total", counts.Total(), "auditLogged", result.AuditLogged)
	return result, nil
}

// GetDataSummary reports current per-category counts for verification.
func (s *Service) GetDataSummary(ctx context.Context, subjectID string) (models.DataSummary, error) {
	if subjectID == "" {
		return models.DataSummary{}, models.ErrEmptySubject
	}
	var summary models.DataSummary
	var err error

	if summary.Perceptions, err = s.store.CountPerceptions(subjectID); err != nil {
		return summary, fmt.Errorf("failed to count perceptions: %w", err)
	}
	if summary.Actions, err = s.store.CountActions(subjectID); err != nil {
		return summary, fmt.Errorf("failed to count actions: %w", err)
	}
	if summary.LearningEvents, err = s.store.CountLearningEvents(subjectID); err != nil {
		return summary, fmt.Errorf("failed to count learning events: %w", err)
	}
	prefs, err := s.store.GetPreferences(subjectID)
	if err != nil {
		return summary, fmt.Errorf("failed to load preferences: %w", err)
	}
	if prefs != nil {
		summary.Preferences = 1
	}
	consentRec, err := s.store.GetConsent(subjectID)
	if err != nil {
		return summary, fmt.Errorf("failed to load consent: %w", err)
	}
	if consentRec != nil {
		summary.Consent = 1
	}
	if summary.AuditLogs, err = s.store.CountAuditLogs(subjectID); err != nil {
		return summary, fmt.Errorf("failed to count audit logs: %w", err)
	}
	return summary, nil
}

// writeAudit inserts the post-commit audit entry and reports success. An
// insert failure must never make the primary operation appear failed.
func (s *Service) writeAudit(subjectID, requestedBy, operation string, counts models.DeletionCounts) bool {
	entry := models.AuditLogEntry{
		ID:          uuid.NewString(),
		SubjectID:   subjectID,
		Operation:   operation,
		RequestedBy: requestedBy,
		Details: map[string]int{
			"learning_events": counts.LearningEvents,
			"actions":         counts.Actions,
			"perceptions":     counts.Perceptions,
			"preferences":     counts.Preferences,
			"consent":         counts.Consent,
		},
		CreatedAt: s.now(),
	}
	if err := s.store.AddAuditLog(entry); err != nil {
		slog.Error("Service.writeAudit audit insert failed; retry out of band",
			"error", err, "subjectID", subjectID, "operation", operation)
		return false
	}
	return true
}

// touchedCategories lists the non-empty categories the operation affected.
func touchedCategories(counts models.DeletionCounts) []string {
	var categories []string
	if counts.LearningEvents > 0 {
		categories = append(categories, "learning_events")
	}
	if counts.Actions > 0 {
		categories = append(categories, "actions")
	}
	if counts.Perceptions > 0 {
		categories = append(categories, "perceptions")
	}
	if counts.Preferences > 0 {
		categories = append(categories, "preferences")
	}
	if counts.Consent > 0 {
		categories = append(categories, "consent")
	}
	return categories
}
