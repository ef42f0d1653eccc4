package privacy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/strideworks/coachguard/internal/models"
	"github.com/strideworks/coachguard/internal/store"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func seedSubject(t *testing.T, st store.Store, subjectID string) {
	t.Helper()
	for _, p := range []models.PerceptionSnapshot{
		{ID: subjectID + "-p1", SubjectID: subjectID, CapturedAt: testNow},
		{ID: subjectID + "-p2", SubjectID: subjectID, CapturedAt: testNow},
	} {
		if err := st.SavePerception(p); err != nil {
			t.Fatalf("seed perception: %v", err)
		}
	}
	for _, a := range []models.AgentAction{
		{ID: subjectID + "-a1", SubjectID: subjectID, ActionType: models.ActionMotivationalNudge, Status: models.StatusProposed, ProposedAt: testNow, ExpiresAt: testNow.Add(time.Hour)},
		{ID: subjectID + "-a2", SubjectID: subjectID, ActionType: models.ActionReduceIntensity, Status: models.StatusAutoApplied, ProposedAt: testNow, ExpiresAt: testNow.Add(time.Hour)},
	} {
		if err := st.SaveAction(a); err != nil {
			t.Fatalf("seed action: %v", err)
		}
	}
	if err := st.SavePreferences(models.AgentPreferences{SubjectID: subjectID, AutonomyLevel: models.AutonomySupervised}); err != nil {
		t.Fatalf("seed preferences: %v", err)
	}
	if err := st.SaveConsent(models.AgentConsent{SubjectID: subjectID, Granted: []models.ConsentCategory{models.ConsentAgentCoaching}}); err != nil {
		t.Fatalf("seed consent: %v", err)
	}
	for _, e := range []models.LearningEvent{
		{ID: subjectID + "-e1", SubjectID: subjectID, ActionID: subjectID + "-a2", ActionType: models.ActionReduceIntensity, Outcome: "auto_applied", CreatedAt: testNow},
		{ID: subjectID + "-e2", SubjectID: subjectID, ActionID: subjectID + "-a1", ActionType: models.ActionMotivationalNudge, Outcome: "accepted", CreatedAt: testNow},
		{ID: subjectID + "-e3", SubjectID: subjectID, ActionID: subjectID + "-a1", ActionType: models.ActionMotivationalNudge, Outcome: "rejected", CreatedAt: testNow},
	} {
		if err := st.SaveLearningEvent(e); err != nil {
			t.Fatalf("seed learning event: %v", err)
		}
	}
}

func TestDeleteAgentData(t *testing.T) {
	st := store.NewInMemoryStore()
	seedSubject(t, st, "athlete-1")
	seedSubject(t, st, "athlete-2")
	svc := NewServiceWithClock(st, store.NewSubjectLocks(), func() time.Time { return testNow })

	result, err := svc.DeleteAgentData(context.Background(), "athlete-1", "athlete-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := models.DeletionCounts{LearningEvents: 3, Actions: 2, Perceptions: 2, Preferences: 1, Consent: 1}
	if result.Counts != want {
		t.Errorf("counts = %+v, want %+v", result.Counts, want)
	}
	if !result.AuditLogged {
		t.Error("audit entry should have been written")
	}
	if len(result.Categories) != 5 {
		t.Errorf("categories = %v, want all five", result.Categories)
	}

	// Every category reads back empty; the audit trail gains exactly one entry.
	summary, err := svc.GetDataSummary(context.Background(), "athlete-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Perceptions != 0 || summary.Actions != 0 || summary.LearningEvents != 0 ||
		summary.Preferences != 0 || summary.Consent != 0 {
		t.Errorf("post-deletion summary not empty: %+v", summary)
	}
	if summary.AuditLogs != 1 {
		t.Errorf("audit logs = %d, want 1", summary.AuditLogs)
	}

	// The other subject is untouched.
	other, err := svc.GetDataSummary(context.Background(), "athlete-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other.Perceptions != 2 || other.Actions != 2 || other.LearningEvents != 3 {
		t.Errorf("unrelated subject affected: %+v", other)
	}
}

func TestDeleteAgentDataIdempotent(t *testing.T) {
	st := store.NewInMemoryStore()
	seedSubject(t, st, "athlete-1")
	svc := NewService(st, store.NewSubjectLocks())

	if _, err := svc.DeleteAgentData(context.Background(), "athlete-1", "athlete-1"); err != nil {
		t.Fatalf("first deletion: %v", err)
	}
	second, err := svc.DeleteAgentData(context.Background(), "athlete-1", "athlete-1")
	if err != nil {
		t.Fatalf("repeat deletion must succeed: %v", err)
	}
	if second.Counts.Total() != 0 {
		t.Errorf("repeat deletion removed %d rows, want 0", second.Counts.Total())
	}
	if len(second.Categories) != 0 {
		t.Errorf("repeat deletion touched categories %v", second.Categories)
	}
}

func TestAnonymizeAgentData(t *testing.T) {
	st := store.NewInMemoryStore()
	seedSubject(t, st, "athlete-1")
	svc := NewService(st, store.NewSubjectLocks())

	result, err := svc.AnonymizeAgentData(context.Background(), "athlete-1", "coach-9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Counts.LearningEvents != 3 {
		t.Errorf("anonymized learning events = %d, want 3", result.Counts.LearningEvents)
	}
	if !result.AuditLogged {
		t.Error("audit entry should have been written")
	}

	// Learning events survive but are no longer reachable by subject.
	n, err := st.CountLearningEvents("athlete-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("subject-linked learning events = %d, want 0", n)
	}
	// Identifying rows are gone.
	if prefs, _ := st.GetPreferences("athlete-1"); prefs != nil {
		t.Error("preferences survived anonymization")
	}
	if c, _ := st.GetConsent("athlete-1"); c != nil {
		t.Error("consent survived anonymization")
	}
}

func TestEmptySubjectRejected(t *testing.T) {
	svc := NewService(store.NewInMemoryStore(), store.NewSubjectLocks())
	if _, err := svc.DeleteAgentData(context.Background(), "", "x"); !errors.Is(err, models.ErrEmptySubject) {
		t.Errorf("DeleteAgentData = %v, want ErrEmptySubject", err)
	}
	if _, err := svc.AnonymizeAgentData(context.Background(), "", "x"); !errors.Is(err, models.ErrEmptySubject) {
		t.Errorf("AnonymizeAgentData = %v, want ErrEmptySubject", err)
	}
	if _, err := svc.GetDataSummary(context.Background(), ""); !errors.Is(err, models.ErrEmptySubject) {
		t.Errorf("GetDataSummary = %v, want ErrEmptySubject", err)
	}
}

// failingAuditStore breaks only the audit insert.
type failingAuditStore struct {
	store.Store
}

func (f *failingAuditStore) AddAuditLog(e models.AuditLogEntry) error {
	return errors.New("audit table unavailable")
}

func TestAuditFailureDoesNotFailDeletion(t *testing.T) {
	inner := store.NewInMemoryStore()
	seedSubject(t, inner, "athlete-1")
	svc := NewService(&failingAuditStore{Store: inner}, store.NewSubjectLocks())

	result, err := svc.DeleteAgentData(context.Background(), "athlete-1", "athlete-1")
	if err != nil {
		t.Fatalf("audit failure must not fail the deletion: %v", err)
	}
	if result.AuditLogged {
		t.Error("AuditLogged should be false when the insert fails")
	}
	if result.Counts.Total() == 0 {
		t.Error("deletion counts lost")
	}
	// The data-removal guarantee still holds.
	if n, _ := inner.CountPerceptions("athlete-1"); n != 0 {
		t.Error("perceptions survived despite successful deletion")
	}
}
