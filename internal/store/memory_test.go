package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/strideworks/coachguard/internal/models"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestInMemoryStorePerceptions(t *testing.T) {
	s := NewInMemoryStore()
	p := models.PerceptionSnapshot{ID: "p1", SubjectID: "athlete-1", CapturedAt: testNow}
	if err := s.SavePerception(p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := s.GetPerception("p1")
	if err != nil || got == nil {
		t.Fatalf("perception not stored: %v", err)
	}
	if got.SubjectID != "athlete-1" {
		t.Errorf("SubjectID = %s, want athlete-1", got.SubjectID)
	}
	if missing, err := s.GetPerception("nope"); err != nil || missing != nil {
		t.Error("missing perception should return nil, nil")
	}
	if n, _ := s.CountPerceptions("athlete-1"); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestInMemoryStoreResolveAction(t *testing.T) {
	s := NewInMemoryStore()
	a := models.AgentAction{
		ID: "a1", SubjectID: "athlete-1", ActionType: models.ActionMotivationalNudge,
		Status: models.StatusProposed, ProposedAt: testNow, ExpiresAt: testNow.Add(time.Hour),
	}
	if err := s.SaveAction(a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.ResolveAction("a1", models.StatusAccepted, "coach-9", testNow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := s.GetAction("a1")
	if got.Status != models.StatusAccepted || got.ResolvedBy != "coach-9" || got.ResolvedAt == nil {
		t.Errorf("resolution not recorded: %+v", got)
	}

	// Terminal actions never transition again.
	if err := s.ResolveAction("a1", models.StatusRejected, "athlete-1", testNow); !errors.Is(err, models.ErrActionNotPending) {
		t.Errorf("second resolve = %v, want ErrActionNotPending", err)
	}
	if err := s.ResolveAction("missing", models.StatusAccepted, "coach-9", testNow); !errors.Is(err, models.ErrActionNotFound) {
		t.Errorf("missing resolve = %v, want ErrActionNotFound", err)
	}
}

func TestInMemoryStoreResolveActionConcurrent(t *testing.T) {
	s := NewInMemoryStore()
	s.SaveAction(models.AgentAction{
		ID: "a1", SubjectID: "athlete-1", ActionType: models.ActionMotivationalNudge,
		Status: models.StatusProposed, ProposedAt: testNow, ExpiresAt: testNow.Add(time.Hour),
	})

	const racers = 8
	var wg sync.WaitGroup
	wins := make(chan models.ActionStatus, racers)
	for i := 0; i < racers; i++ {
		to := models.StatusAccepted
		if i%2 == 1 {
			to = models.StatusRejected
		}
		wg.Add(1)
		go func(to models.ActionStatus) {
			defer wg.Done()
			if err := s.ResolveAction("a1", to, "racer", testNow); err == nil {
				wins <- to
			}
		}(to)
	}
	wg.Wait()
	close(wins)

	var winners []models.ActionStatus
	for w := range wins {
		winners = append(winners, w)
	}
	if len(winners) != 1 {
		t.Fatalf("winners = %d, want exactly 1", len(winners))
	}
	got, _ := s.GetAction("a1")
	if got.Status != winners[0] {
		t.Errorf("final status = %s, want the winner %s", got.Status, winners[0])
	}
}

func TestInMemoryStoreListActions(t *testing.T) {
	s := NewInMemoryStore()
	actions := []models.AgentAction{
		{ID: "fresh", SubjectID: "athlete-1", Status: models.StatusProposed, ProposedAt: testNow, ExpiresAt: testNow.Add(time.Hour)},
		{ID: "expired", SubjectID: "athlete-1", Status: models.StatusProposed, ProposedAt: testNow.Add(-2 * time.Hour), ExpiresAt: testNow.Add(-time.Hour)},
		{ID: "done", SubjectID: "athlete-1", Status: models.StatusAccepted, ProposedAt: testNow.Add(-time.Minute), ExpiresAt: testNow.Add(time.Hour)},
		{ID: "other", SubjectID: "athlete-2", Status: models.StatusProposed, ProposedAt: testNow, ExpiresAt: testNow.Add(time.Hour)},
	}
	for _, a := range actions {
		s.SaveAction(a)
	}

	pending, err := s.ListActions("athlete-1", ActionFilter{PendingOnly: true, Now: testNow})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "fresh" {
		t.Errorf("pending view = %+v, want only 'fresh'", pending)
	}

	// An explicit status filter includes expired proposals.
	proposed, err := s.ListActions("athlete-1", ActionFilter{Status: models.StatusProposed})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(proposed) != 2 {
		t.Errorf("proposed view = %d entries, want 2", len(proposed))
	}
	// Ordered by proposal time.
	if proposed[0].ID != "expired" || proposed[1].ID != "fresh" {
		t.Errorf("ordering wrong: %s, %s", proposed[0].ID, proposed[1].ID)
	}
}

func TestInMemoryStorePreferencesAndConsent(t *testing.T) {
	s := NewInMemoryStore()
	if p, err := s.GetPreferences("athlete-1"); err != nil || p != nil {
		t.Error("missing preferences should return nil, nil")
	}
	s.SavePreferences(models.AgentPreferences{SubjectID: "athlete-1", AutonomyLevel: models.AutonomyLimited})
	p, _ := s.GetPreferences("athlete-1")
	if p == nil || p.AutonomyLevel != models.AutonomyLimited {
		t.Error("preferences roundtrip failed")
	}

	// Save is an upsert.
	s.SavePreferences(models.AgentPreferences{SubjectID: "athlete-1", AutonomyLevel: models.AutonomyAutonomous})
	p, _ = s.GetPreferences("athlete-1")
	if p.AutonomyLevel != models.AutonomyAutonomous {
		t.Error("preferences upsert failed")
	}

	s.SaveConsent(models.AgentConsent{SubjectID: "athlete-1", Granted: []models.ConsentCategory{models.ConsentAgentCoaching}})
	c, _ := s.GetConsent("athlete-1")
	if c == nil || !c.HasGranted(models.ConsentAgentCoaching) {
		t.Error("consent roundtrip failed")
	}
}

func TestInMemoryStoreAnonymizePreservesLearningEvents(t *testing.T) {
	s := NewInMemoryStore()
	s.SaveLearningEvent(models.LearningEvent{ID: "e1", SubjectID: "athlete-1", ActionID: "a1", ActionType: models.ActionReduceIntensity, Outcome: "accepted", CreatedAt: testNow})
	s.SavePerception(models.PerceptionSnapshot{ID: "p1", SubjectID: "athlete-1", CapturedAt: testNow})
	s.SaveConsent(models.AgentConsent{SubjectID: "athlete-1"})

	counts, err := s.AnonymizeAgentData("athlete-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts.LearningEvents != 1 || counts.Perceptions != 1 || counts.Consent != 1 {
		t.Errorf("counts = %+v", counts)
	}

	// The event row survives with the subject linkage stripped.
	e, ok := s.learningEvents["e1"]
	if !ok {
		t.Fatal("learning event deleted by anonymization")
	}
	if e.SubjectID != "" || e.ActionID != "" {
		t.Errorf("linkage not stripped: %+v", e)
	}
	if e.ActionType != models.ActionReduceIntensity || e.Outcome != "accepted" {
		t.Error("learning signal lost")
	}
}

func TestSubjectLocksSerialize(t *testing.T) {
	locks := NewSubjectLocks()

	release := locks.Acquire("athlete-1")
	acquired := make(chan struct{})
	go func() {
		r := locks.Acquire("athlete-1")
		close(acquired)
		r()
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while the lock was held")
	case <-time.After(20 * time.Millisecond):
	}

	// A different subject is not blocked.
	done := make(chan struct{})
	go func() {
		r := locks.Acquire("athlete-2")
		r()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("unrelated subject blocked")
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock never handed over after release")
	}
}
