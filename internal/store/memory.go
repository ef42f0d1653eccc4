// Package store provides storage backends for coachguard.
//
// This file implements an in-memory store used by tests and by deployments
// that do not need durability.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/strideworks/coachguard/internal/models"
)

// InMemoryStore is a mutex-guarded map-backed store. Safe for concurrent use.
type InMemoryStore struct {
	mu             sync.RWMutex
	perceptions    map[string]models.PerceptionSnapshot
	actions        map[string]models.AgentAction
	preferences    map[string]models.AgentPreferences
	consents       map[string]models.AgentConsent
	learningEvents map[string]models.LearningEvent
	auditLogs      []models.AuditLogEntry
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		perceptions:    make(map[string]models.PerceptionSnapshot),
		actions:        make(map[string]models.AgentAction),
		preferences:    make(map[string]models.AgentPreferences),
		consents:       make(map[string]models.AgentConsent),
		learningEvents: make(map[string]models.LearningEvent),
	}
}

func (s *InMemoryStore) SavePerception(p models.PerceptionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perceptions[p.ID] = p
	return nil
}

func (s *InMemoryStore) GetPerception(id string) (*models.PerceptionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.perceptions[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *InMemoryStore) CountPerceptions(subjectID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.perceptions {
		if p.SubjectID == subjectID {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) SaveAction(a models.AgentAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[a.ID] = a
	return nil
}

func (s *InMemoryStore) GetAction(id string) (*models.AgentAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actions[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *InMemoryStore) ListActions(subjectID string, f ActionFilter) ([]models.AgentAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.AgentAction
	for _, a := range s.actions {
		if a.SubjectID != subjectID {
			continue
		}
		if f.Status != "" {
			if a.Status != f.Status {
				continue
			}
		} else if f.PendingOnly {
			if a.Status != models.StatusProposed || !f.Now.Before(a.ExpiresAt) {
				continue
			}
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProposedAt.Before(out[j].ProposedAt) })
	return out, nil
}

func (s *InMemoryStore) ResolveAction(id string, to models.ActionStatus, resolvedBy string, resolvedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actions[id]
	if !ok {
		return models.ErrActionNotFound
	}
	if a.Status != models.StatusProposed {
		return models.ErrActionNotPending
	}
	a.Status = to
	a.ResolvedBy = resolvedBy
	a.ResolvedAt = &resolvedAt
	s.actions[id] = a
	return nil
}

func (s *InMemoryStore) CountActions(subjectID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.actions {
		if a.SubjectID == subjectID {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) GetPreferences(subjectID string) (*models.AgentPreferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.preferences[subjectID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *InMemoryStore) SavePreferences(p models.AgentPreferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preferences[p.SubjectID] = p
	return nil
}

func (s *InMemoryStore) GetConsent(subjectID string) (*models.AgentConsent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.consents[subjectID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *InMemoryStore) SaveConsent(c models.AgentConsent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consents[c.SubjectID] = c
	return nil
}

func (s *InMemoryStore) SaveLearningEvent(e models.LearningEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.learningEvents[e.ID] = e
	return nil
}

func (s *InMemoryStore) CountLearningEvents(subjectID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.learningEvents {
		if e.SubjectID == subjectID {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) DeleteAgentData(subjectID string) (models.DeletionCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var counts models.DeletionCounts
	for id, e := range s.learningEvents {
		if e.SubjectID == subjectID {
			delete(s.learningEvents, id)
			counts.LearningEvents++
		}
	}
	for id, a := range s.actions {
		if a.SubjectID == subjectID {
			delete(s.actions, id)
			counts.Actions++
		}
	}
	for id, p := range s.perceptions {
		if p.SubjectID == subjectID {
			delete(s.perceptions, id)
			counts.Perceptions++
		}
	}
	if _, ok := s.preferences[subjectID]; ok {
		delete(s.preferences, subjectID)
		counts.Preferences = 1
	}
	if _, ok := s.consents[subjectID]; ok {
		delete(s.consents, subjectID)
		counts.Consent = 1
	}
	return counts, nil
}

func (s *InMemoryStore) AnonymizeAgentData(subjectID string) (models.DeletionCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var counts models.DeletionCounts
	for id, e := range s.learningEvents {
		if e.SubjectID == subjectID {
			e.SubjectID = ""
			e.ActionID = ""
			s.learningEvents[id] = e
			counts.LearningEvents++
		}
	}
	for id, a := range s.actions {
		if a.SubjectID == subjectID {
			delete(s.actions, id)
			counts.Actions++
		}
	}
	for id, p := range s.perceptions {
		if p.SubjectID == subjectID {
			delete(s.perceptions, id)
			counts.Perceptions++
		}
	}
	if _, ok := s.preferences[subjectID]; ok {
		delete(s.preferences, subjectID)
		counts.Preferences = 1
	}
	if _, ok := s.consents[subjectID]; ok {
		delete(s.consents, subjectID)
		counts.Consent = 1
	}
	return counts, nil
}

func (s *InMemoryStore) AddAuditLog(e models.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditLogs = append(s.auditLogs, e)
	return nil
}

func (s *InMemoryStore) CountAuditLogs(subjectID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.auditLogs {
		if e.SubjectID == subjectID {
			n++
		}
	}
	return n, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
