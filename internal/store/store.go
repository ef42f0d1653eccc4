// Package store provides storage backends for coachguard.
//
// It defines the persistence contract for the agent engine (perceptions,
// actions, preferences, consent, learning events, audit logs) and ships an
// in-memory store for tests plus SQLite and PostgreSQL implementations.
package store

import (
	"sync"
	"time"

	"github.com/strideworks/coachguard/internal/models"
)

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for a store backend.
type Option func(*Opts)

// WithDSN sets the database connection string (a file path for SQLite).
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// ActionFilter selects agent actions for listing. An explicit Status filter
// bypasses the expiry filter so audit and history views can see expired
// proposals; PendingOnly applies the default awaiting-decision view
// (status = proposed AND expires_at > now).
type ActionFilter struct {
	Status      models.ActionStatus
	PendingOnly bool
	Now         time.Time
}

// Store is the persistence contract for the agent engine. All operations are
// scoped by subject; cross-subject reads do not exist in this subsystem.
type Store interface {
	// Perceptions
	SavePerception(p models.PerceptionSnapshot) error
	GetPerception(id string) (*models.PerceptionSnapshot, error)
	CountPerceptions(subjectID string) (int, error)

	// Actions
	SaveAction(a models.AgentAction) error
	GetAction(id string) (*models.AgentAction, error)
	ListActions(subjectID string, f ActionFilter) ([]models.AgentAction, error)
	// ResolveAction transitions an action from StatusProposed to a terminal
	// status. It returns models.ErrActionNotPending if the action is no
	// longer in the proposed state, enforcing status monotonicity at the
	// storage layer.
	ResolveAction(id string, to models.ActionStatus, resolvedBy string, resolvedAt time.Time) error
	CountActions(subjectID string) (int, error)

	// Preferences and consent. Get methods return nil (not an error) when
	// no row exists; default synthesis is the autonomy layer's job.
	GetPreferences(subjectID string) (*models.AgentPreferences, error)
	SavePreferences(p models.AgentPreferences) error
	GetConsent(subjectID string) (*models.AgentConsent, error)
	SaveConsent(c models.AgentConsent) error

	// Learning events
	SaveLearningEvent(e models.LearningEvent) error
	CountLearningEvents(subjectID string) (int, error)

	// Privacy. Both operations run inside a single transaction, deleting in
	// dependency order (leaf tables first). Audit logs are never touched.
	DeleteAgentData(subjectID string) (models.DeletionCounts, error)
	AnonymizeAgentData(subjectID string) (models.DeletionCounts, error)

	// Audit log: append-only, retained indefinitely.
	AddAuditLog(e models.AuditLogEntry) error
	CountAuditLogs(subjectID string) (int, error)

	Close() error
}

// SubjectLocks serializes mutating operations per subject. Agent cycles for
// the same subject must not interleave, and a deletion must exclude a
// concurrent cycle creating new rows mid-delete. Different subjects never
// contend.
type SubjectLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSubjectLocks creates an empty lock registry.
func NewSubjectLocks() *SubjectLocks {
	return &SubjectLocks{locks: make(map[string]*sync.Mutex)}
}

// Acquire locks the subject and returns the release function.
func (l *SubjectLocks) Acquire(subjectID string) func() {
	l.mu.Lock()
	m, ok := l.locks[subjectID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[subjectID] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}
