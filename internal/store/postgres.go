// Package store provides storage backends for coachguard.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/strideworks/coachguard/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres store ready")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) SavePerception(p models.PerceptionSnapshot) error {
	injuriesJSON, err := marshalJSON(p.Injury.ActiveInjuries)
	if err != nil {
		slog.Error("PostgresStore SavePerception marshal failed", "error", err, "perceptionID", p.ID)
		return err
	}
	var readiness interface{}
	if p.Readiness.ReadinessScore != nil {
		readiness = *p.Readiness.ReadinessScore
	}
	_, err = s.db.Exec(`INSERT INTO agent_perceptions
		(id, subject_id, captured_at, acwr, acute_load, chronic_load, injuries, readiness_score, missed_workouts_7d)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.SubjectID, p.CapturedAt,
		p.TrainingLoad.ACWR, p.TrainingLoad.AcuteLoad, p.TrainingLoad.ChronicLoad,
		nilIfEmpty(injuriesJSON), readiness, p.Behavior.MissedWorkouts7d)
	if err != nil {
		slog.Error("PostgresStore SavePerception failed", "error", err, "perceptionID", p.ID)
		return fmt.Errorf("failed to insert perception %s: %w", p.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetPerception(id string) (*models.PerceptionSnapshot, error) {
	row := s.db.QueryRow(`SELECT id, subject_id, captured_at, acwr, acute_load, chronic_load, injuries, readiness_score, missed_workouts_7d
		FROM agent_perceptions WHERE id = $1`, id)
	p, err := scanPerception(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetPerception failed", "error", err, "perceptionID", id)
		return nil, fmt.Errorf("failed to get perception %s: %w", id, err)
	}
	return &p, nil
}

func (s *PostgresStore) CountPerceptions(subjectID string) (int, error) {
	return countRows(s.db, `SELECT COUNT(*) FROM agent_perceptions WHERE subject_id = $1`, subjectID)
}

func (s *PostgresStore) SaveAction(a models.AgentAction) error {
	paramsJSON, err := marshalJSON(a.Params)
	if err != nil {
		slog.Error("PostgresStore SaveAction marshal failed", "error", err, "actionID", a.ID)
		return err
	}
	var resolvedAt interface{}
	if a.ResolvedAt != nil {
		resolvedAt = *a.ResolvedAt
	}
	_, err = s.db.Exec(`INSERT INTO agent_actions
		(id, subject_id, perception_id, action_type, action_data, confidence, priority, status, requires_oversight, proposed_at, expires_at, resolved_at, resolved_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID, a.SubjectID, nilIfEmpty(a.PerceptionID), a.ActionType, nilIfEmpty(paramsJSON),
		a.Confidence, a.Priority, a.Status, a.RequiresOversight,
		a.ProposedAt, a.ExpiresAt, resolvedAt, nilIfEmpty(a.ResolvedBy))
	if err != nil {
		slog.Error("PostgresStore SaveAction failed", "error", err, "actionID", a.ID)
		return fmt.Errorf("failed to insert action %s: %w", a.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetAction(id string) (*models.AgentAction, error) {
	row := s.db.QueryRow(`SELECT id, subject_id, perception_id, action_type, action_data, confidence, priority, status, requires_oversight, proposed_at, expires_at, resolved_at, resolved_by
		FROM agent_actions WHERE id = $1`, id)
	a, err := scanAction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetAction failed", "error", err, "actionID", id)
		return nil, fmt.Errorf("failed to get action %s: %w", id, err)
	}
	return &a, nil
}

func (s *PostgresStore) ListActions(subjectID string, f ActionFilter) ([]models.AgentAction, error) {
	query := `SELECT id, subject_id, perception_id, action_type, action_data, confidence, priority, status, requires_oversight, proposed_at, expires_at, resolved_at, resolved_by
		FROM agent_actions WHERE subject_id = $1`
	args := []any{subjectID}
	if f.Status != "" {
		query += ` AND status = $2`
		args = append(args, f.Status)
	} else if f.PendingOnly {
		query += ` AND status = $2 AND expires_at > $3`
		args = append(args, models.StatusProposed, f.Now)
	}
	query += ` ORDER BY proposed_at`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("PostgresStore ListActions query failed", "error", err, "subjectID", subjectID)
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer rows.Close()

	var actions []models.AgentAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			slog.Error("PostgresStore ListActions scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan action row: %w", err)
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate action rows: %w", err)
	}
	return actions, nil
}

func (s *PostgresStore) ResolveAction(id string, to models.ActionStatus, resolvedBy string, resolvedAt time.Time) error {
	res, err := s.db.Exec(`UPDATE agent_actions SET status = $1, resolved_by = $2, resolved_at = $3
		WHERE id = $4 AND status = $5`,
		to, resolvedBy, resolvedAt, id, models.StatusProposed)
	if err != nil {
		slog.Error("PostgresStore ResolveAction failed", "error", err, "actionID", id)
		return fmt.Errorf("failed to resolve action %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		existing, err := s.GetAction(id)
		if err != nil {
			return err
		}
		if existing == nil {
			return models.ErrActionNotFound
		}
		return models.ErrActionNotPending
	}
	return nil
}

func (s *PostgresStore) CountActions(subjectID string) (int, error) {
	return countRows(s.db, `SELECT COUNT(*) FROM agent_actions WHERE subject_id = $1`, subjectID)
}

func (s *PostgresStore) GetPreferences(subjectID string) (*models.AgentPreferences, error) {
	row := s.db.QueryRow(`SELECT subject_id, autonomy_level, allow_workout_modification, allow_rest_day_injection, max_intensity_reduction, min_rest_days_per_week, max_consecutive_hard_days, notify_on_auto_apply, notify_on_proposal, updated_at
		FROM agent_preferences WHERE subject_id = $1`, subjectID)
	p, err := scanPreferences(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetPreferences failed", "error", err, "subjectID", subjectID)
		return nil, fmt.Errorf("failed to get preferences for %s: %w", subjectID, err)
	}
	return &p, nil
}

func (s *PostgresStore) SavePreferences(p models.AgentPreferences) error {
	_, err := s.db.Exec(`INSERT INTO agent_preferences
		(subject_id, autonomy_level, allow_workout_modification, allow_rest_day_injection, max_intensity_reduction, min_rest_days_per_week, max_consecutive_hard_days, notify_on_auto_apply, notify_on_proposal, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (subject_id) DO UPDATE SET
			autonomy_level = EXCLUDED.autonomy_level,
			allow_workout_modification = EXCLUDED.allow_workout_modification,
			allow_rest_day_injection = EXCLUDED.allow_rest_day_injection,
			max_intensity_reduction = EXCLUDED.max_intensity_reduction,
			min_rest_days_per_week = EXCLUDED.min_rest_days_per_week,
			max_consecutive_hard_days = EXCLUDED.max_consecutive_hard_days,
			notify_on_auto_apply = EXCLUDED.notify_on_auto_apply,
			notify_on_proposal = EXCLUDED.notify_on_proposal,
			updated_at = EXCLUDED.updated_at`,
		p.SubjectID, p.AutonomyLevel, p.AllowWorkoutModification, p.AllowRestDayInjection,
		p.MaxIntensityReduction, p.MinRestDaysPerWeek, p.MaxConsecutiveHardDays,
		p.NotifyOnAutoApply, p.NotifyOnProposal, p.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SavePreferences failed", "error", err, "subjectID", p.SubjectID)
		return fmt.Errorf("failed to save preferences for %s: %w", p.SubjectID, err)
	}
	return nil
}

func (s *PostgresStore) GetConsent(subjectID string) (*models.AgentConsent, error) {
	row := s.db.QueryRow(`SELECT subject_id, granted, is_withdrawn, updated_at
		FROM agent_consent WHERE subject_id = $1`, subjectID)
	c, err := scanConsent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetConsent failed", "error", err, "subjectID", subjectID)
		return nil, fmt.Errorf("failed to get consent for %s: %w", subjectID, err)
	}
	return &c, nil
}

func (s *PostgresStore) SaveConsent(c models.AgentConsent) error {
	grantedJSON, err := marshalJSON(c.Granted)
	if err != nil {
		slog.Error("PostgresStore SaveConsent marshal failed", "error", err, "subjectID", c.SubjectID)
		return err
	}
	_, err = s.db.Exec(`INSERT INTO agent_consent (subject_id, granted, is_withdrawn, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subject_id) DO UPDATE SET
			granted = EXCLUDED.granted,
			is_withdrawn = EXCLUDED.is_withdrawn,
			updated_at = EXCLUDED.updated_at`,
		c.SubjectID, nilIfEmpty(grantedJSON), c.IsWithdrawn, c.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveConsent failed", "error", err, "subjectID", c.SubjectID)
		return fmt.Errorf("failed to save consent for %s: %w", c.SubjectID, err)
	}
	return nil
}

func (s *PostgresStore) SaveLearningEvent(e models.LearningEvent) error {
	_, err := s.db.Exec(`INSERT INTO agent_learning_events (id, subject_id, action_id, action_type, outcome, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, nilIfEmpty(e.SubjectID), nilIfEmpty(e.ActionID), e.ActionType, e.Outcome, e.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveLearningEvent failed", "error", err, "eventID", e.ID)
		return fmt.Errorf("failed to insert learning event %s: %w", e.ID, err)
	}
	return nil
}

func (s *PostgresStore) CountLearningEvents(subjectID string) (int, error) {
	return countRows(s.db, `SELECT COUNT(*) FROM agent_learning_events WHERE subject_id = $1`, subjectID)
}

// DeleteAgentData removes every row owned by the subject inside a single
// transaction, leaf tables first. Audit logs are never touched here.
func (s *PostgresStore) DeleteAgentData(subjectID string) (models.DeletionCounts, error) {
	var counts models.DeletionCounts
	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("PostgresStore DeleteAgentData begin failed", "error", err, "subjectID", subjectID)
		return counts, fmt.Errorf("failed to begin deletion transaction: %w", err)
	}
	defer tx.Rollback()

	steps := []struct {
		dest  *int
		query string
	}{
		{&counts.LearningEvents, `DELETE FROM agent_learning_events WHERE subject_id = $1`},
		{&counts.Actions, `DELETE FROM agent_actions WHERE subject_id = $1`},
		{&counts.Perceptions, `DELETE FROM agent_perceptions WHERE subject_id = $1`},
		{&counts.Preferences, `DELETE FROM agent_preferences WHERE subject_id = $1`},
		{&counts.Consent, `DELETE FROM agent_consent WHERE subject_id = $1`},
	}
	for _, step := range steps {
		n, err := execDelete(tx, step.query, subjectID)
		if err != nil {
			slog.Error("PostgresStore DeleteAgentData step failed", "error", err, "subjectID", subjectID)
			return models.DeletionCounts{}, fmt.Errorf("failed to delete agent data for %s: %w", subjectID, err)
		}
		*step.dest = n
	}
	if err := tx.Commit(); err != nil {
		slog.Error("PostgresStore DeleteAgentData commit failed", "error", err, "subjectID", subjectID)
		return models.DeletionCounts{}, fmt.Errorf("failed to commit deletion for %s: %w", subjectID, err)
	}
	return counts, nil
}

// AnonymizeAgentData de-links learning events from the subject and deletes
// everything else, inside a single transaction.
func (s *PostgresStore) AnonymizeAgentData(subjectID string) (models.DeletionCounts, error) {
	var counts models.DeletionCounts
	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("PostgresStore AnonymizeAgentData begin failed", "error", err, "subjectID", subjectID)
		return counts, fmt.Errorf("failed to begin anonymization transaction: %w", err)
	}
	defer tx.Rollback()

	n, err := execDelete(tx, `UPDATE agent_learning_events SET subject_id = NULL, action_id = NULL WHERE subject_id = $1`, subjectID)
	if err != nil {
		return models.DeletionCounts{}, fmt.Errorf("failed to anonymize learning events for %s: %w", subjectID, err)
	}
	counts.LearningEvents = n

	steps := []struct {
		dest  *int
		query string
	}{
		{&counts.Actions, `DELETE FROM agent_actions WHERE subject_id = $1`},
		{&counts.Perceptions, `DELETE FROM agent_perceptions WHERE subject_id = $1`},
		{&counts.Preferences, `DELETE FROM agent_preferences WHERE subject_id = $1`},
		{&counts.Consent, `DELETE FROM agent_consent WHERE subject_id = $1`},
	}
	for _, step := range steps {
		n, err := execDelete(tx, step.query, subjectID)
		if err != nil {
			return models.DeletionCounts{}, fmt.Errorf("failed to anonymize agent data for %s: %w", subjectID, err)
		}
		*step.dest = n
	}
	if err := tx.Commit(); err != nil {
		return models.DeletionCounts{}, fmt.Errorf("failed to commit anonymization for %s: %w", subjectID, err)
	}
	return counts, nil
}

func (s *PostgresStore) AddAuditLog(e models.AuditLogEntry) error {
	detailsJSON, err := marshalJSON(e.Details)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO agent_audit_logs (id, subject_id, operation, requested_by, details, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.SubjectID, e.Operation, e.RequestedBy, nilIfEmpty(detailsJSON), e.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore AddAuditLog failed", "error", err, "subjectID", e.SubjectID, "operation", e.Operation)
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountAuditLogs(subjectID string) (int, error) {
	return countRows(s.db, `SELECT COUNT(*) FROM agent_audit_logs WHERE subject_id = $1`, subjectID)
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
