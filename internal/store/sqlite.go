// Package store provides storage backends for coachguard.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/strideworks/coachguard/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite store ready", "dir", dir)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SavePerception(p models.PerceptionSnapshot) error {
	injuriesJSON, err := marshalJSON(p.Injury.ActiveInjuries)
	if err != nil {
		slog.Error("SQLiteStore SavePerception marshal failed", "error", err, "perceptionID", p.ID)
		return err
	}
	var readiness interface{}
	if p.Readiness.ReadinessScore != nil {
		readiness = *p.Readiness.ReadinessScore
	}
	_, err = s.db.Exec(`INSERT INTO agent_perceptions
		(id, subject_id, captured_at, acwr, acute_load, chronic_load, injuries, readiness_score, missed_workouts_7d)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.SubjectID, p.CapturedAt,
		p.TrainingLoad.ACWR, p.TrainingLoad.AcuteLoad, p.TrainingLoad.ChronicLoad,
		nilIfEmpty(injuriesJSON), readiness, p.Behavior.MissedWorkouts7d)
	if err != nil {
		slog.Error("SQLiteStore SavePerception failed", "error", err, "perceptionID", p.ID)
		return fmt.Errorf("failed to insert perception %s: %w", p.ID, err)
	}
	slog.Debug("SQLiteStore SavePerception succeeded", "perceptionID", p.ID, "subjectID", p.SubjectID)
	return nil
}

func (s *SQLiteStore) GetPerception(id string) (*models.PerceptionSnapshot, error) {
	row := s.db.QueryRow(`SELECT id, subject_id, captured_at, acwr, acute_load, chronic_load, injuries, readiness_score, missed_workouts_7d
		FROM agent_perceptions WHERE id = ?`, id)
	p, err := scanPerception(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetPerception failed", "error", err, "perceptionID", id)
		return nil, fmt.Errorf("failed to get perception %s: %w", id, err)
	}
	return &p, nil
}

func (s *SQLiteStore) CountPerceptions(subjectID string) (int, error) {
	return countRows(s.db, `SELECT COUNT(*) FROM agent_perceptions WHERE subject_id = ?`, subjectID)
}

func (s *SQLiteStore) SaveAction(a models.AgentAction) error {
	paramsJSON, err := marshalJSON(a.Params)
	if err != nil {
		slog.Error("SQLiteStore SaveAction marshal failed", "error", err, "actionID", a.ID)
		return err
	}
	var resolvedAt interface{}
	if a.ResolvedAt != nil {
		resolvedAt = *a.ResolvedAt
	}
	_, err = s.db.Exec(`INSERT INTO agent_actions
		(id, subject_id, perception_id, action_type, action_data, confidence, priority, status, requires_oversight, proposed_at, expires_at, resolved_at, resolved_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SubjectID, nilIfEmpty(a.PerceptionID), a.ActionType, nilIfEmpty(paramsJSON),
		a.Confidence, a.Priority, a.Status, a.RequiresOversight,
		a.ProposedAt, a.ExpiresAt, resolvedAt, nilIfEmpty(a.ResolvedBy))
	if err != nil {
		slog.Error("SQLiteStore SaveAction failed", "error", err, "actionID", a.ID)
		return fmt.Errorf("failed to insert action %s: %w", a.ID, err)
	}
	slog.Debug("SQLiteStore SaveAction succeeded", "actionID", a.ID, "subjectID", a.SubjectID, "status", a.Status)
	return nil
}

func (s *SQLiteStore) GetAction(id string) (*models.AgentAction, error) {
	row := s.db.QueryRow(`SELECT id, subject_id, perception_id, action_type, action_data, confidence, priority, status, requires_oversight, proposed_at, expires_at, resolved_at, resolved_by
		FROM agent_actions WHERE id = ?`, id)
	a, err := scanAction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetAction failed", "error", err, "actionID", id)
		return nil, fmt.Errorf("failed to get action %s: %w", id, err)
	}
	return &a, nil
}

func (s *SQLiteStore) ListActions(subjectID string, f ActionFilter) ([]models.AgentAction, error) {
	query := `SELECT id, subject_id, perception_id, action_type, action_data, confidence, priority, status, requires_oversight, proposed_at, expires_at, resolved_at, resolved_by
		FROM agent_actions WHERE subject_id = ?`
	args := []any{subjectID}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	} else if f.PendingOnly {
		query += ` AND status = ? AND expires_at > ?`
		args = append(args, models.StatusProposed, f.Now)
	}
	query += ` ORDER BY proposed_at`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("SQLiteStore ListActions query failed", "error", err, "subjectID", subjectID)
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer rows.Close()

	var actions []models.AgentAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			slog.Error("SQLiteStore ListActions scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan action row: %w", err)
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate action rows: %w", err)
	}
	slog.Debug("SQLiteStore ListActions succeeded", "subjectID", subjectID, "count", len(actions))
	return actions, nil
}

func (s *SQLiteStore) ResolveAction(id string, to models.ActionStatus, resolvedBy string, resolvedAt time.Time) error {
	// The status guard in the WHERE clause enforces monotonicity: terminal
	// rows never match.
	res, err := s.db.Exec(`UPDATE agent_actions SET status = ?, resolved_by = ?, resolved_at = ?
		WHERE id = ? AND status = ?`,
		to, resolvedBy, resolvedAt, id, models.StatusProposed)
	if err != nil {
		slog.Error("SQLiteStore ResolveAction failed", "error", err, "actionID", id)
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
	slog.Debug("SQLiteStore ResolveAction succeeded", "actionID", id, "status", to)
	return nil
}

func (s *SQLiteStore) CountActions(subjectID string) (int, error) {
	return countRows(s.db, `SELECT COUNT(*) FROM agent_actions WHERE subject_id = ?`, subjectID)
}

func (s *SQLiteStore) GetPreferences(subjectID string) (*models.AgentPreferences, error) {
	row := s.db.QueryRow(`SELECT subject_id, autonomy_level, allow_workout_modification, allow_rest_day_injection, max_intensity_reduction, min_rest_days_per_week, max_consecutive_hard_days, notify_on_auto_apply, notify_on_proposal, updated_at
		FROM agent_preferences WHERE subject_id = ?`, subjectID)
	p, err := scanPreferences(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetPreferences not found", "subjectID", subjectID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetPreferences failed", "error", err, "subjectID", subjectID)
		return nil, fmt.Errorf("failed to get preferences for %s: %w", subjectID, err)
	}
	return &p, nil
}

func (s *SQLiteStore) SavePreferences(p models.AgentPreferences) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO agent_preferences
		(subject_id, autonomy_level, allow_workout_modification, allow_rest_day_injection, max_intensity_reduction, min_rest_days_per_week, max_consecutive_hard_days, notify_on_auto_apply, notify_on_proposal, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.SubjectID, p.AutonomyLevel, p.AllowWorkoutModification, p.AllowRestDayInjection,
		p.MaxIntensityReduction, p.MinRestDaysPerWeek, p.MaxConsecutiveHardDays,
		p.NotifyOnAutoApply, p.NotifyOnProposal, p.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SavePreferences failed", "error", err, "subjectID", p.SubjectID)
		return fmt.Errorf("failed to save preferences for %s: %w", p.SubjectID, err)
	}
	slog.Debug("SQLiteStore SavePreferences succeeded", "subjectID", p.SubjectID, "autonomyLevel", p.AutonomyLevel)
	return nil
}

func (s *SQLiteStore) GetConsent(subjectID string) (*models.AgentConsent, error) {
	row := s.db.QueryRow(`SELECT subject_id, granted, is_withdrawn, updated_at
		FROM agent_consent WHERE subject_id = ?`, subjectID)
	c, err := scanConsent(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetConsent not found", "subjectID", subjectID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetConsent failed", "error", err, "subjectID", subjectID)
		return nil, fmt.Errorf("failed to get consent for %s: %w", subjectID, err)
	}
	return &c, nil
}

func (s *SQLiteStore) SaveConsent(c models.AgentConsent) error {
	grantedJSON, err := marshalJSON(c.Granted)
	if err != nil {
		slog.Error("SQLiteStore SaveConsent marshal failed", "error", err, "subjectID", c.SubjectID)
		return err
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO agent_consent (subject_id, granted, is_withdrawn, updated_at) VALUES (?, ?, ?, ?)`,
		c.SubjectID, nilIfEmpty(grantedJSON), c.IsWithdrawn, c.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveConsent failed", "error", err, "subjectID", c.SubjectID)
		return fmt.Errorf("failed to save consent for %s: %w", c.SubjectID, err)
	}
	slog.Debug("SQLiteStore SaveConsent succeeded", "subjectID", c.SubjectID, "isWithdrawn", c.IsWithdrawn)
	return nil
}

func (s *SQLiteStore) SaveLearningEvent(e models.LearningEvent) error {
	_, err := s.db.Exec(`INSERT INTO agent_learning_events (id, subject_id, action_id, action_type, outcome, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, nilIfEmpty(e.SubjectID), nilIfEmpty(e.ActionID), e.ActionType, e.Outcome, e.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveLearningEvent failed", "error", err, "eventID", e.ID)
		return fmt.Errorf("failed to insert learning event %s: %w", e.ID, err)
	}
	return nil
}

func (s *SQLiteStore) CountLearningEvents(subjectID string) (int, error) {
	return countRows(s.db, `SELECT COUNT(*) FROM agent_learning_events WHERE subject_id = ?`, subjectID)
}

// DeleteAgentData removes every row owned by the subject inside a single
// transaction, leaf tables first. Audit logs are never touched here.
func (s *SQLiteStore) DeleteAgentData(subjectID string) (models.DeletionCounts, error) {
	var counts models.DeletionCounts
	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("SQLiteStore DeleteAgentData begin failed", "error", err, "subjectID", subjectID)
		return counts, fmt.Errorf("failed to begin deletion transaction: %w", err)
	}
	defer tx.Rollback()

	steps := []struct {
		dest  *int
		query string
	}{
		{&counts.LearningEvents, `DELETE FROM agent_learning_events WHERE subject_id = ?`},
		{&counts.Actions, `DELETE FROM agent_actions WHERE subject_id = ?`},
		{&counts.Perceptions, `DELETE FROM agent_perceptions WHERE subject_id = ?`},
		{&counts.Preferences, `DELETE FROM agent_preferences WHERE subject_id = ?`},
		{&counts.Consent, `DELETE FROM agent_consent WHERE subject_id = ?`},
	}
	for _, step := range steps {
		n, err := execDelete(tx, step.query, subjectID)
		if err != nil {
			slog.Error("SQLiteStore DeleteAgentData step failed", "error", err, "subjectID", subjectID)
			return models.DeletionCounts{}, fmt.Errorf("failed to delete agent data for %s: %w", subjectID, err)
		}
		*step.dest = n
	}
	if err := tx.Commit(); err != nil {
		slog.Error("SQLiteStore DeleteAgentData commit failed", "error", err, "subjectID", subjectID)
		return models.DeletionCounts{}, fmt.Errorf("failed to commit deletion for %s: %w", subjectID, err)
	}
	slog.Debug("SQLiteStore DeleteAgentData succeeded", "subjectID", subjectID, "total", counts.Total())
	return counts, nil
}

// AnonymizeAgentData de-links learning events from the subject and deletes
// everything else, inside a single transaction.
func (s *SQLiteStore) AnonymizeAgentData(subjectID string) (models.DeletionCounts, error) {
	var counts models.DeletionCounts
	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("SQLiteStore AnonymizeAgentData begin failed", "error", err, "subjectID", subjectID)
		return counts, fmt.Errorf("failed to begin anonymization transaction: %w", err)
	}
	defer tx.Rollback()

	n, err := execDelete(tx, `UPDATE agent_learning_events SET subject_id = NULL, action_id = NULL WHERE subject_id = ?`, subjectID)
	if err != nil {
		return models.DeletionCounts{}, fmt.Errorf("failed to anonymize learning events for %s: %w", subjectID, err)
	}
	counts.LearningEvents = n

	steps := []struct {
		dest  *int
		query string
	}{
		{&counts.Actions, `DELETE FROM agent_actions WHERE subject_id = ?`},
		{&counts.Perceptions, `DELETE FROM agent_perceptions WHERE subject_id = ?`},
		{&counts.Preferences, `DELETE FROM agent_preferences WHERE subject_id = ?`},
		{&counts.Consent, `DELETE FROM agent_consent WHERE subject_id = ?`},
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
	slog.Debug("SQLiteStore AnonymizeAgentData succeeded", "subjectID", subjectID, "total", counts.Total())
	return counts, nil
}

func (s *SQLiteStore) AddAuditLog(e models.AuditLogEntry) error {
	detailsJSON, err := marshalJSON(e.Details)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO agent_audit_logs (id, subject_id, operation, requested_by, details, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.SubjectID, e.Operation, e.RequestedBy, nilIfEmpty(detailsJSON), e.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AddAuditLog failed", "error", err, "subjectID", e.SubjectID, "operation", e.Operation)
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	slog.Debug("SQLiteStore AddAuditLog succeeded", "subjectID", e.SubjectID, "operation", e.Operation)
	return nil
}

func (s *SQLiteStore) CountAuditLogs(subjectID string) (int, error) {
	return countRows(s.db, `SELECT COUNT(*) FROM agent_audit_logs WHERE subject_id = ?`, subjectID)
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
