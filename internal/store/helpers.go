package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/strideworks/coachguard/internal/models"
)

// rowScanner abstracts *sql.Row and *sql.Rows so scan helpers work for both.
type rowScanner interface {
	Scan(dest ...any) error
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// marshalJSON serializes v for a TEXT column, returning "" for nil values.
func marshalJSON(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal failed: %w", err)
	}
	return string(b), nil
}

// scanPerception scans a PerceptionSnapshot row.
func scanPerception(sc rowScanner) (models.PerceptionSnapshot, error) {
	var p models.PerceptionSnapshot
	var injuriesJSON sql.NullString
	var readiness sql.NullInt64
	err := sc.Scan(
		&p.ID, &p.SubjectID, &p.CapturedAt,
		&p.TrainingLoad.ACWR, &p.TrainingLoad.AcuteLoad, &p.TrainingLoad.ChronicLoad,
		&injuriesJSON, &readiness, &p.Behavior.MissedWorkouts7d,
	)
	if err != nil {
		return p, err
	}
	if injuriesJSON.Valid && injuriesJSON.String != "" {
		if err := json.Unmarshal([]byte(injuriesJSON.String), &p.Injury.ActiveInjuries); err != nil {
			slog.Error("store: failed to unmarshal injuries", "error", err, "perceptionID", p.ID)
			// Keep the row readable; injuries degrade to empty.
			p.Injury.ActiveInjuries = nil
		}
	}
	if readiness.Valid {
		score := int(readiness.Int64)
		p.Readiness.ReadinessScore = &score
	}
	return p, nil
}

// scanAction scans an AgentAction row.
func scanAction(sc rowScanner) (models.AgentAction, error) {
	var a models.AgentAction
	var perceptionID, paramsJSON, resolvedBy sql.NullString
	var resolvedAt sql.NullTime
	err := sc.Scan(
		&a.ID, &a.SubjectID, &perceptionID, &a.ActionType, &paramsJSON,
		&a.Confidence, &a.Priority, &a.Status, &a.RequiresOversight,
		&a.ProposedAt, &a.ExpiresAt, &resolvedAt, &resolvedBy,
	)
	if err != nil {
		return a, err
	}
	a.PerceptionID = perceptionID.String
	a.ResolvedBy = resolvedBy.String
	if resolvedAt.Valid {
		a.ResolvedAt = &resolvedAt.Time
	}
	if paramsJSON.Valid && paramsJSON.String != "" {
		if err := json.Unmarshal([]byte(paramsJSON.String), &a.Params); err != nil {
			return a, fmt.Errorf("unmarshal action params failed: %w", err)
		}
	}
	return a, nil
}

// scanPreferences scans an AgentPreferences row.
func scanPreferences(sc rowScanner) (models.AgentPreferences, error) {
	var p models.AgentPreferences
	err := sc.Scan(
		&p.SubjectID, &p.AutonomyLevel,
		&p.AllowWorkoutModification, &p.AllowRestDayInjection,
		&p.MaxIntensityReduction, &p.MinRestDaysPerWeek, &p.MaxConsecutiveHardDays,
		&p.NotifyOnAutoApply, &p.NotifyOnProposal, &p.UpdatedAt,
	)
	return p, err
}

// scanConsent scans an AgentConsent row.
func scanConsent(sc rowScanner) (models.AgentConsent, error) {
	var c models.AgentConsent
	var grantedJSON sql.NullString
	err := sc.Scan(&c.SubjectID, &grantedJSON, &c.IsWithdrawn, &c.UpdatedAt)
	if err != nil {
		return c, err
	}
	if grantedJSON.Valid && grantedJSON.String != "" {
		if err := json.Unmarshal([]byte(grantedJSON.String), &c.Granted); err != nil {
			return c, fmt.Errorf("unmarshal granted consent failed: %w", err)
		}
	}
	return c, nil
}

// execDelete runs a delete/update statement inside a transaction and returns
// the affected row count.
func execDelete(tx *sql.Tx, query string, args ...any) (int, error) {
	res, err := tx.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// countRows runs a COUNT query and scans the single result.
func countRows(db *sql.DB, query string, args ...any) (int, error) {
	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
