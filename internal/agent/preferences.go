package agent

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/strideworks/coachguard/internal/autonomy"
	"github.com/strideworks/coachguard/internal/models"
	"github.com/strideworks/coachguard/internal/store"
)

// PreferenceResolver looks up a subject's preferences, synthesizing and
// persisting the documented default when no row exists. A lookup never
// returns an absent record.
type PreferenceResolver struct {
	store store.Store
}

// NewPreferenceResolver creates a resolver backed by the given store.
func NewPreferenceResolver(st store.Store) *PreferenceResolver {
	return &PreferenceResolver{store: st}
}

// Resolve returns the stored preferences for the subject, or creates and
// returns the default record appropriate to the coaching mode.
func (r *PreferenceResolver) Resolve(subjectID string, isAICoached bool) (models.AgentPreferences, error) {
	stored, err := r.store.GetPreferences(subjectID)
	if err != nil {
		return models.AgentPreferences{}, fmt.Errorf("failed to load preferences: %w", err)
	}
	if stored != nil {
		return *stored, nil
	}

	defaults := autonomy.DefaultPreferences(subjectID, isAICoached, time.Now())
	if err := r.store.SavePreferences(defaults); err != nil {
		return models.AgentPreferences{}, fmt.Errorf("failed to persist default preferences: %w", err)
	}
	slog.Info("PreferenceResolver created default preferences",
		"subjectID", subjectID, "autonomyLevel", defaults.AutonomyLevel, "isAICoached", isAICoached)
	return defaults, nil
}
