package autonomy

import (
	"time"

	"github.com/strideworks/coachguard/internal/models"
)

// Default values used when synthesizing preferences for a subject with no
// stored row. Conservative by intent.
const (
	DefaultMaxIntensityReduction  = 20 // percent
	DefaultMinRestDaysPerWeek     = 1
	DefaultMaxConsecutiveHardDays = 3
)

// DefaultPreferences synthesizes a fully-populated preference record for a
// subject with no stored row. Self-guided subjects default to SUPERVISED;
// subjects with a human coach default to ADVISORY so the coach stays in the
// loop. A preferences lookup never returns an absent record.
func DefaultPreferences(subjectID string, isAICoached bool, now time.Time) models.AgentPreferences {
	level := models.AutonomyAdvisory
	if isAICoached {
		level = models.AutonomySupervised
	}
	return models.AgentPreferences{
		SubjectID:                subjectID,
		AutonomyLevel:            level,
		AllowWorkoutModification: true,
		AllowRestDayInjection:    true,
		MaxIntensityReduction:    DefaultMaxIntensityReduction,
		MinRestDaysPerWeek:       DefaultMinRestDaysPerWeek,
		MaxConsecutiveHardDays:   DefaultMaxConsecutiveHardDays,
		NotifyOnAutoApply:        true,
		NotifyOnProposal:         true,
		UpdatedAt:                now,
	}
}
