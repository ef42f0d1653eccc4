// Package safety evaluates proposed actions against hard, non-configurable
// training-safety bounds.
//
// Check is a pure function: identical inputs always yield identical outputs,
// and evaluation has no side effects. The thresholds are fixed by design and
// deliberately not subject-configurable; per-subject tuning happens in the
// autonomy layer, never here.
package safety

import (
	"fmt"

	"github.com/strideworks/coachguard/internal/models"
)

// Hard safety thresholds. Not subject-configurable.
const (
	// ACWRCriticalThreshold is the acute:chronic workload ratio at or above
	// which any action is blocked.
	ACWRCriticalThreshold = 1.8
	// ACWRDangerThreshold is the ratio at or above which a warning is raised.
	ACWRDangerThreshold = 1.5
	// PainCriticalThreshold is the 0-10 pain level at or above which any
	// action is blocked.
	PainCriticalThreshold = 8
	// LowReadinessThreshold is the readiness score below which a warning is
	// raised. A nil score means insufficient data and raises nothing.
	LowReadinessThreshold = 40
	// MissedWorkoutsConcern is the 7-day missed-workout count at or above
	// which a warning is raised.
	MissedWorkoutsConcern = 3
)

// Check evaluates one proposed action against a perception snapshot.
// Passed is true iff no violations were found; warnings never block.
func Check(action models.ProposedAction, perception models.PerceptionSnapshot) models.SafetyResult {
	var violations []models.SafetyViolation
	var warnings []models.SafetyWarning

	acwr := perception.TrainingLoad.ACWR
	switch {
	case acwr >= ACWRCriticalThreshold:
		violations = append(violations, models.SafetyViolation{
			Rule:        models.RuleACWRCritical,
			Description: fmt.Sprintf("acute:chronic workload ratio %.2f is at or above the critical threshold %.1f", acwr, ACWRCriticalThreshold),
			Severity:    models.SeverityCritical,
			Data:        map[string]any{"acwr": acwr, "threshold": ACWRCriticalThreshold},
		})
	case acwr >= ACWRDangerThreshold:
		warnings = append(warnings, models.SafetyWarning{
			Rule:        models.RuleACWRDanger,
			Description: fmt.Sprintf("acute:chronic workload ratio %.2f is in the danger zone (>= %.1f)", acwr, ACWRDangerThreshold),
			Data:        map[string]any{"acwr": acwr, "threshold": ACWRDangerThreshold},
		})
	}

	for _, injury := range perception.Injury.ActiveInjuries {
		if injury.PainLevel >= PainCriticalThreshold {
			violations = append(violations, models.SafetyViolation{
				Rule:        models.RulePainCritical,
				Description: fmt.Sprintf("active injury (%s) with pain level %d/10", injury.BodyPart, injury.PainLevel),
				Severity:    models.SeverityCritical,
				Data:        map[string]any{"body_part": injury.BodyPart, "pain_level": injury.PainLevel, "threshold": PainCriticalThreshold},
			})
		}
	}

	// A nil readiness score is insufficient data, never zero.
	if score := perception.Readiness.ReadinessScore; score != nil && *score < LowReadinessThreshold {
		warnings = append(warnings, models.SafetyWarning{
			Rule:        models.RuleLowReadiness,
			Description: fmt.Sprintf("readiness score %d is below %d", *score, LowReadinessThreshold),
			Data:        map[string]any{"readiness_score": *score, "threshold": LowReadinessThreshold},
		})
	}

	if missed := perception.Behavior.MissedWorkouts7d; missed >= MissedWorkoutsConcern {
		warnings = append(warnings, models.SafetyWarning{
			Rule:        models.RuleMissedWorkouts,
			Description: fmt.Sprintf("%d workouts missed in the last 7 days", missed),
			Data:        map[string]any{"missed_workouts_7d": missed, "threshold": MissedWorkoutsConcern},
		})
	}

	return models.SafetyResult{
		Passed:     len(violations) == 0,
		Violations: violations,
		Warnings:   warnings,
	}
}
