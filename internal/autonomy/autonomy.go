// Package autonomy decides whether a proposed action may be applied without
// human review, using the four-level trust ladder plus per-capability
// permission flags and numeric bounds.
//
// Both CanAutoApply and ValidateActionBounds are deterministic and free of
// side effects. Neither consults live safety state; composing the safety
// verdict with the autonomy verdict is the guardrail orchestrator's job.
package autonomy

import (
	"fmt"

	"github.com/strideworks/coachguard/internal/models"
)

// MinConfidenceForAutoAction is the confidence floor below which no action
// is ever auto-applied, at any autonomy level.
const MinConfidenceForAutoAction = 0.70

// coachApprovalRequired holds the action types that always need explicit
// human approval regardless of autonomy level: program-level structural
// changes are never auto-applied.
var coachApprovalRequired = map[models.ActionType]bool{
	models.ActionAdjustProgram: true,
}

// autoApplyAllowed maps each autonomy level to the action types it may
// auto-apply. Adding an action type to a level is a one-place change here;
// per-capability flags and bounds are still checked separately.
var autoApplyAllowed = map[models.AutonomyLevel]map[models.ActionType]bool{
	models.AutonomyAdvisory: {},
	models.AutonomyLimited: {
		models.ActionReduceIntensity: true,
	},
	models.AutonomySupervised: {
		models.ActionReduceIntensity:   true,
		models.ActionReduceDuration:    true,
		models.ActionSubstituteWorkout: true,
		models.ActionMotivationalNudge: true,
		models.ActionCheckInRequest:    true,
	},
	models.AutonomyAutonomous: {
		models.ActionReduceIntensity:   true,
		models.ActionReduceDuration:    true,
		models.ActionSubstituteWorkout: true,
		models.ActionMotivationalNudge: true,
		models.ActionCheckInRequest:    true,
		models.ActionInjectRestDay:     true,
		models.ActionRecommendSkip:     true,
	},
}

// RequiresCoachApproval reports whether the action type is in the fixed
// coach-approval-required set.
func RequiresCoachApproval(at models.ActionType) bool {
	return coachApprovalRequired[at]
}

// CanAutoApply reports whether the action may be applied without human
// review under the subject's preferences. It never consults safety state.
func CanAutoApply(action models.ProposedAction, prefs models.AgentPreferences) bool {
	if coachApprovalRequired[action.ActionType] {
		return false
	}
	if action.Confidence < MinConfidenceForAutoAction {
		return false
	}
	allowed, ok := autoApplyAllowed[prefs.AutonomyLevel]
	if !ok || !allowed[action.ActionType] {
		return false
	}
	// Per-capability flags and numeric bounds still apply within the
	// level's allow-list.
	return ValidateActionBounds(action, prefs).Valid
}

// ValidateActionBounds independently re-checks the numeric and permission
// bounds for an action. It is usable as a second gate even when CanAutoApply
// is false, e.g. to reject an out-of-policy action a human tried to force
// through.
func ValidateActionBounds(action models.ProposedAction, prefs models.AgentPreferences) models.BoundsResult {
	switch action.ActionType {
	case models.ActionReduceIntensity:
		if !prefs.AllowWorkoutModification {
			return models.BoundsResult{Valid: false, Reason: "workout modification is not permitted by preferences"}
		}
		if action.Params.ReductionPercent < 1 {
			return models.BoundsResult{Valid: false, Reason: "intensity reduction must be at least 1 percent"}
		}
		if action.Params.ReductionPercent > prefs.MaxIntensityReduction {
			return models.BoundsResult{
				Valid:  false,
				Reason: fmt.Sprintf("intensity reduction %d%% exceeds the configured maximum of %d%%", action.Params.ReductionPercent, prefs.MaxIntensityReduction),
			}
		}
	case models.ActionReduceDuration, models.ActionSubstituteWorkout:
		if !prefs.AllowWorkoutModification {
			return models.BoundsResult{Valid: false, Reason: "workout modification is not permitted by preferences"}
		}
	case models.ActionInjectRestDay, models.ActionRecommendSkip:
		if !prefs.AllowRestDayInjection {
			return models.BoundsResult{Valid: false, Reason: "rest-day injection is not permitted by preferences"}
		}
	}
	// Nudges, check-ins, and program adjustments carry no numeric or
	// permission bounds; program adjustments are gated by the
	// coach-approval set instead.
	return models.BoundsResult{Valid: true}
}
