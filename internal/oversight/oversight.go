// Package oversight decides whether a non-auto-applied action must be
// flagged for human (coach) review.
package oversight

import (
	"github.com/strideworks/coachguard/internal/autonomy"
	"github.com/strideworks/coachguard/internal/models"
)

// lowTouchActions never need coach review at the advisory and limited
// levels: they change nothing about the training plan itself.
var lowTouchActions = map[models.ActionType]bool{
	models.ActionMotivationalNudge: true,
	models.ActionCheckInRequest:    true,
}

// supervisedOversight holds the action types that still route to a coach at
// the supervised level.
var supervisedOversight = map[models.ActionType]bool{
	models.ActionRecommendSkip: true,
	models.ActionInjectRestDay: true,
	models.ActionAdjustProgram: true,
}

// RequiresCoachOversight reports whether the action must be routed to a
// coach for review. Self-guided subjects (isAICoached) never get coach
// oversight; they escalate through a separate support channel.
func RequiresCoachOversight(action models.ProposedAction, prefs models.AgentPreferences, isAICoached bool) bool {
	if isAICoached {
		return false
	}
	if autonomy.RequiresCoachApproval(action.ActionType) {
		return true
	}
	switch prefs.AutonomyLevel {
	case models.AutonomyAdvisory, models.AutonomyLimited:
		return !lowTouchActions[action.ActionType]
	case models.AutonomySupervised:
		return supervisedOversight[action.ActionType]
	case models.AutonomyAutonomous:
		return action.Priority == models.PriorityUrgent
	default:
		// Unknown levels fall back to the most conservative routing.
		return true
	}
}
