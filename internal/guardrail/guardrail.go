// Package guardrail composes the consent, safety, autonomy, and oversight
// layers into one verdict per proposed action.
//
// Check is the single authoritative decision point for whether an action may
// proceed and how: no other component may bypass it.
package guardrail

import (
	"log/slog"

	"github.com/strideworks/coachguard/internal/autonomy"
	"github.com/strideworks/coachguard/internal/consent"
	"github.com/strideworks/coachguard/internal/models"
	"github.com/strideworks/coachguard/internal/oversight"
	"github.com/strideworks/coachguard/internal/safety"
)

// Check evaluates one proposed action and returns the composite verdict.
// Any violation, of either severity, blocks the action; severity is carried
// for triage and audit display only.
func Check(action models.ProposedAction, perception models.PerceptionSnapshot, consentRec *models.AgentConsent, prefs models.AgentPreferences, isAICoached bool) models.GuardrailCheckResult {
	var violations []models.SafetyViolation
	var warnings []models.SafetyWarning

	consentResult := consent.Check(consentRec)
	consentValid := consentResult.HasRequiredConsent && !consentResult.IsWithdrawn
	if !consentValid {
		violations = append(violations, models.SafetyViolation{
			Rule:        models.RuleConsentRequired,
			Description: "subject has not granted (or has withdrawn) agent consent",
			Severity:    models.SeverityBlocking,
			Data:        map[string]any{"is_withdrawn": consentResult.IsWithdrawn},
		})
	}

	safetyResult := safety.Check(action, perception)
	violations = append(violations, safetyResult.Violations...)
	warnings = append(warnings, safetyResult.Warnings...)

	bounds := autonomy.ValidateActionBounds(action, prefs)
	if !bounds.Valid {
		violations = append(violations, models.SafetyViolation{
			Rule:        models.RuleBoundsExceeded,
			Description: bounds.Reason,
			Severity:    models.SeverityBlocking,
			Data:        map[string]any{"action_type": string(action.ActionType)},
		})
	}

	canProceed := len(violations) == 0
	canAutoApply := canProceed &&
		consent.CanMakeAutomatedDecisions(consentRec) &&
		autonomy.CanAutoApply(action, prefs)

	// Oversight routing only applies to actions that are not auto-applied.
	requiresOversight := false
	if !canAutoApply {
		requiresOversight = oversight.RequiresCoachOversight(action, prefs, isAICoached)
	}

	result := models.GuardrailCheckResult{
		CanProceed:             canProceed,
		ConsentValid:           consentValid,
		SafetyPassed:           safetyResult.Passed,
		CanAutoApply:           canAutoApply,
		Violations:             violations,
		Warnings:               warnings,
		RequiresCoachOversight: requiresOversight,
	}

	slog.Debug("guardrail.Check evaluated action",
		"action_type", action.ActionType,
		"can_proceed", result.CanProceed,
		"can_auto_apply", result.CanAutoApply,
		"violations", len(result.Violations),
		"warnings", len(result.Warnings),
		"requires_oversight", result.RequiresCoachOversight)
	return result
}
