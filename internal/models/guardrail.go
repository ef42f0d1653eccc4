// Package models defines the core data structures for coachguard.
//
// This file holds the transient evaluation results produced by the safety,
// autonomy, and guardrail layers, and the result types of cycle and privacy
// operations.
package models

// ViolationSeverity classifies a safety violation for triage and audit
// display. Severity never affects gating: every violation blocks equally.
type ViolationSeverity string

const (
	// SeverityBlocking marks policy-level blocks (consent, bounds).
	SeverityBlocking ViolationSeverity = "blocking"
	// SeverityCritical marks hard safety blocks (workload, pain).
	SeverityCritical ViolationSeverity = "critical"
)

// Symbolic rule names attached to violations and warnings.
const (
	RuleACWRCritical    = "ACWR_CRITICAL"
	RuleACWRDanger      = "ACWR_DANGER"
	RulePainCritical    = "PAIN_CRITICAL"
	RuleLowReadiness    = "LOW_READINESS"
	RuleMissedWorkouts  = "MISSED_WORKOUTS"
	RuleConsentRequired = "CONSENT_REQUIRED"
	RuleBoundsExceeded  = "BOUNDS_EXCEEDED"
)

// SafetyViolation is one hard rule breach. Any violation blocks the
// candidate action regardless of severity.
type SafetyViolation struct {
	Rule        string            `json:"rule"`
	Description string            `json:"description"`
	Severity    ViolationSeverity `json:"severity"`
	Data        map[string]any    `json:"data,omitempty"`
}

// SafetyWarning is an informational finding. Warnings are recorded and
// forwarded for visibility but never block.
type SafetyWarning struct {
	Rule        string         `json:"rule"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"`
}

// SafetyResult is the outcome of evaluating one action against a perception
// snapshot. Passed is true iff Violations is empty.
type SafetyResult struct {
	Passed     bool              `json:"passed"`
	Violations []SafetyViolation `json:"violations"`
	Warnings   []SafetyWarning   `json:"warnings"`
}

// BoundsResult is the outcome of validating an action against the subject's
// numeric and permission bounds.
type BoundsResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// ConsentResult is the outcome of validating a consent record.
type ConsentResult struct {
	HasRequiredConsent bool `json:"has_required_consent"`
	IsWithdrawn        bool `json:"is_withdrawn"`
}

// GuardrailCheckResult is the single authoritative verdict on one proposed
// action. CanProceed is false whenever any violation is present, of either
// severity.
type GuardrailCheckResult struct {
	CanProceed             bool              `json:"can_proceed"`
	ConsentValid           bool              `json:"consent_valid"`
	SafetyPassed           bool              `json:"safety_passed"`
	CanAutoApply           bool              `json:"can_auto_apply"`
	Violations             []SafetyViolation `json:"violations"`
	Warnings               []SafetyWarning   `json:"warnings"`
	RequiresCoachOversight bool              `json:"requires_coach_oversight"`
}

// CanRunResult reports whether an agent cycle may run for a subject.
type CanRunResult struct {
	CanRun bool   `json:"can_run"`
	Reason string `json:"reason,omitempty"`
}

// CycleResult identifies the records persisted by one agent cycle.
type CycleResult struct {
	PerceptionID string   `json:"perception_id"`
	ActionIDs    []string `json:"action_ids"`
}

// DeletionCounts reports rows removed (or de-linked) per category.
type DeletionCounts struct {
	LearningEvents int `json:"learning_events"`
	Actions        int `json:"actions"`
	Perceptions    int `json:"perceptions"`
	Preferences    int `json:"preferences"`
	Consent        int `json:"consent"`
}

// Total sums the per-category counts.
func (c DeletionCounts) Total() int {
	return c.LearningEvents + c.Actions + c.Perceptions + c.Preferences + c.Consent
}

// DeletionResult is the outcome of a privacy deletion or anonymization.
// AuditLogged is false when the post-commit audit insert failed; the primary
// data-removal guarantee still holds in that case.
type DeletionResult struct {
	Counts      DeletionCounts `json:"counts"`
	Categories  []string       `json:"categories"` // non-empty categories actually touched
	AuditLogged bool           `json:"audit_logged"`
}

// DataSummary reports current per-category counts for a subject, used to
// verify privacy operations.
type DataSummary struct {
	Perceptions    int `json:"perceptions"`
	Actions        int `json:"actions"`
	LearningEvents int `json:"learning_events"`
	Preferences    int `json:"preferences"`
	Consent        int `json:"consent"`
	AuditLogs      int `json:"audit_logs"`
}
