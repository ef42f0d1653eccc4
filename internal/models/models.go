// Package models defines the core data structures for coachguard.
//
// It includes the perception, action, preference, and consent types shared
// across the guardrail, lifecycle, and privacy modules.
package models

import (
	"errors"
	"time"
)

// ActionType enumerates the training changes the agent may propose.
type ActionType string

const (
	// ActionReduceIntensity lowers the intensity of an upcoming workout by a percentage.
	ActionReduceIntensity ActionType = "reduce_intensity"
	// ActionReduceDuration shortens an upcoming workout.
	ActionReduceDuration ActionType = "reduce_duration"
	// ActionSubstituteWorkout swaps an upcoming workout for an alternative.
	ActionSubstituteWorkout ActionType = "substitute_workout"
	// ActionInjectRestDay inserts an additional rest day into the week.
	ActionInjectRestDay ActionType = "inject_rest_day"
	// ActionRecommendSkip recommends skipping a scheduled workout.
	ActionRecommendSkip ActionType = "recommend_skip"
	// ActionAdjustProgram changes the structure of the training program itself.
	ActionAdjustProgram ActionType = "adjust_program"
	// ActionMotivationalNudge sends an encouraging message.
	ActionMotivationalNudge ActionType = "motivational_nudge"
	// ActionCheckInRequest asks the athlete how they are doing.
	ActionCheckInRequest ActionType = "check_in_request"
)

// IsValidActionType checks if the given action type is supported.
func IsValidActionType(at ActionType) bool {
	switch at {
	case ActionReduceIntensity, ActionReduceDuration, ActionSubstituteWorkout,
		ActionInjectRestDay, ActionRecommendSkip, ActionAdjustProgram,
		ActionMotivationalNudge, ActionCheckInRequest:
		return true
	default:
		return false
	}
}

// Priority indicates how urgently a proposed action should be considered.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// IsValidPriority checks if the given priority is supported.
func IsValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// AutonomyLevel is the four-step trust ladder governing how much the agent
// may act without explicit per-action human approval.
type AutonomyLevel string

const (
	// AutonomyAdvisory: the agent only advises; nothing is ever auto-applied.
	AutonomyAdvisory AutonomyLevel = "advisory"
	// AutonomyLimited: only bounded intensity reductions may be auto-applied.
	AutonomyLimited AutonomyLevel = "limited"
	// AutonomySupervised: a curated set of low-risk actions may be auto-applied.
	AutonomySupervised AutonomyLevel = "supervised"
	// AutonomyAutonomous: the broadest allow-list, still subject to per-capability flags.
	AutonomyAutonomous AutonomyLevel = "autonomous"
)

// IsValidAutonomyLevel checks if the given autonomy level is supported.
func IsValidAutonomyLevel(l AutonomyLevel) bool {
	switch l {
	case AutonomyAdvisory, AutonomyLimited, AutonomySupervised, AutonomyAutonomous:
		return true
	default:
		return false
	}
}

// ActionStatus is the lifecycle state of a persisted agent action.
type ActionStatus string

const (
	// StatusProposed means the action awaits a human decision.
	StatusProposed ActionStatus = "proposed"
	// StatusAccepted means a human approved the action. Terminal.
	StatusAccepted ActionStatus = "accepted"
	// StatusRejected means a human declined the action. Terminal.
	StatusRejected ActionStatus = "rejected"
	// StatusAutoApplied means the action was applied at creation time without
	// human review. Terminal; an auto-applied action never passes through
	// the proposed state.
	StatusAutoApplied ActionStatus = "auto_applied"
)

// IsValidActionStatus checks if the given status is supported.
func IsValidActionStatus(s ActionStatus) bool {
	switch s {
	case StatusProposed, StatusAccepted, StatusRejected, StatusAutoApplied:
		return true
	default:
		return false
	}
}

// IsTerminalStatus reports whether a status permits no further transitions.
func IsTerminalStatus(s ActionStatus) bool {
	switch s {
	case StatusAccepted, StatusRejected, StatusAutoApplied:
		return true
	default:
		return false
	}
}

// ConsentCategory identifies a purpose the subject may grant consent for.
type ConsentCategory string

const (
	// ConsentAgentCoaching covers running agent cycles at all: capturing
	// perceptions and generating proposals.
	ConsentAgentCoaching ConsentCategory = "agent_coaching"
	// ConsentAutomatedDecisions covers applying actions without human review.
	ConsentAutomatedDecisions ConsentCategory = "automated_decisions"
	// ConsentLearning covers retaining outcome signal for model improvement.
	ConsentLearning ConsentCategory = "learning"
)

// Validation constants for proposed actions.
const (
	// MinConfidenceScore is the lower bound of a valid confidence score.
	MinConfidenceScore = 0.0
	// MaxConfidenceScore is the upper bound of a valid confidence score.
	MaxConfidenceScore = 1.0
	// MaxReductionPercent is the largest representable intensity/duration reduction.
	MaxReductionPercent = 100
)

// Error variables for better error handling and testability
var (
	ErrInvalidActionType    = errors.New("invalid action type")
	ErrInvalidPriority      = errors.New("invalid priority")
	ErrInvalidConfidence    = errors.New("confidence score must be between 0 and 1")
	ErrInvalidReduction     = errors.New("reduction percent must be between 1 and 100")
	ErrMissingWorkout       = errors.New("workout reference is required for substitutions")
	ErrConsentNotGranted    = errors.New("agent consent has not been granted")
	ErrConsentWithdrawn     = errors.New("consent has been withdrawn")
	ErrActionNotFound       = errors.New("agent action not found")
	ErrActionNotPending     = errors.New("agent action is not awaiting a decision")
	ErrActionExpired        = errors.New("agent action has expired")
	ErrPerceptionNotFound   = errors.New("perception snapshot not found")
	ErrEmptySubject         = errors.New("subject id cannot be empty")
	ErrInvalidAutonomyLevel = errors.New("invalid autonomy level")
)

// ActiveInjury is one currently-active injury reported for the subject.
type ActiveInjury struct {
	BodyPart  string `json:"body_part"`
	PainLevel int    `json:"pain_level"` // 0-10 self-reported scale
}

// TrainingLoad carries the workload metrics of a perception snapshot.
type TrainingLoad struct {
	// ACWR is the acute:chronic workload ratio. Elevated values correlate
	// with injury risk.
	ACWR float64 `json:"acwr"`
	// AcuteLoad and ChronicLoad are the averages the ratio was derived from.
	AcuteLoad   float64 `json:"acute_load,omitempty"`
	ChronicLoad float64 `json:"chronic_load,omitempty"`
}

// Readiness carries the subject's recovery state. A nil score means
// insufficient data, never zero.
type Readiness struct {
	ReadinessScore *int `json:"readiness_score"` // 0-100, nil if unknown
}

// Behavior carries adherence signals.
type Behavior struct {
	MissedWorkouts7d int `json:"missed_workouts_7d"`
}

// InjuryStatus carries the subject's current injuries.
type InjuryStatus struct {
	ActiveInjuries []ActiveInjury `json:"active_injuries"`
}

// PerceptionSnapshot is an immutable, timestamped read of an athlete's
// training-load, injury, readiness, and behavior state. It is produced by an
// external perception provider and persisted for audit and explainability.
type PerceptionSnapshot struct {
	ID           string       `json:"id"`
	SubjectID    string       `json:"subject_id"`
	CapturedAt   time.Time    `json:"captured_at"`
	TrainingLoad TrainingLoad `json:"training_load"`
	Injury       InjuryStatus `json:"injury"`
	Readiness    Readiness    `json:"readiness"`
	Behavior     Behavior     `json:"behavior"`
}

// ActionParams carries the type-specific parameters of a proposed action.
// Fields are optional; which ones are meaningful depends on the action type.
type ActionParams struct {
	ReductionPercent int    `json:"reduction_percent,omitempty"` // reduce_intensity, reduce_duration
	WorkoutID        string `json:"workout_id,omitempty"`        // substitute_workout, recommend_skip
	AlternativeID    string `json:"alternative_id,omitempty"`    // substitute_workout
	TargetDate       string `json:"target_date,omitempty"`       // inject_rest_day
	Message          string `json:"message,omitempty"`           // motivational_nudge, check_in_request
	Reason           string `json:"reason,omitempty"`            // human-readable rationale, all types
}

// ProposedAction is a candidate change to training, generated externally and
// evaluated by the guardrail layer. It is ephemeral; only the resulting
// AgentAction is persisted.
type ProposedAction struct {
	ActionType ActionType   `json:"action_type"`
	Params     ActionParams `json:"params"`
	Confidence float64      `json:"confidence"`
	Priority   Priority     `json:"priority"`
}

// Validate performs shape validation on a proposed action.
func (a *ProposedAction) Validate() error {
	if !IsValidActionType(a.ActionType) {
		return ErrInvalidActionType
	}
	if !IsValidPriority(a.Priority) {
		return ErrInvalidPriority
	}
	if a.Confidence < MinConfidenceScore || a.Confidence > MaxConfidenceScore {
		return ErrInvalidConfidence
	}
	switch a.ActionType {
	case ActionReduceIntensity, ActionReduceDuration:
		if a.Params.ReductionPercent < 1 || a.Params.ReductionPercent > MaxReductionPercent {
			return ErrInvalidReduction
		}
	case ActionSubstituteWorkout:
		if a.Params.WorkoutID == "" {
			return ErrMissingWorkout
		}
	}
	return nil
}

// AgentPreferences is the per-subject autonomy configuration. Every field is
// always populated; lookups synthesize a default record when no row exists.
type AgentPreferences struct {
	SubjectID                string        `json:"subject_id"`
	AutonomyLevel            AutonomyLevel `json:"autonomy_level"`
	AllowWorkoutModification bool          `json:"allow_workout_modification"`
	AllowRestDayInjection    bool          `json:"allow_rest_day_injection"`
	MaxIntensityReduction    int           `json:"max_intensity_reduction"` // percent
	MinRestDaysPerWeek       int           `json:"min_rest_days_per_week"`
	MaxConsecutiveHardDays   int           `json:"max_consecutive_hard_days"`
	NotifyOnAutoApply        bool          `json:"notify_on_auto_apply"`
	NotifyOnProposal         bool          `json:"notify_on_proposal"`
	UpdatedAt                time.Time     `json:"updated_at"`
}

// Validate checks that stored preferences are internally consistent.
func (p *AgentPreferences) Validate() error {
	if p.SubjectID == "" {
		return ErrEmptySubject
	}
	if !IsValidAutonomyLevel(p.AutonomyLevel) {
		return ErrInvalidAutonomyLevel
	}
	if p.MaxIntensityReduction < 0 || p.MaxIntensityReduction > MaxReductionPercent {
		return ErrInvalidReduction
	}
	return nil
}

// AgentConsent records which consent categories a subject has granted.
// Absence of a record, or IsWithdrawn, is a hard stop for the whole cycle.
type AgentConsent struct {
	SubjectID   string            `json:"subject_id"`
	Granted     []ConsentCategory `json:"granted"`
	IsWithdrawn bool              `json:"is_withdrawn"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// HasGranted reports whether the given category was granted.
func (c *AgentConsent) HasGranted(cat ConsentCategory) bool {
	for _, g := range c.Granted {
		if g == cat {
			return true
		}
	}
	return false
}

// AgentAction is the persisted lifecycle record of one guardrail-evaluated
// proposal. PerceptionID is a weak reference kept for audit only.
type AgentAction struct {
	ID                string       `json:"id"`
	SubjectID         string       `json:"subject_id"`
	PerceptionID      string       `json:"perception_id,omitempty"`
	ActionType        ActionType   `json:"action_type"`
	Params            ActionParams `json:"params"`
	Confidence        float64      `json:"confidence"`
	Priority          Priority     `json:"priority"`
	Status            ActionStatus `json:"status"`
	RequiresOversight bool         `json:"requires_oversight"`
	ProposedAt        time.Time    `json:"proposed_at"`
	ExpiresAt         time.Time    `json:"expires_at"`
	ResolvedAt        *time.Time   `json:"resolved_at,omitempty"`
	ResolvedBy        string       `json:"resolved_by,omitempty"`
}

// Expired reports whether the action's decision window has closed.
func (a *AgentAction) Expired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}

// LearningEvent preserves outcome signal from resolved actions. SubjectID is
// nullable: anonymization strips the linkage while keeping the signal.
type LearningEvent struct {
	ID         string     `json:"id"`
	SubjectID  string     `json:"subject_id,omitempty"`
	ActionID   string     `json:"action_id,omitempty"`
	ActionType ActionType `json:"action_type"`
	Outcome    string     `json:"outcome"` // accepted, rejected, auto_applied
	CreatedAt  time.Time  `json:"created_at"`
}

// AuditLogEntry is one append-only record of a privacy operation. Audit logs
// are retained indefinitely and never deleted by the privacy lifecycle.
type AuditLogEntry struct {
	ID          string         `json:"id"`
	SubjectID   string         `json:"subject_id"`
	Operation   string         `json:"operation"`
	RequestedBy string         `json:"requested_by"`
	Details     map[string]int `json:"details,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Privacy operation names recorded in audit log entries.
const (
	AuditOpDeletion      = "agent_data_deletion"
	AuditOpAnonymization = "agent_data_anonymization"
)
