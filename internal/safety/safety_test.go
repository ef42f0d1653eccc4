package safety

import (
	"reflect"
	"testing"
	"time"

	"github.com/strideworks/coachguard/internal/models"
)

func intPtr(v int) *int { return &v }

func baseAction() models.ProposedAction {
	return models.ProposedAction{
		ActionType: models.ActionReduceIntensity,
		Params:     models.ActionParams{ReductionPercent: 10},
		Confidence: 0.9,
		Priority:   models.PriorityMedium,
	}
}

func snapshot(acwr float64) models.PerceptionSnapshot {
	return models.PerceptionSnapshot{
		ID:           "perc-1",
		SubjectID:    "athlete-1",
		CapturedAt:   time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC),
		TrainingLoad: models.TrainingLoad{ACWR: acwr},
	}
}

func findRule(rules []models.SafetyViolation, name string) bool {
	for _, v := range rules {
		if v.Rule == name {
			return true
		}
	}
	return false
}

func findWarning(warnings []models.SafetyWarning, name string) bool {
	for _, w := range warnings {
		if w.Rule == name {
			return true
		}
	}
	return false
}

func TestCheckACWRThresholds(t *testing.T) {
	tests := []struct {
		name          string
		acwr          float64
		wantPassed    bool
		wantViolation string
		wantWarning   string
	}{
		{name: "healthy ratio", acwr: 1.1, wantPassed: true},
		{name: "just below danger", acwr: 1.49, wantPassed: true},
		{name: "danger zone warns", acwr: 1.5, wantPassed: true, wantWarning: models.RuleACWRDanger},
		{name: "just below critical warns", acwr: 1.79, wantPassed: true, wantWarning: models.RuleACWRDanger},
		{name: "critical blocks", acwr: 1.8, wantPassed: false, wantViolation: models.RuleACWRCritical},
		{name: "far past critical blocks", acwr: 2.5, wantPassed: false, wantViolation: models.RuleACWRCritical},
		{name: "no baseline is not elevated", acwr: 0, wantPassed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Check(baseAction(), snapshot(tt.acwr))
			if result.Passed != tt.wantPassed {
				t.Errorf("Passed = %v, want %v", result.Passed, tt.wantPassed)
			}
			if tt.wantViolation != "" && !findRule(result.Violations, tt.wantViolation) {
				t.Errorf("expected violation %s, got %+v", tt.wantViolation, result.Violations)
			}
			if tt.wantWarning != "" && !findWarning(result.Warnings, tt.wantWarning) {
				t.Errorf("expected warning %s, got %+v", tt.wantWarning, result.Warnings)
			}
			// A critical ratio must never pass regardless of the action.
			if tt.acwr >= ACWRCriticalThreshold && result.Passed {
				t.Error("critical workload ratio passed safety")
			}
		})
	}
}

func TestCheckPainLevels(t *testing.T) {
	perc := snapshot(1.0)
	perc.Injury.ActiveInjuries = []models.ActiveInjury{
		{BodyPart: "knee", PainLevel: 5},
	}
	result := Check(baseAction(), perc)
	if !result.Passed {
		t.Fatalf("moderate pain should not block, got %+v", result.Violations)
	}

	perc.Injury.ActiveInjuries = append(perc.Injury.ActiveInjuries, models.ActiveInjury{BodyPart: "ankle", PainLevel: 8})
	result = Check(baseAction(), perc)
	if result.Passed {
		t.Fatal("pain level 8 must block")
	}
	if !findRule(result.Violations, models.RulePainCritical) {
		t.Errorf("expected %s violation, got %+v", models.RulePainCritical, result.Violations)
	}
}

func TestCheckReadiness(t *testing.T) {
	// Nil readiness is insufficient data and raises nothing.
	perc := snapshot(1.0)
	result := Check(baseAction(), perc)
	if len(result.Warnings) != 0 {
		t.Errorf("nil readiness produced warnings: %+v", result.Warnings)
	}

	perc.Readiness.ReadinessScore = intPtr(0)
	result = Check(baseAction(), perc)
	if !findWarning(result.Warnings, models.RuleLowReadiness) {
		t.Error("zero readiness score should warn")
	}
	if !result.Passed {
		t.Error("low readiness warns, never blocks")
	}

	perc.Readiness.ReadinessScore = intPtr(40)
	result = Check(baseAction(), perc)
	if findWarning(result.Warnings, models.RuleLowReadiness) {
		t.Error("readiness at the threshold should not warn")
	}
}

func TestCheckMissedWorkouts(t *testing.T) {
	perc := snapshot(1.0)
	perc.Behavior.MissedWorkouts7d = 2
	if result := Check(baseAction(), perc); findWarning(result.Warnings, models.RuleMissedWorkouts) {
		t.Error("2 missed workouts should not warn")
	}
	perc.Behavior.MissedWorkouts7d = 3
	result := Check(baseAction(), perc)
	if !findWarning(result.Warnings, models.RuleMissedWorkouts) {
		t.Error("3 missed workouts should warn")
	}
	if !result.Passed {
		t.Error("missed workouts warn, never block")
	}
}

func TestCheckIsDeterministic(t *testing.T) {
	action := baseAction()
	perc := snapshot(1.85)
	perc.Injury.ActiveInjuries = []models.ActiveInjury{{BodyPart: "knee", PainLevel: 9}}
	perc.Readiness.ReadinessScore = intPtr(30)
	perc.Behavior.MissedWorkouts7d = 4

	first := Check(action, perc)
	second := Check(action, perc)
	if !reflect.DeepEqual(first, second) {
		t.Error("identical inputs produced different results")
	}

	// Evaluation must not mutate its inputs.
	if perc.TrainingLoad.ACWR != 1.85 || *perc.Readiness.ReadinessScore != 30 {
		t.Error("Check mutated the perception snapshot")
	}
}
