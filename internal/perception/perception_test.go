package perception

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/strideworks/coachguard/internal/models"
)

var testNow = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

// flatLoads builds one load entry per day for the n days before at.
func flatLoads(at time.Time, days int, load float64) []DailyLoad {
	var out []DailyLoad
	for i := 1; i <= days; i++ {
		out = append(out, DailyLoad{Date: at.AddDate(0, 0, -i), Load: load})
	}
	return out
}

func TestComputeTrainingLoadBalanced(t *testing.T) {
	// Identical daily load across both windows yields a ratio of 1.
	got := ComputeTrainingLoad(flatLoads(testNow, ChronicWindowDays, 100), testNow)
	if math.Abs(got.ACWR-1.0) > 1e-9 {
		t.Errorf("ACWR = %v, want 1.0", got.ACWR)
	}
	if math.Abs(got.AcuteLoad-100) > 1e-9 {
		t.Errorf("AcuteLoad = %v, want 100", got.AcuteLoad)
	}
	if math.Abs(got.ChronicLoad-100) > 1e-9 {
		t.Errorf("ChronicLoad = %v, want 100", got.ChronicLoad)
	}
}

func TestComputeTrainingLoadSpike(t *testing.T) {
	// Recent week doubled against a steady baseline pushes the ratio up.
	loads := flatLoads(testNow, ChronicWindowDays, 100)
	for i := range loads {
		if loads[i].Date.After(testNow.AddDate(0, 0, -AcuteWindowDays)) {
			loads[i].Load = 200
		}
	}
	got := ComputeTrainingLoad(loads, testNow)
	// Acute avg 200, chronic avg (7*200 + 21*100)/28 = 125.
	if math.Abs(got.ACWR-1.6) > 1e-9 {
		t.Errorf("ACWR = %v, want 1.6", got.ACWR)
	}
}

func TestComputeTrainingLoadNoBaseline(t *testing.T) {
	// No chronic history: the ratio must be zero, never treated as risk.
	got := ComputeTrainingLoad(nil, testNow)
	if got.ACWR != 0 {
		t.Errorf("ACWR = %v, want 0 with no data", got.ACWR)
	}

	// Future-dated and out-of-window loads are ignored.
	loads := []DailyLoad{
		{Date: testNow.AddDate(0, 0, 1), Load: 500},
		{Date: testNow.AddDate(0, 0, -ChronicWindowDays-1), Load: 500},
	}
	got = ComputeTrainingLoad(loads, testNow)
	if got.ACWR != 0 || got.AcuteLoad != 0 || got.ChronicLoad != 0 {
		t.Errorf("out-of-window loads counted: %+v", got)
	}
}

type staticSource struct {
	metrics SubjectMetrics
	err     error
}

func (s *staticSource) Metrics(ctx context.Context, subjectID string) (SubjectMetrics, error) {
	if s.err != nil {
		return SubjectMetrics{}, s.err
	}
	return s.metrics, nil
}

func TestProviderCapture(t *testing.T) {
	score := 72
	src := &staticSource{metrics: SubjectMetrics{
		DailyLoads:       flatLoads(testNow, ChronicWindowDays, 80),
		ActiveInjuries:   []models.ActiveInjury{{BodyPart: "calf", PainLevel: 3}},
		ReadinessScore:   &score,
		MissedWorkouts7d: 1,
	}}
	p := NewProviderWithClock(src, func() time.Time { return testNow })

	snap, err := p.Capture(context.Background(), "athlete-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.SubjectID != "athlete-1" || !snap.CapturedAt.Equal(testNow) {
		t.Errorf("snapshot identity wrong: %+v", snap)
	}
	if math.Abs(snap.TrainingLoad.ACWR-1.0) > 1e-9 {
		t.Errorf("ACWR = %v, want 1.0", snap.TrainingLoad.ACWR)
	}
	if len(snap.Injury.ActiveInjuries) != 1 || snap.Injury.ActiveInjuries[0].BodyPart != "calf" {
		t.Errorf("injuries = %+v", snap.Injury.ActiveInjuries)
	}
	if snap.Readiness.ReadinessScore == nil || *snap.Readiness.ReadinessScore != 72 {
		t.Error("readiness score lost")
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	content := `ai_coached: true
daily_loads:
  - date: "2026-03-09"
    load: 120
  - date: "2026-03-08"
    load: 90
  - date: "bad-date"
    load: 999
active_injuries:
  - body_part: knee
    pain_level: 6
readiness_score: 48
missed_workouts_7d: 2
`
	if err := os.WriteFile(filepath.Join(dir, "athlete-1.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write metrics file: %v", err)
	}
	src := NewFileSource(dir)

	metrics, err := src.Metrics(context.Background(), "athlete-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The malformed date entry is skipped.
	if len(metrics.DailyLoads) != 2 {
		t.Errorf("daily loads = %d, want 2", len(metrics.DailyLoads))
	}
	if len(metrics.ActiveInjuries) != 1 || metrics.ActiveInjuries[0].PainLevel != 6 {
		t.Errorf("injuries = %+v", metrics.ActiveInjuries)
	}
	if metrics.ReadinessScore == nil || *metrics.ReadinessScore != 48 {
		t.Error("readiness score lost")
	}

	coached, err := src.IsAICoached(context.Background(), "athlete-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !coached {
		t.Error("ai_coached flag not read")
	}

	if _, err := src.Metrics(context.Background(), "missing"); err == nil {
		t.Error("missing metrics file should error")
	}
}

func TestFileSourceNilReadiness(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "athlete-1.yaml"), []byte("missed_workouts_7d: 1\n"), 0644); err != nil {
		t.Fatalf("failed to write metrics file: %v", err)
	}
	metrics, err := NewFileSource(dir).Metrics(context.Background(), "athlete-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if metrics.ReadinessScore != nil {
		t.Error("absent readiness must stay nil, never become zero")
	}
}
