// Package perception assembles perception snapshots from training metrics.
//
// The heavy monitoring logic lives outside this engine; this package adapts
// whatever the host application supplies into the snapshot shape the agent
// consumes, including the acute:chronic workload ratio derivation.
package perception

import (
	"context"
	"fmt"
	"time"

	"github.com/strideworks/coachguard/internal/agent"
	"github.com/strideworks/coachguard/internal/models"
)

// Rolling windows used for the workload ratio.
const (
	// AcuteWindowDays is the recent-load window.
	AcuteWindowDays = 7
	// ChronicWindowDays is the baseline-load window.
	ChronicWindowDays = 28
)

// DailyLoad is one day's aggregated training load, supplied by the host.
type DailyLoad struct {
	Date time.Time
	Load float64
}

// SubjectMetrics is the raw input a MetricsSource supplies for one subject.
// A nil ReadinessScore means insufficient data, never zero.
type SubjectMetrics struct {
	DailyLoads       []DailyLoad
	ActiveInjuries   []models.ActiveInjury
	ReadinessScore   *int
	MissedWorkouts7d int
}

// MetricsSource supplies raw metrics for snapshot assembly. It is the host
// application's side of the perception contract.
type MetricsSource interface {
	Metrics(ctx context.Context, subjectID string) (SubjectMetrics, error)
}

// ComputeTrainingLoad derives the acute:chronic workload ratio from daily
// loads relative to the given time. With no chronic baseline the ratio is
// zero: no data is never treated as elevated risk.
func ComputeTrainingLoad(loads []DailyLoad, at time.Time) models.TrainingLoad {
	acuteStart := at.AddDate(0, 0, -AcuteWindowDays)
	chronicStart := at.AddDate(0, 0, -ChronicWindowDays)

	var acuteSum, chronicSum float64
	for _, d := range loads {
		if d.Date.After(at) || !d.Date.After(chronicStart) {
			continue
		}
		chronicSum += d.Load
		if d.Date.After(acuteStart) {
			acuteSum += d.Load
		}
	}

	acute := acuteSum / AcuteWindowDays
	chronic := chronicSum / ChronicWindowDays
	load := models.TrainingLoad{AcuteLoad: acute, ChronicLoad: chronic}
	if chronic > 0 {
		load.ACWR = acute / chronic
	}
	return load
}

// Provider assembles snapshots from a MetricsSource. It implements
// agent.PerceptionProvider.
type Provider struct {
	source MetricsSource
	now    func() time.Time
}

// NewProvider creates a provider over the given metrics source.
func NewProvider(source MetricsSource) *Provider {
	return &Provider{source: source, now: time.Now}
}

// NewProviderWithClock creates a provider with an injected clock, for tests.
func NewProviderWithClock(source MetricsSource, now func() time.Time) *Provider {
	return &Provider{source: source, now: now}
}

// Capture assembles one immutable snapshot for the subject.
func (p *Provider) Capture(ctx context.Context, subjectID string) (models.PerceptionSnapshot, error) {
	metrics, err := p.source.Metrics(ctx, subjectID)
	if err != nil {
		return models.PerceptionSnapshot{}, fmt.Errorf("failed to load metrics for %s: %w", subjectID, err)
	}
	now := p.now()
	return models.PerceptionSnapshot{
		SubjectID:    subjectID,
		CapturedAt:   now,
		TrainingLoad: ComputeTrainingLoad(metrics.DailyLoads, now),
		Injury:       models.InjuryStatus{ActiveInjuries: metrics.ActiveInjuries},
		Readiness:    models.Readiness{ReadinessScore: metrics.ReadinessScore},
		Behavior:     models.Behavior{MissedWorkouts7d: metrics.MissedWorkouts7d},
	}, nil
}

// StaticProvider returns a fixed snapshot; used by tests and the CLI cycle
// command when no metrics source is wired.
type StaticProvider struct {
	Snapshot models.PerceptionSnapshot
	Err      error
}

func (s *StaticProvider) Capture(ctx context.Context, subjectID string) (models.PerceptionSnapshot, error) {
	if s.Err != nil {
		return models.PerceptionSnapshot{}, s.Err
	}
	snap := s.Snapshot
	snap.SubjectID = subjectID
	return snap, nil
}

var _ agent.PerceptionProvider = (*Provider)(nil)
var _ agent.PerceptionProvider = (*StaticProvider)(nil)
