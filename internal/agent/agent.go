// Package agent drives one end-to-end cycle of the training agent: consent
// check, perception capture, decision generation, per-action guardrail
// evaluation, and persistence.
//
// A cycle is a single logical unit of work. Cycles for different subjects
// run concurrently without coordination; cycles for the same subject are
// serialized through the store's subject locks, which also exclude a
// concurrent privacy deletion.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/strideworks/coachguard/internal/consent"
	"github.com/strideworks/coachguard/internal/guardrail"
	"github.com/strideworks/coachguard/internal/lifecycle"
	"github.com/strideworks/coachguard/internal/models"
	"github.com/strideworks/coachguard/internal/notify"
	"github.com/strideworks/coachguard/internal/store"
)

// DefaultDecisionTimeout bounds the external decision-generation call. A
// timeout means "no candidate actions produced", never a cycle failure.
const DefaultDecisionTimeout = 30 * time.Second

// Reason strings surfaced by CanRun.
const (
	ReasonConsentWithdrawn  = "Consent has been withdrawn"
	ReasonConsentNotGranted = "Agent consent has not been granted"
)

// PerceptionProvider supplies perception snapshots. A missing metric (e.g.
// readiness) must be represented as absent, never as zero.
type PerceptionProvider interface {
	Capture(ctx context.Context, subjectID string) (models.PerceptionSnapshot, error)
}

// DecisionProvider supplies zero or more candidate actions for a snapshot.
// It must not assume any candidate will be applied.
type DecisionProvider interface {
	Propose(ctx context.Context, perception models.PerceptionSnapshot) ([]models.ProposedAction, error)
}

// SubjectDirectory reports whether a subject is self-guided (AI-coached) or
// works with a human coach. The answer drives preference defaults and
// oversight routing.
type SubjectDirectory interface {
	IsAICoached(ctx context.Context, subjectID string) (bool, error)
}

// SubjectDirectoryFunc adapts a function to the SubjectDirectory interface.
type SubjectDirectoryFunc func(ctx context.Context, subjectID string) (bool, error)

func (f SubjectDirectoryFunc) IsAICoached(ctx context.Context, subjectID string) (bool, error) {
	return f(ctx, subjectID)
}

// Orchestrator runs agent cycles.
type Orchestrator struct {
	store           store.Store
	perceptions     PerceptionProvider
	decisions       DecisionProvider
	directory       SubjectDirectory
	lifecycle       *lifecycle.Manager
	prefs           *PreferenceResolver
	notifier        notify.Notifier
	locks           *store.SubjectLocks
	decisionTimeout time.Duration
}

// Opts holds configuration options for the orchestrator.
type Opts struct {
	DecisionTimeout time.Duration
	Notifier        notify.Notifier
}

// Option defines a configuration option for the orchestrator.
type Option func(*Opts)

// WithDecisionTimeout overrides the decision-generation timeout.
func WithDecisionTimeout(d time.Duration) Option {
	return func(o *Opts) { o.DecisionTimeout = d }
}

// WithNotifier attaches a coach notifier for oversight-flagged actions.
func WithNotifier(n notify.Notifier) Option {
	return func(o *Opts) { o.Notifier = n }
}

// NewOrchestrator wires an orchestrator from its collaborators.
func NewOrchestrator(st store.Store, locks *store.SubjectLocks, perceptions PerceptionProvider, decisions DecisionProvider, directory SubjectDirectory, lm *lifecycle.Manager, opts ...Option) *Orchestrator {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DecisionTimeout <= 0 {
		cfg.DecisionTimeout = DefaultDecisionTimeout
	}
	return &Orchestrator{
		store:           st,
		perceptions:     perceptions,
		decisions:       decisions,
		directory:       directory,
		lifecycle:       lm,
		prefs:           NewPreferenceResolver(st),
		notifier:        cfg.Notifier,
		locks:           locks,
		decisionTimeout: cfg.DecisionTimeout,
	}
}

// CanRun reports whether an agent cycle may run for the subject. Subjects
// must pass this gate before any perception capture occurs.
func (o *Orchestrator) CanRun(ctx context.Context, subjectID string) (models.CanRunResult, error) {
	if subjectID == "" {
		return models.CanRunResult{}, models.ErrEmptySubject
	}
	consentRec, err := o.store.GetConsent(subjectID)
	if err != nil {
		return models.CanRunResult{}, fmt.Errorf("failed to load consent: %w", err)
	}
	gate := consent.Check(consentRec)
	if gate.IsWithdrawn {
		return models.CanRunResult{CanRun: false, Reason: ReasonConsentWithdrawn}, nil
	}
	if !gate.HasRequiredConsent {
		return models.CanRunResult{CanRun: false, Reason: ReasonConsentNotGranted}, nil
	}
	return models.CanRunResult{CanRun: true}, nil
}

// RunCycle executes one full agent cycle for the subject: consent gate,
// perception capture and persistence, decision generation, per-candidate
// guardrail evaluation, and action persistence. A failure evaluating one
// candidate does not abort the others; a storage failure aborts the cycle.
func (o *Orchestrator) RunCycle(ctx context.Context, subjectID string) (models.CycleResult, error) {
	release := o.locks.Acquire(subjectID)
	defer release()

	var result models.CycleResult

	gate, err := o.CanRun(ctx, subjectID)
	if err != nil {
		return result, err
	}
	if !gate.CanRun {
		slog.Info("Orchestrator.RunCycle blocked by consent gate", "subjectID", subjectID, "reason", gate.Reason)
		if gate.Reason == ReasonConsentWithdrawn {
			return result, models.ErrConsentWithdrawn
		}
		return result, models.ErrConsentNotGranted
	}

	isAICoached, err := o.directory.IsAICoached(ctx, subjectID)
	if err != nil {
		return result, fmt.Errorf("failed to resolve coaching mode: %w", err)
	}

	snapshot, err := o.perceptions.Capture(ctx, subjectID)
	if err != nil {
		return result, fmt.Errorf("failed to capture perception: %w", err)
	}
	if snapshot.ID == "" {
		snapshot.ID = uuid.NewString()
	}
	snapshot.SubjectID = subjectID
	if snapshot.CapturedAt.IsZero() {
		snapshot.CapturedAt = time.Now()
	}
	if err := o.store.SavePerception(snapshot); err != nil {
		return result, fmt.Errorf("failed to persist perception: %w", err)
	}
	result.PerceptionID = snapshot.ID

	consentRec, err := o.store.GetConsent(subjectID)
	if err != nil {
		return result, fmt.Errorf("failed to load consent: %w", err)
	}
	prefs, err := o.prefs.Resolve(subjectID, isAICoached)
	if err != nil {
		return result, fmt.Errorf("failed to resolve preferences: %w", err)
	}

	candidates := o.propose(ctx, snapshot)
	slog.Debug("Orchestrator.RunCycle generated candidates", "subjectID", subjectID, "count", len(candidates))

	for _, candidate := range candidates {
		if err := candidate.Validate(); err != nil {
			// Per-action isolation: a malformed candidate is skipped,
			// the rest of the cycle proceeds.
			slog.Warn("Orchestrator.RunCycle discarding invalid candidate", "error", err, "subjectID", subjectID, "actionType", candidate.ActionType)
			continue
		}
		verdict := guardrail.Check(candidate, snapshot, consentRec, prefs, isAICoached)
		action, err := o.lifecycle.CreateFromVerdict(subjectID, snapshot.ID, candidate, verdict)
		if err != nil {
			// Storage failures abort the whole cycle.
			return result, fmt.Errorf("failed to persist evaluated action: %w", err)
		}
		result.ActionIDs = append(result.ActionIDs, action.ID)

		if action.RequiresOversight && o.notifier != nil {
			// Best-effort hand-off; notification failures never affect
			// the cycle result.
			if err := o.notifier.NotifyOversight(ctx, action); err != nil {
				slog.Error("Orchestrator.RunCycle oversight notification failed", "error", err, "actionID", action.ID)
			}
		}
	}

	slog.Info("Orchestrator.RunCycle completed", "subjectID", subjectID, "perceptionID", result.PerceptionID, "actions", len(result.ActionIDs))
	return result, nil
}

// propose calls the decision provider under a hard timeout. A timeout is
// treated as zero candidates produced, not a cycle failure.
func (o *Orchestrator) propose(ctx context.Context, snapshot models.PerceptionSnapshot) []models.ProposedAction {
	tctx, cancel := context.WithTimeout(ctx, o.decisionTimeout)
	defer cancel()

	candidates, err := o.decisions.Propose(tctx, snapshot)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			slog.Warn("Orchestrator.propose decision generation timed out", "subjectID", snapshot.SubjectID, "timeout", o.decisionTimeout)
			return nil
		}
		slog.Error("Orchestrator.propose decision generation failed", "error", err, "subjectID", snapshot.SubjectID)
		return nil
	}
	return candidates
}
