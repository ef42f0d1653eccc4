// Package notify hands oversight-flagged actions to a human coach.
//
// Delivery is best-effort: the guardrail verdict and the persisted action
// are the source of truth, and a lost notification never changes either.
package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/strideworks/coachguard/internal/models"
)

// Notifier delivers an oversight request for a persisted action.
type Notifier interface {
	NotifyOversight(ctx context.Context, action models.AgentAction) error
}

// FormatOversightMessage renders the SMS body for an oversight request.
func FormatOversightMessage(action models.AgentAction) string {
	msg := fmt.Sprintf("Review needed: agent proposed %s for athlete %s (priority %s, confidence %.2f).",
		action.ActionType, action.SubjectID, action.Priority, action.Confidence)
	if action.Params.Reason != "" {
		msg += " Reason: " + action.Params.Reason
	}
	return msg
}

// MockNotifier records notified actions for tests.
type MockNotifier struct {
	mu      sync.Mutex
	Actions []models.AgentAction
	Err     error
}

// NewMockNotifier creates an empty mock notifier.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) NotifyOversight(ctx context.Context, action models.AgentAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Actions = append(m.Actions, action)
	return nil
}

// Notified returns a copy of the recorded actions.
func (m *MockNotifier) Notified() []models.AgentAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.AgentAction, len(m.Actions))
	copy(out, m.Actions)
	return out
}
