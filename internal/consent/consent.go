// Package consent validates a subject's granted and withdrawn consent record.
//
// The consent gate is stronger than the per-action guardrail: a missing or
// withdrawn record halts the entire agent cycle before any perception
// snapshot is even captured for that subject.
package consent

import (
	"github.com/strideworks/coachguard/internal/models"
)

// Check validates a consent record. A nil record means the subject never
// granted agent consent at all.
func Check(c *models.AgentConsent) models.ConsentResult {
	if c == nil {
		return models.ConsentResult{HasRequiredConsent: false, IsWithdrawn: false}
	}
	return models.ConsentResult{
		HasRequiredConsent: c.HasGranted(models.ConsentAgentCoaching) && !c.IsWithdrawn,
		IsWithdrawn:        c.IsWithdrawn,
	}
}

// CanMakeAutomatedDecisions reports whether unattended auto-apply is
// consented to. It is a strict subset of Check: automated decisions require
// the base coaching consent plus the automated-decisions category.
func CanMakeAutomatedDecisions(c *models.AgentConsent) bool {
	if c == nil || c.IsWithdrawn {
		return false
	}
	return c.HasGranted(models.ConsentAgentCoaching) && c.HasGranted(models.ConsentAutomatedDecisions)
}
