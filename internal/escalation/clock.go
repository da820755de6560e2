// Package escalation derives SLA tiers for service requests and runs the
// periodic sweep that turns tier crossings into status transitions.
package escalation

import (
	"time"

	"github.com/hive-services/backend/internal/models"
)

const (
	UrgentAfter   = 90 * time.Minute
	CriticalAfter = 2 * time.Hour
)

// Tier maps the time elapsed since submission to an SLA tier.
// It is pure: callers pass now explicitly and the result is never stored.
func Tier(submittedAt, now time.Time) models.Tier {
	elapsed := now.Sub(submittedAt)
	switch {
	case elapsed >= CriticalAfter:
		return models.TierCritical
	case elapsed >= UrgentAfter:
		return models.TierUrgent
	default:
		return models.TierNormal
	}
}

// RequestTier returns the derived tier of r, or normal when the SLA clock no
// longer applies to its stored status.
func RequestTier(r models.ServiceRequest, now time.Time) models.Tier {
	if !r.Status.AwaitingResponse() {
		return models.TierNormal
	}
	return Tier(r.SubmittedAt, now)
}

// Elapsed splits the time since submission into whole hours and minutes, as shown on dashboards.
func Elapsed(submittedAt, now time.Time) (hours, minutes int) {
	d := now.Sub(submittedAt)
	if d < 0 {
		return 0, 0
	}
	return int(d / time.Hour), int((d % time.Hour) / time.Minute)
}
