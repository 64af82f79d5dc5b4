package metrics

import (
	"time"

	"github.com/jordancj7/folio/internal/observability"
)

// Flow and quota metric names.
const (
	FlowInvocationsTotal = "flow_invocations_total"
	FlowDuration         = "flow_duration_ms"
	QuotaDecisionsTotal  = "quota_decisions_total"
	ContactMessagesTotal = "contact_messages_total"
)

// RecordFlow records a finished flow invocation. outcome is "success" or a
// failure kind.
func RecordFlow(flow, outcome string, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(
		FlowInvocationsTotal,
		1,
		map[string]string{
			"flow":    flow,
			"outcome": outcome,
		},
	)
	_ = observability.TelemetrySystem.Histogram(
		FlowDuration,
		duration,
		map[string]string{
			"flow": flow,
		},
	)
}

// RecordQuotaDecision records a rate limiter verdict.
func RecordQuotaDecision(flow, kind string, allowed bool) {
	if observability.TelemetrySystem == nil {
		return
	}
	status := "allowed"
	if !allowed {
		status = "denied"
	}
	_ = observability.TelemetrySystem.Counter(
		QuotaDecisionsTotal,
		1,
		map[string]string{
			"flow":   flow,
			"kind":   kind,
			"status": status,
		},
	)
}

// RecordContactMessage records a contact form submission.
func RecordContactMessage(success bool) {
	RecordOperation("contact_message", success)
	if observability.TelemetrySystem == nil || !success {
		return
	}
	_ = observability.TelemetrySystem.Counter(ContactMessagesTotal, 1, nil)
}
