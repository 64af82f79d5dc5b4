package metrics

import (
	"net/http"
	"strconv"

	"github.com/jordancj7/folio/internal/observability"
)

// Metric names
const (
	ErrorsTotalName      = "errors_total"
	PanicsTotalName      = "panics_total"
	ErrorsByEndpointName = "errors_by_endpoint"
)

// Error classes separate caller mistakes from quota pressure and model outages.
const (
	ErrorClassClient   = "client"
	ErrorClassQuota    = "quota"
	ErrorClassUpstream = "upstream"
	ErrorClassServer   = "server"
)

// ErrorClass buckets an HTTP status for dashboards.
func ErrorClass(httpStatus int) string {
	switch {
	case httpStatus == http.StatusTooManyRequests:
		return ErrorClassQuota
	case httpStatus == http.StatusBadGateway, httpStatus == http.StatusGatewayTimeout:
		return ErrorClassUpstream
	case httpStatus >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// RecordError records an error with code and status
func RecordError(errorCode string, httpStatus int) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(
		ErrorsTotalName,
		1,
		map[string]string{
			"error_code":  errorCode,
			"http_status": strconv.Itoa(httpStatus),
			"class":       ErrorClass(httpStatus),
		},
	)
}

// RecordPanic records a recovered panic on a route pattern.
func RecordPanic(endpoint string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(
		PanicsTotalName,
		1,
		map[string]string{"endpoint": endpoint},
	)
}

// RecordErrorByEndpoint records an error against a route pattern. Callers pass
// the pattern, never the raw path, so message IDs stay out of the labels.
func RecordErrorByEndpoint(endpoint string, errorCode string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(
		ErrorsByEndpointName,
		1,
		map[string]string{
			"endpoint":   endpoint,
			"error_code": errorCode,
		},
	)
}
