package metrics

import (
	"net/http"
	"time"
)

// Collector records engine and HTTP metrics. PrometheusCollector is the
// production implementation; a nil Collector is valid everywhere and records
// nothing.
type Collector interface {
	RecordHTTPRequest(method, path string, status int, duration time.Duration)
	RecordEvaluation(outcome string)
	RecordTransition(severity, event string)
	RecordDelivery(channelType, result string)
	SetCircuitState(channelID string, state string)
	SetActiveAlerts(count float64)
	Handler() http.Handler
}
