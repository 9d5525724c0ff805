package proxy

import (
	"net/http"
	"time"

	"github.com/samber/lo"

	"github.com/omarluq/shopgate/internal/health"
	"github.com/omarluq/shopgate/internal/registry"
)

// Aggregate gateway health values.
const (
	AggregateHealthy   = "healthy"
	AggregateDegraded  = "degraded"
	AggregateUnhealthy = "unhealthy"
)

// GatewayHandler serves the operator endpoints. It only reads resilience
// state; it never probes a backend.
type GatewayHandler struct {
	registry *registry.Registry
	tracker  *health.Tracker
	health   *health.StatusCache
}

// NewGatewayHandler creates the operator endpoint handler.
func NewGatewayHandler(reg *registry.Registry, tracker *health.Tracker, statusCache *health.StatusCache) *GatewayHandler {
	return &GatewayHandler{registry: reg, tracker: tracker, health: statusCache}
}

// CircuitView is the JSON view of one circuit breaker.
type CircuitView struct {
	OpenedAt            time.Time `json:"opened_at,omitzero"`
	State               string    `json:"state"`
	RecoveryTimeoutMS   int64     `json:"recovery_timeout_ms"`
	FailureThreshold    int       `json:"failure_threshold"`
	ConsecutiveFailures uint32    `json:"consecutive_failures"`
}

// HealthView is the JSON view of one health cache entry.
type HealthView struct {
	LastCheckedAt time.Time     `json:"last_checked_at,omitzero"`
	LastError     string        `json:"last_error,omitempty"`
	Status        health.Status `json:"status"`
	TTLMS         int64         `json:"ttl_ms"`
}

// ServiceView describes one registered service.
type ServiceView struct {
	Name       string      `json:"name"`
	PathPrefix string      `json:"path_prefix"`
	BaseURL    string      `json:"base_url"`
	Access     string      `json:"access"`
	Health     HealthView  `json:"health"`
	Circuit    CircuitView `json:"circuit"`
	TimeoutMS  int64       `json:"timeout_ms"`
}

// ServicesResponse is the body of GET /gateway/services.
type ServicesResponse struct {
	Services []ServiceView `json:"services"`
	Count    int           `json:"count"`
}

// ServiceHealth is one entry of the aggregate health response.
type ServiceHealth struct {
	Status  health.Status `json:"status"`
	Circuit string        `json:"circuit"`
}

// AggregateHealthResponse is the body of GET /gateway/health.
type AggregateHealthResponse struct {
	Services map[string]ServiceHealth `json:"services"`
	Status   string                   `json:"status"`
}

// Services handles GET /gateway/services.
func (g *GatewayHandler) Services(w http.ResponseWriter, _ *http.Request) {
	circuits := lo.KeyBy(g.tracker.Snapshots(), func(s health.Snapshot) string { return s.Service })
	records := lo.KeyBy(g.health.Snapshot(), func(r health.Record) string { return r.Service })

	views := lo.Map(g.registry.List(), func(svc *registry.ServiceDescriptor, _ int) ServiceView {
		circuit := circuits[svc.Name]
		record := records[svc.Name]
		return ServiceView{
			Name:       svc.Name,
			PathPrefix: svc.PathPrefix,
			BaseURL:    svc.BaseURL.String(),
			Access:     string(svc.Access),
			TimeoutMS:  svc.Timeout.Milliseconds(),
			Circuit: CircuitView{
				State:               health.StateName(circuit.State),
				ConsecutiveFailures: circuit.ConsecutiveFailures,
				FailureThreshold:    circuit.FailureThreshold,
				RecoveryTimeoutMS:   circuit.RecoveryTimeout.Milliseconds(),
				OpenedAt:            circuit.OpenedAt,
			},
			Health: HealthView{
				Status:        record.Status,
				LastCheckedAt: record.LastCheckedAt,
				LastError:     record.LastError,
				TTLMS:         record.TTL.Milliseconds(),
			},
		}
	})

	writeJSON(w, http.StatusOK, ServicesResponse{Services: views, Count: len(views)})
}

// Health handles GET /gateway/health. It answers 503 only when every
// registered service is UNHEALTHY.
func (g *GatewayHandler) Health(w http.ResponseWriter, _ *http.Request) {
	states := g.tracker.AllStates()
	records := g.health.Snapshot()

	services := make(map[string]ServiceHealth, len(records))
	for _, rec := range records {
		services[rec.Service] = ServiceHealth{
			Status:  rec.Status,
			Circuit: health.StateName(states[rec.Service]),
		}
	}

	status := aggregateStatus(records, states)
	code := http.StatusOK
	if status == AggregateUnhealthy {
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, AggregateHealthResponse{Status: status, Services: services})
}

// aggregateStatus is healthy when no service is UNHEALTHY or open, unhealthy
// when every service is UNHEALTHY and degraded otherwise.
func aggregateStatus(records []health.Record, states map[string]health.State) string {
	unhealthy := lo.CountBy(records, func(r health.Record) bool {
		return r.Status == health.StatusUnhealthy
	})
	if len(records) > 0 && unhealthy == len(records) {
		return AggregateUnhealthy
	}

	open := lo.SomeBy(lo.Values(states), func(s health.State) bool {
		return s != health.StateClosed
	})
	if unhealthy > 0 || open {
		return AggregateDegraded
	}
	return AggregateHealthy
}

// Liveness handles GET /health. It reports the gateway process only.
func Liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
