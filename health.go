package payclient

import (
	"context"
	"time"
)

// Health statuses reported by Health and Ping.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthReport is a read-only view of the client for health endpoints.
type HealthReport struct {
	// CircuitBreaker is a snapshot of the breaker guarding the payment
	// service.
	CircuitBreaker BreakerSnapshot `json:"circuit_breaker"`

	// Configuration echoes the active retry policy.
	Configuration RetryPolicy `json:"configuration"`

	// Status is "healthy" while the breaker is closed, "degraded"
	// otherwise.
	Status string `json:"status"`
}

// Health reports current breaker and policy state. It never mutates the
// client and is safe to call concurrently with Charge.
func (c *ChargeClient) Health() HealthReport {
	snapshot := c.breaker.Snapshot()

	status := StatusHealthy
	if snapshot.State != StateClosed {
		status = StatusDegraded
	}

	return HealthReport{
		CircuitBreaker: snapshot,
		Configuration:  c.policy,
		Status:         status,
	}
}

// PingStatus is the result of probing the payment service's health
// endpoint.
type PingStatus struct {
	Status       string        `json:"status"`
	StatusCode   int           `json:"status_code,omitempty"`
	ResponseTime time.Duration `json:"response_time,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// Pinger is implemented by transports that can probe the payment
// service's health endpoint directly.
type Pinger interface {
	Ping(ctx context.Context) PingStatus
}

// Ping probes the payment service through the transport, if the transport
// supports it. The probe bypasses the retry loop and never touches
// breaker state.
func (c *ChargeClient) Ping(ctx context.Context) PingStatus {
	if p, ok := c.transport.(Pinger); ok {
		return p.Ping(ctx)
	}
	return PingStatus{
		Status: StatusUnhealthy,
		Error:  "transport does not support health probes",
	}
}
