package http

import (
	"time"

	"github.com/sawpanic/quantfund/internal/domain"
	"github.com/sawpanic/quantfund/internal/ops"
	"github.com/sawpanic/quantfund/internal/telemetry/latency"
)

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// RegisterRequest is the body of POST /strategies
type RegisterRequest struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Owner  string        `json:"owner,omitempty"`
	Status domain.Status `json:"status,omitempty"` // defaults to testing
}

// StatusRequest is the body of PUT /strategies/{id}/status
type StatusRequest struct {
	Status domain.Status `json:"status"`
}

// ObservationRequest is the body of POST /strategies/{id}/observations.
// A zero timestamp is stamped with the receive time.
type ObservationRequest struct {
	Timestamp time.Time `json:"ts"`
	Value     float64   `json:"value"`
}

// StrategiesResponse lists strategies in registration order
type StrategiesResponse struct {
	Strategies []domain.StrategyView `json:"strategies"`
	Count      int                   `json:"count"`
}

// StatsResponse reports counters and cycle latency
type StatsResponse struct {
	Timestamp   time.Time         `json:"timestamp"`
	Counters    ops.Summary       `json:"counters"`
	Latency     []latency.Summary `json:"latency"`
	Subscribers int               `json:"subscribers"`
}
