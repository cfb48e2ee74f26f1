// Package health provides system health monitoring and status reporting.
package health

import (
	"github.com/ratewise/trustcore/internal/cache"
	"github.com/ratewise/trustcore/internal/resilience/breaker"
	"github.com/ratewise/trustcore/internal/resilience/retry"
)

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// Report contains the full system health report.
type Report struct {
	Status            SystemStatus                    `json:"status"`
	Online            bool                            `json:"online"`
	PendingOperations int                             `json:"pending_operations"`
	Database          string                          `json:"database"`
	Breakers          []breaker.Snapshot              `json:"circuit_breakers"`
	Caches            map[string]cache.Stats          `json:"caches"`
	Operations        map[string]retry.OperationStats `json:"operations"`
}
