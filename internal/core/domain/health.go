package domain

// HealthStatus is the state of the engine or one of its backends.
type HealthStatus string

// Health states.
const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
	StatusDegraded  HealthStatus = "degraded"
)

// ComponentHealth is the state of one backend.
type ComponentHealth struct {
	Status HealthStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// HealthReport summarises backend connectivity.
type HealthReport struct {
	Status   HealthStatus               `json:"status"`
	Services map[string]ComponentHealth `json:"services"`
}
