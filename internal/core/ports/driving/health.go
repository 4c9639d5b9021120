package driving

import (
	"context"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
)

// HealthService reports backend connectivity.
type HealthService interface {
	// Check probes every backend. It never returns an error; failures are
	// reported per component.
	Check(ctx context.Context) domain.HealthReport
}
