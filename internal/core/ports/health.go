package ports

//go:generate mockgen -source=health.go -destination=mocks/mock_health.go -package=mocks

import "context"

// HealthChecker is a storage backend pinged by GET /health. A failing
// checker reports the service as degraded.
type HealthChecker interface {
	// Ping returns nil when the backend answers in time.
	Ping(ctx context.Context) error
	// Name labels the backend in the health response, e.g. "postgresql".
	Name() string
}
