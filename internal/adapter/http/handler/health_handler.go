package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"referral-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
)

const healthTimeout = 3 * time.Second

type dependencyHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthCheck handles GET /health. Dependencies are pinged in parallel
// under a single deadline; any failure turns the response into a 503.
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		results := make([]dependencyHealth, len(checkers))
		var wg sync.WaitGroup
		for i, checker := range checkers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i] = ping(ctx, checker)
			}()
		}
		wg.Wait()

		overall, code := "healthy", http.StatusOK
		deps := make(map[string]dependencyHealth, len(checkers))
		for i, checker := range checkers {
			deps[checker.Name()] = results[i]
			if results[i].Error != "" {
				overall, code = "degraded", http.StatusServiceUnavailable
			}
		}

		c.JSON(code, gin.H{"status": overall, "dependencies": deps})
	}
}

func ping(ctx context.Context, checker ports.HealthChecker) dependencyHealth {
	if err := checker.Ping(ctx); err != nil {
		return dependencyHealth{Status: "unhealthy", Error: err.Error()}
	}
	return dependencyHealth{Status: "healthy"}
}
