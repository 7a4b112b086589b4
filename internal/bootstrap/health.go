package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthCheck is one dependency probed by the liveness endpoint.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

var ErrUnhealthy = errors.New("not healthy")

// QueueCheck adapts a broker's IsHealthy to a HealthCheck
func QueueCheck(name string, isHealthy func() bool) HealthCheck {
	return HealthCheck{Name: name, Check: func(context.Context) error {
		if !isHealthy() {
			return ErrUnhealthy
		}
		return nil
	}}
}

// RegisterHealthRoutes adds /readiness and /liveness. Readiness is true once the
// binary finished wiring; liveness probes every check on each call.
func RegisterHealthRoutes(r gin.IRoutes, isReady func() bool, checks []HealthCheck) {
	r.GET("/readiness", func(c *gin.Context) {
		if isReady() {
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
			return
		}

		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
	})
	r.GET("/liveness", func(c *gin.Context) {
		for _, check := range checks {
			if err := check.Check(c); err != nil {
				slog.Error("Dependency is not healthy in liveness API", "dependency", check.Name, "error", err.Error())
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not healthy", "dependency": check.Name})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"status": "up"})
	})
}
