package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/washwatch/washwatch-go/internal/api/handlers"
	"github.com/washwatch/washwatch-go/internal/cache"
	"github.com/washwatch/washwatch-go/internal/classifier"
)

// HealthChecker reports classifier sidecar availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) (*classifier.HealthResponse, error)
}

// HealthResponse is the service health report. The classifier being down is
// "degraded", not unhealthy: the engine still produces rule-only verdicts.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Services  Services  `json:"services"`
}

type Services struct {
	Classifier string `json:"classifier"`
	Registry   string `json:"registry"`
}

// SetupRoutes wires the HTTP surface of the detection service.
func SetupRoutes(router *gin.Engine, detector handlers.BatchAnalyzer, registry cache.WalletRegistry, health HealthChecker, logger *logrus.Logger) {
	router.GET("/health", healthCheck(registry, health))

	analysisHandler := handlers.NewAnalysisHandler(detector, registry, logger)

	v1 := router.Group("/api/v1")
	{
		analysis := v1.Group("/analysis")
		{
			analysis.POST("/batch", analysisHandler.AnalyzeBatch)
			analysis.GET("/wallets/suspicious", analysisHandler.SuspiciousWallets)
		}
	}
}

func healthCheck(registry cache.WalletRegistry, health HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		response := HealthResponse{
			Status:    "ok",
			Timestamp: time.Now().UTC(),
			Services: Services{
				Classifier: "unavailable",
				Registry:   "disabled",
			},
		}

		if health != nil {
			if _, err := health.HealthCheck(c.Request.Context()); err == nil {
				response.Services.Classifier = "ok"
			} else {
				response.Status = "degraded"
			}
		}
		if registry != nil {
			response.Services.Registry = "ok"
		}

		c.JSON(http.StatusOK, response)
	}
}
