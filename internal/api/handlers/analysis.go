package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/washwatch/washwatch-go/internal/cache"
	"github.com/washwatch/washwatch-go/internal/models"
	"github.com/washwatch/washwatch-go/internal/utils"
)

// BatchAnalyzer is the analysis entry point the handler depends on.
type BatchAnalyzer interface {
	AnalyzeBatch(ctx context.Context, records []models.RawTrade) (*models.BatchResult, error)
}

// AnalysisHandler serves the batch-analysis API consumed by the display and
// upload front end.
type AnalysisHandler struct {
	detector BatchAnalyzer
	registry cache.WalletRegistry
	logger   *logrus.Logger
}

// NewAnalysisHandler creates an analysis handler.
func NewAnalysisHandler(detector BatchAnalyzer, registry cache.WalletRegistry, logger *logrus.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		detector: detector,
		registry: registry,
		logger:   logger,
	}
}

// BatchRequest is a raw trade batch as uploaded by the caller.
type BatchRequest struct {
	Trades []models.RawTrade `json:"trades" binding:"required"`
}

// SuspiciousWalletsResponse lists currently flagged wallets.
type SuspiciousWalletsResponse struct {
	Wallets   []cache.WalletEntry `json:"wallets"`
	Total     int                 `json:"total"`
	Timestamp time.Time           `json:"timestamp"`
}

// AnalyzeBatch handles POST /api/v1/analysis/batch. Per-record problems are
// reported in the skipped list; schema misconfiguration is surfaced as a
// server error since no verdict can be trusted without the trained feature
// order.
func (h *AnalysisHandler) AnalyzeBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if len(req.Trades) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "batch contains no trades"})
		return
	}

	result, err := h.detector.AnalyzeBatch(c.Request.Context(), req.Trades)
	if err != nil {
		var schemaErr *utils.SchemaMismatchError
		if errors.As(err, &schemaErr) {
			h.logger.WithError(err).Error("Batch rejected by feature schema validation")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "feature schema mismatch",
				"feature": schemaErr.FeatureName,
				"reason":  schemaErr.Reason,
			})
			return
		}
		h.logger.WithError(err).Error("Batch analysis failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// SuspiciousWallets handles GET /api/v1/analysis/wallets/suspicious.
func (h *AnalysisHandler) SuspiciousWallets(c *gin.Context) {
	if h.registry == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "wallet registry is disabled"})
		return
	}

	wallets, err := h.registry.Flagged(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to read wallet registry")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuspiciousWalletsResponse{
		Wallets:   wallets,
		Total:     len(wallets),
		Timestamp: time.Now().UTC(),
	})
}
