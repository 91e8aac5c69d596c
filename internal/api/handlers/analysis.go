package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/quantsignal/advisor-go/internal/models"
	"github.com/quantsignal/advisor-go/internal/services"
)

// AnalysisHandler exposes the signal pipeline over HTTP.
type AnalysisHandler struct {
	analyzer   *services.Analyzer
	backtester *services.Backtester
	logger     *logrus.Logger
}

// NewAnalysisHandler creates the analysis endpoints handler.
func NewAnalysisHandler(analyzer *services.Analyzer, backtester *services.Backtester, logger *logrus.Logger) *AnalysisHandler {
	return &AnalysisHandler{analyzer: analyzer, backtester: backtester, logger: logger}
}

// GenerateSignal handles POST /api/v1/analysis/signal.
func (h *AnalysisHandler) GenerateSignal(c *gin.Context) {
	var req models.AnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	sig, err := h.analyzer.Analyze(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sig)
}

// RunBacktest handles POST /api/v1/analysis/backtest.
func (h *AnalysisHandler) RunBacktest(c *gin.Context) {
	var req models.BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	result, err := h.backtester.Run(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *AnalysisHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidParameter):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInsufficientData):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		h.logger.WithError(err).Error("analysis failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
