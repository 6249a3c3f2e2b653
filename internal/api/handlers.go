package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/deaconkarim/deacon-insights/internal/analytics"
	"github.com/deaconkarim/deacon-insights/internal/cache"
	"github.com/deaconkarim/deacon-insights/internal/services"
)

// InsightsProvider is the part of the insights service the handlers use
type InsightsProvider interface {
	GetDashboardInsights(ctx context.Context, organizationID string, forceRefresh bool) *services.InsightBundle
	GetWeeklyDigest(ctx context.Context, organizationID string, forceRefresh bool) *services.WeeklyDigest
	GetAtRiskMembers(ctx context.Context, organizationID string, forceRefresh bool) ([]analytics.AtRiskMember, error)
	GetDonationInsights(ctx context.Context, organizationID string, forceRefresh bool) (*analytics.DonationInsights, error)
	GetAttendancePredictions(ctx context.Context, organizationID string, forceRefresh bool) (*analytics.AttendanceForecast, error)
	ClearCache(ctx context.Context, organizationID string) int
	CacheStats(ctx context.Context) cache.Stats
}

// Handlers serves the insights endpoints
type Handlers struct {
	insights InsightsProvider
	logger   *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(insights InsightsProvider, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		insights: insights,
		logger:   logger.Named("api"),
	}
}

// GetDashboard returns the narrated insight bundle
func (h *Handlers) GetDashboard(c *gin.Context) {
	bundle := h.insights.GetDashboardInsights(c.Request.Context(), c.Query("organization_id"), forceRefresh(c))
	if bundle.Error != "" {
		c.JSON(http.StatusBadRequest, bundle)
		return
	}
	c.JSON(http.StatusOK, bundle)
}

// GetDigest returns the weekly digest
func (h *Handlers) GetDigest(c *gin.Context) {
	digest := h.insights.GetWeeklyDigest(c.Request.Context(), c.Query("organization_id"), forceRefresh(c))
	if digest.Error != "" {
		c.JSON(http.StatusBadRequest, digest)
		return
	}
	c.JSON(http.StatusOK, digest)
}

func (h *Handlers) GetAtRiskMembers(c *gin.Context) {
	organizationID, ok := requireOrganization(c)
	if !ok {
		return
	}

	members, err := h.insights.GetAtRiskMembers(c.Request.Context(), organizationID, forceRefresh(c))
	if err != nil {
		h.respondError(c, organizationID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  members,
		"count": len(members),
	})
}

func (h *Handlers) GetDonationInsights(c *gin.Context) {
	organizationID, ok := requireOrganization(c)
	if !ok {
		return
	}

	insights, err := h.insights.GetDonationInsights(c.Request.Context(), organizationID, forceRefresh(c))
	if err != nil {
		h.respondError(c, organizationID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": insights})
}

func (h *Handlers) GetAttendancePredictions(c *gin.Context) {
	organizationID, ok := requireOrganization(c)
	if !ok {
		return
	}

	forecast, err := h.insights.GetAttendancePredictions(c.Request.Context(), organizationID, forceRefresh(c))
	if err != nil {
		h.respondError(c, organizationID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": forecast})
}

// ClearCache drops cached results for organization_id, or all results when it is omitted
func (h *Handlers) ClearCache(c *gin.Context) {
	organizationID := c.Query("organization_id")
	removed := h.insights.ClearCache(c.Request.Context(), organizationID)

	c.JSON(http.StatusOK, gin.H{
		"organizationId": organizationID,
		"removed":        removed,
	})
}

func (h *Handlers) GetCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.insights.CacheStats(c.Request.Context()))
}

func (h *Handlers) respondError(c *gin.Context, organizationID string, err error) {
	h.logger.Error("Insight request failed",
		zap.String("organization_id", organizationID),
		zap.String("path", c.FullPath()),
		zap.Error(err))

	var fetchErr *services.FetchError
	switch {
	case errors.Is(err, services.ErrMissingOrganization):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &fetchErr):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "source": fetchErr.Source})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute insights"})
	}
}

func requireOrganization(c *gin.Context) (string, bool) {
	organizationID := c.Query("organization_id")
	if organizationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "organization_id query parameter is required"})
		return "", false
	}
	return organizationID, true
}

func forceRefresh(c *gin.Context) bool {
	force, _ := strconv.ParseBool(c.DefaultQuery("force_refresh", "false"))
	return force
}
