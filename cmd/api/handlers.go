package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/entitlement"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/health"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/logging"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/metrics"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/middleware"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/plans"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/provisioning"
	"github.com/therealutkarshpriyadarshi/streamflow/pkg/models"
)

type API struct {
	orchestrator   *provisioning.Orchestrator
	decommissioner *provisioning.Decommissioner
	checker        *health.Checker
	ping           func(ctx context.Context) error
	logger         *logging.Logger
}

// CreateChannelRequest is the body of POST /channels
type CreateChannelRequest struct {
	Name        string             `json:"name" binding:"required"`
	Description string             `json:"description"`
	HLSSettings models.HLSSettings `json:"hls_settings"`
}

// EntitlementCheckRequest is the body of POST /entitlements/check
type EntitlementCheckRequest struct {
	Feature      string `json:"feature" binding:"required"`
	RequiredPlan string `json:"required_plan"`
}

// Health check endpoint
func (api *API) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	// Check database health
	if err := api.ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

func (api *API) listPlans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plans": plans.All()})
}

func (api *API) checkEntitlement(c *gin.Context) {
	tenant, _ := middleware.GetTenant(c)

	var req EntitlementCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "feature is required"})
		return
	}

	currentPlan := tenant.PlanKey
	if key, ok := plans.ParseKey(tenant.PlanKey); ok {
		currentPlan = string(key)
	}

	resp := gin.H{
		"has_access":    entitlement.HasAccess(tenant.PlanKey, req.Feature),
		"current_plan":  currentPlan,
		"required_plan": req.RequiredPlan,
	}
	if tier, err := plans.Get(tenant.PlanKey); err == nil {
		resp["plan"] = gin.H{
			"name":     tier.Name,
			"price":    tier.Price,
			"channels": tier.Channels,
			"features": tier.Features,
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (api *API) createChannel(c *gin.Context) {
	tenant, _ := middleware.GetTenant(c)

	var req CreateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Channel name is required"})
		return
	}

	res, err := api.orchestrator.Create(c.Request.Context(), tenant, provisioning.ChannelDraft{
		Name:        req.Name,
		Description: req.Description,
		HLSSettings: req.HLSSettings,
	})
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, provisionResponse(res))
}

func (api *API) listChannels(c *gin.Context) {
	tenant, _ := middleware.GetTenant(c)

	views, err := api.orchestrator.List(c.Request.Context(), tenant)
	if err != nil {
		api.respondError(c, err)
		return
	}

	channels := make([]gin.H, 0, len(views))
	for _, v := range views {
		channels = append(channels, channelResponse(v))
	}

	c.JSON(http.StatusOK, gin.H{
		"channels": channels,
		"total":    len(channels),
		"quota":    plans.Quota(tenant.PlanKey),
	})
}

func (api *API) getChannel(c *gin.Context) {
	tenant, _ := middleware.GetTenant(c)

	view, err := api.orchestrator.Get(c.Request.Context(), tenant, c.Param("id"))
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, channelResponse(view))
}

func (api *API) provisionChannel(c *gin.Context) {
	tenant, _ := middleware.GetTenant(c)

	res, err := api.orchestrator.Provision(c.Request.Context(), tenant, c.Param("id"))
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, provisionResponse(res))
}

func (api *API) deleteChannel(c *gin.Context) {
	tenant, _ := middleware.GetTenant(c)

	res, err := api.decommissioner.Decommission(c.Request.Context(), tenant, c.Param("id"))
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":             true,
		"message":             res.Message,
		"instance_terminated": res.InstanceTerminated,
	})
}

func (api *API) checkTranscoding(c *gin.Context) {
	tenant, _ := middleware.GetTenant(c)

	result, err := api.checker.CheckForTenant(c.Request.Context(), tenant, c.Param("id"))
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"channel_id":     result.ChannelID,
		"public_ip":      result.PublicIP,
		"service_status": result,
	})
}

func (api *API) enterMaintenance(c *gin.Context) {
	actor, _ := middleware.GetTenant(c)

	ch, err := api.orchestrator.EnterMaintenance(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "channel": ch})
}

func (api *API) exitMaintenance(c *gin.Context) {
	actor, _ := middleware.GetTenant(c)

	ch, err := api.orchestrator.ExitMaintenance(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "channel": ch})
}

func (api *API) terminateChannel(c *gin.Context) {
	actor, _ := middleware.GetTenant(c)

	res, err := api.decommissioner.Terminate(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":             true,
		"message":             res.Message,
		"instance_terminated": res.InstanceTerminated,
	})
}

func provisionResponse(res *provisioning.ProvisionResult) gin.H {
	return gin.H{
		"success":             true,
		"channel":             res.Channel,
		"effective_settings":  res.EffectiveSettings,
		"is_mock":             res.IsMock,
		"message":             res.Message,
		"already_provisioned": res.AlreadyProvisioned,
	}
}

func channelResponse(v *provisioning.ChannelView) gin.H {
	resp := gin.H{
		"channel":            v.Channel,
		"effective_settings": v.EffectiveSettings,
	}
	if len(v.Violations) > 0 {
		resp["entitlement_violations"] = v.Violations
	}
	if v.SettingsUnfiltered {
		resp["effective_settings_unfiltered"] = true
	}
	return resp
}

// respondError maps lifecycle errors onto HTTP statuses
func (api *API) respondError(c *gin.Context, err error) {
	var quotaErr *provisioning.QuotaError

	switch {
	case errors.As(err, &quotaErr):
		c.JSON(http.StatusForbidden, gin.H{
			"error": quotaErr.Error(),
			"plan":  quotaErr.Plan,
			"quota": quotaErr.Quota,
		})
	case errors.Is(err, provisioning.ErrChannelNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Channel not found"})
	case errors.Is(err, health.ErrNoEndpoints):
		c.JSON(http.StatusNotFound, gin.H{"error": "Channel not found or no IP address"})
	case errors.Is(err, provisioning.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
	case errors.Is(err, provisioning.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, provisioning.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, provisioning.ErrChannelBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "Channel is busy, retry later"})
	case errors.Is(err, provisioning.ErrProvisioningFailed):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to provision streaming instance"})
	default:
		metrics.RecordError("api", "internal")
		api.logger.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
