package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	log "github.com/sirupsen/logrus"

	"github.com/openflow-firewall/src/controller/pkg/api/models"
	"github.com/openflow-firewall/src/controller/pkg/policy"
)

var startTime = time.Now()

// Version is reported by GET /api/v1/status
const Version = "0.2.0"

// HealthHandler handles health check requests
type HealthHandler struct {
	stats    StatsProvider
	switches SwitchLister
	policy   policy.Checker
	listen   string

	// resources is replaceable in tests
	resources func() (*models.ResourceUsage, error)
}

// NewHealthHandler creates a new health handler. listen is the southbound
// address reported in the status.
func NewHealthHandler(sp StatsProvider, sl SwitchLister, pc policy.Checker, listen string) *HealthHandler {
	return &HealthHandler{
		stats:     sp,
		switches:  sl,
		policy:    pc,
		listen:    listen,
		resources: hostResources,
	}
}

// GetHealth handles GET /api/v1/health
// Simple health check endpoint
func (h *HealthHandler) GetHealth(c *gin.Context) {
	response := models.HealthResponse{
		Status:  "ok",
		Message: "API server is healthy",
	}

	c.JSON(http.StatusOK, response)
}

// GetStatus handles GET /api/v1/status
func (h *HealthHandler) GetStatus(c *gin.Context) {
	st := h.stats.Statistics()
	switchCount := len(h.switches.List())

	controller := models.ComponentStatus{
		Status:  "running",
		Message: "Switches connected",
	}
	if switchCount == 0 {
		controller.Status = "idle"
		controller.Message = "No switch connected"
	}

	overallStatus := "ok"
	resources, err := h.resources()
	if err != nil {
		log.Debugf("Failed to read host resources: %v", err)
		overallStatus = "degraded"
		resources = nil
	}

	stats := toStatisticsResponse(st)
	response := models.StatusResponse{
		Status:     overallStatus,
		Version:    Version,
		Listen:     h.listen,
		Controller: controller,
		API: models.ComponentStatus{
			Status:  "running",
			Message: "API server is operational",
		},
		Statistics:       &stats,
		SwitchCount:      switchCount,
		BlockedPairCount: len(h.policy.Pairs()),
		Resources:        resources,
		Uptime:           int64(time.Since(startTime).Seconds()),
	}

	c.JSON(http.StatusOK, response)
}

// hostResources samples memory and CPU without blocking the request
func hostResources() (*models.ResourceUsage, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return nil, err
	}

	usage := &models.ResourceUsage{
		MemoryUsedMB: vm.Used / 1024 / 1024,
		MemoryTotal:  vm.Total / 1024 / 1024,
	}

	// interval 0 compares against the previous call
	if p, err := cpu.Percent(0, false); err == nil && len(p) > 0 {
		usage.CPUPercent = p[0]
	}
	return usage, nil
}
