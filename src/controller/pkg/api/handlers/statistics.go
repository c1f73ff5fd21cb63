package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openflow-firewall/src/controller/pkg/api/models"
	"github.com/openflow-firewall/src/controller/pkg/stats"
)

// StatisticsHandler handles statistics requests
type StatisticsHandler struct {
	stats StatsProvider
}

// NewStatisticsHandler creates a new statistics handler
func NewStatisticsHandler(sp StatsProvider) *StatisticsHandler {
	return &StatisticsHandler{
		stats: sp,
	}
}

// GetAllStats handles GET /api/v1/stats
func (h *StatisticsHandler) GetAllStats(c *gin.Context) {
	c.JSON(http.StatusOK, toStatisticsResponse(h.stats.Statistics()))
}

// GetLatencyStats handles GET /api/v1/stats/latency
func (h *StatisticsHandler) GetLatencyStats(c *gin.Context) {
	report := h.stats.Summary()
	samples := h.stats.Latencies()
	if samples == nil {
		samples = []float64{}
	}

	response := models.LatencyResponse{
		Count:   report.LatencySamples,
		MinMs:   report.MinLatencyMs,
		MeanMs:  report.MeanLatencyMs,
		P95Ms:   report.P95LatencyMs,
		MaxMs:   report.MaxLatencyMs,
		Samples: samples,
	}

	c.JSON(http.StatusOK, response)
}

// GetBlockedStats handles GET /api/v1/stats/blocked
func (h *StatisticsHandler) GetBlockedStats(c *gin.Context) {
	samples := h.stats.Samples()

	response := models.BlockedResponse{
		BlockedTotal: h.stats.Statistics().BlockedTotal,
		Samples:      make([]models.BlockedSample, 0, len(samples)),
	}
	for _, s := range samples {
		response.Samples = append(response.Samples, models.BlockedSample{Time: s.Time, Blocked: s.Blocked})
	}

	c.JSON(http.StatusOK, response)
}

func toStatisticsResponse(st stats.Statistics) models.StatisticsResponse {
	return models.StatisticsResponse{
		BlockedTotal:    st.BlockedTotal,
		Blocked:         st.Blocked,
		Flooded:         st.Flooded,
		Forwarded:       st.Forwarded,
		FlowInstalls:    st.FlowInstalls,
		LatencySamples:  st.LatencySamples,
		Reconciliations: st.Reconciliations,
		PerSwitch:       st.PerSwitch,
	}
}
