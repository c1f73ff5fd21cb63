package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openflow-firewall/src/controller/pkg/api/handlers"
)

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.deps.Stats, s.deps.Switches, s.deps.Policy, s.deps.Settings.Listen)
	statsHandler := handlers.NewStatisticsHandler(s.deps.Stats)
	switchHandler := handlers.NewSwitchHandler(s.deps.Switches, s.deps.MACs)
	blocklistHandler := handlers.NewBlocklistHandler(s.deps.Policy)
	configHandler := handlers.NewConfigHandler(s.deps.Settings)

	v1 := s.router.Group("/api/v1")
	{
		// Health and status endpoints
		v1.GET("/health", healthHandler.GetHealth)
		v1.GET("/status", healthHandler.GetStatus)

		stats := v1.Group("/stats")
		{
			stats.GET("", statsHandler.GetAllStats)
			stats.GET("/latency", statsHandler.GetLatencyStats)
			stats.GET("/blocked", statsHandler.GetBlockedStats)
		}

		switches := v1.Group("/switches")
		{
			switches.GET("", switchHandler.ListSwitches)
			switches.GET("/:id", switchHandler.GetSwitch)
		}

		blocklist := v1.Group("/blocklist")
		{
			blocklist.GET("", blocklistHandler.ListPairs)
			blocklist.GET("/check", blocklistHandler.CheckPair)
		}

		v1.GET("/config", configHandler.GetConfig)
	}

	if s.deps.Gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	}
}
