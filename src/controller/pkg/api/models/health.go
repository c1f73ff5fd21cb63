package models

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string `json:"status"` // "ok", "degraded", "down"
	Message string `json:"message"`
}

// StatusResponse represents detailed controller status
type StatusResponse struct {
	Status           string              `json:"status"` // "ok", "degraded", "down"
	Version          string              `json:"version"`
	Listen           string              `json:"listen"`
	Controller       ComponentStatus     `json:"controller"`
	API              ComponentStatus     `json:"api"`
	Statistics       *StatisticsResponse `json:"statistics,omitempty"`
	SwitchCount      int                 `json:"switch_count"`
	BlockedPairCount int                 `json:"blocked_pair_count"`
	Resources        *ResourceUsage      `json:"resources,omitempty"`
	Uptime           int64               `json:"uptime_seconds"`
}

// ComponentStatus represents the state of one part of the controller
type ComponentStatus struct {
	Status  string `json:"status"` // "running", "idle", "error"
	Message string `json:"message"`
}

// ResourceUsage is host memory and CPU as seen by the controller
type ResourceUsage struct {
	MemoryUsedMB uint64  `json:"memory_used_mb"`
	MemoryTotal  uint64  `json:"memory_total_mb"`
	CPUPercent   float64 `json:"cpu_percent"`
}
