package models

// ConfigResponse represents the configuration the controller runs with.
// It is read-only; the block-list cannot change at runtime.
type ConfigResponse struct {
	LogLevel     string `json:"log_level"`
	Listen       string `json:"listen"`
	PollInterval string `json:"poll_interval"`
	EventBuffer  int    `json:"event_buffer"`
	LearnedMatch string `json:"learned_match"`
	StoragePath  string `json:"storage_path,omitempty"`
	APIHost      string `json:"api_host"`
	APIPort      int    `json:"api_port"`
	BlockedPairs int    `json:"blocked_pairs"`
}
