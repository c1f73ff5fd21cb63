package models

import "time"

// MACEntry is one learned address
type MACEntry struct {
	MAC  string `json:"mac"`
	Port uint32 `json:"port"`
}

// SwitchResponse represents a connected switch
type SwitchResponse struct {
	ID          string     `json:"id"`
	DatapathID  uint64     `json:"datapath_id"`
	ConnectedAt time.Time  `json:"connected_at"`
	LearnedMACs int        `json:"learned_macs"`
	MACs        []MACEntry `json:"macs,omitempty"`
}

// SwitchListResponse represents the connected switches
type SwitchListResponse struct {
	Switches []SwitchResponse `json:"switches"`
	Count    int              `json:"count"`
}
