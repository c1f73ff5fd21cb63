package models

// BlockedPairResponse represents one unordered blocked pair
type BlockedPairResponse struct {
	A string `json:"a"`
	B string `json:"b"`
}

// BlocklistResponse represents the static block-list
type BlocklistResponse struct {
	Pairs []BlockedPairResponse `json:"pairs"`
	Count int                   `json:"count"`
}

// CheckRequest is the query of GET /api/v1/blocklist/check
type CheckRequest struct {
	Src string `form:"src" binding:"required,ipv4"`
	Dst string `form:"dst" binding:"required,ipv4"`
}

// CheckResponse tells whether traffic between two addresses is blocked
type CheckResponse struct {
	Src     string `json:"src"`
	Dst     string `json:"dst"`
	Blocked bool   `json:"blocked"`
}
