package handlers

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openflow-firewall/src/controller/pkg/api/models"
	"github.com/openflow-firewall/src/controller/pkg/policy"
)

// BlocklistHandler serves the static block-list
type BlocklistHandler struct {
	policy policy.Checker
}

// NewBlocklistHandler creates a new block-list handler
func NewBlocklistHandler(pc policy.Checker) *BlocklistHandler {
	return &BlocklistHandler{
		policy: pc,
	}
}

// ListPairs handles GET /api/v1/blocklist
func (h *BlocklistHandler) ListPairs(c *gin.Context) {
	pairs := h.policy.Pairs()

	response := models.BlocklistResponse{
		Pairs: make([]models.BlockedPairResponse, 0, len(pairs)),
		Count: len(pairs),
	}
	for _, p := range pairs {
		response.Pairs = append(response.Pairs, models.BlockedPairResponse{
			A: p.A.String(),
			B: p.B.String(),
		})
	}

	c.JSON(http.StatusOK, response)
}

// CheckPair handles GET /api/v1/blocklist/check?src=&dst=
func (h *BlocklistHandler) CheckPair(c *gin.Context) {
	var req models.CheckRequest

	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.BadRequest("src and dst must be IPv4 addresses", err))
		return
	}

	response := models.CheckResponse{
		Src:     req.Src,
		Dst:     req.Dst,
		Blocked: h.policy.IsBlocked(net.ParseIP(req.Src), net.ParseIP(req.Dst)),
	}

	c.JSON(http.StatusOK, response)
}
