package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/openflow-firewall/src/controller/pkg/api/models"
	"github.com/openflow-firewall/src/controller/pkg/dataplane"
	"github.com/openflow-firewall/src/controller/pkg/registry"
)

// SwitchHandler handles switch queries
type SwitchHandler struct {
	switches SwitchLister
	macs     MACReader
}

// NewSwitchHandler creates a new switch handler
func NewSwitchHandler(sl SwitchLister, mr MACReader) *SwitchHandler {
	return &SwitchHandler{
		switches: sl,
		macs:     mr,
	}
}

// ListSwitches handles GET /api/v1/switches
func (h *SwitchHandler) ListSwitches(c *gin.Context) {
	list := h.switches.List()

	response := models.SwitchListResponse{
		Switches: make([]models.SwitchResponse, 0, len(list)),
		Count:    len(list),
	}
	for _, sw := range list {
		response.Switches = append(response.Switches, h.toResponse(sw, false))
	}

	c.JSON(http.StatusOK, response)
}

// GetSwitch handles GET /api/v1/switches/:id
// The id is the hexadecimal datapath id, with or without a 0x prefix.
func (h *SwitchHandler) GetSwitch(c *gin.Context) {
	idStr := strings.TrimPrefix(strings.ToLower(c.Param("id")), "0x")
	id, err := strconv.ParseUint(idStr, 16, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.BadRequest("Invalid datapath ID", err))
		return
	}

	sw, ok := h.switches.Get(id)
	if !ok {
		msg := fmt.Sprintf("Switch %s not connected", dataplane.FormatDatapathID(id))
		c.JSON(http.StatusNotFound, models.NotFound(msg))
		return
	}

	c.JSON(http.StatusOK, h.toResponse(sw, true))
}

func (h *SwitchHandler) toResponse(sw *registry.Switch, withMACs bool) models.SwitchResponse {
	entries := h.macs.Entries(sw.ID)

	resp := models.SwitchResponse{
		ID:          dataplane.FormatDatapathID(sw.ID),
		DatapathID:  sw.ID,
		ConnectedAt: sw.ConnectedAt,
		LearnedMACs: len(entries),
	}
	if withMACs {
		resp.MACs = make([]models.MACEntry, 0, len(entries))
		for _, e := range entries {
			resp.MACs = append(resp.MACs, models.MACEntry{MAC: e.MAC, Port: e.Port})
		}
	}
	return resp
}
