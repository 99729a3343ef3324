package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thanhnp/dispenser-tracker/internal/storage"
	"github.com/thanhnp/dispenser-tracker/internal/view"
)

// DashboardHandler renders every tracked address
type DashboardHandler struct {
	addresses *storage.AddressListStore
	prefs     *storage.PreferenceStore
	builder   *view.Builder
}

// NewDashboardHandler creates a new DashboardHandler
func NewDashboardHandler(addresses *storage.AddressListStore, prefs *storage.PreferenceStore, builder *view.Builder) *DashboardHandler {
	return &DashboardHandler{
		addresses: addresses,
		prefs:     prefs,
		builder:   builder,
	}
}

// Get returns the composed view
// GET /api/v1/dashboard
func (h *DashboardHandler) Get(c *gin.Context) {
	dash, err := h.builder.Build(c.Request.Context(), h.addresses.Get(), h.prefs.ShowClosed())
	if err != nil {
		_ = c.Error(err)
		errorJSON(c, http.StatusInternalServerError, "Failed to build dashboard")
		return
	}
	c.JSON(http.StatusOK, dash)
}
