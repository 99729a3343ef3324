package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thanhnp/dispenser-tracker/internal/storage"
)

// PreferenceHandler handles the closed dispenser visibility flag
type PreferenceHandler struct {
	prefs *storage.PreferenceStore
}

// NewPreferenceHandler creates a new PreferenceHandler
func NewPreferenceHandler(prefs *storage.PreferenceStore) *PreferenceHandler {
	return &PreferenceHandler{prefs: prefs}
}

type showClosedRequest struct {
	ShowClosed *bool `json:"show_closed" binding:"required"`
}

// GetShowClosed returns the flag
// GET /api/v1/preferences/show-closed
func (h *PreferenceHandler) GetShowClosed(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"show_closed": h.prefs.ShowClosed()})
}

// SetShowClosed sets the flag
// PUT /api/v1/preferences/show-closed
func (h *PreferenceHandler) SetShowClosed(c *gin.Context) {
	var req showClosedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "Request body must contain show_closed")
		return
	}

	v, err := h.prefs.SetShowClosed(*req.ShowClosed)
	if err != nil {
		_ = c.Error(err)
		errorJSON(c, http.StatusInternalServerError, "Failed to save preference")
		return
	}
	c.JSON(http.StatusOK, gin.H{"show_closed": v})
}

// ToggleShowClosed flips the flag
// POST /api/v1/preferences/show-closed/toggle
func (h *PreferenceHandler) ToggleShowClosed(c *gin.Context) {
	v, err := h.prefs.ToggleShowClosed()
	if err != nil {
		_ = c.Error(err)
		errorJSON(c, http.StatusInternalServerError, "Failed to save preference")
		return
	}
	c.JSON(http.StatusOK, gin.H{"show_closed": v})
}
