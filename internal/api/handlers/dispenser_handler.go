package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thanhnp/dispenser-tracker/internal/query"
	"github.com/thanhnp/dispenser-tracker/internal/storage"
	"github.com/thanhnp/dispenser-tracker/internal/view"
	"github.com/thanhnp/dispenser-tracker/pkg/validation"
)

// DispenserHandler handles dispenser lookups
type DispenserHandler struct {
	querier Querier
	prefs   *storage.PreferenceStore
	builder *view.Builder
}

// NewDispenserHandler creates a new DispenserHandler
func NewDispenserHandler(querier Querier, prefs *storage.PreferenceStore, builder *view.Builder) *DispenserHandler {
	return &DispenserHandler{
		querier: querier,
		prefs:   prefs,
		builder: builder,
	}
}

// GetByAddress returns the visible dispensers of one address
// GET /api/v1/addresses/:address/dispensers
func (h *DispenserHandler) GetByAddress(c *gin.Context) {
	h.respond(c, []string{c.Param("address")})
}

// List returns the visible dispensers of several addresses, fetched in one
// batch and ordered by satoshi rate
// GET /api/v1/dispensers?address=..&address=..
func (h *DispenserHandler) List(c *gin.Context) {
	addresses := c.QueryArray("address")
	if len(addresses) == 0 {
		errorJSON(c, http.StatusBadRequest, "At least one address parameter is required")
		return
	}
	for _, a := range addresses {
		if err := validation.ValidateAddress(a); err != nil {
			errorJSON(c, http.StatusBadRequest, msgInvalidAddress)
			return
		}
	}
	h.respond(c, addresses)
}

func (h *DispenserHandler) respond(c *gin.Context, addresses []string) {
	showClosed, ok := showClosedParam(c, h.prefs.ShowClosed())
	if !ok {
		return
	}

	res := h.querier.GetDispensers(c.Request.Context(), addresses)
	if !res.HasData() {
		c.JSON(http.StatusBadGateway, gin.H{
			"addresses":  addresses,
			"state":      res.Status,
			"dispensers": []any{},
			"message":    view.NoDispensersMessage,
			"error":      "Unable to fetch dispensers",
		})
		return
	}

	dispensers := h.builder.Decorate(query.FilterVisible(res.Value, showClosed))
	body := gin.H{
		"addresses":   addresses,
		"show_closed": showClosed,
		"state":       res.Status,
		"dispensers":  dispensers,
	}
	if len(dispensers) == 0 {
		body["message"] = view.NoDispensersMessage
	}
	c.JSON(http.StatusOK, body)
}
