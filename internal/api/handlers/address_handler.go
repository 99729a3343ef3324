package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thanhnp/dispenser-tracker/internal/storage"
	"github.com/thanhnp/dispenser-tracker/internal/view"
)

// AddressHandler handles the tracked address list
type AddressHandler struct {
	addresses *storage.AddressListStore
	querier   Querier
}

// NewAddressHandler creates a new AddressHandler
func NewAddressHandler(addresses *storage.AddressListStore, querier Querier) *AddressHandler {
	return &AddressHandler{
		addresses: addresses,
		querier:   querier,
	}
}

type addAddressRequest struct {
	Address string `json:"address" binding:"required"`
}

// List returns the tracked addresses in insertion order
// GET /api/v1/addresses
func (h *AddressHandler) List(c *gin.Context) {
	list := h.addresses.Get()
	c.JSON(http.StatusOK, gin.H{
		"addresses": list,
		"count":     len(list),
	})
}

// Add starts tracking an address
// POST /api/v1/addresses
func (h *AddressHandler) Add(c *gin.Context) {
	var req addAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "Request body must contain an address")
		return
	}

	list, err := h.addresses.Add(req.Address)
	switch {
	case errors.Is(err, storage.ErrDuplicateAddress):
		errorJSON(c, http.StatusConflict, msgDuplicateAddress)
		return
	case errors.Is(err, storage.ErrInvalidAddress):
		errorJSON(c, http.StatusBadRequest, msgInvalidAddress)
		return
	case err != nil:
		_ = c.Error(err)
		errorJSON(c, http.StatusInternalServerError, "Failed to save address list")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"addresses": list,
		"count":     len(list),
	})
}

// Remove stops tracking an address. Removing an untracked address succeeds.
// DELETE /api/v1/addresses/:address
func (h *AddressHandler) Remove(c *gin.Context) {
	list, err := h.addresses.Remove(c.Param("address"))
	if err != nil {
		_ = c.Error(err)
		errorJSON(c, http.StatusInternalServerError, "Failed to save address list")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"addresses": list,
		"count":     len(list),
	})
}

// Balance returns the confirmed balance of an address and whether it is
// tracked
// GET /api/v1/addresses/:address/balance
func (h *AddressHandler) Balance(c *gin.Context) {
	address := c.Param("address")

	res := h.querier.GetBalance(c.Request.Context(), address)
	if !res.HasData() {
		c.JSON(http.StatusBadGateway, gin.H{
			"address": address,
			"tracked": h.addresses.Contains(address),
			"state":   res.Status,
			"error":   "Unable to fetch balance",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":     address,
		"tracked":     h.addresses.Contains(address),
		"balance":     res.Value,
		"balance_btc": view.FormatBTC(res.Value),
		"state":       res.Status,
	})
}
