package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/thanhnp/dispenser-tracker/internal/models"
	"github.com/thanhnp/dispenser-tracker/internal/query"
)

// User-facing validation messages
const (
	msgDuplicateAddress = "Address already in your list of dispensers"
	msgInvalidAddress   = "Address is not a valid Bitcoin address"
)

// Querier is the part of the query layer the handlers read from
type Querier interface {
	GetBalance(ctx context.Context, address string) query.Result[int64]
	GetDispensers(ctx context.Context, addresses []string) query.Result[[]models.Dispenser]
}

func errorJSON(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

// showClosedParam reads the optional show_closed query parameter, falling
// back to def when it is absent
func showClosedParam(c *gin.Context, def bool) (bool, bool) {
	raw, ok := c.GetQuery("show_closed")
	if !ok {
		return def, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, "Invalid show_closed parameter")
		return false, false
	}
	return v, true
}
