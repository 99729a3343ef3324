package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thanhnp/dispenser-tracker/internal/api/handlers"
	"github.com/thanhnp/dispenser-tracker/internal/api/middleware"
	"github.com/thanhnp/dispenser-tracker/internal/storage"
	"github.com/thanhnp/dispenser-tracker/internal/view"
)

// Router wraps the Gin router with handlers
type Router struct {
	engine            *gin.Engine
	addressHandler    *handlers.AddressHandler
	dispenserHandler  *handlers.DispenserHandler
	preferenceHandler *handlers.PreferenceHandler
	dashboardHandler  *handlers.DashboardHandler
}

// NewRouter creates a new Router with all handlers
func NewRouter(
	addresses *storage.AddressListStore,
	prefs *storage.PreferenceStore,
	querier handlers.Querier,
	builder *view.Builder,
) *Router {
	gin.SetMode(gin.ReleaseMode)

	r := &Router{
		engine:            gin.New(),
		addressHandler:    handlers.NewAddressHandler(addresses, querier),
		dispenserHandler:  handlers.NewDispenserHandler(querier, prefs, builder),
		preferenceHandler: handlers.NewPreferenceHandler(prefs),
		dashboardHandler:  handlers.NewDashboardHandler(addresses, prefs, builder),
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

// setupMiddleware configures middleware
func (r *Router) setupMiddleware() {
	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.Logger())
	r.engine.Use(middleware.CORS())
}

// setupRoutes configures API routes
func (r *Router) setupRoutes() {
	// Health check
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.engine.Group("/api/v1")
	{
		// Address list routes
		addresses := v1.Group("/addresses")
		{
			addresses.GET("", r.addressHandler.List)
			addresses.POST("", r.addressHandler.Add)
			addresses.DELETE("/:address", r.addressHandler.Remove)
			addresses.GET("/:address/balance", middleware.ValidateAddress(), r.addressHandler.Balance)
			addresses.GET("/:address/dispensers", middleware.ValidateAddress(), r.dispenserHandler.GetByAddress)
		}

		v1.GET("/dispensers", r.dispenserHandler.List)

		// Preference routes
		prefs := v1.Group("/preferences")
		{
			prefs.GET("/show-closed", r.preferenceHandler.GetShowClosed)
			prefs.PUT("/show-closed", r.preferenceHandler.SetShowClosed)
			prefs.POST("/show-closed/toggle", r.preferenceHandler.ToggleShowClosed)
		}

		v1.GET("/dashboard", r.dashboardHandler.Get)
	}
}

// Engine returns the underlying Gin engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}
