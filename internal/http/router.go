// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"taxidispatch/internal/http/handlers"
	"taxidispatch/internal/http/middleware"
	"taxidispatch/internal/infra"
	"taxidispatch/internal/modules/pricing"
)

type DispatchService interface {
	handlers.DispatchRunner
	handlers.Assigner
}

type RouterDeps struct {
	Pricing  handlers.PricingService
	Jobs     handlers.JobService
	Drivers  handlers.DriverService
	Dispatch DispatchService
	Tenants  handlers.TenantService
	// Verifier nil serves every request as an admin.
	Verifier infra.TokenVerifier
	Log      logrus.FieldLogger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(deps.Log), middleware.Logging(deps.Log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	if deps.Verifier != nil {
		api.Use(middleware.Auth(deps.Verifier))
	} else {
		api.Use(middleware.Anonymous())
	}
	staff := api.Group("", middleware.RequireRole(middleware.RoleDispatcher))

	pricingHandler := handlers.NewPricingHandler(deps.Pricing)
	staff.POST("/pricing/quote", pricingHandler.Quote)

	jobHandler := handlers.NewJobHandler(deps.Jobs, deps.Dispatch, deps.Tenants)
	staff.POST("/jobs", jobHandler.Create)
	staff.GET("/jobs", jobHandler.List)
	api.GET("/jobs/:id", jobHandler.Get)
	api.GET("/jobs/:id/events", jobHandler.Events)
	api.POST("/jobs/:id/status", jobHandler.UpdateStatus)
	staff.POST("/jobs/:id/cancel", jobHandler.Cancel)
	staff.POST("/jobs/:id/assign", jobHandler.Assign)
	staff.POST("/jobs/:id/unassign", jobHandler.Unassign)

	driverHandler := handlers.NewDriverHandler(deps.Drivers)
	staff.POST("/drivers", driverHandler.Register)
	api.GET("/drivers/:id", driverHandler.Get)
	api.PUT("/drivers/:id/location", driverHandler.UpdateLocation)
	api.PUT("/drivers/:id/status", driverHandler.UpdateStatus)

	dispatchHandler := handlers.NewDispatchHandler(deps.Dispatch)
	staff.POST("/dispatch/run", dispatchHandler.Run)

	tenantHandler := handlers.NewTenantHandler(deps.Tenants, deps.Pricing)
	staff.GET("/tenants/:id", tenantHandler.Get)
	staff.PATCH("/tenants/:id", tenantHandler.UpdateSettings)
	staff.PUT("/tenants/:id/tariffs/:vehicle", tenantHandler.UpsertTariff)
	staff.POST("/tenants/:id/fixed-prices", tenantHandler.CreateFixedPrice)
	staff.POST("/tenants/:id/zones", tenantHandler.CreateZone)
	staff.POST("/tenants/:id/zone-prices", tenantHandler.CreateZonePrice)
	staff.POST("/tenants/:id/surcharges", tenantHandler.CreateSurcharge)
	for _, kind := range []pricing.CatalogKind{pricing.KindFixedPrice, pricing.KindZone, pricing.KindZonePrice, pricing.KindSurcharge} {
		staff.DELETE("/tenants/:id/"+string(kind)+"/:itemId", tenantHandler.DeleteCatalogItem(kind))
	}

	return r
}
