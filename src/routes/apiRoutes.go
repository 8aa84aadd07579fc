package routes

import (
	"github.com/enzococca/mekan-admin/src/controllers"
	"github.com/enzococca/mekan-admin/src/middleware"
	"github.com/enzococca/mekan-admin/src/models"
	"github.com/gin-gonic/gin"
)

// APIServices groups the data sources behind the versioned JSON API.
type APIServices struct {
	Catalog    *models.Catalog
	Entities   controllers.EntityStore
	Aggregates controllers.Aggregator
	Media      controllers.MediaProvider
	Exports    controllers.Exporter
	Activity   controllers.ActivityLogger
}

// SetupAPIRoutes registers /api/v1, /api/v2 and /api/v3. Every version shares
// the same handlers and differs only in its entity path segments.
func SetupAPIRoutes(router *gin.Engine, s APIServices) {
	entityController := controllers.NewEntityController(s.Entities, s.Activity)
	auxController := controllers.NewAuxController(s.Catalog, s.Aggregates, s.Media)
	exportController := controllers.NewExportController(s.Catalog, s.Exports, s.Activity)

	for _, version := range models.APIVersions {
		api := router.Group("/api/" + version.Name)
		api.Use(middleware.RequireSession(true), middleware.RequirePermission(models.PermView, true))
		{
			for _, alias := range version.Entities {
				e := s.Catalog.MustLookup(alias.Entity)
				path := "/" + alias.Path
				api.GET(path, entityController.List(e))
				api.GET(path+"/:id", entityController.Get(e))
				api.PATCH(path+"/:id", middleware.RequirePermission(models.PermEdit, true), entityController.Update(e))
			}

			api.GET("/relationships/:unit_id", auxController.Relationships)
			api.GET("/statistics", auxController.Statistics)
			api.GET("/search", auxController.Search)
			api.GET("/spatial/features", auxController.Features)
			api.GET("/media/:entity_type/:entity_id", auxController.Media)
			api.GET("/media-files/:id", auxController.MediaFile)

			export := api.Group("/export")
			export.Use(middleware.RequirePermission(models.PermExport, true))
			{
				export.GET("/:entity/excel", exportController.Excel)
				export.GET("/:entity/:id/pdf", exportController.PDF)
			}
		}
	}
}
