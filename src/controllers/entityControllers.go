package controllers

import (
	"context"
	"net/http"

	"github.com/enzococca/mekan-admin/src/logging"
	"github.com/enzococca/mekan-admin/src/middleware"
	"github.com/enzococca/mekan-admin/src/models"
	"github.com/enzococca/mekan-admin/src/services"
	"github.com/gin-gonic/gin"
)

type EntityStore interface {
	List(ctx context.Context, e *models.EntityDef, p services.ListParams) (*services.Page, error)
	Get(ctx context.Context, e *models.EntityDef, id string) (*services.Row, error)
	UpdateDescription(ctx context.Context, e *models.EntityDef, id string, in services.DescriptionUpdate) (*services.Row, error)
}

type ActivityLogger interface {
	LogActivity(ctx context.Context, userID int, action, table, recordID string, details map[string]any) error
}

// EntityController serves list, detail and edit for catalog entities.
// Handlers are bound to one entity each when routes are registered.
type EntityController struct {
	store    EntityStore
	activity ActivityLogger
}

func NewEntityController(store EntityStore, activity ActivityLogger) *EntityController {
	return &EntityController{store: store, activity: activity}
}

func (ec *EntityController) List(e *models.EntityDef) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := services.ParseListParams(e, c.Request.URL.Query())
		if err != nil {
			respondError(c, err)
			return
		}
		page, err := ec.store.List(c.Request.Context(), e, p)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

func (ec *EntityController) Get(e *models.EntityDef) gin.HandlerFunc {
	return func(c *gin.Context) {
		row, err := ec.store.Get(c.Request.Context(), e, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, row)
	}
}

// Update edits description and description_tr of one record.
func (ec *EntityController) Update(e *models.EntityDef) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in services.DescriptionUpdate
		if err := c.ShouldBind(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		id := c.Param("id")
		row, err := ec.store.UpdateDescription(c.Request.Context(), e, id, in)
		if err != nil {
			respondError(c, err)
			return
		}

		if user := middleware.CurrentUser(c); user != nil {
			if err := ec.activity.LogActivity(c.Request.Context(), user.UserID, "edit_"+e.Name, e.Table, id, nil); err != nil {
				logging.Warn().Err(err).Str("entity", e.Name).Str("id", id).Msg("activity log write failed")
			}
		}
		c.JSON(http.StatusOK, row)
	}
}
