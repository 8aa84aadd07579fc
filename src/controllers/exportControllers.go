package controllers

import (
	"context"
	"fmt"
	"mime"
	"net/http"

	"github.com/enzococca/mekan-admin/src/metrics"
	"github.com/enzococca/mekan-admin/src/middleware"
	"github.com/enzococca/mekan-admin/src/models"
	"github.com/enzococca/mekan-admin/src/services"
	"github.com/gin-gonic/gin"
)

type Exporter interface {
	Excel(ctx context.Context, e *models.EntityDef, name string, p services.ListParams) (*services.ExportFile, error)
	PDF(ctx context.Context, e *models.EntityDef, name, id string) (*services.ExportFile, error)
}

type ExportController struct {
	catalog  *models.Catalog
	exporter Exporter
	activity ActivityLogger
}

func NewExportController(catalog *models.Catalog, exporter Exporter, activity ActivityLogger) *ExportController {
	return &ExportController{catalog: catalog, exporter: exporter, activity: activity}
}

func (ec *ExportController) entity(c *gin.Context) (*models.EntityDef, bool) {
	name := c.Param("entity")
	e, ok := ec.catalog.Lookup(name)
	if !ok {
		respondError(c, fmt.Errorf("%w: %s", services.ErrInvalidEntity, name))
	}
	return e, ok
}

// Excel exports the filtered list without pagination.
func (ec *ExportController) Excel(c *gin.Context) {
	e, ok := ec.entity(c)
	if !ok {
		return
	}
	p, err := services.ParseListParams(e, c.Request.URL.Query())
	if err != nil {
		respondError(c, err)
		return
	}
	file, err := ec.exporter.Excel(c.Request.Context(), e, c.Param("entity"), p)
	if err != nil {
		respondError(c, err)
		return
	}
	ec.send(c, e, "xlsx", "", file)
}

func (ec *ExportController) PDF(c *gin.Context) {
	e, ok := ec.entity(c)
	if !ok {
		return
	}
	id := c.Param("id")
	file, err := ec.exporter.PDF(c.Request.Context(), e, c.Param("entity"), id)
	if err != nil {
		respondError(c, err)
		return
	}
	ec.send(c, e, "pdf", id, file)
}

func (ec *ExportController) send(c *gin.Context, e *models.EntityDef, format, recordID string, file *services.ExportFile) {
	metrics.ExportsTotal.WithLabelValues(e.Name, format).Inc()
	if user := middleware.CurrentUser(c); user != nil {
		_ = ec.activity.LogActivity(c.Request.Context(), user.UserID, "export_"+format, e.Table, recordID, nil)
	}
	c.Header("Content-Disposition", contentDisposition("attachment", file.Name))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

// contentDisposition encodes non-ASCII file names as RFC 2231 parameters.
func contentDisposition(kind, name string) string {
	if v := mime.FormatMediaType(kind, map[string]string{"filename": name}); v != "" {
		return v
	}
	return kind
}
