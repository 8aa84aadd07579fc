package controllers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/enzococca/mekan-admin/src/models"
	"github.com/enzococca/mekan-admin/src/services"
	"github.com/gin-gonic/gin"
)

type Aggregator interface {
	Relationships(ctx context.Context, unitID string) (map[string]int64, error)
	Statistics(ctx context.Context) (map[string]any, error)
	Search(ctx context.Context, q string) ([]services.SearchHit, error)
	Features(ctx context.Context, layers []string, box *services.BBox) (*services.FeatureCollection, error)
}

type MediaProvider interface {
	ForEntity(ctx context.Context, e *models.EntityDef, entityType, entityID string) (*services.MediaList, error)
	Open(ctx context.Context, id int) (*services.MediaFile, error)
}

// AuxController serves relationships, statistics, search, map features and media.
type AuxController struct {
	catalog    *models.Catalog
	aggregates Aggregator
	media      MediaProvider
}

func NewAuxController(catalog *models.Catalog, aggregates Aggregator, media MediaProvider) *AuxController {
	return &AuxController{catalog: catalog, aggregates: aggregates, media: media}
}

func (ac *AuxController) Relationships(c *gin.Context) {
	counts, err := ac.aggregates.Relationships(c.Request.Context(), c.Param("unit_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

func (ac *AuxController) Statistics(c *gin.Context) {
	stats, err := ac.aggregates.Statistics(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (ac *AuxController) Search(c *gin.Context) {
	hits, err := ac.aggregates.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": hits})
}

// Features takes layers=wall,grave (or type=wall) and an optional bounding box.
func (ac *AuxController) Features(c *gin.Context) {
	var layers []string
	raw := c.Query("layers")
	if raw == "" {
		raw = c.Query("type")
	}
	for _, l := range strings.Split(raw, ",") {
		if l = strings.TrimSpace(l); l != "" {
			layers = append(layers, l)
		}
	}

	box, err := services.ParseBBox(c.Request.URL.Query())
	if err != nil {
		respondError(c, err)
		return
	}
	fc, err := ac.aggregates.Features(c.Request.Context(), layers, box)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fc)
}

func (ac *AuxController) Media(c *gin.Context) {
	entityType := c.Param("entity_type")
	e, ok := ac.catalog.Lookup(entityType)
	if !ok {
		respondError(c, fmt.Errorf("%w: %s", services.ErrInvalidEntity, entityType))
		return
	}
	list, err := ac.media.ForEntity(c.Request.Context(), e, entityType, c.Param("entity_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// MediaFile streams a Drive-hosted file or redirects to the stored URL.
func (ac *AuxController) MediaFile(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}
	file, err := ac.media.Open(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if file.RedirectURL != "" {
		c.Redirect(http.StatusFound, file.RedirectURL)
		return
	}
	defer file.Body.Close()

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", contentDisposition("inline", file.Name))
	c.Status(http.StatusOK)
	c.Header("Content-Type", contentType)
	if _, err := io.Copy(c.Writer, file.Body); err != nil {
		_ = c.Error(err)
	}
}
