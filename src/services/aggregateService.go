package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/enzococca/mekan-admin/src/config"
	"github.com/enzococca/mekan-admin/src/models"
	"github.com/paulmach/orb/geojson"
	"gorm.io/gorm"
)

const (
	minSearchLength = 3
	searchLimit     = 10
)

// SearchHit is one entry of the cross-entity search.
type SearchHit struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
}

// CountByValue is one GROUP BY bucket.
type CountByValue struct {
	Value any   `json:"value"`
	Count int64 `json:"count"`
}

// AggregateService answers the relationship, statistics, search and map queries.
type AggregateService struct {
	db      *gorm.DB
	catalog *models.Catalog
	schema  config.SchemaConfig
}

func NewAggregateService(db *gorm.DB, catalog *models.Catalog, schema config.SchemaConfig) *AggregateService {
	return &AggregateService{db: db, catalog: catalog, schema: schema}
}

// Relationships counts the records attached to a unit, keyed by entity.
// An unknown unit yields zero for every dependent entity.
func (s *AggregateService) Relationships(ctx context.Context, unitID string) (map[string]int64, error) {
	db := s.db.WithContext(ctx)
	unit := s.catalog.MustLookup(models.EntityUnit)

	counts := map[string]int64{}
	for _, e := range s.catalog.All() {
		if e.Name != unit.Name {
			counts[e.Key] = 0
		}
	}

	var key struct {
		Year *int
		Area *string
	}
	res := db.Raw(
		"SELECT mekan_year AS year, mekan_alan AS area FROM "+unit.Table+" WHERE "+unit.IDField+"::text = ? LIMIT 1",
		unitID,
	).Scan(&key)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return counts, nil
	}

	for _, e := range s.catalog.All() {
		var n int64
		switch {
		case e.Parent.UnitColumn != "":
			err := db.Raw("SELECT COUNT(*) FROM "+e.From()+" WHERE "+e.Parent.UnitColumn+"::text = ?", unitID).
				Scan(&n).Error
			if err != nil {
				return nil, err
			}
		case e.Parent.MatchYear != "":
			if key.Year == nil || key.Area == nil {
				break
			}
			err := db.Raw(
				"SELECT COUNT(*) FROM "+e.Table+" WHERE "+e.Parent.MatchYear+" = ? AND "+e.Parent.MatchArea+" = ?",
				*key.Year, *key.Area,
			).Scan(&n).Error
			if err != nil {
				return nil, err
			}
		default:
			continue
		}
		counts[e.Key] = n
	}
	return counts, nil
}

// Statistics runs the fixed battery of aggregate queries. Nothing is cached.
func (s *AggregateService) Statistics(ctx context.Context) (map[string]any, error) {
	db := s.db.WithContext(ctx)
	stats := map[string]any{}

	for _, e := range s.catalog.All() {
		var n int64
		if err := db.Raw("SELECT COUNT(*) FROM " + e.Table).Scan(&n).Error; err != nil {
			return nil, err
		}
		stats["total_"+e.Key] = n
	}

	var media int64
	if err := db.Model(&models.MediaModel{}).Count(&media).Error; err != nil {
		return nil, err
	}
	stats["total_media"] = media

	years := []int{}
	err := db.Raw("SELECT DISTINCT mekan_year FROM strat_unit WHERE mekan_year IS NOT NULL ORDER BY mekan_year DESC").
		Scan(&years).Error
	if err != nil {
		return nil, err
	}
	stats["excavation_years"] = years

	groups := []struct {
		key    string
		entity string
		column string
		order  string
	}{
		{"birim_by_type", models.EntityBuiltUnit, "birin_type", "count DESC"},
		{"finds_by_material", models.EntityFind, "material_type", "count DESC"},
		{"mekan_by_year", models.EntityUnit, "mekan_year", "value DESC"},
	}
	for _, g := range groups {
		e := s.catalog.MustLookup(g.entity)
		buckets := []CountByValue{}
		err := db.Raw(fmt.Sprintf(
			"SELECT %[1]s AS value, COUNT(*) AS count FROM %[2]s WHERE %[1]s IS NOT NULL GROUP BY %[1]s ORDER BY %[3]s",
			g.column, e.Table, g.order,
		)).Scan(&buckets).Error
		if err != nil {
			return nil, err
		}
		stats[g.key] = buckets
	}
	return stats, nil
}

// Search looks for q in every entity's search columns, up to ten hits each.
// Queries shorter than three characters return no hits.
func (s *AggregateService) Search(ctx context.Context, q string) ([]SearchHit, error) {
	q = strings.TrimSpace(q)
	hits := []SearchHit{}
	if utf8.RuneCountInString(q) < minSearchLength {
		return hits, nil
	}

	db := s.db.WithContext(ctx)
	pattern := "%" + escapeLike(q) + "%"
	for _, e := range s.catalog.All() {
		var ors []string
		var args []any
		for _, col := range e.SearchColumns {
			ors = append(ors, col+"::text ILIKE ?")
			args = append(args, pattern)
		}
		sql := fmt.Sprintf(
			"SELECT %s::text AS id, %s::text AS kind, %s::text AS area, %s::text AS year FROM %s WHERE %s ORDER BY %s LIMIT %d",
			e.IDColumn, e.TypeColumn, e.AreaColumn, e.YearColumn, e.From(), strings.Join(ors, " OR "), e.OrderBy, searchLimit,
		)

		var found []struct {
			ID   *string
			Kind *string
			Area *string
			Year *string
		}
		if err := db.Raw(sql, args...).Scan(&found).Error; err != nil {
			return nil, err
		}
		for _, f := range found {
			id := deref(f.ID)
			title := e.Label + " " + id
			if k := deref(f.Kind); k != "" {
				title += " - " + k
			}
			hits = append(hits, SearchHit{
				Type:     e.Name,
				ID:       id,
				Title:    title,
				Subtitle: fmt.Sprintf("Area: %s / Year: %s", deref(f.Area), deref(f.Year)),
			})
		}
	}
	return hits, nil
}

// Features returns the map layers as one FeatureCollection in the output SRID.
// layers names catalog entities; empty means all.
func (s *AggregateService) Features(ctx context.Context, layers []string, box *BBox) (*FeatureCollection, error) {
	entities, err := s.resolveLayers(layers)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	fc := newFeatureCollection()
	for _, e := range entities {
		q := featuresQuery(e, s.schema, box)

		var found []struct {
			ID          *string
			Kind        *string
			Description *string
			Geometry    *string
		}
		if err := db.Raw(q.SQL, q.Args...).Scan(&found).Error; err != nil {
			return nil, err
		}
		for _, f := range found {
			g := decodeGeometry(deref(f.Geometry))
			if g == nil {
				continue
			}
			id := deref(f.ID)
			fc.add(g, geojson.Properties{
				"layer":       e.Name,
				"id":          id,
				"label":       e.Label + " " + id,
				"type":        f.Kind,
				"description": f.Description,
			})
		}
	}
	return fc, nil
}

// featuresQuery selects one layer's map features in public id order.
func featuresQuery(e *models.EntityDef, schema config.SchemaConfig, box *BBox) Query {
	where := e.GeometryColumn + " IS NOT NULL"
	var args []any
	if box != nil {
		where += fmt.Sprintf(" AND ST_Intersects(%s, ST_MakeEnvelope(?, ?, ?, ?, %d))", e.GeometryColumn, schema.SourceSRID)
		args = append(args, box.West, box.South, box.East, box.North)
	}
	sql := fmt.Sprintf(
		"SELECT %s::text AS id, %s::text AS kind, %s.description AS description, "+
			"ST_AsGeoJSON(ST_Transform(%s, %d)) AS geometry FROM %s WHERE %s ORDER BY %s LIMIT %d",
		e.IDColumn, e.TypeColumn, e.Alias, e.GeometryColumn, schema.OutputSRID, e.From(), where, e.IDColumn, schema.SpatialLayerLimit,
	)
	return Query{SQL: sql, Args: args}
}

func (s *AggregateService) resolveLayers(layers []string) ([]*models.EntityDef, error) {
	if len(layers) == 0 {
		return s.catalog.All(), nil
	}
	var out []*models.EntityDef
	seen := map[string]bool{}
	for _, l := range layers {
		if l == "" || l == "all" {
			return s.catalog.All(), nil
		}
		e, ok := s.catalog.Lookup(l)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidEntity, l)
		}
		if !seen[e.Name] {
			seen[e.Name] = true
			out = append(out, e)
		}
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
