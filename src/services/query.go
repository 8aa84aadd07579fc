package services

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/enzococca/mekan-admin/src/config"
	"github.com/enzococca/mekan-admin/src/models"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// maxPage keeps (page-1)*per_page inside int for the largest page size.
const maxPage = math.MaxInt32 / config.MaxPerPage

// ListParams are the parsed paging, search and filter parameters of a list request.
type ListParams struct {
	Page    int `validate:"min=1"`
	PerPage int `validate:"min=1,max=500"`
	Search  string
	// Filters holds exact-match values keyed by filter param; int filters are already checked.
	Filters map[string]any
	BBox    *BBox
}

// Offset returns the row offset of the requested page.
func (p ListParams) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// ParseListParams reads page, per_page, search and the entity's filters from q.
// Params the entity does not declare are ignored.
func ParseListParams(e *models.EntityDef, q url.Values) (ListParams, error) {
	p := ListParams{
		Page:    1,
		PerPage: config.DefaultPerPage,
		Search:  strings.TrimSpace(q.Get("search")),
		Filters: map[string]any{},
	}

	var err error
	if v := q.Get("page"); v != "" {
		if p.Page, err = strconv.Atoi(v); err != nil {
			return p, fmt.Errorf("%w: page must be an integer", ErrInvalidParam)
		}
	}
	if v := q.Get("per_page"); v != "" {
		if p.PerPage, err = strconv.Atoi(v); err != nil {
			return p, fmt.Errorf("%w: per_page must be an integer", ErrInvalidParam)
		}
	}
	if p.PerPage > config.MaxPerPage {
		p.PerPage = config.MaxPerPage
	}
	if err := validate.Struct(p); err != nil {
		return p, fmt.Errorf("%w: page and per_page must be at least 1", ErrInvalidParam)
	}
	if p.Page > maxPage {
		return p, fmt.Errorf("%w: page must be at most %d", ErrInvalidParam, maxPage)
	}

	for _, f := range e.Filters {
		raw := strings.TrimSpace(q.Get(f.Param))
		if raw == "" {
			continue
		}
		if f.Kind == models.FilterInt {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return p, fmt.Errorf("%w: %s must be an integer", ErrInvalidParam, f.Param)
			}
			p.Filters[f.Param] = n
			continue
		}
		p.Filters[f.Param] = raw
	}

	if p.BBox, err = ParseBBox(q); err != nil {
		return p, err
	}
	return p, nil
}

// TotalPages is ceil(total/perPage).
func TotalPages(total int64, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	return int((total + int64(perPage) - 1) / int64(perPage))
}

// escapeLike makes s a literal for ILIKE with the default backslash escape.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Query is a SQL statement with its positional arguments.
type Query struct {
	SQL  string
	Args []any
}

// queryBuilder renders the catalog SQL for one entity.
type queryBuilder struct {
	entity     *models.EntityDef
	sourceSRID int
	outputSRID int
}

func newQueryBuilder(e *models.EntityDef, schema config.SchemaConfig) queryBuilder {
	return queryBuilder{entity: e, sourceSRID: schema.SourceSRID, outputSRID: schema.OutputSRID}
}

func (b queryBuilder) selectList(withGeometry bool) string {
	cols := strings.Join(b.entity.Columns, ", ")
	if !withGeometry {
		return cols
	}
	return fmt.Sprintf("%s, ST_AsGeoJSON(ST_Transform(%s, %d)) AS geometry",
		cols, b.entity.GeometryColumn, b.outputSRID)
}

// where renders the WHERE clause shared by the count and data queries.
func (b queryBuilder) where(p ListParams) (string, []any) {
	var conds []string
	var args []any

	if p.Search != "" {
		pattern := "%" + escapeLike(p.Search) + "%"
		var ors []string
		for _, col := range b.entity.SearchColumns {
			ors = append(ors, col+"::text ILIKE ?")
			args = append(args, pattern)
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}

	// Declaration order keeps the SQL stable for a given set of filters.
	for _, f := range b.entity.Filters {
		v, ok := p.Filters[f.Param]
		if !ok {
			continue
		}
		conds = append(conds, f.Column+" = ?")
		args = append(args, v)
	}

	if p.BBox != nil {
		conds = append(conds, fmt.Sprintf("ST_Intersects(%s, ST_MakeEnvelope(?, ?, ?, ?, %d))",
			b.entity.GeometryColumn, b.sourceSRID))
		args = append(args, p.BBox.West, p.BBox.South, p.BBox.East, p.BBox.North)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (b queryBuilder) base(p ListParams, withGeometry bool) (string, []any) {
	where, args := b.where(p)
	return "SELECT " + b.selectList(withGeometry) + " FROM " + b.entity.From() + where, args
}

// Count counts the rows a list request matches.
func (b queryBuilder) Count(p ListParams) Query {
	sql, args := b.base(p, false)
	return Query{SQL: "SELECT COUNT(*) FROM (" + sql + ") AS t", Args: args}
}

// Page selects one page in the entity's fixed order.
func (b queryBuilder) Page(p ListParams) Query {
	sql, args := b.base(p, true)
	sql += " ORDER BY " + b.entity.OrderBy + " LIMIT ? OFFSET ?"
	return Query{SQL: sql, Args: append(args, p.PerPage, p.Offset())}
}

// All selects every matching row without geometry, for exports.
func (b queryBuilder) All(p ListParams) Query {
	sql, args := b.base(p, false)
	return Query{SQL: sql + " ORDER BY " + b.entity.OrderBy, Args: args}
}

// ByID selects one record by its public identifier.
func (b queryBuilder) ByID(id string, withGeometry bool) Query {
	return Query{
		SQL: "SELECT " + b.selectList(withGeometry) + " FROM " + b.entity.From() +
			" WHERE " + b.entity.IDColumn + "::text = ? LIMIT 1",
		Args: []any{id},
	}
}
