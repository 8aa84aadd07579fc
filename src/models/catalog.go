package models

import (
	"sort"
	"strings"
)

type FilterKind int

const (
	FilterText FilterKind = iota
	FilterInt
)

// Filter is an exact-match query parameter bound to one column.
type Filter struct {
	Param  string
	Column string
	Kind   FilterKind
}

// ParentLink describes how an entity row points at its stratigraphic unit.
// Either UnitColumn is set (joined unit) or the year/area pair is matched.
type ParentLink struct {
	UnitColumn string
	MatchYear  string
	MatchArea  string
}

// EntityDef is the single mapping from an entity type to its table and columns.
// Every API version is generated from these definitions.
type EntityDef struct {
	Name  string
	Label string
	// Key names the entity in aggregate responses (birim, walls, ...).
	Key   string
	Table string
	Alias string
	Joins []string
	// Columns are select expressions, geometry excluded.
	Columns        []string
	GeometryColumn string
	// IDColumn is the qualified public identifier, IDField its output name.
	IDColumn      string
	IDField       string
	SearchColumns []string
	Filters       []Filter
	OrderBy       string
	MediaTags     []string
	TypeColumn    string
	YearColumn    string
	AreaColumn    string
	Parent        ParentLink
	Aliases       []string
}

// From returns the FROM clause including joins.
func (e *EntityDef) From() string {
	var b strings.Builder
	b.WriteString(e.Table)
	b.WriteString(" ")
	b.WriteString(e.Alias)
	for _, j := range e.Joins {
		b.WriteString(" ")
		b.WriteString(j)
	}
	return b.String()
}

// ColumnNames returns the output name of each select expression, in order.
func (e *EntityDef) ColumnNames() []string {
	names := make([]string, 0, len(e.Columns))
	for _, col := range e.Columns {
		if i := strings.LastIndex(strings.ToUpper(col), " AS "); i >= 0 {
			names = append(names, strings.TrimSpace(col[i+4:]))
			continue
		}
		names = append(names, col[strings.LastIndex(col, ".")+1:])
	}
	return names
}

func (e *EntityDef) Filter(param string) (Filter, bool) {
	for _, f := range e.Filters {
		if f.Param == param {
			return f, true
		}
	}
	return Filter{}, false
}

const (
	EntityUnit      = "unit"
	EntityBuiltUnit = "built_unit"
	EntityWall      = "wall"
	EntityGrave     = "grave"
	EntityFind      = "find"
)

func unitDef() *EntityDef {
	return &EntityDef{
		Name:  EntityUnit,
		Key:   "mekan",
		Label: "MEKAN",
		Table: "strat_unit",
		Alias: "u",
		Columns: []string{
			"u.su_uuid::text AS su_uuid", "u.mekan_no", "u.mekan_year", "u.mekan_alan", "u.mekan_acma",
			"u.mekan_locus", "u.mekan_level", "u.mekan_kod", "u.us_number", "u.description",
			"u.description_tr", "u.koordinat_x", "u.koordinat_y", "u.koordinat_z", "u.created_at",
		},
		GeometryColumn: "u.geometry",
		IDColumn:       "u.mekan_no",
		IDField:        "mekan_no",
		SearchColumns:  []string{"u.mekan_no", "u.description", "u.mekan_alan"},
		Filters: []Filter{
			{Param: "year", Column: "u.mekan_year", Kind: FilterInt},
			{Param: "area", Column: "u.mekan_alan"},
			{Param: "sector", Column: "u.mekan_acma"},
		},
		OrderBy:    "u.mekan_year DESC NULLS LAST, u.mekan_no NULLS LAST",
		MediaTags:  []string{"mekan"},
		TypeColumn: "u.mekan_kod",
		YearColumn: "u.mekan_year",
		AreaColumn: "u.mekan_alan",
		Aliases:    []string{"mekan", "stratigraphic_units", "strat_units", "units"},
	}
}

func builtUnitDef() *EntityDef {
	return &EntityDef{
		Name:  EntityBuiltUnit,
		Key:   "birim",
		Label: "Birim",
		Table: "mekan_birin",
		Alias: "b",
		Joins: []string{"LEFT JOIN strat_unit s ON b.su_uuid = s.su_uuid"},
		Columns: []string{
			"b.birin_uuid::text AS birin_uuid", "b.su_uuid::text AS su_uuid", "b.birin_no", "b.birin_type",
			"b.description", "b.description_tr", "b.koordinat_x", "b.koordinat_y", "b.koordinat_z",
			"b.dimensions", "b.preservation_state", "b.excavation_date", "b.excavated_by", "b.created_at",
			"s.mekan_no", "s.mekan_year", "s.mekan_alan", "s.mekan_acma",
		},
		GeometryColumn: "b.geom",
		IDColumn:       "b.birin_no",
		IDField:        "birin_no",
		SearchColumns:  []string{"b.birin_no", "b.description", "b.birin_type"},
		Filters: []Filter{
			{Param: "year", Column: "s.mekan_year", Kind: FilterInt},
			{Param: "area", Column: "s.mekan_alan"},
			{Param: "type", Column: "b.birin_type"},
		},
		OrderBy:    "b.created_at DESC NULLS LAST",
		MediaTags:  []string{"birim", "birin"},
		TypeColumn: "b.birin_type",
		YearColumn: "s.mekan_year",
		AreaColumn: "s.mekan_alan",
		Parent:     ParentLink{UnitColumn: "s.mekan_no"},
		Aliases:    []string{"birim", "birin", "mekan_units", "built_units"},
	}
}

func wallDef() *EntityDef {
	return &EntityDef{
		Name:  EntityWall,
		Key:   "walls",
		Label: "Wall",
		Table: "mekan_wall",
		Alias: "w",
		// Walls carry no unit key; the unit is the first one sharing year and area.
		Joins: []string{
			"LEFT JOIN LATERAL (SELECT su.mekan_no FROM strat_unit su " +
				"WHERE su.mekan_year = w.wall_year AND su.mekan_alan = w.wall_alan " +
				"ORDER BY su.mekan_no LIMIT 1) p ON true",
		},
		Columns: []string{
			"w.wall_uuid::text AS wall_uuid", "w.wall_no", "w.wall_year", "w.wall_alan", "w.wall_type",
			"w.material", "w.length", "w.width", "w.height", "w.preservation_state", "w.description",
			"w.description_tr", "w.created_at", "p.mekan_no",
		},
		GeometryColumn: "w.geometry",
		IDColumn:       "w.wall_no",
		IDField:        "wall_no",
		SearchColumns:  []string{"w.wall_no", "w.description", "w.wall_type"},
		Filters: []Filter{
			{Param: "year", Column: "w.wall_year", Kind: FilterInt},
			{Param: "area", Column: "w.wall_alan"},
			{Param: "type", Column: "w.wall_type"},
			{Param: "material", Column: "w.material"},
		},
		OrderBy:    "w.wall_year DESC NULLS LAST, w.wall_no",
		MediaTags:  []string{"wall"},
		TypeColumn: "w.wall_type",
		YearColumn: "w.wall_year",
		AreaColumn: "w.wall_alan",
		Parent:     ParentLink{MatchYear: "wall_year", MatchArea: "wall_alan"},
		Aliases:    []string{"walls"},
	}
}

func graveDef() *EntityDef {
	return &EntityDef{
		Name:  EntityGrave,
		Key:   "graves",
		Label: "Grave",
		Table: "mekan_grave",
		Alias: "g",
		Joins: []string{"LEFT JOIN strat_unit s ON g.su_uuid = s.su_uuid"},
		Columns: []string{
			"g.grave_uuid::text AS grave_uuid", "g.su_uuid::text AS su_uuid", "g.grave_no", "g.grave_year",
			"g.grave_alan", "g.grave_type", "g.orientation", "g.burial_position", "g.age_group", "g.sex",
			"g.preservation_state", "g.description", "g.description_tr", "g.created_at", "s.mekan_no",
		},
		GeometryColumn: "g.geometry",
		IDColumn:       "g.grave_no",
		IDField:        "grave_no",
		SearchColumns:  []string{"g.grave_no", "g.description", "g.grave_type"},
		Filters: []Filter{
			{Param: "year", Column: "g.grave_year", Kind: FilterInt},
			{Param: "area", Column: "g.grave_alan"},
			{Param: "type", Column: "g.grave_type"},
		},
		OrderBy:    "g.grave_year DESC NULLS LAST, g.grave_no DESC",
		MediaTags:  []string{"grave"},
		TypeColumn: "g.grave_type",
		YearColumn: "g.grave_year",
		AreaColumn: "g.grave_alan",
		Parent:     ParentLink{MatchYear: "grave_year", MatchArea: "grave_alan"},
		Aliases:    []string{"graves"},
	}
}

// findDef builds the finds definition for either the mekan_buluntu table or
// the older finds table. Both share the column layout apart from the key.
func findDef(table string) *EntityDef {
	idField := "buluntu_no"
	if table == "finds" {
		idField = "find_number"
	}
	return &EntityDef{
		Name:  EntityFind,
		Key:   "finds",
		Label: "Find",
		Table: table,
		Alias: "f",
		Joins: []string{"LEFT JOIN strat_unit s ON f.su_uuid = s.su_uuid"},
		Columns: []string{
			"f." + idField, "f.su_uuid::text AS su_uuid", "f.material_type", "f.category", "f.quantity",
			"f.weight", "f.length", "f.width", "f.height", "f.description", "f.description_tr",
			"f.find_date", "f.created_at", "s.mekan_no", "s.mekan_year", "s.mekan_alan",
		},
		GeometryColumn: "f.geometry",
		IDColumn:       "f." + idField,
		IDField:        idField,
		SearchColumns:  []string{"f." + idField, "f.description", "f.material_type"},
		Filters: []Filter{
			{Param: "year", Column: "s.mekan_year", Kind: FilterInt},
			{Param: "material", Column: "f.material_type"},
			{Param: "category", Column: "f.category"},
		},
		OrderBy:    "f.created_at DESC NULLS LAST",
		MediaTags:  []string{"find", "buluntu"},
		TypeColumn: "f.material_type",
		YearColumn: "s.mekan_year",
		AreaColumn: "s.mekan_alan",
		Parent:     ParentLink{UnitColumn: "s.mekan_no"},
		Aliases:    []string{"finds", "buluntu"},
	}
}

// Catalog indexes entity definitions by canonical name and alias.
type Catalog struct {
	entities []*EntityDef
	byName   map[string]*EntityDef
}

// NewCatalog builds the catalog; findsTable is the resolved finds table name.
func NewCatalog(findsTable string) *Catalog {
	c := &Catalog{byName: map[string]*EntityDef{}}
	for _, e := range []*EntityDef{unitDef(), builtUnitDef(), wallDef(), graveDef(), findDef(findsTable)} {
		c.entities = append(c.entities, e)
		c.byName[e.Name] = e
		for _, a := range e.Aliases {
			c.byName[a] = e
		}
		for _, t := range e.MediaTags {
			c.byName[t] = e
		}
	}
	return c
}

// Lookup resolves a canonical name, route alias or media tag.
func (c *Catalog) Lookup(name string) (*EntityDef, bool) {
	e, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	return e, ok
}

func (c *Catalog) MustLookup(name string) *EntityDef {
	e, ok := c.Lookup(name)
	if !ok {
		panic("unknown entity " + name)
	}
	return e
}

func (c *Catalog) All() []*EntityDef {
	return c.entities
}

// Names lists every accepted entity path segment, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.byName))
	for n := range c.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RouteAlias binds a URL segment of an API version to a canonical entity.
type RouteAlias struct {
	Path   string
	Entity string
}

type APIVersion struct {
	Name     string
	Entities []RouteAlias
}

// APIVersions lists the route sets kept for existing clients.
var APIVersions = []APIVersion{
	{Name: "v1", Entities: []RouteAlias{
		{Path: "stratigraphic_units", Entity: EntityUnit},
		{Path: "mekan_units", Entity: EntityBuiltUnit},
		{Path: "finds", Entity: EntityFind},
	}},
	{Name: "v2", Entities: []RouteAlias{
		{Path: "birin", Entity: EntityBuiltUnit},
		{Path: "walls", Entity: EntityWall},
		{Path: "graves", Entity: EntityGrave},
		{Path: "finds", Entity: EntityFind},
	}},
	{Name: "v3", Entities: []RouteAlias{
		{Path: "mekan", Entity: EntityUnit},
		{Path: "birim", Entity: EntityBuiltUnit},
		{Path: "walls", Entity: EntityWall},
		{Path: "graves", Entity: EntityGrave},
		{Path: "finds", Entity: EntityFind},
	}},
}
