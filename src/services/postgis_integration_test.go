//go:build integration

package services

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os/exec"
	"testing"
	"time"

	"github.com/enzococca/mekan-admin/src/config"
	"github.com/enzococca/mekan-admin/src/db"
	"github.com/enzococca/mekan-admin/src/models"
	"github.com/enzococca/mekan-admin/src/seed"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const postgisImage = "postgis/postgis:16-3.4"

var surveySchema = []string{
	`CREATE EXTENSION IF NOT EXISTS postgis`,
	`CREATE TABLE strat_unit (
		su_uuid uuid PRIMARY KEY DEFAULT gen_random_uuid(),
		mekan_no integer, mekan_year integer, mekan_alan text, mekan_acma text,
		mekan_locus text, mekan_level text, mekan_kod text, us_number integer,
		description text, description_tr text,
		koordinat_x double precision, koordinat_y double precision, koordinat_z double precision,
		created_at timestamptz DEFAULT now(), geometry geometry(Polygon, 4326))`,
	`CREATE TABLE mekan_birin (
		birin_uuid uuid PRIMARY KEY DEFAULT gen_random_uuid(), su_uuid uuid,
		birin_no text, birin_type text, description text, description_tr text,
		koordinat_x double precision, koordinat_y double precision, koordinat_z double precision,
		dimensions text, preservation_state text, excavation_date date, excavated_by text,
		created_at timestamptz DEFAULT now(), geom geometry(Point, 4326))`,
	`CREATE TABLE mekan_wall (
		wall_uuid uuid PRIMARY KEY DEFAULT gen_random_uuid(),
		wall_no text, wall_year integer, wall_alan text, wall_type text, material text,
		length double precision, width double precision, height double precision,
		preservation_state text, description text, description_tr text,
		created_at timestamptz DEFAULT now(), geometry geometry(LineString, 4326))`,
	`CREATE TABLE mekan_grave (
		grave_uuid uuid PRIMARY KEY DEFAULT gen_random_uuid(), su_uuid uuid,
		grave_no text, grave_year integer, grave_alan text, grave_type text, orientation text,
		burial_position text, age_group text, sex text, preservation_state text,
		description text, description_tr text,
		created_at timestamptz DEFAULT now(), geometry geometry(Point, 4326))`,
	`CREATE TABLE mekan_buluntu (
		buluntu_no text PRIMARY KEY, su_uuid uuid, material_type text, category text,
		quantity integer, weight double precision,
		length double precision, width double precision, height double precision,
		description text, description_tr text, find_date date,
		created_at timestamptz DEFAULT now(), geometry geometry(Point, 4326))`,
}

var surveyRows = []string{
	`INSERT INTO strat_unit (su_uuid, mekan_no, mekan_year, mekan_alan, mekan_kod, description, geometry) VALUES
		('11111111-1111-1111-1111-111111111111', 1, 2019, 'A', 'room', 'Hearth area 100% burnt',
		 ST_GeomFromText('POLYGON((30 40, 30.001 40, 30.001 40.001, 30 40.001, 30 40))', 4326)),
		('22222222-2222-2222-2222-222222222222', 2, 2020, 'B', 'courtyard', 'Courtyard fill', NULL)`,
	`INSERT INTO mekan_birin (su_uuid, birin_no, birin_type, description, created_at, geom) VALUES
		('11111111-1111-1111-1111-111111111111', 'B-1', 'room', 'North room', now() - interval '1 day',
		 ST_SetSRID(ST_MakePoint(30.0005, 40.0005), 4326)),
		('11111111-1111-1111-1111-111111111111', 'B-2', 'corridor', 'Passage', now(),
		 ST_SetSRID(ST_MakePoint(31, 41), 4326))`,
	`INSERT INTO mekan_wall (wall_no, wall_year, wall_alan, wall_type, material, description, geometry) VALUES
		('W-1', 2019, 'A', 'foundation', 'limestone', 'Rubble wall',
		 ST_GeomFromText('LINESTRING(30 40, 30.001 40)', 4326)),
		('W-2', 2020, 'B', 'partition', 'mudbrick', 'Mudbrick wall', NULL)`,
	`INSERT INTO mekan_grave (su_uuid, grave_no, grave_year, grave_alan, grave_type, description, geometry) VALUES
		('11111111-1111-1111-1111-111111111111', 'G-1', 2019, 'A', 'cist', 'Cist grave',
		 ST_SetSRID(ST_MakePoint(30.0002, 40.0002), 4326))`,
	`INSERT INTO mekan_buluntu (buluntu_no, su_uuid, material_type, category, description, created_at) VALUES
		('F-1', '11111111-1111-1111-1111-111111111111', 'ceramic', 'sherd', 'Rim sherd', now() - interval '2 days'),
		('F-2', '22222222-2222-2222-2222-222222222222', 'bone', 'animal', 'Sheep bone', now() - interval '1 day'),
		('F-3', '11111111-1111-1111-1111-111111111111', 'ceramic', 'sherd', 'Base sherd', now())`,
	`INSERT INTO media (entity_type, entity_id, file_name, file_path, file_type, created_at) VALUES
		('birim', 'B-1', 'b1.jpg', 'photos/b1.jpg', 'image/jpeg', now())`,
}

func dockerAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, "docker", "info").Run() == nil
}

// startPostGIS runs a PostGIS container with the survey tables and fixture rows.
func startPostGIS(t *testing.T) *gorm.DB {
	t.Helper()
	if !dockerAvailable() {
		t.Skip("Skipping test: Docker not available")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        postgisImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "mekan",
				"POSTGRES_PASSWORD": "mekan",
				"POSTGRES_DB":       "mekan",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	conn, err := db.Connect(config.DatabaseConfig{
		DSN:          fmt.Sprintf("host=%s port=%s user=mekan password=mekan dbname=mekan sslmode=disable", host, port.Port()),
		Host:         host,
		MaxOpenConns: 4,
		MaxIdleConns: 2,
	})
	require.NoError(t, err)

	for _, stmt := range surveySchema {
		require.NoError(t, conn.Exec(stmt).Error, stmt)
	}
	require.NoError(t, conn.AutoMigrate(&models.MediaModel{}))
	require.NoError(t, seed.Migrate(conn))
	for _, stmt := range surveyRows {
		require.NoError(t, conn.Exec(stmt).Error, stmt)
	}
	return conn
}

func integrationSchema() config.SchemaConfig {
	return config.SchemaConfig{
		FindsTable:        config.FindsTableBuluntu,
		SourceSRID:        4326,
		OutputSRID:        4326,
		SpatialLayerLimit: 500,
	}
}

func TestPostGISSurveyQueries(t *testing.T) {
	conn := startPostGIS(t)
	ctx := context.Background()

	table, err := db.ResolveFindsTable(ctx, conn, config.FindsTableAuto)
	require.NoError(t, err)
	require.Equal(t, config.FindsTableBuluntu, table)

	catalog := models.NewCatalog(table)
	schema := integrationSchema()
	entities := NewEntityService(conn, schema)
	aggregates := NewAggregateService(conn, catalog, schema)
	unit := catalog.MustLookup(models.EntityUnit)
	built := catalog.MustLookup(models.EntityBuiltUnit)
	wall := catalog.MustLookup(models.EntityWall)
	find := catalog.MustLookup(models.EntityFind)

	t.Run("list orders and decodes geometry", func(t *testing.T) {
		page, err := entities.List(ctx, unit, ListParams{Page: 1, PerPage: 50, Filters: map[string]any{}})
		require.NoError(t, err)
		assert.EqualValues(t, 2, page.Total)
		assert.Equal(t, 1, page.TotalPages)
		require.Len(t, page.Data, 2)

		assert.Equal(t, "2", page.Data[0].String("mekan_no"))
		g, _ := page.Data[0].Get("geometry")
		assert.Nil(t, g)

		g, _ = page.Data[1].Get("geometry")
		require.NotNil(t, g)
		assert.Equal(t, "Polygon", g.(*geojson.Geometry).Type)
		assert.Equal(t, "11111111-1111-1111-1111-111111111111", page.Data[1].String("su_uuid"))
	})

	t.Run("paging", func(t *testing.T) {
		page, err := entities.List(ctx, find, ListParams{Page: 2, PerPage: 2, Filters: map[string]any{}})
		require.NoError(t, err)
		assert.EqualValues(t, 3, page.Total)
		assert.Equal(t, 2, page.TotalPages)
		require.Len(t, page.Data, 1)
		assert.Equal(t, "F-1", page.Data[0].String("buluntu_no"))
	})

	t.Run("search escapes like metacharacters", func(t *testing.T) {
		page, err := entities.List(ctx, unit, ListParams{Page: 1, PerPage: 50, Search: "100%", Filters: map[string]any{}})
		require.NoError(t, err)
		require.EqualValues(t, 1, page.Total)
		assert.Equal(t, "1", page.Data[0].String("mekan_no"))

		page, err = entities.List(ctx, unit, ListParams{Page: 1, PerPage: 50, Search: "a_e", Filters: map[string]any{}})
		require.NoError(t, err)
		assert.EqualValues(t, 0, page.Total)
	})

	t.Run("filters and bbox", func(t *testing.T) {
		page, err := entities.List(ctx, wall, ListParams{Page: 1, PerPage: 50, Filters: map[string]any{"year": 2019}})
		require.NoError(t, err)
		require.EqualValues(t, 1, page.Total)
		assert.Equal(t, "W-1", page.Data[0].String("wall_no"))
		assert.Equal(t, "1", page.Data[0].String("mekan_no"))

		box := &BBox{West: 29.9, South: 39.9, East: 30.1, North: 40.1}
		page, err = entities.List(ctx, built, ListParams{Page: 1, PerPage: 50, Filters: map[string]any{}, BBox: box})
		require.NoError(t, err)
		require.EqualValues(t, 1, page.Total)
		assert.Equal(t, "B-1", page.Data[0].String("birin_no"))
	})

	t.Run("has_media is resolved per row", func(t *testing.T) {
		page, err := entities.List(ctx, built, ListParams{Page: 1, PerPage: 50, Filters: map[string]any{}})
		require.NoError(t, err)
		media := map[string]any{}
		for _, r := range page.Data {
			media[r.String("birin_no")], _ = r.Get("has_media")
		}
		assert.Equal(t, map[string]any{"B-1": true, "B-2": false}, media)
	})

	t.Run("detail and edit", func(t *testing.T) {
		_, err := entities.Get(ctx, wall, "W-9")
		assert.ErrorIs(t, err, ErrNotFound)

		text := "Dry-stone wall"
		row, err := entities.UpdateDescription(ctx, wall, "W-1", DescriptionUpdate{Description: &text})
		require.NoError(t, err)
		assert.Equal(t, text, row.String("description"))

		_, err = entities.UpdateDescription(ctx, wall, "W-9", DescriptionUpdate{Description: &text})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("edit rejects duplicate ids", func(t *testing.T) {
		require.NoError(t, conn.Exec(`INSERT INTO mekan_wall (wall_no, wall_year, wall_alan, description)
			VALUES ('W-2', 2021, 'C', 'Copied record')`).Error)
		t.Cleanup(func() { conn.Exec(`DELETE FROM mekan_wall WHERE wall_year = 2021`) })

		text := "Should not be written"
		_, err := entities.UpdateDescription(ctx, wall, "W-2", DescriptionUpdate{Description: &text})
		assert.ErrorIs(t, err, ErrConflict)

		var written int64
		require.NoError(t, conn.Raw(`SELECT COUNT(*) FROM mekan_wall WHERE description = ?`, text).Scan(&written).Error)
		assert.Zero(t, written)
	})

	t.Run("relationships", func(t *testing.T) {
		counts, err := aggregates.Relationships(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{"birim": 2, "walls": 1, "graves": 1, "finds": 2}, counts)

		counts, err = aggregates.Relationships(ctx, "99")
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{"birim": 0, "walls": 0, "graves": 0, "finds": 0}, counts)
	})

	t.Run("statistics", func(t *testing.T) {
		stats, err := aggregates.Statistics(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 2, stats["total_mekan"])
		assert.EqualValues(t, 3, stats["total_finds"])
		assert.EqualValues(t, 1, stats["total_media"])
		assert.Equal(t, []int{2020, 2019}, stats["excavation_years"])

		byMaterial := stats["finds_by_material"].([]CountByValue)
		require.Len(t, byMaterial, 2)
		assert.Equal(t, "ceramic", byMaterial[0].Value)
		assert.EqualValues(t, 2, byMaterial[0].Count)
	})

	t.Run("search", func(t *testing.T) {
		hits, err := aggregates.Search(ctx, "ceramic")
		require.NoError(t, err)
		require.Len(t, hits, 2)
		for _, h := range hits {
			assert.Equal(t, models.EntityFind, h.Type)
		}
		assert.Equal(t, "Find F-3 - ceramic", hits[0].Title)

		hits, err = aggregates.Search(ctx, "ce")
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("features", func(t *testing.T) {
		fc, err := aggregates.Features(ctx, []string{"birim"}, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, fc.Total)

		fc, err = aggregates.Features(ctx, []string{"birim", "walls"}, &BBox{West: 29.9, South: 39.9, East: 30.1, North: 40.1})
		require.NoError(t, err)
		assert.Equal(t, 2, fc.Total)
		assert.Equal(t, "built_unit", fc.Features[0].Properties["layer"])

		fc, err = aggregates.Features(ctx, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 5, fc.Total)

		_, err = aggregates.Features(ctx, []string{"trench"}, nil)
		assert.ErrorIs(t, err, ErrInvalidEntity)
	})

	t.Run("excel export", func(t *testing.T) {
		file, err := NewExportService(entities).Excel(ctx, wall, "walls", ListParams{Page: 1, PerPage: 50, Filters: map[string]any{}})
		require.NoError(t, err)

		book, err := excelize.OpenReader(bytes.NewReader(file.Data))
		require.NoError(t, err)
		assert.Equal(t, "Walls", book.GetSheetName(0))
		rows, err := book.GetRows("Walls")
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Contains(t, rows[0], "wall_no")
		assert.NotContains(t, rows[0], "geometry")
	})
}

func TestPostGISReprojectsSourceSRID(t *testing.T) {
	conn := startPostGIS(t)
	ctx := context.Background()

	require.NoError(t, conn.Exec(`ALTER TABLE mekan_grave
		ALTER COLUMN geometry TYPE geometry(Point, 3997) USING ST_Transform(geometry, 3997)`).Error)

	schema := integrationSchema()
	schema.SourceSRID = 3997
	catalog := models.NewCatalog(config.FindsTableBuluntu)
	grave := catalog.MustLookup(models.EntityGrave)
	entities := NewEntityService(conn, schema)
	aggregates := NewAggregateService(conn, catalog, schema)

	var stored struct {
		Lon, Lat, X, Y float64
	}
	require.NoError(t, conn.Raw(`SELECT ST_X(ST_Transform(geometry, 4326)) AS lon, ST_Y(ST_Transform(geometry, 4326)) AS lat,
		ST_X(geometry) AS x, ST_Y(geometry) AS y FROM mekan_grave WHERE grave_no = 'G-1'`).Scan(&stored).Error)
	assert.InDelta(t, 30.0002, stored.Lon, 1e-7)
	assert.InDelta(t, 40.0002, stored.Lat, 1e-7)
	assert.Greater(t, math.Abs(stored.X-stored.Lon), 1.0, "stored coordinates are projected")

	t.Run("list returns wgs84", func(t *testing.T) {
		page, err := entities.List(ctx, grave, ListParams{Page: 1, PerPage: 50, Filters: map[string]any{}})
		require.NoError(t, err)
		require.Len(t, page.Data, 1)

		g, _ := page.Data[0].Get("geometry")
		require.NotNil(t, g)
		pt, ok := g.(*geojson.Geometry).Coordinates.(orb.Point)
		require.True(t, ok)
		assert.InDelta(t, stored.Lon, pt.Lon(), 1e-8)
		assert.InDelta(t, stored.Lat, pt.Lat(), 1e-8)
	})

	t.Run("bbox is read in the source srid", func(t *testing.T) {
		near := &BBox{West: stored.X - 10, South: stored.Y - 10, East: stored.X + 10, North: stored.Y + 10}
		fc, err := aggregates.Features(ctx, []string{"graves"}, near)
		require.NoError(t, err)
		require.Equal(t, 1, fc.Total)
		pt, ok := fc.Features[0].Geometry.(orb.Point)
		require.True(t, ok)
		assert.InDelta(t, stored.Lon, pt.Lon(), 1e-8)
		assert.InDelta(t, stored.Lat, pt.Lat(), 1e-8)

		far := &BBox{West: stored.X + 1000, South: stored.Y + 1000, East: stored.X + 2000, North: stored.Y + 2000}
		fc, err = aggregates.Features(ctx, []string{"graves"}, far)
		require.NoError(t, err)
		assert.Zero(t, fc.Total)

		page, err := entities.List(ctx, grave, ListParams{Page: 1, PerPage: 50, Filters: map[string]any{}, BBox: near})
		require.NoError(t, err)
		assert.EqualValues(t, 1, page.Total)
	})
}
