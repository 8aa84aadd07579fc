package services

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/enzococca/mekan-admin/src/config"
	"github.com/enzococca/mekan-admin/src/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func wallRows() []*Row {
	a := NewRow()
	a.Set("wall_no", "W1")
	a.Set("wall_type", "mudbrick")
	a.Set("description", strings.Repeat("long text ", 10))
	a.Set("geom_area", 12.5)
	a.Set("wall_year", int64(2019))

	b := NewRow()
	b.Set("wall_no", "W2")
	b.Set("wall_type", nil)
	b.Set("description", "short")
	b.Set("geom_area", nil)
	b.Set("wall_year", int64(2020))
	return []*Row{a, b}
}

func TestRenderWorkbook(t *testing.T) {
	data, err := renderWorkbook("walls", nil, wallRows())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"walls"}, f.GetSheetList())

	rows, err := f.GetRows("walls")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"wall_no", "wall_type", "description", "wall_year"}, rows[0])
	assert.Equal(t, "W1", rows[1][0])
	assert.Equal(t, "2020", rows[2][3])
	assert.Equal(t, "", rows[2][1])

	descWidth, err := f.GetColWidth("walls", "C")
	require.NoError(t, err)
	assert.Equal(t, float64(maxColumnWidth), descWidth)

	noWidth, err := f.GetColWidth("walls", "A")
	require.NoError(t, err)
	assert.Equal(t, float64(len("wall_no")+2), noWidth)

	styleID, err := f.GetCellStyle("walls", "A1")
	require.NoError(t, err)
	style, err := f.GetStyle(styleID)
	require.NoError(t, err)
	require.NotNil(t, style.Font)
	assert.True(t, style.Font.Bold)
}

func TestRenderWorkbookEmpty(t *testing.T) {
	wall := models.NewCatalog(config.FindsTableBuluntu).MustLookup(models.EntityWall)
	data, err := renderWorkbook("Walls", wall.ColumnNames(), nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Walls")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{
		"wall_uuid", "wall_no", "wall_year", "wall_alan", "wall_type", "material", "length", "width",
		"height", "preservation_state", "description", "description_tr", "created_at", "mekan_no",
	}, rows[0])

	styleID, err := f.GetCellStyle("Walls", "A1")
	require.NoError(t, err)
	style, err := f.GetStyle(styleID)
	require.NoError(t, err)
	assert.True(t, style.Font.Bold)
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "Walls", sheetName("walls"))
	assert.Equal(t, "Birim", sheetName("BIRIM"))
	assert.Equal(t, "Sheet1", sheetName(""))
}

func TestRenderRecordPDF(t *testing.T) {
	row := wallRows()[1]
	data, err := renderRecordPDF("WALL - W2", row, time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
	assert.Greater(t, len(data), 500)
}

func TestFieldLabel(t *testing.T) {
	assert.Equal(t, "Mekan No", fieldLabel("mekan_no"))
	assert.Equal(t, "Description Tr", fieldLabel("description_tr"))
	assert.Equal(t, "Preservation State", fieldLabel("preservation_state"))
}

func TestExportHelpers(t *testing.T) {
	assert.True(t, isGeometryColumn("geometry"))
	assert.True(t, isGeometryColumn("GEOM"))
	assert.False(t, isGeometryColumn("wall_no"))
	assert.Equal(t, "A-12-b", safeFilePart("A/12 b"))
	assert.Equal(t, "Yes", formatValue(true))
	assert.Equal(t, "2024-05-01 10:30:00", formatValue(time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)))
}
