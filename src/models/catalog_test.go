package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogLookupAliases(t *testing.T) {
	c := NewCatalog("mekan_buluntu")

	cases := map[string]string{
		"mekan":               EntityUnit,
		"stratigraphic_units": EntityUnit,
		"BIRIM":               EntityBuiltUnit,
		"birin":               EntityBuiltUnit,
		"walls":               EntityWall,
		"wall":                EntityWall,
		"graves":              EntityGrave,
		"buluntu":             EntityFind,
		"finds":               EntityFind,
	}
	for name, want := range cases {
		e, ok := c.Lookup(name)
		require.True(t, ok, name)
		assert.Equal(t, want, e.Name, name)
	}

	_, ok := c.Lookup("artefacts")
	assert.False(t, ok)
}

func TestCatalogFindsTable(t *testing.T) {
	buluntu := NewCatalog("mekan_buluntu").MustLookup(EntityFind)
	assert.Equal(t, "mekan_buluntu", buluntu.Table)
	assert.Equal(t, "buluntu_no", buluntu.IDField)

	legacy := NewCatalog("finds").MustLookup(EntityFind)
	assert.Equal(t, "finds", legacy.Table)
	assert.Equal(t, "f.find_number", legacy.IDColumn)
	assert.Contains(t, legacy.SearchColumns, "f.find_number")
}

func TestAPIVersionsResolve(t *testing.T) {
	c := NewCatalog("finds")
	for _, v := range APIVersions {
		for _, r := range v.Entities {
			_, ok := c.Lookup(r.Entity)
			assert.True(t, ok, "%s/%s", v.Name, r.Path)
		}
	}
}

func TestEveryEntityIsSearchable(t *testing.T) {
	for _, e := range NewCatalog("finds").All() {
		assert.GreaterOrEqual(t, len(e.SearchColumns), 2, e.Name)
		assert.LessOrEqual(t, len(e.SearchColumns), 4, e.Name)
		assert.NotEmpty(t, e.OrderBy, e.Name)
		assert.NotEmpty(t, e.GeometryColumn, e.Name)
	}
}

func TestRolePermissions(t *testing.T) {
	viewer := RoleModel{RoleName: "viewer", CanView: true}
	assert.True(t, viewer.Can(PermView))
	assert.False(t, viewer.Can(PermExport))
	assert.False(t, viewer.Can(Permission("launch_missiles")))

	u := &UserModel{IsActive: true, Role: RoleModel{CanExport: true}}
	assert.True(t, u.Can(PermExport))
	u.IsActive = false
	assert.False(t, u.Can(PermExport))

	var nobody *UserModel
	assert.False(t, nobody.Can(PermView))
}

func TestColumnNames(t *testing.T) {
	c := NewCatalog("mekan_buluntu")
	for _, e := range c.All() {
		names := e.ColumnNames()
		require.Len(t, names, len(e.Columns), e.Name)
		assert.Contains(t, names, e.IDField, e.Name)
		for _, n := range names {
			assert.NotContains(t, n, ".", e.Name)
			assert.NotContains(t, n, " ", e.Name)
		}
	}

	wall := c.MustLookup(EntityWall)
	assert.Equal(t, "wall_uuid", wall.ColumnNames()[0])
}

func TestWallParentIsDeterministic(t *testing.T) {
	wall := NewCatalog("mekan_buluntu").MustLookup(EntityWall)
	assert.Contains(t, wall.From(), "ORDER BY su.mekan_no LIMIT 1")
}
