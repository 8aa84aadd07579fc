package services

import (
	"net/url"
	"testing"

	"github.com/goccy/go-json"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBBoxForms(t *testing.T) {
	want := &BBox{West: 1, South: 2, East: 3, North: 4}

	got, err := ParseBBox(url.Values{"bbox": {"1, 2, 3, 4"}})
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = ParseBBox(url.Values{"bounds": {`{"west":1,"south":2,"east":3,"north":4}`}})
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = ParseBBox(url.Values{"west": {"1"}, "south": {"2"}, "east": {"3"}, "north": {"4"}})
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = ParseBBox(url.Values{})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestParseBBoxRejects(t *testing.T) {
	for _, q := range []url.Values{
		{"bbox": {"1,2,3"}},
		{"bbox": {"1,2,x,4"}},
		{"bbox": {"5,2,3,4"}},
		{"bbox": {"1,4,3,4"}},
		{"bounds": {`{"west":1}`}},
		{"bounds": {`not json`}},
		{"west": {"1"}, "south": {"2"}},
	} {
		_, err := ParseBBox(q)
		assert.ErrorIs(t, err, ErrInvalidParam, q.Encode())
	}
}

func TestDecodeGeometry(t *testing.T) {
	g := decodeGeometry(`{"type":"Point","coordinates":[38.5,37.2]}`)
	require.NotNil(t, g)
	assert.Equal(t, orb.Point{38.5, 37.2}, g.Coordinates)

	poly := decodeGeometry(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`)
	require.NotNil(t, poly)
	assert.Equal(t, "Polygon", poly.Type)

	assert.Nil(t, decodeGeometry(""))
	assert.Nil(t, decodeGeometry("{broken"))
	assert.Nil(t, decodeGeometry(`{"type":"Unknown","coordinates":[1,2]}`))
}

func TestRowKeepsColumnOrder(t *testing.T) {
	r := NewRow()
	r.Set("wall_no", "W1")
	r.Set("description", nil)
	r.Set("geometry", decodeGeometry(`{"type":"Point","coordinates":[1,2]}`))
	r.Set("has_media", true)
	r.Set("wall_no", "W2")

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t,
		`{"wall_no":"W2","description":null,"geometry":{"type":"Point","coordinates":[1,2]},"has_media":true}`,
		string(b))
	assert.Equal(t, "", r.String("description"))
	assert.Equal(t, "W2", r.String("wall_no"))
}

func TestRowNilGeometryIsNull(t *testing.T) {
	r := NewRow()
	r.Set("geometry", geometryValue(nil))
	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `{"geometry":null}`, string(b))
}

func TestFeatureCollectionTotal(t *testing.T) {
	fc := newFeatureCollection()
	fc.add(decodeGeometry(`{"type":"Point","coordinates":[1,2]}`), geojson.Properties{"layer": "wall", "id": "W1"})
	fc.add(decodeGeometry(`{"type":"Point","coordinates":[3,4]}`), geojson.Properties{"layer": "grave", "id": "G1"})

	b, err := json.Marshal(fc)
	require.NoError(t, err)

	var out struct {
		Type     string `json:"type"`
		Total    int    `json:"total"`
		Features []struct {
			Type       string         `json:"type"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, "FeatureCollection", out.Type)
	assert.Equal(t, 2, out.Total)
	require.Len(t, out.Features, 2)
	assert.Equal(t, "Feature", out.Features[0].Type)
	assert.Equal(t, "grave", out.Features[1].Properties["layer"])
}
