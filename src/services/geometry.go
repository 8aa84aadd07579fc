package services

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/enzococca/mekan-admin/src/logging"
	"github.com/goccy/go-json"
	"github.com/paulmach/orb/geojson"
)

// BBox is a rectangle in the source coordinate system.
type BBox struct {
	West  float64 `json:"west" validate:"ltfield=East"`
	South float64 `json:"south" validate:"ltfield=North"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// ParseBBox reads a bounding box from bbox=w,s,e,n, from a JSON bounds
// object, or from the four west/south/east/north params. No box is not an error.
func ParseBBox(q url.Values) (*BBox, error) {
	var box BBox

	switch {
	case q.Get("bbox") != "":
		parts := strings.Split(q.Get("bbox"), ",")
		if len(parts) != 4 {
			return nil, fmt.Errorf("%w: bbox must be west,south,east,north", ErrInvalidParam)
		}
		vals := make([]float64, 4)
		for i, part := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bbox must be numeric", ErrInvalidParam)
			}
			vals[i] = v
		}
		box = BBox{West: vals[0], South: vals[1], East: vals[2], North: vals[3]}

	case q.Get("bounds") != "":
		var raw map[string]*float64
		if err := json.Unmarshal([]byte(q.Get("bounds")), &raw); err != nil {
			return nil, fmt.Errorf("%w: bounds must be a JSON object", ErrInvalidParam)
		}
		for _, k := range []string{"west", "south", "east", "north"} {
			if raw[k] == nil {
				return nil, fmt.Errorf("%w: bounds.%s is required", ErrInvalidParam, k)
			}
		}
		box = BBox{West: *raw["west"], South: *raw["south"], East: *raw["east"], North: *raw["north"]}

	default:
		keys := []string{"west", "south", "east", "north"}
		present := 0
		vals := make([]float64, 4)
		for i, k := range keys {
			v := q.Get(k)
			if v == "" {
				continue
			}
			present++
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %s must be numeric", ErrInvalidParam, k)
			}
			vals[i] = f
		}
		if present == 0 {
			return nil, nil
		}
		if present != 4 {
			return nil, fmt.Errorf("%w: west, south, east and north are all required", ErrInvalidParam)
		}
		box = BBox{West: vals[0], South: vals[1], East: vals[2], North: vals[3]}
	}

	if err := validate.Struct(box); err != nil {
		return nil, fmt.Errorf("%w: bbox requires west < east and south < north", ErrInvalidParam)
	}
	return &box, nil
}

// decodeGeometry parses a GeoJSON geometry produced by ST_AsGeoJSON.
// Empty or malformed input yields nil.
func decodeGeometry(raw string) *geojson.Geometry {
	if raw == "" {
		return nil
	}
	g, err := geojson.UnmarshalGeometry([]byte(raw))
	if err != nil || (g.Coordinates == nil && len(g.Geometries) == 0) {
		logging.Debug().Err(err).Msg("dropping invalid geometry")
		return nil
	}
	return g
}

// FeatureCollection is the map payload: a GeoJSON collection plus a feature count.
type FeatureCollection struct {
	Type     string             `json:"type"`
	Features []*geojson.Feature `json:"features"`
	Total    int                `json:"total"`
}

func newFeatureCollection() *FeatureCollection {
	return &FeatureCollection{Type: "FeatureCollection", Features: []*geojson.Feature{}}
}

func (fc *FeatureCollection) add(g *geojson.Geometry, props geojson.Properties) {
	f := geojson.NewFeature(g.Geometry())
	f.Properties = props
	fc.Features = append(fc.Features, f)
	fc.Total = len(fc.Features)
}
