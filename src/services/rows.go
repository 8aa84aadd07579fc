package services

import (
	"bytes"
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/paulmach/orb/geojson"
)

const geometryField = "geometry"

// Row is one result record that keeps the column order of the query.
type Row struct {
	keys   []string
	values map[string]any
}

func NewRow() *Row {
	return &Row{values: map[string]any{}}
}

// Set adds or replaces a field; new fields go last.
func (r *Row) Set(key string, v any) {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
}

func (r *Row) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the field names in column order.
func (r *Row) Keys() []string {
	return r.keys
}

// String renders a field for text output; nil and missing fields are empty.
func (r *Row) String(key string) string {
	v, ok := r.values[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func (r *Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// scanRows maps every result row to a Row. Byte slices become strings and
// the geometry column is decoded into a GeoJSON object.
func scanRows(rows *sql.Rows) ([]*Row, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := []*Row{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := NewRow()
		for i, col := range cols {
			v := vals[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			if col == geometryField {
				row.Set(col, geometryValue(v))
				continue
			}
			row.Set(col, v)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func geometryValue(v any) *geojson.Geometry {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return decodeGeometry(s)
}
