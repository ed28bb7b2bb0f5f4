package sqlstore

import (
	"database/sql"
	"strconv"
	"time"

	"modelql/internal/model"
)

// scanMaps reads every row into a field-name-keyed map, converting driver
// values by the field's scalar type.
func scanMaps(entity *model.Entity, attrs []string, rows *sql.Rows) ([]map[string]any, error) {
	var out []map[string]any
	dest := make([]any, len(attrs))
	holders := make([]any, len(attrs))
	for i := range holders {
		dest[i] = &holders[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(attrs))
		for i, attr := range attrs {
			field, _ := entity.Field(attr)
			row[attr] = fieldValue(field, holders[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// fieldValue converts a raw driver value to the field's scalar type. MySQL
// drivers hand back []byte for most text and numeric columns.
func fieldValue(field model.Field, raw any) any {
	if raw == nil {
		return nil
	}
	switch field.Type {
	case model.Int:
		switch v := raw.(type) {
		case int64:
			return v
		case []byte:
			if n, err := strconv.ParseInt(string(v), 10, 64); err == nil {
				return n
			}
		}
	case model.Float:
		switch v := raw.(type) {
		case float64:
			return v
		case []byte:
			if f, err := strconv.ParseFloat(string(v), 64); err == nil {
				return f
			}
		}
	case model.Boolean:
		switch v := raw.(type) {
		case bool:
			return v
		case int64:
			return v != 0
		case []byte:
			return string(v) == "1" || string(v) == "true"
		}
	case model.DateTime:
		switch v := raw.(type) {
		case time.Time:
			return v
		case []byte:
			if t, err := time.Parse("2006-01-02 15:04:05", string(v)); err == nil {
				return t
			}
		}
	}
	if b, ok := raw.([]byte); ok {
		return string(b)
	}
	return raw
}
