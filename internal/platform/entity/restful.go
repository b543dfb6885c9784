package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

// Dict is the JSON-safe form of one record, keyed by column name.
type Dict map[string]interface{}

// OneAsDict flattens rec into its declared columns. Nil pointers become null
// and timestamps are rendered in RFC 3339.
func OneAsDict(e *Entity, rec interface{}) Dict {
	d := make(Dict, len(e.Columns))
	for _, c := range e.Columns {
		d[c.Name] = plain(e.field(rec, c))
	}
	return d
}

// AllAsList flattens recs preserving their order.
func AllAsList(e *Entity, recs []interface{}) []Dict {
	out := make([]Dict, 0, len(recs))
	for _, rec := range recs {
		out = append(out, OneAsDict(e, rec))
	}
	return out
}

// AllAsDict flattens recs into a map keyed by primary key.
func AllAsDict(e *Entity, recs []interface{}) map[int64]Dict {
	out := make(map[int64]Dict, len(recs))
	for _, rec := range recs {
		out[e.ID(rec)] = OneAsDict(e, rec)
	}
	return out
}

// JSONLoads decodes a request body into a flat field map. Numbers stay
// json.Number so integer ids survive intact. Anything but a single JSON
// object is a *ValidationError.
func JSONLoads(raw []byte) (map[string]interface{}, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &ValidationError{Reason: "request body is empty"}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("malformed JSON object: %v", err)}
	}
	if fields == nil {
		return nil, &ValidationError{Reason: "request body must be a JSON object"}
	}
	if dec.More() {
		return nil, &ValidationError{Reason: "request body must hold a single JSON object"}
	}
	return fields, nil
}

func plain(v reflect.Value) interface{} {
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if t, ok := v.Interface().(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return v.Interface()
}
