// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strconv"
)

// Record is a raw row as read from the store: field name to value.
// Events and users travel through the pipeline as records so the payload
// handed back to callers is exactly what was stored.
type Record map[string]any

// ID returns the record's "id" field as a string, or "" when it is absent.
func (r Record) ID() string {
	v, ok := r["id"]
	if !ok || v == nil {
		return ""
	}
	switch id := v.(type) {
	case string:
		return id
	case fmt.Stringer:
		return id.String()
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	default:
		return fmt.Sprint(id)
	}
}

// StringField returns the named field when it holds a string.
func (r Record) StringField(key string) string {
	s, _ := r[key].(string)
	return s
}

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Origin names the table an event was read from. It decides which foreign
// key a persisted recommendation populates.
type Origin string

const (
	OriginCircleEvent   Origin = "events"
	OriginExternalEvent Origin = "external_events"
)

// Valid reports whether o is a known origin.
func (o Origin) Valid() bool {
	return o == OriginCircleEvent || o == OriginExternalEvent
}

// Candidate is an event tagged with its origin.
type Candidate struct {
	Origin Origin
	Data   Record
}
