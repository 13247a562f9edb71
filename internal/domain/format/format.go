// Package format reduces raw event and user records to the fields the
// scoring model is allowed to see.
package format

import (
	"context"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/circlematch/internal/domain/model"
	"github.com/okian/circlematch/pkg/logger"
	"github.com/okian/circlematch/pkg/metrics"
)

// Output layouts for the human-oriented date/time pair.
const (
	DateLayout = "Mon 02-Jan-2006"
	TimeLayout = "15:04"

	KeyDate         = "date"
	KeyTime         = "time"
	KeyRawStartTime = "raw_start_time"
	KeyPreferences  = "preferences"
)

// internal-only event fields never shown to the model.
var eventHiddenFields = []string{ //nolint:gochecknoglobals
	"id", "created_at", "updated_at", "circle_id", "created_by_user_id", "event_datetime",
}

var userHiddenFields = []string{"id", "created_at", "updated_at"} //nolint:gochecknoglobals

// startTimeLayouts are tried in order. Fractional seconds after the seconds
// field are accepted by time.Parse without being named in the layout.
var startTimeLayouts = []string{ //nolint:gochecknoglobals
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05Z07",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Event returns the model-facing view of a raw event. raw is not modified.
func Event(ctx context.Context, raw model.Record) model.Record {
	out := raw.Clone()
	for _, k := range eventHiddenFields {
		delete(out, k)
	}

	start, hasStart := out["start_time"]
	delete(out, "start_time")
	delete(out, "end_time")
	if hasStart && !isEmpty(start) {
		if t, ok := parseStartTime(start); ok {
			out[KeyDate] = t.Format(DateLayout)
			out[KeyTime] = t.Format(TimeLayout)
		} else {
			metrics.RecordFormatDegraded()
			logger.Get().Named("format").Warn(ctx, "could not parse start_time; passing raw value",
				logger.String("event_id", raw.ID()),
				logger.Any("start_time", start),
			)
			if s, isString := start.(string); isString {
				out[KeyRawStartTime] = s
			}
		}
	}

	if info, ok := out["info"]; ok {
		delete(out, "info")
		flattenInfo(out, info)
	}

	if loc, ok := out["location_text"]; ok {
		if _, has := out["location"]; !has {
			out["location"] = loc
			delete(out, "location_text")
		}
	}
	return out
}

// User returns the model-facing view of a raw user. raw is not modified.
func User(_ context.Context, raw model.Record) model.Record {
	out := raw.Clone()
	for _, k := range userHiddenFields {
		delete(out, k)
	}
	if attrs, ok := out["attributes"]; ok {
		out[KeyPreferences] = attrs
		delete(out, "attributes")
	}
	return out
}

func parseStartTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range startTimeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

func flattenInfo(out model.Record, info any) {
	switch v := info.(type) {
	case nil:
	case map[string]any:
		for k, val := range v {
			out[k] = val
		}
	case model.Record:
		for k, val := range v {
			out[k] = val
		}
	case string:
		var m map[string]any
		if err := json.Unmarshal([]byte(v), &m); err == nil && m != nil {
			flattenInfo(out, m)
			return
		}
		if v != "" {
			out["info"] = v
		}
	default:
		out["info"] = v
	}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}
