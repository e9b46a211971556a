package source

import (
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// Layouts tried, in order, for string deadlines. Zone-less layouts are
// interpreted in the caller's location.
var deadlineLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDeadline reads a deadline from a JSON value: an RFC 3339 or zone-less
// date/time string, or a number of milliseconds since the Unix epoch.
func ParseDeadline(v gjson.Result, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	switch v.Type {
	case gjson.Number:
		return time.UnixMilli(v.Int()).In(loc), nil
	case gjson.String:
		s := v.String()
		for _, layout := range deadlineLayouts {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized deadline format %q", s)
	default:
		return time.Time{}, fmt.Errorf("deadline must be a string or number, got %s", v.Type)
	}
}
