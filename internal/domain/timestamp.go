package domain

import (
	"fmt"
	"strings"
	"time"
)

// Timestamp is a wire-format instant. It is kept as text until a rule needs it
// so that values which fail to parse can be reported instead of rejected at decode time.
type Timestamp string

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04",
	"2006-01-02",
}

func TimestampOf(t time.Time) Timestamp {
	if t.IsZero() {
		return ""
	}
	return Timestamp(t.UTC().Format(time.RFC3339Nano))
}

// TimestampPtr converts a nullable DB column.
func TimestampPtr(t *time.Time) Timestamp {
	if t == nil {
		return ""
	}
	return TimestampOf(*t)
}

func (ts Timestamp) IsZero() bool {
	return strings.TrimSpace(string(ts)) == ""
}

// Time parses the timestamp. Values without a zone are read as UTC.
// Absent values return the zero time and no error.
func (ts Timestamp) Time() (time.Time, error) {
	s := strings.TrimSpace(string(ts))
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, s)
}
