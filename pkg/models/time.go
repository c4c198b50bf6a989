package models

import (
	"time"

	"github.com/araddon/dateparse"
)

// parseAggregateTime parses the text form of a MAX(timestamp) aggregate.
// Postgres returns RFC 3339 while SQLite returns its own storage layout, so
// the layout is detected rather than fixed.
func parseAggregateTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
