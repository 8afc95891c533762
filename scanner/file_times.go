package scanner

import (
	"time"

	"github.com/djherbis/times"
)

// creationTime returns the birth time in RFC 3339, or "" when the platform
// or filesystem does not record one.
func creationTime(path string) string {
	ts, err := times.Stat(path)
	if err != nil || !ts.HasBirthTime() {
		return ""
	}
	return ts.BirthTime().UTC().Format(time.RFC3339)
}
