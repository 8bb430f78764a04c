package search

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	ngerrors "github.com/notegraph/notegraph/internal/errors"
)

var relativeRegex = regexp.MustCompile(`^(\d+)([dm])$`)

// ParseTimeSpec parses a time bound expression into a UTC instant. Accepted
// forms: YYYY, YYYY-MM, YYYY-MM-DD, Nd (N days ago), Nm (N months ago).
// Missing parts pad to the first instant of the year, month, or day.
func ParseTimeSpec(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ngerrors.InvalidInput("empty time specification")
	}

	if m := relativeRegex.FindStringSubmatch(value); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, ngerrors.InvalidInput("bad relative time: " + value)
		}
		switch m[2] {
		case "d":
			return now.UTC().AddDate(0, 0, -n), nil
		case "m":
			return now.UTC().AddDate(0, -n, 0), nil
		}
	}

	for _, layout := range []string{"2006-01-02", "2006-01", "2006"} {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ngerrors.InvalidInput("unrecognized time specification: " + value)
}
