package templating

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	// ISODateToken selects the UTC calendar date in YYYY-MM-DD form.
	ISODateToken = "%Y-%m-%d"
	// LongDateToken selects "{FullMonthName} {DD}, {YYYY}" from UTC components.
	LongDateToken = "%B %d, %Y"
	// InvalidDate is rendered for any value that cannot be read as a date.
	InvalidDate = "Invalid Date"

	// maxEpochMillis is the largest distance from the epoch, in milliseconds,
	// that is still considered a representable date.
	maxEpochMillis = 8.64e15
)

var monthNames = [12]string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// dateLayouts are tried in order when a string value is converted to a date.
// Layouts without an offset are read as UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	time.DateOnly,
	"2006-01",
	"2006",
	time.RFC1123Z,
	time.RFC1123,
	"January 2, 2006",
	"Jan 2, 2006",
}

// DateFormatter renders date-like values according to a format token.
// The two named tokens always use UTC; Location only affects the default
// short-date rendering.
type DateFormatter struct {
	Location *time.Location
}

// defaultDateFormatter backs the package-level FormatDate and the "date" template function.
var defaultDateFormatter = DateFormatter{Location: time.UTC}

// FormatDate formats value using the UTC default formatter.
func FormatDate(value any, format string) string {
	return defaultDateFormatter.Format(value, format)
}

// Format converts value to a date and renders it for the given token.
// It never fails: a value that is not a date renders as InvalidDate, and an
// unknown token falls back to the en-US short date (M/D/YYYY).
func (f DateFormatter) Format(value any, format string) string {
	t, ok := toTime(value)
	if !ok {
		return InvalidDate
	}

	switch format {
	case ISODateToken:
		return isoDate(t.UTC())
	case LongDateToken:
		u := t.UTC()
		return fmt.Sprintf("%s %02d, %d", monthNames[u.Month()-1], u.Day(), u.Year())
	default:
		loc := f.Location
		if loc == nil {
			loc = time.UTC
		}
		l := t.In(loc)
		return fmt.Sprintf("%d/%d/%d", int(l.Month()), l.Day(), l.Year())
	}
}

// isoDate renders the date portion of an ISO-8601 timestamp. Years outside
// 0..9999 use the signed six-digit extended form.
func isoDate(t time.Time) string {
	y := t.Year()
	if y < 0 || y > 9999 {
		return fmt.Sprintf("%+07d-%02d-%02d", y, int(t.Month()), t.Day())
	}
	return fmt.Sprintf("%04d-%02d-%02d", y, int(t.Month()), t.Day())
}

// ParseDate converts a date-like value to a time.Time using the same rules as
// the date filter. The boolean is false for values that render as InvalidDate.
func ParseDate(value any) (time.Time, bool) {
	return toTime(value)
}

// toTime converts a template value to a time.Time.
// Numbers are read as milliseconds since the Unix epoch.
func toTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return v, true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, true
	case string:
		return parseDateString(v)
	case []byte:
		return parseDateString(string(v))
	case int:
		return fromMillis(float64(v))
	case int32:
		return fromMillis(float64(v))
	case int64:
		return fromMillis(float64(v))
	case uint:
		return fromMillis(float64(v))
	case uint32:
		return fromMillis(float64(v))
	case uint64:
		return fromMillis(float64(v))
	case float32:
		return fromMillis(float64(v))
	case float64:
		return fromMillis(v)
	case fmt.Stringer:
		return parseDateString(v.String())
	default:
		return time.Time{}, false
	}
}

func parseDateString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func fromMillis(ms float64) (time.Time, bool) {
	if math.IsNaN(ms) || math.IsInf(ms, 0) || math.Abs(ms) > maxEpochMillis {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(ms)).UTC(), true
}
