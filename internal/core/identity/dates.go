package identity

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	reDateNoise = regexp.MustCompile(`[^\d./-]`)
	reDateSep   = regexp.MustCompile(`[-/.]`)
)

// Clock supplies the current time for two-digit year expansion.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// FormatDate rewrites a day-month-year token as YYYY-MM-DD. A two-digit year
// is placed in referenceYear's century. Tokens that do not split into three
// digit runs are returned unchanged. Day and month are not range-checked.
func FormatDate(token string, referenceYear int) string {
	clean := reDateNoise.ReplaceAllString(token, "")
	parts := reDateSep.Split(clean, -1)
	if len(parts) != 3 {
		return token
	}
	for _, p := range parts {
		if p == "" {
			return token
		}
	}
	day, month, year := parts[0], parts[1], parts[2]
	if len(year) == 2 {
		yy, err := strconv.Atoi(year)
		if err != nil {
			return token
		}
		year = strconv.Itoa(referenceYear/100*100 + yy)
	}
	return year + "-" + zeroPad2(month) + "-" + zeroPad2(day)
}

func zeroPad2(s string) string {
	if len(s) >= 2 {
		return s
	}
	return strings.Repeat("0", 2-len(s)) + s
}

// DateFormatter applies FormatDate with the reference year taken from its clock.
type DateFormatter struct {
	clock Clock
}

func NewDateFormatter(clock Clock) *DateFormatter {
	if clock == nil {
		clock = SystemClock
	}
	return &DateFormatter{clock: clock}
}

func (f *DateFormatter) Format(token string) string {
	return FormatDate(token, f.clock.Now().Year())
}
