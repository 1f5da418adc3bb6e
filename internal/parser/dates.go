package parser

import (
	"strconv"
	"strings"
	"time"
)

// Year disambiguation bounds and correction windows.
const (
	// Unix timestamps outside 2000-01-01..2100-01-01 are treated as garbage.
	minPostTimestamp = 946684800
	maxPostTimestamp = 4102444800

	// A resolved date this far past "now" means the wrong year was picked.
	futureSlackDays = 30
	// How far back a year-decremented date may land and still be accepted.
	maxBackdateDays = 365
	// A result more than this many days after sending indicates a rollover
	// artifact rather than a genuinely slow review.
	maxReviewDays = 180
)

// resolveDate parses "M/D" or "M/D/YYYY" and resolves the year for the
// two-part form. Year sources in preference order: the post's own timestamp
// when plausible, then the thread title's year, then the current year. A
// resolved date far in the future gets the previous year instead, since
// posts cannot describe events that have not happened.
func resolveDate(s string, ctx Context) (time.Time, bool) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) < 2 || len(parts) > 3 {
		return time.Time{}, false
	}

	month, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, false
	}

	if len(parts) == 3 {
		year, err := strconv.Atoi(parts[2])
		if err != nil {
			return time.Time{}, false
		}
		if year < 100 {
			year += 2000
		}
		if year < 2000 || year > 2100 {
			return time.Time{}, false
		}
		return makeDate(year, month, day)
	}

	year := yearFromContext(ctx)
	d, ok := makeDate(year, month, day)
	if !ok {
		return time.Time{}, false
	}
	return correctFutureDate(d, ctx.now()), true
}

func yearFromContext(ctx Context) int {
	if ts, err := strconv.ParseInt(strings.TrimSpace(ctx.PostTimestamp), 10, 64); err == nil {
		if ts >= minPostTimestamp && ts <= maxPostTimestamp {
			return time.Unix(ts, 0).UTC().Year()
		}
	}
	if ctx.ThreadYear > 0 {
		return ctx.ThreadYear
	}
	return ctx.now().UTC().Year()
}

// makeDate builds a UTC date and rejects inputs that time.Date would silently
// normalize, such as 2/30 or 13/1.
func makeDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Month() != time.Month(month) || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}

// correctFutureDate steps a date back one year when it lands implausibly far
// in the future. The correction is kept only if it does not push the date
// more than a year into the past; otherwise the original stands.
func correctFutureDate(d, now time.Time) time.Time {
	if d.Sub(now) <= futureSlackDays*24*time.Hour {
		return d
	}
	prev := d.AddDate(-1, 0, 0)
	if now.Sub(prev) <= maxBackdateDays*24*time.Hour {
		return prev
	}
	return d
}

// adjustResultDateRollover fixes result dates that resolved to the wrong year
// relative to the sent date. "sent 12/15, passed 1/10" with both dates in the
// same year yields a result before sending; that means the review crossed a
// year boundary and the result belongs to the next year. Symmetrically, a
// result far more than a review cycle after sending likely borrowed next
// year's number and is stepped back.
func adjustResultDateRollover(sent, result time.Time) time.Time {
	delta := result.Sub(sent)
	if delta < 0 && result.Month() < sent.Month() {
		return result.AddDate(1, 0, 0)
	}
	if delta > maxReviewDays*24*time.Hour {
		prev := result.AddDate(-1, 0, 0)
		d := prev.Sub(sent)
		if d >= 0 && d <= maxReviewDays*24*time.Hour {
			return prev
		}
	}
	return result
}
