package pipeline

import (
	"fmt"
	"time"
)

const dateLayout = time.DateOnly

// DateRange is an inclusive pair of YYYY-MM-DD dates. Either side may be
// empty, in which case the listing is not filtered on that side.
type DateRange struct {
	Start string
	End   string
}

func Today(now time.Time) DateRange {
	d := now.Format(dateLayout)
	return DateRange{Start: d, End: d}
}

func Yesterday(now time.Time) DateRange {
	d := now.AddDate(0, 0, -1).Format(dateLayout)
	return DateRange{Start: d, End: d}
}

// LastNDays covers n days ending today, so LastNDays(now, 1) is Today.
func LastNDays(now time.Time, n int) (DateRange, error) {
	if n < 1 {
		return DateRange{}, fmt.Errorf("days must be at least 1, got %d", n)
	}
	return DateRange{
		Start: now.AddDate(0, 0, -(n - 1)).Format(dateLayout),
		End:   now.Format(dateLayout),
	}, nil
}

// ParseRange validates explicit start/end dates.
func ParseRange(start, end string) (DateRange, error) {
	for _, d := range []string{start, end} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(dateLayout, d); err != nil {
			return DateRange{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", d)
		}
	}
	if start != "" && end != "" && start > end {
		return DateRange{}, fmt.Errorf("start date %s is after end date %s", start, end)
	}
	return DateRange{Start: start, End: end}, nil
}

// RemoteTitle names an uploaded spreadsheet after the range.
func RemoteTitle(r DateRange, now time.Time) string {
	switch {
	case r.Start != "" && r.End != "" && r.Start == r.End:
		return "新发地价格_" + r.Start
	case r.Start != "" && r.End != "":
		return fmt.Sprintf("新发地价格_%s_to_%s", r.Start, r.End)
	default:
		return "新发地价格_" + now.Format(dateLayout)
	}
}
