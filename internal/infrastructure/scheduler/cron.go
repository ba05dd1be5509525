package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cron expressions used by the worker's job table.
const (
	Every5Minutes    = "*/5 * * * *"
	Every15Minutes   = "*/15 * * * *"
	Every30Minutes   = "*/30 * * * *"
	EveryHour        = "0 * * * *"
	EveryDayMidnight = "0 0 * * *"
	EveryDay3AM      = "0 3 * * *"
)

// CronExpression is a parsed 5-field cron spec (minute, hour, day-of-month,
// month, day-of-week). It implements Schedule, so cron-timed jobs register
// with the same Scheduler as interval jobs. Each field is a bitmask of the
// permitted values; minute fits in 60 bits, everything else in far fewer.
type CronExpression struct {
	raw      string
	minutes  uint64
	hours    uint64
	days     uint64
	months   uint64
	weekdays uint64
}

type cronField struct {
	name string
	min  int
	max  int
}

var cronFields = [5]cronField{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day", 1, 31},
	{"month", 1, 12},
	{"weekday", 0, 6},
}

// ParseCronExpression parses expressions built from *, n, n-m, */s, n-m/s
// and comma lists thereof. Weekday 0 is Sunday.
func ParseCronExpression(expr string) (*CronExpression, error) {
	parts := strings.Fields(expr)
	if len(parts) != len(cronFields) {
		return nil, fmt.Errorf("cron: expected %d fields, got %d", len(cronFields), len(parts))
	}

	masks := [5]uint64{}
	for i, spec := range cronFields {
		mask, err := parseCronField(parts[i], spec.min, spec.max)
		if err != nil {
			return nil, fmt.Errorf("cron: %s field: %w", spec.name, err)
		}
		masks[i] = mask
	}

	return &CronExpression{
		raw:      expr,
		minutes:  masks[0],
		hours:    masks[1],
		days:     masks[2],
		months:   masks[3],
		weekdays: masks[4],
	}, nil
}

// parseCronField builds the bitmask for one field, accepting comma lists of
// atoms where each atom is *, n, n-m, optionally with a /step suffix.
func parseCronField(field string, min, max int) (uint64, error) {
	var mask uint64
	for _, atom := range strings.Split(field, ",") {
		atom = strings.TrimSpace(atom)
		if atom == "" {
			return 0, fmt.Errorf("empty element in %q", field)
		}

		step := 1
		if base, stepStr, found := strings.Cut(atom, "/"); found {
			n, err := strconv.Atoi(stepStr)
			if err != nil || n <= 0 {
				return 0, fmt.Errorf("bad step in %q", atom)
			}
			step = n
			atom = base
		}

		lo, hi := min, max
		switch {
		case atom == "*":
			// full range
		case strings.Contains(atom, "-"):
			loStr, hiStr, _ := strings.Cut(atom, "-")
			var err error
			if lo, err = strconv.Atoi(loStr); err != nil {
				return 0, fmt.Errorf("bad range start in %q", atom)
			}
			if hi, err = strconv.Atoi(hiStr); err != nil {
				return 0, fmt.Errorf("bad range end in %q", atom)
			}
		default:
			n, err := strconv.Atoi(atom)
			if err != nil {
				return 0, fmt.Errorf("bad value %q", atom)
			}
			if n < min || n > max {
				return 0, fmt.Errorf("value %d outside [%d,%d]", n, min, max)
			}
			lo = n
			if step == 1 {
				hi = n
			}
		}

		for v := lo; v <= hi; v += step {
			if v >= min && v <= max {
				mask |= 1 << uint(v)
			}
		}
	}
	if mask == 0 {
		return 0, fmt.Errorf("no values selected by %q", field)
	}
	return mask, nil
}

// String returns the expression as written.
func (ce *CronExpression) String() string {
	return ce.raw
}

// Next returns the first minute boundary after t that matches the
// expression, or the zero time if none exists within a year.
func (ce *CronExpression) Next(after time.Time) time.Time {
	t := after.Truncate(time.Minute).Add(time.Minute)

	// Scanning minute by minute is plenty fast for job-table density and
	// sidesteps the day-of-month vs day-of-week union rules.
	limit := t.AddDate(1, 0, 1)
	for t.Before(limit) {
		if ce.matches(t) {
			return t
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}
}

func (ce *CronExpression) matches(t time.Time) bool {
	return ce.minutes&(1<<uint(t.Minute())) != 0 &&
		ce.hours&(1<<uint(t.Hour())) != 0 &&
		ce.days&(1<<uint(t.Day())) != 0 &&
		ce.months&(1<<uint(t.Month())) != 0 &&
		ce.weekdays&(1<<uint(t.Weekday())) != 0
}
