package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// maxScan bounds the forward search for a matching minute. An
// expression with no occurrence inside the window is treated as
// unsatisfiable.
const maxScan = 7 * 24 * time.Hour

// Schedule is a parsed five-field cron expression
// (minute hour day-of-month month day-of-week). All fields must match
// for a minute to fire. Day-of-week runs 1-7 with Sunday as 7; a 0 in
// the expression is accepted and normalized to 7.
type Schedule struct {
	expr    string
	minutes map[int]bool
	hours   map[int]bool
	days    map[int]bool
	months  map[int]bool
	dows    map[int]bool
}

// ParseCron parses a five-field cron expression.
func ParseCron(expr string) (*Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron %q: expected 5 fields, got %d", expr, len(fields))
	}

	s := &Schedule{expr: expr}
	var err error
	if s.minutes, err = parseField(fields[0], 0, 59); err != nil {
		return nil, fmt.Errorf("cron %q: minute: %w", expr, err)
	}
	if s.hours, err = parseField(fields[1], 0, 23); err != nil {
		return nil, fmt.Errorf("cron %q: hour: %w", expr, err)
	}
	if s.days, err = parseField(fields[2], 1, 31); err != nil {
		return nil, fmt.Errorf("cron %q: day of month: %w", expr, err)
	}
	if s.months, err = parseField(fields[3], 1, 12); err != nil {
		return nil, fmt.Errorf("cron %q: month: %w", expr, err)
	}
	if s.dows, err = parseDowField(fields[4]); err != nil {
		return nil, fmt.Errorf("cron %q: day of week: %w", expr, err)
	}
	return s, nil
}

// String returns the original expression.
func (s *Schedule) String() string {
	return s.expr
}

// Matches reports whether the given minute satisfies every field.
func (s *Schedule) Matches(t time.Time) bool {
	dow := int(t.Weekday())
	if dow == 0 {
		dow = 7
	}
	return s.minutes[t.Minute()] &&
		s.hours[t.Hour()] &&
		s.days[t.Day()] &&
		s.months[int(t.Month())] &&
		s.dows[dow]
}

// Next returns the first matching minute strictly after from, scanning
// minute by minute up to the seven-day bound.
func (s *Schedule) Next(from time.Time) (time.Time, error) {
	t := from.Truncate(time.Minute).Add(time.Minute)
	limit := from.Add(maxScan)
	for ; !t.After(limit); t = t.Add(time.Minute) {
		if s.Matches(t) {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cron %q: no occurrence within %s", s.expr, maxScan)
}

// parseField expands one field into its allowed value set. Supported
// forms: *, n, a-b, a,b,c, */n, a-b/n.
func parseField(field string, min, max int) (map[int]bool, error) {
	values := make(map[int]bool)
	for _, part := range strings.Split(field, ",") {
		if err := parsePart(part, min, max, values); err != nil {
			return nil, err
		}
	}
	return values, nil
}

func parsePart(part string, min, max int, values map[int]bool) error {
	step := 1
	if i := strings.IndexByte(part, '/'); i >= 0 {
		n, err := strconv.Atoi(part[i+1:])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid step %q", part)
		}
		step = n
		part = part[:i]
	}

	lo, hi := min, max
	switch {
	case part == "*":
		// full range
	case strings.Contains(part, "-"):
		bounds := strings.SplitN(part, "-", 2)
		a, errA := strconv.Atoi(bounds[0])
		b, errB := strconv.Atoi(bounds[1])
		if errA != nil || errB != nil || a > b {
			return fmt.Errorf("invalid range %q", part)
		}
		lo, hi = a, b
	default:
		n, err := strconv.Atoi(part)
		if err != nil {
			return fmt.Errorf("invalid value %q", part)
		}
		lo, hi = n, n
	}

	if lo < min || hi > max {
		return fmt.Errorf("value %q out of range %d-%d", part, min, max)
	}
	for v := lo; v <= hi; v += step {
		values[v] = true
	}
	return nil
}

// parseDowField parses the day-of-week field on the 0-7 input range
// and normalizes 0 to 7.
func parseDowField(field string) (map[int]bool, error) {
	raw, err := parseField(field, 0, 7)
	if err != nil {
		return nil, err
	}
	values := make(map[int]bool, len(raw))
	for v := range raw {
		if v == 0 {
			v = 7
		}
		values[v] = true
	}
	return values, nil
}
