package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// VerifyWindowConfig restricts public verification to business hours:
// the listed weekdays, from StartHour (inclusive) to EndHour (exclusive)
// in Location.
type VerifyWindowConfig struct {
	Enabled   bool
	Days      map[time.Weekday]bool
	StartHour int
	EndHour   int
	Location  *time.Location
}

// Open reports whether t falls inside the window. A disabled window is
// always open.
func (w VerifyWindowConfig) Open(t time.Time) bool {
	if !w.Enabled {
		return true
	}
	loc := w.Location
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return w.Days[t.Weekday()] && t.Hour() >= w.StartHour && t.Hour() < w.EndHour
}

// LoadVerifyWindowConfig reads VERIFY_WINDOW_ENABLED, VERIFY_WINDOW_DAYS
// ("mon-fri", "mon,wed,fri"), VERIFY_WINDOW_HOURS ("8-18") and
// VERIFY_WINDOW_TZ. Unparseable values keep the defaults.
func LoadVerifyWindowConfig() VerifyWindowConfig {
	w := VerifyWindowConfig{
		Enabled:   envBool("VERIFY_WINDOW_ENABLED", false),
		StartHour: 8,
		EndHour:   18,
		Location:  time.UTC,
	}
	days, err := ParseWeekdays(envStr("VERIFY_WINDOW_DAYS", "mon-fri"))
	if err != nil {
		days, _ = ParseWeekdays("mon-fri")
	}
	w.Days = days
	if start, end, err := ParseHourRange(envStr("VERIFY_WINDOW_HOURS", "8-18")); err == nil {
		w.StartHour, w.EndHour = start, end
	}
	if loc, err := time.LoadLocation(envStr("VERIFY_WINDOW_TZ", "America/Lima")); err == nil {
		w.Location = loc
	}
	return w
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
	"dom": time.Sunday, "lun": time.Monday, "mar": time.Tuesday, "mie": time.Wednesday,
	"jue": time.Thursday, "vie": time.Friday, "sab": time.Saturday,
}

// ParseWeekdays accepts comma separated names or ranges such as "mon-fri".
func ParseWeekdays(s string) (map[time.Weekday]bool, error) {
	out := map[time.Weekday]bool{}
	for _, part := range strings.Split(strings.ToLower(s), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		from, to, isRange := strings.Cut(part, "-")
		a, ok := weekdayNames[strings.TrimSpace(from)]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", from)
		}
		b := a
		if isRange {
			if b, ok = weekdayNames[strings.TrimSpace(to)]; !ok {
				return nil, fmt.Errorf("unknown weekday %q", to)
			}
		}
		for d := a; ; d = (d + 1) % 7 {
			out[d] = true
			if d == b {
				break
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no weekdays in %q", s)
	}
	return out, nil
}

// ParseHourRange parses "8-18" into [8, 18).
func ParseHourRange(s string) (int, int, error) {
	from, to, ok := strings.Cut(s, "-")
	if !ok {
		return 0, 0, fmt.Errorf("hour range %q: want start-end", s)
	}
	start, err1 := strconv.Atoi(strings.TrimSpace(from))
	end, err2 := strconv.Atoi(strings.TrimSpace(to))
	if err1 != nil || err2 != nil || start < 0 || end > 24 || start >= end {
		return 0, 0, fmt.Errorf("hour range %q: invalid", s)
	}
	return start, end, nil
}
