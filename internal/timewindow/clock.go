package timewindow

import (
	"fmt"
	"strconv"
	"strings"
)

// Clock is a local time-of-day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM" (24h).
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return Clock{}, fmt.Errorf("invalid clock %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return Clock{}, fmt.Errorf("invalid clock %q: hour must be 0-23", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return Clock{}, fmt.Errorf("invalid clock %q: minute must be 0-59", s)
	}
	return Clock{Hour: h, Minute: m}, nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// CronSpec returns a five-field cron expression firing daily at c.
func (c Clock) CronSpec() string {
	return fmt.Sprintf("%d %d * * *", c.Minute, c.Hour)
}

func (c Clock) minutes() int {
	return c.Hour*60 + c.Minute
}
