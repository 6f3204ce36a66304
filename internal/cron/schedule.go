package cron

import (
	"fmt"
	"strings"
	"time"
)

// nextFunc returns the next fire time strictly after now.
type nextFunc func(now time.Time) time.Time

func parseSchedule(expr string) (nextFunc, error) {
	expr = strings.TrimSpace(expr)
	switch {
	case strings.HasPrefix(expr, "@every "):
		d, err := parseEvery(expr)
		if err != nil {
			return nil, err
		}
		return func(now time.Time) time.Time { return now.Add(d) }, nil
	case strings.HasPrefix(expr, "@daily "):
		h, m, err := parseDaily(expr)
		if err != nil {
			return nil, err
		}
		return func(now time.Time) time.Time { return nextDaily(now, h, m) }, nil
	default:
		return nil, fmt.Errorf("unsupported schedule: %q (use @every <duration> or @daily HH:MM)", expr)
	}
}

// parseEvery parses schedules of the form "@every <duration>".
func parseEvery(expr string) (time.Duration, error) {
	durStr := strings.TrimSpace(strings.TrimPrefix(expr, "@every "))
	d, err := time.ParseDuration(durStr)
	if err != nil {
		return 0, fmt.Errorf("invalid @every duration: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("@every duration must be > 0")
	}
	return d, nil
}

// parseDaily parses "@daily HH:MM" (24-hour clock).
func parseDaily(expr string) (hour, minute int, err error) {
	v := strings.TrimSpace(strings.TrimPrefix(expr, "@daily "))
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid @daily time %q: want HH:MM", v)
	}
	return t.Hour(), t.Minute(), nil
}

func nextDaily(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
