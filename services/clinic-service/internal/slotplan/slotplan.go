// Package slotplan turns an admin's bulk slot request into the hours to insert.
package slotplan

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

const (
	DateLayout = "2006-01-02"
	// MaxRangeDays bounds list queries.
	MaxRangeDays = 92
)

var (
	ErrInvalidDate  = errors.New("date must be YYYY-MM-DD")
	ErrNoHours      = errors.New("at least one hour is required")
	ErrInvalidRange = errors.New("invalid date range")
)

type HourError struct {
	Hour int
}

func (e *HourError) Error() string {
	return fmt.Sprintf("hour %d out of range 0..23", e.Hour)
}

// Plan validates hours for date and returns them sorted and deduplicated,
// dropping hours whose start is already before now in loc.
func Plan(date string, hours []int, now time.Time, loc *time.Location) ([]int, error) {
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return nil, ErrInvalidDate
	}
	if len(hours) == 0 {
		return nil, ErrNoHours
	}

	seen := make(map[int]struct{}, len(hours))
	out := make([]int, 0, len(hours))
	for _, h := range hours {
		if h < 0 || h > 23 {
			return nil, &HourError{Hour: h}
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		start := time.Date(day.Year(), day.Month(), day.Day(), h, 0, 0, 0, loc)
		if start.Before(now) {
			continue
		}
		out = append(out, h)
	}
	sort.Ints(out)
	return out, nil
}

// Range resolves optional from/to query values. An empty from means today and
// an empty to means from plus 30 days.
func Range(from, to string, now time.Time, loc *time.Location) (string, string, error) {
	if loc == nil {
		loc = time.UTC
	}
	start := now.In(loc)
	if from != "" {
		t, err := time.ParseInLocation(DateLayout, from, loc)
		if err != nil {
			return "", "", ErrInvalidDate
		}
		start = t
	}
	end := start.AddDate(0, 0, 30)
	if to != "" {
		t, err := time.ParseInLocation(DateLayout, to, loc)
		if err != nil {
			return "", "", ErrInvalidDate
		}
		end = t
	}
	startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, loc)
	if endDay.Before(startDay) || endDay.Sub(startDay) > MaxRangeDays*24*time.Hour {
		return "", "", ErrInvalidRange
	}
	return startDay.Format(DateLayout), endDay.Format(DateLayout), nil
}
