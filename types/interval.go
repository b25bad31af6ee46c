package types

import (
	"fmt"
	"time"
)

type Interval string

const (
	OneMinute      Interval = "1"
	FiveMinutes    Interval = "5"
	FifteenMinutes Interval = "15"
	ThirtyMinutes  Interval = "30"
	Hour           Interval = "60"
	FourHours      Interval = "240"
	Day            Interval = "D"
	Week           Interval = "W"
)

var IntervalToTime = map[Interval]time.Duration{
	OneMinute:      time.Minute,
	FiveMinutes:    time.Minute * 5,
	FifteenMinutes: time.Minute * 15,
	ThirtyMinutes:  time.Minute * 30,
	Hour:           time.Hour,
	FourHours:      time.Hour * 4,
	Day:            time.Hour * 24,
	Week:           time.Hour * 24 * 7,
}

// Duration returns the length of one bar, defaulting to a day for unknown intervals.
func (i Interval) Duration() time.Duration {
	if d, ok := IntervalToTime[i]; ok {
		return d
	}
	return 24 * time.Hour
}

func ParseInterval(s string) (Interval, error) {
	i := Interval(s)
	if _, ok := IntervalToTime[i]; !ok {
		return "", fmt.Errorf("interval %q: %w", s, ErrUnknownInterval)
	}
	return i, nil
}
