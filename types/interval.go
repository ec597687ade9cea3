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

// ParseInterval accepts the short codes used in config files ("1", "60", "D", ...).
func ParseInterval(s string) (Interval, error) {
	iv := Interval(s)
	if _, ok := IntervalToTime[iv]; !ok {
		return "", fmt.Errorf("unknown interval %q", s)
	}
	return iv, nil
}
