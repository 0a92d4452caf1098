package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const MinutesPerDay = 24 * 60

var ErrInvalidClockTime = errors.New("invalid clock time")

// ClockTime is a wall-clock time of day in minutes since midnight.
type ClockTime int

// ParseClockTime parses a fixed-width 24h "HH:MM" string.
func ParseClockTime(s string) (ClockTime, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClockTime, s)
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClockTime, s)
	}
	return ClockTime(t.Hour()*60 + t.Minute()), nil
}

func MustClockTime(s string) ClockTime {
	c, err := ParseClockTime(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c ClockTime) Minutes() int {
	return int(c)
}

func (c ClockTime) Add(minutes int) ClockTime {
	return c + ClockTime(minutes)
}

// String renders the time as "HH:MM". Values past midnight keep counting hours.
func (c ClockTime) String() string {
	m := int(c)
	if m < 0 {
		m = 0
	}
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseClockTime(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
