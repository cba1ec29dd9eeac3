package workflow

import (
	"fmt"
	"time"
)

// Day selects the publication day relative to the moment of scheduling.
type Day int

const (
	Today Day = iota
	Tomorrow
)

func (d Day) String() string {
	switch d {
	case Today:
		return "today"
	case Tomorrow:
		return "tomorrow"
	default:
		return fmt.Sprintf("Day(%d)", int(d))
	}
}

// ParseDay decodes "today" or "tomorrow".
func ParseDay(s string) (Day, error) {
	switch s {
	case "today":
		return Today, nil
	case "tomorrow":
		return Tomorrow, nil
	default:
		return 0, fmt.Errorf("unknown day %q", s)
	}
}

// PublicationTime returns hour:00 on the chosen day, as seen in loc, normalized to UTC.
// "Today" is taken at the moment the plan is scheduled even if that hour already passed,
// in which case the plan becomes due on the next scan.
func PublicationTime(now time.Time, loc *time.Location, hour int, day Day) time.Time {
	local := now.In(loc)
	y, m, d := local.Date()
	if day == Tomorrow {
		d++
	}
	return time.Date(y, m, d, hour, 0, 0, 0, loc).UTC()
}
