package drift

import (
	"fmt"
	"strings"

	"github.com/openfroyo/deckhand/pkg/engine"
)

// Schedule is a crontab expression split into the structured schedule the
// server stores.
type Schedule struct {
	Seconds string
	Minute  string
	Hour    string
	Month   string

	// Exactly one of DayOfMonth and Weekday is set.
	DayOfMonth string
	Weekday    string

	Year string
}

// ParseCrontab splits "sec min hour day-of-month month day-of-week [year]".
// Day of month is used when day of week is "?", weekday otherwise.
func ParseCrontab(expr string) (Schedule, error) {
	f := strings.Fields(expr)
	if len(f) != 6 && len(f) != 7 {
		return Schedule{}, engine.NewValidationError(
			fmt.Sprintf("crontab %q must have 6 or 7 fields, got %d", expr, len(f)), nil).
			WithOperation("normalize")
	}

	s := Schedule{
		Seconds: f[0],
		Minute:  f[1],
		Hour:    f[2],
		Month:   f[4],
	}
	if f[5] == "?" {
		s.DayOfMonth = f[3]
	} else {
		s.Weekday = f[5]
	}
	if len(f) == 7 {
		s.Year = f[6]
	}
	return s, nil
}
