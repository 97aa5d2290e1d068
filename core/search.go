package core

import (
	"strings"
	"time"
)

// Start is the first day of the visible window.
func (v ViewRange) Start() time.Time {
	day := DayOf(v.Current)

	switch v.Mode {
	case ViewMonth:
		return time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
	default:
		offset := (int(day.Weekday()) - int(v.WeekStart) + 7) % 7
		return day.AddDate(0, 0, -offset)
	}
}

// End is the last day of the visible window, inclusive.
func (v ViewRange) End() time.Time {
	switch v.Mode {
	case ViewMonth:
		return v.Start().AddDate(0, 1, -1)
	default:
		return v.Start().AddDate(0, 0, 6)
	}
}

// Contains reports whether a date falls inside the visible window.
func (v ViewRange) Contains(date time.Time) bool {
	day := DayOf(date)
	return !day.Before(v.Start()) && !day.After(v.End())
}

// Filter narrows occurrences to those matching the search term and sitting
// inside the visible window. The term match is a case-insensitive substring
// test over title, description and location; an empty (or blank) term matches
// everything. Both filters apply together and the input order is preserved.
func Filter(occurrences []Occurrence, term string, view ViewRange) []Occurrence {
	term = strings.ToLower(strings.TrimSpace(term))

	matched := make([]Occurrence, 0, len(occurrences))

	for _, occ := range occurrences {
		if !view.Contains(occ.Date) {
			continue
		}

		if term != "" && !matchesTerm(occ, term) {
			continue
		}

		matched = append(matched, occ)
	}

	return matched
}

func matchesTerm(occ Occurrence, term string) bool {
	for _, field := range []string{occ.Title, occ.Description, occ.Location} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}

	return false
}
