package core

import (
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"
)

// defaultHorizonYears bounds the expansion of rules that carry no end date.
// A rule without an end date is conceptually an infinite stream; the horizon
// truncates it for practical display.
const defaultHorizonYears = 2

// Expand turns a recurrence rule anchored at anchor into the ordered, finite
// sequence of occurrence dates, bounded inclusively by the rule's end date
// when it has one and by horizon otherwise. Dates the target
// month or year does not contain (day 31 in a 30-day month, Feb 29 outside
// leap years) are skipped entirely, never clamped or rolled forward.
// Exception dates are subtracted before the sequence is handed back.
func Expand(rule RecurrenceRule, anchor time.Time, horizon time.Time, exceptions []time.Time) ([]time.Time, error) {
	if err := ValidateRule(rule); err != nil {
		return nil, err
	}

	anchor = DayOf(anchor)

	if !rule.IsRecurring() {
		if dateIn(exceptions, anchor) {
			return []time.Time{}, nil
		}

		return []time.Time{anchor}, nil
	}

	// The rule's own end date always bounds the sequence; the horizon is the
	// fallback for open-ended rules and additionally truncates for display.
	var bound time.Time

	switch {
	case horizon.IsZero() && rule.Until != nil:
		bound = DayOf(*rule.Until)
	case horizon.IsZero():
		bound = anchor.AddDate(defaultHorizonYears, 0, 0)
	default:
		bound = DayOf(horizon)
		if rule.Until != nil && DayOf(*rule.Until).Before(bound) {
			bound = DayOf(*rule.Until)
		}
	}

	opt := rrule.ROption{
		Interval: rule.Interval,
		Dtstart:  anchor,
	}

	switch rule.Kind {
	case KindDaily:
		opt.Freq = rrule.DAILY
	case KindWeekly:
		opt.Freq = rrule.WEEKLY
	case KindMonthly:
		opt.Freq = rrule.MONTHLY
		opt.Bymonthday = []int{anchor.Day()}
	case KindYearly:
		opt.Freq = rrule.YEARLY
		opt.Bymonth = []int{int(anchor.Month())}
		opt.Bymonthday = []int{anchor.Day()}
	case KindNone:
		// handled above
	default:
		return nil, fmt.Errorf("unknown recurrence kind %q", rule.Kind)
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("failed to build recurrence rule: %w", err)
	}

	var set rrule.Set
	set.RRule(r)

	for _, ex := range exceptions {
		set.ExDate(DayOf(ex).In(anchor.Location()))
	}

	return set.Between(anchor, bound, true), nil
}

// ProjectOccurrences rebuilds the visible occurrence list from stored rows.
// Rows materialized out of a series (SeriesId set) already stand for exactly
// one occurrence; a row still carrying a live rule without a series tag is
// treated as a master and expanded. Rows whose own day is listed in their
// exception dates yield nothing, which keeps exception-date soft deletion
// and hard row deletion answering the membership question identically.
func ProjectOccurrences(events []Event, view ViewRange) []Occurrence {
	occurrences := make([]Occurrence, 0, len(events))

	for _, ev := range events {
		for _, occ := range occurrencesOf(ev, view.End()) {
			if view.Contains(occ.Date) {
				occurrences = append(occurrences, occ)
			}
		}
	}

	sort.SliceStable(occurrences, func(i, j int) bool {
		return occurrences[i].StartTime.Before(occurrences[j].StartTime)
	})

	return occurrences
}

func occurrencesOf(ev Event, horizon time.Time) []Occurrence {
	if ev.SeriesId != "" || !ev.Recurrence.IsRecurring() {
		if ev.hasException(ev.Day()) {
			return nil
		}

		return []Occurrence{{Event: ev, Date: ev.Day(), SeriesRef: ev.SeriesId}}
	}

	dates, err := Expand(ev.Recurrence, ev.Day(), horizon, ev.ExceptionDates)
	if err != nil {
		// An unexpandable stored rule was rejected at write time; a row that
		// still holds one renders as its anchor only.
		return []Occurrence{{Event: ev, Date: ev.Day(), SeriesRef: ev.Id}}
	}

	startClock := ev.StartTime.Sub(ev.Day())
	endClock := ev.EndTime.Sub(ev.Day())

	occurrences := make([]Occurrence, 0, len(dates))

	for _, date := range dates {
		projected := ev
		projected.StartTime = date.Add(startClock)
		projected.EndTime = date.Add(endClock)

		occurrences = append(occurrences, Occurrence{Event: projected, Date: date, SeriesRef: ev.Id})
	}

	return occurrences
}

func dateIn(dates []time.Time, day time.Time) bool {
	for _, d := range dates {
		if DayOf(d).Equal(day) {
			return true
		}
	}

	return false
}
