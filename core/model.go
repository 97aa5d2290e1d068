package core

import "time"

// RecurrenceKind is the closed set of supported recurrence frequencies.
type RecurrenceKind string

const (
	KindNone    RecurrenceKind = "none"
	KindDaily   RecurrenceKind = "daily"
	KindWeekly  RecurrenceKind = "weekly"
	KindMonthly RecurrenceKind = "monthly"
	KindYearly  RecurrenceKind = "yearly"
)

func (k RecurrenceKind) Valid() bool {
	switch k {
	case KindNone, KindDaily, KindWeekly, KindMonthly, KindYearly:
		return true
	}

	return false
}

// RecurrenceRule describes how an event repeats. Kind == KindNone means the
// event is a standalone one; Interval and Until are ignored in that case.
type RecurrenceRule struct {
	Kind     RecurrenceKind `json:"kind"`
	Interval int            `json:"interval,omitempty"`
	Until    *time.Time     `json:"until,omitempty"`
}

func (r RecurrenceRule) IsRecurring() bool {
	return r.Kind != "" && r.Kind != KindNone
}

// NoRecurrence is the rule a detached occurrence ends up with.
func NoRecurrence() RecurrenceRule {
	return RecurrenceRule{Kind: KindNone}
}

// EventDraft is user input that has no identity yet. Id is set only while an
// existing event is being edited, so overlap checks can exclude the event
// itself from the comparison set.
type EventDraft struct {
	Id                  string         `json:"id,omitempty"`
	Title               string         `json:"title,omitempty"`
	Description         string         `json:"description,omitempty"`
	Location            string         `json:"location,omitempty"`
	Category            string         `json:"category,omitempty"`
	StartTime           time.Time      `json:"start_time,omitempty"`
	EndTime             time.Time      `json:"end_time,omitempty"`
	Recurrence          RecurrenceRule `json:"recurrence"`
	ReminderLeadMinutes int            `json:"reminder_lead_minutes,omitempty"`
}

// Event is a persisted row. Series events are stored one row per occurrence,
// every row sharing the same SeriesId. ExceptionDates lists days of the
// series that must not produce a visible occurrence.
type Event struct {
	Id                  string         `json:"id,omitempty"`
	Title               string         `json:"title,omitempty"`
	Description         string         `json:"description,omitempty"`
	Location            string         `json:"location,omitempty"`
	Category            string         `json:"category,omitempty"`
	StartTime           time.Time      `json:"start_time,omitempty"`
	EndTime             time.Time      `json:"end_time,omitempty"`
	Recurrence          RecurrenceRule `json:"recurrence"`
	ReminderLeadMinutes int            `json:"reminder_lead_minutes,omitempty"`
	SeriesId            string         `json:"series_id,omitempty"`
	ExceptionDates      []time.Time    `json:"exception_dates,omitempty"`
	CreatedAt           time.Time      `json:"created_at,omitempty"`
}

// Day is the calendar date the event sits on, at midnight.
func (e Event) Day() time.Time {
	return DayOf(e.StartTime)
}

func (e Event) Duration() time.Duration {
	return e.EndTime.Sub(e.StartTime)
}

func (e Event) IsRecurring() bool {
	return e.SeriesId != "" || e.Recurrence.IsRecurring()
}

func (e Event) hasException(day time.Time) bool {
	for _, ex := range e.ExceptionDates {
		if DayOf(ex).Equal(day) {
			return true
		}
	}

	return false
}

// Occurrence is an Event projected onto one concrete date. Occurrences are
// derived on every projection and never persisted or mutated directly.
type Occurrence struct {
	Event

	Date      time.Time `json:"date"`
	SeriesRef string    `json:"series_ref,omitempty"`
}

// Key identifies one occurrence within a session, for notification dedup.
func (o Occurrence) Key() string {
	return o.Id + "@" + o.Date.Format("2006-01-02")
}

// EventPatch carries the fields of an update; nil fields are left untouched.
type EventPatch struct {
	Title               *string         `json:"title,omitempty"`
	Description         *string         `json:"description,omitempty"`
	Location            *string         `json:"location,omitempty"`
	Category            *string         `json:"category,omitempty"`
	StartTime           *time.Time      `json:"start_time,omitempty"`
	EndTime             *time.Time      `json:"end_time,omitempty"`
	Recurrence          *RecurrenceRule `json:"recurrence,omitempty"`
	ReminderLeadMinutes *int            `json:"reminder_lead_minutes,omitempty"`
	ClearSeries         bool            `json:"clear_series,omitempty"`
}

// SharedFields reduces a patch to the fields a series-wide edit is allowed to
// touch. Dates and times are per occurrence and stay untouched.
func (p EventPatch) SharedFields() EventPatch {
	return EventPatch{
		Title:               p.Title,
		Description:         p.Description,
		Location:            p.Location,
		Category:            p.Category,
		Recurrence:          p.Recurrence,
		ReminderLeadMinutes: p.ReminderLeadMinutes,
	}
}

// ViewMode selects the visible calendar window.
type ViewMode string

const (
	ViewWeek  ViewMode = "week"
	ViewMonth ViewMode = "month"
)

// ViewRange is the currently displayed window: the week or month containing
// Current, with weeks starting on WeekStart.
type ViewRange struct {
	Mode      ViewMode     `json:"mode"`
	Current   time.Time    `json:"current"`
	WeekStart time.Weekday `json:"week_start"`
}

// DayOf truncates a timestamp to its calendar date at midnight.
func DayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DaysBetween is the whole-day delta from a to b, the drag distance of a
// series move.
func DaysBetween(a, b time.Time) int {
	return int(DayOf(b).Sub(DayOf(a)).Hours() / 24)
}
