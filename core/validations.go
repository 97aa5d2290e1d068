package core

import (
	"fmt"
	"strings"
)

func ValidateDraft(draft EventDraft) error {
	draft.Title = strings.TrimSpace(draft.Title)
	if len(draft.Title) == 0 {
		return invalid("title is required")
	}

	if len(draft.Title) > 100 {
		return invalid("title is too long (100 characters tops)")
	}

	if draft.StartTime.IsZero() || draft.EndTime.IsZero() {
		return invalid("start and end time are required")
	}

	if !draft.EndTime.After(draft.StartTime) {
		return invalid("end time must be after start time")
	}

	if !DayOf(draft.StartTime).Equal(DayOf(draft.EndTime)) {
		return invalid("an event must start and end on the same day")
	}

	if draft.ReminderLeadMinutes < 0 {
		return invalid("reminder lead must not be negative")
	}

	return ValidateRule(draft.Recurrence)
}

func ValidateRule(rule RecurrenceRule) error {
	if rule.Kind != "" && !rule.Kind.Valid() {
		return invalid("unknown recurrence kind")
	}

	if !rule.IsRecurring() {
		return nil
	}

	if rule.Interval <= 0 {
		return invalid("recurrence interval must be a positive integer")
	}

	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalid, msg)
}
