package core

// FindOverlaps returns the stored events that collide with the candidate:
// same calendar date and intersecting [start, end) intervals. Back-to-back
// events do not collide. A candidate carrying an id skips the stored row with
// that id, so editing an event never conflicts with itself. For a recurring
// candidate only the anchor occurrence is checked; future occurrences are not
// re-tested. The result preserves the order of existing.
func FindOverlaps(candidate EventDraft, existing []Event) []Event {
	conflicts := make([]Event, 0)

	day := DayOf(candidate.StartTime)

	for _, other := range existing {
		if candidate.Id != "" && candidate.Id == other.Id {
			continue
		}

		if !other.Day().Equal(day) {
			continue
		}

		if candidate.StartTime.Before(other.EndTime) && other.StartTime.Before(candidate.EndTime) {
			conflicts = append(conflicts, other)
		}
	}

	return conflicts
}
