package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timedEvent(id string, day time.Time, startHour, startMin, endHour, endMin int) Event {
	return Event{
		Id:        id,
		Title:     "event " + id,
		StartTime: day.Add(time.Duration(startHour)*time.Hour + time.Duration(startMin)*time.Minute),
		EndTime:   day.Add(time.Duration(endHour)*time.Hour + time.Duration(endMin)*time.Minute),
	}
}

func TestFindOverlaps(t *testing.T) {
	t.Parallel()

	day := date(2024, 6, 1)
	otherDay := date(2024, 6, 2)

	existing := []Event{
		timedEvent("a", day, 9, 0, 10, 0),
		timedEvent("b", day, 10, 0, 11, 0),
		timedEvent("c", otherDay, 9, 0, 10, 0),
	}

	tests := []struct {
		name      string
		candidate EventDraft
		wantIds   []string
	}{
		{
			name:      "partial overlap conflicts",
			candidate: draftFromEvent(timedEvent("", day, 9, 30, 10, 30)),
			wantIds:   []string{"a", "b"},
		},
		{
			name:      "back to back does not conflict",
			candidate: draftFromEvent(timedEvent("", day, 10, 0, 11, 0)),
			wantIds:   []string{"b"},
		},
		{
			name:      "containment conflicts",
			candidate: draftFromEvent(timedEvent("", day, 8, 0, 12, 0)),
			wantIds:   []string{"a", "b"},
		},
		{
			name:      "same times on another day do not conflict",
			candidate: draftFromEvent(timedEvent("", date(2024, 6, 3), 9, 0, 10, 0)),
			wantIds:   []string{},
		},
		{
			name:      "editing excludes the event itself",
			candidate: draftFromEvent(timedEvent("a", day, 9, 0, 10, 0)),
			wantIds:   []string{},
		},
		{
			name:      "editing still sees other conflicts",
			candidate: draftFromEvent(timedEvent("a", day, 9, 30, 10, 30)),
			wantIds:   []string{"b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := FindOverlaps(tt.candidate, existing)

			ids := make([]string, 0, len(got))
			for _, ev := range got {
				ids = append(ids, ev.Id)
			}

			assert.Equal(t, tt.wantIds, ids)
		})
	}
}

func TestFindOverlaps_Symmetry(t *testing.T) {
	t.Parallel()

	day := date(2024, 6, 1)
	a := timedEvent("a", day, 9, 0, 10, 30)
	b := timedEvent("b", day, 10, 0, 11, 0)

	abConflicts := FindOverlaps(draftFromEvent(a), []Event{b})
	baConflicts := FindOverlaps(draftFromEvent(b), []Event{a})

	require.Len(t, abConflicts, 1)
	require.Len(t, baConflicts, 1)
}

func TestFindOverlaps_RecurringCandidateAnchorOnly(t *testing.T) {
	t.Parallel()

	// The existing event sits a week after the candidate's anchor. A weekly
	// candidate would collide there, but only the anchor occurrence counts.
	existing := []Event{timedEvent("later", date(2024, 6, 8), 9, 0, 10, 0)}

	candidate := draftFromEvent(timedEvent("", date(2024, 6, 1), 9, 0, 10, 0))
	candidate.Recurrence = RecurrenceRule{Kind: KindWeekly, Interval: 1}

	assert.Empty(t, FindOverlaps(candidate, existing))
}
