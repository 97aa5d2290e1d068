package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reminderOccurrence(id string, start time.Time, leadMinutes int) Occurrence {
	return Occurrence{
		Event: Event{
			Id:                  id,
			Title:               "event " + id,
			StartTime:           start,
			EndTime:             start.Add(time.Hour),
			ReminderLeadMinutes: leadMinutes,
		},
		Date: DayOf(start),
	}
}

func TestNotifier_Tick(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	t.Run("fires inside the due window", func(t *testing.T) {
		t.Parallel()

		n := NewNotifier()
		occ := reminderOccurrence("a", start, 10)

		assert.Empty(t, n.Tick(start.Add(-11*time.Minute), []Occurrence{occ}))

		due := n.Tick(start.Add(-10*time.Minute), []Occurrence{occ})
		require.Len(t, due, 1)
		assert.Equal(t, "a", due[0].Id)
	})

	t.Run("never fires twice within the window", func(t *testing.T) {
		t.Parallel()

		n := NewNotifier()
		occ := reminderOccurrence("a", start, 10)

		require.Len(t, n.Tick(start.Add(-5*time.Minute), []Occurrence{occ}), 1)
		assert.Empty(t, n.Tick(start.Add(-4*time.Minute), []Occurrence{occ}))
		assert.Empty(t, n.Tick(start.Add(-time.Minute), []Occurrence{occ}))
	})

	t.Run("never fires late", func(t *testing.T) {
		t.Parallel()

		n := NewNotifier()
		occ := reminderOccurrence("a", start, 10)

		assert.Empty(t, n.Tick(start, []Occurrence{occ}))
		assert.Empty(t, n.Tick(start.Add(time.Minute), []Occurrence{occ}))
	})

	t.Run("no lead means no reminder", func(t *testing.T) {
		t.Parallel()

		n := NewNotifier()
		occ := reminderOccurrence("a", start, 0)

		assert.Empty(t, n.Tick(start.Add(-time.Minute), []Occurrence{occ}))
	})

	t.Run("everything due in one tick comes back together", func(t *testing.T) {
		t.Parallel()

		n := NewNotifier()
		occs := []Occurrence{
			reminderOccurrence("a", start, 30),
			reminderOccurrence("b", start.Add(5*time.Minute), 30),
			reminderOccurrence("c", start.Add(2*time.Hour), 30),
		}

		due := n.Tick(start.Add(-10*time.Minute), occs)
		require.Len(t, due, 2)
		assert.Equal(t, "a", due[0].Id)
		assert.Equal(t, "b", due[1].Id)
	})

	t.Run("same event on different dates fires once per date", func(t *testing.T) {
		t.Parallel()

		n := NewNotifier()
		first := reminderOccurrence("a", start, 10)
		second := reminderOccurrence("a", start.AddDate(0, 0, 7), 10)

		require.Len(t, n.Tick(start.Add(-5*time.Minute), []Occurrence{first, second}), 1)

		due := n.Tick(second.StartTime.Add(-5*time.Minute), []Occurrence{first, second})
		require.Len(t, due, 1)
		assert.Equal(t, second.Date, due[0].Date)
	})
}

func TestNotifier_Forget(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	n := NewNotifier()
	occ := reminderOccurrence("a", start, 10)
	other := reminderOccurrence("b", start, 10)

	now := start.Add(-5 * time.Minute)

	require.Len(t, n.Tick(now, []Occurrence{occ, other}), 2)

	// An edit clears the record of the edited event only.
	n.Forget("a")

	due := n.Tick(now, []Occurrence{occ, other})
	require.Len(t, due, 1)
	assert.Equal(t, "a", due[0].Id)
}

func TestNotifier_Reset(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	n := NewNotifier()
	occ := reminderOccurrence("a", start, 10)

	require.Len(t, n.Tick(start.Add(-5*time.Minute), []Occurrence{occ}), 1)

	n.Reset()

	require.Len(t, n.Tick(start.Add(-4*time.Minute), []Occurrence{occ}), 1)
}
