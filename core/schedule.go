package core

import (
	"sync"
	"time"
)

// Notifier decides which occurrences have newly crossed their reminder
// threshold. It owns the fired set itself: identities are recorded once due
// and only forgotten when the underlying event is edited, deleted or
// recreated, so a stale reminder can never survive a change of its time.
type Notifier struct {
	mu    sync.Mutex
	fired map[string]struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{fired: make(map[string]struct{})}
}

// Tick returns the occurrences that are due at now and have not fired before.
// An occurrence is due while start-lead <= now < start; once its start time
// has passed it never fires, a reminder is not shown late. Occurrences with
// no reminder lead never fire. Everything due in the same tick is returned
// together; display ordering and dismissal belong to the caller.
func (n *Notifier) Tick(now time.Time, occurrences []Occurrence) []Occurrence {
	n.mu.Lock()
	defer n.mu.Unlock()

	due := make([]Occurrence, 0)

	for _, occ := range occurrences {
		if occ.ReminderLeadMinutes <= 0 {
			continue
		}

		trigger := occ.StartTime.Add(-time.Duration(occ.ReminderLeadMinutes) * time.Minute)
		if now.Before(trigger) || !now.Before(occ.StartTime) {
			continue
		}

		if _, seen := n.fired[occ.Key()]; seen {
			continue
		}

		n.fired[occ.Key()] = struct{}{}
		due = append(due, occ)
	}

	return due
}

// Forget clears the fired record of every occurrence of the given event, so
// an edited or recreated event becomes eligible again under its new times.
func (n *Notifier) Forget(eventId string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	prefix := eventId + "@"
	for key := range n.fired {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(n.fired, key)
		}
	}
}

// Reset drops all fired records, the start of a fresh session.
func (n *Notifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.fired = make(map[string]struct{})
}
