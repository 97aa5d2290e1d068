package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Engine is the presentation boundary of the scheduling core. All operations
// run synchronously against an in-memory read projection of the stored rows;
// every mutation goes through the persistence collaborator and is followed by
// a re-read, the engine never patches its own projection and calls it
// authoritative.
type Engine interface {
	Refresh(ctx context.Context) error
	Events() []Event
	GetOccurrences(ctx context.Context, view ViewRange) ([]Occurrence, error)
	Search(ctx context.Context, term string, view ViewRange) ([]Occurrence, error)
	CheckOverlap(ctx context.Context, draft EventDraft) ([]Event, error)
	CreateEvent(ctx context.Context, draft EventDraft, force bool) ([]Event, error)
	UpdateEvent(ctx context.Context, id string, patch EventPatch, force bool) (*Event, error)
	RequestEdit(ctx context.Context, id string, patch EventPatch) (*ScopeDecisionRequest, error)
	RequestDelete(ctx context.Context, id string) (*ScopeDecisionRequest, error)
	RequestMove(ctx context.Context, id string, newDate time.Time) (*ScopeDecisionRequest, error)
	ApplyScopeDecision(ctx context.Context, singleOnly bool) error
	CancelPending()
	Tick(ctx context.Context, now time.Time) ([]Occurrence, error)
	DueNotifications() []Occurrence
}

type engine struct {
	mu       sync.Mutex
	repo     Repository
	notifier *Notifier

	events  []Event
	fresh   bool
	state   scopeState
	pending *pendingAction
	due     []Occurrence
}

func NewEngine(repo Repository) Engine {
	return &engine{
		repo:     repo,
		notifier: NewNotifier(),
	}
}

// Refresh replaces the read projection with a fresh read of the stored rows.
func (e *engine) Refresh(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.refreshLocked(ctx)
}

func (e *engine) refreshLocked(ctx context.Context) error {
	events, err := e.repo.List(ctx)
	if err != nil {
		e.fresh = false
		return err
	}

	e.events = events
	e.fresh = true

	return nil
}

func (e *engine) ensureLocked(ctx context.Context) error {
	if e.fresh {
		return nil
	}

	return e.refreshLocked(ctx)
}

func (e *engine) Events() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Event, len(e.events))
	copy(out, e.events)

	return out
}

func (e *engine) GetOccurrences(ctx context.Context, view ViewRange) ([]Occurrence, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureLocked(ctx); err != nil {
		return nil, err
	}

	return ProjectOccurrences(e.events, view), nil
}

func (e *engine) Search(ctx context.Context, term string, view ViewRange) ([]Occurrence, error) {
	occurrences, err := e.GetOccurrences(ctx, view)
	if err != nil {
		return nil, err
	}

	return Filter(occurrences, term, view), nil
}

func (e *engine) CheckOverlap(ctx context.Context, draft EventDraft) ([]Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureLocked(ctx); err != nil {
		return nil, err
	}

	return FindOverlaps(draft, e.events), nil
}

// CreateEvent persists a draft. A recurring draft is expanded first and every
// occurrence is written in one atomic batch, all rows sharing a fresh series
// id. Overlap is checked against the anchor occurrence only and surfaces as a
// ConflictError the caller may override with force.
func (e *engine) CreateEvent(ctx context.Context, draft EventDraft, force bool) ([]Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ValidateDraft(draft); err != nil {
		return nil, err
	}

	if err := e.ensureLocked(ctx); err != nil {
		return nil, err
	}

	if conflicts := FindOverlaps(draft, e.events); len(conflicts) > 0 && !force {
		return nil, &ConflictError{Conflicts: conflicts}
	}

	if !draft.Recurrence.IsRecurring() {
		created, err := e.repo.Create(ctx, eventFromDraft(draft, ""))
		if err != nil {
			return nil, err
		}

		_ = e.refreshLocked(ctx)

		return []Event{*created}, nil
	}

	dates, err := Expand(draft.Recurrence, DayOf(draft.StartTime), time.Time{}, nil)
	if err != nil {
		return nil, err
	}

	seriesId := uuid.NewString()
	rows := make([]Event, 0, len(dates))

	startClock := draft.StartTime.Sub(DayOf(draft.StartTime))
	endClock := draft.EndTime.Sub(DayOf(draft.StartTime))

	for _, date := range dates {
		row := *eventFromDraft(draft, seriesId)
		row.StartTime = date.Add(startClock)
		row.EndTime = date.Add(endClock)
		rows = append(rows, row)
	}

	created, err := e.repo.CreateMany(ctx, rows)
	if err != nil {
		return nil, err
	}

	log.Ctx(ctx).Info().Str("series_id", seriesId).Int("occurrences", len(created)).Msg("recurring series created")

	_ = e.refreshLocked(ctx)

	return created, nil
}

// UpdateEvent applies a per-field edit to one row. Time changes are re-tested
// for overlap unless forced. The optimistic local projection is discarded and
// re-read once the write completes either way.
func (e *engine) UpdateEvent(ctx context.Context, id string, patch EventPatch, force bool) (*Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureLocked(ctx); err != nil {
		return nil, err
	}

	target, ok := e.findLocked(id)
	if !ok {
		return nil, ErrEventNotFound
	}

	if !force && (patch.StartTime != nil || patch.EndTime != nil) {
		prospective := draftFromEvent(applyPatch(target, patch))
		if conflicts := FindOverlaps(prospective, e.events); len(conflicts) > 0 {
			return nil, &ConflictError{Conflicts: conflicts}
		}
	}

	updated, err := e.repo.Update(ctx, id, patch)
	if err != nil {
		e.fresh = false
		return nil, err
	}

	e.notifier.Forget(id)

	_ = e.refreshLocked(ctx)

	return updated, nil
}

// Tick evaluates the live event set against now and returns the occurrences
// that newly crossed their reminder threshold. Newly due occurrences are also
// queued for DueNotifications.
func (e *engine) Tick(ctx context.Context, now time.Time) ([]Occurrence, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.refreshLocked(ctx); err != nil {
		return nil, err
	}

	// Two months covers every supported reminder lead with room to spare.
	horizon := DayOf(now).AddDate(0, 2, 0)

	occurrences := make([]Occurrence, 0, len(e.events))
	for _, ev := range e.events {
		occurrences = append(occurrences, occurrencesOf(ev, horizon)...)
	}

	due := e.notifier.Tick(now, occurrences)
	e.due = append(e.due, due...)

	return due, nil
}

// DueNotifications drains the queue of occurrences that became due since the
// last drain. Dismissal is the caller's business.
func (e *engine) DueNotifications() []Occurrence {
	e.mu.Lock()
	defer e.mu.Unlock()

	due := e.due
	e.due = nil

	return due
}

func (e *engine) findLocked(id string) (Event, bool) {
	for _, ev := range e.events {
		if ev.Id == id {
			return ev, true
		}
	}

	return Event{}, false
}

func (e *engine) siblingsLocked(seriesId string) []Event {
	siblings := make([]Event, 0)

	for _, ev := range e.events {
		if seriesId != "" && ev.SeriesId == seriesId {
			siblings = append(siblings, ev)
		}
	}

	return siblings
}

func eventFromDraft(draft EventDraft, seriesId string) *Event {
	rule := draft.Recurrence
	if !rule.IsRecurring() {
		rule = NoRecurrence()
	}

	return &Event{
		Id:                  draft.Id,
		Title:               draft.Title,
		Description:         draft.Description,
		Location:            draft.Location,
		Category:            draft.Category,
		StartTime:           draft.StartTime,
		EndTime:             draft.EndTime,
		Recurrence:          rule,
		ReminderLeadMinutes: draft.ReminderLeadMinutes,
		SeriesId:            seriesId,
	}
}

func draftFromEvent(ev Event) EventDraft {
	return EventDraft{
		Id:                  ev.Id,
		Title:               ev.Title,
		Description:         ev.Description,
		Location:            ev.Location,
		Category:            ev.Category,
		StartTime:           ev.StartTime,
		EndTime:             ev.EndTime,
		Recurrence:          ev.Recurrence,
		ReminderLeadMinutes: ev.ReminderLeadMinutes,
	}
}

func applyPatch(ev Event, patch EventPatch) Event {
	if patch.Title != nil {
		ev.Title = *patch.Title
	}
	if patch.Description != nil {
		ev.Description = *patch.Description
	}
	if patch.Location != nil {
		ev.Location = *patch.Location
	}
	if patch.Category != nil {
		ev.Category = *patch.Category
	}
	if patch.StartTime != nil {
		ev.StartTime = *patch.StartTime
	}
	if patch.EndTime != nil {
		ev.EndTime = *patch.EndTime
	}
	if patch.Recurrence != nil {
		ev.Recurrence = *patch.Recurrence
	}
	if patch.ReminderLeadMinutes != nil {
		ev.ReminderLeadMinutes = *patch.ReminderLeadMinutes
	}
	if patch.ClearSeries {
		ev.SeriesId = ""
		ev.Recurrence = NoRecurrence()
	}

	return ev
}
