package core

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// ActionKind names the user action waiting on a scope decision.
type ActionKind string

const (
	ActionEdit   ActionKind = "edit"
	ActionDelete ActionKind = "delete"
	ActionMove   ActionKind = "move"
)

type scopeState int

const (
	stateIdle scopeState = iota
	stateAwaitingScopeDecision
	stateCommitting
)

// ScopeDecisionRequest is handed outward when an edit, delete or move hits a
// recurring event. The engine then waits in AwaitingScopeDecision until the
// user answers single-or-series, or abandons the action.
type ScopeDecisionRequest struct {
	Action  ActionKind `json:"action"`
	Target  Event      `json:"target"`
	NewDate *time.Time `json:"new_date,omitempty"`
}

type pendingAction struct {
	kind    ActionKind
	target  Event
	patch   EventPatch
	newDate time.Time
}

// RequestEdit starts an edit of the event with the given id. A non-recurring
// target is patched immediately and nil is returned; a recurring one parks
// the action and returns the decision request. Unlike UpdateEvent, the action
// path never re-tests overlap: a caller changing times runs CheckOverlap
// first and carries the conflict decision itself, before routing here.
func (e *engine) RequestEdit(ctx context.Context, id string, patch EventPatch) (*ScopeDecisionRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	target, err := e.beginLocked(ctx, id)
	if err != nil {
		return nil, err
	}

	if !target.IsRecurring() {
		if _, err := e.repo.Update(ctx, id, patch); err != nil {
			e.fresh = false
			return nil, err
		}

		e.notifier.Forget(id)
		_ = e.refreshLocked(ctx)

		return nil, nil
	}

	e.pending = &pendingAction{kind: ActionEdit, target: target, patch: patch}
	e.state = stateAwaitingScopeDecision

	return &ScopeDecisionRequest{Action: ActionEdit, Target: target}, nil
}

// RequestDelete starts a delete of the event with the given id, immediate for
// a non-recurring target.
func (e *engine) RequestDelete(ctx context.Context, id string) (*ScopeDecisionRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	target, err := e.beginLocked(ctx, id)
	if err != nil {
		return nil, err
	}

	if !target.IsRecurring() {
		if err := e.repo.Delete(ctx, id); err != nil {
			e.fresh = false
			return nil, err
		}

		e.notifier.Forget(id)
		_ = e.refreshLocked(ctx)

		return nil, nil
	}

	e.pending = &pendingAction{kind: ActionDelete, target: target}
	e.state = stateAwaitingScopeDecision

	return &ScopeDecisionRequest{Action: ActionDelete, Target: target}, nil
}

// RequestMove starts a drag move of the event to a new date, immediate for a
// non-recurring target.
func (e *engine) RequestMove(ctx context.Context, id string, newDate time.Time) (*ScopeDecisionRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	target, err := e.beginLocked(ctx, id)
	if err != nil {
		return nil, err
	}

	newDate = DayOf(newDate)

	if !target.IsRecurring() {
		if _, err := e.repo.Update(ctx, id, movePatch(target, newDate, false)); err != nil {
			e.fresh = false
			return nil, err
		}

		e.notifier.Forget(id)
		_ = e.refreshLocked(ctx)

		return nil, nil
	}

	e.pending = &pendingAction{kind: ActionMove, target: target, newDate: newDate}
	e.state = stateAwaitingScopeDecision

	return &ScopeDecisionRequest{Action: ActionMove, Target: target, NewDate: &newDate}, nil
}

// ApplyScopeDecision resumes the parked action with the user's answer.
// singleOnly detaches and mutates the one target row; otherwise the whole
// series is mutated in a single atomic request. After a series-wide write the
// projection is re-read before the engine returns to idle. A failed commit
// moves back to AwaitingScopeDecision, so the user can retry or cancel; the
// engine itself never retries.
func (e *engine) ApplyScopeDecision(ctx context.Context, singleOnly bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != stateAwaitingScopeDecision || e.pending == nil {
		return ErrNoPendingScope
	}

	e.state = stateCommitting
	pending := e.pending

	err := e.commitLocked(ctx, pending, singleOnly)
	if err != nil {
		e.state = stateAwaitingScopeDecision
		e.fresh = false

		return err
	}

	e.pending = nil
	e.state = stateIdle

	e.notifier.Forget(pending.target.Id)
	for _, sibling := range e.siblingsLocked(pending.target.SeriesId) {
		e.notifier.Forget(sibling.Id)
	}

	log.Ctx(ctx).Info().
		Str("action", string(pending.kind)).
		Str("event_id", pending.target.Id).
		Str("series_id", pending.target.SeriesId).
		Bool("single_only", singleOnly).
		Msg("scope decision committed")

	return e.refreshLocked(ctx)
}

// CancelPending abandons a parked action with zero side effects.
func (e *engine) CancelPending() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pending = nil
	e.state = stateIdle
}

func (e *engine) beginLocked(ctx context.Context, id string) (Event, error) {
	if e.state != stateIdle {
		return Event{}, ErrScopePending
	}

	if err := e.ensureLocked(ctx); err != nil {
		return Event{}, err
	}

	target, ok := e.findLocked(id)
	if !ok {
		// Reconcile: the projection may be stale, the row may be gone.
		if err := e.refreshLocked(ctx); err != nil {
			return Event{}, err
		}

		target, ok = e.findLocked(id)
		if !ok {
			return Event{}, ErrEventNotFound
		}
	}

	return target, nil
}

func (e *engine) commitLocked(ctx context.Context, pending *pendingAction, singleOnly bool) error {
	target := pending.target

	// A recurring row that was never materialized into siblings is a series
	// of one; series-wide actions collapse onto it without detaching.
	seriesOfOne := target.SeriesId == ""

	if !singleOnly && !seriesOfOne && len(e.siblingsLocked(target.SeriesId)) == 0 {
		return ErrSeriesNotFound
	}

	switch pending.kind {
	case ActionEdit:
		if singleOnly {
			patch := pending.patch
			patch.ClearSeries = true

			_, err := e.repo.Update(ctx, target.Id, patch)
			return err
		}

		if seriesOfOne {
			_, err := e.repo.Update(ctx, target.Id, pending.patch.SharedFields())
			return err
		}

		ids := make([]string, 0)
		for _, sibling := range e.siblingsLocked(target.SeriesId) {
			ids = append(ids, sibling.Id)
		}

		_, err := e.repo.UpdateMany(ctx, ids, pending.patch.SharedFields())
		return err

	case ActionDelete:
		if singleOnly || seriesOfOne {
			return e.repo.Delete(ctx, target.Id)
		}

		return e.repo.DeleteBySeries(ctx, target.SeriesId)

	case ActionMove:
		if singleOnly {
			_, err := e.repo.Update(ctx, target.Id, movePatch(target, pending.newDate, true))
			return err
		}

		delta := DaysBetween(target.Day(), pending.newDate)

		if seriesOfOne {
			_, err := e.repo.Update(ctx, target.Id, movePatch(target, pending.newDate, false))
			return err
		}

		_, err := e.repo.ShiftSeries(ctx, target.SeriesId, delta)
		return err
	}

	return ErrNoPendingScope
}

// movePatch shifts the event's date to newDate keeping its start and end
// clocks. detach additionally severs it from its series.
func movePatch(target Event, newDate time.Time, detach bool) EventPatch {
	startClock := target.StartTime.Sub(target.Day())
	endClock := target.EndTime.Sub(target.Day())

	start := newDate.Add(startClock)
	end := newDate.Add(endClock)

	return EventPatch{
		StartTime:   &start,
		EndTime:     &end,
		ClearSeries: detach,
	}
}
