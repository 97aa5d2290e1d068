package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func standupSeries(day time.Time) []Event {
	return []Event{
		seriesEvent("s-1", "series-1", day),
		seriesEvent("s-2", "series-1", day.AddDate(0, 0, 7)),
		seriesEvent("s-3", "series-1", day.AddDate(0, 0, 14)),
	}
}

func TestEngine_RequestEdit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	day := date(2024, time.June, 3)

	t.Run("non-recurring target commits immediately", func(t *testing.T) {
		t.Parallel()

		target := singleEvent("uuid-1", day)

		mockRepo := new(MockRepository)
		mockRepo.On("List", mock.Anything).Return([]Event{target}, nil)

		title := "renamed"
		mockRepo.On("Update", mock.Anything, "uuid-1", EventPatch{Title: &title}).Return(&target, nil)

		e := NewEngine(mockRepo)

		req, err := e.RequestEdit(ctx, "uuid-1", EventPatch{Title: &title})

		require.NoError(t, err)
		assert.Nil(t, req)
		mockRepo.AssertExpectations(t)
	})

	t.Run("recurring target parks and asks for scope", func(t *testing.T) {
		t.Parallel()

		mockRepo := new(MockRepository)
		mockRepo.On("List", mock.Anything).Return(standupSeries(day), nil)

		e := NewEngine(mockRepo)

		title := "renamed"
		req, err := e.RequestEdit(ctx, "s-2", EventPatch{Title: &title})

		require.NoError(t, err)
		require.NotNil(t, req)
		assert.Equal(t, ActionEdit, req.Action)
		assert.Equal(t, "s-2", req.Target.Id)
		mockRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown id after a reconcile read", func(t *testing.T) {
		t.Parallel()

		mockRepo := new(MockRepository)
		mockRepo.On("List", mock.Anything).Return([]Event{}, nil)

		e := NewEngine(mockRepo)

		_, err := e.RequestEdit(ctx, "missing", EventPatch{})

		require.ErrorIs(t, err, ErrEventNotFound)
	})

	t.Run("second request while one is parked", func(t *testing.T) {
		t.Parallel()

		mockRepo := new(MockRepository)
		mockRepo.On("List", mock.Anything).Return(standupSeries(day), nil)

		e := NewEngine(mockRepo)

		_, err := e.RequestDelete(ctx, "s-1")
		require.NoError(t, err)

		_, err = e.RequestEdit(ctx, "s-2", EventPatch{})
		require.ErrorIs(t, err, ErrScopePending)
	})
}

func TestEngine_ApplyScopeDecision(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	day := date(2024, time.June, 3)
	title := "renamed"

	t.Run("edit single detaches the occurrence", func(t *testing.T) {
		t.Parallel()

		mockRepo := new(MockRepository)
		mockRepo.On("List", mock.Anything).Return(standupSeries(day), nil)

		detached := seriesEvent("s-2", "", day.AddDate(0, 0, 7))
		mockRepo.On("Update", mock.Anything, "s-2", mock.MatchedBy(func(patch EventPatch) bool {
			return patch.ClearSeries && patch.Title != nil && *patch.Title == title
		})).Return(&detached, nil)

		e := NewEngine(mockRepo)

		_, err := e.RequestEdit(ctx, "s-2", EventPatch{Title: &title})
		require.NoError(t, err)

		require.NoError(t, e.ApplyScopeDecision(ctx, true))
		mockRepo.AssertExpectations(t)
	})

	t.Run("edit all patches shared fields across the series", func(t *testing.T) {
		t.Parallel()

		newStart := day.Add(14 * time.Hour)

		mockRepo := new(MockRepository)
		mockRepo.On("List", mock.Anything).Return(standupSeries(day), nil)

		mockRepo.On("UpdateMany", mock.Anything, []string{"s-1", "s-2", "s-3"},
			mock.MatchedBy(func(patch EventPatch) bool {
				// Per-occurrence times never travel with a series-wide edit.
				return patch.StartTime == nil && patch.Title != nil && *patch.Title == title
			})).Return(standupSeries(day), nil)

		e := NewEngine(mockRepo)

		_, err := e.RequestEdit(ctx, "s-2", EventPatch{Title: &title, StartTime: &newStart})
		require.NoError(t, err)

		require.NoError(t, e.ApplyScopeDecision(ctx, false))
		mockRepo.AssertExpectations(t)
	})

	t.Run("delete single removes one row", func(t *testing.T) {
		t.Parallel()

		mockRepo := new(MockRepository)
		mockRepo.On("List", mock.Anything).Return(standupSeries(day), nil)
		mockRepo.On("Delete", mock.Anything, "s-2").Return(nil)

		e := NewEngine(mockRepo)

		_, err := e.RequestDelete(ctx, "s-2")
		require.NoError(t, err)

		require.NoError(t, e.ApplyScopeDecision(ctx, true))
		mockRepo.AssertExpectations(t)
		mockRepo.AssertNotCalled(t, "DeleteBySeries", mock.Anything, mock.Anything)
	})

	t.Run("delete all removes the series", func(t *testing.T) {
		t.Parallel()

		mockRepo := new(MockRepository)
		mockRepo.On("List", mock.Anything).Return(standupSeries(day), nil)
		mockRepo.On("DeleteBySeries", mock.Anything, "series-1").Return(nil)

		e := NewEngine(mockRepo)

		_, err := e.RequestDelete(ctx, "s-1")
		require.NoError(t, err)

		require.NoError(t, e.ApplyScopeDecision(ctx, false))
		mockRepo.AssertExpectations(t)
	})

	t.Run("move single shifts one row and detaches it", func(t *testing.T) {
		t.Parallel()

		newDate := date(2024, time.June, 20)
		moved := seriesEvent("s-2", "", newDate)

		mockRepo := new(MockRepository)
		mockRepo.On("List", mock.Anything).Return(standupSeries(day), nil)

		mockRepo.On("Update", mock.Anything, "s-2", mock.MatchedBy(func(patch EventPatch) bool {
			return patch.ClearSeries &&
				patch.StartTime != nil && patch.StartTime.Equal(newDate.Add(9*time.Hour)) &&
				patch.EndTime != nil && patch.EndTime.Equal(newDate.Add(10*time.Hour))
		})).Return(&moved, nil)

		e := NewEngine(mockRepo)

		_, err := e.RequestMove(ctx, "s-2", newDate)
		require.NoError(t, err)

		require.NoError(t, e.ApplyScopeDecision(ctx, true))
		mockRepo.AssertExpectations(t)
	})

	t.Run("move all shifts every row by the drag delta", func(t *testing.T) {
		t.Parallel()

		// s-2 sits on June 10; dragging it to June 12 shifts the series by 2 days.
		newDate := date(2024, time.June, 12)

		mockRepo := new(MockRepository)
		mockRepo.On("List", mock.Anything).Return(standupSeries(day), nil)
		mockRepo.On("ShiftSeries", mock.Anything, "series-1", 2).Return(standupSeries(day.AddDate(0, 0, 2)), nil)

		e := NewEngine(mockRepo)

		_, err := e.RequestMove(ctx, "s-2", newDate)
		require.NoError(t, err)

		require.NoError(t, e.ApplyScopeDecision(ctx, false))
		mockRepo.AssertExpectations(t)
	})

	t.Run("series of one collapses the series action onto the row", func(t *testing.T) {
		t.Parallel()

		lone := seriesEvent("s-1", "", day)

		mockRepo := new(MockRepository)
		mockRepo.On("List", mock.Anything).Return([]Event{lone}, nil)

		mockRepo.On("Update", mock.Anything, "s-1", mock.MatchedBy(func(patch EventPatch) bool {
			return !patch.ClearSeries && patch.Title != nil && *patch.Title == title
		})).Return(&lone, nil)

		e := NewEngine(mockRepo)

		_, err := e.RequestEdit(ctx, "s-1", EventPatch{Title: &title})
		require.NoError(t, err)

		require.NoError(t, e.ApplyScopeDecision(ctx, false))
		mockRepo.AssertExpectations(t)
		mockRepo.AssertNotCalled(t, "UpdateMany", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("series vanished between request and decision", func(t *testing.T) {
		t.Parallel()

		mockRepo := new(MockRepository)
		mockRepo.On("List", mock.Anything).Return(standupSeries(day), nil).Once()
		mockRepo.On("List", mock.Anything).Return([]Event{}, nil)

		e := NewEngine(mockRepo)

		_, err := e.RequestDelete(ctx, "s-1")
		require.NoError(t, err)

		require.NoError(t, e.Refresh(ctx))

		err = e.ApplyScopeDecision(ctx, false)
		require.ErrorIs(t, err, ErrSeriesNotFound)
	})

	t.Run("no pending action", func(t *testing.T) {
		t.Parallel()

		e := NewEngine(new(MockRepository))

		require.ErrorIs(t, e.ApplyScopeDecision(ctx, true), ErrNoPendingScope)
	})

	t.Run("failed commit returns to awaiting and allows a retry", func(t *testing.T) {
		t.Parallel()

		mockRepo := new(MockRepository)
		mockRepo.On("List", mock.Anything).Return(standupSeries(day), nil)
		mockRepo.On("DeleteBySeries", mock.Anything, "series-1").Return(errors.New("db error")).Once()
		mockRepo.On("DeleteBySeries", mock.Anything, "series-1").Return(nil)

		e := NewEngine(mockRepo)

		_, err := e.RequestDelete(ctx, "s-1")
		require.NoError(t, err)

		require.Error(t, e.ApplyScopeDecision(ctx, false))

		// The action is still parked, so the user's retry goes through.
		require.NoError(t, e.ApplyScopeDecision(ctx, false))
		mockRepo.AssertExpectations(t)
	})
}

func TestEngine_CancelPending(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	day := date(2024, time.June, 3)

	mockRepo := new(MockRepository)
	mockRepo.On("List", mock.Anything).Return(standupSeries(day), nil)

	e := NewEngine(mockRepo)

	_, err := e.RequestDelete(ctx, "s-1")
	require.NoError(t, err)

	e.CancelPending()

	// Nothing was written and the machine is idle again.
	require.ErrorIs(t, e.ApplyScopeDecision(ctx, false), ErrNoPendingScope)

	_, err = e.RequestEdit(ctx, "s-2", EventPatch{})
	require.NoError(t, err)

	mockRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	mockRepo.AssertNotCalled(t, "DeleteBySeries", mock.Anything, mock.Anything)
}
