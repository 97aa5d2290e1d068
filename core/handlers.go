package core

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type Handlers interface {
	GetEvents(gctx *gin.Context)
	PostEvents(gctx *gin.Context)
	PostOverlapCheck(gctx *gin.Context)
	PutEvent(gctx *gin.Context)
	PostEventAction(gctx *gin.Context)
	PostScopeDecision(gctx *gin.Context)
	DeleteScopeDecision(gctx *gin.Context)
	GetOccurrences(gctx *gin.Context)
	GetSearch(gctx *gin.Context)
	GetNotifications(gctx *gin.Context)
}

type handlers struct {
	engine    Engine
	weekStart time.Weekday
}

func NewHandlers(engine Engine, weekStart time.Weekday) Handlers {
	return &handlers{engine: engine, weekStart: weekStart}
}

func (h *handlers) GetEvents(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	err := h.engine.Refresh(ctx)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("listing events failed")
		gctx.AbortWithStatusJSON(http.StatusInternalServerError, NewError("listing events failed", err))

		return
	}

	gctx.JSON(http.StatusOK, gin.H{"events": h.engine.Events()})
}

func (h *handlers) PostEvents(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var draft EventDraft

	err := gctx.ShouldBindJSON(&draft)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to bind JSON")
		gctx.AbortWithStatusJSON(http.StatusBadRequest, NewError("failed to bind JSON", err))

		return
	}

	force := gctx.Query("force") == "true"

	created, err := h.engine.CreateEvent(ctx, draft, force)
	if err != nil {
		h.fail(gctx, "saving event failed", err)
		return
	}

	gctx.JSON(http.StatusCreated, gin.H{"events": created})
}

func (h *handlers) PostOverlapCheck(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var draft EventDraft

	err := gctx.ShouldBindJSON(&draft)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to bind JSON")
		gctx.AbortWithStatusJSON(http.StatusBadRequest, NewError("failed to bind JSON", err))

		return
	}

	conflicts, err := h.engine.CheckOverlap(ctx, draft)
	if err != nil {
		h.fail(gctx, "overlap check failed", err)
		return
	}

	gctx.JSON(http.StatusOK, gin.H{"conflicts": conflicts})
}

func (h *handlers) PutEvent(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	id := gctx.Param("id")
	if len(id) == 0 {
		gctx.AbortWithStatusJSON(http.StatusBadRequest, NewError("parameter 'id' is required"))
		return
	}

	var patch EventPatch

	err := gctx.ShouldBindJSON(&patch)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to bind JSON")
		gctx.AbortWithStatusJSON(http.StatusBadRequest, NewError("failed to bind JSON", err))

		return
	}

	force := gctx.Query("force") == "true"

	updated, err := h.engine.UpdateEvent(ctx, id, patch, force)
	if err != nil {
		h.fail(gctx, "updating event failed", err)
		return
	}

	gctx.JSON(http.StatusOK, updated)
}

type actionRequest struct {
	Action  ActionKind `json:"action"`
	NewDate *time.Time `json:"new_date,omitempty"`
	Patch   EventPatch `json:"patch"`
}

// PostEventAction routes an edit/delete/move request into the scope state
// machine. Non-recurring targets commit immediately (204); recurring ones
// answer with the pending scope decision request (202).
func (h *handlers) PostEventAction(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	id := gctx.Param("id")
	if len(id) == 0 {
		gctx.AbortWithStatusJSON(http.StatusBadRequest, NewError("parameter 'id' is required"))
		return
	}

	var req actionRequest

	err := gctx.ShouldBindJSON(&req)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to bind JSON")
		gctx.AbortWithStatusJSON(http.StatusBadRequest, NewError("failed to bind JSON", err))

		return
	}

	var request *ScopeDecisionRequest

	switch req.Action {
	case ActionEdit:
		request, err = h.engine.RequestEdit(ctx, id, req.Patch)
	case ActionDelete:
		request, err = h.engine.RequestDelete(ctx, id)
	case ActionMove:
		if req.NewDate == nil {
			gctx.AbortWithStatusJSON(http.StatusBadRequest, NewError("field 'new_date' is required for move"))
			return
		}

		request, err = h.engine.RequestMove(ctx, id, *req.NewDate)
	default:
		gctx.AbortWithStatusJSON(http.StatusBadRequest, NewError("unknown action"))
		return
	}

	if err != nil {
		h.fail(gctx, "event action failed", err)
		return
	}

	if request == nil {
		gctx.Status(http.StatusNoContent)
		return
	}

	gctx.JSON(http.StatusAccepted, request)
}

type decisionRequest struct {
	SingleOnly bool `json:"single_only"`
}

func (h *handlers) PostScopeDecision(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var req decisionRequest

	err := gctx.ShouldBindJSON(&req)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to bind JSON")
		gctx.AbortWithStatusJSON(http.StatusBadRequest, NewError("failed to bind JSON", err))

		return
	}

	err = h.engine.ApplyScopeDecision(ctx, req.SingleOnly)
	if err != nil {
		h.fail(gctx, "applying scope decision failed", err)
		return
	}

	gctx.Status(http.StatusNoContent)
}

func (h *handlers) DeleteScopeDecision(gctx *gin.Context) {
	h.engine.CancelPending()
	gctx.Status(http.StatusNoContent)
}

func (h *handlers) GetOccurrences(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	view, err := h.viewFromQuery(gctx)
	if err != nil {
		gctx.AbortWithStatusJSON(http.StatusBadRequest, NewError("invalid view range", err))
		return
	}

	occurrences, err := h.engine.GetOccurrences(ctx, view)
	if err != nil {
		h.fail(gctx, "listing occurrences failed", err)
		return
	}

	gctx.JSON(http.StatusOK, gin.H{"occurrences": occurrences})
}

func (h *handlers) GetSearch(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	view, err := h.viewFromQuery(gctx)
	if err != nil {
		gctx.AbortWithStatusJSON(http.StatusBadRequest, NewError("invalid view range", err))
		return
	}

	occurrences, err := h.engine.Search(ctx, gctx.Query("q"), view)
	if err != nil {
		h.fail(gctx, "search failed", err)
		return
	}

	gctx.JSON(http.StatusOK, gin.H{"occurrences": occurrences})
}

func (h *handlers) GetNotifications(gctx *gin.Context) {
	gctx.JSON(http.StatusOK, gin.H{"notifications": h.engine.DueNotifications()})
}

func (h *handlers) viewFromQuery(gctx *gin.Context) (ViewRange, error) {
	view := ViewRange{
		Mode:      ViewMode(gctx.DefaultQuery("mode", string(ViewMonth))),
		Current:   time.Now(),
		WeekStart: h.weekStart,
	}

	if view.Mode != ViewWeek && view.Mode != ViewMonth {
		return ViewRange{}, invalid("mode must be week or month")
	}

	if date := gctx.Query("date"); date != "" {
		current, err := time.Parse("2006-01-02", date)
		if err != nil {
			return ViewRange{}, err
		}

		view.Current = current
	}

	return view, nil
}

// fail maps the engine's error taxonomy onto HTTP statuses: validation 400,
// not-found 404, overlap conflicts 409 with the conflicting events attached,
// anything else is a transport-level 500.
func (h *handlers) fail(gctx *gin.Context, message string, err error) {
	ctx := gctx.Request.Context()

	var conflict *ConflictError
	if errors.As(err, &conflict) {
		gctx.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"message":   "event overlaps existing events",
			"conflicts": conflict.Conflicts,
		})

		return
	}

	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, ErrInvalid), errors.Is(err, ErrNoPendingScope), errors.Is(err, ErrScopePending):
		status = http.StatusBadRequest
	case errors.Is(err, ErrEventNotFound), errors.Is(err, ErrSeriesNotFound):
		status = http.StatusNotFound
	}

	if status == http.StatusNotFound {
		log.Ctx(ctx).Info().Err(err).Msg(message)
	} else {
		log.Ctx(ctx).Error().Err(err).Msg(message)
	}

	gctx.AbortWithStatusJSON(status, NewError(message, err))
}
