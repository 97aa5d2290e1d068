package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"calendar-engine/pkg/resources"
)

// Repository is the persistence collaborator. It exclusively owns the stored
// rows; the engine only issues requests and re-reads. The batch methods are
// atomic, a series-wide mutation either lands on every member row or on none.
type Repository interface {
	List(ctx context.Context) ([]Event, error)
	Create(ctx context.Context, event *Event) (*Event, error)
	CreateMany(ctx context.Context, events []Event) ([]Event, error)
	Update(ctx context.Context, id string, patch EventPatch) (*Event, error)
	UpdateMany(ctx context.Context, ids []string, patch EventPatch) ([]Event, error)
	ShiftSeries(ctx context.Context, seriesId string, days int) ([]Event, error)
	Delete(ctx context.Context, id string) error
	DeleteBySeries(ctx context.Context, seriesId string) error
}

const eventColumns = "id, title, description, location, category, start_time, end_time, " +
	"recurrence_kind, recurrence_interval, recurrence_until, reminder_lead_minutes, " +
	"COALESCE(series_id, ''), exception_dates, created_at"

const insertEvent = "INSERT INTO events " +
	"(title, description, location, category, start_time, end_time, " +
	"recurrence_kind, recurrence_interval, recurrence_until, reminder_lead_minutes, " +
	"series_id, exception_dates) " +
	"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12) " +
	"RETURNING " + eventColumns

type repository struct {
	tracer  trace.Tracer
	metrics *DBMetrics
	pool    resources.DBInstance
}

func NewRepository(pool resources.DBInstance) Repository {
	return &repository{
		tracer:  otel.GetTracerProvider().Tracer("calendar-engine/core"),
		metrics: NewDBMetrics(),
		pool:    pool,
	}
}

func (r *repository) List(ctx context.Context) ([]Event, error) {
	start := time.Now()

	var err error

	defer func() { r.metrics.Observe(ctx, "list_events", start, err) }()

	ctx, span := r.tracer.Start(ctx, "repository.List")
	defer span.End()

	rows, err := r.pool.Query(ctx, "SELECT "+eventColumns+" FROM events ORDER BY start_time, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0)

	for rows.Next() {
		var e Event

		err = scanEvent(rows, &e)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		events = append(events, e)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	return events, nil
}

func (r *repository) Create(ctx context.Context, event *Event) (*Event, error) {
	start := time.Now()

	var err error

	defer func() { r.metrics.Observe(ctx, "create_event", start, err) }()

	ctx, span := r.tracer.Start(ctx, "repository.Create")
	defer span.End()

	var saved Event

	err = scanEvent(r.pool.QueryRow(ctx, insertEvent, insertArgs(*event)...), &saved)
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	return &saved, nil
}

// CreateMany materializes a whole series in one transaction; either every
// occurrence row lands or none does.
func (r *repository) CreateMany(ctx context.Context, events []Event) ([]Event, error) {
	start := time.Now()

	var err error

	defer func() { r.metrics.Observe(ctx, "create_many_events", start, err) }()

	ctx, span := r.tracer.Start(ctx, "repository.CreateMany",
		trace.WithAttributes(attribute.Int("events.count", len(events))))
	defer span.End()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	saved := make([]Event, 0, len(events))

	for _, event := range events {
		var row Event

		err = scanEvent(tx.QueryRow(ctx, insertEvent, insertArgs(event)...), &row)
		if err != nil {
			_ = tx.Rollback(ctx)
			return nil, fmt.Errorf("failed to create series row: %w", err)
		}

		saved = append(saved, row)
	}

	err = tx.Commit(ctx)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return saved, nil
}

func (r *repository) Update(ctx context.Context, id string, patch EventPatch) (*Event, error) {
	start := time.Now()

	var err error

	defer func() { r.metrics.Observe(ctx, "update_event", start, err) }()

	ctx, span := r.tracer.Start(ctx, "repository.Update")
	defer span.End()

	set, args := patchClauses(patch)
	args = append(args, id)

	query := fmt.Sprintf("UPDATE events SET %s WHERE id = $%d RETURNING %s",
		strings.Join(set, ", "), len(args), eventColumns)

	var updated Event

	err = scanEvent(r.pool.QueryRow(ctx, query, args...), &updated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = ErrEventNotFound
			return nil, err
		}

		return nil, fmt.Errorf("failed to update event: %w", err)
	}

	return &updated, nil
}

// UpdateMany applies one shared-field patch to every given row, all or
// nothing: the transaction rolls back when any id no longer exists.
func (r *repository) UpdateMany(ctx context.Context, ids []string, patch EventPatch) ([]Event, error) {
	start := time.Now()

	var err error

	defer func() { r.metrics.Observe(ctx, "update_many_events", start, err) }()

	ctx, span := r.tracer.Start(ctx, "repository.UpdateMany",
		trace.WithAttributes(attribute.Int("events.count", len(ids))))
	defer span.End()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	set, args := patchClauses(patch)
	args = append(args, ids)

	query := fmt.Sprintf("UPDATE events SET %s WHERE id = ANY($%d) RETURNING %s",
		strings.Join(set, ", "), len(args), eventColumns)

	updated, err := collectEvents(tx.Query(ctx, query, args...))
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("failed to update series: %w", err)
	}

	if len(updated) != len(ids) {
		_ = tx.Rollback(ctx)

		err = ErrEventNotFound
		return nil, err
	}

	err = tx.Commit(ctx)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return updated, nil
}

// ShiftSeries moves every row of a series by the same whole-day delta in a
// single statement.
func (r *repository) ShiftSeries(ctx context.Context, seriesId string, days int) ([]Event, error) {
	start := time.Now()

	var err error

	defer func() { r.metrics.Observe(ctx, "shift_series", start, err) }()

	ctx, span := r.tracer.Start(ctx, "repository.ShiftSeries",
		trace.WithAttributes(attribute.Int("shift.days", days)))
	defer span.End()

	query := "UPDATE events SET " +
		"start_time = start_time + make_interval(days => $2), " +
		"end_time = end_time + make_interval(days => $2) " +
		"WHERE series_id = $1 RETURNING " + eventColumns

	shifted, err := collectEvents(r.pool.Query(ctx, query, seriesId, days))
	if err != nil {
		return nil, fmt.Errorf("failed to shift series: %w", err)
	}

	if len(shifted) == 0 {
		err = ErrSeriesNotFound
		return nil, err
	}

	return shifted, nil
}

func (r *repository) Delete(ctx context.Context, id string) error {
	start := time.Now()

	var err error

	defer func() { r.metrics.Observe(ctx, "delete_event", start, err) }()

	ctx, span := r.tracer.Start(ctx, "repository.Delete")
	defer span.End()

	tag, err := r.pool.Exec(ctx, "DELETE FROM events WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}

	if tag.RowsAffected() == 0 {
		err = ErrEventNotFound
		return err
	}

	return nil
}

func (r *repository) DeleteBySeries(ctx context.Context, seriesId string) error {
	start := time.Now()

	var err error

	defer func() { r.metrics.Observe(ctx, "delete_series", start, err) }()

	ctx, span := r.tracer.Start(ctx, "repository.DeleteBySeries")
	defer span.End()

	tag, err := r.pool.Exec(ctx, "DELETE FROM events WHERE series_id = $1", seriesId)
	if err != nil {
		return fmt.Errorf("failed to delete series: %w", err)
	}

	if tag.RowsAffected() == 0 {
		err = ErrSeriesNotFound
		return err
	}

	return nil
}

func insertArgs(e Event) []any {
	rule := e.Recurrence
	if rule.Kind == "" {
		rule.Kind = KindNone
	}

	exceptions := e.ExceptionDates
	if exceptions == nil {
		exceptions = []time.Time{}
	}

	return []any{
		e.Title, e.Description, e.Location, e.Category, e.StartTime, e.EndTime,
		string(rule.Kind), rule.Interval, rule.Until, e.ReminderLeadMinutes,
		e.SeriesId, exceptions,
	}
}

func patchClauses(patch EventPatch) ([]string, []any) {
	set := make([]string, 0)
	args := make([]any, 0)

	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.Location != nil {
		add("location", *patch.Location)
	}
	if patch.Category != nil {
		add("category", *patch.Category)
	}
	if patch.StartTime != nil {
		add("start_time", *patch.StartTime)
	}
	if patch.EndTime != nil {
		add("end_time", *patch.EndTime)
	}
	if patch.Recurrence != nil {
		add("recurrence_kind", string(patch.Recurrence.Kind))
		add("recurrence_interval", patch.Recurrence.Interval)
		add("recurrence_until", patch.Recurrence.Until)
	}
	if patch.ReminderLeadMinutes != nil {
		add("reminder_lead_minutes", *patch.ReminderLeadMinutes)
	}

	if patch.ClearSeries {
		set = append(set,
			"series_id = NULL",
			"recurrence_kind = 'none'",
			"recurrence_interval = 0",
			"recurrence_until = NULL")
	}

	if len(set) == 0 {
		// A no-op patch still round-trips the row.
		set = append(set, "id = id")
	}

	return set, args
}

func scanEvent(row pgx.Row, e *Event) error {
	var kind string

	err := row.Scan(
		&e.Id, &e.Title, &e.Description, &e.Location, &e.Category,
		&e.StartTime, &e.EndTime,
		&kind, &e.Recurrence.Interval, &e.Recurrence.Until,
		&e.ReminderLeadMinutes, &e.SeriesId, &e.ExceptionDates, &e.CreatedAt,
	)
	if err != nil {
		return err
	}

	e.Recurrence.Kind = RecurrenceKind(kind)

	return nil
}

func collectEvents(rows pgx.Rows, err error) ([]Event, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]Event, 0)

	for rows.Next() {
		var e Event

		if err := scanEvent(rows, &e); err != nil {
			return nil, err
		}

		events = append(events, e)
	}

	return events, rows.Err()
}

/*

 */

type DBMetrics struct {
	qTotal   metric.Int64Counter
	qErrors  metric.Int64Counter
	qLatency metric.Float64Histogram
}

func NewDBMetrics() *DBMetrics {
	meter := otel.Meter("calendar-engine/db")

	qTotal, _ := meter.Int64Counter("db.query.total")
	qErrors, _ := meter.Int64Counter("db.query.errors.total")
	qLatency, _ := meter.Float64Histogram("db.query.duration.ms")

	return &DBMetrics{qTotal: qTotal, qErrors: qErrors, qLatency: qLatency}
}

func (m *DBMetrics) Observe(ctx context.Context, op string, start time.Time, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("db.system", "postgres"),
		attribute.String("db.operation", op),
	}

	m.qTotal.Add(ctx, 1, metric.WithAttributes(attrs...))

	ms := float64(time.Since(start).Milliseconds())
	m.qLatency.Record(ctx, ms, metric.WithAttributes(attrs...))

	if err != nil {
		m.qErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}
