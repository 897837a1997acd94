package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"eventcertificates/internal/domain"
)

// dateLayout is how civil dates travel to and from the events.date column.
const dateLayout = "2006-01-02"

type eventRepository struct {
	DB *sql.DB
}

func NewEventRepository(db *sql.DB) domain.EventRepository {
	return &eventRepository{
		DB: db,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*domain.Event, error) {
	e := &domain.Event{}
	var descNull sql.NullString
	if err := row.Scan(&e.ID, &e.Name, &e.Date, &descNull, &e.OwnerID, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	// Keep only the civil date; the driver hands DATE columns back at UTC midnight.
	y, m, d := e.Date.Date()
	e.Date = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if descNull.Valid {
		e.Description = &descNull.String
	}
	return e, nil
}

func (r *eventRepository) Create(ctx context.Context, e *domain.Event) error {
	query := `
		INSERT INTO events (name, date, description, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	var desc sql.NullString
	if e.Description != nil {
		desc = sql.NullString{String: *e.Description, Valid: true}
	}
	return r.DB.QueryRowContext(ctx, query, e.Name, e.Date.Format(dateLayout), desc, e.OwnerID, e.CreatedAt, e.UpdatedAt).Scan(&e.ID)
}

func (r *eventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	query := `
		SELECT id, name, date, description, owner_id, created_at, updated_at
		FROM events
		WHERE id = $1
	`
	e, err := scanEvent(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func (r *eventRepository) ListByDateRange(ctx context.Context, from, to time.Time) ([]*domain.Event, error) {
	query := `
		SELECT id, name, date, description, owner_id, created_at, updated_at
		FROM events
		WHERE date BETWEEN $1 AND $2
		ORDER BY date ASC, created_at ASC
	`
	rows, err := r.DB.QueryContext(ctx, query, from.Format(dateLayout), to.Format(dateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	events := make([]*domain.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *eventRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM events WHERE id = $1`
	result, err := r.DB.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}
