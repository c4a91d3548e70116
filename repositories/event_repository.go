package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/DiFlector/kgb-pulse/models"
	"github.com/lib/pq"
)

var (
	ErrEventNotFound     = errors.New("event not found")
	ErrEventNameConflict = errors.New("event name conflict")
)

type EventRepository interface {
	Create(ctx context.Context, event *models.Event) error
	GetByID(ctx context.Context, id int) (*models.Event, error)
	UpdateStatus(ctx context.Context, id int, status models.EventStatus) error
}

type postgresEventRepository struct {
	db *sql.DB
}

func NewPostgresEventRepository(db *sql.DB) EventRepository {
	return &postgresEventRepository{db: db}
}

func (r *postgresEventRepository) Create(ctx context.Context, e *models.Event) error {
	query := `
		INSERT INTO events (name, date, base_cost, status, location, disciplines_json)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		e.Name, e.Date, e.BaseCost, e.Status, e.Location, e.DisciplinesJSON,
	).Scan(&e.ID, &e.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrEventNameConflict
		}
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

func (r *postgresEventRepository) GetByID(ctx context.Context, id int) (*models.Event, error) {
	query := `
		SELECT id, name, date, base_cost, status, location, disciplines_json, created_at
		FROM events
		WHERE id = $1`

	e := &models.Event{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&e.ID, &e.Name, &e.Date, &e.BaseCost, &e.Status, &e.Location, &e.DisciplinesJSON, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

func (r *postgresEventRepository) UpdateStatus(ctx context.Context, id int, status models.EventStatus) error {
	query := `UPDATE events SET status = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update event status: %w", err)
	}
	return checkAffectedRows(result, ErrEventNotFound)
}
