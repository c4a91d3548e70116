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
	ErrAthleteNotFound = errors.New("athlete not found")
	ErrAthleteConflict = errors.New("athlete already exists")
)

type AthleteRepository interface {
	Create(ctx context.Context, athlete *models.Athlete) error
	GetByID(ctx context.Context, id int) (*models.Athlete, error)
	ListByIDs(ctx context.Context, ids []int) (map[int]*models.Athlete, error)
}

type postgresAthleteRepository struct {
	db *sql.DB
}

func NewPostgresAthleteRepository(db *sql.DB) AthleteRepository {
	return &postgresAthleteRepository{db: db}
}

func (r *postgresAthleteRepository) Create(ctx context.Context, a *models.Athlete) error {
	query := `
		INSERT INTO athletes (last_name, first_name, sex, birth_date, sport_rank, city, country)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		a.LastName, a.FirstName, a.Sex, a.BirthDate, a.SportRank, a.City, a.Country,
	).Scan(&a.ID, &a.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrAthleteConflict
		}
		return fmt.Errorf("failed to create athlete: %w", err)
	}
	return nil
}

func (r *postgresAthleteRepository) GetByID(ctx context.Context, id int) (*models.Athlete, error) {
	query := `
		SELECT id, last_name, first_name, sex, birth_date, sport_rank, city, country, created_at
		FROM athletes
		WHERE id = $1`

	a := &models.Athlete{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.LastName, &a.FirstName, &a.Sex, &a.BirthDate, &a.SportRank, &a.City, &a.Country, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAthleteNotFound
		}
		return nil, fmt.Errorf("failed to get athlete: %w", err)
	}
	return a, nil
}

func (r *postgresAthleteRepository) ListByIDs(ctx context.Context, ids []int) (map[int]*models.Athlete, error) {
	result := make(map[int]*models.Athlete, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	int64IDs := make([]int64, len(ids))
	for i, id := range ids {
		int64IDs[i] = int64(id)
	}

	query := `
		SELECT id, last_name, first_name, sex, birth_date, sport_rank, city, country, created_at
		FROM athletes
		WHERE id = ANY($1)`

	rows, err := r.db.QueryContext(ctx, query, pq.Int64Array(int64IDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list athletes by ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		a := &models.Athlete{}
		if err := rows.Scan(
			&a.ID, &a.LastName, &a.FirstName, &a.Sex, &a.BirthDate, &a.SportRank, &a.City, &a.Country, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan athlete row: %w", err)
		}
		result[a.ID] = a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating athlete rows: %w", err)
	}
	return result, nil
}
