package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/DiFlector/kgb-pulse/models"
)

var ErrCrewNotFound = errors.New("crew not found")

type CrewRepository interface {
	Create(ctx context.Context, exec SQLExecutor, crew *models.Crew) error
	GetByID(ctx context.Context, id int) (*models.Crew, error)
	GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Crew, error)
	// FindOldestAvailable блокирует (FOR UPDATE) старейший недоукомплектованный
	// экипаж для (event, class, sex, distance); nil без ошибки, если такого нет.
	FindOldestAvailable(ctx context.Context, exec SQLExecutor, eventID int, class models.BoatClass, sex models.Sex, distance int64) (*models.Crew, error)
	ListByEvent(ctx context.Context, eventID int) ([]*models.Crew, error)
	SetMemberCount(ctx context.Context, exec SQLExecutor, id, count int) error
	// RecountMembers пересчитывает счётчик из фактических строк заявок,
	// а не инкрементирует вслепую.
	RecountMembers(ctx context.Context, exec SQLExecutor, id int) (int, error)
	Delete(ctx context.Context, exec SQLExecutor, id int) error
}

type postgresCrewRepository struct {
	db *sql.DB
}

func NewPostgresCrewRepository(db *sql.DB) CrewRepository {
	return &postgresCrewRepository{db: db}
}

func (r *postgresCrewRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const crewColumns = `id, event_id, boat_class, sex, distance, name, city, seat_capacity, member_count, created_at`

func (r *postgresCrewRepository) scanCrew(rowScanner interface {
	Scan(dest ...interface{}) error
}, c *models.Crew) error {
	return rowScanner.Scan(
		&c.ID, &c.EventID, &c.BoatClass, &c.Sex, &c.Distance, &c.Name, &c.City,
		&c.SeatCapacity, &c.MemberCount, &c.CreatedAt,
	)
}

func (r *postgresCrewRepository) Create(ctx context.Context, exec SQLExecutor, c *models.Crew) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO crews (event_id, boat_class, sex, distance, name, city, seat_capacity, member_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		c.EventID, c.BoatClass, c.Sex, c.Distance, c.Name, c.City, c.SeatCapacity, c.MemberCount,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create crew: %w", err)
	}
	return nil
}

func (r *postgresCrewRepository) findOne(ctx context.Context, exec SQLExecutor, query string, args ...interface{}) (*models.Crew, error) {
	c := &models.Crew{}
	row := exec.QueryRowContext(ctx, query, args...)
	if err := r.scanCrew(row, c); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCrewNotFound
		}
		return nil, fmt.Errorf("failed to find crew: %w", err)
	}
	return c, nil
}

func (r *postgresCrewRepository) GetByID(ctx context.Context, id int) (*models.Crew, error) {
	query := fmt.Sprintf(`SELECT %s FROM crews WHERE id = $1`, crewColumns)
	return r.findOne(ctx, r.db, query, id)
}

func (r *postgresCrewRepository) GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Crew, error) {
	query := fmt.Sprintf(`SELECT %s FROM crews WHERE id = $1 FOR UPDATE`, crewColumns)
	return r.findOne(ctx, r.getExecutor(exec), query, id)
}

func (r *postgresCrewRepository) FindOldestAvailable(ctx context.Context, exec SQLExecutor, eventID int, class models.BoatClass, sex models.Sex, distance int64) (*models.Crew, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM crews
		WHERE event_id = $1 AND boat_class = $2 AND sex = $3 AND distance = $4
		  AND member_count < seat_capacity
		ORDER BY created_at ASC, id ASC
		LIMIT 1
		FOR UPDATE`, crewColumns)

	crew, err := r.findOne(ctx, r.getExecutor(exec), query, eventID, class, sex, distance)
	if errors.Is(err, ErrCrewNotFound) {
		return nil, nil
	}
	return crew, err
}

func (r *postgresCrewRepository) ListByEvent(ctx context.Context, eventID int) ([]*models.Crew, error) {
	query := fmt.Sprintf(`SELECT %s FROM crews WHERE event_id = $1 ORDER BY created_at ASC, id ASC`, crewColumns)

	rows, err := r.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list crews by event: %w", err)
	}
	defer rows.Close()

	crews := make([]*models.Crew, 0)
	for rows.Next() {
		c := &models.Crew{}
		if err := r.scanCrew(rows, c); err != nil {
			return nil, fmt.Errorf("failed to scan crew row: %w", err)
		}
		crews = append(crews, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating crew rows: %w", err)
	}
	return crews, nil
}

func (r *postgresCrewRepository) SetMemberCount(ctx context.Context, exec SQLExecutor, id, count int) error {
	query := `UPDATE crews SET member_count = $1 WHERE id = $2`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, count, id)
	if err != nil {
		return fmt.Errorf("failed to set crew member count: %w", err)
	}
	return checkAffectedRows(result, ErrCrewNotFound)
}

func (r *postgresCrewRepository) RecountMembers(ctx context.Context, exec SQLExecutor, id int) (int, error) {
	query := `
		UPDATE crews
		SET member_count = (SELECT COUNT(*) FROM registrations WHERE crew_id = crews.id)
		WHERE id = $1
		RETURNING member_count`

	var count int
	err := r.getExecutor(exec).QueryRowContext(ctx, query, id).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrCrewNotFound
		}
		return 0, fmt.Errorf("failed to recount crew members: %w", err)
	}
	return count, nil
}

func (r *postgresCrewRepository) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	query := `DELETE FROM crews WHERE id = $1`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete crew: %w", err)
	}
	return checkAffectedRows(result, ErrCrewNotFound)
}
