package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/DiFlector/kgb-pulse/models"
	"github.com/lib/pq"
)

var (
	ErrRegistrationNotFound       = errors.New("registration not found")
	ErrRegistrationConflict       = errors.New("registration conflict: athlete already registered for this class and distance")
	ErrRegistrationAthleteInvalid = errors.New("registration athlete reference invalid")
	ErrRegistrationEventInvalid   = errors.New("registration event reference invalid")
	ErrRegistrationCrewInvalid    = errors.New("registration crew reference invalid")
)

// ListRegistrationsFilter — фильтр выборки заявок мероприятия.
type ListRegistrationsFilter struct {
	EventID   int
	BoatClass *models.BoatClass
	Sex       *models.Sex
	Distance  *int64
	Statuses  []models.RegistrationStatus
}

type RegistrationRepository interface {
	Create(ctx context.Context, exec SQLExecutor, reg *models.Registration) error
	GetByID(ctx context.Context, id int) (*models.Registration, error)
	GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Registration, error)
	List(ctx context.Context, filter ListRegistrationsFilter) ([]*models.Registration, error)
	ListByCrew(ctx context.Context, exec SQLExecutor, crewID int) ([]*models.Registration, error)
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.RegistrationStatus) error
	UpdateCost(ctx context.Context, exec SQLExecutor, id int, cost float64) error
	UpdatePaid(ctx context.Context, exec SQLExecutor, id int, paid bool) error
	AttachToCrew(ctx context.Context, exec SQLExecutor, id int, crewID int, status models.RegistrationStatus) error
	DetachFromCrew(ctx context.Context, exec SQLExecutor, id int) error
	ReassignCrew(ctx context.Context, exec SQLExecutor, fromCrewID, toCrewID int) (int, error)
	CountByCrew(ctx context.Context, exec SQLExecutor, crewID int) (int, error)
}

type postgresRegistrationRepository struct {
	db *sql.DB
}

func NewPostgresRegistrationRepository(db *sql.DB) RegistrationRepository {
	return &postgresRegistrationRepository{db: db}
}

func (r *postgresRegistrationRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const registrationColumns = `id, athlete_id, event_id, boat_class, sex, distances, status, paid, cost, crew_id, role, created_at`

func (r *postgresRegistrationRepository) scanRegistration(rowScanner interface {
	Scan(dest ...interface{}) error
}, reg *models.Registration) error {
	var distances pq.Int64Array
	err := rowScanner.Scan(
		&reg.ID, &reg.AthleteID, &reg.EventID, &reg.BoatClass, &reg.Sex, &distances,
		&reg.Status, &reg.Paid, &reg.Cost, &reg.CrewID, &reg.Role, &reg.CreatedAt,
	)
	if err != nil {
		return err
	}
	reg.Distances = []int64(distances)
	return nil
}

func (r *postgresRegistrationRepository) Create(ctx context.Context, exec SQLExecutor, reg *models.Registration) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO registrations (athlete_id, event_id, boat_class, sex, distances, status, paid, cost, crew_id, role)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		reg.AthleteID, reg.EventID, reg.BoatClass, reg.Sex, pq.Int64Array(reg.Distances),
		reg.Status, reg.Paid, reg.Cost, reg.CrewID, reg.Role,
	).Scan(&reg.ID, &reg.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Code {
			case "23505": // unique_violation
				return ErrRegistrationConflict
			case "23503": // foreign_key_violation
				switch pqErr.Constraint {
				case "registrations_athlete_id_fkey":
					return ErrRegistrationAthleteInvalid
				case "registrations_event_id_fkey":
					return ErrRegistrationEventInvalid
				case "registrations_crew_id_fkey":
					return ErrRegistrationCrewInvalid
				}
			}
		}
		return fmt.Errorf("failed to create registration: %w", err)
	}
	return nil
}

func (r *postgresRegistrationRepository) findOne(ctx context.Context, exec SQLExecutor, query string, args ...interface{}) (*models.Registration, error) {
	reg := &models.Registration{}
	row := exec.QueryRowContext(ctx, query, args...)
	if err := r.scanRegistration(row, reg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to find registration: %w", err)
	}
	return reg, nil
}

func (r *postgresRegistrationRepository) GetByID(ctx context.Context, id int) (*models.Registration, error) {
	query := fmt.Sprintf(`SELECT %s FROM registrations WHERE id = $1`, registrationColumns)
	return r.findOne(ctx, r.db, query, id)
}

func (r *postgresRegistrationRepository) GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Registration, error) {
	query := fmt.Sprintf(`SELECT %s FROM registrations WHERE id = $1 FOR UPDATE`, registrationColumns)
	return r.findOne(ctx, r.getExecutor(exec), query, id)
}

func (r *postgresRegistrationRepository) List(ctx context.Context, filter ListRegistrationsFilter) ([]*models.Registration, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(fmt.Sprintf(`SELECT %s FROM registrations WHERE event_id = $1`, registrationColumns))
	args := []interface{}{filter.EventID}
	argCounter := 2

	if filter.BoatClass != nil {
		queryBuilder.WriteString(fmt.Sprintf(" AND boat_class = $%d", argCounter))
		args = append(args, *filter.BoatClass)
		argCounter++
	}
	if filter.Sex != nil {
		queryBuilder.WriteString(fmt.Sprintf(" AND sex = $%d", argCounter))
		args = append(args, *filter.Sex)
		argCounter++
	}
	if filter.Distance != nil {
		queryBuilder.WriteString(fmt.Sprintf(" AND $%d = ANY(distances)", argCounter))
		args = append(args, *filter.Distance)
		argCounter++
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		queryBuilder.WriteString(fmt.Sprintf(" AND status = ANY($%d)", argCounter))
		args = append(args, pq.StringArray(statuses))
		argCounter++
	}
	queryBuilder.WriteString(" ORDER BY created_at ASC, id ASC")

	return r.list(ctx, r.db, queryBuilder.String(), args...)
}

func (r *postgresRegistrationRepository) ListByCrew(ctx context.Context, exec SQLExecutor, crewID int) ([]*models.Registration, error) {
	query := fmt.Sprintf(`SELECT %s FROM registrations WHERE crew_id = $1 ORDER BY created_at ASC, id ASC`, registrationColumns)
	return r.list(ctx, r.getExecutor(exec), query, crewID)
}

func (r *postgresRegistrationRepository) list(ctx context.Context, exec SQLExecutor, query string, args ...interface{}) ([]*models.Registration, error) {
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	defer rows.Close()

	registrations := make([]*models.Registration, 0)
	for rows.Next() {
		reg := &models.Registration{}
		if err := r.scanRegistration(rows, reg); err != nil {
			return nil, fmt.Errorf("failed to scan registration row: %w", err)
		}
		registrations = append(registrations, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating registration rows: %w", err)
	}
	return registrations, nil
}

func (r *postgresRegistrationRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.RegistrationStatus) error {
	query := `UPDATE registrations SET status = $1 WHERE id = $2`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update registration status: %w", err)
	}
	return checkAffectedRows(result, ErrRegistrationNotFound)
}

func (r *postgresRegistrationRepository) UpdateCost(ctx context.Context, exec SQLExecutor, id int, cost float64) error {
	query := `UPDATE registrations SET cost = $1 WHERE id = $2`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, cost, id)
	if err != nil {
		return fmt.Errorf("failed to update registration cost: %w", err)
	}
	return checkAffectedRows(result, ErrRegistrationNotFound)
}

func (r *postgresRegistrationRepository) UpdatePaid(ctx context.Context, exec SQLExecutor, id int, paid bool) error {
	query := `UPDATE registrations SET paid = $1 WHERE id = $2`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, paid, id)
	if err != nil {
		return fmt.Errorf("failed to update registration payment flag: %w", err)
	}
	return checkAffectedRows(result, ErrRegistrationNotFound)
}

func (r *postgresRegistrationRepository) AttachToCrew(ctx context.Context, exec SQLExecutor, id int, crewID int, status models.RegistrationStatus) error {
	query := `UPDATE registrations SET crew_id = $1, status = $2 WHERE id = $3`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, crewID, status, id)
	if err != nil {
		return fmt.Errorf("failed to attach registration %d to crew %d: %w", id, crewID, err)
	}
	return checkAffectedRows(result, ErrRegistrationNotFound)
}

func (r *postgresRegistrationRepository) DetachFromCrew(ctx context.Context, exec SQLExecutor, id int) error {
	query := `UPDATE registrations SET crew_id = NULL WHERE id = $1`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to detach registration %d from crew: %w", id, err)
	}
	return checkAffectedRows(result, ErrRegistrationNotFound)
}

func (r *postgresRegistrationRepository) ReassignCrew(ctx context.Context, exec SQLExecutor, fromCrewID, toCrewID int) (int, error) {
	query := `UPDATE registrations SET crew_id = $1 WHERE crew_id = $2`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, toCrewID, fromCrewID)
	if err != nil {
		return 0, fmt.Errorf("failed to reassign registrations from crew %d to crew %d: %w", fromCrewID, toCrewID, err)
	}
	moved, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check reassigned rows: %w", err)
	}
	return int(moved), nil
}

func (r *postgresRegistrationRepository) CountByCrew(ctx context.Context, exec SQLExecutor, crewID int) (int, error) {
	query := `SELECT COUNT(*) FROM registrations WHERE crew_id = $1`
	var count int
	if err := r.getExecutor(exec).QueryRowContext(ctx, query, crewID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count crew members: %w", err)
	}
	return count, nil
}
