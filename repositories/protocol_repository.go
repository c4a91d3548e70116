package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/DiFlector/kgb-pulse/models"
	"github.com/lib/pq"
)

var (
	ErrProtocolNotFound = errors.New("protocol not found")
	// ErrProtocolVersionConflict — документ изменился между чтением и записью;
	// вызывающий повторяет read-modify-write.
	ErrProtocolVersionConflict = errors.New("protocol version conflict")
)

type ProtocolRepository interface {
	Get(ctx context.Context, key string) (*models.Protocol, error)
	ListByEvent(ctx context.Context, eventID int) ([]*models.Protocol, error)
	ListKeysByEvent(ctx context.Context, eventID int) ([]string, error)
	// Insert создаёт новый документ с version=1. Конфликт ключа
	// трактуется как версионный конфликт (документ успел появиться).
	Insert(ctx context.Context, p *models.Protocol) error
	// UpdateDocument — запись с CAS по версии.
	UpdateDocument(ctx context.Context, p *models.Protocol, expectedVersion int) error
	Delete(ctx context.Context, key string) error
}

type postgresProtocolRepository struct {
	db *sql.DB
}

func NewPostgresProtocolRepository(db *sql.DB) ProtocolRepository {
	return &postgresProtocolRepository{db: db}
}

const protocolColumns = `key, event_id, boat_class, sex, distance, age_group, document, version, updated_at`

func (r *postgresProtocolRepository) scanProtocol(rowScanner interface {
	Scan(dest ...interface{}) error
}, p *models.Protocol) error {
	var document []byte
	err := rowScanner.Scan(
		&p.Key, &p.EventID, &p.BoatClass, &p.Sex, &p.Distance, &p.AgeGroup,
		&document, &p.Version, &p.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(document, &p.Entries); err != nil {
		return fmt.Errorf("failed to unmarshal protocol document %s: %w", p.Key, err)
	}
	return nil
}

func (r *postgresProtocolRepository) Get(ctx context.Context, key string) (*models.Protocol, error) {
	query := fmt.Sprintf(`SELECT %s FROM protocols WHERE key = $1`, protocolColumns)

	p := &models.Protocol{}
	if err := r.scanProtocol(r.db.QueryRowContext(ctx, query, key), p); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProtocolNotFound
		}
		return nil, fmt.Errorf("failed to get protocol: %w", err)
	}
	return p, nil
}

func (r *postgresProtocolRepository) ListByEvent(ctx context.Context, eventID int) ([]*models.Protocol, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM protocols
		WHERE event_id = $1
		ORDER BY boat_class, sex, distance, age_group`, protocolColumns)

	rows, err := r.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list protocols by event: %w", err)
	}
	defer rows.Close()

	protocols := make([]*models.Protocol, 0)
	for rows.Next() {
		p := &models.Protocol{}
		if err := r.scanProtocol(rows, p); err != nil {
			return nil, fmt.Errorf("failed to scan protocol row: %w", err)
		}
		protocols = append(protocols, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating protocol rows: %w", err)
	}
	return protocols, nil
}

func (r *postgresProtocolRepository) ListKeysByEvent(ctx context.Context, eventID int) ([]string, error) {
	query := `SELECT key FROM protocols WHERE event_id = $1 ORDER BY boat_class, sex, distance, age_group`

	rows, err := r.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list protocol keys: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan protocol key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating protocol keys: %w", err)
	}
	return keys, nil
}

func (r *postgresProtocolRepository) Insert(ctx context.Context, p *models.Protocol) error {
	document, err := json.Marshal(p.Entries)
	if err != nil {
		return fmt.Errorf("failed to marshal protocol document %s: %w", p.Key, err)
	}

	query := `
		INSERT INTO protocols (key, event_id, boat_class, sex, distance, age_group, document, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1, NOW())
		RETURNING version, updated_at`

	err = r.db.QueryRowContext(ctx, query,
		p.Key, p.EventID, p.BoatClass, p.Sex, p.Distance, p.AgeGroup, document,
	).Scan(&p.Version, &p.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrProtocolVersionConflict
		}
		return fmt.Errorf("failed to insert protocol %s: %w", p.Key, err)
	}
	return nil
}

func (r *postgresProtocolRepository) UpdateDocument(ctx context.Context, p *models.Protocol, expectedVersion int) error {
	document, err := json.Marshal(p.Entries)
	if err != nil {
		return fmt.Errorf("failed to marshal protocol document %s: %w", p.Key, err)
	}

	query := `
		UPDATE protocols
		SET document = $1, version = version + 1, updated_at = NOW()
		WHERE key = $2 AND version = $3
		RETURNING version, updated_at`

	err = r.db.QueryRowContext(ctx, query, document, p.Key, expectedVersion).Scan(&p.Version, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Либо ключа нет, либо версия ушла вперёд. Различаем отдельным чтением.
			if _, getErr := r.Get(ctx, p.Key); errors.Is(getErr, ErrProtocolNotFound) {
				return ErrProtocolNotFound
			}
			return ErrProtocolVersionConflict
		}
		return fmt.Errorf("failed to update protocol %s: %w", p.Key, err)
	}
	return nil
}

func (r *postgresProtocolRepository) Delete(ctx context.Context, key string) error {
	query := `DELETE FROM protocols WHERE key = $1`
	result, err := r.db.ExecContext(ctx, query, key)
	if err != nil {
		return fmt.Errorf("failed to delete protocol: %w", err)
	}
	return checkAffectedRows(result, ErrProtocolNotFound)
}
