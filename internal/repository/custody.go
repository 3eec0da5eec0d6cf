package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/levensailor/calndr-go/internal/models"
)

// CustodyRepository persists custody day records. It backs the
// scheduling engine's day store.
type CustodyRepository struct {
	db *pgxpool.Pool
}

func NewCustodyRepository(db *pgxpool.Pool) *CustodyRepository {
	return &CustodyRepository{db: db}
}

const custodyColumns = `id, family_id, date, custodian_id, actor_id, handoff_day, handoff_time, handoff_location, created_at, updated_at`

func scanCustodyDay(row pgx.Row) (*models.CustodyDay, error) {
	var day models.CustodyDay
	err := row.Scan(
		&day.ID,
		&day.FamilyID,
		&day.Date,
		&day.CustodianID,
		&day.ActorID,
		&day.HandoffDay,
		&day.HandoffTime,
		&day.HandoffLocation,
		&day.CreatedAt,
		&day.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	day.Date = day.Date.UTC()
	return &day, nil
}

// Get returns the custody day for a date, or (nil, nil) when the date
// has no record.
func (r *CustodyRepository) Get(ctx context.Context, familyID uuid.UUID, date time.Time) (*models.CustodyDay, error) {
	query := `
		SELECT ` + custodyColumns + `
		FROM custody_days
		WHERE family_id = $1 AND date = $2
	`

	day, err := scanCustodyDay(r.db.QueryRow(ctx, query, familyID, date))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return day, nil
}

// GetRange returns custody days in the inclusive date range, ascending.
func (r *CustodyRepository) GetRange(ctx context.Context, familyID uuid.UUID, start, end time.Time) ([]models.CustodyDay, error) {
	query := `
		SELECT ` + custodyColumns + `
		FROM custody_days
		WHERE family_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date
	`
	return r.queryDays(ctx, query, familyID, start, end)
}

// All returns a family's entire custody history, ascending by date.
func (r *CustodyRepository) All(ctx context.Context, familyID uuid.UUID) ([]models.CustodyDay, error) {
	query := `
		SELECT ` + custodyColumns + `
		FROM custody_days
		WHERE family_id = $1
		ORDER BY date
	`
	return r.queryDays(ctx, query, familyID)
}

func (r *CustodyRepository) queryDays(ctx context.Context, query string, args ...interface{}) ([]models.CustodyDay, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []models.CustodyDay
	for rows.Next() {
		day, err := scanCustodyDay(rows)
		if err != nil {
			return nil, err
		}
		days = append(days, *day)
	}
	return days, rows.Err()
}

// Upsert writes a custody day, replacing any existing record for the
// same (family, date). The stored row is returned.
func (r *CustodyRepository) Upsert(ctx context.Context, day *models.CustodyDay) (*models.CustodyDay, error) {
	query := `
		INSERT INTO custody_days (id, family_id, date, custodian_id, actor_id, handoff_day, handoff_time, handoff_location, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (family_id, date) DO UPDATE SET
			custodian_id     = EXCLUDED.custodian_id,
			actor_id         = EXCLUDED.actor_id,
			handoff_day      = EXCLUDED.handoff_day,
			handoff_time     = EXCLUDED.handoff_time,
			handoff_location = EXCLUDED.handoff_location,
			updated_at       = NOW()
		RETURNING ` + custodyColumns + `
	`

	id := day.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	return scanCustodyDay(r.db.QueryRow(ctx, query,
		id,
		day.FamilyID,
		day.Date,
		day.CustodianID,
		day.ActorID,
		day.HandoffDay,
		day.HandoffTime,
		day.HandoffLocation,
	))
}
