package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/levensailor/calndr-go/internal/models"
)

var ErrTemplateNotFound = errors.New("schedule template not found")

type TemplateRepository struct {
	db *pgxpool.Pool
}

func NewTemplateRepository(db *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{db: db}
}

const templateColumns = `id, family_id, name, pattern_type, pattern, anchor_date, is_active, created_at, updated_at`

func scanTemplate(row pgx.Row) (*models.ScheduleTemplate, error) {
	var tmpl models.ScheduleTemplate
	err := row.Scan(
		&tmpl.ID,
		&tmpl.FamilyID,
		&tmpl.Name,
		&tmpl.PatternType,
		&tmpl.Pattern,
		&tmpl.AnchorDate,
		&tmpl.IsActive,
		&tmpl.CreatedAt,
		&tmpl.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}
	return &tmpl, nil
}

// List returns a family's templates, newest first
func (r *TemplateRepository) List(ctx context.Context, familyID uuid.UUID) ([]models.ScheduleTemplate, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM schedule_templates
		WHERE family_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, familyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []models.ScheduleTemplate
	for rows.Next() {
		tmpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *tmpl)
	}
	return templates, rows.Err()
}

// Get retrieves one template scoped to a family
func (r *TemplateRepository) Get(ctx context.Context, familyID, templateID uuid.UUID) (*models.ScheduleTemplate, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM schedule_templates
		WHERE family_id = $1 AND id = $2
	`
	return scanTemplate(r.db.QueryRow(ctx, query, familyID, templateID))
}

// Create inserts a new template
func (r *TemplateRepository) Create(ctx context.Context, tmpl *models.ScheduleTemplate) error {
	query := `
		INSERT INTO schedule_templates (id, family_id, name, pattern_type, pattern, anchor_date, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	if tmpl.ID == uuid.Nil {
		tmpl.ID = uuid.New()
	}

	return r.db.QueryRow(ctx, query,
		tmpl.ID,
		tmpl.FamilyID,
		tmpl.Name,
		tmpl.PatternType,
		tmpl.Pattern,
		tmpl.AnchorDate,
		tmpl.IsActive,
	).Scan(&tmpl.ID, &tmpl.CreatedAt, &tmpl.UpdatedAt)
}

// Delete removes a template scoped to a family
func (r *TemplateRepository) Delete(ctx context.Context, familyID, templateID uuid.UUID) error {
	query := `DELETE FROM schedule_templates WHERE family_id = $1 AND id = $2`

	result, err := r.db.Exec(ctx, query, familyID, templateID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTemplateNotFound
	}
	return nil
}
