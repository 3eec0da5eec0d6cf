package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/levensailor/calndr-go/internal/models"
)

var ErrFamilyNotFound = errors.New("family not found")
var ErrSlugTaken = errors.New("slug already taken")

type FamilyRepository struct {
	db *pgxpool.Pool
}

func NewFamilyRepository(db *pgxpool.Pool) *FamilyRepository {
	return &FamilyRepository{db: db}
}

const familyColumns = `id, slug, name, plan, status, feed_token, demo, last_active_at, created_at, updated_at, deleted_at`

func scanFamily(row pgx.Row) (*models.Family, error) {
	var family models.Family
	err := row.Scan(
		&family.ID,
		&family.Slug,
		&family.Name,
		&family.Plan,
		&family.Status,
		&family.FeedToken,
		&family.Demo,
		&family.LastActiveAt,
		&family.CreatedAt,
		&family.UpdatedAt,
		&family.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFamilyNotFound
		}
		return nil, err
	}
	return &family, nil
}

// GetFamilyBySlug retrieves a family by its subdomain slug
func (r *FamilyRepository) GetFamilyBySlug(ctx context.Context, slug string) (*models.Family, error) {
	query := `
		SELECT ` + familyColumns + `
		FROM families
		WHERE slug = $1 AND deleted_at IS NULL
	`
	return scanFamily(r.db.QueryRow(ctx, query, slug))
}

// GetFamilyByID retrieves full family details by ID
func (r *FamilyRepository) GetFamilyByID(ctx context.Context, id uuid.UUID) (*models.Family, error) {
	query := `
		SELECT ` + familyColumns + `
		FROM families
		WHERE id = $1 AND deleted_at IS NULL
	`
	return scanFamily(r.db.QueryRow(ctx, query, id))
}

// GetFamilyByFeedToken retrieves an active family by its calendar feed
// token. Feed tokens authenticate the ICS endpoint without a JWT.
func (r *FamilyRepository) GetFamilyByFeedToken(ctx context.Context, token string) (*models.Family, error) {
	query := `
		SELECT ` + familyColumns + `
		FROM families
		WHERE feed_token = $1 AND deleted_at IS NULL AND status = 'active'
	`
	return scanFamily(r.db.QueryRow(ctx, query, token))
}

// ListActiveFamilies returns every active family. Used by the nightly
// repair sweep.
func (r *FamilyRepository) ListActiveFamilies(ctx context.Context) ([]models.Family, error) {
	query := `
		SELECT ` + familyColumns + `
		FROM families
		WHERE deleted_at IS NULL AND status = 'active'
		ORDER BY slug
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var families []models.Family
	for rows.Next() {
		family, err := scanFamily(rows)
		if err != nil {
			return nil, err
		}
		families = append(families, *family)
	}
	return families, rows.Err()
}

// CreateFamily creates a new family with the given slug
func (r *FamilyRepository) CreateFamily(ctx context.Context, family *models.Family) error {
	// Check if slug is already taken
	exists, err := r.SlugExists(ctx, family.Slug)
	if err != nil {
		return err
	}
	if exists {
		return ErrSlugTaken
	}

	query := `
		INSERT INTO families (id, slug, name, plan, status, feed_token, demo, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	if family.ID == uuid.Nil {
		family.ID = uuid.New()
	}
	if family.Plan == "" {
		family.Plan = "free"
	}
	if family.Status == "" {
		family.Status = "active"
	}

	return r.db.QueryRow(ctx, query,
		family.ID,
		family.Slug,
		family.Name,
		family.Plan,
		family.Status,
		family.FeedToken,
		family.Demo,
	).Scan(&family.ID, &family.CreatedAt, &family.UpdatedAt)
}

// SlugExists checks if a slug is already in use
func (r *FamilyRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM families WHERE slug = $1 AND deleted_at IS NULL)`
	var exists bool
	err := r.db.QueryRow(ctx, query, slug).Scan(&exists)
	return exists, err
}

// TouchActivity updates the last_active_at timestamp
func (r *FamilyRepository) TouchActivity(ctx context.Context, familyID uuid.UUID) error {
	query := `UPDATE families SET last_active_at = NOW() WHERE id = $1`
	_, err := r.db.Exec(ctx, query, familyID)
	return err
}
