package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/levensailor/calndr-go/internal/custody"
	"github.com/levensailor/calndr-go/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, family_id, username, display_name, first_name, role, color_theme, password_hash, login_enabled, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.FamilyID,
		&user.Username,
		&user.DisplayName,
		&user.FirstName,
		&user.Role,
		&user.ColorTheme,
		&user.PasswordHash,
		&user.LoginEnabled,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetByUsername retrieves a user by username within a family. The
// lookup is case-insensitive.
func (r *UserRepository) GetByUsername(ctx context.Context, familyID uuid.UUID, username string) (*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE family_id = $1 AND LOWER(username) = $2
	`
	username = strings.ToLower(strings.TrimSpace(username))
	return scanUser(r.db.QueryRow(ctx, query, familyID, username))
}

// GetByID retrieves a user by ID within a family
func (r *UserRepository) GetByID(ctx context.Context, familyID, userID uuid.UUID) (*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE family_id = $1 AND id = $2
	`
	return scanUser(r.db.QueryRow(ctx, query, familyID, userID))
}

// List returns all of a family's users ordered by account creation
func (r *UserRepository) List(ctx context.Context, familyID uuid.UUID) ([]models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE family_id = $1
		ORDER BY created_at, id
	`
	return r.queryUsers(ctx, query, familyID)
}

// ListParents returns the family's guardian accounts ordered by account
// creation time. The first two back the guardian-A/guardian-B template
// slots, oldest first.
func (r *UserRepository) ListParents(ctx context.Context, familyID uuid.UUID) ([]models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE family_id = $1 AND role = 'parent'
		ORDER BY created_at, id
	`
	return r.queryUsers(ctx, query, familyID)
}

func (r *UserRepository) queryUsers(ctx context.Context, query string, familyID uuid.UUID) ([]models.User, error) {
	rows, err := r.db.Query(ctx, query, familyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// ListGuardians is the scheduling engine's view of the guardian roster.
func (r *UserRepository) ListGuardians(ctx context.Context, familyID uuid.UUID) ([]custody.Guardian, error) {
	query := `
		SELECT id, first_name
		FROM users
		WHERE family_id = $1 AND role = 'parent'
		ORDER BY created_at, id
	`

	rows, err := r.db.Query(ctx, query, familyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var guardians []custody.Guardian
	for rows.Next() {
		var g custody.Guardian
		if err := rows.Scan(&g.ID, &g.FirstName); err != nil {
			return nil, err
		}
		guardians = append(guardians, g)
	}
	return guardians, rows.Err()
}

// Create inserts a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, family_id, username, display_name, first_name, role, color_theme, password_hash, login_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Role == "" {
		user.Role = models.RoleParent
	}

	return r.db.QueryRow(ctx, query,
		user.ID,
		user.FamilyID,
		user.Username,
		user.DisplayName,
		user.FirstName,
		user.Role,
		user.ColorTheme,
		user.PasswordHash,
		user.LoginEnabled,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
}
