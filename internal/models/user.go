package models

import (
	"time"

	"github.com/google/uuid"
)

// User roles within a family. Guardians ("parent") hold custody and can
// edit the schedule; children get read-only calendar access.
const (
	RoleParent = "parent"
	RoleChild  = "child"
)

// User represents a family member in the family database
type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	FamilyID     uuid.UUID `json:"family_id" db:"family_id"`
	Username     string    `json:"username" db:"username"`
	DisplayName  string    `json:"display_name" db:"display_name"`
	FirstName    string    `json:"first_name" db:"first_name"`
	Role         string    `json:"role" db:"role"`
	ColorTheme   string    `json:"color_theme" db:"color_theme"`
	PasswordHash *string   `json:"-" db:"password_hash"`
	LoginEnabled bool      `json:"login_enabled" db:"login_enabled"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// IsGuardian reports whether the user holds a custodial role.
func (u *User) IsGuardian() bool {
	return u.Role == RoleParent
}

// GuardianResponse is the API shape for the guardian directory. Order in
// a list response follows account creation time, oldest first; the first
// two entries are the family's guardian-A and guardian-B template slots.
type GuardianResponse struct {
	ID          uuid.UUID `json:"id"`
	FirstName   string    `json:"first_name"`
	DisplayName string    `json:"display_name"`
	ColorTheme  string    `json:"color_theme"`
}

// ToGuardianResponse converts User to GuardianResponse
func (u *User) ToGuardianResponse() GuardianResponse {
	return GuardianResponse{
		ID:          u.ID,
		FirstName:   u.FirstName,
		DisplayName: u.DisplayName,
		ColorTheme:  u.ColorTheme,
	}
}
