package models

import (
	"time"

	"github.com/google/uuid"
)

// Family represents a family account in the multi-tenant system
type Family struct {
	ID   uuid.UUID `json:"id" db:"id"`
	Slug string    `json:"slug" db:"slug"` // Unique identifier for subdomain (e.g., "gamull", "smith-nyc")
	Name string    `json:"name" db:"name"` // Display name (e.g., "The Gamull Family")

	// Subscription
	Plan   string `json:"plan" db:"plan"`     // Subscription plan: "free", "premium"
	Status string `json:"status" db:"status"` // "trial", "active", "suspended", "cancelled"

	// FeedToken authorizes the unauthenticated ICS feed endpoint.
	// Nil means the family has not enabled calendar subscriptions.
	FeedToken *string `json:"-" db:"feed_token"`

	// Demo marks sandbox families whose data must not be mutated.
	Demo bool `json:"demo" db:"demo"`

	// Metadata
	LastActiveAt *time.Time `json:"-" db:"last_active_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty" db:"deleted_at"` // Soft delete
}
