package repository

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/levensailor/calndr-go/internal/models"
)

// SeedDemoFamily provisions the read-only demo family with two guardian
// accounts. Safe to call on every startup; an existing demo family is
// left untouched.
func SeedDemoFamily(ctx context.Context, families *FamilyRepository, users *UserRepository) error {
	exists, err := families.SlugExists(ctx, "demo")
	if err != nil {
		return fmt.Errorf("check demo slug: %w", err)
	}
	if exists {
		return nil
	}

	token, err := NewFeedToken()
	if err != nil {
		return err
	}
	family := &models.Family{
		Slug:      "demo",
		Name:      "Demo Family",
		Demo:      true,
		FeedToken: &token,
	}
	if err := families.CreateFamily(ctx, family); err != nil {
		return fmt.Errorf("create demo family: %w", err)
	}

	guardians := []struct {
		username  string
		firstName string
		color     string
	}{
		{"jess", "Jess", "#6c8ebf"},
		{"sam", "Sam", "#b85450"},
	}
	for _, g := range guardians {
		hash, err := bcrypt.GenerateFromPassword([]byte("demo-password"), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash demo password: %w", err)
		}
		hashStr := string(hash)
		user := &models.User{
			FamilyID:     family.ID,
			Username:     g.username,
			DisplayName:  g.firstName,
			FirstName:    g.firstName,
			Role:         models.RoleParent,
			ColorTheme:   g.color,
			PasswordHash: &hashStr,
			LoginEnabled: true,
		}
		if err := users.Create(ctx, user); err != nil {
			return fmt.Errorf("create demo guardian %s: %w", g.username, err)
		}
	}
	return nil
}

// NewFeedToken generates an opaque token for the unauthenticated
// calendar feed URL.
func NewFeedToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate feed token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
