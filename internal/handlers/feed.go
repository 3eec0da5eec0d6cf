package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/levensailor/calndr-go/internal/ics"
	"github.com/levensailor/calndr-go/internal/models"
	"github.com/levensailor/calndr-go/internal/repository"
)

// FeedFamilyStore resolves a family from its calendar feed token.
type FeedFamilyStore interface {
	GetFamilyByFeedToken(ctx context.Context, token string) (*models.Family, error)
}

// FeedDayStore loads the full custody history for feed generation.
type FeedDayStore interface {
	All(ctx context.Context, familyID uuid.UUID) ([]models.CustodyDay, error)
}

// CustodyFeed serves the family's custody calendar as an iCalendar
// feed. Auth is the feed token alone; calendar apps cannot send JWTs.
func CustodyFeed(families FeedFamilyStore, days FeedDayStore, guardians GuardianStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Feed token required"})
			return
		}

		family, err := families.GetFamilyByFeedToken(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, repository.ErrFamilyNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Unknown feed token"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve feed token", "details": err.Error()})
			return
		}

		rows, err := days.All(c.Request.Context(), family.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load custody days", "details": err.Error()})
			return
		}

		index, err := guardianIndex(c.Request.Context(), guardians, family.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list guardians", "details": err.Error()})
			return
		}

		body := ics.BuildCustodyFeed(family, rows, index)
		c.Header("Content-Disposition", `inline; filename="custody.ics"`)
		c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(body))
	}
}
