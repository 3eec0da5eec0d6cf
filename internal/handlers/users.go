package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/levensailor/calndr-go/internal/middleware"
	"github.com/levensailor/calndr-go/internal/models"
	"github.com/levensailor/calndr-go/internal/repository"
)

// UserDirectory loads individual family members.
type UserDirectory interface {
	GetByID(ctx context.Context, familyID, userID uuid.UUID) (*models.User, error)
}

// CurrentUser returns the authenticated user's profile
func CurrentUser(users UserDirectory) gin.HandlerFunc {
	return func(c *gin.Context) {
		familyID, ok := middleware.GetFamilyID(c)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Family context required"})
			return
		}

		userID, ok := middleware.GetAuthUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		user, err := users.GetByID(c.Request.Context(), familyID, userID)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, user)
	}
}
