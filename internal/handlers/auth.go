package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/levensailor/calndr-go/internal/auth"
	"github.com/levensailor/calndr-go/internal/middleware"
	"github.com/levensailor/calndr-go/internal/models"
	"github.com/levensailor/calndr-go/internal/repository"
)

// UserStore is the slice of the user repository the auth handlers need.
type UserStore interface {
	GetByUsername(ctx context.Context, familyID uuid.UUID, username string) (*models.User, error)
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token       string    `json:"token"`
	UserID      uuid.UUID `json:"user_id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	FamilyID    uuid.UUID `json:"family_id"`
}

// Login authenticates a family member and returns a JWT token
func Login(users UserStore, jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		family, ok := middleware.GetFamily(c)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Family context required"})
			return
		}

		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
			return
		}

		user, err := users.GetByUsername(c.Request.Context(), family.ID, req.Username)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up user", "details": err.Error()})
			return
		}

		if !user.LoginEnabled {
			c.JSON(http.StatusForbidden, gin.H{"error": "Login is disabled for this user"})
			return
		}

		if user.PasswordHash == nil || *user.PasswordHash == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Password authentication not configured for this user"})
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.Password)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
			return
		}

		token, err := jwtService.GenerateToken(user.ID, family.ID, user.Username, user.Role)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
			return
		}

		c.JSON(http.StatusOK, LoginResponse{
			Token:       token,
			UserID:      user.ID,
			Username:    user.Username,
			DisplayName: user.DisplayName,
			Role:        user.Role,
			FamilyID:    family.ID,
		})
	}
}
