package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/levensailor/calndr-go/internal/middleware"
	"github.com/levensailor/calndr-go/internal/models"
)

// GuardianStore lists a family's guardian accounts, oldest first. The
// first two returned are the family's guardian-A and guardian-B
// template slots.
type GuardianStore interface {
	ListParents(ctx context.Context, familyID uuid.UUID) ([]models.User, error)
}

// ListGuardians returns the family's guardian directory
func ListGuardians(guardians GuardianStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		family, ok := middleware.GetFamily(c)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Family context required"})
			return
		}

		parents, err := guardians.ListParents(c.Request.Context(), family.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list guardians", "details": err.Error()})
			return
		}

		resp := make([]models.GuardianResponse, 0, len(parents))
		for i := range parents {
			resp = append(resp, parents[i].ToGuardianResponse())
		}

		c.JSON(http.StatusOK, gin.H{
			"family_id":   family.ID,
			"family_name": family.Name,
			"guardians":   resp,
			"count":       len(resp),
		})
	}
}

// guardianIndex loads the family's guardians keyed by user ID, for
// denormalizing custodian display fields into day responses.
func guardianIndex(ctx context.Context, guardians GuardianStore, familyID uuid.UUID) (map[uuid.UUID]models.GuardianResponse, error) {
	parents, err := guardians.ListParents(ctx, familyID)
	if err != nil {
		return nil, err
	}
	index := make(map[uuid.UUID]models.GuardianResponse, len(parents))
	for i := range parents {
		index[parents[i].ID] = parents[i].ToGuardianResponse()
	}
	return index, nil
}
