package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/levensailor/calndr-go/internal/custody"
	"github.com/levensailor/calndr-go/internal/middleware"
)

// FamilyRepairer reconciles a family's custody timeline.
// *custody.Engine satisfies this.
type FamilyRepairer interface {
	RepairFamily(ctx context.Context, familyID uuid.UUID, dryRun bool) (custody.RepairResult, error)
}

// TriggerRepair runs the consistency repair for the family on demand.
// With dry_run=true the change set is computed but nothing is written.
func TriggerRepair(repairer FamilyRepairer) gin.HandlerFunc {
	return func(c *gin.Context) {
		familyID, ok := middleware.GetFamilyID(c)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Family context required"})
			return
		}

		dryRun, err := strconv.ParseBool(c.DefaultQuery("dry_run", "false"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid dry_run value. Use true or false"})
			return
		}

		result, err := repairer.RepairFamily(c.Request.Context(), familyID, dryRun)
		if err != nil {
			if errors.Is(err, custody.ErrConcurrentRepair) {
				c.JSON(http.StatusConflict, gin.H{"error": "A repair is already running for this family"})
				return
			}
			c.JSON(engineStatus(err), gin.H{"error": "Repair failed", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, result)
	}
}
