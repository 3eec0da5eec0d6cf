package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/levensailor/calndr-go/internal/custody"
	"github.com/levensailor/calndr-go/internal/middleware"
	"github.com/levensailor/calndr-go/internal/models"
)

// DayReader is the read side of the custody day store.
type DayReader interface {
	Get(ctx context.Context, familyID uuid.UUID, date time.Time) (*models.CustodyDay, error)
	GetRange(ctx context.Context, familyID uuid.UUID, start, end time.Time) ([]models.CustodyDay, error)
}

// DayEditor persists a single-day custody edit through handoff
// inference. *custody.Engine satisfies this.
type DayEditor interface {
	SetDay(ctx context.Context, familyID uuid.UUID, date time.Time, edit custody.DayEdit) (*models.CustodyDay, error)
}

// engineStatus maps custody engine error kinds to HTTP statuses.
func engineStatus(err error) int {
	switch {
	case errors.Is(err, custody.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, custody.ErrInvalidTemplate):
		return http.StatusUnprocessableEntity
	case errors.Is(err, custody.ErrRangeTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, custody.ErrPreconditionFailed):
		return http.StatusConflict
	case errors.Is(err, custody.ErrConcurrentRepair):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// GetCustodyRange returns custody days for a date range
func GetCustodyRange(days DayReader, guardians GuardianStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		familyID, ok := middleware.GetFamilyID(c)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Family context required"})
			return
		}

		startParam := c.Query("start")
		if startParam == "" {
			startParam = time.Now().Format("2006-01-02")
		}
		start, err := time.Parse("2006-01-02", startParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid start date format. Use YYYY-MM-DD"})
			return
		}

		endParam := c.Query("end")
		if endParam == "" {
			endParam = start.AddDate(0, 0, 30).Format("2006-01-02")
		}
		end, err := time.Parse("2006-01-02", endParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid end date format. Use YYYY-MM-DD"})
			return
		}
		if end.Before(start) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "End date precedes start date"})
			return
		}

		rows, err := days.GetRange(c.Request.Context(), familyID, start, end)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query custody days", "details": err.Error()})
			return
		}

		index, err := guardianIndex(c.Request.Context(), guardians, familyID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list guardians", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, buildRangeResponse(start, end, rows, index))
	}
}

func buildRangeResponse(start, end time.Time, rows []models.CustodyDay, index map[uuid.UUID]models.GuardianResponse) models.CustodyRangeResponse {
	out := models.CustodyRangeResponse{
		StartDate: start.Format("2006-01-02"),
		EndDate:   end.Format("2006-01-02"),
		Days:      make([]models.CustodyDayResponse, 0, len(rows)),
	}
	for i := range rows {
		out.Days = append(out.Days, rows[i].ToResponse(index))
	}
	out.TotalDays = len(out.Days)
	return out
}

// GetCustodyDay returns the custody record for a single date
func GetCustodyDay(days DayReader, guardians GuardianStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		familyID, ok := middleware.GetFamilyID(c)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Family context required"})
			return
		}

		date, err := time.Parse("2006-01-02", c.Param("date"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date format. Use YYYY-MM-DD"})
			return
		}

		day, err := days.Get(c.Request.Context(), familyID, date)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query custody day", "details": err.Error()})
			return
		}
		if day == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "No custody record for this date"})
			return
		}

		index, err := guardianIndex(c.Request.Context(), guardians, familyID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list guardians", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, day.ToResponse(index))
	}
}

// SetCustodyDay writes a single custody day. The handoff fields are
// presence-tracked: absent fields let the engine infer, explicit nulls
// clear the stored value, and concrete values override inference.
func SetCustodyDay(editor DayEditor, guardians GuardianStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		familyID, ok := middleware.GetFamilyID(c)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Family context required"})
			return
		}

		actorID, ok := middleware.GetAuthUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		date, err := time.Parse("2006-01-02", c.Param("date"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date format. Use YYYY-MM-DD"})
			return
		}

		var req models.SetCustodyDayRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
			return
		}
		custodianID, err := uuid.Parse(req.CustodianID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid custodian_id"})
			return
		}

		saved, err := editor.SetDay(c.Request.Context(), familyID, date, custody.DayEdit{
			CustodianID: custodianID,
			ActorID:     actorID,
			Handoff: custody.HandoffInput{
				HandoffDay: req.HandoffDay.Ptr(),
				Time:       req.HandoffTime.Ptr(),
				Location:   req.HandoffLocation.Ptr(),
			},
		})
		if err != nil {
			c.JSON(engineStatus(err), gin.H{"error": "Failed to save custody day", "details": err.Error()})
			return
		}

		index, err := guardianIndex(c.Request.Context(), guardians, familyID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list guardians", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, saved.ToResponse(index))
	}
}
