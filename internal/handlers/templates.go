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
	"github.com/levensailor/calndr-go/internal/repository"
)

// TemplateStore is the schedule template repository surface the
// handlers need.
type TemplateStore interface {
	List(ctx context.Context, familyID uuid.UUID) ([]models.ScheduleTemplate, error)
	Get(ctx context.Context, familyID, templateID uuid.UUID) (*models.ScheduleTemplate, error)
	Create(ctx context.Context, tmpl *models.ScheduleTemplate) error
	Delete(ctx context.Context, familyID, templateID uuid.UUID) error
}

// TemplateApplier expands a template into custody days.
// *custody.Engine satisfies this.
type TemplateApplier interface {
	ApplyTemplate(ctx context.Context, tmpl *models.ScheduleTemplate, familyID, actorID uuid.UUID, start, end time.Time, overwrite bool) (custody.ApplyResult, error)
}

// ListTemplates returns the family's schedule templates
func ListTemplates(store TemplateStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		family, ok := middleware.GetFamily(c)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Family context required"})
			return
		}

		templates, err := store.List(c.Request.Context(), family.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list templates", "details": err.Error()})
			return
		}

		resp := make([]models.TemplateResponse, 0, len(templates))
		for i := range templates {
			resp = append(resp, templates[i].ToResponse())
		}

		c.JSON(http.StatusOK, gin.H{
			"family_id":   family.ID,
			"family_name": family.Name,
			"templates":   resp,
			"count":       len(resp),
		})
	}
}

// CreateTemplate creates a schedule template. The pattern payload is
// validated here so a bad template is rejected before it can be
// applied.
func CreateTemplate(store TemplateStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		familyID, ok := middleware.GetFamilyID(c)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Family context required"})
			return
		}

		var req models.CreateTemplateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
			return
		}

		tmpl := models.ScheduleTemplate{
			FamilyID:    familyID,
			Name:        req.Name,
			PatternType: req.PatternType,
			Pattern:     req.Pattern,
			IsActive:    true,
		}
		if req.IsActive != nil {
			tmpl.IsActive = *req.IsActive
		}
		if req.AnchorDate != nil {
			anchor, err := time.Parse("2006-01-02", *req.AnchorDate)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid anchor_date format. Use YYYY-MM-DD"})
				return
			}
			tmpl.AnchorDate = &anchor
		}

		if err := custody.ValidateTemplate(&tmpl); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid template", "details": err.Error()})
			return
		}

		if err := store.Create(c.Request.Context(), &tmpl); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create template", "details": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, tmpl.ToResponse())
	}
}

// GetTemplate returns a single schedule template
func GetTemplate(store TemplateStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		familyID, ok := middleware.GetFamilyID(c)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Family context required"})
			return
		}

		templateID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid template ID"})
			return
		}

		tmpl, err := store.Get(c.Request.Context(), familyID, templateID)
		if err != nil {
			if errors.Is(err, repository.ErrTemplateNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load template", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, tmpl.ToResponse())
	}
}

// DeleteTemplate removes a schedule template. Custody days already
// written from it are untouched.
func DeleteTemplate(store TemplateStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		familyID, ok := middleware.GetFamilyID(c)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Family context required"})
			return
		}

		templateID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid template ID"})
			return
		}

		if err := store.Delete(c.Request.Context(), familyID, templateID); err != nil {
			if errors.Is(err, repository.ErrTemplateNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete template", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Template deleted successfully"})
	}
}

// ApplyTemplate expands a template over a date range, writing custody
// days through handoff inference
func ApplyTemplate(store TemplateStore, applier TemplateApplier) gin.HandlerFunc {
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

		templateID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid template ID"})
			return
		}

		var req models.ApplyTemplateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
			return
		}
		start, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid start_date format. Use YYYY-MM-DD"})
			return
		}
		end, err := time.Parse("2006-01-02", req.EndDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid end_date format. Use YYYY-MM-DD"})
			return
		}

		tmpl, err := store.Get(c.Request.Context(), familyID, templateID)
		if err != nil {
			if errors.Is(err, repository.ErrTemplateNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load template", "details": err.Error()})
			return
		}

		result, err := applier.ApplyTemplate(c.Request.Context(), tmpl, familyID, actorID, start, end, req.OverwriteExisting)
		if err != nil {
			c.JSON(engineStatus(err), gin.H{"error": "Failed to apply template", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, result)
	}
}
