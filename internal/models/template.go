package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Pattern types supported by schedule templates.
const (
	PatternWeekly           = "weekly"
	PatternAlternatingWeeks = "alternating-weeks"
	PatternAlternatingDays  = "alternating-days"
	PatternCustom           = "custom"
)

// Guardian role slots. Templates are written against abstract slots so
// one template works for any family; slots resolve to the family's two
// guardians ordered by account creation time (oldest = guardian-A).
const (
	SlotGuardianA = "guardian-A"
	SlotGuardianB = "guardian-B"
	SlotUnset     = ""
)

// WeeklyPattern maps lowercase weekday names ("monday".."sunday") to a
// role slot. Days left unset are skipped during template application.
type WeeklyPattern map[string]string

// SlotFor returns the role slot assigned to the given weekday.
func (p WeeklyPattern) SlotFor(wd time.Weekday) string {
	if p == nil {
		return SlotUnset
	}
	return p[strings.ToLower(wd.String())]
}

// Validate checks weekday keys and slot values.
func (p WeeklyPattern) Validate() error {
	for key, slot := range p {
		if !validWeekdays[key] {
			return fmt.Errorf("unknown weekday %q", key)
		}
		if slot != SlotUnset && slot != SlotGuardianA && slot != SlotGuardianB {
			return fmt.Errorf("unknown role slot %q for %s", slot, key)
		}
	}
	return nil
}

var validWeekdays = map[string]bool{
	"monday":    true,
	"tuesday":   true,
	"wednesday": true,
	"thursday":  true,
	"friday":    true,
	"saturday":  true,
	"sunday":    true,
}

// TemplatePattern is the JSONB payload of a schedule template. Only the
// fields for the template's pattern_type are populated:
//
//   - weekly:            Weekly
//   - alternating-weeks: Week1, Week2 (anchor_date sets week parity)
//   - alternating-days:  AnchorSlot (anchor_date holds that slot's day)
//   - custom:            RRule, RRuleSlot, DefaultSlot (anchor_date is
//     the rule's DTSTART); dates the rule matches get RRuleSlot, all
//     others get DefaultSlot (unset DefaultSlot skips them)
type TemplatePattern struct {
	Weekly      WeeklyPattern `json:"weekly,omitempty"`
	Week1       WeeklyPattern `json:"week1,omitempty"`
	Week2       WeeklyPattern `json:"week2,omitempty"`
	AnchorSlot  string        `json:"anchor_slot,omitempty"`
	RRule       string        `json:"rrule,omitempty"`
	RRuleSlot   string        `json:"rrule_slot,omitempty"`
	DefaultSlot string        `json:"default_slot,omitempty"`
}

// ScheduleTemplate is a reusable, declarative custody rule expanded
// into concrete CustodyDay rows by the scheduling engine.
type ScheduleTemplate struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	FamilyID    uuid.UUID       `json:"family_id" db:"family_id"`
	Name        string          `json:"name" db:"name"`
	PatternType string          `json:"pattern_type" db:"pattern_type"`
	Pattern     TemplatePattern `json:"pattern" db:"pattern"`

	// AnchorDate fixes the epoch for alternating and custom patterns.
	// Required for those pattern types, ignored for weekly.
	AnchorDate *time.Time `json:"-" db:"anchor_date"`

	// IsActive is advisory (UI filtering); it does not gate application.
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TemplateResponse is the API shape for a schedule template.
type TemplateResponse struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	PatternType string          `json:"pattern_type"`
	Pattern     TemplatePattern `json:"pattern"`
	AnchorDate  *string         `json:"anchor_date,omitempty"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ToResponse converts a ScheduleTemplate to its API shape
func (t *ScheduleTemplate) ToResponse() TemplateResponse {
	resp := TemplateResponse{
		ID:          t.ID,
		Name:        t.Name,
		PatternType: t.PatternType,
		Pattern:     t.Pattern,
		IsActive:    t.IsActive,
		CreatedAt:   t.CreatedAt,
	}
	if t.AnchorDate != nil {
		str := t.AnchorDate.Format("2006-01-02")
		resp.AnchorDate = &str
	}
	return resp
}

// CreateTemplateRequest is the body for creating a schedule template.
type CreateTemplateRequest struct {
	Name        string          `json:"name" binding:"required"`
	PatternType string          `json:"pattern_type" binding:"required"`
	Pattern     TemplatePattern `json:"pattern"`
	AnchorDate  *string         `json:"anchor_date,omitempty"` // "2006-01-02"
	IsActive    *bool           `json:"is_active,omitempty"`
}
