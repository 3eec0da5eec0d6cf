package models

import (
	"time"

	"github.com/google/uuid"
)

// CustodyDay is one calendar day's custody assignment for one family.
// At most one row exists per (family_id, date); writes are upserts and
// the engine never hard-deletes rows.
type CustodyDay struct {
	ID          uuid.UUID `json:"id" db:"id"`
	FamilyID    uuid.UUID `json:"family_id" db:"family_id"`
	Date        time.Time `json:"-" db:"date"` // DATE column; serialized as "2006-01-02"
	CustodianID uuid.UUID `json:"custodian_id" db:"custodian_id"`
	ActorID     uuid.UUID `json:"actor_id" db:"actor_id"` // who wrote the row; audit only

	// HandoffDay is true when custody transferred from the previous
	// calendar day (or the user explicitly flagged the day).
	HandoffDay      bool    `json:"handoff_day" db:"handoff_day"`
	HandoffTime     *string `json:"handoff_time,omitempty" db:"handoff_time"` // "HH:MM", nil when unset
	HandoffLocation *string `json:"handoff_location,omitempty" db:"handoff_location"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CustodyDayResponse is the API shape for a single custody day. The
// custodian's display fields are denormalized so the calendar UI can
// render without a second lookup.
type CustodyDayResponse struct {
	ID              uuid.UUID `json:"id"`
	Date            string    `json:"date"`
	CustodianID     uuid.UUID `json:"custodian_id"`
	CustodianName   string    `json:"custodian_name,omitempty"`
	CustodianColor  string    `json:"custodian_color,omitempty"`
	HandoffDay      bool      `json:"handoff_day"`
	HandoffTime     *string   `json:"handoff_time,omitempty"`
	HandoffLocation *string   `json:"handoff_location,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ToResponse converts a CustodyDay to its API shape. The guardian
// lookup is optional; pass nil when custodian display fields are not
// needed.
func (d *CustodyDay) ToResponse(guardians map[uuid.UUID]GuardianResponse) CustodyDayResponse {
	resp := CustodyDayResponse{
		ID:              d.ID,
		Date:            d.Date.Format("2006-01-02"),
		CustodianID:     d.CustodianID,
		HandoffDay:      d.HandoffDay,
		HandoffTime:     d.HandoffTime,
		HandoffLocation: d.HandoffLocation,
		UpdatedAt:       d.UpdatedAt,
	}
	if g, ok := guardians[d.CustodianID]; ok {
		resp.CustodianName = g.FirstName
		resp.CustodianColor = g.ColorTheme
	}
	return resp
}

// CustodyRangeResponse is the API response for custody range queries
type CustodyRangeResponse struct {
	StartDate string               `json:"start_date"`
	EndDate   string               `json:"end_date"`
	Days      []CustodyDayResponse `json:"days"`
	TotalDays int                  `json:"total_days"`
}

// SetCustodyDayRequest is the body for a direct single-day edit. The
// handoff fields track JSON presence: a field that is absent lets the
// engine infer or derive a value, an explicit null clears the stored
// value before derivation, and a concrete value is an override.
type SetCustodyDayRequest struct {
	CustodianID     string           `json:"custodian_id" binding:"required"`
	HandoffDay      Optional[bool]   `json:"handoff_day"`
	HandoffTime     Optional[string] `json:"handoff_time"`
	HandoffLocation Optional[string] `json:"handoff_location"`
}

// ApplyTemplateRequest is the body for applying a schedule template
// over a date range.
type ApplyTemplateRequest struct {
	StartDate         string `json:"start_date" binding:"required"`
	EndDate           string `json:"end_date" binding:"required"`
	OverwriteExisting bool   `json:"overwrite_existing"`
}
