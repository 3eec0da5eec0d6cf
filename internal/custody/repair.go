package custody

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/levensailor/calndr-go/internal/models"
)

// RepairResult reports one consistency repair pass over a family.
type RepairResult struct {
	RecordsScanned int  `json:"records_scanned"`
	RecordsChanged int  `json:"records_changed"`
	DryRun         bool `json:"dry_run"`
}

// RepairFamily audits every custody day of a family in ascending date
// order and fixes inconsistent handoff records:
//
//   - A handoff_day=true record whose custodian matches the previous
//     calendar day is stale and is cleared, but only when it carries
//     neither a time nor a location. Annotated records are treated as
//     deliberate and left alone.
//   - A genuine handoff missing its time or location gets the weekday
//     defaults backfilled.
//
// Records with handoff_day=false are never promoted to true, and a
// record with no stored previous calendar day is never touched; the
// transition cannot be verified either way. The pass is idempotent.
// Only one repair per family runs at a time; overlapping calls get
// ErrConcurrentRepair. With dryRun set the change set is computed but
// nothing is written.
func (e *Engine) RepairFamily(ctx context.Context, familyID uuid.UUID, dryRun bool) (RepairResult, error) {
	result := RepairResult{DryRun: dryRun}

	if _, loaded := e.repairs.LoadOrStore(familyID, struct{}{}); loaded {
		return result, fmt.Errorf("%w: family %s", ErrConcurrentRepair, familyID)
	}
	defer e.repairs.Delete(familyID)

	roster, err := e.guardians.ListGuardians(ctx, familyID)
	if err != nil {
		return result, fmt.Errorf("list guardians: %w", err)
	}

	days, err := e.store.All(ctx, familyID)
	if err != nil {
		return result, fmt.Errorf("load custody history: %w", err)
	}

	e.logger.Info("repairing custody history",
		"family_id", familyID,
		"records", len(days),
		"dry_run", dryRun,
	)

	var prev *models.CustodyDay
	for i := range days {
		day := days[i]
		result.RecordsScanned++

		fixed, changed := e.repairRecord(&day, prev, roster)
		if changed {
			result.RecordsChanged++
			if !dryRun {
				if _, err := e.store.Upsert(ctx, fixed); err != nil {
					return result, fmt.Errorf("repair day %s: %w", day.Date.Format("2006-01-02"), err)
				}
			}
		}
		prev = &days[i]
	}

	e.logger.Info("repair finished",
		"family_id", familyID,
		"scanned", result.RecordsScanned,
		"changed", result.RecordsChanged,
		"dry_run", dryRun,
	)
	return result, nil
}

// repairRecord computes the corrected form of one record. prev is the
// stored record for any earlier date; it only corroborates a handoff
// when it covers exactly the preceding calendar day.
func (e *Engine) repairRecord(day, prev *models.CustodyDay, roster []Guardian) (*models.CustodyDay, bool) {
	if !day.HandoffDay {
		return day, false
	}
	if prev == nil || daysBetween(prev.Date, day.Date) != 1 {
		return day, false
	}

	if prev.CustodianID == day.CustodianID {
		// Stale flag. Clear only unannotated records.
		if day.HandoffTime != nil || day.HandoffLocation != nil {
			return day, false
		}
		fixed := *day
		fixed.HandoffDay = false
		return &fixed, true
	}

	// Genuine handoff: backfill missing fields.
	changed := false
	fixed := *day
	if fixed.HandoffTime == nil {
		t := defaultHandoffTime(day.Date)
		fixed.HandoffTime = &t
		changed = true
	}
	if fixed.HandoffLocation == nil {
		if loc := rosterHandoffLocation(day.Date, day.CustodianID, roster); loc != nil {
			fixed.HandoffLocation = loc
			changed = true
		}
	}
	return &fixed, changed
}

// rosterHandoffLocation mirrors the resolve-time location default using
// an already loaded roster. Returns nil when the weekend default cannot
// name the custodian, leaving the field for a human to fill.
func rosterHandoffLocation(date time.Time, custodianID uuid.UUID, roster []Guardian) *string {
	if !IsWeekend(date) {
		loc := WeekdayHandoffLocation
		return &loc
	}
	for _, g := range roster {
		if g.ID == custodianID && g.FirstName != "" {
			loc := g.FirstName + "'s home"
			return &loc
		}
	}
	return nil
}
