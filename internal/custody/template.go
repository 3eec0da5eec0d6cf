package custody

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	"github.com/levensailor/calndr-go/internal/models"
)

// ApplyResult summarizes one template application. DaysApplied counts
// every day written; ConflictsOverwritten the subset that replaced an
// existing row. Days skipped for an unset slot or an existing row
// without overwrite are not counted.
type ApplyResult struct {
	DaysApplied          int `json:"days_applied"`
	ConflictsOverwritten int `json:"conflicts_overwritten"`
}

// slotResolver maps a date to a template slot, or SlotUnset to skip it.
type slotResolver func(date time.Time) (string, error)

// ApplyTemplate expands a schedule template over an inclusive date
// range, writing one custody day per covered date in ascending order so
// handoff inference sees each freshly written predecessor. Existing
// rows are skipped unless overwrite is set. On a mid-range store
// failure the partial result is returned alongside the error; days
// already written stay written.
func (e *Engine) ApplyTemplate(ctx context.Context, tmpl *models.ScheduleTemplate, familyID, actorID uuid.UUID, start, end time.Time, overwrite bool) (ApplyResult, error) {
	var result ApplyResult

	if tmpl.FamilyID != familyID {
		return result, fmt.Errorf("%w: template %s does not belong to family %s", ErrNotFound, tmpl.ID, familyID)
	}

	start, end = DateOnly(start), DateOnly(end)
	if end.Before(start) {
		return result, fmt.Errorf("%w: end date %s precedes start date %s", ErrPreconditionFailed, end.Format("2006-01-02"), start.Format("2006-01-02"))
	}
	maxDays := e.MaxApplyDays
	if maxDays <= 0 {
		maxDays = DefaultMaxApplyDays
	}
	if days := daysBetween(start, end) + 1; days > maxDays {
		return result, fmt.Errorf("%w: range covers %d days, limit is %d", ErrRangeTooLarge, days, maxDays)
	}

	roster, err := e.guardians.ListGuardians(ctx, familyID)
	if err != nil {
		return result, fmt.Errorf("list guardians: %w", err)
	}
	if len(roster) < 2 {
		return result, fmt.Errorf("%w: family %s has %d guardians, templates need two", ErrPreconditionFailed, familyID, len(roster))
	}
	slots := map[string]uuid.UUID{
		models.SlotGuardianA: roster[0].ID,
		models.SlotGuardianB: roster[1].ID,
	}

	resolveSlot, err := buildSlotResolver(tmpl, start, end)
	if err != nil {
		return result, err
	}

	e.logger.Info("applying schedule template",
		"family_id", familyID,
		"template_id", tmpl.ID,
		"pattern", tmpl.PatternType,
		"start", start.Format("2006-01-02"),
		"end", end.Format("2006-01-02"),
		"overwrite", overwrite,
	)

	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		slot, err := resolveSlot(d)
		if err != nil {
			return result, err
		}
		if slot == models.SlotUnset {
			continue
		}
		custodianID, ok := slots[slot]
		if !ok {
			return result, fmt.Errorf("%w: pattern names unknown slot %q", ErrInvalidTemplate, slot)
		}

		existing, err := e.store.Get(ctx, familyID, d)
		if err != nil {
			return result, fmt.Errorf("load day %s: %w", d.Format("2006-01-02"), err)
		}
		if existing != nil && !overwrite {
			continue
		}

		prev, err := e.store.Get(ctx, familyID, d.AddDate(0, 0, -1))
		if err != nil {
			return result, fmt.Errorf("load previous day: %w", err)
		}
		resolved, err := e.resolve(ctx, familyID, d, custodianID, prev, HandoffInput{}, roster)
		if err != nil {
			return result, err
		}

		saved, err := e.store.Upsert(ctx, &models.CustodyDay{
			FamilyID:        familyID,
			Date:            d,
			CustodianID:     custodianID,
			ActorID:         actorID,
			HandoffDay:      resolved.HandoffDay,
			HandoffTime:     resolved.Time,
			HandoffLocation: resolved.Location,
		})
		if err != nil {
			return result, fmt.Errorf("upsert day %s: %w", d.Format("2006-01-02"), err)
		}
		result.DaysApplied++
		if existing != nil {
			result.ConflictsOverwritten++
			if existing.CustodianID != saved.CustodianID {
				e.emitChange(ctx, ChangeEvent{
					FamilyID:    familyID,
					Date:        d,
					ActorID:     actorID,
					CustodianID: saved.CustodianID,
				})
			}
		}
	}

	e.logger.Info("template applied",
		"family_id", familyID,
		"template_id", tmpl.ID,
		"days_applied", result.DaysApplied,
		"conflicts_overwritten", result.ConflictsOverwritten,
	)
	return result, nil
}

// ValidateTemplate checks a template's pattern payload without
// expanding it. The same checks gate every application, so templates
// rejected here would also be rejected at apply time.
func ValidateTemplate(tmpl *models.ScheduleTemplate) error {
	probe := DateOnly(time.Now())
	_, err := buildSlotResolver(tmpl, probe, probe)
	return err
}

// buildSlotResolver builds the per-pattern date→slot function. Pattern
// payloads are validated here so a bad template fails before any day is
// written.
func buildSlotResolver(tmpl *models.ScheduleTemplate, start, end time.Time) (slotResolver, error) {
	switch tmpl.PatternType {
	case models.PatternWeekly:
		if err := tmpl.Pattern.Weekly.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
		}
		weekly := tmpl.Pattern.Weekly
		return func(date time.Time) (string, error) {
			return weekly.SlotFor(date.Weekday()), nil
		}, nil

	case models.PatternAlternatingWeeks:
		if err := tmpl.Pattern.Week1.Validate(); err != nil {
			return nil, fmt.Errorf("%w: week1: %v", ErrInvalidTemplate, err)
		}
		if err := tmpl.Pattern.Week2.Validate(); err != nil {
			return nil, fmt.Errorf("%w: week2: %v", ErrInvalidTemplate, err)
		}
		anchor, err := templateAnchor(tmpl)
		if err != nil {
			return nil, err
		}
		week1, week2 := tmpl.Pattern.Week1, tmpl.Pattern.Week2
		return func(date time.Time) (string, error) {
			if floorMod(floorDiv(daysBetween(anchor, date), 7), 2) == 0 {
				return week1.SlotFor(date.Weekday()), nil
			}
			return week2.SlotFor(date.Weekday()), nil
		}, nil

	case models.PatternAlternatingDays:
		anchor, err := templateAnchor(tmpl)
		if err != nil {
			return nil, err
		}
		anchorSlot := tmpl.Pattern.AnchorSlot
		if anchorSlot == "" {
			anchorSlot = models.SlotGuardianA
		}
		if anchorSlot != models.SlotGuardianA && anchorSlot != models.SlotGuardianB {
			return nil, fmt.Errorf("%w: anchor_slot %q is not a guardian slot", ErrInvalidTemplate, anchorSlot)
		}
		other := models.SlotGuardianB
		if anchorSlot == models.SlotGuardianB {
			other = models.SlotGuardianA
		}
		return func(date time.Time) (string, error) {
			if floorMod(daysBetween(anchor, date), 2) == 0 {
				return anchorSlot, nil
			}
			return other, nil
		}, nil

	case models.PatternCustom:
		return customResolver(tmpl, start, end)

	default:
		return nil, fmt.Errorf("%w: unknown pattern type %q", ErrInvalidTemplate, tmpl.PatternType)
	}
}

// customResolver precomputes the recurrence rule's occurrences across
// the range (DTSTART = the template anchor) and assigns rrule_slot on
// matching dates, default_slot elsewhere.
func customResolver(tmpl *models.ScheduleTemplate, start, end time.Time) (slotResolver, error) {
	if tmpl.Pattern.RRule == "" {
		return nil, fmt.Errorf("%w: custom pattern requires an rrule", ErrInvalidTemplate)
	}
	ruleSlot := tmpl.Pattern.RRuleSlot
	if ruleSlot != models.SlotGuardianA && ruleSlot != models.SlotGuardianB {
		return nil, fmt.Errorf("%w: rrule_slot %q is not a guardian slot", ErrInvalidTemplate, ruleSlot)
	}
	defaultSlot := tmpl.Pattern.DefaultSlot
	if defaultSlot != models.SlotUnset && defaultSlot != models.SlotGuardianA && defaultSlot != models.SlotGuardianB {
		return nil, fmt.Errorf("%w: default_slot %q is not a guardian slot", ErrInvalidTemplate, defaultSlot)
	}
	anchor, err := templateAnchor(tmpl)
	if err != nil {
		return nil, err
	}

	rule, err := rrule.StrToRRule(tmpl.Pattern.RRule)
	if err != nil {
		return nil, fmt.Errorf("%w: bad rrule: %v", ErrInvalidTemplate, err)
	}
	rule.DTStart(anchor)

	// Occurrences and range bounds both sit at UTC midnight, so an
	// inclusive Between covers the range exactly.
	matches := make(map[string]struct{})
	for _, occ := range rule.Between(start, end, true) {
		matches[DateOnly(occ).Format("2006-01-02")] = struct{}{}
	}

	return func(date time.Time) (string, error) {
		if _, ok := matches[date.Format("2006-01-02")]; ok {
			return ruleSlot, nil
		}
		return defaultSlot, nil
	}, nil
}

func templateAnchor(tmpl *models.ScheduleTemplate) (time.Time, error) {
	if tmpl.AnchorDate == nil {
		return time.Time{}, fmt.Errorf("%w: pattern %s requires an anchor_date", ErrInvalidTemplate, tmpl.PatternType)
	}
	return DateOnly(*tmpl.AnchorDate), nil
}
