package custody

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/levensailor/calndr-go/internal/models"
)

// Default handoff time and location values derived from the weekday of
// the target date. Weekend handoffs happen midday at the receiving
// guardian's home; weekday handoffs happen at daycare pickup.
const (
	WeekendHandoffTime = "12:00"
	WeekdayHandoffTime = "17:00"

	WeekdayHandoffLocation = "daycare"
)

// DefaultMaxApplyDays caps the date range a single template application
// may cover. Multi-year ranges should be chunked by the caller.
const DefaultMaxApplyDays = 730

// DayStore is the persistence contract the engine needs for custody
// days. Get returns (nil, nil) when no row exists for the date; range
// and full scans return rows in ascending date order. Upsert enforces
// the (family_id, date) uniqueness invariant.
type DayStore interface {
	Get(ctx context.Context, familyID uuid.UUID, date time.Time) (*models.CustodyDay, error)
	GetRange(ctx context.Context, familyID uuid.UUID, start, end time.Time) ([]models.CustodyDay, error)
	All(ctx context.Context, familyID uuid.UUID) ([]models.CustodyDay, error)
	Upsert(ctx context.Context, day *models.CustodyDay) (*models.CustodyDay, error)
}

// Guardian is the engine's view of a custodial guardian.
type Guardian struct {
	ID        uuid.UUID
	FirstName string
}

// GuardianDirectory lists a family's guardians ordered by account
// creation time, oldest first. The first two entries back the
// guardian-A and guardian-B template slots.
type GuardianDirectory interface {
	ListGuardians(ctx context.Context, familyID uuid.UUID) ([]Guardian, error)
}

// ChangeEvent describes a custody change for downstream notification.
type ChangeEvent struct {
	FamilyID    uuid.UUID
	Date        time.Time
	ActorID     uuid.UUID
	CustodianID uuid.UUID
}

// Notifier receives custody change events after a successful write.
// Delivery is entirely the implementation's concern; a failure there
// must never roll back the custody write, so implementations should not
// return errors to the engine at all.
type Notifier interface {
	CustodyChanged(ctx context.Context, event ChangeEvent)
}

// Engine implements handoff inference, template expansion, and
// consistency repair over a family's custody days.
type Engine struct {
	store     DayStore
	guardians GuardianDirectory
	notifier  Notifier
	logger    *slog.Logger

	// MaxApplyDays overrides DefaultMaxApplyDays when positive.
	MaxApplyDays int

	// repairs tracks in-flight repair jobs per family.
	repairs sync.Map // uuid.UUID -> struct{}
}

// NewEngine creates a custody engine. notifier may be nil when change
// events are not needed (tests, one-off tooling).
func NewEngine(store DayStore, guardians GuardianDirectory, notifier Notifier, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     store,
		guardians: guardians,
		notifier:  notifier,
		logger:    logger,
	}
}

// HandoffInput carries the caller-supplied handoff fields for one day.
// Nil means "not supplied": HandoffDay nil asks the engine to infer,
// Time/Location nil let the engine derive weekday defaults on handoff
// days. A non-nil HandoffDay is an explicit override that always wins.
type HandoffInput struct {
	HandoffDay *bool
	Time       *string // "HH:MM"
	Location   *string
}

// ResolvedHandoff is the engine's decision for one day.
type ResolvedHandoff struct {
	HandoffDay bool
	Time       *string
	Location   *string
}

// ResolveHandoff determines whether custody transfers into the given
// date and fills in default handoff time/location where the caller
// supplied none. It reads the previous calendar day from the store but
// writes nothing; persisting the result is the caller's job.
func (e *Engine) ResolveHandoff(ctx context.Context, familyID uuid.UUID, date time.Time, custodianID uuid.UUID, in HandoffInput) (ResolvedHandoff, error) {
	day := DateOnly(date)
	prev, err := e.store.Get(ctx, familyID, day.AddDate(0, 0, -1))
	if err != nil {
		return ResolvedHandoff{}, fmt.Errorf("load previous day: %w", err)
	}
	return e.resolve(ctx, familyID, day, custodianID, prev, in, nil)
}

// resolve is the inference core shared by ResolveHandoff, SetDay,
// ApplyTemplate, and the repair job's backfill rule. roster is an
// optional preloaded guardian list; when nil the directory is consulted
// only if a default weekend location must name the custodian.
func (e *Engine) resolve(ctx context.Context, familyID uuid.UUID, date time.Time, custodianID uuid.UUID, prev *models.CustodyDay, in HandoffInput, roster []Guardian) (ResolvedHandoff, error) {
	// Explicit override wins verbatim: no defaulting beyond what the
	// caller supplied.
	if in.HandoffDay != nil {
		return ResolvedHandoff{
			HandoffDay: *in.HandoffDay,
			Time:       in.Time,
			Location:   in.Location,
		}, nil
	}

	handoff := false
	switch {
	case in.Time != nil:
		// An explicit time with no explicit flag signals an intended
		// handoff.
		handoff = true
	case prev != nil && prev.CustodianID != custodianID:
		handoff = true
	}

	if !handoff {
		// Explicit annotations on a non-transfer day are preserved
		// verbatim; everything else clears.
		return ResolvedHandoff{HandoffDay: false, Time: in.Time, Location: in.Location}, nil
	}

	resolved := ResolvedHandoff{HandoffDay: true, Time: in.Time, Location: in.Location}
	if resolved.Time == nil {
		t := defaultHandoffTime(date)
		resolved.Time = &t
	}
	if resolved.Location == nil {
		loc, err := e.defaultHandoffLocation(ctx, familyID, date, custodianID, roster)
		if err != nil {
			return ResolvedHandoff{}, err
		}
		resolved.Location = loc
	}
	return resolved, nil
}

// defaultHandoffTime applies the weekday split: Saturday and Sunday are
// midday handoffs, Monday through Friday are pickup-time handoffs.
func defaultHandoffTime(date time.Time) string {
	if IsWeekend(date) {
		return WeekendHandoffTime
	}
	return WeekdayHandoffTime
}

// defaultHandoffLocation derives the weekday-based location default.
// Weekend handoffs name the receiving guardian's home; when the
// guardian's first name cannot be resolved the location is left unset
// rather than producing a nameless string.
func (e *Engine) defaultHandoffLocation(ctx context.Context, familyID uuid.UUID, date time.Time, custodianID uuid.UUID, roster []Guardian) (*string, error) {
	if !IsWeekend(date) {
		loc := WeekdayHandoffLocation
		return &loc, nil
	}
	if roster == nil {
		var err error
		roster, err = e.guardians.ListGuardians(ctx, familyID)
		if err != nil {
			return nil, fmt.Errorf("list guardians: %w", err)
		}
	}
	for _, g := range roster {
		if g.ID == custodianID && g.FirstName != "" {
			loc := g.FirstName + "'s home"
			return &loc, nil
		}
	}
	return nil, nil
}

// DayEdit is a direct single-day custody write.
type DayEdit struct {
	CustodianID uuid.UUID
	ActorID     uuid.UUID
	Handoff     HandoffInput
}

// SetDay resolves and persists a direct edit to one custody day. The
// custodian must be one of the family's registered guardians. A change
// event is emitted when the write changed the custodian relative to the
// previously stored value for that date; first-time assignments emit
// nothing.
func (e *Engine) SetDay(ctx context.Context, familyID uuid.UUID, date time.Time, edit DayEdit) (*models.CustodyDay, error) {
	day := DateOnly(date)

	roster, err := e.guardians.ListGuardians(ctx, familyID)
	if err != nil {
		return nil, fmt.Errorf("list guardians: %w", err)
	}
	if !rosterContains(roster, edit.CustodianID) {
		return nil, fmt.Errorf("%w: custodian %s is not a registered guardian of family %s", ErrPreconditionFailed, edit.CustodianID, familyID)
	}

	existing, err := e.store.Get(ctx, familyID, day)
	if err != nil {
		return nil, fmt.Errorf("load existing day: %w", err)
	}
	prev, err := e.store.Get(ctx, familyID, day.AddDate(0, 0, -1))
	if err != nil {
		return nil, fmt.Errorf("load previous day: %w", err)
	}

	resolved, err := e.resolve(ctx, familyID, day, edit.CustodianID, prev, edit.Handoff, roster)
	if err != nil {
		return nil, err
	}

	saved, err := e.store.Upsert(ctx, &models.CustodyDay{
		FamilyID:        familyID,
		Date:            day,
		CustodianID:     edit.CustodianID,
		ActorID:         edit.ActorID,
		HandoffDay:      resolved.HandoffDay,
		HandoffTime:     resolved.Time,
		HandoffLocation: resolved.Location,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert custody day: %w", err)
	}

	if existing != nil && existing.CustodianID != saved.CustodianID {
		e.emitChange(ctx, ChangeEvent{
			FamilyID:    familyID,
			Date:        day,
			ActorID:     edit.ActorID,
			CustodianID: saved.CustodianID,
		})
	}
	return saved, nil
}

func (e *Engine) emitChange(ctx context.Context, event ChangeEvent) {
	if e.notifier == nil {
		return
	}
	e.notifier.CustodyChanged(ctx, event)
}

func rosterContains(roster []Guardian, id uuid.UUID) bool {
	for _, g := range roster {
		if g.ID == id {
			return true
		}
	}
	return false
}

// DateOnly truncates a timestamp to its calendar date in UTC. All
// engine date arithmetic happens on these normalized values.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// IsWeekend reports whether the date falls on Saturday or Sunday,
// regardless of locale.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// daysBetween returns the whole-day distance from a to b, negative when
// b precedes a.
func daysBetween(a, b time.Time) int {
	return int(DateOnly(b).Sub(DateOnly(a)).Hours() / 24)
}

// floorDiv divides rounding toward negative infinity, so week parity
// alternates correctly for dates before the anchor.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// floorMod returns the non-negative remainder of floorDiv.
func floorMod(a, b int) int {
	return a - floorDiv(a, b)*b
}
