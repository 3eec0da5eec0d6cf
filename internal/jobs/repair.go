// Package jobs runs scheduled background maintenance for custody data.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/levensailor/calndr-go/internal/custody"
	"github.com/levensailor/calndr-go/internal/models"
)

// FamilyLister names the families eligible for the nightly sweep.
type FamilyLister interface {
	ListActiveFamilies(ctx context.Context) ([]models.Family, error)
}

// FamilyRepairer repairs one family's custody timeline.
// *custody.Engine satisfies this.
type FamilyRepairer interface {
	RepairFamily(ctx context.Context, familyID uuid.UUID, dryRun bool) (custody.RepairResult, error)
}

// RepairSweeper walks every active family's custody timeline on a cron
// schedule and repairs handoff rows that drifted out of sync with the
// surrounding custody assignments.
type RepairSweeper struct {
	repairer FamilyRepairer
	families FamilyLister
	logger   *slog.Logger
	cron     *cron.Cron
	timeout  time.Duration
}

// NewRepairSweeper wires a sweeper. Nothing runs until Start is called.
func NewRepairSweeper(repairer FamilyRepairer, families FamilyLister, logger *slog.Logger) *RepairSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &RepairSweeper{
		repairer: repairer,
		families: families,
		logger:   logger,
		cron:     cron.New(),
		timeout:  10 * time.Minute,
	}
}

// Start registers the sweep under the given cron expression
// (standard five-field format, e.g. "30 3 * * *") and starts the
// scheduler. An empty schedule disables the sweep.
func (s *RepairSweeper) Start(schedule string) error {
	if schedule == "" {
		s.logger.Info("Repair sweep disabled")
		return nil
	}
	_, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("Repair sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid repair schedule %q: %w", schedule, err)
	}
	s.cron.Start()
	s.logger.Info("Repair sweep scheduled", "schedule", schedule)
	return nil
}

// Stop halts the scheduler and waits for an in-flight sweep to finish.
func (s *RepairSweeper) Stop() {
	<-s.cron.Stop().Done()
}

// SweepSummary reports one pass over the active families.
type SweepSummary struct {
	Families       int
	RecordsChanged int
	Failures       int
}

// Sweep repairs every active family once. Families already being
// repaired elsewhere are skipped; other failures are logged and the
// sweep moves on to the next family.
func (s *RepairSweeper) Sweep(ctx context.Context) (SweepSummary, error) {
	var sum SweepSummary

	fams, err := s.families.ListActiveFamilies(ctx)
	if err != nil {
		return sum, fmt.Errorf("failed to list families for repair sweep: %w", err)
	}

	start := time.Now()
	for _, fam := range fams {
		res, err := s.repairer.RepairFamily(ctx, fam.ID, false)
		if err != nil {
			if errors.Is(err, custody.ErrConcurrentRepair) {
				s.logger.Info("Repair already running, skipping family", "family_id", fam.ID, "slug", fam.Slug)
				continue
			}
			sum.Failures++
			s.logger.Error("Repair failed for family", "family_id", fam.ID, "slug", fam.Slug, "error", err)
			continue
		}
		sum.Families++
		sum.RecordsChanged += res.RecordsChanged
	}

	s.logger.Info("Repair sweep finished",
		"families", sum.Families,
		"records_changed", sum.RecordsChanged,
		"failures", sum.Failures,
		"duration", time.Since(start).String(),
	)
	return sum, nil
}
