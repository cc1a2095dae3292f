// Package scheduler decides, for each assignment and each late override,
// whether a new filesystem snapshot is due (spec.md §4.2). Grounded on
// the teacher's top-level sync loops (sync.Worker.syncAllTeams): iterate
// entities, perform one idempotent external effect per entity, log and
// continue past per-entity failures rather than aborting the run.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/coursekit/rudaux/internal/domain"
	"github.com/coursekit/rudaux/internal/fsclient"
)

// Scheduler runs the snapshot decision pass over a synchronized view.
type Scheduler struct {
	fs fsclient.Client
}

// New builds a Scheduler.
func New(fs fsclient.Client) *Scheduler {
	return &Scheduler{fs: fs}
}

// Run evaluates every assignment's course-wide snapshot and every
// override's per-student snapshot against now, mutating snapshots
// in place. It never returns an error: per-assignment/override FS
// failures are logged and left for the next run, per spec.md §7's
// "per-assignment errors skip that assignment's dependent work" policy.
func (s *Scheduler) Run(ctx context.Context, assignments []domain.Assignment, snapshots *domain.SnapshotList, now time.Time) {
	for _, a := range assignments {
		s.scheduleAssignment(ctx, a, snapshots, now)
	}
}

func (s *Scheduler) scheduleAssignment(ctx context.Context, a domain.Assignment, snapshots *domain.SnapshotList, now time.Time) {
	if a.DueAt != nil && !now.Before(*a.DueAt) && !snapshots.Has(a.Name) {
		if err := s.fs.SnapshotAll(ctx, a.Name); err != nil {
			log.Printf("[scheduler] snapshot-all failed for %s: %v", a.Name, err)
		} else {
			snapshots.Add(a.Name)
		}
	}

	for _, o := range a.Overrides {
		s.scheduleOverride(ctx, a, o, snapshots, now)
	}
}

func (s *Scheduler) scheduleOverride(ctx context.Context, a domain.Assignment, o domain.Override, snapshots *domain.SnapshotList, now time.Time) {
	if o.DueAt == nil || now.Before(*o.DueAt) {
		return
	}
	label := overrideLabel(a.Name, o.ID)
	if snapshots.Has(label) {
		return
	}
	studentID, ok := o.SingleStudent()
	if !ok {
		return
	}

	err := s.fs.SnapshotUser(ctx, studentID, label)
	switch {
	case err == nil:
		snapshots.Add(label)
	case err == fsclient.ErrDatasetNotFound:
		// Recorded missing submission: add the label anyway so the
		// scheduler does not retry a dataset that will never appear.
		snapshots.Add(label)
	default:
		log.Printf("[scheduler] snapshot-user failed for %s/%s: %v", studentID, label, err)
	}
}

func overrideLabel(assignmentName, overrideID string) string {
	return fmt.Sprintf("%s-override-%s", assignmentName, overrideID)
}
