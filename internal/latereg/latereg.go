// Package latereg implements the late-registration extension policy
// (spec.md §4.3): students who enroll after an assignment unlocks get a
// personal due-date extension instead of inheriting a due date they never
// had a chance to meet. Grounded on the teacher's syncUsers/syncTeamMembers
// shape: iterate people, compare against existing state, write only when
// something actually changed.
package latereg

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/coursekit/rudaux/internal/domain"
	"github.com/coursekit/rudaux/internal/lmsclient"
)

// Applier creates and removes LMS overrides. Satisfied by lmsclient.Client;
// narrowed here to the two operations this policy needs.
type Applier interface {
	CreateOverride(ctx context.Context, assignmentID string, spec lmsclient.OverrideSpec) (string, error)
	RemoveOverride(ctx context.Context, assignmentID, overrideID string) error
}

// Policy applies the late-registration extension to a synchronized view.
type Policy struct {
	lms           Applier
	sync          *lmsclient.Synchronizer
	extensionDays int
}

// New builds a Policy. extensionDays is config.LateRegExtensionDays.
func New(lms Applier, sync *lmsclient.Synchronizer, extensionDays int) *Policy {
	return &Policy{lms: lms, sync: sync, extensionDays: extensionDays}
}

// Run evaluates every active student against every assignment with both
// unlock_at and due_at set, creating or replacing overrides as needed. If
// any override was created or deleted, the LMS cache is invalidated and the
// view is re-synchronized (no-cache) so downstream phases see the change.
func (p *Policy) Run(ctx context.Context, view lmsclient.View, now time.Time) (lmsclient.View, error) {
	changed := false

	for _, a := range view.Assignments {
		if a.UnlockAt == nil || a.DueAt == nil {
			continue
		}
		for _, s := range view.Students {
			if !s.Active {
				continue
			}
			didChange, err := p.applyToStudent(ctx, a, s, now)
			if err != nil {
				log.Printf("[latereg] %s/%s: %v", a.Name, s.ID, err)
				continue
			}
			changed = changed || didChange
		}
	}

	if !changed {
		return view, nil
	}

	if err := p.sync.Invalidate(ctx); err != nil {
		return lmsclient.View{}, errors.Wrap(err, "invalidate cache after late-reg overrides")
	}
	return p.sync.Sync(ctx)
}

func (p *Policy) applyToStudent(ctx context.Context, a domain.Assignment, s domain.Person, now time.Time) (bool, error) {
	regDate := s.EffectiveRegDate()
	if !regDate.After(*a.UnlockAt) {
		return false, nil
	}

	lateregDue := regDate.AddDate(0, 0, p.extensionDays)
	effectiveDue, existing := domain.ResolveDueDate(a, s.ID)
	if !lateregDue.After(effectiveDue) {
		return false, nil
	}

	if existing != nil {
		if _, ok := existing.SingleStudent(); ok {
			if err := p.lms.RemoveOverride(ctx, a.ID, existing.ID); err != nil {
				return false, errors.Wrap(err, "remove superseded override")
			}
		}
	}

	spec := lmsclient.OverrideSpec{
		Title:    fmt.Sprintf("%s-%s-latereg", s.Name, a.Name),
		Students: []string{s.ID},
		UnlockAt: formatTime(a.UnlockAt),
		DueAt:    formatTime(&lateregDue),
		LockAt:   formatTime(a.LockAt),
	}
	if _, err := p.lms.CreateOverride(ctx, a.ID, spec); err != nil {
		return false, errors.Wrap(err, "create late-reg override")
	}
	return true, nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
