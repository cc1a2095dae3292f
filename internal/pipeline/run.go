package pipeline

import (
	"context"
	"time"

	"github.com/coursekit/rudaux/internal/domain"
)

// RunAssignment drives one assignment's submissions through collect/clean,
// the two container batches (autograde, then feedback generation), grade
// upload, and the grade-posted check — spec.md §4.5 steps 3-9, with the
// §5 "autograde wave, then feedback wave" batching. CreateIfAbsent and
// RefreshDueDates are called separately by the workflow for the same
// assignment, just before this.
func (d *Driver) RunAssignment(ctx context.Context, a domain.Assignment, submissions map[string]*domain.Submission, now func() time.Time) (collected int, err error) {
	collected = d.CollectAndClean(ctx, timeNow(now), submissions, a.Name)

	d.SubmitAutograde(ctx, submissions, a.Name)
	autogradeResults, err := d.container.RunAll(ctx)
	if err != nil {
		return collected, err
	}
	d.ValidateAutograde(ctx, submissions, a.Name, autogradeResults)

	d.SubmitFeedback(ctx, submissions, a.Name)
	feedbackResults, err := d.container.RunAll(ctx)
	if err != nil {
		return collected, err
	}
	d.ValidateFeedback(submissions, a.Name, feedbackResults)

	d.UploadGrade(ctx, a, submissions)
	d.CheckGradePosted(ctx, a, submissions)

	return collected, nil
}
