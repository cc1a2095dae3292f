package pipeline

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/coursekit/rudaux/internal/domain"
)

// ReturnSolutionsPolicy decides, per assignment, whether collection has
// reached a super-majority of students and — if so — copies the solution
// HTML to every eligible student who hasn't received it yet (spec.md
// §4.5's "Return-solutions policy"). Grounded on the rationale that
// releasing solutions before most students have submitted would leak
// answers to students who requested extensions.
type ReturnSolutionsPolicy struct {
	driver    *Driver
	threshold func(assignmentName string) float64
}

// NewReturnSolutionsPolicy builds the policy. threshold resolves a
// per-assignment return_solution_threshold (config.Config.ThresholdFor).
func NewReturnSolutionsPolicy(d *Driver, threshold func(assignmentName string) float64) *ReturnSolutionsPolicy {
	return &ReturnSolutionsPolicy{driver: d, threshold: threshold}
}

// Evaluate computes collected_fraction for one assignment and returns
// whether it belongs on this run's return-solutions list.
func (p *ReturnSolutionsPolicy) Evaluate(assignmentName string, collectedThisRun, totalStudents int) bool {
	if totalStudents == 0 {
		return false
	}
	fraction := float64(collectedThisRun) / float64(totalStudents)
	return fraction >= p.threshold(assignmentName)
}

// ReturnSolutions copies the solution HTML to every student on the
// return-solutions list whose SolutionReturned flag is still false.
func (p *ReturnSolutionsPolicy) ReturnSolutions(assignmentName string, submissions map[string]*domain.Submission) {
	d := p.driver
	for _, sub := range submissions {
		if sub.AssignmentName != assignmentName || sub.SolutionReturned {
			continue
		}
		if err := d.returnSolution(sub); err != nil {
			sub.SolutionReturnError = err.Error()
			log.Printf("[pipeline] return solution %s: %v", sub.Key(), err)
			continue
		}
		sub.SolutionReturned = true
		sub.SolutionReturnError = ""
	}
}

func (d *Driver) returnSolution(sub *domain.Submission) error {
	if d.cfg.DryRun {
		return nil
	}
	solutionGraderPath := filepath.Join(d.graderRoot(sub), sub.AssignmentName+"_solution.html")
	solutionStudentPath := filepath.Join(d.cfg.StudentFolderRoot, sub.StudentID, d.cfg.CoursePath, sub.AssignmentName, sub.AssignmentName+"_solution.html")

	if err := copyFile(solutionGraderPath, solutionStudentPath); err != nil {
		return err
	}
	sub.SolutionOutputPath = solutionStudentPath
	if err := d.chown(solutionStudentPath); err != nil {
		log.Printf("[pipeline] chown %s: %v", solutionStudentPath, err)
	}
	return nil
}

// ReturnFeedback implements step 10: for submissions whose assignment is
// on the return-solutions list and whose LMS grade has posted, copy
// feedback HTML to the student folder. MISSING submissions never reach
// GRADE_POSTED (their Status stays MISSING per §8 invariant 2), so they
// are skipped here automatically — matching the spec's "a missing
// submission with score 0 is skipped, no feedback to return".
func (d *Driver) ReturnFeedback(ctx context.Context, a domain.Assignment, submissions map[string]*domain.Submission, onReturnSolutionsList bool) {
	if !onReturnSolutionsList {
		return
	}
	for _, sub := range submissions {
		if sub.AssignmentName != a.Name || sub.Status != domain.GradePosted {
			continue
		}

		feedbackStudentPath := filepath.Join(d.cfg.StudentFolderRoot, sub.StudentID, d.cfg.CoursePath, sub.AssignmentName, sub.AssignmentName+"_feedback.html")
		if err := d.returnFeedbackFile(sub, feedbackStudentPath); err != nil {
			sub.Error = err.Error()
			log.Printf("[pipeline] return feedback %s: %v", sub.Key(), err)
			continue
		}
		sub.Status = domain.FeedbackReturned
		sub.Error = ""
	}
}

func (d *Driver) returnFeedbackFile(sub *domain.Submission, dest string) error {
	if d.cfg.DryRun {
		return nil
	}
	if sub.FeedbackOutputPath == "" {
		return errors.Newf("no feedback generated for %s", sub.Key())
	}
	if err := copyFile(sub.FeedbackOutputPath, dest); err != nil {
		return err
	}
	if err := d.chown(dest); err != nil {
		log.Printf("[pipeline] chown %s: %v", dest, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return errors.Wrapf(err, "read %s", src)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrapf(err, "create parent for %s", dst)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", dst)
	}
	return nil
}
