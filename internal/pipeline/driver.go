// Package pipeline implements the submission state machine (spec.md
// §4.5): one function per phase, each checking its own precondition
// against a named domain.Status, performing its effect, and validating
// before advancing to the next named status (see SPEC_FULL.md's open
// question 5 on why this replaces the source's bare "-1" enum arithmetic
// without introducing a parallel boolean-flag type). Grounded on the
// teacher's syncAllTeams/syncTeam/syncTeamIssues nested batching shape:
// outer loop over assignments, inner loop over students, sub-fetches
// (here, container jobs) batched across the inner loop.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/coursekit/rudaux/internal/container"
	"github.com/coursekit/rudaux/internal/domain"
	"github.com/coursekit/rudaux/internal/fsclient"
)

const studentPrefix = "student_"

// Grader is the narrow LMS surface the upload/return phases need.
type Grader interface {
	PutGrade(ctx context.Context, assignmentID, studentID, percentage string) error
	IsGradePosted(ctx context.Context, assignmentID, studentID string) (bool, error)
}

// Config carries the course paths the driver needs to build notebook and
// feedback file paths.
type Config struct {
	StudentFolderRoot  string
	GraderRoot         string
	InstructorRepoName string
	CoursePath         string
	ChownUser          string
	DryRun             bool
}

// Driver advances every submission of one assignment through the pipeline
// for a single run.
type Driver struct {
	fs        fsclient.Client
	container container.Client
	lms       Grader
	gradebook Gradebook
	cfg       Config
	chown     func(path string) error
}

// New builds a Driver.
func New(fs fsclient.Client, c container.Client, lms Grader, gb Gradebook, cfg Config) *Driver {
	d := &Driver{fs: fs, container: c, lms: lms, gradebook: gb, cfg: cfg}
	d.chown = d.defaultChown
	return d
}

// CreateIfAbsent ensures a Submission exists for every (assignment, active
// student) pair, assigning it to the next grader slot in round-robin order
// (spec.md §4.5 step 1).
func (d *Driver) CreateIfAbsent(a domain.Assignment, students []domain.Person, submissions map[string]*domain.Submission, graderIndex *int, numGraders int) {
	for _, s := range students {
		if !s.Active {
			continue
		}
		key := domain.SubmissionKey(a.Name, s.ID)
		if _, ok := submissions[key]; ok {
			continue
		}
		due, ov := domain.ResolveDueDate(a, s.ID)
		submissions[key] = &domain.Submission{
			AssignmentName: a.Name,
			StudentID:      s.ID,
			DueDate:        due,
			SnapName:       domain.SnapName(a.Name, ov),
			Grader:         domain.GraderName(a.Name, *graderIndex%numGraders),
			Status:         domain.Assigned,
		}
		*graderIndex++
	}
}

// RefreshDueDates re-resolves due date and snapshot label from current LMS
// state for any submission not yet collected (spec.md §4.5 step 2): an
// override created after the submission was first seen must still apply.
func (d *Driver) RefreshDueDates(a domain.Assignment, submissions map[string]*domain.Submission) {
	for _, sub := range submissions {
		if sub.AssignmentName != a.Name || sub.Status >= domain.Collected {
			continue
		}
		due, ov := domain.ResolveDueDate(a, sub.StudentID)
		sub.DueDate = due
		sub.SnapName = domain.SnapName(a.Name, ov)
	}
}

// CollectAndClean performs steps 3 and 4: copying the snapshotted notebook
// into the grader's submitted/ tree, then sanitizing duplicate grading
// cell ids. It returns the number of submissions collected this run, used
// by the return-solutions policy's collected_fraction.
func (d *Driver) CollectAndClean(ctx context.Context, now timeNow, submissions map[string]*domain.Submission, assignmentName string) int {
	collected := 0
	for _, sub := range submissions {
		if sub.AssignmentName != assignmentName || sub.Status != domain.Assigned {
			continue
		}
		if sub.DueDate.After(now()) {
			continue
		}
		if err := d.collect(ctx, sub); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				d.markMissing(sub)
				continue
			}
			sub.Error = err.Error()
			log.Printf("[pipeline] collect %s: %v", sub.Key(), err)
			continue
		}
		if err := d.clean(sub); err != nil {
			sub.Error = err.Error()
			log.Printf("[pipeline] clean %s: %v", sub.Key(), err)
			continue
		}
		sub.Status = domain.Cleaned
		sub.Error = ""
		collected++
	}
	return collected
}

// timeNow lets tests freeze "now" without the forbidden time.Now() call
// appearing throughout the driver.
type timeNow func() time.Time

func (d *Driver) collect(ctx context.Context, sub *domain.Submission) error {
	studentName := studentPrefix + sub.StudentID
	snapPath := d.fs.SnapshottedNotebookPath(sub.StudentID, sub.SnapName, d.cfg.CoursePath, sub.AssignmentName)
	sub.SnapshottedNotebookPath = snapPath

	if _, err := os.Stat(snapPath); err != nil {
		if os.IsNotExist(err) {
			return os.ErrNotExist
		}
		return errors.Wrap(err, "stat snapshotted notebook")
	}

	graderRepoPath := d.graderRoot(sub)
	submittedDir := filepath.Join(graderRepoPath, "submitted", studentName, sub.AssignmentName)
	if err := os.MkdirAll(submittedDir, 0o755); err != nil {
		return errors.Wrap(err, "create submitted directory")
	}
	submissionPath := filepath.Join(submittedDir, sub.AssignmentName+".ipynb")

	if !d.cfg.DryRun {
		data, err := os.ReadFile(snapPath)
		if err != nil {
			return errors.Wrap(err, "read snapshotted notebook")
		}
		if err := os.WriteFile(submissionPath, data, 0o644); err != nil {
			return errors.Wrap(err, "write submitted notebook")
		}
		for _, p := range []string{
			filepath.Join(graderRepoPath, "submitted"),
			filepath.Join(graderRepoPath, "submitted", studentName),
			submittedDir,
			submissionPath,
		} {
			if err := d.chown(p); err != nil {
				log.Printf("[pipeline] chown %s: %v", p, err)
			}
		}
	}

	sub.SubmittedNotebookPath = submissionPath
	return nil
}

func (d *Driver) clean(sub *domain.Submission) error {
	if d.cfg.DryRun {
		return nil
	}
	raw, err := os.ReadFile(sub.SubmittedNotebookPath)
	if err != nil {
		return errors.Wrap(err, "read submitted notebook")
	}
	cleaned, err := CleanNotebook(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(sub.SubmittedNotebookPath, cleaned, 0o644)
}

func (d *Driver) markMissing(sub *domain.Submission) {
	sub.Status = domain.Missing
	sub.Score = 0
	sub.Error = ""
}

// SubmitAutograde submits one container job per submission ready to
// autograde (status CLEANED), storing the returned job id (step 5).
func (d *Driver) SubmitAutograde(ctx context.Context, submissions map[string]*domain.Submission, assignmentName string) {
	for _, sub := range submissions {
		if sub.AssignmentName != assignmentName || sub.Status != domain.Cleaned {
			continue
		}
		command := []string{"nbgrader", "autograde",
			fmt.Sprintf("--assignment=%s", sub.AssignmentName),
			fmt.Sprintf("--student=%s%s", studentPrefix, sub.StudentID),
		}
		jobID, err := d.container.Submit(ctx, command, d.graderRoot(sub))
		if err != nil {
			sub.Error = err.Error()
			continue
		}
		sub.JobID = jobID
	}
}

// ValidateAutograde reads back the batch results and advances each
// submission to AUTOGRADED, then NEEDS_MANUAL_GRADING or GRADED, per the
// grader's gradebook (step 6).
func (d *Driver) ValidateAutograde(ctx context.Context, submissions map[string]*domain.Submission, assignmentName string, results map[string]container.Result) {
	for _, sub := range submissions {
		if sub.AssignmentName != assignmentName || sub.Status != domain.Cleaned || sub.JobID == "" {
			continue
		}
		res, ok := results[sub.JobID]
		if !ok {
			continue
		}
		if strings.Contains(res.Log, "ERROR") {
			sub.Error = fmt.Sprintf("autograde failed (exit %d): %s", res.ExitStatus, res.Log)
			continue
		}
		sub.Status = domain.Autograded
		sub.Error = ""

		_, needsManual, err := d.gradebook.SubmissionResult(ctx, d.graderRoot(sub), sub.AssignmentName, studentPrefix+sub.StudentID)
		if err != nil {
			sub.Error = err.Error()
			continue
		}
		if needsManual {
			sub.Status = domain.NeedsManualGrading
		} else {
			sub.Status = domain.Graded
		}
	}
}

// SubmitFeedback submits a generate_feedback job for every submission
// ready (status NEEDS_MANUAL_GRADING or GRADED), step 7.
func (d *Driver) SubmitFeedback(ctx context.Context, submissions map[string]*domain.Submission, assignmentName string) {
	for _, sub := range submissions {
		if sub.AssignmentName != assignmentName || !readyForFeedback(sub.Status) {
			continue
		}
		command := []string{"nbgrader", "generate_feedback", "--force",
			fmt.Sprintf("--assignment=%s", sub.AssignmentName),
			fmt.Sprintf("--student=%s%s", studentPrefix, sub.StudentID),
		}
		jobID, err := d.container.Submit(ctx, command, d.graderRoot(sub))
		if err != nil {
			sub.Error = err.Error()
			continue
		}
		sub.JobID = jobID
	}
}

func readyForFeedback(s domain.Status) bool {
	return s == domain.NeedsManualGrading || s == domain.Graded
}

// ValidateFeedback applies the same error contract as autograde
// validation and advances to FEEDBACK_GENERATED on success (step 8).
func (d *Driver) ValidateFeedback(submissions map[string]*domain.Submission, assignmentName string, results map[string]container.Result) {
	for _, sub := range submissions {
		if sub.AssignmentName != assignmentName || !readyForFeedback(sub.Status) || sub.JobID == "" {
			continue
		}
		res, ok := results[sub.JobID]
		if !ok {
			continue
		}
		if strings.Contains(res.Log, "ERROR") {
			sub.Error = fmt.Sprintf("generate_feedback failed (exit %d): %s", res.ExitStatus, res.Log)
			continue
		}
		sub.Status = domain.FeedbackGenerated
		sub.Error = ""
		feedbackPath := filepath.Join(d.graderRoot(sub), "feedback", studentPrefix+sub.StudentID, sub.AssignmentName, sub.AssignmentName+".html")
		sub.FeedbackOutputPath = feedbackPath
	}
}

// UploadGrade reads the score from the grader's gradebook (or 0 for a
// missing submission), computes the percentage against the release
// notebook's point total, and posts it to the LMS (step 9). A MISSING
// submission's Status is never overwritten (§8 invariant 2: once MISSING,
// always MISSING); its upload progress is tracked on MissingGradeUploaded
// instead.
func (d *Driver) UploadGrade(ctx context.Context, a domain.Assignment, submissions map[string]*domain.Submission) {
	for _, sub := range submissions {
		if sub.AssignmentName != a.Name || !readyForGradeUpload(sub) {
			continue
		}

		var score float64
		var err error
		if sub.Status != domain.Missing {
			score, _, err = d.gradebook.SubmissionResult(ctx, d.graderRoot(sub), sub.AssignmentName, studentPrefix+sub.StudentID)
			if err != nil {
				sub.Error = err.Error()
				continue
			}
		}

		maxScore, err := d.releaseMaxScore(sub)
		if err != nil {
			sub.Error = err.Error()
			continue
		}

		sub.Score = score
		sub.MaxScore = maxScore

		var pct float64
		if maxScore > 0 {
			pct = 100 * score / maxScore
		}
		pctStr := fmt.Sprintf("%.2f", pct)

		if d.cfg.DryRun {
			log.Printf("[pipeline] dry-run: would post grade %s for %s", pctStr, sub.Key())
		} else if err := d.lms.PutGrade(ctx, a.ID, sub.StudentID, pctStr); err != nil {
			sub.Error = err.Error()
			continue
		}
		sub.Error = ""
		if sub.Status == domain.Missing {
			sub.MissingGradeUploaded = true
		} else {
			sub.Status = domain.GradeUploaded
		}
	}
}

func readyForGradeUpload(sub *domain.Submission) bool {
	if sub.Status == domain.Missing {
		return !sub.MissingGradeUploaded
	}
	return sub.Status == domain.FeedbackGenerated
}

func (d *Driver) releaseMaxScore(sub *domain.Submission) (float64, error) {
	if d.cfg.DryRun {
		return 0, nil
	}
	releasePath := filepath.Join(d.graderRoot(sub), "release", sub.AssignmentName, sub.AssignmentName+".ipynb")
	raw, err := os.ReadFile(releasePath)
	if err != nil {
		return 0, errors.Wrap(err, "read release notebook")
	}
	return ComputeMaxScore(raw)
}

// CheckGradePosted advances GRADE_UPLOADED submissions to GRADE_POSTED
// once the LMS confirms the grade landed. A MISSING submission's posted
// check is tracked on MissingGradePosted instead, leaving Status untouched.
func (d *Driver) CheckGradePosted(ctx context.Context, a domain.Assignment, submissions map[string]*domain.Submission) {
	for _, sub := range submissions {
		if sub.AssignmentName != a.Name {
			continue
		}
		switch {
		case sub.Status == domain.GradeUploaded:
			posted, err := d.lms.IsGradePosted(ctx, a.ID, sub.StudentID)
			if err != nil {
				sub.Error = err.Error()
				continue
			}
			if posted {
				sub.Status = domain.GradePosted
				sub.Error = ""
			}
		case sub.Status == domain.Missing && sub.MissingGradeUploaded && !sub.MissingGradePosted:
			posted, err := d.lms.IsGradePosted(ctx, a.ID, sub.StudentID)
			if err != nil {
				sub.Error = err.Error()
				continue
			}
			if posted {
				sub.MissingGradePosted = true
				sub.Error = ""
			}
		}
	}
}

// graderRoot resolves the path to sub's grader's cloned repo, matching how
// internal/provisioner lays out grader repos: <GraderRoot>/<grader
// slot>/<instructor repo name>.
func (d *Driver) graderRoot(sub *domain.Submission) string {
	return filepath.Join(d.cfg.GraderRoot, sub.Grader, d.cfg.InstructorRepoName)
}

func (d *Driver) defaultChown(path string) error {
	if d.cfg.ChownUser == "" {
		return nil
	}
	return chownToUser(path, d.cfg.ChownUser)
}
