// Package domain holds the typed records the rest of rudaux operates on:
// assignments and their overrides, people, and the submissions the pipeline
// driver advances. Types here carry no I/O — only invariants and the pure
// helpers that resolve due dates and derive stable names.
package domain

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

// Assignment is a gradable unit pulled from the LMS.
//
// DueAt is the canonical due-time field (see SPEC_FULL.md open question 1);
// a resolved, per-student value lives on Submission.DueDate instead of here.
type Assignment struct {
	ID        string
	Name      string
	UnlockAt  *time.Time
	DueAt     *time.Time
	LockAt    *time.Time
	MaxScore  float64
	Overrides []Override
}

// Validate checks the assignment's invariants.
func (a Assignment) Validate() error {
	if a.UnlockAt != nil && a.DueAt != nil && a.UnlockAt.After(*a.DueAt) {
		return errors.Errorf("assignment %s: unlock_at %s is after due_at %s", a.Name, a.UnlockAt, a.DueAt)
	}
	return nil
}

// PastDue reports whether the assignment's base due time has passed as of now.
// Strict less-than: due_at == now is not yet due (§8 boundary case).
func (a Assignment) PastDue(now time.Time) bool {
	return a.DueAt != nil && a.DueAt.Before(now)
}

// Override supersedes an assignment's base times for the listed students.
type Override struct {
	ID       string
	Title    string
	Students []string
	UnlockAt *time.Time
	DueAt    *time.Time
	LockAt   *time.Time
}

// AppliesTo reports whether the override covers the given student.
func (o Override) AppliesTo(studentID string) bool {
	for _, s := range o.Students {
		if s == studentID {
			return true
		}
	}
	return false
}

// SingleStudent returns the override's student id when it names exactly one
// student (the shape the snapshot scheduler and late-reg policy both expect),
// and false otherwise.
func (o Override) SingleStudent() (string, bool) {
	if len(o.Students) == 1 {
		return o.Students[0], true
	}
	return "", false
}

// Person is an LMS-enrolled participant.
type Person struct {
	ID           string
	SISID        string
	Name         string
	SortableName string
	RegCreated   time.Time
	RegUpdated   *time.Time
	Active       bool
}

// EffectiveRegDate returns RegUpdated if present, else RegCreated, per §4.3.
func (p Person) EffectiveRegDate() time.Time {
	if p.RegUpdated != nil {
		return *p.RegUpdated
	}
	return p.RegCreated
}

// Status is the submission's position in the grading pipeline, in ascending
// order. Comparisons use the declared constant order, not insertion order.
type Status int

const (
	Assigned Status = iota
	Collected
	Cleaned
	Autograded
	NeedsManualGrading
	Graded
	FeedbackGenerated
	GradeUploaded
	GradePosted
	FeedbackReturned
	Missing // terminal; reachable only from Assigned
)

func (s Status) String() string {
	switch s {
	case Assigned:
		return "assigned"
	case Collected:
		return "collected"
	case Cleaned:
		return "cleaned"
	case Autograded:
		return "autograded"
	case NeedsManualGrading:
		return "needs_manual_grading"
	case Graded:
		return "graded"
	case FeedbackGenerated:
		return "feedback_generated"
	case GradeUploaded:
		return "grade_uploaded"
	case GradePosted:
		return "grade_posted"
	case FeedbackReturned:
		return "feedback_returned"
	case Missing:
		return "missing"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Submission is the unit the pipeline driver advances, identified by the
// pair (assignment name, student id).
type Submission struct {
	AssignmentName string
	StudentID      string

	DueDate time.Time
	// SnapName is the filesystem snapshot label used for collection: either
	// the assignment name or "<assignment>-override-<id>". Stable once a
	// snapshot has been taken under it (invariant, §3).
	SnapName string
	// Grader is the assigned grader slot, e.g. "<assignment>-grader-<k>".
	Grader string

	Status Status
	Score  float64
	// MaxScore is the sum of point values across the release notebook's
	// grading cells, computed at upload time.
	MaxScore float64

	// MissingGradeUploaded and MissingGradePosted track grade upload
	// progress for a MISSING submission independently of Status: per §8
	// invariant 2, a submission that reaches MISSING stays MISSING, so
	// Status itself cannot also encode "grade uploaded"/"grade posted"
	// for that submission the way it does for every other terminal path.
	MissingGradeUploaded bool
	MissingGradePosted   bool

	Error string

	SolutionReturned    bool
	SolutionReturnError string

	// Derived paths, filled in as the submission advances.
	SnapshottedNotebookPath string
	SubmittedNotebookPath   string
	FeedbackOutputPath      string
	SolutionOutputPath      string

	// JobID correlates an in-flight container job across the submit/validate
	// halves of a phase. Opaque: the driver must not interpret it (§9).
	JobID string
}

// Key returns the stable map key used by the state store: "<assignment>-<student>".
func (s Submission) Key() string {
	return SubmissionKey(s.AssignmentName, s.StudentID)
}

// SubmissionKey builds the stable submission map key for a given pair.
func SubmissionKey(assignmentName, studentID string) string {
	return assignmentName + "-" + studentID
}

// SnapName computes a submission's snapshot label given the assignment and
// the override (if any) currently applicable to the student.
func SnapName(assignmentName string, ov *Override) string {
	if ov == nil {
		return assignmentName
	}
	return fmt.Sprintf("%s-override-%s", assignmentName, ov.ID)
}

// GraderName computes a grader slot name for assignment a, slot index k.
func GraderName(assignmentName string, k int) string {
	return fmt.Sprintf("%s-grader-%d", assignmentName, k)
}

// ResolveDueDate finds, among an assignment's overrides, the one applicable
// to studentID, and returns the effective due date plus that override (nil
// if none applies). "Most recent applicable override" per §3 means: if more
// than one override names the student (not expected in practice, but not
// forbidden), the one with the latest DueAt wins.
func ResolveDueDate(a Assignment, studentID string) (time.Time, *Override) {
	var due time.Time
	if a.DueAt != nil {
		due = *a.DueAt
	}
	var applicable *Override
	for i := range a.Overrides {
		ov := a.Overrides[i]
		if !ov.AppliesTo(studentID) || ov.DueAt == nil {
			continue
		}
		if applicable == nil || ov.DueAt.After(*applicable.DueAt) {
			o := ov
			applicable = &o
		}
	}
	if applicable != nil {
		due = *applicable.DueAt
	}
	return due, applicable
}

// SnapshotList is the set of snapshot labels known to have been taken, or
// known to be permanently missing (student never created their dataset).
// It grows monotonically within a process (§8 invariant 1).
type SnapshotList struct {
	taken map[string]bool
}

// NewSnapshotList returns an empty snapshot list.
func NewSnapshotList() *SnapshotList {
	return &SnapshotList{taken: make(map[string]bool)}
}

// Has reports whether label has already been recorded.
func (s *SnapshotList) Has(label string) bool {
	return s.taken[label]
}

// Add records label as taken. Idempotent.
func (s *SnapshotList) Add(label string) {
	s.taken[label] = true
}

// Labels returns all recorded labels, for persistence.
func (s *SnapshotList) Labels() []string {
	out := make([]string, 0, len(s.taken))
	for l := range s.taken {
		out = append(out, l)
	}
	return out
}

// FromLabels rebuilds a SnapshotList from a persisted label slice.
func FromLabels(labels []string) *SnapshotList {
	s := NewSnapshotList()
	for _, l := range labels {
		s.Add(l)
	}
	return s
}
