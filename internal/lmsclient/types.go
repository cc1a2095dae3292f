package lmsclient

import "github.com/coursekit/rudaux/internal/domain"

// CourseInfo is the handful of course-level facts the LMS reports.
type CourseInfo struct {
	ID   string
	Name string
}

// View is the full in-memory snapshot of LMS state a synchronizer builds
// in one run: course info, every class of person, and every assignment
// with its overrides. spec.md §4.1: "after synchronization, the LMS view
// is either freshly fetched, loaded from cache, or the run aborts — no
// partial view is ever exposed," so View is always constructed whole.
type View struct {
	Course       CourseInfo
	Students     []domain.Person
	TAs          []domain.Person
	Instructors  []domain.Person
	FakeStudents []domain.Person
	Assignments  []domain.Assignment
}

// OverrideSpec is the payload for creating a new LMS override.
type OverrideSpec struct {
	Title    string
	Students []string
	UnlockAt *string // RFC3339, nil to leave unset
	DueAt    *string
	LockAt   *string
}
