package workflow

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/coursekit/rudaux/internal/config"
	"github.com/coursekit/rudaux/internal/container"
	"github.com/coursekit/rudaux/internal/domain"
	"github.com/coursekit/rudaux/internal/lmsclient"
	"github.com/coursekit/rudaux/internal/notify"
)

type fakeLMS struct {
	assignment lmsclient.AssignmentRecord
	students   []lmsclient.PersonRecord
	posted     map[string]bool
}

func (f *fakeLMS) GetCourseInfo(ctx context.Context) (lmsclient.CourseInfo, error) {
	return lmsclient.CourseInfo{ID: "c1", Name: "course"}, nil
}
func (f *fakeLMS) GetStudents(ctx context.Context) ([]lmsclient.PersonRecord, error) {
	return f.students, nil
}
func (f *fakeLMS) GetTAs(ctx context.Context) ([]lmsclient.PersonRecord, error) { return nil, nil }
func (f *fakeLMS) GetInstructors(ctx context.Context) ([]lmsclient.PersonRecord, error) {
	return nil, nil
}
func (f *fakeLMS) GetFakeStudents(ctx context.Context) ([]lmsclient.PersonRecord, error) {
	return nil, nil
}
func (f *fakeLMS) GetAssignments(ctx context.Context) ([]lmsclient.AssignmentRecord, error) {
	return []lmsclient.AssignmentRecord{f.assignment}, nil
}
func (f *fakeLMS) CreateOverride(ctx context.Context, assignmentID string, spec lmsclient.OverrideSpec) (string, error) {
	return "o", nil
}
func (f *fakeLMS) RemoveOverride(ctx context.Context, assignmentID, overrideID string) error {
	return nil
}
func (f *fakeLMS) PutGrade(ctx context.Context, assignmentID, studentID, percentage string) error {
	return nil
}
func (f *fakeLMS) IsGradePosted(ctx context.Context, assignmentID, studentID string) (bool, error) {
	return f.posted[studentID], nil
}

type fakeHub struct{}

func (fakeHub) GraderExists(ctx context.Context, name string) (bool, error) { return true, nil }
func (fakeHub) AssignGrader(ctx context.Context, name, humanID string) error { return nil }

type fakeFS struct {
	notebookPath string
}

func (f *fakeFS) SnapshotAll(ctx context.Context, label string) error     { return nil }
func (f *fakeFS) SnapshotUser(ctx context.Context, s, label string) error { return nil }
func (f *fakeFS) UserFolderExists(ctx context.Context, name string) (bool, error) {
	return true, nil
}
func (f *fakeFS) CreateUserFolder(ctx context.Context, name string) error { return nil }
func (f *fakeFS) SnapshottedNotebookPath(studentID, label, coursePath, assignmentName string) string {
	return f.notebookPath
}

type fakeContainer struct {
	submitted map[string][]string
}

func newFakeContainer() *fakeContainer { return &fakeContainer{submitted: map[string][]string{}} }

func (c *fakeContainer) Submit(ctx context.Context, command []string, dir string) (string, error) {
	id := filepath.Join(dir, command[1])
	c.submitted[id] = command
	return id, nil
}
func (c *fakeContainer) RunAll(ctx context.Context) (map[string]container.Result, error) {
	out := make(map[string]container.Result, len(c.submitted))
	for id := range c.submitted {
		out[id] = container.Result{Log: "ok", ExitStatus: 0}
	}
	c.submitted = map[string][]string{}
	return out, nil
}
func (c *fakeContainer) Run(ctx context.Context, command []string, dir string) (string, error) {
	return "", nil
}

// TestRunDrivesSubmissionToGradeUploaded exercises Run end to end against
// fakes for all four external collaborators: one past-due assignment with
// one active student is synced, provisioned, collected, autograded, and
// uploaded in a single pass, wiring the grader repo layout through
// UserFolderRoot rather than CourseDir (the grader dataset root and the
// directory provisioner/pipeline read/write must agree).
func TestRunDrivesSubmissionToGradeUploaded(t *testing.T) {
	root := t.TempDir()
	courseDir := t.TempDir()

	snapPath := filepath.Join(root, "snap.ipynb")
	nb := `{"cells":[{"metadata":{"nbgrader":{"grade_id":"q1","points":5}}}]}`
	require.NoError(t, os.WriteFile(snapPath, []byte(nb), 0o644))

	releaseDir := filepath.Join(root, "hw1-grader-0", "release", "hw1")
	require.NoError(t, os.MkdirAll(releaseDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(releaseDir, "hw1.ipynb"), []byte(nb), 0o644))

	// A ".git" marker so the provisioner's ensureRepo treats the grader repo
	// as already cloned instead of shelling out to a real git clone.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "hw1-grader-0", ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "hw1-grader-0", "hw1_solution.html"), []byte("<html></html>"), 0o644))

	gradebookDB, err := sql.Open("sqlite", filepath.Join(root, "hw1-grader-0", "gradebook.db"))
	require.NoError(t, err)
	_, err = gradebookDB.Exec(`
		CREATE TABLE assignment (id INTEGER PRIMARY KEY, name TEXT);
		CREATE TABLE student (id TEXT PRIMARY KEY);
		CREATE TABLE submitted_assignment (
			assignment_id INTEGER,
			student_id TEXT,
			score REAL,
			needs_manual_grade INTEGER
		);
		INSERT INTO assignment (id, name) VALUES (1, 'hw1');
		INSERT INTO student (id) VALUES ('student_alice');
		INSERT INTO submitted_assignment (assignment_id, student_id, score, needs_manual_grade)
			VALUES (1, 'student_alice', 5, 0);
	`)
	require.NoError(t, err)
	require.NoError(t, gradebookDB.Close())

	cfg := &config.Config{
		Name:                    "course",
		CourseDir:               courseDir,
		UserFolderRoot:          root,
		StudentFolderRoot:       root,
		InstructorRepoURL:       "https://example.test/course.git",
		InstructorRepoName:      "",
		NumGraders:              1,
		Graders:                 map[string][]string{"hw1": {"instructor"}},
		LateRegExtensionDays:    3,
		ReturnSolutionThreshold: 1.0,
		NotificationMethod:      "noop",
	}

	lms := &fakeLMS{
		assignment: lmsclient.AssignmentRecord{
			ID: "hw1", Name: "hw1", MaxScore: 5,
			DueAt: strPtr("2026-01-01T00:00:00Z"),
		},
		students: []lmsclient.PersonRecord{
			{ID: "alice", Name: "Alice", SortableName: "Alice", Active: true, RegCreated: "2025-01-01T00:00:00Z"},
		},
		posted: map[string]bool{},
	}

	clients := Clients{
		LMS:       lms,
		Hub:       fakeHub{},
		FS:        &fakeFS{notebookPath: snapPath},
		Container: newFakeContainer(),
		Notifiers: notify.NewRegistry(),
	}

	cache, err := lmsclient.OpenCache(filepath.Join(courseDir, "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	runner := New(cfg, clients, cache, true)

	summary, err := runner.Run(context.Background(), ts("2026-02-01T00:00:00Z"), false)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.AssignmentsRun)
	assert.Equal(t, 1, summary.SubmissionsUpdated)
	assert.Empty(t, summary.Errors)

	subState, err := runner.store.LoadSubmissions()
	require.NoError(t, err)
	sub, ok := subState.Submissions["hw1-alice"]
	require.True(t, ok)
	assert.Equal(t, domain.GradeUploaded, sub.Status)
}

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func strPtr(s string) *string { return &s }
