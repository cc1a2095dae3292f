package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursekit/rudaux/internal/domain"
	"github.com/coursekit/rudaux/internal/fsclient"
)

type fakeFS struct {
	allCalls    []string
	userCalls   []string
	missingUser string
	failUser    string
}

func (f *fakeFS) SnapshotAll(ctx context.Context, label string) error {
	f.allCalls = append(f.allCalls, label)
	return nil
}

func (f *fakeFS) SnapshotUser(ctx context.Context, studentID, label string) error {
	f.userCalls = append(f.userCalls, studentID+"@"+label)
	if studentID == f.missingUser {
		return fsclient.ErrDatasetNotFound
	}
	if studentID == f.failUser {
		return assert.AnError
	}
	return nil
}

func (f *fakeFS) UserFolderExists(ctx context.Context, name string) (bool, error) { return true, nil }
func (f *fakeFS) CreateUserFolder(ctx context.Context, name string) error         { return nil }
func (f *fakeFS) SnapshottedNotebookPath(studentID, label, coursePath, assignmentName string) string {
	return ""
}

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestScheduleAssignmentSnapshotsOncePastDue(t *testing.T) {
	fs := &fakeFS{}
	snaps := domain.NewSnapshotList()
	now := ts("2026-02-02T00:00:00Z")
	due := ts("2026-02-01T00:00:00Z")
	a := domain.Assignment{Name: "hw1", DueAt: &due}

	s := New(fs)
	s.Run(context.Background(), []domain.Assignment{a}, snaps, now)
	assert.Equal(t, []string{"hw1"}, fs.allCalls)
	assert.True(t, snaps.Has("hw1"))

	// Second run: already recorded, must not re-snapshot.
	s.Run(context.Background(), []domain.Assignment{a}, snaps, now)
	assert.Equal(t, []string{"hw1"}, fs.allCalls)
}

func TestScheduleAssignmentSkipsNotYetDue(t *testing.T) {
	fs := &fakeFS{}
	snaps := domain.NewSnapshotList()
	now := ts("2026-01-01T00:00:00Z")
	due := ts("2026-02-01T00:00:00Z")
	a := domain.Assignment{Name: "hw1", DueAt: &due}

	New(fs).Run(context.Background(), []domain.Assignment{a}, snaps, now)
	assert.Empty(t, fs.allCalls)
	assert.False(t, snaps.Has("hw1"))
}

func TestScheduleOverrideRecordsMissingDatasetAsTaken(t *testing.T) {
	fs := &fakeFS{missingUser: "bob"}
	snaps := domain.NewSnapshotList()
	now := ts("2026-02-02T00:00:00Z")
	due := ts("2026-02-01T00:00:00Z")
	a := domain.Assignment{
		Name: "hw1",
		Overrides: []domain.Override{
			{ID: "o1", Students: []string{"bob"}, DueAt: &due},
		},
	}

	New(fs).Run(context.Background(), []domain.Assignment{a}, snaps, now)
	require.Len(t, fs.userCalls, 1)
	assert.True(t, snaps.Has("hw1-override-o1"))
}

func TestScheduleOverrideLeavesLabelAbsentOnTransientError(t *testing.T) {
	fs := &fakeFS{failUser: "carol"}
	snaps := domain.NewSnapshotList()
	now := ts("2026-02-02T00:00:00Z")
	due := ts("2026-02-01T00:00:00Z")
	a := domain.Assignment{
		Name: "hw1",
		Overrides: []domain.Override{
			{ID: "o2", Students: []string{"carol"}, DueAt: &due},
		},
	}

	New(fs).Run(context.Background(), []domain.Assignment{a}, snaps, now)
	assert.False(t, snaps.Has("hw1-override-o2"))
}

func TestScheduleOverrideSkipsMultiStudentOverride(t *testing.T) {
	fs := &fakeFS{}
	snaps := domain.NewSnapshotList()
	now := ts("2026-02-02T00:00:00Z")
	due := ts("2026-02-01T00:00:00Z")
	a := domain.Assignment{
		Name: "hw1",
		Overrides: []domain.Override{
			{ID: "o3", Students: []string{"dave", "erin"}, DueAt: &due},
		},
	}

	New(fs).Run(context.Background(), []domain.Assignment{a}, snaps, now)
	assert.Empty(t, fs.userCalls)
}
