package provisioner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursekit/rudaux/internal/container"
	"github.com/coursekit/rudaux/internal/domain"
)

type fakeFS struct {
	folders map[string]bool
	created []string
}

func newFakeFS() *fakeFS { return &fakeFS{folders: map[string]bool{}} }

func (f *fakeFS) SnapshotAll(ctx context.Context, label string) error           { return nil }
func (f *fakeFS) SnapshotUser(ctx context.Context, s, label string) error       { return nil }
func (f *fakeFS) UserFolderExists(ctx context.Context, name string) (bool, error) {
	return f.folders[name], nil
}
func (f *fakeFS) CreateUserFolder(ctx context.Context, name string) error {
	f.folders[name] = true
	f.created = append(f.created, name)
	return nil
}
func (f *fakeFS) SnapshottedNotebookPath(s, label, coursePath, assignmentName string) string {
	return ""
}

type fakeHub struct {
	accounts map[string]bool
	assigned map[string]string
}

func newFakeHub() *fakeHub {
	return &fakeHub{accounts: map[string]bool{}, assigned: map[string]string{}}
}

func (h *fakeHub) GraderExists(ctx context.Context, name string) (bool, error) {
	return h.accounts[name], nil
}
func (h *fakeHub) AssignGrader(ctx context.Context, name, humanID string) error {
	h.accounts[name] = true
	h.assigned[name] = humanID
	return nil
}

type fakeContainer struct {
	runs []string
}

func (c *fakeContainer) Submit(ctx context.Context, command []string, dir string) (string, error) {
	return "job", nil
}
func (c *fakeContainer) RunAll(ctx context.Context) (map[string]container.Result, error) {
	return nil, nil
}
func (c *fakeContainer) Run(ctx context.Context, command []string, dir string) (string, error) {
	c.runs = append(c.runs, dir)
	return "", nil
}

func newProvisioner(t *testing.T, fs *fakeFS, hub *fakeHub, cont *fakeContainer) (*Provisioner, string) {
	t.Helper()
	root := t.TempDir()
	p := &Provisioner{
		fs:  fs,
		hub: hub,
		cfg: Config{
			GraderRoot:         root,
			InstructorRepoURL:  "https://example.invalid/course.git",
			InstructorRepoName: "course-repo",
			NumGraders:         2,
			Graders:            map[string][]string{"hw1": {"ta-alice", "ta-bob"}},
			DryRun:             true,
		},
		cloneRepo: func(ctx context.Context, url, dir string) error {
			return os.MkdirAll(filepath.Join(dir, ".git"), 0o755)
		},
	}
	p.container = cont
	return p, root
}

func TestProvisionCreatesDatasetAndRepoAndHubAccountPerGrader(t *testing.T) {
	fs := newFakeFS()
	hub := newFakeHub()
	cont := &fakeContainer{}
	p, root := newProvisioner(t, fs, hub, cont)
	p.cfg.DryRun = false

	p.Provision(context.Background(), domain.Assignment{Name: "hw1"})

	assert.True(t, fs.folders["hw1-grader-0"])
	assert.True(t, fs.folders["hw1-grader-1"])
	assert.True(t, hub.accounts["hw1-grader-0"])
	assert.Equal(t, "ta-alice", hub.assigned["hw1-grader-0"])
	assert.Equal(t, "ta-bob", hub.assigned["hw1-grader-1"])

	_, err := os.Stat(filepath.Join(root, "hw1-grader-0", "course-repo", ".git"))
	require.NoError(t, err)
}

func TestProvisionIsIdempotent(t *testing.T) {
	fs := newFakeFS()
	hub := newFakeHub()
	cont := &fakeContainer{}
	p, _ := newProvisioner(t, fs, hub, cont)
	p.cfg.DryRun = false
	p.cfg.NumGraders = 1

	p.Provision(context.Background(), domain.Assignment{Name: "hw1"})
	p.Provision(context.Background(), domain.Assignment{Name: "hw1"})

	assert.Len(t, fs.created, 1)
}

func TestProvisionCleansUpOnCloneFailure(t *testing.T) {
	fs := newFakeFS()
	hub := newFakeHub()
	cont := &fakeContainer{}
	p, root := newProvisioner(t, fs, hub, cont)
	p.cfg.DryRun = false
	p.cfg.NumGraders = 1
	p.cloneRepo = func(ctx context.Context, url, dir string) error {
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "partial"), []byte("x"), 0o644))
		return assert.AnError
	}

	p.Provision(context.Background(), domain.Assignment{Name: "hw1"})

	_, err := os.Stat(filepath.Join(root, "hw1-grader-0", "course-repo"))
	assert.True(t, os.IsNotExist(err))
}
