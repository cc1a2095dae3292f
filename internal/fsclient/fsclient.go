// Package fsclient wraps the snapshotting filesystem (spec.md §6): taking
// course-wide and per-student snapshots, and checking/creating user
// datasets. Grounded on original_source/rudaux/rudaux/zfs.py for the exact
// command shapes and the snapshot path layout; the teacher's narrow-
// interface-over-external-effect idiom carries over even though the
// teacher itself talks to FUSE rather than a subprocess.
package fsclient

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cenkalti/backoff/v5"
	"github.com/cockroachdb/errors"
)

// ErrDatasetNotFound is the sentinel the snapshot scheduler type-switches
// on (spec.md §4.2, §9 open question 2): recognized from "dataset does not
// exist" in the command's error output.
var ErrDatasetNotFound = errors.New("fsclient: dataset does not exist")

// Client is the narrow interface the snapshot scheduler and pipeline
// driver consume.
type Client interface {
	SnapshotAll(ctx context.Context, label string) error
	SnapshotUser(ctx context.Context, studentID, label string) error
	UserFolderExists(ctx context.Context, name string) (bool, error)
	CreateUserFolder(ctx context.Context, name string) error
	// SnapshottedNotebookPath returns the on-disk path of a student's
	// collected notebook under a given snapshot label, per spec.md §4.5
	// step 3's ".zfs/snapshot/<label>/<course-path>/<assignment>/<assignment>.ipynb" layout.
	SnapshottedNotebookPath(studentID, label, coursePath, assignmentName string) string
}

// execClient shells out to zfs, exactly as the original Python
// implementation does via subprocess.check_output.
type execClient struct {
	userFolderRoot    string
	studentFolderRoot string
	dryRun            bool
	run               func(ctx context.Context, name string, args ...string) (string, error)
}

// New builds a Client that shells out to the real zfs binary.
func New(userFolderRoot, studentFolderRoot string, dryRun bool) Client {
	return &execClient{
		userFolderRoot:    userFolderRoot,
		studentFolderRoot: studentFolderRoot,
		dryRun:            dryRun,
		run:               runCommand,
	}
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func (c *execClient) SnapshotAll(ctx context.Context, label string) error {
	target := strings.Trim(c.userFolderRoot, "/") + "@" + label
	return c.zfsSnapshot(ctx, target)
}

func (c *execClient) SnapshotUser(ctx context.Context, studentID, label string) error {
	target := strings.Trim(filepath.Join(c.userFolderRoot, studentID), "/") + "@" + label
	return c.zfsSnapshot(ctx, target)
}

func (c *execClient) zfsSnapshot(ctx context.Context, target string) error {
	if c.dryRun {
		return nil
	}
	op := func() (string, error) {
		out, err := c.run(ctx, "zfs", "snapshot", "-r", target)
		if err == nil {
			return out, nil
		}
		if strings.Contains(out, "dataset does not exist") {
			return out, backoff.Permanent(ErrDatasetNotFound)
		}
		return out, errors.Wrapf(err, "zfs snapshot %s: %s", target, out)
	}
	_, err := backoff.Retry(ctx, op, backoff.WithMaxTries(3), backoff.WithBackOff(backoff.NewExponentialBackOff()))
	if errors.Is(err, ErrDatasetNotFound) {
		return ErrDatasetNotFound
	}
	return err
}

func (c *execClient) UserFolderExists(ctx context.Context, name string) (bool, error) {
	path := filepath.Join(c.userFolderRoot, name)
	out, err := c.run(ctx, "zfs", "list", path)
	if err != nil {
		if strings.Contains(out, "dataset does not exist") {
			return false, nil
		}
		return false, errors.Wrapf(err, "zfs list %s: %s", path, out)
	}
	return true, nil
}

func (c *execClient) CreateUserFolder(ctx context.Context, name string) error {
	if c.dryRun {
		return nil
	}
	op := func() (string, error) {
		out, err := c.run(ctx, "zfs_homedir.sh", name)
		if err != nil {
			return out, errors.Wrapf(err, "create user folder %s: %s", name, out)
		}
		return out, nil
	}
	_, err := backoff.Retry(ctx, op, backoff.WithMaxTries(3), backoff.WithBackOff(backoff.NewExponentialBackOff()))
	return err
}

func (c *execClient) SnapshottedNotebookPath(studentID, label, coursePath, assignmentName string) string {
	return filepath.Join(
		c.studentFolderRoot, studentID, ".zfs", "snapshot", label,
		coursePath, assignmentName, assignmentName+".ipynb",
	)
}
