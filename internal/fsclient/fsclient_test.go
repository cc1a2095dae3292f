package fsclient

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	name string
	args []string
}

func newFakeClient() (*execClient, *[]recordedCall, *map[string]string) {
	calls := &[]recordedCall{}
	outputs := &map[string]string{}
	c := &execClient{
		userFolderRoot:    "tank/home",
		studentFolderRoot: "/home",
		run: func(ctx context.Context, name string, args ...string) (string, error) {
			*calls = append(*calls, recordedCall{name: name, args: args})
			key := name
			for _, a := range args {
				key += " " + a
			}
			if out, ok := (*outputs)[key]; ok {
				if out == "ERR:dataset does not exist" {
					return "cannot open: dataset does not exist", errors.New("exit status 1")
				}
				return out, nil
			}
			return "", nil
		},
	}
	return c, calls, outputs
}

func TestSnapshotAllBuildsRootTarget(t *testing.T) {
	c, calls, _ := newFakeClient()
	err := c.SnapshotAll(context.Background(), "2026-02-01")
	require.NoError(t, err)
	require.Len(t, *calls, 1)
	assert.Equal(t, []string{"snapshot", "-r", "tank/home@2026-02-01"}, (*calls)[0].args)
}

func TestSnapshotUserBuildsPerUserTarget(t *testing.T) {
	c, calls, _ := newFakeClient()
	err := c.SnapshotUser(context.Background(), "alice", "2026-02-01")
	require.NoError(t, err)
	require.Len(t, *calls, 1)
	assert.Equal(t, []string{"snapshot", "-r", "tank/home/alice@2026-02-01"}, (*calls)[0].args)
}

func TestSnapshotUserMissingDatasetReturnsSentinel(t *testing.T) {
	c, _, outputs := newFakeClient()
	(*outputs)["zfs snapshot -r tank/home/bob@2026-02-01"] = "ERR:dataset does not exist"

	err := c.SnapshotUser(context.Background(), "bob", "2026-02-01")
	require.ErrorIs(t, err, ErrDatasetNotFound)
}

func TestDryRunSkipsCommand(t *testing.T) {
	c, calls, _ := newFakeClient()
	c.dryRun = true

	require.NoError(t, c.SnapshotAll(context.Background(), "label"))
	require.NoError(t, c.CreateUserFolder(context.Background(), "alice"))
	assert.Empty(t, *calls)
}

func TestUserFolderExists(t *testing.T) {
	c, _, outputs := newFakeClient()
	(*outputs)["zfs list tank/home/alice"] = "tank/home/alice  10G  -  10G  /home/alice"

	ok, err := c.UserFolderExists(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUserFolderDoesNotExist(t *testing.T) {
	c, _, outputs := newFakeClient()
	(*outputs)["zfs list tank/home/carol"] = "ERR:dataset does not exist"

	ok, err := c.UserFolderExists(context.Background(), "carol")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSnapshottedNotebookPath(t *testing.T) {
	c, _, _ := newFakeClient()
	path := c.SnapshottedNotebookPath("alice", "2026-02-01", "course/hw1", "hw1")
	assert.Equal(t, "/home/alice/.zfs/snapshot/2026-02-01/course/hw1/hw1/hw1.ipynb", path)
}
