package container

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitAndRunAllJoinsResultsByJobID(t *testing.T) {
	c := New(true).(*runner)

	id1, err := c.Submit(context.Background(), []string{"echo", "one"}, "/tmp")
	require.NoError(t, err)
	id2, err := c.Submit(context.Background(), []string{"echo", "two"}, "/tmp")
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	results, err := c.RunAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	_, ok1 := results[id1]
	_, ok2 := results[id2]
	assert.True(t, ok1)
	assert.True(t, ok2)
}

func TestRunAllDrainsPendingQueue(t *testing.T) {
	c := New(true).(*runner)
	_, err := c.Submit(context.Background(), []string{"echo", "one"}, "/tmp")
	require.NoError(t, err)

	first, err := c.RunAll(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := c.RunAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestSubmitRejectsEmptyCommand(t *testing.T) {
	c := New(true)
	_, err := c.Submit(context.Background(), nil, "/tmp")
	require.Error(t, err)
}

func TestRunSynchronousDryRun(t *testing.T) {
	c := New(true)
	out, err := c.Run(context.Background(), []string{"nbgrader", "autograde"}, "/tmp")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRunRejectsEmptyCommand(t *testing.T) {
	c := New(true)
	_, err := c.Run(context.Background(), nil, "/tmp")
	require.Error(t, err)
}
