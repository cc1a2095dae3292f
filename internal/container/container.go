// Package container wraps the isolated job runner that autograding and
// feedback generation execute inside (spec.md §6): submit a job, run a
// batch of submitted jobs concurrently, or run one command synchronously.
// Grounded on the teacher's syncIssueDetailsBatch idiom (batch remote work
// by id, then join results keyed by that same id), generalized from
// "batch GraphQL fetch by issue ID" to "batch container jobs by job id".
package container

import (
	"context"
	"os/exec"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Result is the outcome of one container job (spec.md §6's
// "{log, exit_status}").
type Result struct {
	Log        string
	ExitStatus int
}

// Client is the narrow interface the pipeline driver consumes. JobID is an
// opaque correlation token (spec.md §9: "the driver must not interpret it").
type Client interface {
	Submit(ctx context.Context, command []string, workingDirectory string) (jobID string, err error)
	RunAll(ctx context.Context) (map[string]Result, error)
	Run(ctx context.Context, command []string, workingDirectory string) (combinedOutput string, err error)
}

type pendingJob struct {
	command          []string
	workingDirectory string
}

// runner executes jobs as subprocesses, one per submitted job, run
// concurrently on RunAll. Dry-run mode records the job as a synthetic
// success without executing anything, matching the rest of the client
// package's dry-run convention.
type runner struct {
	dryRun bool

	mu      sync.Mutex
	pending map[string]pendingJob
}

// New builds a Client backed by local subprocess execution.
func New(dryRun bool) Client {
	return &runner{dryRun: dryRun, pending: make(map[string]pendingJob)}
}

func (r *runner) Submit(ctx context.Context, command []string, workingDirectory string) (string, error) {
	if len(command) == 0 {
		return "", errors.New("container: empty command")
	}
	id := uuid.NewString()

	r.mu.Lock()
	r.pending[id] = pendingJob{command: command, workingDirectory: workingDirectory}
	r.mu.Unlock()

	return id, nil
}

func (r *runner) RunAll(ctx context.Context) (map[string]Result, error) {
	r.mu.Lock()
	jobs := r.pending
	r.pending = make(map[string]pendingJob)
	r.mu.Unlock()

	results := make(map[string]Result, len(jobs))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for id, job := range jobs {
		wg.Add(1)
		go func(id string, job pendingJob) {
			defer wg.Done()
			out, status := r.execute(ctx, job.command, job.workingDirectory)
			mu.Lock()
			results[id] = Result{Log: out, ExitStatus: status}
			mu.Unlock()
		}(id, job)
	}
	wg.Wait()

	return results, nil
}

func (r *runner) Run(ctx context.Context, command []string, workingDirectory string) (string, error) {
	if len(command) == 0 {
		return "", errors.New("container: empty command")
	}
	out, status := r.execute(ctx, command, workingDirectory)
	if status != 0 {
		return out, errors.Newf("container: command %s exited %d", strings.Join(command, " "), status)
	}
	return out, nil
}

func (r *runner) execute(ctx context.Context, command []string, workingDirectory string) (string, int) {
	if r.dryRun {
		return "", 0
	}
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Dir = workingDirectory
	out, err := cmd.CombinedOutput()
	if err == nil {
		return string(out), 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return string(out), exitErr.ExitCode()
	}
	return string(out) + "\n" + err.Error(), -1
}
