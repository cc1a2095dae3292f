// Package provisioner ensures each assignment's grader datasets, repo
// clones, generated assignments, solution HTML, and hub accounts exist
// before any submission of that assignment is autograded (spec.md §4.4).
// Every step is idempotent; re-running a fully provisioned grader is a
// no-op. Grounded on the teacher's "check remote state, only act on
// drift" shape, generalized from team/user sync to grader-slot sync.
package provisioner

import (
	"context"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/coursekit/rudaux/internal/container"
	"github.com/coursekit/rudaux/internal/domain"
	"github.com/coursekit/rudaux/internal/fsclient"
	"github.com/coursekit/rudaux/internal/hubclient"
)

// Config is the subset of course configuration the provisioner needs.
type Config struct {
	GraderRoot         string
	InstructorRepoURL  string
	InstructorRepoName string
	NumGraders         int
	Graders            map[string][]string
	DryRun             bool
}

// Provisioner wires together the FS, hub, and container clients to bring
// every grader slot of a past-due assignment to a ready state.
type Provisioner struct {
	fs        fsclient.Client
	hub       hubclient.Client
	container container.Client
	cfg       Config
	cloneRepo func(ctx context.Context, url, dir string) error
}

// New builds a Provisioner.
func New(fs fsclient.Client, hub hubclient.Client, c container.Client, cfg Config) *Provisioner {
	return &Provisioner{fs: fs, hub: hub, container: c, cfg: cfg, cloneRepo: defaultClone}
}

// Provision ensures every grader slot 0..N-1 for assignment a is ready:
// dataset, repo clone, generated assignment, solution HTML, hub account.
// Per-grader failures are logged and skip that grader's remaining steps
// this run; they do not abort provisioning for other graders.
func (p *Provisioner) Provision(ctx context.Context, a domain.Assignment) {
	humanGraders := p.cfg.Graders[a.Name]
	for k := 0; k < p.cfg.NumGraders; k++ {
		graderName := domain.GraderName(a.Name, k)
		var humanGrader string
		if k < len(humanGraders) {
			humanGrader = humanGraders[k]
		}
		if err := p.provisionGrader(ctx, a, graderName, humanGrader); err != nil {
			log.Printf("[provisioner] %s: %v", graderName, err)
		}
	}
}

func (p *Provisioner) provisionGrader(ctx context.Context, a domain.Assignment, graderName, humanGrader string) error {
	if err := p.ensureDataset(ctx, graderName); err != nil {
		return errors.Wrap(err, "ensure dataset")
	}

	repoDir := filepath.Join(p.cfg.GraderRoot, graderName, p.cfg.InstructorRepoName)
	if err := p.ensureRepo(ctx, repoDir); err != nil {
		return errors.Wrap(err, "ensure repo")
	}

	if err := p.ensureAssignmentGenerated(ctx, repoDir, a.Name); err != nil {
		return errors.Wrap(err, "generate assignment")
	}

	if err := p.ensureSolutionHTML(ctx, repoDir, a.Name); err != nil {
		return errors.Wrap(err, "generate solution html")
	}

	if err := p.ensureHubAccount(ctx, graderName, humanGrader); err != nil {
		return errors.Wrap(err, "assign hub account")
	}

	return nil
}

func (p *Provisioner) ensureDataset(ctx context.Context, graderName string) error {
	exists, err := p.fs.UserFolderExists(ctx, graderName)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return p.fs.CreateUserFolder(ctx, graderName)
}

func (p *Provisioner) ensureRepo(ctx context.Context, repoDir string) error {
	if p.cfg.DryRun {
		return nil
	}
	if _, err := os.Stat(filepath.Join(repoDir, ".git")); err == nil {
		return nil
	}

	if err := p.cloneRepo(ctx, p.cfg.InstructorRepoURL, repoDir); err != nil {
		// Clone failed partway: purge so the next run starts clean.
		os.RemoveAll(repoDir)
		return err
	}
	return nil
}

func (p *Provisioner) ensureAssignmentGenerated(ctx context.Context, repoDir, assignmentName string) error {
	out, err := p.container.Run(ctx, []string{"nbgrader", "db", "assignment", "list"}, repoDir)
	if err != nil {
		return err
	}
	if strings.Contains(out, assignmentName) {
		return nil
	}
	_, err = p.container.Run(ctx, []string{"nbgrader", "generate_assignment", "--force", assignmentName}, repoDir)
	return err
}

func (p *Provisioner) ensureSolutionHTML(ctx context.Context, repoDir, assignmentName string) error {
	solutionPath := filepath.Join(repoDir, assignmentName+"_solution.html")
	if _, err := os.Stat(solutionPath); err == nil {
		return nil
	}
	source := filepath.Join("source", assignmentName, assignmentName+".ipynb")
	_, err := p.container.Run(ctx, []string{"jupyter", "nbconvert", "--to", "html", source, "--output", assignmentName + "_solution.html"}, repoDir)
	return err
}

func (p *Provisioner) ensureHubAccount(ctx context.Context, graderName, humanGrader string) error {
	exists, err := p.hub.GraderExists(ctx, graderName)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return p.hub.AssignGrader(ctx, graderName, humanGrader)
}

func defaultClone(ctx context.Context, url, dir string) error {
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return errors.Wrap(err, "create grader parent directory")
	}
	cmd := exec.CommandContext(ctx, "git", "clone", url, dir)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "git clone %s: %s", url, string(out))
	}
	return nil
}
