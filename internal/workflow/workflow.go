// Package workflow wires together every collaborator rudaux depends on —
// LMS, hub, filesystem, container runner, grader provisioner, pipeline
// driver, and notifier — into the single run spec.md §2 describes.
// Grounded on the teacher's top-level sync orchestration (cmd/linear-fuse's
// mount command composing api.Client, repo.Store, and fs.Mount in one call).
package workflow

import (
	"context"
	"log"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/coursekit/rudaux/internal/config"
	"github.com/coursekit/rudaux/internal/container"
	"github.com/coursekit/rudaux/internal/domain"
	"github.com/coursekit/rudaux/internal/fsclient"
	"github.com/coursekit/rudaux/internal/hubclient"
	"github.com/coursekit/rudaux/internal/latereg"
	"github.com/coursekit/rudaux/internal/lmsclient"
	"github.com/coursekit/rudaux/internal/notify"
	"github.com/coursekit/rudaux/internal/pipeline"
	"github.com/coursekit/rudaux/internal/provisioner"
	"github.com/coursekit/rudaux/internal/scheduler"
	"github.com/coursekit/rudaux/internal/store"
)

// Clients bundles every external collaborator the workflow coordinates
// against (spec.md's four external collaborators, plus the notifier).
type Clients struct {
	LMS       lmsclient.Client
	Hub       hubclient.Client
	FS        fsclient.Client
	Container container.Client
	Notifiers *notify.Registry
}

// Runner executes one full rudaux run against a course configuration.
type Runner struct {
	cfg     *config.Config
	clients Clients
	store   *store.Store
	sync    *lmsclient.Synchronizer
}

// New builds a Runner. cacheFallback mirrors spec.md §7's operator choice
// between degrading to the LMS cache or aborting the run on LMS failure.
func New(cfg *config.Config, clients Clients, cache *lmsclient.Cache, cacheFallback bool) *Runner {
	return &Runner{
		cfg:     cfg,
		clients: clients,
		store:   store.New(cfg.StateFilePath("snapshots", "json"), cfg.StateFilePath("submissions", "json")),
		sync:    lmsclient.NewSynchronizer(clients.LMS, cache, cacheFallback),
	}
}

// Run executes one full pass: synchronize, apply extensions, snapshot,
// provision, drive the submission pipeline, persist, and notify.
func (r *Runner) Run(ctx context.Context, now time.Time, dryRun bool) (notify.Summary, error) {
	summary := notify.Summary{CourseDir: r.cfg.CourseDir}

	view, err := r.sync.Sync(ctx)
	if err != nil {
		return summary, errors.Wrap(err, "synchronize lms view")
	}

	lateregPolicy := latereg.New(r.clients.LMS, r.sync, r.cfg.LateRegExtensionDays)
	view, err = lateregPolicy.Run(ctx, view, now)
	if err != nil {
		return summary, errors.Wrap(err, "apply late registration extensions")
	}

	snapshots, err := r.store.LoadSnapshots()
	if err != nil {
		return summary, errors.Wrap(err, "load snapshot list")
	}
	subState, err := r.store.LoadSubmissions()
	if err != nil {
		return summary, errors.Wrap(err, "load submission state")
	}

	sched := scheduler.New(r.clients.FS)
	sched.Run(ctx, view.Assignments, snapshots, now)

	prov := provisioner.New(r.clients.FS, r.clients.Hub, r.clients.Container, provisioner.Config{
		GraderRoot:         r.cfg.UserFolderRoot,
		InstructorRepoURL:  r.cfg.InstructorRepoURL,
		InstructorRepoName: r.cfg.InstructorRepoName,
		NumGraders:         r.cfg.NumGraders,
		Graders:            r.cfg.Graders,
		DryRun:             dryRun,
	})

	driver := pipeline.New(r.clients.FS, r.clients.Container, r.clients.LMS, pipeline.NewGradebook(), pipeline.Config{
		StudentFolderRoot:  r.cfg.StudentFolderRoot,
		GraderRoot:         r.cfg.UserFolderRoot,
		InstructorRepoName: r.cfg.InstructorRepoName,
		CoursePath:         r.cfg.Name,
		ChownUser:          pipeline.HubChownUser,
		DryRun:             dryRun,
	})
	solutionsPolicy := pipeline.NewReturnSolutionsPolicy(driver, r.cfg.ThresholdFor)

	var returnSolutionsList []string
	timeNow := func() time.Time { return now }

	for _, a := range view.Assignments {
		if !a.PastDue(now) {
			continue
		}

		prov.Provision(ctx, a)

		idx := subState.GraderIndex[a.Name]
		driver.CreateIfAbsent(a, view.Students, subState.Submissions, &idx, r.cfg.NumGraders)
		subState.GraderIndex[a.Name] = idx
		driver.RefreshDueDates(a, subState.Submissions)

		collected, err := driver.RunAssignment(ctx, a, subState.Submissions, timeNow)
		if err != nil {
			summary.Errors = append(summary.Errors, err.Error())
			log.Printf("[workflow] assignment %s: %v", a.Name, err)
			continue
		}
		summary.AssignmentsRun++
		summary.SubmissionsUpdated += collected

		total := countForAssignment(subState.Submissions, a.Name)
		if solutionsPolicy.Evaluate(a.Name, collected, total) {
			returnSolutionsList = append(returnSolutionsList, a.Name)
		}
	}

	onList := make(map[string]bool, len(returnSolutionsList))
	for _, name := range returnSolutionsList {
		onList[name] = true
		solutionsPolicy.ReturnSolutions(name, subState.Submissions)
	}
	for _, a := range view.Assignments {
		driver.ReturnFeedback(ctx, a, subState.Submissions, onList[a.Name])
	}

	if !dryRun {
		if err := r.store.SaveSnapshots(snapshots); err != nil {
			return summary, errors.Wrap(err, "save snapshot list")
		}
		if err := r.store.SaveSubmissions(subState); err != nil {
			return summary, errors.Wrap(err, "save submission state")
		}
	}

	notifier, err := r.clients.Notifiers.Resolve(r.cfg.NotificationMethod)
	if err != nil {
		return summary, errors.Wrap(err, "resolve notifier")
	}
	if err := notifier.Notify(ctx, summary); err != nil {
		log.Printf("[workflow] notify failed: %v", err)
	}

	return summary, nil
}

func countForAssignment(submissions map[string]*domain.Submission, assignmentName string) int {
	n := 0
	for _, sub := range submissions {
		if sub.AssignmentName == assignmentName {
			n++
		}
	}
	return n
}
