package commands

import (
	"github.com/cockroachdb/errors"

	"github.com/coursekit/rudaux/internal/config"
	"github.com/coursekit/rudaux/internal/container"
	"github.com/coursekit/rudaux/internal/fsclient"
	"github.com/coursekit/rudaux/internal/hubclient"
	"github.com/coursekit/rudaux/internal/lmsclient"
	"github.com/coursekit/rudaux/internal/notify"
	"github.com/coursekit/rudaux/internal/workflow"
)

// buildRunner loads the course configuration and wires every external
// collaborator into a workflow.Runner, shared by every subcommand that
// needs the full client set.
func buildRunner() (*workflow.Runner, *config.Config, error) {
	cfg, err := config.Load(courseDir)
	if err != nil {
		return nil, nil, errors.Wrap(err, "load course configuration")
	}

	cache, err := lmsclient.OpenCache(cfg.StateFilePath("canvas_cache", "db"))
	if err != nil {
		return nil, nil, errors.Wrap(err, "open lms cache")
	}

	clients := workflow.Clients{
		LMS:       lmsclient.NewHTTPClient(cfg.LMSBaseURL, cfg.LMSToken),
		Hub:       hubclient.NewHTTPClient(cfg.HubBaseURL, cfg.HubToken),
		FS:        fsclient.New(cfg.UserFolderRoot, cfg.StudentFolderRoot, dryRun),
		Container: container.New(dryRun),
		Notifiers: notify.NewRegistry(),
	}

	runner := workflow.New(cfg, clients, cache, true)
	return runner, cfg, nil
}
