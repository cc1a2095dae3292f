package commands

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/coursekit/rudaux/internal/config"
	"github.com/coursekit/rudaux/internal/fsclient"
	"github.com/coursekit/rudaux/internal/lmsclient"
	"github.com/coursekit/rudaux/internal/scheduler"
	"github.com/coursekit/rudaux/internal/store"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Take any filesystem snapshots now due, without running the grading pipeline",
	RunE:  runSnapshot,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(courseDir)
	if err != nil {
		return errors.Wrap(err, "load course configuration")
	}

	cache, err := lmsclient.OpenCache(cfg.StateFilePath("canvas_cache", "db"))
	if err != nil {
		return errors.Wrap(err, "open lms cache")
	}
	lms := lmsclient.NewHTTPClient(cfg.LMSBaseURL, cfg.LMSToken)
	sync := lmsclient.NewSynchronizer(lms, cache, true)

	view, err := sync.Sync(cmd.Context())
	if err != nil {
		return errors.Wrap(err, "synchronize lms view")
	}

	st := store.New(cfg.StateFilePath("snapshots", "json"), cfg.StateFilePath("submissions", "json"))
	snapshots, err := st.LoadSnapshots()
	if err != nil {
		return errors.Wrap(err, "load snapshot list")
	}

	fs := fsclient.New(cfg.UserFolderRoot, cfg.StudentFolderRoot, dryRun)
	sched := scheduler.New(fs)
	sched.Run(cmd.Context(), view.Assignments, snapshots, time.Now())

	if !dryRun {
		if err := st.SaveSnapshots(snapshots); err != nil {
			return errors.Wrap(err, "save snapshot list")
		}
	}

	fmt.Printf("snapshot labels on record: %d\n", len(snapshots.Labels()))
	return nil
}
