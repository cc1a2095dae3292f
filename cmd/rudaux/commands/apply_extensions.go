package commands

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/coursekit/rudaux/internal/config"
	"github.com/coursekit/rudaux/internal/latereg"
	"github.com/coursekit/rudaux/internal/lmsclient"
)

var applyExtensionsCmd = &cobra.Command{
	Use:   "apply-extensions",
	Short: "Grant late-registration due-date extensions to newly registered students",
	RunE:  runApplyExtensions,
}

func init() {
	rootCmd.AddCommand(applyExtensionsCmd)
}

func runApplyExtensions(cmd *cobra.Command, args []string) error {
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

	policy := latereg.New(lms, sync, cfg.LateRegExtensionDays)
	view, err = policy.Run(cmd.Context(), view, time.Now())
	if err != nil {
		return errors.Wrap(err, "apply late registration extensions")
	}

	fmt.Printf("late-registration pass complete across %d assignments\n", len(view.Assignments))
	return nil
}
