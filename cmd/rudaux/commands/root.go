// Package commands implements the rudaux CLI surface (spec.md §6):
// run-workflow, snapshot, apply-extensions, and search-student, all
// accepting persistent --course-dir and --dry-run flags. Grounded on the
// teacher's viper-bound cobra root command (cmd/linear-fuse/commands),
// generalized from a single mount flag set to a multi-subcommand course CLI.
package commands

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	courseDir string
	dryRun    bool
)

var rootCmd = &cobra.Command{
	Use:   "rudaux",
	Short: "Grade assignments end to end: collect, autograde, and return feedback",
	Long: `rudaux advances a course's student submissions through the grading
pipeline: snapshotting the filesystem, collecting and sanitizing notebooks,
autograding them in a container, generating feedback, and uploading grades
to the LMS.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&courseDir, "course-dir", ".", "course directory containing rudaux_config.yml")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "skip snapshots, git clones, container jobs, notebook copies, grade uploads, and state-file saves; late-registration overrides and hub grader accounts are still written")

	viper.BindPFlag("course-dir", rootCmd.PersistentFlags().Lookup("course-dir"))
	viper.BindPFlag("dry-run", rootCmd.PersistentFlags().Lookup("dry-run"))
}

func initConfig() {
	viper.SetEnvPrefix("RUDAUX")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if v := viper.GetString("course-dir"); v != "" {
		courseDir = v
	}
	if viper.IsSet("dry-run") {
		dryRun = viper.GetBool("dry-run")
	}
}
