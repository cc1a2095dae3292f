package commands

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/coursekit/rudaux/internal/config"
	"github.com/coursekit/rudaux/internal/lmsclient"
	"github.com/coursekit/rudaux/internal/search"
)

var maxSearchResults int

var searchStudentCmd = &cobra.Command{
	Use:   "search-student <query>",
	Short: "Look up a student by LMS id, SIS id, or (fuzzy) name",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearchStudent,
}

func init() {
	searchStudentCmd.Flags().IntVar(&maxSearchResults, "max-return", 5, "maximum number of candidates to print")
	rootCmd.AddCommand(searchStudentCmd)
}

func runSearchStudent(cmd *cobra.Command, args []string) error {
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

	matches := search.Find(view.Students, args[0], maxSearchResults)
	if len(matches) == 0 {
		fmt.Println("no matching students found")
		return nil
	}

	for _, m := range matches {
		registered := "registration date unknown"
		if m.Person.RegUpdated != nil {
			registered = "updated " + humanize.Time(*m.Person.RegUpdated)
		} else if !m.Person.RegCreated.Equal(time.Time{}) {
			registered = "registered " + humanize.Time(m.Person.RegCreated)
		}

		label := "fuzzy"
		if m.ExactID {
			label = "exact"
		}
		fmt.Printf("%-6s dist=%-3d %-30s id=%-10s sis=%-10s %s\n",
			label, m.Distance, m.Person.Name, m.Person.ID, m.Person.SISID, registered)
	}
	return nil
}
