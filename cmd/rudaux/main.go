// Command rudaux runs the grading pipeline CLI: synchronizing a course's
// LMS roster and assignments, scheduling filesystem snapshots, provisioning
// graders, and driving submissions through autograding, feedback, and
// grade return.
package main

import (
	"fmt"
	"os"

	"github.com/coursekit/rudaux/cmd/rudaux/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
