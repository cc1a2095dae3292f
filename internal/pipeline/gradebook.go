package pipeline

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"
)

// Gradebook reads the per-assignment, per-student result that nbgrader
// writes into a grader repo's gradebook.db during autograding (grounded on
// original_source/rudaux/rudaux/submission.py's Gradebook.find_submission
// calls). rudaux only ever reads this database; nbgrader, running inside
// the container, owns writing it.
type Gradebook interface {
	SubmissionResult(ctx context.Context, repoDir, assignmentName, studentUsername string) (score float64, needsManualGrade bool, err error)
}

type sqliteGradebook struct{}

// NewGradebook builds a Gradebook reader against nbgrader's sqlite store.
func NewGradebook() Gradebook {
	return sqliteGradebook{}
}

func (sqliteGradebook) SubmissionResult(ctx context.Context, repoDir, assignmentName, studentUsername string) (float64, bool, error) {
	db, err := sql.Open("sqlite", repoDir+"/gradebook.db")
	if err != nil {
		return 0, false, errors.Wrap(err, "open gradebook.db")
	}
	defer db.Close()

	const query = `
		SELECT sa.score, sa.needs_manual_grade
		FROM submitted_assignment sa
		JOIN assignment a ON sa.assignment_id = a.id
		JOIN student s ON sa.student_id = s.id
		WHERE a.name = ? AND s.id = ?`

	var score float64
	var needsManualGrade bool
	row := db.QueryRowContext(ctx, query, assignmentName, studentUsername)
	if err := row.Scan(&score, &needsManualGrade); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, errors.Newf("no gradebook entry for %s/%s", assignmentName, studentUsername)
		}
		return 0, false, errors.Wrap(err, "query gradebook")
	}
	return score, needsManualGrade, nil
}
