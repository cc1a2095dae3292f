package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursekit/rudaux/internal/domain"
)

func TestReturnSolutionsPolicyEvaluateThreshold(t *testing.T) {
	p := NewReturnSolutionsPolicy(nil, func(string) float64 { return 0.8 })

	assert.True(t, p.Evaluate("hw1", 8, 10))
	assert.False(t, p.Evaluate("hw1", 7, 10))
	assert.False(t, p.Evaluate("hw1", 0, 0))
}

func TestReturnSolutionsCopiesHTMLToEligibleStudents(t *testing.T) {
	root := t.TempDir()
	graderDir := filepath.Join(root, "hw1-grader-0")
	require.NoError(t, os.MkdirAll(graderDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(graderDir, "hw1_solution.html"), []byte("<html>solution</html>"), 0o644))

	d := New(&fakeFS{}, newFakeContainer(), &fakeGrader{}, &fakeGradebook{}, Config{
		GraderRoot:        root,
		StudentFolderRoot: root,
		CoursePath:        "course",
	})
	policy := NewReturnSolutionsPolicy(d, func(string) float64 { return 0.5 })

	subs := map[string]*domain.Submission{
		"hw1-alice": {AssignmentName: "hw1", StudentID: "alice", Grader: "hw1-grader-0"},
	}

	policy.ReturnSolutions("hw1", subs)

	assert.True(t, subs["hw1-alice"].SolutionReturned)
	assert.FileExists(t, subs["hw1-alice"].SolutionOutputPath)
}

func TestReturnSolutionsSkipsAlreadyReturned(t *testing.T) {
	d := New(&fakeFS{}, newFakeContainer(), &fakeGrader{}, &fakeGradebook{}, Config{})
	policy := NewReturnSolutionsPolicy(d, func(string) float64 { return 0.5 })

	subs := map[string]*domain.Submission{
		"hw1-alice": {AssignmentName: "hw1", StudentID: "alice", SolutionReturned: true},
	}

	policy.ReturnSolutions("hw1", subs)

	assert.Empty(t, subs["hw1-alice"].SolutionReturnError)
}

func TestReturnFeedbackNoopWhenAssignmentNotOnReturnSolutionsList(t *testing.T) {
	d := New(&fakeFS{}, newFakeContainer(), &fakeGrader{}, &fakeGradebook{}, Config{})
	subs := map[string]*domain.Submission{
		"hw1-alice": {AssignmentName: "hw1", StudentID: "alice", Status: domain.GradePosted},
	}

	d.ReturnFeedback(context.Background(), domain.Assignment{Name: "hw1"}, subs, false)

	assert.Equal(t, domain.GradePosted, subs["hw1-alice"].Status)
}

func TestReturnFeedbackCopiesFeedbackForGradePostedSubmissions(t *testing.T) {
	root := t.TempDir()
	feedbackSrc := filepath.Join(root, "feedback", "student_alice", "hw1", "hw1.html")
	require.NoError(t, os.MkdirAll(filepath.Dir(feedbackSrc), 0o755))
	require.NoError(t, os.WriteFile(feedbackSrc, []byte("<html>feedback</html>"), 0o644))

	d := New(&fakeFS{}, newFakeContainer(), &fakeGrader{}, &fakeGradebook{}, Config{
		StudentFolderRoot: root,
		CoursePath:        "course",
	})
	subs := map[string]*domain.Submission{
		"hw1-alice": {
			AssignmentName:     "hw1",
			StudentID:          "alice",
			Status:             domain.GradePosted,
			FeedbackOutputPath: feedbackSrc,
		},
	}

	d.ReturnFeedback(context.Background(), domain.Assignment{Name: "hw1"}, subs, true)

	assert.Equal(t, domain.FeedbackReturned, subs["hw1-alice"].Status)
	assert.FileExists(t, filepath.Join(root, "alice", "course", "hw1", "hw1_feedback.html"))
}

func TestReturnFeedbackMissingSubmissionNeverReachesGradePosted(t *testing.T) {
	// A MISSING submission's Status never advances to GRADE_POSTED (it
	// tracks upload/post progress on MissingGradeUploaded/MissingGradePosted
	// instead), so ReturnFeedback's GradePosted filter excludes it without
	// any special-case check here.
	d := New(&fakeFS{}, newFakeContainer(), &fakeGrader{}, &fakeGradebook{}, Config{})
	subs := map[string]*domain.Submission{
		"hw1-alice": {
			AssignmentName:       "hw1",
			StudentID:            "alice",
			Status:               domain.Missing,
			MissingGradeUploaded: true,
			MissingGradePosted:   true,
		},
	}

	d.ReturnFeedback(context.Background(), domain.Assignment{Name: "hw1"}, subs, true)

	assert.Equal(t, domain.Missing, subs["hw1-alice"].Status)
}
