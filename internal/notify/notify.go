// Package notify implements the pluggable notification seam SPEC_FULL.md's
// open question 3 settles: a Notifier interface selected by name, with only
// a no-op implementation registered in core. Grounded on the teacher's
// registry-by-name pattern for pluggable backends.
package notify

import (
	"context"
	"log"

	"github.com/cockroachdb/errors"
)

// Summary is what a workflow run reports to whichever Notifier is
// configured: counts a course admin cares about, not per-submission detail.
type Summary struct {
	CourseDir          string
	AssignmentsRun     int
	SubmissionsUpdated int
	Errors             []string
}

// Notifier delivers a run Summary somewhere outside the process.
type Notifier interface {
	Notify(ctx context.Context, s Summary) error
}

// NoopNotifier logs the summary and does nothing else. It is the only
// Notifier registered in core; other methods are a name lookup away but
// require a caller-supplied implementation (§9 open question 3).
type NoopNotifier struct{}

// Notify implements Notifier.
func (NoopNotifier) Notify(ctx context.Context, s Summary) error {
	log.Printf("[notify] %s: %d assignments, %d submissions updated, %d errors",
		s.CourseDir, s.AssignmentsRun, s.SubmissionsUpdated, len(s.Errors))
	return nil
}

// Registry resolves a Notifier by configured name.
type Registry struct {
	methods map[string]Notifier
}

// NewRegistry builds a Registry with only "noop" registered.
func NewRegistry() *Registry {
	return &Registry{methods: map[string]Notifier{
		"noop": NoopNotifier{},
	}}
}

// Register adds or replaces a named Notifier implementation.
func (r *Registry) Register(name string, n Notifier) {
	r.methods[name] = n
}

// Resolve returns the Notifier registered under name.
func (r *Registry) Resolve(name string) (Notifier, error) {
	n, ok := r.methods[name]
	if !ok {
		return nil, errors.Newf("notify: no notifier registered for method %q", name)
	}
	return n, nil
}
