// Package store owns the persisted snapshot list and submission map — the
// only durable state rudaux keeps between runs (spec.md §3, §4.6). It is
// the exclusive owner of this state; external clients hold none of it.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/coursekit/rudaux/internal/domain"
)

// Store loads and saves the two files described in spec.md §4.6, plus the
// durable grader-slot rotation counter (§9 design note: preserved across
// runs so rebalancing requires an explicit operator reset).
type Store struct {
	snapshotsPath   string
	submissionsPath string
}

// New returns a Store rooted at the given file paths.
func New(snapshotsPath, submissionsPath string) *Store {
	return &Store{snapshotsPath: snapshotsPath, submissionsPath: submissionsPath}
}

// snapshotsFile is the on-disk shape of the snapshot-label file.
type snapshotsFile struct {
	Labels []string `json:"labels"`
}

// submissionsFile is the on-disk shape of the submission-map file.
type submissionsFile struct {
	GraderIndex map[string]int                `json:"grader_index"` // per-assignment rotation counter
	Submissions map[string]domain.Submission  `json:"submissions"`
}

// LoadSnapshots reads the snapshot-label set. A missing file is not an
// error — it means no snapshots have ever been taken.
func (s *Store) LoadSnapshots() (*domain.SnapshotList, error) {
	var f snapshotsFile
	ok, err := loadJSON(s.snapshotsPath, &f)
	if err != nil {
		return nil, errors.Wrap(err, "load snapshots")
	}
	if !ok {
		return domain.NewSnapshotList(), nil
	}
	return domain.FromLabels(f.Labels), nil
}

// SaveSnapshots writes the snapshot-label set atomically (temp file then
// rename, per §4.6). Callers skip this entirely under dry-run.
func (s *Store) SaveSnapshots(list *domain.SnapshotList) error {
	labels := list.Labels()
	sort.Strings(labels)
	return saveJSON(s.snapshotsPath, snapshotsFile{Labels: labels})
}

// SubmissionState is the full persisted submission-side state: the
// submission map plus the durable per-assignment grader rotation counters.
type SubmissionState struct {
	Submissions map[string]*domain.Submission
	GraderIndex map[string]int
}

// LoadSubmissions reads the submission map and grader-rotation counters.
func (s *Store) LoadSubmissions() (*SubmissionState, error) {
	var f submissionsFile
	ok, err := loadJSON(s.submissionsPath, &f)
	if err != nil {
		return nil, errors.Wrap(err, "load submissions")
	}
	state := &SubmissionState{
		Submissions: make(map[string]*domain.Submission),
		GraderIndex: make(map[string]int),
	}
	if !ok {
		return state, nil
	}
	for k, v := range f.Submissions {
		sub := v
		state.Submissions[k] = &sub
	}
	for k, v := range f.GraderIndex {
		state.GraderIndex[k] = v
	}
	return state, nil
}

// SaveSubmissions writes the submission map and grader-rotation counters
// atomically. A no-op save (nothing changed) round-trips byte-identically
// because encoding/json writes map keys in sorted order.
func (s *Store) SaveSubmissions(state *SubmissionState) error {
	f := submissionsFile{
		GraderIndex: state.GraderIndex,
		Submissions: make(map[string]domain.Submission, len(state.Submissions)),
	}
	for k, v := range state.Submissions {
		f.Submissions[k] = *v
	}
	return saveJSON(s.submissionsPath, f)
}

// loadJSON reads and unmarshals path into out, returning ok=false (no
// error) when the file simply doesn't exist yet.
func loadJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "read %s", path)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, errors.Wrapf(err, "parse %s", path)
	}
	return true, nil
}

// saveJSON marshals v with stable (sorted-key) formatting and writes it to
// path via a temp-file-then-rename, so a crash mid-write never leaves a
// truncated state file behind.
func saveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal state")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create state dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temp state file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "write temp state file %s", tmpPath)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close temp state file %s", tmpPath)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrapf(err, "rename %s to %s", tmpPath, path)
	}
	return nil
}
