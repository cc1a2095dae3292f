package pipeline

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// CleanNotebook strips nbgrader grading metadata from duplicate cells,
// grounded on original_source/rudaux/rudaux/submission.py's clean(): a
// known nbgrader bug (jupyter/nbgrader#1083) duplicates a grading cell's
// id when students copy-paste, which corrupts autograding unless the
// duplicate's metadata is removed before submission.
func CleanNotebook(raw []byte) ([]byte, error) {
	var nb map[string]any
	if err := json.Unmarshal(raw, &nb); err != nil {
		return nil, errors.Wrap(err, "parse notebook json")
	}

	cells, _ := nb["cells"].([]any)
	seen := make(map[string]bool, len(cells))
	for _, c := range cells {
		cell, ok := c.(map[string]any)
		if !ok {
			continue
		}
		gradeID, meta, ok := gradingCellID(cell)
		if !ok {
			continue
		}
		if seen[gradeID] {
			delete(meta, "nbgrader")
		} else {
			seen[gradeID] = true
		}
	}

	return json.Marshal(nb)
}

// ComputeMaxScore sums the point values across a release notebook's
// grading cells, grounded on submission.py's compute_max_score: nbgrader
// itself does not expose a max-score total, so rudaux derives it from the
// release notebook's own cell metadata.
func ComputeMaxScore(raw []byte) (float64, error) {
	var nb map[string]any
	if err := json.Unmarshal(raw, &nb); err != nil {
		return 0, errors.Wrap(err, "parse release notebook json")
	}

	cells, _ := nb["cells"].([]any)
	var total float64
	for _, c := range cells {
		cell, ok := c.(map[string]any)
		if !ok {
			continue
		}
		_, meta, ok := gradingCellID(cell)
		if !ok {
			continue
		}
		if pts, ok := meta["points"].(float64); ok {
			total += pts
		}
	}
	return total, nil
}

func gradingCellID(cell map[string]any) (string, map[string]any, bool) {
	metadata, ok := cell["metadata"].(map[string]any)
	if !ok {
		return "", nil, false
	}
	nbgraderMeta, ok := metadata["nbgrader"].(map[string]any)
	if !ok {
		return "", nil, false
	}
	gradeID, _ := nbgraderMeta["grade_id"].(string)
	if gradeID == "" {
		return "", nil, false
	}
	return gradeID, metadata, true
}
