// Package config loads a course's rudaux configuration: the YAML file
// described in spec.md §6, with environment-variable overrides for the
// handful of values operators commonly override per deployment.
package config

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// AssignmentConfig is a per-assignment override of the course-wide defaults.
// Supplements spec.md: the original implementation lets some assignments
// release solutions on a different threshold than the course default.
type AssignmentConfig struct {
	ReturnSolutionThreshold *float64 `yaml:"return_solution_threshold,omitempty"`
}

// Config is the recognized rudaux course configuration (spec.md §6).
type Config struct {
	Name string `yaml:"name"`

	UserFolderRoot    string `yaml:"user_folder_root"`
	StudentFolderRoot string `yaml:"student_folder_root"`

	InstructorRepoURL  string `yaml:"instructor_repo_url"`
	InstructorRepoName string `yaml:"instructor_repo_name"`

	NumGraders int                 `yaml:"num_graders"`
	Graders    map[string][]string `yaml:"graders"`

	LateRegExtensionDays    int     `yaml:"latereg_extension_days"`
	ReturnSolutionThreshold float64 `yaml:"return_solution_threshold"`

	NotificationMethod string `yaml:"notification_method"`

	AssignmentOverrides map[string]AssignmentConfig `yaml:"assignment_overrides,omitempty"`

	// LMS / Hub endpoints. Implementation-defined transport details the
	// spec leaves to the external-client contracts (§6).
	LMSBaseURL string `yaml:"lms_base_url"`
	LMSToken   string `yaml:"lms_token"`
	HubBaseURL string `yaml:"hub_base_url"`
	HubToken   string `yaml:"hub_token"`

	CourseDir string `yaml:"-"`
}

// DefaultConfig returns a Config with the defaults merged before file/env
// overrides are applied.
func DefaultConfig() *Config {
	return &Config{
		NumGraders:              1,
		LateRegExtensionDays:    3,
		ReturnSolutionThreshold: 1.0,
		NotificationMethod:      "noop",
	}
}

// ThresholdFor returns the return-solution threshold for a given assignment,
// honoring a per-assignment override if configured.
func (c *Config) ThresholdFor(assignmentName string) float64 {
	if ac, ok := c.AssignmentOverrides[assignmentName]; ok && ac.ReturnSolutionThreshold != nil {
		return *ac.ReturnSolutionThreshold
	}
	return c.ReturnSolutionThreshold
}

// GradersFor returns the grader list configured for an assignment.
func (c *Config) GradersFor(assignmentName string) []string {
	return c.Graders[assignmentName]
}

// Load loads configuration for the course rooted at courseDir using the
// real environment.
func Load(courseDir string) (*Config, error) {
	return LoadWithEnv(courseDir, os.Getenv)
}

// LoadWithEnv loads configuration using the provided environment lookup
// function, so tests can supply isolated environment values without
// mutating process state.
func LoadWithEnv(courseDir string, getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.CourseDir = courseDir

	path := configPath(courseDir)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config file %s", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config file %s", path)
	}

	if tok := getenv("RUDAUX_LMS_TOKEN"); tok != "" {
		cfg.LMSToken = tok
	}
	if tok := getenv("RUDAUX_HUB_TOKEN"); tok != "" {
		cfg.HubToken = tok
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configPath(courseDir string) string {
	return filepath.Join(courseDir, "rudaux_config.yml")
}

// Validate checks the configuration fields required for the pipeline to
// run at all (§7: missing config is a fatal, pre-mutation error).
func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New("config: \"name\" is required")
	}
	if c.NumGraders < 1 {
		return errors.New("config: num_graders must be >= 1")
	}
	if c.ReturnSolutionThreshold <= 0 || c.ReturnSolutionThreshold > 1 {
		return errors.New("config: return_solution_threshold must be in (0, 1]")
	}
	for name, graders := range c.Graders {
		if len(graders) < c.NumGraders {
			return errors.Errorf("config: graders[%s] has %d entries, need >= num_graders (%d)", name, len(graders), c.NumGraders)
		}
	}
	return nil
}

// StateFilePath returns the path for one of rudaux's persisted state files
// (spec.md §6: "<name>_snapshots.<ext>", "<name>_submissions.<ext>",
// "<name>_canvas_cache.<ext>").
func (c *Config) StateFilePath(kind, ext string) string {
	return filepath.Join(c.CourseDir, c.Name+"_"+kind+"."+ext)
}
