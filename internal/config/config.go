// Package config loads and validates the optional .runserver YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the configuration file looked up at the project root.
const FileName = ".runserver"

// Default values for launcher configuration.
const (
	DefaultTimeout   = 5 * time.Minute
	DefaultMaxOutput = 1 << 20 // 1 MB
	DefaultMaxStderr = 64 << 10
)

// DefaultCommand is the package manager start command.
var DefaultCommand = []string{"npm", "start"}

// Stderr modes.
const (
	StderrCapture = "capture"
	StderrDrain   = "drain"
	StderrInherit = "inherit"
)

// Config holds the parsed .runserver configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Version      int      `yaml:"version"`
	RawCommand   []string `yaml:"command"`    // argv, e.g. [npm, start]
	RawStderr    string   `yaml:"stderr"`     // capture | drain | inherit
	Reap         bool     `yaml:"reap"`       // wait for the child after stdout closes
	RawTimeout   string   `yaml:"timeout"`    // e.g. "5m", "30s"; srv_run only
	RawMaxOutput int      `yaml:"max_output"` // bytes
	RawMaxStderr int      `yaml:"max_stderr"` // bytes
	RawRunsDir   string   `yaml:"runs_dir"`
}

// Command returns the configured argv or DefaultCommand.
func (c *Config) Command() []string {
	if len(c.RawCommand) > 0 {
		return slices.Clone(c.RawCommand)
	}
	return slices.Clone(DefaultCommand)
}

// StderrMode returns the configured stderr mode, defaulting to capture.
func (c *Config) StderrMode() string {
	if c.RawStderr == "" {
		return StderrCapture
	}
	return c.RawStderr
}

// Timeout returns the configured timeout or the default.
func (c *Config) Timeout() time.Duration {
	if c.RawTimeout != "" {
		d, err := time.ParseDuration(c.RawTimeout)
		if err == nil && d > 0 {
			return d
		}
	}
	return DefaultTimeout
}

// MaxOutputBytes returns the configured transcript size or the default.
func (c *Config) MaxOutputBytes() int {
	if c.RawMaxOutput > 0 {
		return c.RawMaxOutput
	}
	return DefaultMaxOutput
}

// MaxStderrBytes returns the configured drained stderr size or the default.
func (c *Config) MaxStderrBytes() int {
	if c.RawMaxStderr > 0 {
		return c.RawMaxStderr
	}
	return DefaultMaxStderr
}

// RunsDir returns the directory recorded runs are written to. A relative
// runs_dir is resolved against root. Without one, the user cache directory
// is used, falling back to the system temp directory.
func (c *Config) RunsDir(root string) string {
	if c.RawRunsDir != "" {
		if filepath.IsAbs(c.RawRunsDir) {
			return filepath.Clean(c.RawRunsDir)
		}
		return filepath.Join(root, c.RawRunsDir)
	}
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "runserver", "runs")
}

func (c *Config) validate() error {
	switch c.StderrMode() {
	case StderrCapture, StderrDrain, StderrInherit:
	default:
		return fmt.Errorf("invalid stderr mode %q (want %s, %s or %s)", c.RawStderr, StderrCapture, StderrDrain, StderrInherit)
	}
	if len(c.RawCommand) > 0 && c.RawCommand[0] == "" {
		return fmt.Errorf("command: empty executable name")
	}
	return nil
}

// LoadResult holds the parsed config and the discovered project root.
type LoadResult struct {
	Config      *Config
	ProjectRoot string // directory containing package.json; falls back to workspace
}

// Load reads the .runserver file from the project root.
// The project root is discovered by walking upward from workspace
// looking for package.json. If no .runserver file exists, a default Config
// is returned.
func Load(workspace string) (*LoadResult, error) {
	root, err := findProjectRoot(workspace)
	if err != nil {
		root = workspace
	}

	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &LoadResult{Config: &Config{}, ProjectRoot: root}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", FileName, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	return &LoadResult{Config: cfg, ProjectRoot: root}, nil
}

// findProjectRoot walks upward from dir looking for a directory containing package.json.
func findProjectRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "package.json")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("package.json not found")
		}
		dir = parent
	}
}
