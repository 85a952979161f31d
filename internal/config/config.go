package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kvit-s/kvit-patch/internal/patch"
)

// DefaultPath is the config file looked up in the working directory when --config is not given.
const DefaultPath = "kvit-patch.yaml"

// DefaultContextLines is the context of rendered diffs when context_lines is unset.
const DefaultContextLines = 3

type Config struct {
	Patch     PatchConfig     `yaml:"patch"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Log       LogConfig       `yaml:"log"`
}

// PatchConfig controls how diffs are applied
type PatchConfig struct {
	PolicyName   string `yaml:"policy"`        // "strict" (default) or "best_effort"
	VerifyCounts bool   `yaml:"verify_counts"` // reject hunks whose header counts disagree with the body
	PreviewMode  bool   `yaml:"preview_mode"`  // print the resulting diff instead of writing
	Confirm      bool   `yaml:"confirm"`       // ask y/N before writing
	ContextLines *int   `yaml:"context_lines"` // context of the preview diff, nil = 3
}

// WorkspaceConfig scopes which files may be patched
type WorkspaceConfig struct {
	Root          string   `yaml:"root"`
	Lock          *bool    `yaml:"lock"`             // nil = default true
	Ignore        []string `yaml:"ignore"`           // glob patterns, relative to root
	MaxFileSizeKB int      `yaml:"max_file_size_kb"` // refuse larger files (default: 1024)
	Checkpoints   int      `yaml:"checkpoints"`      // runs kept for undo (default: 20, negative disables)
}

// LogConfig configures the JSON run log
type LogConfig struct {
	Path        string `yaml:"path"` // empty = no log
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	if err := cfg.finish(); err != nil {
		// Only fails when the working directory is gone.
		cfg.Workspace.Root = "."
	}
	return cfg
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	// Roots are taken relative to the config file, not the cwd
	if !filepath.IsAbs(cfg.Workspace.Root) {
		cfg.Workspace.Root = filepath.Join(filepath.Dir(path), cfg.Workspace.Root)
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault loads DefaultPath if it exists and falls back to Default otherwise.
func LoadDefault() (*Config, error) {
	cfg, err := Load(DefaultPath)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// finish applies environment overrides, resolves the root and fills defaults.
func (c *Config) finish() error {
	// Apply environment overrides
	if policy := os.Getenv("KVIT_PATCH_POLICY"); policy != "" {
		c.Patch.PolicyName = policy
	}
	if logPath := os.Getenv("KVIT_PATCH_LOG"); logPath != "" {
		c.Log.Path = logPath
	}

	if c.Workspace.Root == "" {
		c.Workspace.Root = "."
	}
	absRoot, err := filepath.Abs(c.Workspace.Root)
	if err != nil {
		return fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	c.Workspace.Root = absRoot

	if c.Workspace.MaxFileSizeKB == 0 {
		c.Workspace.MaxFileSizeKB = 1024
	}
	return nil
}

// Validate rejects settings that Load cannot fix up on its own.
func (c *Config) Validate() error {
	if _, err := patch.ParsePolicy(c.Patch.PolicyName); err != nil {
		return fmt.Errorf("patch.policy: %w", err)
	}
	if c.Patch.ContextLines != nil && *c.Patch.ContextLines < 0 {
		return fmt.Errorf("patch.context_lines must not be negative, got %d", *c.Patch.ContextLines)
	}
	if c.Workspace.MaxFileSizeKB < 0 {
		return fmt.Errorf("workspace.max_file_size_kb must not be negative, got %d", c.Workspace.MaxFileSizeKB)
	}
	for _, pattern := range c.Workspace.Ignore {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("workspace.ignore: bad pattern %q: %w", pattern, err)
		}
	}
	return nil
}

// Policy returns the configured apply policy, Strict when unset or invalid.
// Call Validate first to surface invalid names.
func (c *Config) Policy() patch.Policy {
	p, _ := patch.ParsePolicy(c.Patch.PolicyName)
	return p
}

// DiffContext returns the number of context lines in rendered diffs. An explicit
// 0 gives diffs without context.
func (c *Config) DiffContext() int {
	if c.Patch.ContextLines == nil {
		return DefaultContextLines
	}
	return *c.Patch.ContextLines
}

// LockEnabled returns whether runs take the workspace lock. Defaults to true.
func (c *Config) LockEnabled() bool {
	if c.Workspace.Lock == nil {
		return true
	}
	return *c.Workspace.Lock
}

// IsIgnored reports whether path matches one of the workspace ignore patterns.
// A pattern matches the path relative to the root, its base name, or any of its
// parent directories, so "vendor" excludes everything below vendor/.
func (c *Config) IsIgnored(path string) bool {
	if len(c.Workspace.Ignore) == 0 {
		return false
	}

	rel := path
	if filepath.IsAbs(path) {
		r, err := filepath.Rel(c.Workspace.Root, path)
		if err != nil {
			return false
		}
		rel = r
	}
	rel = filepath.ToSlash(filepath.Clean(rel))

	for _, pattern := range c.Workspace.Ignore {
		pattern = strings.TrimSuffix(filepath.ToSlash(pattern), "/")
		if matchGlob(pattern, rel) || matchGlob(pattern, filepath.Base(rel)) {
			return true
		}
		for dir := filepath.Dir(rel); dir != "." && dir != "/"; dir = filepath.Dir(dir) {
			if matchGlob(pattern, dir) || matchGlob(pattern, filepath.Base(dir)) {
				return true
			}
		}
	}
	return false
}

func matchGlob(pattern, name string) bool {
	ok, err := filepath.Match(pattern, name)
	return err == nil && ok
}

// CheckpointsEnabled reports whether written runs keep a checkpoint for undo.
func (c *Config) CheckpointsEnabled() bool {
	return c.Workspace.Checkpoints >= 0
}

// MaxFileSize returns the size limit in bytes.
func (c *Config) MaxFileSize() int64 {
	return int64(c.Workspace.MaxFileSizeKB) * 1024
}
