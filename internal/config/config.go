// Package config reads and writes the agent configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"buildmatrix/internal/testplan"
)

// DefaultFileName is the config file looked up under the workdir when no
// explicit path is given.
const DefaultFileName = "buildmatrix.yaml"

// Config drives a run: where the compiled test host lives, where result
// summaries go, and which experimental features get their own invocations.
type Config struct {
	// ArtifactDir is the build output directory searched for the test host.
	ArtifactDir string `yaml:"artifact_dir" json:"artifact_dir"`

	// TestHost is the host binary's base name, without the .exe suffix.
	TestHost string `yaml:"test_host" json:"test_host"`

	// ResultsDir receives per-invocation summary files.
	ResultsDir string `yaml:"results_dir" json:"results_dir"`

	// ReleaseTag is the version stamped onto packages. Empty means the
	// development default.
	ReleaseTag string `yaml:"release_tag,omitempty" json:"release_tag,omitempty"`

	// Features lists experimental engine features, in the order their
	// invocations are planned.
	Features []testplan.FeatureEntry `yaml:"experimental_features,omitempty" json:"experimental_features,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		ArtifactDir: "out",
		TestHost:    "testhost",
		ResultsDir:  "results",
	}
}

// Load reads a config file with strict decoding: unknown keys, trailing
// documents, and malformed entries are all errors. An absent file is not:
// it yields the defaults.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			// Empty file, defaults apply.
			return Default(), nil
		}
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return Config{}, fmt.Errorf("parse config: trailing document")
		}
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration is usable for a run.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ArtifactDir) == "" {
		return fmt.Errorf("config: artifact_dir is required")
	}
	if strings.TrimSpace(c.TestHost) == "" {
		return fmt.Errorf("config: test_host is required")
	}
	if strings.ContainsAny(c.TestHost, `/\`) {
		return fmt.Errorf("config: test_host must be a bare binary name, got %q", c.TestHost)
	}
	if strings.TrimSpace(c.ResultsDir) == "" {
		return fmt.Errorf("config: results_dir is required")
	}
	seen := make(map[string]struct{}, len(c.Features))
	for _, f := range c.Features {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("config: duplicate experimental feature %q", f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

// Save writes the configuration atomically.
func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFileAtomic(path, data, 0o644)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
