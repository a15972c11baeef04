package testplan

import (
	"fmt"
	"strings"

	"buildmatrix/internal/platform"
)

// FeatureEntry maps an experimental engine feature to the test files that
// exercise it.
//
// An empty Files list is a sentinel meaning "run the entire applicable
// corpus with this feature enabled", never "run nothing". Every consumer of
// the entry must preserve that reading.
type FeatureEntry struct {
	Name string `json:"name" yaml:"name"`

	// Files are test file identifiers relative to the corpus root, in the
	// order they should be given to the test host.
	Files []string `json:"files" yaml:"files"`

	// Platforms restricts the entry to the named platforms. Empty means all.
	Platforms []string `json:"platforms,omitempty" yaml:"platforms,omitempty"`
}

// AppliesTo reports whether the entry participates on the given platform.
func (f FeatureEntry) AppliesTo(p platform.Platform) bool {
	if len(f.Platforms) == 0 {
		return true
	}
	for _, raw := range f.Platforms {
		parsed, err := platform.Parse(raw)
		if err != nil {
			continue
		}
		if parsed == p {
			return true
		}
	}
	return false
}

// Validate checks the entry is well formed.
func (f FeatureEntry) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("feature name is required")
	}
	for i, file := range f.Files {
		if strings.TrimSpace(file) == "" {
			return fmt.Errorf("feature %q: files[%d] is empty", f.Name, i)
		}
	}
	for _, raw := range f.Platforms {
		if _, err := platform.Parse(raw); err != nil {
			return fmt.Errorf("feature %q: %w", f.Name, err)
		}
	}
	return nil
}
