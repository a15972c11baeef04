// Package artifact resolves build outputs required by later pipeline steps.
package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"buildmatrix/internal/platform"
)

// MissingError reports that the compiled test host was not found where the
// build should have placed it. It is fatal: test planning refuses to plan
// without the artifact.
type MissingError struct {
	Dir        string
	Candidates []string
}

func (e *MissingError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("missing build artifact: no test host under %s (tried %s)",
		e.Dir, strings.Join(e.Candidates, ", "))
}

// DirLocator finds the test host executable under the build output
// directory.
//
// Name is the executable base name; Windows resolution appends ".exe".
type DirLocator struct {
	Dir      string
	Name     string
	Platform platform.Platform
}

// TestHost returns the absolute path of the test host executable, or a
// MissingError when it is absent. A directory at the candidate path does not
// count as the artifact.
func (l *DirLocator) TestHost(ctx context.Context) (string, error) {
	if l == nil {
		return "", fmt.Errorf("artifact: nil locator")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(l.Dir) == "" {
		return "", fmt.Errorf("artifact: output dir is required")
	}
	if strings.TrimSpace(l.Name) == "" {
		return "", fmt.Errorf("artifact: test host name is required")
	}

	candidates := []string{filepath.Join(l.Dir, l.Name)}
	if l.Platform == platform.Windows && !strings.HasSuffix(l.Name, ".exe") {
		candidates = []string{filepath.Join(l.Dir, l.Name+".exe"), filepath.Join(l.Dir, l.Name)}
	}

	for _, p := range candidates {
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", fmt.Errorf("artifact: stat %s: %w", p, err)
		}
		if info.IsDir() {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", fmt.Errorf("artifact: resolve %s: %w", p, err)
		}
		return abs, nil
	}

	return "", &MissingError{Dir: l.Dir, Candidates: candidates}
}
