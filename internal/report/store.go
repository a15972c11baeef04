package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// Store persists run records under:
//
//	<baseDir>/.buildmatrix/runs/<run-id>/
//	    run.json
//	    failure.json
//	    trace.json
//	    invocations/<label>.json
//
// All writes are atomic and durable (file sync + atomic rename + dir sync),
// so a crash mid-write never leaves a truncated record behind.
type Store struct {
	baseDir string
}

func NewStore(baseDir string) (*Store, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, errors.New("baseDir is required")
	}
	return &Store{baseDir: baseDir}, nil
}

func (s *Store) runsRootDir() string {
	return filepath.Join(s.baseDir, ".buildmatrix", "runs")
}

func (s *Store) runDir(runID string) string {
	return filepath.Join(s.runsRootDir(), runID)
}

func (s *Store) runPath(runID string) string {
	return filepath.Join(s.runDir(runID), "run.json")
}

func (s *Store) failurePath(runID string) string {
	return filepath.Join(s.runDir(runID), "failure.json")
}

func (s *Store) tracePath(runID string) string {
	return filepath.Join(s.runDir(runID), "trace.json")
}

func (s *Store) invocationsDir(runID string) string {
	return filepath.Join(s.runDir(runID), "invocations")
}

func (s *Store) invocationPath(runID, label string) string {
	return filepath.Join(s.invocationsDir(runID), label+".json")
}

// ListRunIDs returns all run IDs currently present on disk, sorted
// lexicographically.
func (s *Store) ListRunIDs() ([]string, error) {
	if s == nil {
		return nil, errors.New("nil Store")
	}
	entries, err := os.ReadDir(s.runsRootDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := strings.TrimSpace(e.Name())
		if name == "" {
			continue
		}
		ids = append(ids, name)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) SaveRun(run Run) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}
	if err := ensureDirDurable(s.runDir(run.RunID), 0o755); err != nil {
		return fmt.Errorf("ensure run dir: %w", err)
	}
	data, err := jsonMarshalStable(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	if err := writeFileAtomicDurable(s.runPath(run.RunID), data, 0o644); err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

func (s *Store) LoadRun(runID string) (Run, error) {
	var run Run
	if strings.TrimSpace(runID) == "" {
		return Run{}, errors.New("runID is required")
	}
	if err := readJSONStrict(s.runPath(runID), &run); err != nil {
		return Run{}, err
	}
	if err := run.Validate(); err != nil {
		return Run{}, fmt.Errorf("invalid run on disk: %w", err)
	}
	return run, nil
}

func (s *Store) SaveInvocation(runID string, rec InvocationRecord) error {
	if strings.TrimSpace(runID) == "" {
		return errors.New("runID is required")
	}
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid invocation record: %w", err)
	}
	// Labels double as file names; separators would escape the run dir.
	if strings.ContainsAny(rec.Label, `/\`) {
		return fmt.Errorf("invocation label %q is not a valid record name", rec.Label)
	}
	if err := ensureDirDurable(s.invocationsDir(runID), 0o755); err != nil {
		return fmt.Errorf("ensure invocations dir: %w", err)
	}
	data, err := jsonMarshalStable(rec)
	if err != nil {
		return fmt.Errorf("marshal invocation record: %w", err)
	}
	if err := writeFileAtomicDurable(s.invocationPath(runID, rec.Label), data, 0o644); err != nil {
		return fmt.Errorf("write invocation record: %w", err)
	}
	return nil
}

func (s *Store) LoadInvocation(runID, label string) (InvocationRecord, error) {
	var rec InvocationRecord
	if strings.TrimSpace(runID) == "" {
		return InvocationRecord{}, errors.New("runID is required")
	}
	if strings.TrimSpace(label) == "" {
		return InvocationRecord{}, errors.New("label is required")
	}
	if err := readJSONStrict(s.invocationPath(runID, label), &rec); err != nil {
		return InvocationRecord{}, err
	}
	if err := rec.Validate(); err != nil {
		return InvocationRecord{}, fmt.Errorf("invalid invocation record on disk: %w", err)
	}
	return rec, nil
}

// LoadAllInvocations loads every invocation record of a run, keyed by
// label. Files are discovered via sorted directory listing.
func (s *Store) LoadAllInvocations(runID string) (map[string]InvocationRecord, error) {
	if s == nil {
		return nil, errors.New("nil Store")
	}
	if strings.TrimSpace(runID) == "" {
		return nil, errors.New("runID is required")
	}
	entries, err := os.ReadDir(s.invocationsDir(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]InvocationRecord{}, nil
		}
		return nil, err
	}
	out := make(map[string]InvocationRecord, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		label := strings.TrimSuffix(name, ".json")
		if strings.TrimSpace(label) == "" {
			continue
		}
		rec, err := s.LoadInvocation(runID, label)
		if err != nil {
			return nil, err
		}
		out[label] = rec
	}
	return out, nil
}

func (s *Store) SaveFailure(runID string, failure Failure) error {
	if strings.TrimSpace(runID) == "" {
		return errors.New("runID is required")
	}
	if err := failure.Validate(); err != nil {
		return fmt.Errorf("invalid failure: %w", err)
	}
	if err := ensureDirDurable(s.runDir(runID), 0o755); err != nil {
		return fmt.Errorf("ensure run dir: %w", err)
	}
	data, err := jsonMarshalStable(failure)
	if err != nil {
		return fmt.Errorf("marshal failure: %w", err)
	}
	if err := writeFileAtomicDurable(s.failurePath(runID), data, 0o644); err != nil {
		return fmt.Errorf("write failure: %w", err)
	}
	return nil
}

func (s *Store) LoadFailure(runID string) (Failure, error) {
	var failure Failure
	if strings.TrimSpace(runID) == "" {
		return Failure{}, errors.New("runID is required")
	}
	if err := readJSONStrict(s.failurePath(runID), &failure); err != nil {
		return Failure{}, err
	}
	if err := failure.Validate(); err != nil {
		return Failure{}, fmt.Errorf("invalid failure on disk: %w", err)
	}
	return failure, nil
}

// SaveTrace persists the canonical trace bytes of a run. The trace encodes
// itself; the store only guarantees atomicity and durability.
func (s *Store) SaveTrace(runID string, canonical []byte) error {
	if strings.TrimSpace(runID) == "" {
		return errors.New("runID is required")
	}
	if len(canonical) == 0 {
		return errors.New("trace bytes are required")
	}
	if err := ensureDirDurable(s.runDir(runID), 0o755); err != nil {
		return fmt.Errorf("ensure run dir: %w", err)
	}
	if err := writeFileAtomicDurable(s.tracePath(runID), canonical, 0o644); err != nil {
		return fmt.Errorf("write trace: %w", err)
	}
	return nil
}

func (s *Store) LoadTrace(runID string) ([]byte, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, errors.New("runID is required")
	}
	return os.ReadFile(s.tracePath(runID))
}

func jsonMarshalStable(v any) ([]byte, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func readJSONStrict(path string, dst any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	// Ensure no trailing junk.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON: trailing content")
	}
	return nil
}

func ensureDirDurable(dir string, perm os.FileMode) error {
	if err := os.MkdirAll(dir, perm); err != nil {
		return err
	}
	// Best-effort durability: sync the directory and its parent.
	if err := fsyncDir(dir); err != nil {
		return err
	}
	parent := filepath.Dir(dir)
	if parent != dir {
		if err := fsyncDir(parent); err != nil {
			return err
		}
	}
	return nil
}

func writeFileAtomicDurable(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, base+".tmp.*")
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

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return fsyncDir(dir)
}

func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		// Windows cannot flush directory handles; rename durability is
		// filesystem-dependent there.
		if runtime.GOOS == "windows" {
			return nil
		}
		return err
	}
	return nil
}
