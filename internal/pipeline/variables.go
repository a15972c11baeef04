// Package pipeline integrates with the hosting CI pipeline's cross-stage
// variable mechanism.
//
// A classification decision made in one stage must be observable by later
// stages without recomputation. The hosting pipeline provides that channel;
// this package writes to it. Reads happen on the other side of the stage
// boundary through process environment variables and are not modeled here.
package pipeline

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Store publishes a pipeline variable for consumption by later stages.
//
// Implementations must be safe for sequential use from a single goroutine;
// the engine writes at most twice per run (daily-build decision, completion
// flag).
type Store interface {
	Set(name, value string) error
}

var variableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// AzureDevOpsStore emits task.setvariable logging commands on the build log
// stream. The agent parses them line by line, so values must stay on one
// line.
type AzureDevOpsStore struct {
	Out io.Writer
}

func (s *AzureDevOpsStore) Set(name, value string) error {
	if s == nil || s.Out == nil {
		return fmt.Errorf("pipeline: nil output stream")
	}
	if !variableName.MatchString(name) {
		return fmt.Errorf("pipeline: invalid variable name %q", name)
	}
	if strings.ContainsAny(value, "\r\n") {
		return fmt.Errorf("pipeline: variable %q value must not contain newlines", name)
	}
	_, err := fmt.Fprintf(s.Out, "##vso[task.setvariable variable=%s]%s\n", name, value)
	return err
}

// MemoryStore keeps variables in process memory. It backs local runs and
// tests, where no agent is parsing the log stream.
type MemoryStore struct {
	mu   sync.Mutex
	vars map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{vars: make(map[string]string)}
}

func (s *MemoryStore) Set(name, value string) error {
	if s == nil {
		return fmt.Errorf("pipeline: nil store")
	}
	if !variableName.MatchString(name) {
		return fmt.Errorf("pipeline: invalid variable name %q", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vars == nil {
		s.vars = make(map[string]string)
	}
	s.vars[name] = value
	return nil
}

// Get returns the stored value and whether it was ever set.
func (s *MemoryStore) Get(name string) (string, bool) {
	if s == nil {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vars[name]
	return v, ok
}

// Names returns the set variable names in lexicographic order.
func (s *MemoryStore) Names() []string {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.vars))
	for k := range s.vars {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NopStore discards all writes.
type NopStore struct{}

func (NopStore) Set(string, string) error { return nil }

// agentVariable is set to "True" on every Azure DevOps agent.
const agentVariable = "TF_BUILD"

// ForEnvironment selects the store matching the hosting environment: the
// logging-command store when running under a pipeline agent, a no-op store
// otherwise. Local runs thus never emit agent directives into their output.
func ForEnvironment(getenv func(string) string, out io.Writer) Store {
	if getenv != nil && strings.EqualFold(strings.TrimSpace(getenv(agentVariable)), "true") {
		return &AzureDevOpsStore{Out: out}
	}
	return NopStore{}
}
