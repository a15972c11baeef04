// Package trace records the logical dispatch history of a test run.
//
// The trace is the audit witness for sequencing rules: invocations are
// dispatched strictly one after another, a failed precondition produces a
// trace with zero dispatch events, and every dispatch is paired with exactly
// one completion or failure event. It is observational only and must never
// affect execution behavior.
package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// InvocationTrace is the canonical record of one run's invocation history.
//
// Determinism constraints:
//   - No timestamps and no error strings; the report store carries those.
//   - Canonical ordering and serialization are byte-for-byte stable, so two
//     runs over the same plan with the same outcomes hash identically.
type InvocationTrace struct {
	RunID  string
	Events []Event
}

// EventKind discriminates trace events. The string values are part of the
// trace's canonical bytes; do not rename.
type EventKind string

const (
	// EventInvocationDispatched marks the hand-off of one planned
	// invocation to the engine. Its presence proves dispatch happened;
	// its absence after a fatal precondition proves nothing ran.
	EventInvocationDispatched EventKind = "InvocationDispatched"

	// EventInvocationCompleted marks an invocation that ran to completion
	// and produced a result summary, passing or not.
	EventInvocationCompleted EventKind = "InvocationCompleted"

	// EventInvocationFailed marks an invocation the engine could not carry
	// through to a result summary.
	EventInvocationFailed EventKind = "InvocationFailed"
)

// Event is a single logical step of the run.
type Event struct {
	// Seq is the dispatch-order position, assigned at record time.
	// Sequential execution makes this order semantic: baseline invocations
	// precede their feature invocations within a partition.
	Seq int

	Kind EventKind

	// Label is the invocation label the event refers to.
	Label string

	// Feature is the experimental feature of the invocation, if any.
	Feature string

	// Outcome is the terminal state for completion and failure events
	// (for example PASSED, FAILED, ERRORED). Empty on dispatch events.
	Outcome string
}

// Validate checks structural invariants and returns a descriptive error.
func (t *InvocationTrace) Validate() error {
	if t == nil {
		return errors.New("trace is nil")
	}
	if t.RunID == "" {
		return errors.New("runId is required")
	}
	for i := range t.Events {
		e := t.Events[i]
		switch e.Kind {
		case EventInvocationDispatched:
			if e.Outcome != "" {
				return fmt.Errorf("events[%d]: dispatch events carry no outcome", i)
			}
		case EventInvocationCompleted, EventInvocationFailed:
			if e.Outcome == "" {
				return fmt.Errorf("events[%d]: outcome is required for kind %q", i, e.Kind)
			}
		case "":
			return fmt.Errorf("events[%d].kind is required", i)
		default:
			return fmt.Errorf("events[%d]: unknown kind %q", i, e.Kind)
		}
		if e.Label == "" {
			return fmt.Errorf("events[%d].label is required", i)
		}
	}
	return nil
}

// Dispatches counts dispatch events. Zero after a failed precondition is
// the observable guarantee that no test process was started.
func (t InvocationTrace) Dispatches() int {
	n := 0
	for _, e := range t.Events {
		if e.Kind == EventInvocationDispatched {
			n++
		}
	}
	return n
}

// Canonicalize sorts the trace into its canonical form.
//
// The primary key is the recorded sequence, which execution assigns in
// dispatch order; the remaining keys make the order total even for
// hand-built traces with duplicate sequence numbers.
func (t *InvocationTrace) Canonicalize() {
	if t == nil {
		return
	}
	sort.SliceStable(t.Events, func(i, j int) bool {
		a := t.Events[i]
		b := t.Events[j]

		if a.Seq != b.Seq {
			return a.Seq < b.Seq
		}
		if kindOrder(a.Kind) != kindOrder(b.Kind) {
			return kindOrder(a.Kind) < kindOrder(b.Kind)
		}
		if a.Label != b.Label {
			return a.Label < b.Label
		}
		if a.Feature != b.Feature {
			return a.Feature < b.Feature
		}
		return a.Outcome < b.Outcome
	})
}

func kindOrder(k EventKind) int {
	switch k {
	case EventInvocationDispatched:
		return 10
	case EventInvocationCompleted:
		return 20
	case EventInvocationFailed:
		return 30
	default:
		return 1000
	}
}

// CanonicalJSON returns the canonical JSON encoding of the trace.
// It canonicalizes a copy to avoid mutating the caller's slice.
func (t InvocationTrace) CanonicalJSON() ([]byte, error) {
	copyTrace := InvocationTrace{RunID: t.RunID}
	copyTrace.Events = make([]Event, len(t.Events))
	copy(copyTrace.Events, t.Events)
	copyTrace.Canonicalize()
	if err := copyTrace.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(&copyTrace)
}

// Hash returns the deterministic trace hash (sha256 hex) of the canonical
// JSON bytes.
func (t InvocationTrace) Hash() (string, error) {
	b, err := t.CanonicalJSON()
	if err != nil {
		return "", err
	}
	return ComputeTraceHash(b), nil
}

// MarshalJSON fixes field ordering so the canonical bytes are stable.
func (t InvocationTrace) MarshalJSON() ([]byte, error) {
	if t.RunID == "" {
		return nil, errors.New("runId is required")
	}
	var buf bytes.Buffer
	buf.WriteByte('{')

	buf.WriteString("\"runId\":")
	rid, _ := json.Marshal(t.RunID)
	buf.Write(rid)
	buf.WriteByte(',')

	buf.WriteString("\"events\":[")
	for i := range t.Events {
		if i > 0 {
			buf.WriteByte(',')
		}
		eb, err := json.Marshal(t.Events[i])
		if err != nil {
			return nil, err
		}
		buf.Write(eb)
	}
	buf.WriteByte(']')

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON fixes field ordering and omits empty optional fields.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Kind == "" {
		return nil, errors.New("kind is required")
	}
	var buf bytes.Buffer
	buf.WriteByte('{')

	buf.WriteString("\"seq\":")
	sb, _ := json.Marshal(e.Seq)
	buf.Write(sb)

	buf.WriteByte(',')
	buf.WriteString("\"kind\":")
	kb, _ := json.Marshal(string(e.Kind))
	buf.Write(kb)

	if e.Label != "" {
		buf.WriteByte(',')
		buf.WriteString("\"label\":")
		lb, _ := json.Marshal(e.Label)
		buf.Write(lb)
	}

	if e.Feature != "" {
		buf.WriteByte(',')
		buf.WriteString("\"feature\":")
		fb, _ := json.Marshal(e.Feature)
		buf.Write(fb)
	}

	if e.Outcome != "" {
		buf.WriteByte(',')
		buf.WriteString("\"outcome\":")
		ob, _ := json.Marshal(e.Outcome)
		buf.Write(ob)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}
