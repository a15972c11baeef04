// Package testplan computes the ordered set of test invocations for a
// classified build.
//
// Planning is pure decision logic: it launches nothing. Each produced
// InvocationSpec is constructed independently from the partition baseline,
// so no spec shares mutable state with another and execution order cannot
// leak parameters between invocations.
package testplan

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"buildmatrix/internal/classify"
	"buildmatrix/internal/platform"
)

// InvocationSpec describes one test host invocation.
type InvocationSpec struct {
	// Label names the invocation; result files and report records carry it.
	Label string `json:"label"`

	Tags TagSet `json:"tags"`

	// Feature is the experimental feature enabled for this run, empty for
	// baseline invocations.
	Feature string `json:"feature,omitempty"`

	// Files narrows the run to exactly these test files. Nil or empty means
	// the full discoverable corpus for this partition.
	Files []string `json:"files,omitempty"`

	// Privileged marks the elevated/sudo partition.
	Privileged bool `json:"privileged"`

	// AllowEmptyResult permits a run that executed zero tests. Set for
	// experimental-feature invocations, which may legitimately apply to no
	// test in a partition.
	AllowEmptyResult bool `json:"allow_empty_result"`
}

// Validate checks structural invariants of a produced spec.
func (s InvocationSpec) Validate() error {
	if strings.TrimSpace(s.Label) == "" {
		return fmt.Errorf("spec label is required")
	}
	if err := s.Tags.Validate(); err != nil {
		return fmt.Errorf("spec %q: %w", s.Label, err)
	}
	for i, f := range s.Files {
		if strings.TrimSpace(f) == "" {
			return fmt.Errorf("spec %q: files[%d] is empty", s.Label, i)
		}
	}
	return nil
}

// ArtifactLocator proves the compiled test host exists before any
// invocation is planned.
type ArtifactLocator interface {
	TestHost(ctx context.Context) (string, error)
}

// Request carries the classification and host facts planning branches on.
type Request struct {
	Classification classify.Classification
	Platform       platform.Platform

	// Privilege is the detected mode of the agent. Planning emits both
	// privilege partitions regardless; execution consults this to decide how
	// the privileged partition is launched.
	Privilege platform.PrivilegeMode

	Features []FeatureEntry
}

// Planner derives the ordered invocation list for a request.
type Planner struct {
	Artifacts ArtifactLocator
	Log       zerolog.Logger
}

// Plan returns the invocations to execute, in execution order: for each
// privilege partition (unprivileged first) the baseline invocation, then one
// invocation per applicable experimental feature in entry order.
//
// The compiled test host must exist before planning; a missing artifact
// fails the plan with zero invocations emitted.
func (p *Planner) Plan(ctx context.Context, req Request) ([]InvocationSpec, error) {
	if p == nil || p.Artifacts == nil {
		return nil, fmt.Errorf("testplan: artifact locator is required")
	}

	host, err := p.Artifacts.TestHost(ctx)
	if err != nil {
		return nil, fmt.Errorf("test host precondition: %w", err)
	}
	p.Log.Debug().
		Str("test_host", host).
		Str("platform", req.Platform.String()).
		Str("privilege", req.Privilege.String()).
		Bool("daily", req.Classification.Daily).
		Msg("planning test invocations")

	partitions := partitionsFor(req.Platform)
	specs := make([]InvocationSpec, 0, len(partitions)*(1+len(req.Features)))
	for _, part := range partitions {
		specs = append(specs, baselineSpec(req.Classification, part))
		for _, feat := range req.Features {
			if err := feat.Validate(); err != nil {
				return nil, fmt.Errorf("testplan: %w", err)
			}
			if !feat.AppliesTo(req.Platform) {
				continue
			}
			specs = append(specs, featureSpec(req.Classification, part, feat))
		}
	}

	for i := range specs {
		if err := specs[i].Validate(); err != nil {
			return nil, fmt.Errorf("testplan: produced invalid spec: %w", err)
		}
	}
	return specs, nil
}

// partition is one side of the privilege split.
type partition struct {
	label      string
	privTag    Tag
	privileged bool
}

func partitionsFor(p platform.Platform) [2]partition {
	if p == platform.Windows {
		return [2]partition{
			{label: "unelevated", privTag: TagRequireAdminOnWindows},
			{label: "elevated", privTag: TagRequireAdminOnWindows, privileged: true},
		}
	}
	return [2]partition{
		{label: "nosudo", privTag: TagRequireSudoOnUnix},
		{label: "sudo", privTag: TagRequireSudoOnUnix, privileged: true},
	}
}

// baselineTagSet is the daily/standard axis alone: daily runs the full
// corpus, standard runs CI only and excludes the expensive categories.
func baselineTagSet(daily bool) TagSet {
	if daily {
		return TagSet{Include: []Tag{TagCI, TagFeature, TagScenario}}
	}
	return TagSet{
		Include: []Tag{TagCI},
		Exclude: []Tag{TagSlow, TagFeature, TagScenario},
	}
}

// partitionTagSet combines the daily/standard axis with the privilege axis.
// The unprivileged partition additionally excludes the privilege tag; the
// privileged partition includes only the privilege tag and keeps the
// baseline excludes.
func partitionTagSet(daily bool, part partition) TagSet {
	base := baselineTagSet(daily)
	if part.privileged {
		return TagSet{Include: []Tag{part.privTag}, Exclude: base.Exclude}
	}
	return TagSet{Include: base.Include, Exclude: append(base.Exclude, part.privTag)}
}

func baselineSpec(cls classify.Classification, part partition) InvocationSpec {
	return InvocationSpec{
		Label:      part.label,
		Tags:       partitionTagSet(cls.Daily, part),
		Privileged: part.privileged,
	}
}

// featureSpec builds the experimental invocation for one feature on one
// partition. The spec is assembled fresh from the partition baseline rather
// than patched from a shared record.
func featureSpec(cls classify.Classification, part partition, feat FeatureEntry) InvocationSpec {
	spec := InvocationSpec{
		Label:            part.label + "-experimental-" + feat.Name,
		Tags:             partitionTagSet(cls.Daily, part),
		Feature:          feat.Name,
		Privileged:       part.privileged,
		AllowEmptyResult: true,
	}
	// A non-empty list narrows the scope; an empty list keeps the full
	// corpus for the partition.
	if len(feat.Files) > 0 {
		spec.Files = append([]string(nil), feat.Files...)
	}
	return spec
}
