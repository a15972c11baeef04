package testplan

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"buildmatrix/internal/artifact"
	"buildmatrix/internal/classify"
	"buildmatrix/internal/platform"
)

type staticLocator struct {
	path string
	err  error
}

func (l staticLocator) TestHost(context.Context) (string, error) { return l.path, l.err }

func newPlanner() *Planner {
	return &Planner{Artifacts: staticLocator{path: "/out/testhost"}}
}

func standard() classify.Classification {
	return classify.Classification{Daily: false, Reason: classify.ReasonNone}
}

func daily() classify.Classification {
	return classify.Classification{Daily: true, Reason: classify.ReasonScheduledTrigger}
}

func TestPlan_WindowsStandard_ExactlyTwoBaselinePartitions(t *testing.T) {
	specs, err := newPlanner().Plan(context.Background(), Request{
		Classification: standard(),
		Platform:       platform.Windows,
		Privilege:      platform.Unelevated,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []InvocationSpec{
		{
			Label: "unelevated",
			Tags: TagSet{
				Include: []Tag{TagCI},
				Exclude: []Tag{TagSlow, TagFeature, TagScenario, TagRequireAdminOnWindows},
			},
		},
		{
			Label: "elevated",
			Tags: TagSet{
				Include: []Tag{TagRequireAdminOnWindows},
				Exclude: []Tag{TagSlow, TagFeature, TagScenario},
			},
			Privileged: true,
		},
	}
	if diff := cmp.Diff(want, specs); diff != "" {
		t.Fatalf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestPlan_LinuxDaily_FullCorpusAndSudoSplit(t *testing.T) {
	specs, err := newPlanner().Plan(context.Background(), Request{
		Classification: daily(),
		Platform:       platform.Linux,
		Privilege:      platform.Elevated,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []InvocationSpec{
		{
			Label: "nosudo",
			Tags: TagSet{
				Include: []Tag{TagCI, TagFeature, TagScenario},
				Exclude: []Tag{TagRequireSudoOnUnix},
			},
		},
		{
			Label:      "sudo",
			Tags:       TagSet{Include: []Tag{TagRequireSudoOnUnix}},
			Privileged: true,
		},
	}
	if diff := cmp.Diff(want, specs); diff != "" {
		t.Fatalf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestPlan_EmptyFeatureFileListScopesToFullCorpus(t *testing.T) {
	specs, err := newPlanner().Plan(context.Background(), Request{
		Classification: standard(),
		Platform:       platform.Linux,
		Privilege:      platform.Unelevated,
		Features: []FeatureEntry{
			{Name: "PSNativeCommandErrorActionPreference", Files: []string{}},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found := 0
	for _, s := range specs {
		if s.Feature != "PSNativeCommandErrorActionPreference" {
			continue
		}
		found++
		if len(s.Files) != 0 {
			t.Fatalf("spec %q: empty feature file list must mean no path restriction, got %v", s.Label, s.Files)
		}
		if !s.AllowEmptyResult {
			t.Fatalf("spec %q: feature runs must allow empty results", s.Label)
		}
	}
	if found != 2 {
		t.Fatalf("expected one feature spec per privilege partition, got %d", found)
	}
}

func TestPlan_FeatureFileListScopesExactly(t *testing.T) {
	specs, err := newPlanner().Plan(context.Background(), Request{
		Classification: standard(),
		Platform:       platform.Linux,
		Privilege:      platform.Unelevated,
		Features: []FeatureEntry{
			{Name: "PSAnsiRendering", Files: []string{"a.tests.ps1"}},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, s := range specs {
		if s.Feature == "" {
			continue
		}
		if diff := cmp.Diff([]string{"a.tests.ps1"}, s.Files); diff != "" {
			t.Fatalf("spec %q file scope mismatch (-want +got):\n%s", s.Label, diff)
		}
	}
}

func TestPlan_OrderBaselineThenFeaturesPerPartition(t *testing.T) {
	specs, err := newPlanner().Plan(context.Background(), Request{
		Classification: standard(),
		Platform:       platform.Linux,
		Privilege:      platform.Unelevated,
		Features: []FeatureEntry{
			{Name: "FeatA"},
			{Name: "FeatB"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var labels []string
	for _, s := range specs {
		labels = append(labels, s.Label)
	}
	want := []string{
		"nosudo",
		"nosudo-experimental-FeatA",
		"nosudo-experimental-FeatB",
		"sudo",
		"sudo-experimental-FeatA",
		"sudo-experimental-FeatB",
	}
	if diff := cmp.Diff(want, labels); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestPlan_FeatureSpecsCloneThePartitionBaseline(t *testing.T) {
	specs, err := newPlanner().Plan(context.Background(), Request{
		Classification: daily(),
		Platform:       platform.Windows,
		Privilege:      platform.Elevated,
		Features:       []FeatureEntry{{Name: "FeatA"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byLabel := make(map[string]InvocationSpec, len(specs))
	for _, s := range specs {
		byLabel[s.Label] = s
	}
	base := byLabel["elevated"]
	feat := byLabel["elevated-experimental-FeatA"]
	if diff := cmp.Diff(base.Tags, feat.Tags); diff != "" {
		t.Fatalf("feature tags must mirror the partition baseline (-base +feature):\n%s", diff)
	}
	if feat.Privileged != base.Privileged {
		t.Fatalf("feature spec lost the privilege partition")
	}
}

func TestPlan_PlatformScopedFeature(t *testing.T) {
	req := Request{
		Classification: standard(),
		Privilege:      platform.Unelevated,
		Features: []FeatureEntry{
			{Name: "WinOnly", Platforms: []string{"windows"}},
		},
	}

	req.Platform = platform.Linux
	specs, err := newPlanner().Plan(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, s := range specs {
		if s.Feature != "" {
			t.Fatalf("windows-only feature planned on linux: %q", s.Label)
		}
	}

	req.Platform = platform.Windows
	specs, err = newPlanner().Plan(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	featured := 0
	for _, s := range specs {
		if s.Feature == "WinOnly" {
			featured++
		}
	}
	if featured != 2 {
		t.Fatalf("expected feature on both windows partitions, got %d", featured)
	}
}

func TestPlan_MissingArtifactFailsWithZeroSpecs(t *testing.T) {
	missing := &artifact.MissingError{Dir: "/out", Candidates: []string{"/out/testhost"}}
	p := &Planner{Artifacts: staticLocator{err: missing}}

	specs, err := p.Plan(context.Background(), Request{
		Classification: standard(),
		Platform:       platform.Linux,
		Privilege:      platform.Unelevated,
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	var me *artifact.MissingError
	if !errors.As(err, &me) {
		t.Fatalf("expected MissingError to surface, got %v", err)
	}
	if len(specs) != 0 {
		t.Fatalf("no specs may be emitted on a failed precondition, got %d", len(specs))
	}
}

func TestPlan_AllCombinationsSatisfyTagInvariants(t *testing.T) {
	features := []FeatureEntry{
		{Name: "FeatA", Files: []string{"a.tests.ps1"}},
		{Name: "FeatB"},
	}
	for _, cls := range []classify.Classification{standard(), daily()} {
		for _, plat := range []platform.Platform{platform.Windows, platform.Linux, platform.MacOS} {
			specs, err := newPlanner().Plan(context.Background(), Request{
				Classification: cls,
				Platform:       plat,
				Privilege:      platform.Unelevated,
				Features:       features,
			})
			if err != nil {
				t.Fatalf("%s daily=%v: unexpected error: %v", plat, cls.Daily, err)
			}
			for _, s := range specs {
				if err := s.Validate(); err != nil {
					t.Fatalf("%s daily=%v: invalid spec: %v", plat, cls.Daily, err)
				}
				if s.Feature == "" && s.AllowEmptyResult {
					t.Fatalf("%s daily=%v: baseline spec %q must not allow empty results", plat, cls.Daily, s.Label)
				}
				if s.Feature != "" && !s.AllowEmptyResult {
					t.Fatalf("%s daily=%v: feature spec %q must allow empty results", plat, cls.Daily, s.Label)
				}
			}
		}
	}
}

func TestPlan_IsDeterministicAndSharesNoState(t *testing.T) {
	req := Request{
		Classification: daily(),
		Platform:       platform.Linux,
		Privilege:      platform.Unelevated,
		Features:       []FeatureEntry{{Name: "FeatA", Files: []string{"a.tests.ps1"}}},
	}

	first, err := newPlanner().Plan(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := newPlanner().Plan(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("plans differ across runs (-first +second):\n%s", diff)
	}

	// Mutating one plan's innards must not affect a fresh plan.
	first[0].Tags.Include[0] = TagSlow
	if len(first) > 1 && first[1].Files != nil {
		first[1].Files[0] = "mutated"
	}
	third, err := newPlanner().Plan(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(second, third); diff != "" {
		t.Fatalf("plan shares state with a previous plan (-second +third):\n%s", diff)
	}
}
