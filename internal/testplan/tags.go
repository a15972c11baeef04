package testplan

import "fmt"

// Tag names a test category partition. The vocabulary is fixed; planners
// never invent tags and engines never see tags outside it.
type Tag string

const (
	TagCI                    Tag = "CI"
	TagFeature               Tag = "Feature"
	TagScenario              Tag = "Scenario"
	TagSlow                  Tag = "Slow"
	TagRequireAdminOnWindows Tag = "RequireAdminOnWindows"
	TagRequireSudoOnUnix     Tag = "RequireSudoOnUnix"
)

var knownTags = map[Tag]struct{}{
	TagCI:                    {},
	TagFeature:               {},
	TagScenario:              {},
	TagSlow:                  {},
	TagRequireAdminOnWindows: {},
	TagRequireSudoOnUnix:     {},
}

// TagSet is an include/exclude filter over the tag vocabulary.
//
// Invariant: a tag never appears on both sides of one set.
type TagSet struct {
	Include []Tag `json:"include,omitempty"`
	Exclude []Tag `json:"exclude,omitempty"`
}

// Validate rejects unknown tags and include/exclude overlap.
func (s TagSet) Validate() error {
	for _, t := range s.Include {
		if _, ok := knownTags[t]; !ok {
			return fmt.Errorf("unknown tag %q", t)
		}
	}
	for _, t := range s.Exclude {
		if _, ok := knownTags[t]; !ok {
			return fmt.Errorf("unknown tag %q", t)
		}
		if containsTag(s.Include, t) {
			return fmt.Errorf("tag %q present in both include and exclude", t)
		}
	}
	return nil
}

// Clone returns a TagSet sharing no backing storage with the receiver.
func (s TagSet) Clone() TagSet {
	out := TagSet{}
	if len(s.Include) > 0 {
		out.Include = append([]Tag(nil), s.Include...)
	}
	if len(s.Exclude) > 0 {
		out.Exclude = append([]Tag(nil), s.Exclude...)
	}
	return out
}

func containsTag(tags []Tag, t Tag) bool {
	for _, have := range tags {
		if have == t {
			return true
		}
	}
	return false
}

// Strings converts a tag list for handoff to process arguments.
func Strings(tags []Tag) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = string(t)
	}
	return out
}
