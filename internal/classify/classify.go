// Package classify decides, once per pipeline run, whether the run is a
// daily/full build or a standard CI build.
//
// The decision feeds test planning and package planning, and is persisted to
// the pipeline variable store so later stages in the same pipeline observe
// it without recomputation. Classification never fails a run: inputs that
// cannot be read degrade to the standard-build default.
package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Reason records which rule produced a classification.
type Reason string

const (
	ReasonScheduledTrigger Reason = "ScheduledTrigger"
	ReasonCommitTag        Reason = "CommitTag"
	ReasonManualOverride   Reason = "ManualOverride"
	ReasonNone             Reason = "None"
)

// Classification is the per-run build type decision. It is created once from
// environment inspection and immutable afterward.
type Classification struct {
	Daily  bool   `json:"daily"`
	Reason Reason `json:"reason"`
}

// FeatureTag is the commit message marker requesting a full build. Matching
// is case-insensitive substring containment.
const FeatureTag = "[feature]"

// DailyBuildVariable names the pipeline variable that carries a positive
// daily-build decision to later stages.
const DailyBuildVariable = "DAILY_BUILD"

// CommitMessageSource provides the message of the commit under build.
// Failures are advisory; see AmbiguityError.
type CommitMessageSource interface {
	CommitMessage(ctx context.Context, commit string) (string, error)
}

// CommitMessageFunc adapts a function to CommitMessageSource.
type CommitMessageFunc func(ctx context.Context, commit string) (string, error)

func (f CommitMessageFunc) CommitMessage(ctx context.Context, commit string) (string, error) {
	return f(ctx, commit)
}

// VariableSetter is the slice of the pipeline variable store the classifier
// writes through.
type VariableSetter interface {
	Set(name, value string) error
}

// AmbiguityError describes classification inputs that could not be read.
// It is never fatal: the classifier logs it and falls back to the standard
// build.
type AmbiguityError struct {
	Commit string
	Cause  error
}

func (e *AmbiguityError) Error() string {
	if e == nil {
		return ""
	}
	if e.Commit != "" {
		return fmt.Sprintf("classification ambiguous: commit %s message unavailable: %v", e.Commit, e.Cause)
	}
	return fmt.Sprintf("classification ambiguous: %v", e.Cause)
}

func (e *AmbiguityError) Unwrap() error { return e.Cause }

// Classifier applies the daily-build rules to a set of Signals.
type Classifier struct {
	Commits   CommitMessageSource
	Variables VariableSetter
	Log       zerolog.Logger
}

// Classify applies the rules in priority order, first match wins:
//
//  1. Scheduled run, or a decision persisted by an earlier stage.
//  2. Commit message carrying the feature tag, or the manual override. A
//     match here is additionally persisted to the variable store.
//  3. Otherwise a standard CI build.
//
// Classify never fails. An unreadable commit message counts as no match and
// a failed variable write does not change the decision.
func (c *Classifier) Classify(ctx context.Context, sig Signals) Classification {
	cls := c.decide(ctx, sig)
	c.Log.Info().
		Bool("daily", cls.Daily).
		Str("reason", string(cls.Reason)).
		Msg("build classified")
	return cls
}

func (c *Classifier) decide(ctx context.Context, sig Signals) Classification {
	if sig.ScheduledRun {
		return Classification{Daily: true, Reason: ReasonScheduledTrigger}
	}
	if c.commitRequestsFullBuild(ctx, sig.CommitID) {
		return c.persist(Classification{Daily: true, Reason: ReasonCommitTag})
	}
	if sig.ForceFull {
		return c.persist(Classification{Daily: true, Reason: ReasonManualOverride})
	}
	return Classification{Daily: false, Reason: ReasonNone}
}

func (c *Classifier) commitRequestsFullBuild(ctx context.Context, commit string) bool {
	if c.Commits == nil || strings.TrimSpace(commit) == "" {
		return false
	}
	msg, err := c.Commits.CommitMessage(ctx, commit)
	if err != nil {
		amb := &AmbiguityError{Commit: commit, Cause: err}
		c.Log.Warn().Err(amb).Str("commit", commit).Msg("commit message unavailable, treating as no match")
		return false
	}
	return strings.Contains(strings.ToLower(msg), FeatureTag)
}

// persist publishes a positive decision for later pipeline stages.
// Publishing is best-effort; the classification stands even when the store
// write fails.
func (c *Classifier) persist(cls Classification) Classification {
	if c.Variables == nil {
		return cls
	}
	if err := c.Variables.Set(DailyBuildVariable, "true"); err != nil {
		c.Log.Warn().Err(err).Msg("persisting daily-build decision failed")
	}
	return cls
}
