package classify

import "strings"

// Signals are the explicit environment inputs to classification. They are
// captured once at process start; the classifier itself never reads ambient
// state.
type Signals struct {
	// ScheduledRun is true when the pipeline run was started by a schedule,
	// or when an earlier stage already persisted a daily-build decision.
	ScheduledRun bool

	// ForceFull is the manual override requesting a full build.
	ForceFull bool

	// CommitID identifies the commit under build. May be empty outside a
	// pipeline, in which case the commit-tag rule cannot match.
	CommitID string
}

// Pipeline variables read by FromEnvironment. BUILD_REASON and
// BUILD_SOURCEVERSION are set by the hosting pipeline; FORCE_FULL_BUILD is
// operator-provided.
const (
	buildReasonVariable = "BUILD_REASON"
	commitVariable      = "BUILD_SOURCEVERSION"
	forceFullVariable   = "FORCE_FULL_BUILD"
)

// scheduledReason is the BUILD_REASON value of schedule-triggered runs.
const scheduledReason = "Schedule"

// FromEnvironment captures Signals from pipeline-provided variables.
//
// A DAILY_BUILD=true persisted by a classification in an earlier stage reads
// back as a scheduled-run signal: later stages honor the stored decision
// without re-deriving its original reason.
func FromEnvironment(getenv func(string) string) Signals {
	return Signals{
		ScheduledRun: strings.EqualFold(strings.TrimSpace(getenv(buildReasonVariable)), scheduledReason) ||
			isTrue(getenv(DailyBuildVariable)),
		ForceFull: isTrue(getenv(forceFullVariable)),
		CommitID:  strings.TrimSpace(getenv(commitVariable)),
	}
}

func isTrue(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "true")
}
