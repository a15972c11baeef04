package report

import (
	"errors"

	"buildmatrix/internal/aggregate"
	"buildmatrix/internal/artifact"
	"buildmatrix/internal/classify"
	"buildmatrix/internal/invoke"
)

// Error codes persisted in failure records. Downstream tooling matches on
// these strings; do not rename.
const (
	CodeClassificationAmbiguous = "ClassificationAmbiguous"
	CodeMissingArtifact         = "MissingArtifact"
	CodeTestPartitionFailed     = "TestPartitionFailed"
	CodeAggregationFailed       = "AggregationFailed"
	CodeUnknownError            = "UnknownError"
)

// failureFromError classifies an error into the failure taxonomy.
//
// Artifact failures are fatal: they abort the run before any invocation is
// dispatched. Partition and aggregation failures are not: the run carried
// on and finished with a failing verdict. Anything unrecognized is treated
// as a fatal system failure.
func failureFromError(err error) (Failure, error) {
	if err == nil {
		return Failure{}, errors.New("nil error")
	}

	var ambiguous *classify.AmbiguityError
	if errors.As(err, &ambiguous) && ambiguous != nil {
		return Failure{
			FailureClass: FailureClassClassification,
			ErrorCode:    CodeClassificationAmbiguous,
			ErrorMessage: ambiguous.Error(),
			Fatal:        false,
		}, nil
	}

	var missing *artifact.MissingError
	if errors.As(err, &missing) && missing != nil {
		return Failure{
			FailureClass: FailureClassArtifact,
			ErrorCode:    CodeMissingArtifact,
			ErrorMessage: missing.Error(),
			Fatal:        true,
		}, nil
	}

	// Aggregation is checked before partition: an aggregation error may
	// carry partition errors among its violations, and the run-level record
	// names the outer failure.
	var aggregation *aggregate.Error
	if errors.As(err, &aggregation) && aggregation != nil {
		return Failure{
			FailureClass: FailureClassAggregation,
			ErrorCode:    CodeAggregationFailed,
			ErrorMessage: aggregation.Error(),
			Fatal:        false,
		}, nil
	}

	var partition *invoke.PartitionError
	if errors.As(err, &partition) && partition != nil {
		var labelPtr *string
		if partition.Label != "" {
			l := partition.Label
			labelPtr = &l
		}
		return Failure{
			FailureClass: FailureClassPartition,
			Label:        labelPtr,
			ErrorCode:    CodeTestPartitionFailed,
			ErrorMessage: partition.Error(),
			Fatal:        false,
		}, nil
	}

	return Failure{
		FailureClass: FailureClassSystem,
		ErrorCode:    CodeUnknownError,
		ErrorMessage: err.Error(),
		Fatal:        true,
	}, nil
}
