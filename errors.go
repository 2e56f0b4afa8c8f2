// Package vdot holds the fitness-score formula, the race-time lookup table and
// the error taxonomy shared by the pipeline stages.
package vdot

import "fmt"

// SchemaError reports a required column missing from an input table.
type SchemaError struct {
	Column string
	Source string
}

func (e *SchemaError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("schema: required column %q missing from %s", e.Column, e.Source)
	}
	return fmt.Sprintf("schema: required column %q missing", e.Column)
}

// DataQualityError reports that no rows survived a filtering stage.
type DataQualityError struct {
	Stage  string
	Reason string
}

func (e *DataQualityError) Error() string {
	return fmt.Sprintf("data quality: %s: %s", e.Stage, e.Reason)
}

// ModelFitError reports a statistical model that could not be fitted. The
// forecaster recovers from it by dropping to a simpler model.
type ModelFitError struct {
	Model string
	Err   error
}

func (e *ModelFitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model fit %s: %v", e.Model, e.Err)
	}
	return fmt.Sprintf("model fit %s failed", e.Model)
}

func (e *ModelFitError) Unwrap() error {
	return e.Err
}

// ExternalStoreError reports a failed write to the external store. It is
// logged per record and never aborts the pipeline.
type ExternalStoreError struct {
	Op     string
	UserID string
	Err    error
}

func (e *ExternalStoreError) Error() string {
	return fmt.Sprintf("external store %s (user %s): %v", e.Op, e.UserID, e.Err)
}

func (e *ExternalStoreError) Unwrap() error {
	return e.Err
}
