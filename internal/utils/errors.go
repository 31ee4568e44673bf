package utils

import "fmt"

// MalformedRecordError represents a raw trade record that failed validation.
// It is recoverable: the caller skips the record and continues the batch.
type MalformedRecordError struct {
	Index  int
	Field  string
	Reason string
}

// Error returns the error message string.
func (e *MalformedRecordError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("malformed record at index %d: field %q: %s", e.Index, e.Field, e.Reason)
	}
	return fmt.Sprintf("malformed record at index %d: %s", e.Index, e.Reason)
}

// NewMalformedRecordError creates a MalformedRecordError for a record field.
func NewMalformedRecordError(index int, field, reason string) error {
	return &MalformedRecordError{Index: index, Field: field, Reason: reason}
}

// SchemaMismatchError indicates the deployment feature schema cannot be
// satisfied by the extractor. This is a misconfiguration, so it aborts the
// whole batch before any classifier call.
type SchemaMismatchError struct {
	FeatureName string
	Reason      string
}

// Error returns the error message string.
func (e *SchemaMismatchError) Error() string {
	if e.FeatureName != "" {
		return fmt.Sprintf("feature schema mismatch: feature %q: %s", e.FeatureName, e.Reason)
	}
	return fmt.Sprintf("feature schema mismatch: %s", e.Reason)
}

// NewSchemaMismatchError creates a SchemaMismatchError for a feature name.
func NewSchemaMismatchError(featureName, reason string) error {
	return &SchemaMismatchError{FeatureName: featureName, Reason: reason}
}

// ClassifierUnavailableError indicates the external scorer could not be
// invoked. The engine degrades to rule-only verdicts and surfaces this as a
// batch-level warning.
type ClassifierUnavailableError struct {
	Reason string
	Cause  error
}

// Error returns the error message string.
func (e *ClassifierUnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("classifier unavailable: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("classifier unavailable: %s", e.Reason)
}

// Unwrap exposes the underlying transport error, if any.
func (e *ClassifierUnavailableError) Unwrap() error {
	return e.Cause
}

// NewClassifierUnavailableError creates a ClassifierUnavailableError
// wrapping an underlying cause.
func NewClassifierUnavailableError(reason string, cause error) error {
	return &ClassifierUnavailableError{Reason: reason, Cause: cause}
}
