// Package apperr defines the error kinds an export job can produce.
//
// SourceDataError and AuthError are fatal for a job. TypeConversionError and
// ChoiceResolutionError are cell-level and only ever reported.
package apperr

import (
	"errors"
	"fmt"
)

// SourceDataError reports a missing or malformed form definition or submission list,
// or a submission that does not fit the schema.
type SourceDataError struct {
	Op  string
	Err error
}

func (e *SourceDataError) Error() string {
	if e.Op == "" {
		return "source data: " + e.Err.Error()
	}
	return fmt.Sprintf("source data: %s: %v", e.Op, e.Err)
}

func (e *SourceDataError) Unwrap() error { return e.Err }

// AuthError reports rejected credentials or tokens upstream.
type AuthError struct {
	Status int
	Err    error
}

func (e *AuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("authentication failed (HTTP %d): %v", e.Status, e.Err)
	}
	return "authentication failed: " + e.Err.Error()
}

func (e *AuthError) Unwrap() error { return e.Err }

// TypeConversionError reports a cell that could not be parsed to its declared type.
type TypeConversionError struct {
	Column string
	Type   string
	Value  string
	Err    error
}

func (e *TypeConversionError) Error() string {
	return fmt.Sprintf("convert %s=%q to %s: %v", e.Column, e.Value, e.Type, e.Err)
}

func (e *TypeConversionError) Unwrap() error { return e.Err }

// ChoiceResolutionError reports a selected code with no matching choice label.
type ChoiceResolutionError struct {
	Column string
	Code   string
}

func (e *ChoiceResolutionError) Error() string {
	return fmt.Sprintf("no label for choice %q in %s", e.Code, e.Column)
}

// SourceData wraps err as a SourceDataError.
func SourceData(op string, err error) error {
	return &SourceDataError{Op: op, Err: err}
}

// SourceDataf builds a SourceDataError from a format string.
func SourceDataf(op, format string, args ...any) error {
	return &SourceDataError{Op: op, Err: fmt.Errorf(format, args...)}
}

// Auth wraps err as an AuthError carrying the upstream HTTP status.
func Auth(status int, err error) error {
	return &AuthError{Status: status, Err: err}
}

// IsAuth reports whether err is or wraps an AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsSourceData reports whether err is or wraps a SourceDataError.
func IsSourceData(err error) bool {
	var se *SourceDataError
	return errors.As(err, &se)
}
