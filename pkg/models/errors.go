package models

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
)

// ErrorKind classifies expected failure outcomes
type ErrorKind string

const (
	ErrorKindNotFound         ErrorKind = "not_found"
	ErrorKindConflict         ErrorKind = "conflict"
	ErrorKindValidationFailed ErrorKind = "validation_failed"
	ErrorKindInternal         ErrorKind = "internal"
)

func NotFound(format string, args ...any) error {
	return httperror.NewHTTPErrorf(http.StatusNotFound, format, args...)
}

func Conflict(format string, args ...any) error {
	return httperror.NewHTTPErrorf(http.StatusConflict, format, args...)
}

func ValidationFailed(format string, args ...any) error {
	return httperror.NewHTTPErrorf(http.StatusBadRequest, format, args...)
}

func Internal(format string, args ...any) error {
	return httperror.NewHTTPErrorf(http.StatusInternalServerError, format, args...)
}

// HTTPErrorer is implemented by domain errors that know their HTTP rendering
type HTTPErrorer interface {
	ToHTTPError() *httperror.HTTPError
}

// KindOf maps an error onto its ErrorKind. Unknown errors are internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var he HTTPErrorer
	if errors.As(err, &he) {
		return kindForStatus(httperror.GetStatusCode(he.ToHTTPError()))
	}

	if httperror.IsHTTPError(err) {
		return kindForStatus(httperror.GetStatusCode(err))
	}

	return ErrorKindInternal
}

func kindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusNotFound:
		return ErrorKindNotFound
	case http.StatusConflict:
		return ErrorKindConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrorKindValidationFailed
	default:
		return ErrorKindInternal
	}
}

// ParseError is a fatal failure to read an uploaded document. The whole batch is rejected.
type ParseError struct {
	BatchID string
	Reason  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse CSV: %s", e.Reason)
}

func (e *ParseError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusBadRequest, e.Error()).AddMetaValue("batch_id", e.BatchID)
}

// RollbackError reports a rollback that could not complete. The batch keeps its previous status.
type RollbackError struct {
	BatchID string
	Cause   error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("failed to roll back batch %s: %v", e.BatchID, e.Cause)
}

func (e *RollbackError) Unwrap() error {
	return e.Cause
}

func (e *RollbackError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusInternalServerError, e.Error()).AddMetaValue("batch_id", e.BatchID)
}
