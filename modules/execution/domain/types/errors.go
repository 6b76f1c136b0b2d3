package types

import "errors"

// ErrorKind classifies task failures for retry decisions.
type ErrorKind string

const (
	// ErrorTransient marks failures worth retrying (network, upstream 5xx).
	ErrorTransient ErrorKind = "transient"
	// ErrorValidation marks bad input; retrying cannot help.
	ErrorValidation ErrorKind = "validation"
	// ErrorFatal marks everything else; the attempt loop stops immediately.
	ErrorFatal ErrorKind = "fatal"
)

// ErrTaskDisabled is returned when a tenant has not enabled the task type.
// No execution record is written in that case.
var ErrTaskDisabled = errors.New("task type not enabled for tenant")

// ErrUnknownTaskType is returned for task types nothing has registered.
var ErrUnknownTaskType = errors.New("unknown task type")

// TaskError wraps a task failure with its retry classification.
type TaskError struct {
	Kind ErrorKind
	Err  error
}

func (e *TaskError) Error() string { return string(e.Kind) + ": " + e.Err.Error() }
func (e *TaskError) Unwrap() error { return e.Err }

func NewTransient(err error) error  { return &TaskError{Kind: ErrorTransient, Err: err} }
func NewValidation(err error) error { return &TaskError{Kind: ErrorValidation, Err: err} }
func NewFatal(err error) error      { return &TaskError{Kind: ErrorFatal, Err: err} }

// ClassifyError returns the error's kind. Unclassified errors are fatal.
func ClassifyError(err error) ErrorKind {
	var te *TaskError
	if ok := errors.As(err, &te); ok && te != nil {
		return te.Kind
	}
	return ErrorFatal
}
