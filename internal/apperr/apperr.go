// Package apperr defines the business error taxonomy shared by the engine, the
// repositories and the protocol bindings. Every failure carries a stable Code and
// a human readable message; the Category is derived from the Code.
package apperr

import (
	"errors"
	"fmt"
)

type Code string

const (
	MissingParameter Code = "MissingParameter"
	InvalidArgument  Code = "InvalidArgument"
	InvalidState     Code = "InvalidState"
	InvalidProvider  Code = "InvalidProvider"

	ProjectNotFound Code = "ProjectNotFound"
	TaskNotFound    Code = "TaskNotFound"

	InvalidStatusTransition  Code = "InvalidStatusTransition"
	TaskNotDone              Code = "TaskNotDone"
	ProjectAlreadyCompleted  Code = "ProjectAlreadyCompleted"
	TasksNotAllDone          Code = "TasksNotAllDone"
	TasksNotAllApproved      Code = "TasksNotAllApproved"
	CannotModifyApprovedTask Code = "CannotModifyApprovedTask"
	CompletedDetailsRequired Code = "CompletedDetailsRequired"

	FileReadError  Code = "FileReadError"
	FileParseError Code = "FileParseError"
	FileWriteError Code = "FileWriteError"

	ConfigurationError Code = "ConfigurationError"
	LLMGenerationError Code = "LLMGenerationError"

	Unknown Code = "Unknown"
)

type Category string

const (
	CategoryValidation       Category = "validation"
	CategoryNotFound         Category = "not_found"
	CategoryStateTransition  Category = "state_transition"
	CategoryFileSystem       Category = "file_system"
	CategoryExternalProvider Category = "external_provider"
	CategoryInternal         Category = "internal"
)

var categories = map[Code]Category{
	MissingParameter: CategoryValidation,
	InvalidArgument:  CategoryValidation,
	InvalidState:     CategoryValidation,
	InvalidProvider:  CategoryValidation,

	ProjectNotFound: CategoryNotFound,
	TaskNotFound:    CategoryNotFound,

	InvalidStatusTransition:  CategoryStateTransition,
	TaskNotDone:              CategoryStateTransition,
	ProjectAlreadyCompleted:  CategoryStateTransition,
	TasksNotAllDone:          CategoryStateTransition,
	TasksNotAllApproved:      CategoryStateTransition,
	CannotModifyApprovedTask: CategoryStateTransition,
	CompletedDetailsRequired: CategoryStateTransition,

	FileReadError:  CategoryFileSystem,
	FileParseError: CategoryFileSystem,
	FileWriteError: CategoryFileSystem,

	ConfigurationError: CategoryExternalProvider,
	LLMGenerationError: CategoryExternalProvider,

	Unknown: CategoryInternal,
}

// Category returns the category a code belongs to.
func (c Code) Category() Category {
	if cat, ok := categories[c]; ok {
		return cat
	}
	return CategoryInternal
}

// Error is a classified failure.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Category is shorthand for e.Code.Category().
func (e *Error) Category() Category { return e.Code.Category() }

// With attaches a detail key and returns the same error.
func (e *Error) With(key string, value any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under code, keeping it reachable through errors.Is/As.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// As extracts the classified error from err. Unclassified errors are reported as Unknown.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return &Error{Code: Unknown, Message: err.Error(), Err: err}
}

// CodeOf returns the code of err, or the empty code for nil.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	return As(err).Code
}

// Is reports whether err is classified under code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
