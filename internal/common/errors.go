// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Document precondition errors. These are raised before any parsing attempt.
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrContentUnavailable  = errors.New("document content unavailable")
	ErrEmptyDocument       = errors.New("document is empty")
	ErrPasswordRequired    = errors.New("document is password protected")
	ErrInvalidPassword     = errors.New("invalid document password")

	// Orchestration errors.
	ErrNoStrategies  = errors.New("no applicable parsing strategies")
	ErrUnknownMethod = errors.New("unknown parsing method")

	// Database errors.
	ErrNotFound         = errors.New("not found")
	ErrDuplicateEntry   = errors.New("duplicate entry")
	ErrBuiltinImmutable = errors.New("built-in patterns cannot be modified")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// PreconditionError marks a failure detected before any strategy ran. No
// parsing attempt is recorded for it.
type PreconditionError struct {
	Err        error
	DocumentID string
}

func (e *PreconditionError) Error() string {
	if e.DocumentID == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("document %s: %v", e.DocumentID, e.Err)
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}

// NewPreconditionError wraps err as a precondition failure for a document.
func NewPreconditionError(documentID string, err error) error {
	return &PreconditionError{DocumentID: documentID, Err: err}
}

// IsPrecondition reports whether err was raised before any attempt.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

// UserMessageFor returns a short explanation for well-known failures.
func UserMessageFor(err error) string {
	switch {
	case errors.Is(err, ErrPasswordRequired):
		return "This statement is password protected. Re-run with --password."
	case errors.Is(err, ErrInvalidPassword):
		return "The supplied password could not decrypt the statement."
	case errors.Is(err, ErrUnsupportedFileType):
		return "This file type is not supported."
	case errors.Is(err, ErrEmptyDocument):
		return "The document has no content."
	case errors.Is(err, ErrContentUnavailable):
		return "The document content could not be read."
	case errors.Is(err, ErrUnknownMethod):
		return "Unknown parsing method."
	}
	return ""
}
