package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

// NewTerminalState reports a mutation attempt on a resolved ticket.
func NewTerminalState(ticketID, status string) error {
	return NewDomainError("TERMINAL_STATE", "ticket is in a terminal state", http.StatusConflict, map[string]any{
		"ticket_id": ticketID,
		"status":    status,
	})
}

// NewInvalidState reports a mutation the current ticket state does not allow.
func NewInvalidState(ticketID, status string) error {
	return NewDomainError("INVALID_STATE", "ticket state does not allow this operation", http.StatusConflict, map[string]any{
		"ticket_id": ticketID,
		"status":    status,
	})
}

// NewDuplicateMessage reports an already ingested message fingerprint.
func NewDuplicateMessage(fingerprint string) error {
	return NewDomainError("DUPLICATE_MESSAGE", "message already ingested", http.StatusConflict, map[string]any{
		"fingerprint": fingerprint,
	})
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
