package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes shared by services and the HTTP layer.
const (
	CodeValidation           = "VALIDATION_FAILED"
	CodeNotFound             = "NOT_FOUND"
	CodeInvalidTransition    = "INVALID_TRANSITION"
	CodeConflict             = "CONFLICT"
	CodeLinkage              = "LINKAGE_FAILED"
	CodeNotificationDelivery = "NOTIFICATION_DELIVERY_FAILED"
	CodePersistence          = "PERSISTENCE_ERROR"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeInternal             = "INTERNAL_ERROR"
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
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

// NewInvalidTransition reports a status change missing from the transition table.
func NewInvalidTransition(from, to string) error {
	return NewDomainError(CodeInvalidTransition,
		fmt.Sprintf("transition %s -> %s is not allowed", from, to),
		http.StatusConflict,
		map[string]any{"from": from, "to": to})
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

// NewPersistenceError reports an unavailable store or an unresolved write conflict.
func NewPersistenceError(message string, err error) error {
	return &DomainError{
		Code:       CodePersistence,
		Message:    message,
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// NewLinkageError is only logged during ticket creation; the link endpoint
// returns it as a conflict.
func NewLinkageError(originalID, linkedID string, err error) error {
	return &DomainError{
		Code:       CodeLinkage,
		Message:    "ticket linkage failed",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"original_ticket_id": originalID, "linked_ticket_id": linkedID},
		Err:        err,
	}
}

// NewDeliveryError wraps a channel adapter failure.
func NewDeliveryError(channel, recipientID string, err error) error {
	return &DomainError{
		Code:       CodeNotificationDelivery,
		Message:    fmt.Sprintf("%s delivery failed", channel),
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"channel": channel, "recipient_id": recipientID},
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err carries a DomainError with the given code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
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
	if errors.Is(err, pgx.ErrNoRows) {
		return NewNotFound("resource", nil).(*DomainError)
	}
	return NewInternalError(err).(*DomainError)
}

func MapError(err error) error {
	return ToDomainError(err)
}
