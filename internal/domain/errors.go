package domain

import (
	"context"
	"errors"
	"fmt"
)

// Error types for consistent error handling across the API.

// ErrNotFound indicates a resource was not found.
// A card owned by another user is reported as not found too, so callers cannot probe for card existence.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// CardNotFound builds the not-found error for a card reference.
func CardNotFound(ref string) error {
	return &ErrNotFound{Resource: "card", ID: ref}
}

// UserNotFound builds the not-found error for a user reference.
func UserNotFound(ref string) error {
	return &ErrNotFound{Resource: "user", ID: ref}
}

// FieldError describes one failed validation rule.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag,omitempty"`
	Message string `json:"message"`
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
	Details []FieldError
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrInvalidTransfer indicates a structurally invalid transfer, e.g. both sides are the same card.
type ErrInvalidTransfer struct {
	Reason string
}

func (e *ErrInvalidTransfer) Error() string {
	return fmt.Sprintf("invalid transfer: %s", e.Reason)
}

// ErrCardNotActive indicates a card is not in a state that allows the operation.
type ErrCardNotActive struct {
	CardNumber string
	Status     CardStatus
}

func (e *ErrCardNotActive) Error() string {
	return fmt.Sprintf("card is not active: status %s", e.Status)
}

// ErrNegativeBalance indicates an operation would leave a card balance below zero.
type ErrNegativeBalance struct {
	CardNumber string
}

func (e *ErrNegativeBalance) Error() string {
	return "insufficient funds: balance cannot become negative"
}

// ErrConflict indicates a resource already exists or is still referenced.
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrUnauthorized indicates invalid credentials or token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrForbidden indicates the caller's role lacks the capability.
type ErrForbidden struct {
	Action string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Action)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ============================================================
// Error kinds
// ============================================================

// ErrorKind is the closed classification the HTTP boundary maps to status codes.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindNotFound
	KindConflict
	KindInvalidInput
	KindNegativeBalance
	KindUnauthorized
	KindForbidden
	KindUnavailable
	KindTimeout
	KindCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidInput:
		return "invalid_input"
	case KindNegativeBalance:
		return "negative_balance"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindUnavailable:
		return "unavailable"
	case KindTimeout:
		return "timeout"
	case KindCanceled:
		return "canceled"
	case KindInternal:
		return "internal"
	}
	return "internal"
}

// KindOf classifies err. Anything that is not a domain error is KindInternal.
func KindOf(err error) ErrorKind {
	var (
		notFound        *ErrNotFound
		validation      *ErrValidation
		invalidTransfer *ErrInvalidTransfer
		notActive       *ErrCardNotActive
		negative        *ErrNegativeBalance
		conflict        *ErrConflict
		unauthorized    *ErrUnauthorized
		forbidden       *ErrForbidden
		circuitOpen     *ErrCircuitOpen
		timeout         *ErrTimeout
	)

	switch {
	case err == nil:
		return KindInternal
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &validation), errors.As(err, &invalidTransfer):
		return KindInvalidInput
	case errors.As(err, &notActive), errors.As(err, &conflict):
		return KindConflict
	case errors.As(err, &negative):
		return KindNegativeBalance
	case errors.As(err, &unauthorized):
		return KindUnauthorized
	case errors.As(err, &forbidden):
		return KindForbidden
	case errors.As(err, &circuitOpen):
		return KindUnavailable
	case errors.As(err, &timeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindInternal
	}
}
