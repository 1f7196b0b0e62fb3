package message

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by the store when no message matches the lookup.
	ErrNotFound = errors.New("message not found")
	// ErrAlreadyProcessed signals a dispatch for a message that has moved on.
	// Callers treat it as success without mutation.
	ErrAlreadyProcessed = errors.New("message already processed")
	// ErrConflict is returned when a conditional transition finds the row in
	// a different status than expected.
	ErrConflict = errors.New("message status changed concurrently")
)

// Validation error codes.
const (
	CodeInvalidIdempotencyKey = "invalid_idempotency_key"
	CodeInvalidSender         = "invalid_sender"
	CodeForbiddenContent      = "forbidden_content"
	CodeInvalidPayload        = "invalid_payload"
	CodeInvalidStatus         = "invalid_status"
)

// User-facing messages for validation failures.
const (
	MsgInvalidIdempotencyKey = "Missing or invalid Idempotency-Key header."
	MsgInvalidSender         = "Invalid sender ID."
	MsgForbiddenContent      = "Cannot send messages with 'STOP' keyword."
	MsgMissingFields         = "Missing required fields."
	MsgInvalidStatus         = "Invalid status value."
)

// ValidationError reports bad caller input. It never has side effects.
type ValidationError struct {
	Code    string
	Message string
}

func NewValidationError(code, msg string) *ValidationError {
	return &ValidationError{Code: code, Message: msg}
}

func (e *ValidationError) Error() string { return e.Message }

// NotFoundError reports an unknown message id or provider reference.
type NotFoundError struct {
	Key   string
	Value string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("message with %s %q not found", e.Key, e.Value)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// SignatureError reports a missing or forged delivery receipt signature.
type SignatureError struct {
	Reason string
}

func (e *SignatureError) Error() string { return "invalid signature: " + e.Reason }

// TransientError wraps a failure worth retrying (network, timeout, 5xx).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// RetryExhaustedError is recorded when a dispatch ran out of attempts.
type RetryExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// TransitionError reports an edge that is not part of the state graph.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s", e.From, e.To)
}

// Is lets callers match illegal transitions as conflicts.
func (e *TransitionError) Is(target error) bool { return target == ErrConflict }

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
