package errors

import (
	"errors"
	"fmt"
)

// Common error types used across the streamcore library

var (
	// ErrClosed indicates that an operation was attempted on a closed resource
	ErrClosed = errors.New("resource is closed")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrCapacityExceeded indicates that a capacity limit was exceeded
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrInvalidConfiguration indicates invalid configuration parameters
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// Stream protocol errors. They are wrapped in a *StreamError of KindProtocol
// when returned from a stream operation.
var (
	// ErrWriteAfterEnd is returned by Write after End was called.
	ErrWriteAfterEnd = errors.New("write after end")

	// ErrPushAfterEnd is reported when a producer pushes after signalling end of data.
	ErrPushAfterEnd = errors.New("push after end of data")

	// ErrDestroyed is returned by operations on a destroyed stream.
	ErrDestroyed = errors.New("stream destroyed")

	// ErrMultipleCallback is reported when a completion callback is invoked more than once.
	ErrMultipleCallback = errors.New("completion callback called multiple times")

	// ErrPrematureClose is returned when a stream closes before it ended or finished.
	ErrPrematureClose = errors.New("premature close")

	// ErrStageMismatch is returned when two pipeline stages carry different chunk types.
	ErrStageMismatch = errors.New("pipeline stage type mismatch")
)

// Kind classifies a stream failure.
type Kind int

const (
	// KindProduction means the producer failed to generate a chunk.
	KindProduction Kind = iota + 1

	// KindConsumption means the sink failed to accept a chunk.
	KindConsumption

	// KindTransform means a transform function failed.
	KindTransform

	// KindProtocol means the stream was used in a way its contract forbids.
	KindProtocol
)

// String returns the metric-friendly name of the kind.
func (k Kind) String() string {
	switch k {
	case KindProduction:
		return "production"
	case KindConsumption:
		return "consumption"
	case KindTransform:
		return "transform"
	case KindProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// StreamError is the terminal error a stream reports through its error event
// or returns from an operation.
type StreamError struct {
	Kind   Kind
	Stream string
	Op     string
	Err    error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	name := e.Stream
	if name == "" {
		name = "stream"
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s error in %s: %v", name, e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", name, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// NewProductionError wraps a producer failure.
func NewProductionError(stream string, err error) *StreamError {
	return &StreamError{Kind: KindProduction, Stream: stream, Op: "produce", Err: err}
}

// NewConsumptionError wraps a sink failure.
func NewConsumptionError(stream string, err error) *StreamError {
	return &StreamError{Kind: KindConsumption, Stream: stream, Op: "consume", Err: err}
}

// NewTransformError wraps a transform function failure.
func NewTransformError(stream string, err error) *StreamError {
	return &StreamError{Kind: KindTransform, Stream: stream, Op: "transform", Err: err}
}

// NewProtocolViolation reports misuse of a stream during op.
func NewProtocolViolation(stream, op string, err error) *StreamError {
	return &StreamError{Kind: KindProtocol, Stream: stream, Op: op, Err: err}
}

// KindOf returns the kind of the first *StreamError in err's chain.
func KindOf(err error) (Kind, bool) {
	var se *StreamError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}

// IsProtocolViolation reports whether err is a protocol violation.
func IsProtocolViolation(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindProtocol
}

// ValidationError describes an invalid configuration value.
type ValidationError struct {
	Module string
	Field  string
	Value  interface{}
	Reason string
	Hint   string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: invalid %s=%v (%s)", e.Module, e.Field, e.Value, e.Reason)
	if e.Hint != "" {
		msg += " - " + e.Hint
	}
	return msg
}

// Unwrap makes every ValidationError match ErrInvalidConfiguration.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfiguration
}

// NewValidationError creates a ValidationError without a hint.
func NewValidationError(module, field string, value interface{}, reason string) *ValidationError {
	return &ValidationError{
		Module: module,
		Field:  field,
		Value:  value,
		Reason: reason,
	}
}

// WithHint sets a remediation hint and returns the same error for chaining.
func (e *ValidationError) WithHint(hint string) *ValidationError {
	e.Hint = hint
	return e
}

// OperationError describes a failed operation of a module.
type OperationError struct {
	Module    string
	Operation string
	Cause     error
	Context   string
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	msg := fmt.Sprintf("%s.%s failed: %v", e.Module, e.Operation, e.Cause)
	if e.Context != "" {
		msg += " (" + e.Context + ")"
	}
	return msg
}

// Unwrap returns the cause.
func (e *OperationError) Unwrap() error {
	return e.Cause
}

// NewOperationError creates an OperationError without context.
func NewOperationError(module, operation string, cause error) *OperationError {
	return &OperationError{
		Module:    module,
		Operation: operation,
		Cause:     cause,
	}
}

// WithContext sets additional context and returns the same error for chaining.
func (e *OperationError) WithContext(context string) *OperationError {
	e.Context = context
	return e
}

// IsRetryable returns true if the error indicates a condition that might
// be resolved by retrying the operation. Closed resources, invalid
// configuration and protocol violations never are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrClosed) || errors.Is(err, ErrDestroyed) {
		return false
	}
	return !IsValidationError(err) && !IsProtocolViolation(err)
}

// IsTemporary returns true if the error indicates a temporary condition
func IsTemporary(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrCapacityExceeded)
}

// IsValidationError reports whether err contains a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
