package errors

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestStreamError(t *testing.T) {
	cause := errors.New("disk full")

	tests := []struct {
		name string
		err  *StreamError
		kind Kind
		want string
	}{
		{"production", NewProductionError("numbers", cause), KindProduction, "numbers: production error in produce: disk full"},
		{"consumption", NewConsumptionError("sink", cause), KindConsumption, "sink: consumption error in consume: disk full"},
		{"transform", NewTransformError("", cause), KindTransform, "stream: transform error in transform: disk full"},
		{"protocol", NewProtocolViolation("sink", "write", ErrWriteAfterEnd), KindProtocol, "sink: protocol error in write: write after end"},
		{"no op", &StreamError{Kind: KindConsumption, Err: cause}, KindConsumption, "stream: consumption error: disk full"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
			kind, ok := KindOf(fmt.Errorf("wrapped: %w", tt.err))
			if !ok || kind != tt.kind {
				t.Errorf("KindOf() = %v, %v, want %v", kind, ok, tt.kind)
			}
		})
	}
}

func TestStreamErrorChain(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewConsumptionError("redis:events", NewOperationError("redisstream", "XADD", cause))

	if !errors.Is(err, cause) {
		t.Error("consumption error should reach the sink's cause")
	}
	var op *OperationError
	if !errors.As(err, &op) || op.Operation != "XADD" {
		t.Errorf("errors.As() = %v, want the XADD operation error", op)
	}
	if _, ok := KindOf(cause); ok {
		t.Error("a plain error has no stream kind")
	}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindProduction, "production"},
		{KindConsumption, "consumption"},
		{KindTransform, "transform"},
		{KindProtocol, "protocol"},
		{Kind(0), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestIsProtocolViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"write after end", NewProtocolViolation("sink", "write", ErrWriteAfterEnd), true},
		{"push after end", NewProtocolViolation("src", "push", ErrPushAfterEnd), true},
		{"double callback", fmt.Errorf("pipe: %w", NewProtocolViolation("sink", "write", ErrMultipleCallback)), true},
		{"consumption error", NewConsumptionError("sink", ErrClosed), false},
		{"bare sentinel", ErrWriteAfterEnd, false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsProtocolViolation(tt.err); got != tt.want {
				t.Errorf("IsProtocolViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	tests := []struct {
		name string
		err  *ValidationError
		want string
	}{
		{
			name: "without hint",
			err:  NewValidationError("stream", "HighWaterMark", -1, "must be non-negative"),
			want: "stream: invalid HighWaterMark=-1 (must be non-negative)",
		},
		{
			name: "with hint",
			err: NewValidationError("stream", "Mode", "bytes", "byte mode requires []byte or string chunks").
				WithHint("use ModeObject for int chunks"),
			want: "stream: invalid Mode=bytes (byte mode requires []byte or string chunks) - use ModeObject for int chunks",
		},
		{
			name: "empty value",
			err:  NewValidationError("schedule", "Expression", "", "cannot be empty"),
			want: "schedule: invalid Expression= (cannot be empty)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
			if !errors.Is(tt.err, ErrInvalidConfiguration) {
				t.Error("ValidationError should match ErrInvalidConfiguration")
			}
		})
	}

	err := NewValidationError("writer", "MaxRetries", -1, "must be non-negative")
	if err.WithHint("use 0 to disable retries") != err {
		t.Error("WithHint should return the same instance")
	}
}

func TestOperationError(t *testing.T) {
	cause := io.ErrUnexpectedEOF
	tests := []struct {
		name string
		err  *OperationError
		want string
	}{
		{
			name: "without context",
			err:  NewOperationError("redisstream", "XREAD", cause),
			want: "redisstream.XREAD failed: unexpected EOF",
		},
		{
			name: "with context",
			err:  NewOperationError("streamcat", "open", cause).WithContext("access.log"),
			want: "streamcat.open failed: unexpected EOF (access.log)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
			if !errors.Is(tt.err, cause) {
				t.Error("OperationError should wrap its cause")
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout", ErrTimeout, true},
		{"short write", io.ErrShortWrite, true},
		{"sink failure", NewConsumptionError("sink", errors.New("connection reset")), true},
		{"closed sink", ErrClosed, false},
		{"destroyed stream", NewProtocolViolation("sink", "write", ErrDestroyed), false},
		{"write after end", NewProtocolViolation("sink", "write", ErrWriteAfterEnd), false},
		{"bad config", NewValidationError("writer", "MaxRetries", -1, "must be non-negative"), false},
		{"wrapped timeout", NewOperationError("redisstream", "XADD", ErrTimeout), true},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsTemporary(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout", ErrTimeout, true},
		{"capacity exceeded", ErrCapacityExceeded, true},
		{"slow XADD", fmt.Errorf("%w: XADD took longer than 5ms", ErrTimeout), true},
		{"sink failure", NewConsumptionError("sink", errors.New("disk full")), false},
		{"closed sink", ErrClosed, false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTemporary(tt.err); got != tt.want {
				t.Errorf("IsTemporary() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsValidationError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"validation error", NewValidationError("stream", "Mode", 42, "unknown mode"), true},
		{"wrapped", NewOperationError("streamcat", "run", NewValidationError("streamcat", "grep", "(", "invalid pattern")), true},
		{"stream error", NewProductionError("src", errors.New("boom")), false},
		{"timeout", ErrTimeout, false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidationError(tt.err); got != tt.want {
				t.Errorf("IsValidationError() = %v, want %v", got, tt.want)
			}
		})
	}
}
