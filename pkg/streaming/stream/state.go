package stream

import (
	"reflect"

	scerrors "github.com/vnykmshr/streamcore/pkg/common/errors"
	"github.com/vnykmshr/streamcore/pkg/common/validation"
	"github.com/vnykmshr/streamcore/pkg/streaming/buffer"
)

// State is the lifecycle position of a stream.
type State int

const (
	// Idle is the initial state: nothing consumes the stream yet.
	Idle State = iota

	// Flowing means chunks move as soon as they are available.
	Flowing

	// Paused means the consumer asked to stop, or a write hit the high-water mark.
	Paused

	// Ended means no more data will be produced (readable) or accepted (writable).
	Ended

	// Errored means the stream failed and has not emitted close yet.
	Errored

	// Closed is terminal: resources are released and no transition is valid.
	Closed
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Flowing:
		return "flowing"
	case Paused:
		return "paused"
	case Ended:
		return "ended"
	case Errored:
		return "errored"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is Errored or Closed.
func (s State) Terminal() bool {
	return s == Errored || s == Closed
}

// Mode selects how chunks are measured against the high-water mark.
// It is fixed at construction.
type Mode int

const (
	// ModeAuto uses ModeBytes for []byte and string chunks and ModeObject otherwise.
	ModeAuto Mode = iota

	// ModeBytes counts len(chunk). Only valid for []byte and string chunk types.
	ModeBytes

	// ModeObject counts every chunk as 1.
	ModeObject
)

// String returns the lower-case name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeBytes:
		return "bytes"
	case ModeObject:
		return "object"
	default:
		return "auto"
	}
}

// Default high-water marks, in bytes and in chunks.
const (
	DefaultHighWaterMark       = 16 * 1024
	DefaultObjectHighWaterMark = 16
)

// sizing is the resolved measuring strategy of one side of a stream.
type sizing[T any] struct {
	mode   Mode
	hwm    int
	lwm    int
	sizeOf buffer.SizeFunc[T]
}

func isByteType[T any]() bool {
	t := reflect.TypeOf((*T)(nil)).Elem()
	switch t.Kind() {
	case reflect.String:
		return true
	case reflect.Slice:
		return t.Elem().Kind() == reflect.Uint8
	default:
		return false
	}
}

func byteSize[T any](chunk T) int {
	if n, ok := buffer.ByteLength(chunk); ok {
		return n
	}
	// Named string and byte slice types.
	v := reflect.ValueOf(chunk)
	if v.Kind() == reflect.String || v.Kind() == reflect.Slice {
		return v.Len()
	}
	return 0
}

func resolveSizing[T any](module, side string, mode Mode, hwm, lwm int) (sizing[T], error) {
	byteType := isByteType[T]()

	switch mode {
	case ModeAuto:
		if byteType {
			mode = ModeBytes
		} else {
			mode = ModeObject
		}
	case ModeBytes:
		if !byteType {
			var zero T
			return sizing[T]{}, scerrors.NewValidationError(module, side+"Mode", mode,
				"byte mode requires []byte or string chunks").
				WithHint("use ModeObject for " + reflect.TypeOf(&zero).Elem().String() + " chunks")
		}
	case ModeObject:
	default:
		return sizing[T]{}, scerrors.NewValidationError(module, side+"Mode", mode, "unknown mode")
	}

	if err := validation.First(
		validation.ValidateNonNegative(module, side+"HighWaterMark", hwm),
		validation.ValidateNonNegative(module, side+"LowWaterMark", lwm),
	); err != nil {
		return sizing[T]{}, err
	}

	if hwm == 0 {
		hwm = DefaultHighWaterMark
		if mode == ModeObject {
			hwm = DefaultObjectHighWaterMark
		}
	}
	if lwm == 0 {
		lwm = hwm
	}
	if err := validation.ValidateAtMost(module, side+"LowWaterMark", lwm, hwm); err != nil {
		return sizing[T]{}, err
	}

	s := sizing[T]{mode: mode, hwm: hwm, lwm: lwm, sizeOf: buffer.CountOne[T]}
	if mode == ModeBytes {
		s.sizeOf = byteSize[T]
	}
	return s, nil
}
