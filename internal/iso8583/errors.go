package iso8583

import (
	"errors"
	"fmt"
)

var (
	// ErrCodec matches any CodecError.
	ErrCodec = errors.New("codec error")
	// ErrMissingField matches any MissingFieldError.
	ErrMissingField = errors.New("missing field")
	// ErrProtocolMismatch matches any ProtocolMismatchError.
	ErrProtocolMismatch = errors.New("protocol mismatch")
)

// CodecError is returned when a value does not fit its field definition or a
// message cannot be packed or unpacked.
type CodecError struct {
	// Field is the data element number, or -1 when the error concerns the
	// whole message.
	Field int
	Err   error
}

func (e *CodecError) Error() string {
	if e.Field < 0 {
		return fmt.Sprintf("iso8583: %v", e.Err)
	}
	return fmt.Sprintf("iso8583: field %d (%s): %v", e.Field, fieldName(e.Field), e.Err)
}

func (e *CodecError) Unwrap() error { return e.Err }

func (e *CodecError) Is(target error) bool { return target == ErrCodec }

// MissingFieldError is returned when a required field is absent on decode.
type MissingFieldError struct {
	Field int
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("iso8583: required field %d (%s) is missing", e.Field, fieldName(e.Field))
}

func (e *MissingFieldError) Is(target error) bool { return target == ErrMissingField }

// ProtocolMismatchError is returned when the message type indicator is not
// the one expected for the direction being decoded.
type ProtocolMismatchError struct {
	Expected string
	Got      string
}

func (e *ProtocolMismatchError) Error() string {
	return fmt.Sprintf("iso8583: unexpected message type %q, want %q", e.Got, e.Expected)
}

func (e *ProtocolMismatchError) Is(target error) bool { return target == ErrProtocolMismatch }

func codecErr(field int, format string, args ...any) error {
	return &CodecError{Field: field, Err: fmt.Errorf(format, args...)}
}

func fieldName(id int) string {
	if id == 0 {
		return "Message Type Indicator"
	}
	if def, ok := Dictionary[id]; ok {
		return def.Name
	}
	return "unknown"
}
