package serde

import (
	"errors"
	"fmt"
)

// Decode failures. Every decode error is one of these (possibly wrapped) or an *IncompleteError.
var (
	// ErrParser is a structurally invalid field
	ErrParser = errors.New("parser error")
	// ErrNotImplemented is well-formed input we do not support (null values, unknown api keys)
	ErrNotImplemented = errors.New("not implemented")
	// ErrInvalidRequestSize means the frame size conflicts with the bytes of the request
	ErrInvalidRequestSize = errors.New("invalid request size")
	// ErrInvalidMessageSetSize means a message set declared a negative size
	ErrInvalidMessageSetSize = errors.New("invalid message set size")
	// ErrInvalidMessageSize means a message size conflicts with its content
	ErrInvalidMessageSize = errors.New("invalid message size")
	// ErrInvalidMessage is a CRC mismatch
	ErrInvalidMessage = errors.New("invalid message")
)

// IncompleteError signals that the input ended early. Needed is the number of missing bytes.
type IncompleteError struct {
	Needed int
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("incomplete input: need %d more bytes", e.Needed)
}

// Incomplete reports whether err is (or wraps) an *IncompleteError and how many bytes are missing
func Incomplete(err error) (int, bool) {
	var inc *IncompleteError
	if errors.As(err, &inc) {
		return inc.Needed, true
	}
	return 0, false
}
