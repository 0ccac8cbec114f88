package wire

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncated is wrapped by every MessageError caused by a buffer that
	// ends before the record it is supposed to contain.
	ErrTruncated = errors.New("truncated input")

	// ErrChecksumMismatch is wrapped by the MessageError returned when the
	// checksum in a message header does not match its payload.
	ErrChecksumMismatch = errors.New("payload checksum mismatch")

	// ErrWrongNetwork is wrapped by the MessageError returned when a message
	// header carries a magic value for another network.
	ErrWrongNetwork = errors.New("message from other network")
)

// MessageError describes an issue with a message. An example of some
// potential issues are messages from the wrong bitcoin network, invalid
// commands, mismatched checksums, and exceeding max payloads.
//
// This provides a mechanism for the caller to type assert the error to
// differentiate between general io errors such as io.EOF and issues that
// resulted from malformed messages.
type MessageError struct {
	Func        string // Function name
	Description string // Human readable description of the issue
	Err         error  // Error category, if any
}

// Error satisfies the error interface and prints human-readable errors.
func (e *MessageError) Error() string {
	if e.Func != "" {
		return fmt.Sprintf("%v: %v", e.Func, e.Description)
	}
	return e.Description
}

// Unwrap returns the error category so errors.Is can match it.
func (e *MessageError) Unwrap() error {
	return e.Err
}

// messageError creates an error for the given function and description.
func messageError(f string, desc string) *MessageError {
	return &MessageError{Func: f, Description: desc}
}

// truncatedError creates a MessageError in the ErrTruncated category for a
// read of need bytes at offset off from a buffer of size have.
func truncatedError(f string, off, need, have int) *MessageError {
	return &MessageError{
		Func: f,
		Description: fmt.Sprintf("need %d bytes at offset %d, buffer "+
			"holds %d", need, off, have),
		Err: ErrTruncated,
	}
}
