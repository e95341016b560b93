// Package profile defines the extension point leaf device profiles use
// to add their own opcode family on top of the generic device-info
// protocol (spec §4.6a / Design Note 9.4), the same "interface +
// composition over inheritance" shape as sagostin-goefidash's
// ecu.Provider, generalized from one fixed ECU backend to an open set of
// slave device kinds.
package profile

import "fmt"

// Extension is implemented by a leaf device profile. OpcodeFamily is the
// leading byte that routes a request into this extension's sub-opcodes,
// distinct from the generic device-info family byte (0x00).
type Extension interface {
	OpcodeFamily() byte
}

// Code is an opaque profile-specific error code, letting a leaf profile
// define its own failure taxonomy without extending busio.ErrorKind.
type Code int

// Error wraps a profile-specific Code with its causing error, if any.
type Error struct {
	Code  Code
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("profile: code %d: %v", e.Code, e.Cause)
	}
	return fmt.Sprintf("profile: code %d", e.Code)
}

func (e *Error) Unwrap() error { return e.Cause }
