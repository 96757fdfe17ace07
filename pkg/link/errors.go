package link

import (
	"errors"
	"fmt"
)

var (
	// ErrLinkLost indicates the peer disconnected while an operation
	// was waiting on it.
	ErrLinkLost = errors.New("link lost")
	// ErrSessionBroken indicates a previous failure left the session in
	// an unknown state and it must be reset before reuse.
	ErrSessionBroken = errors.New("session broken, reset required")
)

// TimeoutError indicates the peer stayed silent past the deadline of a
// single protocol step.
type TimeoutError struct {
	Op string
}

// Error implements error.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout waiting for %s", e.Op)
}

// ChecksumError indicates the peer acknowledged with a checksum that
// does not match the data sent.
type ChecksumError struct {
	Expected byte
	Actual   byte
}

// Error implements error.
func (e *ChecksumError) Error() string {
	return fmt.Sprintf("bad checksum: expecting %#02x but received %#02x", e.Expected, e.Actual)
}

// EchoError indicates the console echoed back bytes different from the
// ones written. The console state is unknown afterwards.
type EchoError struct {
	Expected []byte
	Actual   []byte
}

// Error implements error.
func (e *EchoError) Error() string {
	return fmt.Sprintf("echo mismatch: expecting %q but received %q", e.Expected, e.Actual)
}

// ReplyError indicates a reply that does not match the outstanding
// request.
type ReplyError struct {
	Command  byte
	Expected int
	Actual   []byte
}

// Error implements error.
func (e *ReplyError) Error() string {
	return fmt.Sprintf("bad reply to command %#02x: expecting %d bytes, received % x", e.Command, e.Expected, e.Actual)
}

// DeviceMismatchError indicates the connected device is not the one the
// firmware was built for.
type DeviceMismatchError struct {
	Expected byte
	Actual   byte
}

// Error implements error.
func (e *DeviceMismatchError) Error() string {
	return fmt.Sprintf("device mismatch: firmware targets %#02x but connected to %#02x", e.Expected, e.Actual)
}

// SizeError indicates a firmware image larger than the device maximum.
type SizeError struct {
	Size int
	Max  int
}

// Error implements error.
func (e *SizeError) Error() string {
	return fmt.Sprintf("firmware too large: %d bytes exceeds maximum %d", e.Size, e.Max)
}

// ProtocolError indicates a violation of the line protocol, such as
// mismatched log markers.
type ProtocolError struct {
	Reason string
}

// Error implements error.
func (e *ProtocolError) Error() string {
	return "protocol violation: " + e.Reason
}
