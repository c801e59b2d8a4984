package ftsboot

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds. Every error returned by the package matches exactly one of
// these with errors.Is.
var (
	// ErrTransport indicates that a bus exchange failed or that the
	// controller kept reporting an error status.
	ErrTransport = errors.New("transport error")
	// ErrIntegrity indicates a read checksum or region ECC mismatch.
	ErrIntegrity = errors.New("integrity error")
	// ErrFormat indicates a malformed firmware image.
	ErrFormat = errors.New("format error")
	// ErrTimeout indicates that the controller did not become ready in time.
	ErrTimeout = errors.New("timeout")
	// ErrResource indicates that a transfer could not be buffered.
	ErrResource = errors.New("resource error")
)

// StatusError is returned when the controller flags an exchange as failed.
type StatusError struct {
	Opcode byte
	Status byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("command %02X returned status %02X", e.Opcode, e.Status)
}

// Is reports ErrTransport as the kind of the error.
func (e *StatusError) Is(target error) bool { return target == ErrTransport }

// BusError is returned when the bus itself fails an exchange. It wraps the
// driver error.
type BusError struct {
	Opcode byte
	Err    error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("command %02X exchange failed: %v", e.Opcode, e.Err)
}

// Is reports ErrTransport as the kind of the error.
func (e *BusError) Is(target error) bool { return target == ErrTransport }

func (e *BusError) Unwrap() error { return e.Err }

// CRCError is returned when the checksum trailer of a read response does
// not match its data.
type CRCError struct {
	Opcode   byte
	Expected uint16
	Actual   uint16
}

func (e *CRCError) Error() string {
	return fmt.Sprintf("command %02X crc mismatch: calculated %04X, received %04X", e.Opcode, e.Expected, e.Actual)
}

// Is reports ErrIntegrity as the kind of the error.
func (e *CRCError) Is(target error) bool { return target == ErrIntegrity }

// RetryError is returned when every attempt of an exchange failed.
// It wraps the failure of the last attempt.
type RetryError struct {
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error { return e.Err }

// HeaderError is returned when a code length field of the firmware image
// fails its self check.
type HeaderError struct {
	Region     string
	Length     uint16
	Complement uint16
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("%s code length %04X with complement %04X is invalid", e.Region, e.Length, e.Complement)
}

// Is reports ErrFormat as the kind of the error.
func (e *HeaderError) Is(target error) bool { return target == ErrFormat }

// EccMismatchError is returned when the controller's ECC over a span differs
// from the one calculated over the source bytes.
type EccMismatchError struct {
	Span   EccSpan
	Host   uint16
	Device uint16
}

func (e *EccMismatchError) Error() string {
	return fmt.Sprintf("ecc mismatch at %06X length %X: host %04X, device %04X",
		e.Span.Address, e.Span.Length, e.Host, e.Device)
}

// Is reports ErrIntegrity as the kind of the error.
func (e *EccMismatchError) Is(target error) bool { return target == ErrIntegrity }

// EccTimeoutError is returned when the controller never reports the ECC
// calculation as finished.
type EccTimeoutError struct {
	Span  EccSpan
	Polls int
}

func (e *EccTimeoutError) Error() string {
	return fmt.Sprintf("ecc at %06X length %X not ready after %d polls", e.Span.Address, e.Span.Length, e.Polls)
}

// Is reports ErrTimeout as the kind of the error.
func (e *EccTimeoutError) Is(target error) bool { return target == ErrTimeout }

// ProgramError records where programming of a region stopped.
type ProgramError struct {
	Region  string
	Address uint32
	Err     error
}

func (e *ProgramError) Error() string {
	return fmt.Sprintf("%s error at %06X: %v", e.Region, e.Address, e.Err)
}

func (e *ProgramError) Unwrap() error { return e.Err }
