// Package errs defines the error taxonomy shared across the dictionary,
// SDO and PDO layers. Each kind is a distinct Go type so callers can
// branch on it with errors.As and still read the offending name, address
// or abort code off the error itself.
package errs

import "fmt"

// UnknownEntry is raised when a dictionary lookup misses, by name or by
// (index, subindex).
type UnknownEntry struct {
	Reference string // the name or "0xIIII:S" address string looked up
}

func (e *UnknownEntry) Error() string {
	return fmt.Sprintf("canopen: unknown dictionary entry %q", e.Reference)
}

// UnknownOperation is raised by Device.Execute for an unregistered name.
type UnknownOperation struct {
	Name string
}

func (e *UnknownOperation) Error() string {
	return fmt.Sprintf("canopen: unknown operation %q", e.Name)
}

// UnknownConstant is raised by Device.Constant for an unregistered name.
type UnknownConstant struct {
	Name string
}

func (e *UnknownConstant) Error() string {
	return fmt.Sprintf("canopen: unknown constant %q", e.Name)
}

// WrongType is raised when a value's type tag does not match an entry's
// declared type.
type WrongType struct {
	Reference string
	Expected  fmt.Stringer
	Got       fmt.Stringer
}

func (e *WrongType) Error() string {
	return fmt.Sprintf("canopen: %s has type %s, got %s", e.Reference, e.Expected, e.Got)
}

// MappingSize is raised when a receive or transmit PDO mapping does not fit
// within the 8-byte frame.
type MappingSize struct {
	Entry  string
	Offset uint8
	Size   int
}

func (e *MappingSize) Error() string {
	return fmt.Sprintf("canopen: mapping for %q at offset %d size %d overflows 8-byte frame", e.Entry, e.Offset, e.Size)
}

// MappingOverlap is raised when two transmit PDO mappings in the same frame
// cover overlapping byte ranges.
type MappingOverlap struct {
	CobID uint32
}

func (e *MappingOverlap) Error() string {
	return fmt.Sprintf("canopen: overlapping PDO mappings for COB-ID 0x%x", e.CobID)
}

// SdoKind distinguishes the family of an SDO failure.
type SdoKind uint8

const (
	SdoUnknown SdoKind = iota
	SdoResponseTimeout
	SdoAbort
	SdoProtocol
)

func (k SdoKind) String() string {
	switch k {
	case SdoResponseTimeout:
		return "response_timeout"
	case SdoAbort:
		return "abort"
	case SdoProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// SdoError carries the outcome of a failed SDO upload/download.
type SdoError struct {
	Kind       SdoKind
	AbortCode  uint32 // meaningful when Kind == SdoAbort
	Message    string
	Underlying error
}

func (e *SdoError) Error() string {
	if e.Kind == SdoAbort {
		return fmt.Sprintf("canopen: sdo abort 0x%08x: %s", e.AbortCode, e.Message)
	}
	return fmt.Sprintf("canopen: sdo %s: %s", e.Kind, e.Message)
}

func (e *SdoError) Unwrap() error { return e.Underlying }

// CanopenError is the catch-all for invariant violations: duplicate
// dictionary entries, an invalid PDO number, a dictionary that was never
// attached, and similar programmer errors.
type CanopenError struct {
	Message string
}

func (e *CanopenError) Error() string { return "canopen: " + e.Message }

func NewCanopenError(format string, args ...any) *CanopenError {
	return &CanopenError{Message: fmt.Sprintf(format, args...)}
}
