package mifare

import (
	"errors"
	"fmt"
)

// Kind groups errors by what went wrong rather than where.
type Kind int

const (
	KindUnknown Kind = iota
	// KindRange covers bad sector, block, offset or length arguments.
	KindRange
	// KindCapability is returned when the card can't do what was asked,
	// e.g. rewriting block 0 on a non-magic card.
	KindCapability
	// KindState is returned when an operation requires the card to be in a
	// different state, such as decrypted.
	KindState
	// KindIntegrity covers checksum and UID mismatches.
	KindIntegrity
	// KindTransport covers errors passed up from the reader.
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindRange:
		return "range"
	case KindCapability:
		return "capability"
	case KindState:
		return "state"
	case KindIntegrity:
		return "integrity"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Error is a sentinel error with a kind and an optional diagnostic code.
// Compare with errors.Is, never by Code.
type Error struct {
	Kind Kind
	Code uint8
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

var (
	ErrInvalidSector     = &Error{Kind: KindRange, Code: 0x0B, Msg: "invalid sector"}
	ErrInvalidBlock      = &Error{Kind: KindRange, Code: 0x0A, Msg: "invalid block"}
	ErrNotDataBlock      = &Error{Kind: KindRange, Code: 0x09, Msg: "not a data block"}
	ErrOutOfBlock        = &Error{Kind: KindRange, Code: 0x08, Msg: "offset and length exceed block"}
	ErrDumpSize          = &Error{Kind: KindRange, Code: 0x07, Msg: "dump must be exactly 1024 bytes"}
	ErrInvalidAccessBits = &Error{Kind: KindRange, Code: 0x06, Msg: "access bits are not self-consistent"}
	ErrNotMagic          = &Error{Kind: KindCapability, Code: 0x0C, Msg: "card is not magic, block 0 is read only"}
	ErrUIDMismatch       = &Error{Kind: KindIntegrity, Code: 0x15, Msg: "uid does not match card"}
	ErrAuthFailed        = &Error{Kind: KindTransport, Code: 0x14, Msg: "authentication failed"}
)

// TransportError wraps an error returned by a Transport.
type TransportError struct {
	Op    string
	Block int
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s block %d: %v", e.Op, e.Block, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or KindUnknown if err was not produced
// by this package or one built on it.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	var te *TransportError
	if errors.As(err, &te) {
		return KindTransport
	}

	return KindUnknown
}

// IsAuthFailed reports whether err means the reader rejected a key.
func IsAuthFailed(err error) bool {
	return errors.Is(err, ErrAuthFailed)
}
