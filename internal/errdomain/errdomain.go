// Package errdomain defines the closed set of error kinds the daemon raises
// and the registration table mapping each kind to its wire error identifier.
// Components only raise a kind plus a message; the control surface that would
// put these on the wire maps the identifier itself.
package errdomain

import (
	"errors"
	"fmt"
)

// Kind is a symbolic error kind. The numeric value doubles as the error code
// shown in operator-facing diagnostics.
type Kind int

const (
	// Failed is the generic failure kind.
	Failed Kind = iota
	// Cancelled means an operation was cancelled while in flight.
	Cancelled
	// AlreadyCancelled means an operation was cancelled before it started.
	AlreadyCancelled
)

// DomainName identifies this error domain in diagnostics.
const DomainName = "diskmand-error"

var wireNames = map[Kind]string{
	Failed:           "io.diskmand.Error.Failed",
	Cancelled:        "io.diskmand.Error.Cancelled",
	AlreadyCancelled: "io.diskmand.Error.AlreadyCancelled",
}

// WireName returns the wire error identifier registered for k.
func (k Kind) WireName() string {
	if name, ok := wireNames[k]; ok {
		return name
	}
	return wireNames[Failed]
}

func (k Kind) String() string {
	switch k {
	case Failed:
		return "Failed"
	case Cancelled:
		return "Cancelled"
	case AlreadyCancelled:
		return "AlreadyCancelled"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// FromWireName resolves a wire error identifier back to its kind.
func FromWireName(name string) (Kind, bool) {
	for k, n := range wireNames {
		if n == name {
			return k, true
		}
	}
	return Failed, false
}

// Error is an error carrying a Kind.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// New creates an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf reports the Kind carried by err, unwrapping as needed.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return Failed, false
}
