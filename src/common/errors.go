package common

import (
	"errors"
	"fmt"
)

// ErrKind identifies a protocol error independently of the transport.
type ErrKind uint32

const (
	// InvalidSignature ...
	InvalidSignature ErrKind = iota
	// UntrustedSectionKey ...
	UntrustedSectionKey
	// OutOfOrder ...
	OutOfOrder
	// BalanceExceeded ...
	BalanceExceeded
	// DoubleSpend ...
	DoubleSpend
	// DataExists ...
	DataExists
	// DataNotFound ...
	DataNotFound
	// AccessDenied ...
	AccessDenied
	// NotEnoughSpace ...
	NotEnoughSpace
	// Timeout ...
	Timeout
	// RejoinRequired ...
	RejoinRequired
	// Configuration ...
	Configuration
	// InvalidAmount ...
	InvalidAmount
	// InvalidOperation ...
	InvalidOperation
	// InvalidSuccessor ...
	InvalidSuccessor
	// NoSuchKey ...
	NoSuchKey
	// MissingSecretKeyShare ...
	MissingSecretKeyShare
	// InvalidState ...
	InvalidState
	// InvalidMessage ...
	InvalidMessage
	// PeerUnreachable ...
	PeerUnreachable
)

var errKindNames = map[ErrKind]string{
	InvalidSignature:      "Invalid Signature",
	UntrustedSectionKey:   "Untrusted Section Key",
	OutOfOrder:            "Out Of Order",
	BalanceExceeded:       "Balance Exceeded",
	DoubleSpend:           "Double Spend",
	DataExists:            "Data Exists",
	DataNotFound:          "Data Not Found",
	AccessDenied:          "Access Denied",
	NotEnoughSpace:        "Not Enough Space",
	Timeout:               "Timeout",
	RejoinRequired:        "Rejoin Required",
	Configuration:         "Configuration",
	InvalidAmount:         "Invalid Amount",
	InvalidOperation:      "Invalid Operation",
	InvalidSuccessor:      "Invalid Successor",
	NoSuchKey:             "No Such Key",
	MissingSecretKeyShare: "Missing Secret Key Share",
	InvalidState:          "Invalid State",
	InvalidMessage:        "Invalid Message",
	PeerUnreachable:       "Peer Unreachable",
}

// String ...
func (k ErrKind) String() string {
	if s, ok := errKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrKind(%d)", uint32(k))
}

// Error is the error value returned by protocol handlers. The Kind decides how
// the node reacts to it; Context is free text for logs and clients.
type Error struct {
	Kind    ErrKind
	Context string
}

// NewError ...
func NewError(kind ErrKind, format string, args ...interface{}) Error {
	return Error{
		Kind:    kind,
		Context: fmt.Sprintf(format, args...),
	}
}

// Error ...
func (e Error) Error() string {
	if e.Context == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Context)
}

// Is checks that err, or an error it wraps, is an Error of the given kind.
func Is(err error, kind ErrKind) bool {
	var e Error
	return errors.As(err, &e) && e.Kind == kind
}

// KindOf returns the kind of a protocol error, and false if err is not one.
func KindOf(err error) (ErrKind, bool) {
	var e Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
