// Package coorderr defines the coordination core's error vocabulary.
//
// Every error the core surfaces to a tool caller carries one of a fixed set
// of Kinds so that callers (the coordinator agent, tests, CLI) can branch on
// error category without parsing strings.
package coorderr

import "fmt"

// Kind identifies the category of a CoordError.
type Kind string

const (
	// KindSessionNotFound: resume target absent on disk.
	KindSessionNotFound Kind = "session/not-found"
	// KindSessionPersistFailed: write-rename failed.
	KindSessionPersistFailed Kind = "session/persist-failed"
	// KindAgentUnknown: operation references an unregistered agent id.
	KindAgentUnknown Kind = "agent/unknown"
	// KindAgentIllegalTransition: e.g. activating a terminated agent.
	KindAgentIllegalTransition Kind = "agent/illegal-transition"
	// KindPermissionUnknownRequest: action on a request id the store does not hold.
	KindPermissionUnknownRequest Kind = "permission/unknown-request"
	// KindPermissionAmbiguousAgent: inference could not narrow to one agent.
	KindPermissionAmbiguousAgent Kind = "permission/ambiguous-agent"
	// KindMailboxTransport: network or backend failure.
	KindMailboxTransport Kind = "mailbox/transport"
	// KindMailboxAuth: credential rejected.
	KindMailboxAuth Kind = "mailbox/auth"
	// KindCodecUnknownType: inbound envelope with unrecognized type.
	KindCodecUnknownType Kind = "codec/unknown-type"
	// KindCodecMalformed: inbound envelope not valid JSON or missing type.
	KindCodecMalformed Kind = "codec/malformed"
)

// CoordError is the concrete error type returned by every package in the
// coordination core. Wrap an underlying cause with Wrap when one exists.
type CoordError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *CoordError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap lets errors.Is/errors.As see through to the cause.
func (e *CoordError) Unwrap() error {
	return e.Cause
}

// New builds a CoordError with no underlying cause.
func New(kind Kind, message string) *CoordError {
	return &CoordError{Kind: kind, Message: message}
}

// Newf builds a CoordError with a formatted message.
func Newf(kind Kind, format string, args ...any) *CoordError {
	return &CoordError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind to an existing error.
func Wrap(kind Kind, message string, cause error) *CoordError {
	return &CoordError{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is a CoordError of the given Kind.
func Is(err error, kind Kind) bool {
	ce, ok := err.(*CoordError)
	if !ok {
		return false
	}
	return ce.Kind == kind
}

// KindOf extracts the Kind from err, or "" if err is not a CoordError.
func KindOf(err error) Kind {
	ce, ok := err.(*CoordError)
	if !ok {
		return ""
	}
	return ce.Kind
}
