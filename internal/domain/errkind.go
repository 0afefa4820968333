package domain

import "errors"

// ErrKind is a behavioral error category crossing a component boundary, per
// the error handling design: not a type name, a classification used to
// decide whether to retry and how to surface the failure to a session.
type ErrKind string

const (
	KindOAuthRequired   ErrKind = "oauth_required"
	KindTimeout         ErrKind = "timeout"
	KindConnectError    ErrKind = "connect_error"
	KindTransport       ErrKind = "transport"
	KindCancelled       ErrKind = "cancelled"
	KindMethodNotFound  ErrKind = "method_not_found"
	KindInvalidParams   ErrKind = "invalid_params"
	KindInternalError   ErrKind = "internal_error"
	KindTemplateTooBig  ErrKind = "template_too_large"
	KindTemplateCompile ErrKind = "template_compile_error"
	KindPresetNotFound  ErrKind = "preset_not_found"
	KindParseError      ErrKind = "parse_error"
	KindServiceUnavail  ErrKind = "service_unavailable"
)

// Error is the wrapped error value carried across session boundaries: a
// kind and message, optionally annotated with the server name, a parse
// offset, an authorization URL and a cause. The type defines no JSON
// encoding of its own.
type Error struct {
	Kind       ErrKind
	Message    string
	ServerName string
	Offset     int
	AuthURL    string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds a domain.Error of the given kind.
func NewError(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// WithServer annotates the error with the outbound server name responsible.
func (e *Error) WithServer(name string) *Error {
	e.ServerName = name
	return e
}

// WithOffset annotates a parse error with its byte offset.
func (e *Error) WithOffset(off int) *Error {
	e.Offset = off
	return e
}

// WithAuthURL annotates an OAuthRequired error with its authorization URL.
func (e *Error) WithAuthURL(url string) *Error {
	e.AuthURL = url
	return e
}

// Kind extracts the ErrKind from err if it is (or wraps) a *Error,
// defaulting to KindInternalError otherwise.
func Kind(err error) ErrKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternalError
}

// IsCancelled reports whether err represents a cancellation rather than a
// true error (shutdown or session close).
func IsCancelled(err error) bool {
	return Kind(err) == KindCancelled
}
