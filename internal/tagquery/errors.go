package tagquery

import "fmt"

// ParseErrorKind distinguishes the reasons a tag expression fails to parse,
// each surfaced with a byte offset for diagnostics.
type ParseErrorKind string

const (
	ErrEmptyInput      ParseErrorKind = "empty_input"
	ErrMismatchedParen ParseErrorKind = "mismatched_paren"
	ErrUnexpectedChar  ParseErrorKind = "unexpected_char"
	ErrDanglingOperator ParseErrorKind = "dangling_operator"
)

// ParseError is returned by Parse on malformed input.
type ParseError struct {
	Kind    ParseErrorKind
	Offset  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("tagquery: %s at offset %d: %s", e.Kind, e.Offset, e.Message)
}

func newParseError(kind ParseErrorKind, offset int, msg string) *ParseError {
	return &ParseError{Kind: kind, Offset: offset, Message: msg}
}
