package core

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrTypeMismatch     = errors.New("field does not apply to item kind")
	ErrUnknownField     = errors.New("unknown field")
	ErrNoAuthor         = errors.New("item has no author")
	ErrUnresolved       = errors.New("author not resolved")
	ErrSeenPersist      = errors.New("failed to persist seen mark")
	ErrUnknownDirective = errors.New("unknown directive")
	ErrTemplate         = errors.New("template rendering failed")
)

// ParseError reports a malformed rule source.
type ParseError struct {
	Source string
	Line   int // 1-based, 0 when the error is not tied to a line
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s:%d: %v", e.Source, e.Line, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ActionError reports a failed directive.
type ActionError struct {
	Directive string
	Err       error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %s: %v", e.Directive, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}
