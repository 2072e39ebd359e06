package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfig          = errors.New("configuration error")
	ErrTransport       = errors.New("render worker transport error")
	ErrDuplicateOutput = errors.New("duplicate output file")
	ErrUnsupportedCSP  = errors.New("unsupported csp file type")
)

// RouteError ties a failure to the route whose task produced it.
type RouteError struct {
	Route string
	Err   error
}

func (e *RouteError) Error() string {
	return fmt.Sprintf("error on page %s: %v", e.Route, e.Err)
}

func (e *RouteError) Unwrap() error {
	return e.Err
}

type MissingRootError struct {
	Root string
}

func (e *MissingRootError) Error() string {
	return fmt.Sprintf("could not find a tag with id=%q to replace it with server-side rendered HTML", e.Root)
}

// RenderError is an exception thrown by application render code.
type RenderError struct {
	Message string
	Stack   string
}

func (e *RenderError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)
	if e.Stack != "" && !strings.Contains(e.Message, e.Stack) {
		fmt.Fprintf(&sb, "\n\nStack:\n%s", e.Stack)
	}
	return sb.String()
}

// TransportError means the worker never produced a reply.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrTransport, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

func ConfigError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}
