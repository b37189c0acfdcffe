// Package errors provides error construction helpers that annotate errors
// with the file and line of the call site. Wrapped errors keep their %w
// chain, so errors.Is and errors.As from the standard library still see
// sentinel errors (for example acp.ErrConnClosed) through the annotation.
package errors

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// New creates a new error with file and line number information.
func New(format string, a ...interface{}) error {
	return fmt.Errorf("[%s] %s", caller(), fmt.Sprintf(format, a...))
}

// Wrap adds call-site context to an existing error without extra text.
// If the provided error is nil, Wrap returns nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("[%s] %w", caller(), err)
}

// Wrapf adds context (including file and line number) to an existing error.
// If the provided error is nil, Wrapf returns nil.
func Wrapf(err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("[%s] %s: %w", caller(), fmt.Sprintf(format, a...), err)
}

// caller reports the file:line of the helper's caller's caller.
func caller() string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "???:0"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
