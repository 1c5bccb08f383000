// Package xerrors carries call-site information on errors and classifies
// failures into the small set of kinds the HTTP layer maps to status codes.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

const maxStackDepth = 64

// traced holds the stack captured where an error first entered our code.
type traced struct {
	err error
	pcs []uintptr
}

func (t *traced) Error() string       { return t.err.Error() }
func (t *traced) Unwrap() error       { return t.err }
func (t *traced) StackPCs() []uintptr { return t.pcs }
func (t *traced) IsXerrorsWrapper()   {}

// link is one annotated hop in a chain. msg prefixes the message when set,
// kind makes errors.Is match a kind sentinel when set.
type link struct {
	err  error
	msg  string
	kind error
	pc   uintptr
}

func (l *link) Error() string {
	if l.msg == "" {
		return l.err.Error()
	}
	return l.msg + ": " + l.err.Error()
}

func (l *link) Unwrap() error     { return l.err }
func (l *link) PC() uintptr       { return l.pc }
func (l *link) IsXerrorsWrapper() {}

func (l *link) Is(target error) bool { return l.kind != nil && target == l.kind }

// stack skips runtime.Callers, itself and skip more frames.
func stack(skip int) []uintptr {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(2+skip, pcs)
	return pcs[:n]
}

// caller skips runtime.Callers, itself and skip more frames.
func caller(skip int) uintptr {
	var pcs [1]uintptr
	if runtime.Callers(2+skip, pcs[:]) == 0 {
		return 0
	}
	return pcs[0]
}

func trace(err error, skip int) error {
	if err == nil {
		return nil
	}
	return &traced{err: err, pcs: stack(skip)}
}

func WithStack(err error) error { return trace(err, 2) }

// EnsureTrace attaches a stack unless one is already somewhere in the chain.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	var hs interface{ StackPCs() []uintptr }
	if errors.As(err, &hs) && len(hs.StackPCs()) > 0 {
		return err
	}
	return trace(err, 2)
}

func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &link{err: err, msg: msg, pc: caller(1)}
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &link{err: err, msg: fmt.Sprintf(format, args...), pc: caller(1)}
}

func New(msg string) error             { return trace(errors.New(msg), 2) }
func Newf(f string, args ...any) error { return trace(fmt.Errorf(f, args...), 2) }
