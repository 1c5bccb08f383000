package xerrors

import "errors"

// Failure kinds. Handlers classify with errors.Is against these and nothing else.
var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrStorage      = errors.New("storage failure")
)

var kinds = []error{ErrValidation, ErrNotFound, ErrUnauthorized, ErrStorage}

// Mark tags err with kind so errors.Is(err, kind) holds. An error may carry
// several kinds; KindOf reports them in declaration order.
func Mark(err, kind error) error {
	if err == nil {
		return nil
	}
	return &link{err: err, kind: kind, pc: caller(1)}
}

// KindOf returns the first kind sentinel the chain matches, or nil when the
// error is unclassified (callers treat that as a storage-class failure).
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Validation returns a new stack-carrying error of kind ErrValidation.
func Validation(msg string) error {
	return &link{err: trace(errors.New(msg), 2), kind: ErrValidation, pc: caller(1)}
}
