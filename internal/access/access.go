// Package access decides whether a request may proceed.
//
// Authenticated callers may do anything. Anonymous callers may read and
// remove registers at any time, may write only while the lock is open, and
// may never toggle the lock.
package access

import (
	"context"
	"errors"

	"github.com/ohowe1/clipboard/internal/lock"
	"github.com/ohowe1/clipboard/internal/session"
	"github.com/ohowe1/clipboard/internal/xerrors"
)

type Action string

const (
	ActionReadRegister   Action = "read_register"
	ActionWriteRegister  Action = "write_register"
	ActionRemoveRegister Action = "remove_register"
	ActionToggleLock     Action = "toggle_lock"
)

var (
	ErrLocked        = xerrors.Mark(errors.New("clipboard is locked"), xerrors.ErrUnauthorized)
	ErrLoginRequired = xerrors.Mark(errors.New("login required"), xerrors.ErrUnauthorized)
)

// LockEvaluator is the part of the lock gate the policy reads.
type LockEvaluator interface {
	Evaluate(ctx context.Context) (lock.Mode, error)
}

type Policy struct {
	lock LockEvaluator
}

func New(l LockEvaluator) *Policy { return &Policy{lock: l} }

// Authorize returns nil when id may perform action.
func (p *Policy) Authorize(ctx context.Context, action Action, id session.Identity) error {
	switch action {
	case ActionReadRegister, ActionRemoveRegister:
		return nil
	case ActionToggleLock:
		if !id.Authenticated() {
			return ErrLoginRequired
		}
		return nil
	case ActionWriteRegister:
		if id.Authenticated() {
			return nil
		}
		mode, err := p.lock.Evaluate(ctx)
		if err != nil {
			return err
		}
		if mode == lock.Locked {
			return ErrLocked
		}
		return nil
	default:
		return xerrors.Newf("access: unknown action %q", action)
	}
}

// WriteAllowed is Authorize for ActionWriteRegister, for pages that only
// want to know which form to show.
func (p *Policy) WriteAllowed(ctx context.Context, id session.Identity) (bool, error) {
	err := p.Authorize(ctx, ActionWriteRegister, id)
	if errors.Is(err, ErrLocked) {
		return false, nil
	}
	return err == nil, err
}
