// Package lock implements the global write lock.
//
// There is one lock for the whole clipboard. It is open until a stored
// deadline and locked after it; nothing else is persisted, so clearing the
// lock just moves the deadline to zero. The record is read from the
// key-value store on every evaluation so several instances sharing a store
// always agree. The gate itself does no authorization.
package lock

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/ohowe1/clipboard/internal/kv"
	"github.com/ohowe1/clipboard/internal/log"
	"github.com/ohowe1/clipboard/internal/xerrors"
)

const (
	StateKey             = "lock:state"
	DefaultUnlockMinutes = 5
)

type Mode int

const (
	Locked Mode = iota
	Unlocked
)

func (m Mode) String() string {
	if m == Unlocked {
		return "unlocked"
	}
	return "locked"
}

// State is the persisted record. Version counts writes; there is no
// compare-and-swap, concurrent writers race and the last one wins.
type State struct {
	UnlockedUntilMS int64  `json:"unlocked_until_ms"`
	Version         int64  `json:"version"`
	UpdatedAtMS     int64  `json:"updated_at_ms,omitempty"`
	UpdatedBy       string `json:"updated_by,omitempty"`
}

// IsLocked reports whether now is past the deadline. now == until is still open.
func IsLocked(now time.Time, untilMS int64) bool {
	return now.UnixMilli() > untilMS
}

type Gate struct {
	kv  kv.Store
	now func() time.Time
}

type Option func(*Gate)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

func New(store kv.Store, opts ...Option) *Gate {
	g := &Gate{kv: store, now: time.Now}
	for _, o := range opts {
		o(g)
	}
	return g
}

// read returns the stored state. A missing record is the zero state; a
// record that cannot be decoded is logged and also treated as zero, which
// keeps the clipboard locked.
func (g *Gate) read(ctx context.Context) (State, error) {
	raw, err := g.kv.Get(ctx, StateKey)
	if errors.Is(err, kv.ErrNotFound) {
		return State{}, nil
	}
	if err != nil {
		return State{}, xerrors.Mark(xerrors.Wrap(err, "read lock state"), xerrors.ErrStorage)
	}
	st, err := decodeState(raw)
	if err != nil {
		log.FromContext(ctx).Warn(ctx, "lock state unreadable, treating as locked", "err", err.Error())
		return State{}, nil
	}
	return st, nil
}

func decodeState(raw []byte) (State, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] != '{' {
		// bare epoch milliseconds, as older deployments stored it
		ms, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return State{}, xerrors.Wrap(err, "parse legacy lock value")
		}
		return State{UnlockedUntilMS: ms}, nil
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, xerrors.Wrap(err, "decode lock state")
	}
	return st, nil
}

func (g *Gate) write(ctx context.Context, untilMS int64, by string) (State, error) {
	prev, err := g.read(ctx)
	if err != nil {
		return State{}, err
	}
	st := State{
		UnlockedUntilMS: untilMS,
		Version:         prev.Version + 1,
		UpdatedAtMS:     g.now().UnixMilli(),
		UpdatedBy:       by,
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return State{}, xerrors.Wrap(err, "encode lock state")
	}
	if err := g.kv.Put(ctx, StateKey, raw); err != nil {
		return State{}, xerrors.Mark(xerrors.Wrap(err, "write lock state"), xerrors.ErrStorage)
	}
	return st, nil
}

// UnlockedUntil returns the stored deadline in epoch milliseconds.
func (g *Gate) UnlockedUntil(ctx context.Context) (int64, error) {
	st, err := g.read(ctx)
	return st.UnlockedUntilMS, err
}

func (g *Gate) Evaluate(ctx context.Context) (Mode, error) {
	until, err := g.UnlockedUntil(ctx)
	if err != nil {
		return Locked, err
	}
	if IsLocked(g.now(), until) {
		return Locked, nil
	}
	return Unlocked, nil
}

// Extend opens the lock for minutes from now. Non-positive minutes mean
// DefaultUnlockMinutes. There is no upper bound.
func (g *Gate) Extend(ctx context.Context, minutes int, by string) (time.Time, error) {
	if minutes <= 0 {
		minutes = DefaultUnlockMinutes
	}
	untilMS := deadlineMS(g.now().UnixMilli(), minutes)
	if _, err := g.write(ctx, untilMS, by); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(untilMS), nil
}

// deadlineMS adds minutes to nowMS in epoch milliseconds, saturating at
// math.MaxInt64 instead of wrapping into the past.
func deadlineMS(nowMS int64, minutes int) int64 {
	const msPerMinute = int64(time.Minute / time.Millisecond)
	if int64(minutes) > (math.MaxInt64-nowMS)/msPerMinute {
		return math.MaxInt64
	}
	return nowMS + int64(minutes)*msPerMinute
}

// Clear locks immediately.
func (g *Gate) Clear(ctx context.Context, by string) error {
	_, err := g.write(ctx, 0, by)
	return err
}

type Status struct {
	UnlockedUntil time.Time
	Now           time.Time
	Locked        bool
	Remaining     time.Duration
}

// RemainingMinutes rounds up, so 30 seconds left reads as 1 minute.
func (s Status) RemainingMinutes() int {
	if s.Locked || s.Remaining <= 0 {
		return 0
	}
	m := s.Remaining / time.Minute
	if s.Remaining%time.Minute != 0 {
		m++
	}
	return int(m)
}

func (g *Gate) Status(ctx context.Context) (Status, error) {
	until, err := g.UnlockedUntil(ctx)
	if err != nil {
		return Status{}, err
	}
	now := g.now()
	st := Status{
		UnlockedUntil: time.UnixMilli(until),
		Now:           now,
		Locked:        IsLocked(now, until),
	}
	if !st.Locked {
		st.Remaining = time.UnixMilli(until).Sub(now)
	}
	return st, nil
}
