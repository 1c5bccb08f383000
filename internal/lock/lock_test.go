package lock

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohowe1/clipboard/internal/kv"
	"github.com/ohowe1/clipboard/internal/xerrors"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newGate() (*Gate, *kv.Memory, *clock) {
	c := &clock{t: time.UnixMilli(1_700_000_000_000)}
	m := kv.NewMemory()
	return New(m, WithClock(c.now)), m, c
}

func TestIsLocked_Boundary(t *testing.T) {
	until := int64(1_000_000)
	assert.False(t, IsLocked(time.UnixMilli(until-1), until))
	assert.False(t, IsLocked(time.UnixMilli(until), until), "now == until is unlocked")
	assert.True(t, IsLocked(time.UnixMilli(until+1), until))
	assert.True(t, IsLocked(time.UnixMilli(1), 0))
}

func TestDefaultIsLocked(t *testing.T) {
	g, _, _ := newGate()
	mode, err := g.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Locked, mode)
}

func TestExtendAndExpire(t *testing.T) {
	g, _, c := newGate()
	ctx := context.Background()

	until, err := g.Extend(ctx, 10, "alice")
	require.NoError(t, err)
	assert.Equal(t, c.t.Add(10*time.Minute), until)

	mode, err := g.Evaluate(ctx)
	require.NoError(t, err)
	assert.Equal(t, Unlocked, mode)

	c.advance(10 * time.Minute)
	mode, _ = g.Evaluate(ctx)
	assert.Equal(t, Unlocked, mode, "exactly at the deadline")

	c.advance(time.Millisecond)
	mode, _ = g.Evaluate(ctx)
	assert.Equal(t, Locked, mode)
}

func TestExtend_DefaultMinutes(t *testing.T) {
	for _, minutes := range []int{0, -3} {
		g, _, c := newGate()
		until, err := g.Extend(context.Background(), minutes, "alice")
		require.NoError(t, err)
		assert.Equal(t, c.t.Add(DefaultUnlockMinutes*time.Minute), until, "minutes=%d", minutes)
	}
}

func TestExtend_NoUpperBound(t *testing.T) {
	g, _, c := newGate()
	until, err := g.Extend(context.Background(), 60*24*365, "alice")
	require.NoError(t, err)
	assert.Equal(t, c.t.Add(365*24*time.Hour), until)
}

func TestExtend_HugeDurationStaysUnlocked(t *testing.T) {
	for _, minutes := range []int{200_000_000, 1_000_000_000, math.MaxInt} {
		g, _, c := newGate()
		ctx := context.Background()
		until, err := g.Extend(ctx, minutes, "alice")
		require.NoError(t, err)
		assert.True(t, until.After(c.t), "minutes=%d until=%s", minutes, until)

		mode, err := g.Evaluate(ctx)
		require.NoError(t, err)
		assert.Equal(t, Unlocked, mode, "minutes=%d", minutes)

		st, err := g.Status(ctx)
		require.NoError(t, err)
		assert.Positive(t, st.RemainingMinutes(), "minutes=%d", minutes)
	}
}

func TestDeadlineMS(t *testing.T) {
	now := int64(1_700_000_000_000)
	assert.Equal(t, now+60_000, deadlineMS(now, 1))
	assert.Equal(t, now+200_000_000*60_000, deadlineMS(now, 200_000_000))
	assert.Equal(t, int64(math.MaxInt64), deadlineMS(now, math.MaxInt))
}

func TestClear(t *testing.T) {
	g, _, _ := newGate()
	ctx := context.Background()
	_, err := g.Extend(ctx, 5, "alice")
	require.NoError(t, err)
	require.NoError(t, g.Clear(ctx, "alice"))

	until, err := g.UnlockedUntil(ctx)
	require.NoError(t, err)
	assert.Zero(t, until)
	mode, _ := g.Evaluate(ctx)
	assert.Equal(t, Locked, mode)
}

func TestRecordVersioning(t *testing.T) {
	g, m, c := newGate()
	ctx := context.Background()
	_, err := g.Extend(ctx, 5, "alice")
	require.NoError(t, err)
	require.NoError(t, g.Clear(ctx, "bob"))

	raw, err := m.Get(ctx, StateKey)
	require.NoError(t, err)
	var st State
	require.NoError(t, json.Unmarshal(raw, &st))
	assert.Equal(t, State{UnlockedUntilMS: 0, Version: 2, UpdatedAtMS: c.t.UnixMilli(), UpdatedBy: "bob"}, st)
}

func TestLegacyDecimalValue(t *testing.T) {
	g, m, c := newGate()
	ctx := context.Background()
	future := c.t.Add(time.Minute).UnixMilli()
	require.NoError(t, m.Put(ctx, StateKey, []byte(" 1700000060000\n")))

	until, err := g.UnlockedUntil(ctx)
	require.NoError(t, err)
	assert.Equal(t, future, until)

	_, err = g.Extend(ctx, 1, "alice")
	require.NoError(t, err, "a legacy value is upgraded on the next write")
	raw, _ := m.Get(ctx, StateKey)
	assert.Contains(t, string(raw), `"version":1`)
}

func TestCorruptRecordFailsClosed(t *testing.T) {
	g, m, _ := newGate()
	ctx := context.Background()
	for _, bad := range []string{"{broken", "tomorrow", `{"unlocked_until_ms":"soon"}`} {
		require.NoError(t, m.Put(ctx, StateKey, []byte(bad)))
		mode, err := g.Evaluate(ctx)
		require.NoError(t, err, bad)
		assert.Equal(t, Locked, mode, bad)
	}
}

type brokenKV struct{ kv.Store }

func (brokenKV) Get(context.Context, string) ([]byte, error) { return nil, errors.New("io error") }

func TestStorageFailure(t *testing.T) {
	g := New(brokenKV{kv.NewMemory()})
	ctx := context.Background()

	mode, err := g.Evaluate(ctx)
	assert.ErrorIs(t, err, xerrors.ErrStorage)
	assert.Equal(t, Locked, mode)

	_, err = g.Extend(ctx, 5, "alice")
	assert.ErrorIs(t, err, xerrors.ErrStorage)
	_, err = g.Status(ctx)
	assert.ErrorIs(t, err, xerrors.ErrStorage)
}

func TestStatus(t *testing.T) {
	g, _, c := newGate()
	ctx := context.Background()

	st, err := g.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Locked)
	assert.Zero(t, st.RemainingMinutes())

	_, err = g.Extend(ctx, 3, "alice")
	require.NoError(t, err)
	c.advance(90 * time.Second)

	st, err = g.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Locked)
	assert.Equal(t, 90*time.Second, st.Remaining)
	assert.Equal(t, 2, st.RemainingMinutes())

	c.advance(89 * time.Second)
	st, _ = g.Status(ctx)
	assert.Equal(t, 1, st.RemainingMinutes())
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "locked", Locked.String())
	assert.Equal(t, "unlocked", Unlocked.String())
}
