package kv

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exercise runs the behaviour every Store must share.
func exercise(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		_, err := s.Get(ctx, "register:missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("put get overwrite", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "register:a", []byte("one")))
		got, err := s.Get(ctx, "register:a")
		require.NoError(t, err)
		assert.Equal(t, []byte("one"), got)

		require.NoError(t, s.Put(ctx, "register:a", []byte("two")))
		got, err = s.Get(ctx, "register:a")
		require.NoError(t, err)
		assert.Equal(t, []byte("two"), got)
	})

	t.Run("returned slice is a copy", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "register:copy", []byte("abc")))
		got, err := s.Get(ctx, "register:copy")
		require.NoError(t, err)
		got[0] = 'X'
		again, err := s.Get(ctx, "register:copy")
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), again)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "register:gone", []byte("x")))
		require.NoError(t, s.Delete(ctx, "register:gone"))
		_, err := s.Get(ctx, "register:gone")
		assert.ErrorIs(t, err, ErrNotFound)
		require.NoError(t, s.Delete(ctx, "register:gone"), "deleting a missing key")
	})

	t.Run("list by prefix", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "list:", []byte("")))
		require.NoError(t, s.Put(ctx, "list:b", []byte("")))
		require.NoError(t, s.Put(ctx, "list:a*", []byte("")))
		require.NoError(t, s.Put(ctx, "lisu", []byte("")))
		require.NoError(t, s.Put(ctx, "other:a", []byte("")))

		keys, err := s.List(ctx, "list:")
		require.NoError(t, err)
		sort.Strings(keys)
		assert.Equal(t, []string{"list:", "list:a*", "list:b"}, keys)

		keys, err = s.List(ctx, "list:a*")
		require.NoError(t, err)
		assert.Equal(t, []string{"list:a*"}, keys)

		keys, err = s.List(ctx, "nothing:")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, s.Ping(ctx))
	})
}

func TestMemory(t *testing.T) {
	exercise(t, NewMemory())
}

func TestMemory_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewMemory()
	assert.ErrorIs(t, s.Put(ctx, "k", nil), context.Canceled)
	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.Ping(ctx), context.Canceled)
}

func TestPebble(t *testing.T) {
	s, err := OpenPebble(filepath.Join(t.TempDir(), "nested", "kv.pebble"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	exercise(t, s)
}

func TestPebble_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.pebble")
	ctx := context.Background()

	s, err := OpenPebble(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "lock:state", []byte(`{"unlocked_until_ms":42}`)))
	require.NoError(t, s.Close())

	s, err = OpenPebble(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(ctx, "lock:state")
	require.NoError(t, err)
	assert.Equal(t, `{"unlocked_until_ms":42}`, string(got))
}

func TestPrefixUpperBound(t *testing.T) {
	assert.Equal(t, []byte("registes"), prefixUpperBound([]byte("register")))
	assert.Equal(t, []byte("b"), prefixUpperBound([]byte{'a', 0xff}))
	assert.Nil(t, prefixUpperBound([]byte{0xff, 0xff}))
	assert.Nil(t, prefixUpperBound(nil))
}

func TestRedis(t *testing.T) {
	conn, err := net.DialTimeout("tcp", "localhost:6379", 200*time.Millisecond)
	if err != nil {
		t.Skip("no redis on localhost:6379")
	}
	conn.Close()

	// db 15 keeps the test away from anything a developer keeps in db 0
	s, err := OpenRedis(context.Background(), "redis://localhost:6379/15")
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx := context.Background()
		for _, p := range []string{"register:", "list:", "lisu", "other:"} {
			keys, _ := s.List(ctx, p)
			for _, k := range keys {
				_ = s.Delete(ctx, k)
			}
		}
		_ = s.Close()
	})
	exercise(t, s)
}

func TestOpenRedis_BadURL(t *testing.T) {
	_, err := OpenRedis(context.Background(), "http://not-redis")
	require.Error(t, err)
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `register:`, escapeGlob("register:"))
	assert.Equal(t, `a\*b\?\[c\]\\`, escapeGlob(`a*b?[c]\`))
}

type recordingObserver struct {
	calls []string
	errs  []error
}

func (o *recordingObserver) ObserveBackendOp(backend, op string, _ time.Duration, err error) {
	o.calls = append(o.calls, backend+"."+op)
	o.errs = append(o.errs, err)
}

type failingStore struct{ Store }

func (failingStore) Put(context.Context, string, []byte) error { return errors.New("disk full") }

func TestInstrument(t *testing.T) {
	obs := &recordingObserver{}
	s := Instrument(NewMemory(), "memory", obs)
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, s.Put(ctx, "k", []byte("v")))
	_, _ = s.List(ctx, "")
	require.NoError(t, s.Delete(ctx, "k"))
	require.NoError(t, s.Ping(ctx))

	assert.Equal(t, []string{"memory.get", "memory.put", "memory.list", "memory.delete", "memory.ping"}, obs.calls)
	for _, e := range obs.errs {
		assert.NoError(t, e, "not found must not be reported as a failure")
	}

	obs = &recordingObserver{}
	s = Instrument(failingStore{NewMemory()}, "memory", obs)
	require.Error(t, s.Put(ctx, "k", nil))
	require.Len(t, obs.errs, 1)
	assert.EqualError(t, obs.errs[0], "disk full")
}

func TestInstrument_NilObserver(t *testing.T) {
	m := NewMemory()
	assert.Same(t, m, Instrument(m, "memory", nil))
}
