package kv

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble"

	"github.com/ohowe1/clipboard/internal/xerrors"
)

// PebbleStore keeps keys in an embedded Pebble database. Every write is
// synced before returning.
type PebbleStore struct {
	db *pebble.DB
}

func OpenPebble(path string) (*PebbleStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, xerrors.Wrapf(err, "create pebble dir for %s", path)
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, xerrors.Wrapf(err, "open pebble at %s", path)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(err, "pebble get")
	}
	defer closer.Close()
	// v is only valid until closer.Close
	return append([]byte(nil), v...), nil
}

func (s *PebbleStore) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.Set([]byte(key), value, pebble.Sync); err != nil {
		return xerrors.Wrap(err, "pebble set")
	}
	return nil
}

func (s *PebbleStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.Delete([]byte(key), pebble.Sync); err != nil {
		return xerrors.Wrap(err, "pebble delete")
	}
	return nil
}

func (s *PebbleStore) List(ctx context.Context, prefix string) ([]string, error) {
	opts := &pebble.IterOptions{LowerBound: []byte(prefix), UpperBound: prefixUpperBound([]byte(prefix))}
	it, err := s.db.NewIter(opts)
	if err != nil {
		return nil, xerrors.Wrap(err, "pebble iter")
	}
	defer it.Close()

	var keys []string
	for ok := it.First(); ok; ok = it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		keys = append(keys, string(it.Key()))
	}
	if err := it.Error(); err != nil {
		return nil, xerrors.Wrap(err, "pebble iterate")
	}
	return keys, nil
}

// Ping reports whether the database is still open and readable.
func (s *PebbleStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, closer, err := s.db.Get([]byte("lock:state"))
	if err == nil {
		closer.Close()
		return nil
	}
	if errors.Is(err, pebble.ErrNotFound) {
		return nil
	}
	return xerrors.Wrap(err, "pebble ping")
}

func (s *PebbleStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix, or nil when no such key exists.
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
