package blob

import (
	"context"
	"errors"
	"io"
	"time"
)

// Observer receives the latency of each backing-store call.
type Observer interface {
	ObserveBackendOp(backend, op string, d time.Duration, err error)
}

type instrumented struct {
	next    Store
	backend string
	obs     Observer
}

// Instrument reports every call on next to obs. Get is timed until the object
// is opened, not until the body is drained.
func Instrument(next Store, backend string, obs Observer) Store {
	if obs == nil {
		return next
	}
	return &instrumented{next: next, backend: backend, obs: obs}
}

func (s *instrumented) observe(op string, start time.Time, err error) {
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	s.obs.ObserveBackendOp(s.backend, op, time.Since(start), err)
}

func (s *instrumented) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	start := time.Now()
	err := s.next.Put(ctx, key, r, size, contentType)
	s.observe("put", start, err)
	return err
}

func (s *instrumented) Get(ctx context.Context, key string) (*Object, error) {
	start := time.Now()
	obj, err := s.next.Get(ctx, key)
	s.observe("get", start, err)
	return obj, err
}

func (s *instrumented) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.next.Delete(ctx, key)
	s.observe("delete", start, err)
	return err
}
