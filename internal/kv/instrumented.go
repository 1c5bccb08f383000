package kv

import (
	"context"
	"errors"
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

// Instrument reports every call on next to obs under the given backend label.
// A missing key is a normal outcome and is not reported as an error.
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

func (s *instrumented) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	b, err := s.next.Get(ctx, key)
	s.observe("get", start, err)
	return b, err
}

func (s *instrumented) Put(ctx context.Context, key string, value []byte) error {
	start := time.Now()
	err := s.next.Put(ctx, key, value)
	s.observe("put", start, err)
	return err
}

func (s *instrumented) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.next.Delete(ctx, key)
	s.observe("delete", start, err)
	return err
}

func (s *instrumented) List(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	keys, err := s.next.List(ctx, prefix)
	s.observe("list", start, err)
	return keys, err
}

func (s *instrumented) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.next.Ping(ctx)
	s.observe("ping", start, err)
	return err
}

func (s *instrumented) Close() error { return s.next.Close() }
