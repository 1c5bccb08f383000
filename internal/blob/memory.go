package blob

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/ohowe1/clipboard/internal/xerrors"
)

type memObject struct {
	data        []byte
	contentType string
}

// Memory is a process-local Store.
type Memory struct {
	mu   sync.RWMutex
	objs map[string]memObject
}

func NewMemory() *Memory {
	return &Memory{objs: make(map[string]memObject)}
}

func (s *Memory) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return xerrors.Wrap(err, "read blob body")
	}
	if size >= 0 && int64(len(data)) != size {
		return xerrors.Newf("blob size mismatch: declared %d, read %d", size, len(data))
	}
	s.mu.Lock()
	s.objs[key] = memObject{data: data, contentType: contentType}
	s.mu.Unlock()
	return nil
}

func (s *Memory) Get(ctx context.Context, key string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	o, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return &Object{
		Body:        io.NopCloser(bytes.NewReader(o.data)),
		ContentType: o.contentType,
		Size:        int64(len(o.data)),
	}, nil
}

func (s *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.objs, key)
	s.mu.Unlock()
	return nil
}

// Len reports the number of stored objects.
func (s *Memory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objs)
}
