// Package register maps register names to stored content.
//
// Metadata lives in the key-value store as a content record; file bytes live
// in the blob store. Storing a file writes the blob first and the metadata
// second, so a crash in between leaves an unreferenced blob rather than a
// record pointing at nothing. There is no transaction across the two stores
// and concurrent writers to one register race, last write wins.
package register

import (
	"context"
	"errors"
	"io"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ohowe1/clipboard/internal/blob"
	"github.com/ohowe1/clipboard/internal/content"
	"github.com/ohowe1/clipboard/internal/kv"
	"github.com/ohowe1/clipboard/internal/otelx"
	"github.com/ohowe1/clipboard/internal/xerrors"
)

var (
	// ErrEmpty means the register holds nothing readable. Unparseable
	// records are reported as empty too.
	ErrEmpty = xerrors.Mark(errors.New("register is empty"), xerrors.ErrNotFound)
	// ErrBlobMissing means a file record exists but its bytes do not.
	ErrBlobMissing = xerrors.Mark(errors.New("file not found"), xerrors.ErrNotFound)
)

type Store struct {
	kv    kv.Store
	blobs blob.Store
}

func New(kvs kv.Store, blobs blob.Store) *Store {
	return &Store{kv: kvs, blobs: blobs}
}

func storageErr(err error, msg string) error {
	return xerrors.Mark(xerrors.Wrap(err, msg), xerrors.ErrStorage)
}

func startSpan(ctx context.Context, op, name string) (context.Context, trace.Span) {
	// register names are user data; only their length is recorded
	return otelx.Tracer("register").Start(ctx, "register."+op,
		trace.WithAttributes(attribute.Int("register.name_length", len(name))))
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, xerrors.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Get returns the content of a register, or ErrEmpty.
func (s *Store) Get(ctx context.Context, name string) (c content.Content, err error) {
	ctx, span := startSpan(ctx, "get", name)
	defer func() { endSpan(span, err) }()

	c, err = s.load(ctx, name)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("content.kind", string(c.Kind())))
	return c, nil
}

func (s *Store) load(ctx context.Context, name string) (content.Content, error) {
	raw, err := s.kv.Get(ctx, MetaKey(name))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, storageErr(err, "read register metadata")
	}
	c, err := content.Unmarshal(raw)
	if err != nil {
		return nil, ErrEmpty
	}
	return c, nil
}

// Put stores text or link content. Files go through PutFile.
func (s *Store) Put(ctx context.Context, name string, c content.Content) (err error) {
	ctx, span := startSpan(ctx, "put", name)
	defer func() { endSpan(span, err) }()

	switch c.(type) {
	case content.Text, content.Link:
	case content.File:
		return xerrors.New("register: file content must be stored with PutFile")
	default:
		return xerrors.Newf("register: unsupported content %T", c)
	}
	span.SetAttributes(attribute.String("content.kind", string(c.Kind())))
	return s.writeMeta(ctx, name, c)
}

func (s *Store) writeMeta(ctx context.Context, name string, c content.Content) error {
	raw, err := content.Marshal(c)
	if err != nil {
		return err
	}
	if err := s.kv.Put(ctx, MetaKey(name), raw); err != nil {
		return storageErr(err, "write register metadata")
	}
	return nil
}

// PutFile uploads size bytes from r and then points the register at them.
func (s *Store) PutFile(ctx context.Context, name string, r io.Reader, size int64, fileName, mimeType string) (f content.File, err error) {
	ctx, span := startSpan(ctx, "put_file", name)
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("content.kind", string(content.KindFile)), attribute.Int64("file.size", size))

	f = content.NewFile(BlobKey(name), fileName, mimeType)
	if err := s.blobs.Put(ctx, f.BlobKey, r, size, mimeType); err != nil {
		return content.File{}, storageErr(err, "write file blob")
	}
	if err := s.writeMeta(ctx, name, f); err != nil {
		return content.File{}, err
	}
	return f, nil
}

// OpenFile streams the bytes behind f. The caller closes the body.
func (s *Store) OpenFile(ctx context.Context, f content.File) (obj *blob.Object, err error) {
	ctx, span := otelx.Tracer("register").Start(ctx, "register.open_file")
	defer func() { endSpan(span, err) }()

	obj, err = s.blobs.Get(ctx, f.BlobKey)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, ErrBlobMissing
	}
	if err != nil {
		return nil, storageErr(err, "read file blob")
	}
	if obj.ContentType == "" {
		obj.ContentType = f.MimeType
	}
	return obj, nil
}

// Remove deletes a register and, for file content, its blob. Removing an
// empty register is not an error.
func (s *Store) Remove(ctx context.Context, name string) (err error) {
	ctx, span := startSpan(ctx, "remove", name)
	defer func() { endSpan(span, err) }()

	prev, err := s.load(ctx, name)
	if err != nil && !errors.Is(err, ErrEmpty) {
		return err
	}
	if err := s.kv.Delete(ctx, MetaKey(name)); err != nil {
		return storageErr(err, "delete register metadata")
	}
	if f, ok := prev.(content.File); ok {
		if err := s.blobs.Delete(ctx, f.BlobKey); err != nil && !errors.Is(err, blob.ErrNotFound) {
			return storageErr(err, "delete file blob")
		}
	}
	return nil
}

// List returns the names of every populated register, sorted.
func (s *Store) List(ctx context.Context) (names []string, err error) {
	ctx, span := otelx.Tracer("register").Start(ctx, "register.list")
	defer func() { endSpan(span, err) }()

	keys, err := s.kv.List(ctx, metaPrefix)
	if err != nil {
		return nil, storageErr(err, "list registers")
	}
	names = make([]string, 0, len(keys))
	for _, k := range keys {
		if n, ok := NameFromKey(k); ok {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	span.SetAttributes(attribute.Int("register.count", len(names)))
	return names, nil
}
