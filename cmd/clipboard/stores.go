package main

import (
	"context"
	"fmt"

	"github.com/ohowe1/clipboard/internal/blob"
	"github.com/ohowe1/clipboard/internal/cfg"
	"github.com/ohowe1/clipboard/internal/kv"
	"github.com/ohowe1/clipboard/internal/metrics"
)

func openKV(ctx context.Context, conf cfg.App, m *metrics.ServerMetrics) (kv.Store, error) {
	var (
		s   kv.Store
		err error
	)
	switch conf.KVBackend {
	case "pebble":
		s, err = kv.OpenPebble(conf.PebblePath)
	case "redis":
		s, err = kv.OpenRedis(ctx, conf.RedisURL)
	case "memory":
		s = kv.NewMemory()
	default:
		return nil, fmt.Errorf("unknown kv backend %q", conf.KVBackend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", conf.KVBackend, err)
	}
	return kv.Instrument(s, conf.KVBackend, m), nil
}

// blobPinger is implemented by remote blob stores that can be health checked.
type blobPinger interface {
	Ping(ctx context.Context) error
}

func openBlob(ctx context.Context, conf cfg.App, secretKey string, m *metrics.ServerMetrics) (blob.Store, blobPinger, error) {
	switch conf.BlobBackend {
	case "memory":
		return blob.Instrument(blob.NewMemory(), "memory", m), nil, nil
	case "s3":
		s, err := blob.OpenS3(ctx, blob.S3Config{
			Bucket:          conf.S3Bucket,
			Prefix:          conf.S3Prefix,
			Region:          conf.S3Region,
			Endpoint:        conf.S3Endpoint,
			PathStyle:       conf.S3PathStyle,
			AccessKeyID:     conf.S3AccessKeyID,
			SecretAccessKey: secretKey,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open s3 store: %w", err)
		}
		return blob.Instrument(s, "s3", m), s, nil
	default:
		return nil, nil, fmt.Errorf("unknown blob backend %q", conf.BlobBackend)
	}
}
