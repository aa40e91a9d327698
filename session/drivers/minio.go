package drivers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/creastat/chatstore/session"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const defaultBucket = "chat-snapshots"

// MinIOStore implements session.Store on S3-compatible object storage.
//
// Object storage has no compare-and-swap, so the version check is only
// atomic within one process: Save holds a mutex across read and write.
type MinIOStore struct {
	client *minio.Client
	bucket string
	prefix string
	codec  *session.Codec

	mu sync.Mutex
}

// NewMinIOStore connects to the endpoint and creates the bucket if it does not exist.
func NewMinIOStore(ctx context.Context, cfg session.MinIOConfig, codec *session.Codec) (*MinIOStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required: %w", session.ErrInvalidConfig)
	}
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = defaultBucket
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &MinIOStore{client: client, bucket: bucket, prefix: cfg.Prefix, codec: codec}, nil
}

// Load implements session.Store.
func (s *MinIOStore) Load(ctx context.Context, key string) (*session.Snapshot, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.object(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return s.codec.Decode(data)
}

// Save implements session.Store.
func (s *MinIOStore) Save(ctx context.Context, key string, snap *session.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.Load(ctx, key)
	if err != nil {
		return err
	}
	var stored int64
	if existing != nil {
		stored = existing.Version
	}
	if stored != snap.Version {
		return session.ErrVersionConflict
	}

	next := snap.Clone()
	next.Version++
	next.SavedAt = time.Now().UTC()

	data, err := s.codec.Encode(next)
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, s.bucket, s.object(key), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return fmt.Errorf("failed to upload snapshot: %w", err)
	}

	snap.Version = next.Version
	snap.SavedAt = next.SavedAt
	return nil
}

// Delete implements session.Store.
func (s *MinIOStore) Delete(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucket, s.object(key), minio.RemoveObjectOptions{})
}

// Close implements session.Store.
func (s *MinIOStore) Close() error {
	return nil
}

func (s *MinIOStore) object(key string) string {
	return path.Join(s.prefix, key+".snapshot")
}

func notFoundAsNil(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return nil
	}
	return err
}
