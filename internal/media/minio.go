package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("media-store")

type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// MinioStore keeps videos in an object store bucket. Handles are still only
// valid for this process.
type MinioStore struct {
	*index
	client    *minio.Client
	bucket    string
	keyPrefix string
}

func NewMinioStore(ctx context.Context, opts MinioOptions, urlPrefix string) (*MinioStore, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	bucket := opts.Bucket
	if bucket == "" {
		bucket = "vidgen"
	}

	s := &MinioStore{
		index:     newIndex(urlPrefix),
		client:    client,
		bucket:    bucket,
		keyPrefix: strings.Trim(opts.Prefix, "/"),
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MinioStore) ensureBucket(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "minio_ensure_bucket")
	defer span.End()
	span.SetAttributes(attribute.String("minio.bucket", s.bucket))

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

func (s *MinioStore) objectKey(id string) string {
	if s.keyPrefix == "" {
		return id + ".bin"
	}
	return s.keyPrefix + "/" + id + ".bin"
}

func (s *MinioStore) Put(ctx context.Context, obj Object) (Handle, error) {
	h := s.issue(obj)
	key := s.objectKey(h.ID)

	ctx, span := tracer.Start(ctx, "minio_upload")
	defer span.End()
	span.SetAttributes(
		attribute.String("minio.bucket", s.bucket),
		attribute.String("minio.key", key),
		attribute.Int("minio.size", len(obj.Data)),
	)

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(obj.Data), int64(len(obj.Data)), minio.PutObjectOptions{
		ContentType: h.ContentType,
	})
	if err != nil {
		span.RecordError(err)
		return Handle{}, fmt.Errorf("failed to upload to MinIO: %w", err)
	}

	s.add(h)
	return h, nil
}

func (s *MinioStore) Open(ctx context.Context, id string) (Object, error) {
	h, ok := s.get(id)
	if !ok {
		return Object{}, ErrNotFound
	}
	key := s.objectKey(id)

	ctx, span := tracer.Start(ctx, "minio_download")
	defer span.End()
	span.SetAttributes(
		attribute.String("minio.bucket", s.bucket),
		attribute.String("minio.key", key),
	)

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		span.RecordError(err)
		return Object{}, fmt.Errorf("failed to get object from MinIO: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		span.RecordError(err)
		return Object{}, fmt.Errorf("failed to read object data: %w", err)
	}
	return Object{Data: data, ContentType: h.ContentType, Filename: h.Filename}, nil
}

func (s *MinioStore) Release(ctx context.Context, id string) error {
	if _, ok := s.remove(id); !ok {
		return ErrNotFound
	}
	key := s.objectKey(id)

	ctx, span := tracer.Start(ctx, "minio_delete")
	defer span.End()
	span.SetAttributes(
		attribute.String("minio.bucket", s.bucket),
		attribute.String("minio.key", key),
	)

	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete object from MinIO: %w", err)
	}
	return nil
}

var _ Store = (*MinioStore)(nil)
