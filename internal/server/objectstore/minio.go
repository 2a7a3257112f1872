package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var newMinioClient = minio.New

// MinioStore is the minio-go driver.
type MinioStore struct {
	client *minio.Client
	bucket string
	prefix string
	region string
	now    func() time.Time
}

func NewMinioStore(ctx context.Context, cfg Config) (*MinioStore, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	endpoint, secure := minioEndpoint(cfg.Endpoint, cfg.UseSSL)
	client, err := newMinioClient(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	s := &MinioStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.KeyPrefix,
		region: region,
		now:    time.Now,
	}

	if cfg.EnsureBucket {
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// minioEndpoint strips the scheme minio-go does not accept; an explicit
// scheme wins over useSSL.
func minioEndpoint(raw string, useSSL bool) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(raw, "/"), useSSL
	}
	return u.Host, u.Scheme == "https"
}

func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return &TransportError{Op: "bucket exists", Key: s.bucket, Err: err}
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return &TransportError{Op: "make bucket", Key: s.bucket, Err: err}
	}
	return nil
}

func (s *MinioStore) Put(ctx context.Context, data []byte, filename string) (string, error) {
	key := NewKey(s.prefix, filename, s.now().UTC())

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: ContentType(data, filename)})
	if err != nil {
		return "", &TransportError{Op: "put", Key: key, Err: err}
	}
	return key, nil
}

func (s *MinioStore) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.wrap("get", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.wrap("get", key, err)
	}
	return data, nil
}

func (s *MinioStore) Delete(ctx context.Context, key string) (bool, error) {
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isMinioNotFound(err) {
			return false, nil
		}
		return false, &TransportError{Op: "stat", Key: key, Err: err}
	}

	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return false, &TransportError{Op: "delete", Key: key, Err: err}
	}
	return true, nil
}

func (s *MinioStore) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, presignTTL(ttl), url.Values{})
	if err != nil {
		return "", &TransportError{Op: "presign", Key: key, Err: err}
	}
	return u.String(), nil
}

func (s *MinioStore) HealthCheck(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return &TransportError{Op: "bucket exists", Key: s.bucket, Err: err}
	}
	if !exists {
		return &TransportError{Op: "bucket exists", Key: s.bucket, Err: fmt.Errorf("bucket %q does not exist", s.bucket)}
	}
	return nil
}

func (s *MinioStore) wrap(op, key string, err error) error {
	if isMinioNotFound(err) {
		return ErrObjectNotFound
	}
	return &TransportError{Op: op, Key: key, Err: err}
}

func isMinioNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}
