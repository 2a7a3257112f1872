// Package objectstore keeps audio blobs in S3-compatible storage and hands
// out presigned retrieval URLs. Drivers: the AWS SDK (s3), minio-go (minio)
// and an in-process map (memory) for development.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultPresignTTL is used when Presign is called with a non-positive ttl.
const DefaultPresignTTL = time.Hour

// ErrObjectNotFound reports a missing key.
var ErrObjectNotFound = errors.New("object not found")

// TransportError wraps network, auth and server failures.
type TransportError struct {
	Op  string
	Key string
	Err error
}

func (e *TransportError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("object store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("object store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Store is the object storage contract used by the lifecycle service and
// the upload protocol. Keys are generated by Put and are globally unique.
type Store interface {
	Put(ctx context.Context, data []byte, filename string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete returns false when the object did not exist.
	Delete(ctx context.Context, key string) (bool, error)
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)
	HealthCheck(ctx context.Context) error
}

// Config selects and configures a driver.
type Config struct {
	Driver       string
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	KeyPrefix    string
	EnsureBucket bool
}

// New builds the store selected by cfg.Driver.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "s3":
		return NewS3Store(ctx, cfg)
	case "minio":
		return NewMinioStore(ctx, cfg)
	case "memory":
		return NewMemoryStore(cfg.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unsupported object store driver %q", cfg.Driver)
	}
}

func presignTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultPresignTTL
	}
	return ttl
}
