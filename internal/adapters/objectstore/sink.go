package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/3-lines-studio/ssg/internal/core"
)

const DefaultRegion = "us-east-1"

// Putter is the subset of *minio.Client used for publishing.
type Putter interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Sink uploads artifacts as objects under a key prefix.
type Sink struct {
	client Putter
	bucket string
	prefix string
}

func NewMinIOClient(cfg Config) (*minio.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: publish: %v", core.ErrConfig, err)
	}

	region := cfg.Region
	if region == "" {
		region = DefaultRegion
	}

	return minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    region,
		Transport: newTransport(),
	})
}

// NewSink connects to the configured endpoint and checks that the bucket exists.
func NewSink(ctx context.Context, cfg Config) (*Sink, error) {
	client, err := NewMinIOClient(cfg)
	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("bucket exists: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: bucket missing: %s", core.ErrConfig, cfg.Bucket)
	}

	return NewSinkWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

func NewSinkWithClient(client Putter, bucket, prefix string) *Sink {
	return &Sink{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// Key maps a slash-separated artifact path to its object key.
func (s *Sink) Key(rel string) string {
	rel = strings.TrimPrefix(path.Clean("/"+rel), "/")
	if s.prefix == "" {
		return rel
	}
	return s.prefix + "/" + rel
}

func (s *Sink) WriteFile(ctx context.Context, rel string, data []byte) error {
	key := s.Key(rel)
	_, err := s.client.PutObject(
		ctx,
		s.bucket,
		key,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ContentType: core.GetContentType(rel)},
	)
	if err != nil {
		return fmt.Errorf("failed to upload %s to %s: %w", key, s.bucket, err)
	}
	return nil
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
