package objectstore

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3-lines-studio/ssg/internal/core"
)

type putCall struct {
	bucket      string
	key         string
	body        string
	contentType string
}

type fakePutter struct {
	mu    sync.Mutex
	calls []putCall
	err   error
}

func (f *fakePutter) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.err != nil {
		return minio.UploadInfo{}, f.err
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, putCall{bucket: bucket, key: key, body: string(body), contentType: opts.ContentType})
	return minio.UploadInfo{Bucket: bucket, Key: key, Size: size}, nil
}

func TestSinkKey(t *testing.T) {
	tests := []struct {
		prefix string
		rel    string
		want   string
	}{
		{"", "index.html", "index.html"},
		{"", "/blog/post/index.html", "blog/post/index.html"},
		{"site", "index.html", "site/index.html"},
		{"/site/v2/", "about.html", "site/v2/about.html"},
		{"site", "../escape.html", "site/escape.html"},
	}

	for _, tt := range tests {
		t.Run(tt.prefix+"|"+tt.rel, func(t *testing.T) {
			s := NewSinkWithClient(&fakePutter{}, "pages", tt.prefix)
			assert.Equal(t, tt.want, s.Key(tt.rel))
		})
	}
}

func TestSinkWriteFile(t *testing.T) {
	putter := &fakePutter{}
	s := NewSinkWithClient(putter, "pages", "preview")

	require.NoError(t, s.WriteFile(context.Background(), "blog/index.html", []byte("<p>blog</p>")))
	require.NoError(t, s.WriteFile(context.Background(), "csp.conf", []byte("add_header")))

	assert.Equal(t, []putCall{
		{bucket: "pages", key: "preview/blog/index.html", body: "<p>blog</p>", contentType: "text/html; charset=utf-8"},
		{bucket: "pages", key: "preview/csp.conf", body: "add_header", contentType: "text/plain; charset=utf-8"},
	}, putter.calls)
}

func TestSinkWriteFileError(t *testing.T) {
	s := NewSinkWithClient(&fakePutter{err: errors.New("connection refused")}, "pages", "")

	err := s.WriteFile(context.Background(), "index.html", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index.html")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestConfigValidate(t *testing.T) {
	valid := Config{
		Endpoint:  "localhost:9000",
		AccessKey: "a",
		SecretKey: "b",
		Bucket:    "pages",
	}
	require.NoError(t, valid.Validate())
	assert.True(t, valid.Enabled())
	assert.False(t, Config{}.Enabled())

	invalid := valid
	invalid.Endpoint = "http://localhost:9000"
	assert.Error(t, invalid.Validate())

	invalid = valid
	invalid.Bucket = " "
	assert.Error(t, invalid.Validate())

	_, err := NewMinIOClient(Config{})
	assert.ErrorIs(t, err, core.ErrConfig)
}
