package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Mirror keeps a remote copy of checkpoints, keyed by their project-relative
// slash path.
type Mirror interface {
	Put(ctx context.Context, key, localPath string) error
	Fetch(ctx context.Context, key, localPath string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// MirrorConfig holds the object store connection settings.
type MirrorConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
	Prefix    string
}

// Validate checks that the connection settings are usable.
func (c MirrorConfig) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("mirror endpoint is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("mirror bucket is required")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return errors.New("mirror access_key and secret_key are required")
	}
	return nil
}

// MinioMirror stores checkpoints in an S3-compatible bucket.
type MinioMirror struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinioMirror connects to the object store and creates the bucket when
// it does not exist yet.
func NewMinioMirror(ctx context.Context, cfg MirrorConfig) (*MinioMirror, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("creating bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &MinioMirror{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
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
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

func (m *MinioMirror) objectKey(key string) string {
	if m.prefix == "" {
		return key
	}
	return path.Join(m.prefix, key)
}

// Put uploads the checkpoint at localPath.
func (m *MinioMirror) Put(ctx context.Context, key, localPath string) error {
	if m == nil || m.client == nil {
		return fmt.Errorf("minio mirror not initialized")
	}
	_, err := m.client.FPutObject(ctx, m.bucket, m.objectKey(key), localPath,
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

// Fetch downloads key to localPath, creating parent directories.
func (m *MinioMirror) Fetch(ctx context.Context, key, localPath string) error {
	if m == nil || m.client == nil {
		return fmt.Errorf("minio mirror not initialized")
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", key, err)
	}
	if err := m.client.FGetObject(ctx, m.bucket, m.objectKey(key), localPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("downloading %s: %w", key, err)
	}
	return nil
}

// Exists reports whether key is present in the bucket.
func (m *MinioMirror) Exists(ctx context.Context, key string) (bool, error) {
	if m == nil || m.client == nil {
		return false, fmt.Errorf("minio mirror not initialized")
	}
	statCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := m.client.StatObject(statCtx, m.bucket, m.objectKey(key), minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, fmt.Errorf("checking %s: %w", key, err)
}

// Restore fetches key into localPath when the local file is absent and the
// mirror has a copy. It reports whether a file was restored. A nil mirror
// restores nothing.
func Restore(ctx context.Context, m Mirror, key, localPath string) (bool, error) {
	if m == nil {
		return false, nil
	}
	if _, err := os.Stat(localPath); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}
	ok, err := m.Exists(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := m.Fetch(ctx, key, localPath); err != nil {
		return false, err
	}
	return true, nil
}
