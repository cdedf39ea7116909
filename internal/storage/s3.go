package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type S3Opts func(c *s3Config)

type s3Config struct {
	endpoint        string
	bucket          string
	accessKey       string
	secretAccessKey string
	publicBaseURL   string
	useSSL          bool
}

// S3Store は S3 互換バケットに生成物を保存します。
type S3Store struct {
	cfg    *s3Config
	client *minio.Client
}

func NewS3Store(opts ...S3Opts) (*S3Store, error) {
	cfg := &s3Config{useSSL: true}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.endpoint == "" || cfg.bucket == "" {
		return nil, fmt.Errorf("%w: s3 endpoint and bucket are required", ErrNotConfigured)
	}

	client, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.accessKey, cfg.secretAccessKey, ""),
		Secure: cfg.useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}

	return &S3Store{cfg: cfg, client: client}, nil
}

// Upload はオブジェクトを保存し、公開 URL を返します。
func (s *S3Store) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	_, err = s.client.PutObject(ctx, s.cfg.bucket, cleanKey, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", cleanKey, err)
	}
	return s.objectURL(cleanKey), nil
}

// KeyFromURL は rawURL がこのストアの発行した URL であればオブジェクトキーを返します。
func (s *S3Store) KeyFromURL(rawURL string) (string, bool) {
	if s == nil {
		return "", false
	}
	prefix := s.objectURL("")
	if !strings.HasPrefix(rawURL, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(rawURL, prefix)
	return key, key != ""
}

// Read はバケットからオブジェクトを読み込みます。
func (s *S3Store) Read(ctx context.Context, key string) ([]byte, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.cfg.bucket, cleanKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", cleanKey, err)
	}
	defer obj.Close()

	data, err := readLimited(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", cleanKey, err)
	}
	return data, nil
}

func (s *S3Store) objectURL(key string) string {
	if s.cfg.publicBaseURL != "" {
		return strings.TrimRight(s.cfg.publicBaseURL, "/") + "/" + key
	}
	return strings.TrimRight(s.client.EndpointURL().String(), "/") + "/" + s.cfg.bucket + "/" + key
}

func WithS3Endpoint(endpoint string) S3Opts {
	return func(c *s3Config) {
		c.endpoint = endpoint
	}
}

func WithS3Bucket(bucket string) S3Opts {
	return func(c *s3Config) {
		c.bucket = bucket
	}
}

func WithS3Credentials(accessKey, secretKey string) S3Opts {
	return func(c *s3Config) {
		c.accessKey = accessKey
		c.secretAccessKey = secretKey
	}
}

func WithS3SSL(useSSL bool) S3Opts {
	return func(c *s3Config) {
		c.useSSL = useSSL
	}
}

func WithS3PublicBaseURL(baseURL string) S3Opts {
	return func(c *s3Config) {
		c.publicBaseURL = baseURL
	}
}
