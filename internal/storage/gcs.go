package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
)

// GCSStore は go-remote-io の OutputWriter を使って GCS にアップロードします。
// 戻り値は gs:// URI で、閲覧時に URLResolver が署名付き URL に変換します。
type GCSStore struct {
	writer ObjectWriter
	bucket string
}

// NewGCSStore は GCSStore を作成します。
func NewGCSStore(writer ObjectWriter, bucket string) (*GCSStore, error) {
	if writer == nil {
		return nil, fmt.Errorf("%w: gcs writer is nil", ErrNotConfigured)
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, fmt.Errorf("%w: gcs bucket is empty", ErrNotConfigured)
	}
	return &GCSStore{writer: writer, bucket: bucket}, nil
}

// Upload は key を gs://<bucket>/<key> に書き込みます。
func (s *GCSStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	uri := fmt.Sprintf("gs://%s/%s", s.bucket, cleanKey)
	if err := s.writer.Write(ctx, uri, bytes.NewReader(data), contentType); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", uri, err)
	}
	return uri, nil
}
