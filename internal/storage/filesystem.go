package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalFilesPrefix はサーバーが FileStore の内容を公開する URL パスです。
const LocalFilesPrefix = "/files/"

// FileStore は生成物をローカルファイルシステムに保存します。
// オブジェクトストレージを使わない開発・テスト環境向けです。
type FileStore struct {
	basePath      string
	publicBaseURL string
}

// NewFileStore は basePath を起点とする FileStore を作成します。
// 保存したファイルの URL は publicBaseURL + LocalFilesPrefix + key になります。
func NewFileStore(basePath, publicBaseURL string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

// BasePath は保存先のルートディレクトリを返します。
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Write は key の位置にデータを書き込み、正規化後のキーを返します。
// キーはルート外へ出ないよう正規化されます。
func (s *FileStore) Write(ctx context.Context, key string, data []byte) (string, error) {
	if s == nil {
		return "", ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	return cleanKey, nil
}

// Upload は生成物を書き込み、サーバーが配信する URL を返します。
func (s *FileStore) Upload(ctx context.Context, key string, data []byte, _ string) (string, error) {
	cleanKey, err := s.Write(ctx, key, data)
	if err != nil {
		return "", err
	}
	return s.publicBaseURL + LocalFilesPrefix + cleanKey, nil
}

// Read は key に保存されたデータを返します。
func (s *FileStore) Read(ctx context.Context, key string) ([]byte, error) {
	if s == nil {
		return nil, ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.basePath, filepath.FromSlash(cleanKey)))
	if err != nil {
		return nil, fmt.Errorf("storage: read file: %w", err)
	}
	return data, nil
}

// KeyFromURL は rawURL がこのストアの URL であればキーを返します。
func (s *FileStore) KeyFromURL(rawURL string) (string, bool) {
	if s == nil {
		return "", false
	}
	rest := rawURL
	if s.publicBaseURL != "" {
		if !strings.HasPrefix(rest, s.publicBaseURL) {
			return "", false
		}
		rest = strings.TrimPrefix(rest, s.publicBaseURL)
	}
	if !strings.HasPrefix(rest, LocalFilesPrefix) {
		return "", false
	}
	return strings.TrimPrefix(rest, LocalFilesPrefix), true
}

// sanitizeKey はキーを正規化し、ルート外を指すキーを拒否します。
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}
