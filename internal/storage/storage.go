// Package storage は生成したページ画像の永続化と、ユーザー素材の取得を担います。
// バックエンドは GCS (go-remote-io)、S3 互換 (minio)、ローカルファイルシステムの 3 種類です。
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNotConfigured はバックエンドが設定されていない状態で呼び出されたことを示します。
var ErrNotConfigured = errors.New("storage: no store configured")

// ArtifactStore は生成物を保存し、参照用の URL を返します。
type ArtifactStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// ObjectWriter は remoteio.OutputWriter のうち、アップロードに使う部分です。
type ObjectWriter interface {
	Write(ctx context.Context, uri string, r io.Reader, contentType string) error
}

// ObjectReader は remoteio.InputReader のうち、素材取得に使う部分です。
type ObjectReader interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

// URLSigner は remoteio.URLSigner のうち、署名付き URL の発行に使う部分です。
type URLSigner interface {
	GenerateSignedURL(ctx context.Context, uri string, method string, expiry time.Duration) (string, error)
}

// URLResolver は保存済み URL を、ブラウザが直接取得できる URL に変換します。
type URLResolver struct {
	signer URLSigner
	expiry time.Duration
}

// NewURLResolver は gs:// の URL に署名する Resolver を作成します。signer が nil の場合は変換しません。
func NewURLResolver(signer URLSigner, expiry time.Duration) *URLResolver {
	return &URLResolver{signer: signer, expiry: expiry}
}

// Resolve は gs:// URI を署名付き URL に変換します。それ以外の URL はそのまま返します。
func (r *URLResolver) Resolve(ctx context.Context, storedURL string) (string, error) {
	if !strings.HasPrefix(storedURL, "gs://") {
		return storedURL, nil
	}
	if r == nil || r.signer == nil {
		return "", fmt.Errorf("%w: cannot sign %s", ErrNotConfigured, storedURL)
	}
	signed, err := r.signer.GenerateSignedURL(ctx, storedURL, http.MethodGet, r.expiry)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", storedURL, err)
	}
	return signed, nil
}

// ExtensionFor はコンテンツタイプに対応するファイル拡張子を返します。
func ExtensionFor(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "png"
	}
}
