package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shouni/go-http-kit/httpkit"
)

// MaxAssetBytes はユーザー素材 1 件あたりの最大サイズです。
const MaxAssetBytes = 20 << 20

// DefaultFetchTimeout は Downloader 未指定時のタイムアウトです。
const DefaultFetchTimeout = 30 * time.Second

// ErrUnsupportedRef は取得方法のない参照であることを示します。
var ErrUnsupportedRef = errors.New("storage: unsupported asset reference")

// Downloader は http(s):// の素材を取得するクライアントです。httpkit.Client が満たします。
// httpkit.Client は要求前に URL を検証し、接続直前にも解決先 IP を検証します。
type Downloader interface {
	GetStream(ctx context.Context, url string) (io.ReadCloser, error)
}

// ObjectSource は自前のストレージが発行した URL を、HTTP を経由せずに読み込みます。
type ObjectSource interface {
	KeyFromURL(rawURL string) (string, bool)
	Read(ctx context.Context, key string) ([]byte, error)
}

// Fetcher はユーザー素材の参照 (gs:// / http(s):// / data: / 自前ストレージの URL) からバイト列を取得します。
type Fetcher struct {
	downloader Downloader
	gcsReader  ObjectReader
	sources    []ObjectSource
}

// NewFetcher は Fetcher を作成します。downloader が nil の場合は、
// ループバック・プライベート・リンクローカル宛てを拒否する httpkit.Client を使います。
// gcsReader は nil でも構いません。sources の URL は HTTP を使わずに直接読み込みます。
func NewFetcher(downloader Downloader, gcsReader ObjectReader, sources ...ObjectSource) *Fetcher {
	if downloader == nil {
		downloader = httpkit.New(DefaultFetchTimeout)
	}
	f := &Fetcher{downloader: downloader, gcsReader: gcsReader}
	for _, src := range sources {
		if src != nil {
			f.sources = append(f.sources, src)
		}
	}
	return f
}

// Fetch は参照先の画像を読み込み、データと MIME タイプを返します。
func (f *Fetcher) Fetch(ctx context.Context, ref string) ([]byte, string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, "", fmt.Errorf("%w: empty reference", ErrUnsupportedRef)
	}

	for _, src := range f.sources {
		if key, ok := src.KeyFromURL(ref); ok {
			data, err := src.Read(ctx, key)
			if err != nil {
				return nil, "", err
			}
			return data, http.DetectContentType(data), nil
		}
	}

	switch {
	case strings.HasPrefix(ref, "data:"):
		return decodeDataURI(ref)
	case strings.HasPrefix(ref, "gs://"):
		return f.fetchGCS(ctx, ref)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return f.fetchHTTP(ctx, ref)
	default:
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedRef, truncateRef(ref))
	}
}

func (f *Fetcher) fetchGCS(ctx context.Context, uri string) ([]byte, string, error) {
	if f.gcsReader == nil {
		return nil, "", fmt.Errorf("%w: gcs reader is not configured", ErrNotConfigured)
	}
	rc, err := f.gcsReader.Open(ctx, uri)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s: %w", uri, err)
	}
	defer rc.Close()

	data, err := readLimited(rc)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", uri, err)
	}
	return data, http.DetectContentType(data), nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL string) ([]byte, string, error) {
	rc, err := f.downloader.GetStream(ctx, rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("download asset %s: %w", truncateRef(rawURL), err)
	}
	defer rc.Close()

	data, err := readLimited(rc)
	if err != nil {
		return nil, "", fmt.Errorf("read asset: %w", err)
	}
	return data, http.DetectContentType(data), nil
}

// decodeDataURI は "data:<mime>;base64,<payload>" 形式を復元します。
func decodeDataURI(ref string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return nil, "", fmt.Errorf("%w: malformed data uri", ErrUnsupportedRef)
	}
	if !strings.HasSuffix(header, ";base64") {
		return nil, "", fmt.Errorf("%w: data uri must be base64 encoded", ErrUnsupportedRef)
	}
	mime := strings.TrimSuffix(header, ";base64")

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode data uri: %w", err)
	}
	if len(data) > MaxAssetBytes {
		return nil, "", fmt.Errorf("asset exceeds %d bytes", MaxAssetBytes)
	}
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	return data, mime, nil
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxAssetBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxAssetBytes {
		return nil, fmt.Errorf("asset exceeds %d bytes", MaxAssetBytes)
	}
	return data, nil
}

// truncateRef はログやエラーに data: URI 全体が入らないよう短くします。
func truncateRef(ref string) string {
	if len(ref) > 64 {
		return ref[:64] + "..."
	}
	return ref
}
