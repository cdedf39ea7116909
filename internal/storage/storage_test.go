package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shouni/go-http-kit/httpkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

type fakeWriter struct {
	uri         string
	data        []byte
	contentType string
	err         error
}

func (w *fakeWriter) Write(_ context.Context, uri string, r io.Reader, contentType string) error {
	if w.err != nil {
		return w.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	w.uri, w.data, w.contentType = uri, data, contentType
	return nil
}

type fakeReader struct {
	objects map[string][]byte
}

func (r *fakeReader) Open(_ context.Context, uri string) (io.ReadCloser, error) {
	data, ok := r.objects[uri]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type fakeSigner struct {
	calls int
}

func (s *fakeSigner) GenerateSignedURL(_ context.Context, uri, method string, expiry time.Duration) (string, error) {
	s.calls++
	return "https://signed.example/" + strings.TrimPrefix(uri, "gs://") + "?m=" + method + "&e=" + expiry.String(), nil
}

func TestFileStoreUploadAndRead(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(t.TempDir(), "http://localhost:8080/")
	require.NoError(t, err)

	url, err := fs.Upload(ctx, "output/t1/pages/page_01.png", pngHeader, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/files/output/t1/pages/page_01.png", url)

	key, ok := fs.KeyFromURL(url)
	require.True(t, ok)
	data, err := fs.Read(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)

	_, ok = fs.KeyFromURL("https://elsewhere.example/files/x.png")
	assert.False(t, ok)
}

func TestSanitizeKeyRejectsTraversal(t *testing.T) {
	for _, key := range []string{"", "   ", "..", "../etc/passwd", "a/../../b"} {
		_, err := sanitizeKey(key)
		assert.Error(t, err, key)
	}
	cleaned, err := sanitizeKey(`\output\t1\page.png`)
	require.NoError(t, err)
	assert.Equal(t, "output/t1/page.png", cleaned)
}

func TestGCSStoreUpload(t *testing.T) {
	w := &fakeWriter{}
	s, err := NewGCSStore(w, "bucket")
	require.NoError(t, err)

	uri, err := s.Upload(context.Background(), "output/t1/pages/page_02.png", pngHeader, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "gs://bucket/output/t1/pages/page_02.png", uri)
	assert.Equal(t, uri, w.uri)
	assert.Equal(t, "image/png", w.contentType)

	w.err = errors.New("quota")
	_, err = s.Upload(context.Background(), "k.png", pngHeader, "image/png")
	assert.Error(t, err)

	_, err = NewGCSStore(w, "")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestURLResolver(t *testing.T) {
	ctx := context.Background()
	signer := &fakeSigner{}
	r := NewURLResolver(signer, 15*time.Minute)

	got, err := r.Resolve(ctx, "https://cdn.example/p.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/p.png", got)
	assert.Zero(t, signer.calls)

	got, err = r.Resolve(ctx, "gs://bucket/p.png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "https://signed.example/bucket/p.png"))
	assert.Equal(t, 1, signer.calls)

	_, err = NewURLResolver(nil, time.Minute).Resolve(ctx, "gs://bucket/p.png")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestFetcherSources(t *testing.T) {
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngHeader)
	}))
	defer srv.Close()

	files, err := NewFileStore(t.TempDir(), "http://app.local")
	require.NoError(t, err)
	localURL, err := files.Upload(ctx, "uploads/a.png", pngHeader, "image/png")
	require.NoError(t, err)

	// テストサーバーはループバック上にあるため、ネットワーク検証を外したクライアントを使います。
	local := httpkit.New(5*time.Second, httpkit.WithSkipNetworkValidation(true), httpkit.WithMaxRetries(0))
	f := NewFetcher(local, &fakeReader{objects: map[string][]byte{"gs://b/a.png": pngHeader}}, files)

	data, mime, err := f.Fetch(ctx, srv.URL+"/a.png")
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)
	assert.Equal(t, "image/png", mime)

	_, _, err = f.Fetch(ctx, srv.URL+"/missing.png")
	assert.Error(t, err)

	data, _, err = f.Fetch(ctx, "gs://b/a.png")
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)

	_, _, err = f.Fetch(ctx, "gs://b/none.png")
	assert.Error(t, err)

	data, _, err = f.Fetch(ctx, localURL)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)

	dataURI := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngHeader)
	data, mime, err = f.Fetch(ctx, dataURI)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)
	assert.Equal(t, "image/png", mime)

	_, _, err = f.Fetch(ctx, "ftp://example.com/a.png")
	assert.ErrorIs(t, err, ErrUnsupportedRef)

	_, _, err = f.Fetch(ctx, "data:image/png,notbase64")
	assert.ErrorIs(t, err, ErrUnsupportedRef)
}

func TestFetcherRefusesInternalAddresses(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("internal-metadata-secret"))
	}))
	defer srv.Close()

	f := NewFetcher(nil, nil, nil)
	for _, ref := range []string{
		srv.URL + "/computeMetadata/v1/",
		"http://169.254.169.254/computeMetadata/v1/",
		"http://10.0.0.8/a.png",
		"http://[::1]/a.png",
	} {
		data, _, err := f.Fetch(context.Background(), ref)
		assert.Error(t, err, ref)
		assert.Nil(t, data, ref)
	}
	assert.Zero(t, hits)
}

func TestFetcherWithoutGCSReader(t *testing.T) {
	_, _, err := NewFetcher(nil, nil, nil).Fetch(context.Background(), "gs://b/a.png")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, "jpg", ExtensionFor("image/jpeg"))
	assert.Equal(t, "webp", ExtensionFor("image/webp"))
	assert.Equal(t, "png", ExtensionFor(""))
}
