package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"graphic-novel-web/internal/builder"
	"graphic-novel-web/internal/domain"
	"graphic-novel-web/internal/metrics"
	"graphic-novel-web/internal/server/handlers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubService struct{}

func (stubService) Submit(context.Context, domain.CreateRequest) (*domain.Job, error) {
	return &domain.Job{ID: "task-1", Status: domain.StatusPending, Cost: 100}, nil
}

func (stubService) Status(_ context.Context, id string) (*domain.Job, error) {
	return &domain.Job{ID: id, Status: domain.StatusAnalyzing, TotalPages: 4}, nil
}

func (stubService) Novel(context.Context, string) (*domain.Job, error) {
	return nil, domain.ErrNotFound
}

func (stubService) ListByOwner(context.Context, string) ([]*domain.Job, error) {
	return nil, nil
}

func (stubService) Cancel(context.Context, string) error {
	return nil
}

type passthroughResolver struct{}

func (passthroughResolver) Resolve(_ context.Context, u string) (string, error) {
	return u, nil
}

func newRouter(t *testing.T, opts RouterOptions) http.Handler {
	t.Helper()
	api, err := handlers.NewHandler(stubService{}, nil, passthroughResolver{}, nil)
	require.NoError(t, err)
	return NewRouter(&builder.AppHandlers{API: api}, opts)
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestRouter_APIRoutes(t *testing.T) {
	router := newRouter(t, RouterOptions{})

	rec := get(router, "/api/graphic-novels/task-1/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ANALYZING"`)

	rec = httptest.NewRecorder()
	body := `{"ownerId":"kid-1","assets":[{"slot":1,"imageUrl":"https://img.test/a.png"}],"totalPages":4}`
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/graphic-novels", strings.NewReader(body)))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	assert.Equal(t, http.StatusNotFound, get(router, "/api/graphic-novels/task-1").Code)
}

func TestRouter_WorkerRouteAbsentInLocalMode(t *testing.T) {
	router := newRouter(t, RouterOptions{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tasks/generate", strings.NewReader(`{"task_id":"x"}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_OpsRoutes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "output", "task-1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "output", "task-1", "page_01.png"), []byte("png-bytes"), 0o644))

	router := newRouter(t, RouterOptions{Metrics: metrics.NewRecorder(), FilesDir: dir})

	rec := get(router, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = get(router, "/files/output/task-1/page_01.png")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png-bytes", rec.Body.String())

	rec = get(router, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "graphic_novel_http_requests_total")
}
