package server

import (
	"net/http"
	"strings"

	"graphic-novel-web/internal/builder"
	"graphic-novel-web/internal/metrics"
	"graphic-novel-web/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// RouterOptions はルーター構築時の追加設定です。
type RouterOptions struct {
	// Metrics が設定されている場合、/metrics を公開し HTTP メトリクスを記録します。
	Metrics *metrics.Recorder
	// FilesDir はローカルストレージの公開ディレクトリです。空の場合は公開しません。
	FilesDir string
}

// NewRouter は、ミドルウェアとルーティングを統合した http.Handler を構築します。
func NewRouter(h *builder.AppHandlers, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	setupCommonMiddleware(r, opts.Metrics)
	setupRoutes(r, h)
	setupOpsRoutes(r, opts)

	return r
}

func setupCommonMiddleware(r *chi.Mux, rec *metrics.Recorder) {
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.CleanPath)
	if rec != nil {
		r.Use(metrics.NewMiddleware(rec.Registry()).Handler)
	}
}

func setupRoutes(r chi.Router, h *builder.AppHandlers) {
	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Route("/graphic-novels", func(r chi.Router) {
			r.Post("/", h.API.HandleSubmit)
			r.Route("/{taskID}", func(r chi.Router) {
				r.Get("/", h.API.HandleNovel)
				r.Get("/status", h.API.HandleStatus)
				r.Post("/cancel", h.API.HandleCancel)
				r.Get("/pages/{page}/image", h.API.HandlePageImage)
			})
		})
		r.Get("/owners/{ownerID}/graphic-novels", h.API.HandleList)
		r.Get("/owners/{ownerID}/credits", h.API.HandleCredits)
		r.Post("/assets/coach", h.API.HandleCoach)
	})

	// --- Cloud Tasks 専用ルート (Worker 用) ---
	if h.Worker != nil && h.Auth != nil {
		r.Group(func(r chi.Router) {
			r.Use(h.Auth.TaskOIDCVerificationMiddleware)
			r.Post("/tasks/generate", h.Worker.ProcessTask)
		})
	}
}

func setupOpsRoutes(r chi.Router, opts RouterOptions) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler())
	}
	if opts.FilesDir != "" {
		prefix := strings.TrimSuffix(storage.LocalFilesPrefix, "/")
		fs := http.StripPrefix(storage.LocalFilesPrefix, http.FileServer(http.Dir(opts.FilesDir)))
		r.Handle(prefix+"/*", fs)
	}
}
