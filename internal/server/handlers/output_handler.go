package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"graphic-novel-web/internal/config"
	"graphic-novel-web/internal/domain"

	"github.com/go-chi/chi/v5"
)

// HandlePageImage は保存済みページ画像へリダイレクトします。gs:// の画像は署名付き URL に変換します。
func (h *Handler) HandlePageImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := chi.URLParam(r, "taskID")

	pageNumber, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil || pageNumber < 1 {
		respondError(w, r, fmt.Errorf("%w: page must be a positive number", domain.ErrInvalidInput))
		return
	}

	job, err := h.service.Status(ctx, taskID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if pageNumber > len(job.Pages) {
		respondError(w, r, fmt.Errorf("%w: page %d of %s is not rendered yet", domain.ErrNotFound, pageNumber, taskID))
		return
	}

	target, err := h.resolver.Resolve(ctx, job.Pages[pageNumber-1].ImageURL)
	if err != nil {
		respondError(w, r, err)
		return
	}

	// 署名付き URL の有効期限に同期させます
	cacheAgeSec := int64(config.SignedURLExpiration.Seconds())
	w.Header().Set("Cache-Control", fmt.Sprintf("private, max-age=%d", cacheAgeSec))
	http.Redirect(w, r, target, http.StatusFound)
}
