package handlers

import (
	"net/http"

	"graphic-novel-web/internal/domain"

	"github.com/go-chi/render"
)

// SubmitReply はジョブ受付時の応答です。
type SubmitReply struct {
	TaskID string        `json:"taskId"`
	Status domain.Status `json:"status"`
	Cost   int           `json:"cost"`
}

func (s SubmitReply) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, http.StatusAccepted)
	return nil
}

// CoachReply は素材講評の応答です。
type CoachReply struct {
	*domain.CoachResult
}

func (c CoachReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

// HandleSubmit はグラフィックノベル生成リクエストを受け付けます。
// 安全性チェックとクレジット予約を通過した場合のみ 202 とタスク ID を返します。
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	job, err := h.service.Submit(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}

	_ = render.Render(w, r, SubmitReply{TaskID: job.ID, Status: job.Status, Cost: job.Cost})
}

// HandleCoach は素材画像 1 枚の講評を返します。
func (h *Handler) HandleCoach(w http.ResponseWriter, r *http.Request) {
	if h.coach == nil {
		respondError(w, r, domain.ErrNotFound)
		return
	}

	var req domain.CoachRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	result, err := h.coach.Coach(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	_ = render.Render(w, r, CoachReply{result})
}
