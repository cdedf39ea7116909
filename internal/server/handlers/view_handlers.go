package handlers

import (
	"net/http"
	"time"

	"graphic-novel-web/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// StatusReply はポーリング応答です。
type StatusReply struct {
	domain.StatusView
}

func (s StatusReply) Render(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Cache-Control", "no-store")
	return nil
}

// NovelReply は完成したグラフィックノベルです。
type NovelReply struct {
	TaskID      string        `json:"taskId"`
	OwnerID     string        `json:"ownerId"`
	Vibe        domain.Vibe   `json:"vibe"`
	Layout      domain.Layout `json:"layout"`
	TotalPages  int           `json:"totalPages"`
	PlotOutline []string      `json:"plotOutline"`
	Pages       []domain.Page `json:"pages"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
}

func (n NovelReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

// TaskSummary は一覧表示用の 1 件分です。
type TaskSummary struct {
	TaskID         string        `json:"taskId"`
	Status         domain.Status `json:"status"`
	Vibe           domain.Vibe   `json:"vibe"`
	TotalPages     int           `json:"totalPages"`
	PagesCompleted int           `json:"pagesCompleted"`
	Progress       int           `json:"progress"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// ListReply は所有者ごとのジョブ一覧です。
type ListReply struct {
	Tasks []TaskSummary `json:"tasks"`
}

func (l ListReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

// CancelReply は中断要求の受付応答です。
type CancelReply struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
}

func (c CancelReply) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, http.StatusAccepted)
	return nil
}

// HandleStatus はジョブの現在の状態を返します。副作用はありません。
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.Status(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	_ = render.Render(w, r, StatusReply{job.View()})
}

// HandleNovel は完成したジョブのみを返します。
func (h *Handler) HandleNovel(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.Novel(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	_ = render.Render(w, r, NovelReply{
		TaskID:      job.ID,
		OwnerID:     job.OwnerID,
		Vibe:        job.Vibe,
		Layout:      job.Layout,
		TotalPages:  job.TotalPages,
		PlotOutline: job.PlotOutline,
		Pages:       job.Pages,
		CompletedAt: job.CompletedAt,
	})
}

// HandleList は所有者のジョブを新しい順に返します。
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListByOwner(r.Context(), chi.URLParam(r, "ownerID"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	reply := ListReply{Tasks: make([]TaskSummary, 0, len(jobs))}
	for _, j := range jobs {
		reply.Tasks = append(reply.Tasks, TaskSummary{
			TaskID:         j.ID,
			Status:         j.Status,
			Vibe:           j.Vibe,
			TotalPages:     j.TotalPages,
			PagesCompleted: j.PagesCompleted,
			Progress:       j.Progress,
			CreatedAt:      j.CreatedAt,
		})
	}
	_ = render.Render(w, r, reply)
}

// HandleCancel は中断要求を記録します。終端状態のジョブには 409 を返します。
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if err := h.service.Cancel(r.Context(), taskID); err != nil {
		respondError(w, r, err)
		return
	}
	_ = render.Render(w, r, CancelReply{TaskID: taskID, Status: "CANCELLING"})
}

// CreditsReply は利用者のクレジット残高です。
type CreditsReply struct {
	OwnerID string `json:"ownerId"`
	Balance int    `json:"balance"`
}

func (c CreditsReply) Render(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Cache-Control", "no-store")
	return nil
}

// HandleCredits は利用者の現在のクレジット残高を返します。
func (h *Handler) HandleCredits(w http.ResponseWriter, r *http.Request) {
	if h.credits == nil {
		respondError(w, r, domain.ErrNotFound)
		return
	}
	ownerID := chi.URLParam(r, "ownerID")
	balance, err := h.credits.Balance(r.Context(), ownerID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	_ = render.Render(w, r, CreditsReply{OwnerID: ownerID, Balance: balance})
}
