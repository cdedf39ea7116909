package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"graphic-novel-web/internal/domain"
	"graphic-novel-web/internal/pipeline"

	"github.com/go-chi/render"
)

// maxBodyBytes はリクエストボディの上限です。素材は data: URI で届くことがあります。
const maxBodyBytes = 80 << 20

// ErrorReply は API のエラー応答です。
type ErrorReply struct {
	Error    string `json:"error"`
	Message  string `json:"message,omitempty"`
	Required *int   `json:"required,omitempty"`
	Current  *int   `json:"current,omitempty"`

	status int
}

func (e *ErrorReply) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.status)
	return nil
}

// errorReplyFor はドメインエラーを HTTP ステータスと応答本文に対応付けます。
func errorReplyFor(err error) *ErrorReply {
	var creditErr *domain.CreditError
	switch {
	case errors.As(err, &creditErr):
		return &ErrorReply{
			Error:    "insufficient_credits",
			Message:  "Not enough credits for this story.",
			Required: &creditErr.Required,
			Current:  &creditErr.Current,
			status:   http.StatusPaymentRequired,
		}
	case errors.Is(err, domain.ErrSafetyRefusal):
		return &ErrorReply{Error: "safety_refusal", Message: domain.SafetyRefusalMessage, status: http.StatusUnprocessableEntity}
	case errors.Is(err, domain.ErrInvalidInput):
		return &ErrorReply{Error: "invalid_request", Message: err.Error(), status: http.StatusBadRequest}
	case errors.Is(err, domain.ErrNotFound):
		return &ErrorReply{Error: "not_found", status: http.StatusNotFound}
	case errors.Is(err, domain.ErrTerminal):
		return &ErrorReply{Error: "already_finished", Message: "This story is already finished.", status: http.StatusConflict}
	case errors.Is(err, pipeline.ErrShuttingDown):
		return &ErrorReply{Error: "unavailable", Message: "The service is restarting. Please try again shortly.", status: http.StatusServiceUnavailable}
	case errors.Is(err, context.DeadlineExceeded):
		return &ErrorReply{Error: "timeout", status: http.StatusGatewayTimeout}
	default:
		return &ErrorReply{Error: "internal_error", status: http.StatusInternalServerError}
	}
}

// respondError はエラーを記録して JSON で返します。5xx のみエラーレベルで記録します。
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	reply := errorReplyFor(err)
	if reply.status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
	} else {
		slog.InfoContext(r.Context(), "Request rejected", "path", r.URL.Path, "status", reply.status, "error", err)
	}
	_ = render.Render(w, r, reply)
}

// decodeJSON はボディを上限付きで読み込みます。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := render.DecodeJSON(r.Body, v); err != nil {
		return errors.Join(domain.ErrInvalidInput, err)
	}
	return nil
}
