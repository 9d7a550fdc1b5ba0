package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/go-todo-api/internal/application/auth"
	"github.com/go-todo-api/internal/domain"
)

// PasswordRecoveryHandler handles password recovery flow endpoints.
type PasswordRecoveryHandler struct {
	svc auth.Service
}

func NewPasswordRecoveryHandler(svc auth.Service) *PasswordRecoveryHandler {
	return &PasswordRecoveryHandler{svc: svc}
}

func (h *PasswordRecoveryHandler) Action(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "request":
		var req domain.EmailRequest
		if err := decode(r, &req); err != nil {
			httpError(w, r, err)
			return
		}
		if err := h.svc.RequestPasswordReset(r.Context(), req.Email); err != nil {
			httpError(w, r, err)
			return
		}
		writeAck(w)
	case "reset":
		var req domain.ResetPasswordRequest
		if err := decode(r, &req); err != nil {
			httpError(w, r, err)
			return
		}
		h.reset(w, r, req)
	default:
		writeError(w, http.StatusNotFound, "unknown action")
	}
}

func (h *PasswordRecoveryHandler) reset(w http.ResponseWriter, r *http.Request, req domain.ResetPasswordRequest) {
	res, err := h.svc.ResetPassword(r.Context(), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	if !res.PasswordChanged {
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "otp is valid"})
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "password changed"})
}
