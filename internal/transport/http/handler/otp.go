package handler

import (
	"net/http"

	"github.com/go-todo-api/internal/application/auth"
	"github.com/go-todo-api/internal/domain"
)

// OTPHandler serves the purpose-generic /otp endpoints on top of the auth
// flows, so responses match the dedicated routes exactly.
type OTPHandler struct {
	svc auth.Service
	pw  *PasswordRecoveryHandler
}

func NewOTPHandler(svc auth.Service) *OTPHandler {
	return &OTPHandler{svc: svc, pw: NewPasswordRecoveryHandler(svc)}
}

func (h *OTPHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req domain.SendOTPRequest
	if err := decode(r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	var err error
	if req.Type == domain.PurposeReset {
		err = h.svc.RequestPasswordReset(r.Context(), req.Email)
	} else {
		err = h.svc.ResendVerification(r.Context(), req.Email)
	}
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeAck(w)
}

func (h *OTPHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyOTPRequest
	if err := decode(r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	if req.Type == domain.PurposeReset {
		h.pw.reset(w, r, domain.ResetPasswordRequest{
			Email:              req.Email,
			OTP:                req.OTP,
			NewPassword:        req.NewPassword,
			ConfirmNewPassword: req.ConfirmNewPassword,
		})
		return
	}
	if err := h.svc.VerifyEmail(r.Context(), domain.VerifyEmailRequest{Email: req.Email, OTP: req.OTP}); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "email verified"})
}
