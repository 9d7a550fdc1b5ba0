package handler

import (
	"net/http"
	"strings"

	"github.com/go-todo-api/internal/application/auth"
	"github.com/go-todo-api/internal/domain"
	"github.com/go-todo-api/internal/transport/http/middleware"
)

// ackMessage is the single response for requests whose outcome must not
// reveal whether an email is registered.
const ackMessage = "if the email is registered, a code has been sent"

func writeAck(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: ackMessage})
}

// AuthHandler handles account and session endpoints.
type AuthHandler struct {
	svc auth.Service
}

func NewAuthHandler(svc auth.Service) *AuthHandler { return &AuthHandler{svc: svc} }

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := decode(r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	u, err := h.svc.Register(r.Context(), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, AuthEnvelope{
		Message: "registered, check your email for the verification code",
		User:    u,
	})
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyEmailRequest
	if err := decode(r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	if err := h.svc.VerifyEmail(r.Context(), req); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "email verified"})
}

func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req domain.EmailRequest
	if err := decode(r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	if err := h.svc.ResendVerification(r.Context(), req.Email); err != nil {
		httpError(w, r, err)
		return
	}
	writeAck(w)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decode(r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	res, err := h.svc.Login(r.Context(), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthEnvelope{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		User:         &res.User,
	})
}

// Refresh accepts the refresh token as a Bearer header or in the body.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		var req domain.RefreshRequest
		if err := decode(r, &req); err != nil {
			httpError(w, r, err)
			return
		}
		token = req.RefreshToken
	}
	access, err := h.svc.RefreshAccessToken(r.Context(), token)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthEnvelope{AccessToken: access})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		httpError(w, r, domain.ErrUnauthorized)
		return
	}
	if err := h.svc.Logout(r.Context(), claims.UserID); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "logged out"})
}

// Protected echoes the caller resolved from the access token.
func (h *AuthHandler) Protected(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		httpError(w, r, domain.ErrUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "access granted",
		"user_id": claims.UserID,
	})
}
