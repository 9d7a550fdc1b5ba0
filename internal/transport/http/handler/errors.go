package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/go-todo-api/internal/domain"
	"github.com/go-todo-api/internal/pkg/validate"
)

// statusFor is ordered: specific sentinels first, categories last.
var statusFor = []struct {
	err     error
	status  int
	message string
}{
	{domain.ErrDuplicateEmail, http.StatusConflict, "email already registered"},
	{domain.ErrUserNotFound, http.StatusNotFound, "user not found"},
	{domain.ErrNotVerified, http.StatusForbidden, "email not verified"},
	{domain.ErrBadCredentials, http.StatusUnauthorized, "invalid credentials"},
	{domain.ErrTokenExpired, http.StatusForbidden, "token expired"},
	{domain.ErrTokenInvalid, http.StatusForbidden, "invalid token"},
	{domain.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{domain.ErrOTPInvalid, http.StatusBadRequest, "incorrect or expired otp"},
	{domain.ErrPasswordMismatch, http.StatusBadRequest, "passwords do not match"},
	{domain.ErrAlreadyVerified, http.StatusBadRequest, "email already verified"},
	{domain.ErrNotFound, http.StatusNotFound, "not found"},
	{domain.ErrBadRequest, http.StatusBadRequest, "invalid request body"},
}

// httpError maps a service error to a status code and a message that never
// carries infrastructure detail. Unknown and system errors become 500.
func httpError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, validate.ErrInvalid) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	for _, m := range statusFor {
		if errors.Is(err, m.err) {
			writeError(w, m.status, m.message)
			return
		}
	}
	hlog.FromRequest(r).Error().Err(err).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal server error")
}
