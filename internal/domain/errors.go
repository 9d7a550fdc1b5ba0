package domain

import (
	"errors"
	"fmt"
)

// Error categories. Every specific error below wraps exactly one of them so
// callers can discriminate either by category or by the exact sentinel.
var (
	ErrClient = errors.New("client error")
	ErrAuth   = errors.New("auth error")
	ErrSystem = errors.New("system error")
)

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound         = fmt.Errorf("not found: %w", ErrClient)
	ErrBadRequest       = fmt.Errorf("bad request: %w", ErrClient)
	ErrDuplicateEmail   = fmt.Errorf("email already registered: %w", ErrClient)
	ErrOTPInvalid       = fmt.Errorf("incorrect or expired otp: %w", ErrClient)
	ErrPasswordMismatch = fmt.Errorf("passwords do not match: %w", ErrClient)
	ErrAlreadyVerified  = fmt.Errorf("email already verified: %w", ErrClient)

	ErrUserNotFound   = fmt.Errorf("user not found: %w", ErrAuth)
	ErrNotVerified    = fmt.Errorf("email not verified: %w", ErrAuth)
	ErrBadCredentials = fmt.Errorf("invalid credentials: %w", ErrAuth)
	ErrTokenInvalid   = fmt.Errorf("invalid token: %w", ErrAuth)
	ErrTokenExpired   = fmt.Errorf("token expired: %w", ErrAuth)
	ErrUnauthorized   = fmt.Errorf("unauthorized: %w", ErrAuth)

	ErrStoreUnavailable = fmt.Errorf("store unavailable: %w", ErrSystem)
	ErrVersionConflict  = fmt.Errorf("concurrent modification: %w", ErrSystem)
)
