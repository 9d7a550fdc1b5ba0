package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/go-todo-api/internal/application/otp"
	"github.com/go-todo-api/internal/domain"
	jwtinfra "github.com/go-todo-api/internal/infrastructure/jwt"
	"github.com/go-todo-api/internal/metrics"
	"github.com/go-todo-api/internal/pkg/hash"
)

type LoginResult struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	User         domain.SafeUser `json:"user"`
}

// ResetResult tells the caller whether the password was replaced or the
// request only checked the code.
type ResetResult struct {
	PasswordChanged bool
}

type Service interface {
	Register(ctx context.Context, req domain.RegisterRequest) (*domain.SafeUser, error)
	VerifyEmail(ctx context.Context, req domain.VerifyEmailRequest) error
	ResendVerification(ctx context.Context, email string) error
	Login(ctx context.Context, req domain.LoginRequest) (*LoginResult, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (string, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, req domain.ResetPasswordRequest) (*ResetResult, error)
	Logout(ctx context.Context, userID string) error
}

type otpEngine interface {
	Issue(ctx context.Context, u *domain.User, g otp.Grant) error
	Verify(ctx context.Context, u *domain.User, p domain.Purpose, code string, apply func(*domain.User) error) error
	Check(u *domain.User, p domain.Purpose, code string) bool
	Decoy()
}

type tokenIssuer interface {
	IssueAccessToken(userID string) (string, error)
	IssueRefreshToken(userID string) (string, error)
	VerifyAndDecode(token string, kind jwtinfra.Kind) (*jwtinfra.Claims, error)
}

type service struct {
	users  domain.CredentialStore
	otp    otpEngine
	tokens tokenIssuer
	hasher hash.Bcrypt
}

type ServiceDeps struct {
	Users        domain.CredentialStore
	OTP          otpEngine
	Tokens       tokenIssuer
	PasswordCost int
}

func NewService(deps ServiceDeps) Service {
	return &service{
		users:  deps.Users,
		otp:    deps.OTP,
		tokens: deps.Tokens,
		hasher: hash.Bcrypt{Cost: deps.PasswordCost},
	}
}

func (s *service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.SafeUser, error) {
	h, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}
	u, err := s.users.Create(ctx, req.Email, h)
	if err != nil {
		return nil, err
	}
	if err := s.otp.Issue(ctx, u, otp.Registration); err != nil {
		return nil, fmt.Errorf("issue verification otp: %w", err)
	}
	metrics.RegistrationsTotal.Inc()
	log.Info().Str("user_id", u.UserID).Msg("user registered")

	safe := u.Safe()
	return &safe, nil
}

func (s *service) VerifyEmail(ctx context.Context, req domain.VerifyEmailRequest) error {
	u, err := s.users.FindByEmail(ctx, req.Email)
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.ErrOTPInvalid
	}
	if err != nil {
		return err
	}
	if u.IsVerified {
		return domain.ErrAlreadyVerified
	}
	err = s.otp.Verify(ctx, u, domain.PurposeVerify, req.OTP, func(cur *domain.User) error {
		if cur.IsVerified {
			return domain.ErrAlreadyVerified
		}
		cur.IsVerified = true
		return nil
	})
	if err != nil {
		return err
	}
	log.Info().Str("user_id", u.UserID).Msg("email verified")
	return nil
}

// ResendVerification acknowledges unknown and already verified emails the same
// way as real resends, hashing a throwaway code so the branches cost the same.
func (s *service) ResendVerification(ctx context.Context, email string) error {
	u, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		s.otp.Decoy()
		return nil
	}
	if err != nil {
		return err
	}
	if u.IsVerified {
		s.otp.Decoy()
		return nil
	}
	return s.otp.Issue(ctx, u, otp.Resend)
}

func (s *service) Login(ctx context.Context, req domain.LoginRequest) (*LoginResult, error) {
	u, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		loginOutcome(err)
		return nil, err
	}
	if !u.IsVerified {
		loginOutcome(domain.ErrNotVerified)
		return nil, domain.ErrNotVerified
	}
	if !s.hasher.Matches(u.PasswordHash, req.Password) {
		loginOutcome(domain.ErrBadCredentials)
		return nil, domain.ErrBadCredentials
	}

	access, err := s.tokens.IssueAccessToken(u.UserID)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.IssueRefreshToken(u.UserID)
	if err != nil {
		return nil, err
	}
	loginOutcome(nil)
	return &LoginResult{AccessToken: access, RefreshToken: refresh, User: u.Safe()}, nil
}

// RefreshAccessToken mints a new access token. The refresh token is not rotated.
func (s *service) RefreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.tokens.VerifyAndDecode(refreshToken, jwtinfra.Refresh)
	if err != nil {
		return "", err
	}
	u, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		return "", err
	}
	return s.tokens.IssueAccessToken(u.UserID)
}

// RequestPasswordReset returns nil for unknown emails so callers answer both
// cases identically, after the same hashing work a real issuance does.
func (s *service) RequestPasswordReset(ctx context.Context, email string) error {
	u, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		s.otp.Decoy()
		return nil
	}
	if err != nil {
		return err
	}
	return s.otp.Issue(ctx, u, otp.Reset)
}

// ResetPassword replaces the password after consuming a reset code. With both
// passwords empty it only reports whether the code is currently valid.
func (s *service) ResetPassword(ctx context.Context, req domain.ResetPasswordRequest) (*ResetResult, error) {
	checkOnly := req.NewPassword == "" && req.ConfirmNewPassword == ""
	if !checkOnly && req.NewPassword != req.ConfirmNewPassword {
		return nil, domain.ErrPasswordMismatch
	}

	u, err := s.users.FindByEmail(ctx, req.Email)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrOTPInvalid
	}
	if err != nil {
		return nil, err
	}

	if checkOnly {
		if !s.otp.Check(u, domain.PurposeReset, req.OTP) {
			return nil, domain.ErrOTPInvalid
		}
		return &ResetResult{}, nil
	}

	h, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return nil, err
	}
	err = s.otp.Verify(ctx, u, domain.PurposeReset, req.OTP, func(cur *domain.User) error {
		cur.PasswordHash = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("user_id", u.UserID).Msg("password reset")
	return &ResetResult{PasswordChanged: true}, nil
}

// Logout only acknowledges; tokens are not tracked server-side.
func (s *service) Logout(_ context.Context, userID string) error {
	log.Debug().Str("user_id", userID).Msg("logout")
	return nil
}

func loginOutcome(err error) {
	status := "success"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrUserNotFound):
		status = "not_found"
	case errors.Is(err, domain.ErrNotVerified):
		status = "not_verified"
	case errors.Is(err, domain.ErrBadCredentials):
		status = "bad_credentials"
	default:
		status = "error"
	}
	metrics.LoginAttemptsTotal.WithLabelValues(status).Inc()
}
