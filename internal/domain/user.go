package domain

import (
	"context"
	"time"
)

type User struct {
	UserID                string     `json:"id" dynamodbav:"user_id" bson:"_id"`
	Email                 string     `json:"email" dynamodbav:"email" bson:"email"`
	PasswordHash          string     `json:"-" dynamodbav:"password_hash" bson:"password_hash"`
	IsVerified            bool       `json:"is_verified" dynamodbav:"is_verified" bson:"is_verified"`
	EmailVerificationOTPs []OTPEntry `json:"-" dynamodbav:"email_verification_otps" bson:"email_verification_otps"`
	ResetOTPs             []OTPEntry `json:"-" dynamodbav:"reset_otps" bson:"reset_otps"`
	Version               int64      `json:"-" dynamodbav:"version" bson:"version"`
	CreatedAt             time.Time  `json:"created" dynamodbav:"created_at" bson:"created_at"`
	UpdatedAt             time.Time  `json:"updated" dynamodbav:"updated_at" bson:"updated_at"`
}

// SafeUser is the public view of a User. It never carries the password hash or OTP state.
type SafeUser struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	IsVerified bool   `json:"is_verified"`
}

func (u *User) Safe() SafeUser {
	return SafeUser{ID: u.UserID, Email: u.Email, IsVerified: u.IsVerified}
}

// OTPs returns a pointer to the history for purpose so callers can append or flag entries in place.
func (u *User) OTPs(p Purpose) *[]OTPEntry {
	if p == PurposeReset {
		return &u.ResetOTPs
	}
	return &u.EmailVerificationOTPs
}

// Clone returns a deep copy so stores never share slices with callers.
func (u *User) Clone() *User {
	c := *u
	c.EmailVerificationOTPs = append([]OTPEntry(nil), u.EmailVerificationOTPs...)
	c.ResetOTPs = append([]OTPEntry(nil), u.ResetOTPs...)
	return &c
}

// CredentialStore persists users. Absent users are reported as ErrUserNotFound,
// Create enforces email uniqueness with ErrDuplicateEmail, and Save is a
// conditional write on Version that fails with ErrVersionConflict when another
// writer got there first. On success Save increments u.Version.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, userID string) (*User, error)
	Create(ctx context.Context, email, passwordHash string) (*User, error)
	Save(ctx context.Context, u *User) error
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type VerifyEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required"`
}

type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ResetPasswordRequest doubles as an OTP check when both passwords are empty.
type ResetPasswordRequest struct {
	Email              string `json:"email" validate:"required,email"`
	OTP                string `json:"otp" validate:"required"`
	NewPassword        string `json:"new_password" validate:"omitempty,max=72"`
	ConfirmNewPassword string `json:"confirm_new_password" validate:"omitempty,max=72"`
}
