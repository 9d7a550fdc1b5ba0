package domain

import "time"

// Purpose selects one of the two independent OTP histories of a user.
type Purpose string

const (
	PurposeVerify Purpose = "verify"
	PurposeReset  Purpose = "reset"
)

func (p Purpose) Valid() bool {
	return p == PurposeVerify || p == PurposeReset
}

// OTPEntry is one issued code. Entries are appended and never removed;
// once Used is set the entry can no longer match.
type OTPEntry struct {
	OTPHash   string    `json:"-" dynamodbav:"otp_hash" bson:"otp_hash"`
	Expiry    time.Time `json:"expiry" dynamodbav:"expiry" bson:"expiry"`
	Used      bool      `json:"used" dynamodbav:"used" bson:"used"`
	CreatedAt time.Time `json:"created" dynamodbav:"created_at" bson:"created_at"`
}

// Usable reports whether the entry is a match candidate at now. The expiry instant itself is still valid.
func (e OTPEntry) Usable(now time.Time) bool {
	return !e.Used && !now.After(e.Expiry)
}

// SendOTPRequest and VerifyOTPRequest back the unified /otp endpoints.
type SendOTPRequest struct {
	Email string  `json:"email" validate:"required,email"`
	Type  Purpose `json:"type" validate:"required,oneof=verify reset"`
}

type VerifyOTPRequest struct {
	Email              string  `json:"email" validate:"required,email"`
	OTP                string  `json:"otp" validate:"required"`
	Type               Purpose `json:"type" validate:"required,oneof=verify reset"`
	NewPassword        string  `json:"new_password" validate:"omitempty,max=72"`
	ConfirmNewPassword string  `json:"confirm_new_password" validate:"omitempty,max=72"`
}
