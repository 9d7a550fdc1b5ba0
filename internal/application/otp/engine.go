package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/go-todo-api/internal/domain"
	"github.com/go-todo-api/internal/metrics"
	"github.com/go-todo-api/internal/pkg/hash"
)

// Codes are always six digits without a leading zero.
const (
	codeMin   = 100000
	codeRange = 900000
	codeLen   = 6
)

// maxAttempts bounds how often a write is re-applied after losing a version race.
const maxAttempts = 3

// Grant is the reason a code is issued. It decides the history and lifetime.
type Grant int

const (
	Registration Grant = iota
	Resend
	Reset
)

func (g Grant) Purpose() domain.Purpose {
	if g == Reset {
		return domain.PurposeReset
	}
	return domain.PurposeVerify
}

// Notifier is fire-and-forget: it must not block on delivery.
type Notifier interface {
	Notify(ctx context.Context, to, subject, body string)
}

type Config struct {
	VerifyTTL       time.Duration
	VerifyResendTTL time.Duration
	ResetTTL        time.Duration
	BcryptCost      int
}

type codeHasher interface {
	Hash(plain string) (string, error)
	Matches(h, plain string) bool
}

type Engine struct {
	store    domain.CredentialStore
	notifier Notifier
	hasher   codeHasher
	cfg      Config
	now      func() time.Time
}

func NewEngine(store domain.CredentialStore, notifier Notifier, cfg Config) *Engine {
	return &Engine{
		store:    store,
		notifier: notifier,
		hasher:   hash.Bcrypt{Cost: cfg.BcryptCost},
		cfg:      cfg,
		now:      time.Now,
	}
}

// Generate returns a uniformly random code in [100000, 999999].
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeRange))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return strconv.FormatInt(n.Int64()+codeMin, 10), nil
}

func (e *Engine) TTL(g Grant) time.Duration {
	switch g {
	case Resend:
		return e.cfg.VerifyResendTTL
	case Reset:
		return e.cfg.ResetTTL
	default:
		return e.cfg.VerifyTTL
	}
}

// Issue appends a fresh code to u's history for g, persists it and hands the
// plaintext code to the notifier. u is updated in place on success.
func (e *Engine) Issue(ctx context.Context, u *domain.User, g Grant) error {
	code, err := Generate()
	if err != nil {
		return err
	}
	h, err := e.hasher.Hash(code)
	if err != nil {
		return err
	}
	ttl := e.TTL(g)
	now := e.now().UTC()
	entry := domain.OTPEntry{OTPHash: h, Expiry: now.Add(ttl), CreatedAt: now}

	err = e.mutate(ctx, u, func(cur *domain.User) error {
		history := cur.OTPs(g.Purpose())
		*history = append(*history, entry)
		return nil
	})
	if err != nil {
		return err
	}

	metrics.OTPIssuedTotal.WithLabelValues(string(g.Purpose())).Inc()
	log.Debug().Str("user_id", u.UserID).Str("purpose", string(g.Purpose())).Time("expiry", entry.Expiry).Msg("otp issued")

	subject, body := message(g, code, ttl)
	e.notifier.Notify(ctx, u.Email, subject, body)
	return nil
}

// Decoy does the hashing half of Issue and throws the result away. Callers
// run it on branches that must take as long as a real issuance.
func (e *Engine) Decoy() {
	code, err := Generate()
	if err != nil {
		return
	}
	_, _ = e.hasher.Hash(code)
}

// Verify consumes the first usable entry of purpose p matching code, runs
// apply on the same record and persists both in a single write. If apply
// fails nothing is written. Any non-match yields domain.ErrOTPInvalid.
func (e *Engine) Verify(ctx context.Context, u *domain.User, p domain.Purpose, code string, apply func(*domain.User) error) error {
	err := e.mutate(ctx, u, func(cur *domain.User) error {
		idx := e.match(cur, p, code)
		if idx < 0 {
			return domain.ErrOTPInvalid
		}
		if apply != nil {
			if err := apply(cur); err != nil {
				return err
			}
		}
		(*cur.OTPs(p))[idx].Used = true
		return nil
	})
	switch {
	case err == nil:
		metrics.OTPVerificationsTotal.WithLabelValues(string(p), "success").Inc()
	case errors.Is(err, domain.ErrOTPInvalid):
		metrics.OTPVerificationsTotal.WithLabelValues(string(p), "invalid").Inc()
	}
	return err
}

// Check reports whether code would currently verify, without consuming it.
func (e *Engine) Check(u *domain.User, p domain.Purpose, code string) bool {
	return e.match(u, p, code) >= 0
}

func (e *Engine) match(u *domain.User, p domain.Purpose, code string) int {
	if !wellFormed(code) {
		return -1
	}
	now := e.now()
	for i, entry := range *u.OTPs(p) {
		if !entry.Usable(now) {
			continue
		}
		if e.hasher.Matches(entry.OTPHash, code) {
			return i
		}
	}
	return -1
}

// mutate applies fn to a copy of u and saves it. When the save loses a
// version race the user is reloaded and fn runs again against fresh state.
func (e *Engine) mutate(ctx context.Context, u *domain.User, fn func(*domain.User) error) error {
	cur := u.Clone()
	for attempt := 1; ; attempt++ {
		if err := fn(cur); err != nil {
			return err
		}
		err := e.store.Save(ctx, cur)
		if err == nil {
			*u = *cur
			return nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) || attempt == maxAttempts {
			return err
		}
		if cur, err = e.store.FindByID(ctx, u.UserID); err != nil {
			return err
		}
	}
}

func wellFormed(code string) bool {
	if len(code) != codeLen {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func message(g Grant, code string, ttl time.Duration) (subject, body string) {
	if g == Reset {
		subject = "Your password reset code"
		body = fmt.Sprintf("Your OTP for password reset is: %s\nIt is valid for %s. Do not share your OTP with anyone else.", code, validity(ttl))
		return subject, body
	}
	subject = "Verify your email"
	body = fmt.Sprintf("Your OTP for email verification is: %s\nIt is valid for %s. Do not share your OTP with anyone else.", code, validity(ttl))
	return subject, body
}

func validity(d time.Duration) string {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		return plural(int(d/(24*time.Hour)), "day")
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
