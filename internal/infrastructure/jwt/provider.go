package jwtinfra

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/go-todo-api/internal/domain"
)

// Kind selects the signing key and audience of a token.
type Kind int

const (
	Access Kind = iota
	Refresh
)

func (k Kind) String() string {
	if k == Refresh {
		return "refresh"
	}
	return "access"
}

// Claims holds the JWT payload fields.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Config is everything the issuer needs. Nothing is read from the environment.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// Issuer signs and verifies HS256 JWTs with one key per token kind.
type Issuer struct {
	keys   map[Kind][]byte
	ttls   map[Kind]time.Duration
	issuer string
	now    func() time.Time
}

func NewIssuer(cfg Config) (*Issuer, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("jwt: access and refresh secrets are required")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("jwt: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.AccessTTL >= cfg.RefreshTTL {
		return nil, fmt.Errorf("jwt: access ttl %s must be positive and shorter than refresh ttl %s", cfg.AccessTTL, cfg.RefreshTTL)
	}
	return &Issuer{
		keys:   map[Kind][]byte{Access: cfg.AccessSecret, Refresh: cfg.RefreshSecret},
		ttls:   map[Kind]time.Duration{Access: cfg.AccessTTL, Refresh: cfg.RefreshTTL},
		issuer: cfg.Issuer,
		now:    time.Now,
	}, nil
}

func (i *Issuer) IssueAccessToken(userID string) (string, error) {
	return i.sign(userID, Access)
}

func (i *Issuer) IssueRefreshToken(userID string) (string, error) {
	return i.sign(userID, Refresh)
}

func (i *Issuer) sign(userID string, kind Kind) (string, error) {
	now := i.now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{kind.String()},
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttls[kind])),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.keys[kind])
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}

// VerifyAndDecode checks the signature with the key for kind, then the claims.
// Expired tokens yield domain.ErrTokenExpired; every other failure yields
// domain.ErrTokenInvalid.
func (i *Issuer) VerifyAndDecode(tokenStr string, kind Kind) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(kind.String()),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return i.keys[kind], nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrTokenInvalid, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}
