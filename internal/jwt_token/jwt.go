package jwttoken

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "thgate/pkg/domain-errors"
	"thgate/pkg/requestcontext"
)

const (
	DefaultIssuer     = "netlify-auth"
	DefaultAudience   = "web-app"
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour

	useAccess  = "access"
	useRefresh = "refresh"
)

// Subject is the user identity carried by both tokens.
type Subject struct {
	UserID   string
	Email    string
	FullName string
}

// Claims is the payload of access and refresh tokens.
type Claims struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	TokenUse string `json:"tokenUse"`
	jwt.RegisteredClaims
}

func (c *Claims) Subject() Subject {
	return Subject{UserID: c.UserID, Email: c.Email, FullName: c.FullName}
}

// Pair is what a successful login hands out.
type Pair struct {
	AccessToken  string
	RefreshToken string
}

type Config struct {
	AccessSecret  string
	RefreshSecret string
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// JWTService signs and verifies stateless HS256 session tokens. Access and
// refresh tokens use separate secrets and carry their use in a claim, so
// neither can stand in for the other.
type JWTService struct {
	accessKey  []byte
	refreshKey []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewJWTService(cfg Config) (*JWTService, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, dErrors.New(dErrors.CodeInternal, "jwt secrets are required")
	}
	s := &JWTService{
		accessKey:  []byte(cfg.AccessSecret),
		refreshKey: []byte(cfg.RefreshSecret),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
	}
	if s.issuer == "" {
		s.issuer = DefaultIssuer
	}
	if s.audience == "" {
		s.audience = DefaultAudience
	}
	if s.accessTTL <= 0 {
		s.accessTTL = DefaultAccessTTL
	}
	if s.refreshTTL <= 0 {
		s.refreshTTL = DefaultRefreshTTL
	}
	return s, nil
}

func (s *JWTService) AccessTTL() time.Duration  { return s.accessTTL }
func (s *JWTService) RefreshTTL() time.Duration { return s.refreshTTL }

// GenerateTokens issues a fresh access and refresh token for subject.
func (s *JWTService) GenerateTokens(ctx context.Context, subject Subject) (*Pair, error) {
	access, err := s.GenerateAccessToken(ctx, subject)
	if err != nil {
		return nil, err
	}
	refresh, err := s.sign(ctx, subject, useRefresh, s.refreshKey, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &Pair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *JWTService) GenerateAccessToken(ctx context.Context, subject Subject) (string, error) {
	return s.sign(ctx, subject, useAccess, s.accessKey, s.accessTTL)
}

func (s *JWTService) ValidateAccessToken(ctx context.Context, token string) (*Claims, error) {
	return s.verify(ctx, token, useAccess, s.accessKey)
}

func (s *JWTService) ValidateRefreshToken(ctx context.Context, token string) (*Claims, error) {
	return s.verify(ctx, token, useRefresh, s.refreshKey)
}

func (s *JWTService) sign(ctx context.Context, subject Subject, use string, key []byte, ttl time.Duration) (string, error) {
	now := requestcontext.Now(ctx)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:   subject.UserID,
		Email:    subject.Email,
		FullName: subject.FullName,
		TokenUse: use,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(key)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "sign token")
	}
	return signed, nil
}

// verify pins HS256, issuer, audience and expiry against the request clock.
// Every failure is the same CodeUnauthorized "invalid token"; the cause is
// kept in the chain for logs.
func (s *JWTService) verify(ctx context.Context, tokenString, use string, key []byte) (*Claims, error) {
	if tokenString == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims := new(Claims)
	parsed, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return requestcontext.Now(ctx) }),
	)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid || claims.TokenUse != use || claims.UserID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	return claims, nil
}
