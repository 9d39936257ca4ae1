package jwttoken

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "thgate/pkg/domain-errors"
	"thgate/pkg/requestcontext"
)

var (
	subject = Subject{UserID: "user123", Email: "demo@themehackers.com", FullName: "ThemeHackers Demo User"}
	issued  = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
)

func newService(t *testing.T) *JWTService {
	t.Helper()
	svc, err := NewJWTService(Config{AccessSecret: "access-secret", RefreshSecret: "refresh-secret"})
	require.NoError(t, err)
	return svc
}

func at(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func requireInvalid(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.Equal(t, "invalid token", err.Error())
}

func Test_NewJWTService(t *testing.T) {
	_, err := NewJWTService(Config{AccessSecret: "a"})
	require.Error(t, err)

	svc := newService(t)
	assert.Equal(t, 15*time.Minute, svc.AccessTTL())
	assert.Equal(t, 7*24*time.Hour, svc.RefreshTTL())
}

func Test_GenerateTokens(t *testing.T) {
	svc := newService(t)
	pair, err := svc.GenerateTokens(at(issued), subject)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	claims, err := svc.ValidateAccessToken(at(issued.Add(time.Minute)), pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, subject, claims.Subject())
	assert.Equal(t, "netlify-auth", claims.Issuer)
	assert.Equal(t, jwt.ClaimStrings{"web-app"}, claims.Audience)
	assert.Equal(t, issued.Add(15*time.Minute), claims.ExpiresAt.Time.UTC())
	_, err = uuid.Parse(claims.ID)
	assert.NoError(t, err, "jti is a uuid")

	refresh, err := svc.ValidateRefreshToken(at(issued.Add(6*24*time.Hour)), pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, subject, refresh.Subject())
}

func Test_TokensAreNotInterchangeable(t *testing.T) {
	svc := newService(t)
	pair, err := svc.GenerateTokens(at(issued), subject)
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(at(issued), pair.RefreshToken)
	requireInvalid(t, err)
	_, err = svc.ValidateRefreshToken(at(issued), pair.AccessToken)
	requireInvalid(t, err)

	t.Run("same secret still separated by use claim", func(t *testing.T) {
		shared, err := NewJWTService(Config{AccessSecret: "same", RefreshSecret: "same"})
		require.NoError(t, err)
		pair, err := shared.GenerateTokens(at(issued), subject)
		require.NoError(t, err)
		_, err = shared.ValidateAccessToken(at(issued), pair.RefreshToken)
		requireInvalid(t, err)
	})
}

func Test_ValidateAccessToken_Expired(t *testing.T) {
	svc := newService(t)
	token, err := svc.GenerateAccessToken(at(issued), subject)
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(at(issued.Add(15*time.Minute+time.Second)), token)
	requireInvalid(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired, "cause is kept for logging")
}

func Test_ValidateAccessToken_Garbage(t *testing.T) {
	svc := newService(t)
	for _, token := range []string{"", "invalid-token-string", "a.b.c"} {
		_, err := svc.ValidateAccessToken(at(issued), token)
		requireInvalid(t, err)
	}
}

func Test_ValidateToken_RejectsForeignClaims(t *testing.T) {
	svc := newService(t)
	base := Claims{
		UserID:   subject.UserID,
		TokenUse: useAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(issued.Add(time.Minute)),
			IssuedAt:  jwt.NewNumericDate(issued),
			Issuer:    DefaultIssuer,
			Audience:  jwt.ClaimStrings{DefaultAudience},
		},
	}

	cases := []struct {
		name   string
		mutate func(*Claims)
		method jwt.SigningMethod
		key    any
	}{
		{name: "wrong issuer", mutate: func(c *Claims) { c.Issuer = "someone-else" }},
		{name: "wrong audience", mutate: func(c *Claims) { c.Audience = jwt.ClaimStrings{"mobile"} }},
		{name: "missing expiry", mutate: func(c *Claims) { c.ExpiresAt = nil }},
		{name: "missing user", mutate: func(c *Claims) { c.UserID = "" }},
		{name: "wrong secret", key: []byte("not-the-secret")},
		{name: "hs512 rejected", method: jwt.SigningMethodHS512},
		{name: "alg none rejected", method: jwt.SigningMethodNone, key: jwt.UnsafeAllowNoneSignatureType},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			claims := base
			if tc.mutate != nil {
				tc.mutate(&claims)
			}
			method := tc.method
			if method == nil {
				method = jwt.SigningMethodHS256
			}
			key := tc.key
			if key == nil {
				key = []byte("access-secret")
			}
			token, err := jwt.NewWithClaims(method, claims).SignedString(key)
			require.NoError(t, err)

			_, err = svc.ValidateAccessToken(at(issued), token)
			requireInvalid(t, err)
		})
	}
}

func Test_ValidateToken_RejectsAlteredPayload(t *testing.T) {
	svc := newService(t)
	pair, err := svc.GenerateTokens(at(issued), subject)
	require.NoError(t, err)

	// Re-encode the issued payload with one field changed and keep the
	// original header and signature.
	alter := func(t *testing.T, token string, field string, value any) string {
		t.Helper()
		parts := strings.Split(token, ".")
		require.Len(t, parts, 3)
		raw, err := base64.RawURLEncoding.DecodeString(parts[1])
		require.NoError(t, err)
		payload := map[string]any{}
		require.NoError(t, json.Unmarshal(raw, &payload))
		payload[field] = value
		raw, err = json.Marshal(payload)
		require.NoError(t, err)
		parts[1] = base64.RawURLEncoding.EncodeToString(raw)
		return strings.Join(parts, ".")
	}

	t.Run("access token with another user", func(t *testing.T) {
		_, err := svc.ValidateAccessToken(at(issued), alter(t, pair.AccessToken, "userId", "admin"))
		requireInvalid(t, err)
	})

	t.Run("access token with extended expiry", func(t *testing.T) {
		forged := alter(t, pair.AccessToken, "exp", issued.Add(24*time.Hour).Unix())
		_, err := svc.ValidateAccessToken(at(issued.Add(time.Hour)), forged)
		requireInvalid(t, err)
	})

	t.Run("refresh token with another email", func(t *testing.T) {
		_, err := svc.ValidateRefreshToken(at(issued), alter(t, pair.RefreshToken, "email", "root@themehackers.com"))
		requireInvalid(t, err)
	})

	t.Run("untouched token still verifies", func(t *testing.T) {
		_, err := svc.ValidateAccessToken(at(issued), pair.AccessToken)
		require.NoError(t, err)
	})
}

func Test_BearerToken(t *testing.T) {
	cases := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"bearer abc", "abc", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		token, ok := BearerToken(tc.header)
		assert.Equal(t, tc.ok, ok, tc.header)
		assert.Equal(t, tc.token, token, tc.header)
	}
}
