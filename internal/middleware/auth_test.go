package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"

	"github.com/nehonix/xypriss/internal/config"
	"github.com/nehonix/xypriss/internal/model"
)

func signToken(t *testing.T, secret string, expired bool) string {
	t.Helper()
	exp := time.Now().Add(time.Hour)
	if expired {
		exp = time.Now().Add(-time.Hour)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	assert.NoError(t, err)
	return signed
}

func newRequest(t *testing.T, header string) *model.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/api/widgets", nil)
	if header != "" {
		r.Header.Set("Authorization", header)
	}
	return model.NewRequest(r, "req-1")
}

func TestJWTAuthMissingToken(t *testing.T) {
	mw := JWTAuth(config.JWTConfig{Secret: "s3cret"})
	res := model.NewResponse()
	called := false
	mw(newRequest(t, ""), res, func(err error) { called = true })

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, res.Status)
}

func TestJWTAuthValidToken(t *testing.T) {
	mw := JWTAuth(config.JWTConfig{Secret: "s3cret"})
	token := signToken(t, "s3cret", false)
	res := model.NewResponse()
	called := false
	req := newRequest(t, "Bearer "+token)
	mw(req, res, func(err error) { called = true })

	assert.True(t, called)
	assert.NotNil(t, res.Locals["jwt"])
}

func TestJWTAuthExpiredToken(t *testing.T) {
	mw := JWTAuth(config.JWTConfig{Secret: "s3cret"})
	token := signToken(t, "s3cret", true)
	res := model.NewResponse()
	called := false
	mw(newRequest(t, "Bearer "+token), res, func(err error) { called = true })

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, res.Status)
}

func TestJWTAuthWrongSecret(t *testing.T) {
	mw := JWTAuth(config.JWTConfig{Secret: "s3cret"})
	token := signToken(t, "wrong-secret", false)
	res := model.NewResponse()
	called := false
	mw(newRequest(t, "Bearer "+token), res, func(err error) { called = true })

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, res.Status)
}
