package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func validClaims(sub string, roles ...string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    "formengine",
			Audience:  jwt.ClaimStrings{"ui"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: roles,
	}
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %d error, got nil", code)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}

	mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})
	expectStatus(t, mw(handler)(c), http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", tt.header)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			handler := func(c echo.Context) error {
				t.Error("handler should not be called")
				return nil
			}
			mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})
			expectStatus(t, mw(handler)(c), http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	token := createTestToken(t, validClaims("user-7", "receptionist"), testSigningKey)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var gotUser string
	var gotRoles []string
	handler := func(c echo.Context) error {
		gotUser = UserIDFromContext(c.Request().Context())
		gotRoles = RolesFromContext(c.Request().Context())
		return c.String(http.StatusOK, "ok")
	}

	mw := JWTMiddleware(JWTConfig{Issuer: "formengine", Audience: "ui", SigningKey: testSigningKey})
	if err := mw(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotUser != "user-7" {
		t.Errorf("expected user-7, got %q", gotUser)
	}
	if len(gotRoles) != 1 || gotRoles[0] != "receptionist" {
		t.Errorf("expected [receptionist], got %v", gotRoles)
	}
}

func TestJWTMiddleware_Rejections(t *testing.T) {
	expired := validClaims("user-1")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	noExpiry := validClaims("user-1")
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{"expired", func(t *testing.T) string { return createTestToken(t, expired, testSigningKey) }},
		{"missing expiry", func(t *testing.T) string { return createTestToken(t, noExpiry, testSigningKey) }},
		{"wrong key", func(t *testing.T) string {
			return createTestToken(t, validClaims("user-1"), []byte("another-key-another-key-another-k"))
		}},
		{"wrong issuer", func(t *testing.T) string {
			c := validClaims("user-1")
			c.Issuer = "someone-else"
			return createTestToken(t, c, testSigningKey)
		}},
		{"wrong audience", func(t *testing.T) string {
			c := validClaims("user-1")
			c.Audience = jwt.ClaimStrings{"api"}
			return createTestToken(t, c, testSigningKey)
		}},
		{"garbage", func(t *testing.T) string { return "not.a.token" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token(t))
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			handler := func(c echo.Context) error {
				t.Error("handler should not be called")
				return nil
			}
			mw := JWTMiddleware(JWTConfig{Issuer: "formengine", Audience: "ui", SigningKey: testSigningKey})
			expectStatus(t, mw(handler)(c), http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_RejectsOtherAlgorithms(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, validClaims("user-1"))
	tokenStr, err := token.SignedString(testSigningKey)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	c := e.NewContext(req, httptest.NewRecorder())

	mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})
	expectStatus(t, mw(func(c echo.Context) error { return nil })(c), http.StatusUnauthorized)
}

func TestDevAuthMiddleware_NoToken(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		uid := UserIDFromContext(c.Request().Context())
		roles := RolesFromContext(c.Request().Context())
		if uid != "dev-user" {
			t.Errorf("expected dev-user, got %s", uid)
		}
		if len(roles) != 1 || roles[0] != "admin" {
			t.Errorf("expected [admin] roles, got %v", roles)
		}
		return c.String(http.StatusOK, "ok")
	}

	mw := DevAuthMiddleware(JWTConfig{})
	if err := mw(handler)(c); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDevAuthMiddleware_ValidatesSentToken(t *testing.T) {
	token := createTestToken(t, validClaims("user-9", "physician"), testSigningKey)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	c := e.NewContext(req, httptest.NewRecorder())

	var uid string
	handler := func(c echo.Context) error {
		uid = UserIDFromContext(c.Request().Context())
		return nil
	}
	mw := DevAuthMiddleware(JWTConfig{SigningKey: testSigningKey})
	if err := mw(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uid != "user-9" {
		t.Errorf("expected token subject, got %q", uid)
	}

	bad := httptest.NewRequest(http.MethodGet, "/", nil)
	bad.Header.Set("Authorization", "Bearer nope")
	expectStatus(t, mw(handler)(e.NewContext(bad, httptest.NewRecorder())), http.StatusUnauthorized)
}

func TestIssueToken(t *testing.T) {
	cfg := JWTConfig{Issuer: "formengine", Audience: "ui", SigningKey: testSigningKey}
	tokenStr, err := IssueToken(cfg, "user-3", []string{"admin"}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	claims, err := cfg.parse(tokenStr)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "user-3" || len(claims.Roles) != 1 || claims.Roles[0] != "admin" {
		t.Errorf("unexpected claims: %+v", claims)
	}

	if _, err := IssueToken(JWTConfig{}, "user-3", nil, time.Hour); err == nil {
		t.Error("expected error without signing key")
	}
}
