package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSignAndVerifyJWT(t *testing.T) {
	token, err := SignJWT("secret", TokenClaims{Sub: "user-1", Exp: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	claims, err := VerifyJWT("secret", token)
	if err != nil {
		t.Fatalf("VerifyJWT: %v", err)
	}
	if claims.Sub != "user-1" {
		t.Fatalf("sub = %q", claims.Sub)
	}

	if _, err := VerifyJWT("wrong-secret", token); err == nil {
		t.Fatalf("wrong secret must fail verification")
	}

	expired, _ := SignJWT("secret", TokenClaims{Sub: "user-1", Exp: time.Now().Add(-time.Minute).Unix()})
	if _, err := VerifyJWT("secret", expired); err == nil {
		t.Fatalf("expired token must fail verification")
	}
}

func TestOptionalAuthJWT(t *testing.T) {
	var gotUser string
	handler := OptionalAuthJWT("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
	}))

	// Anonymous requests pass through.
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK || gotUser != "" {
		t.Fatalf("anonymous: code = %d, user = %q", w.Code, gotUser)
	}

	// A valid token binds the user.
	token, _ := SignJWT("secret", TokenClaims{Sub: "user-1", Exp: time.Now().Add(time.Hour).Unix()})
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if gotUser != "user-1" {
		t.Fatalf("user = %q, want user-1", gotUser)
	}

	// A present but invalid token is rejected.
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer garbage")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("invalid token: code = %d", w.Code)
	}
}

func TestAuthJWTRequiresToken(t *testing.T) {
	handler := AuthJWT("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: code = %d", w.Code)
	}
}
