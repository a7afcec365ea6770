package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"docutalk-backend/internal/auth"
	"docutalk-backend/internal/config"
	"docutalk-backend/internal/handlers"

	"github.com/google/uuid"
)

const testSecret = "test-secret"

func whoami(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email, ok := auth.GetEmailFromContext(r.Context())
		if !ok {
			t.Error("email missing from context")
		}
		if auth.IsGuestFromContext(r.Context()) {
			w.Header().Set("X-Guest", "1")
		}
		w.Write([]byte(email))
	})
}

func TestJwtAuthMiddleware(t *testing.T) {
	valid, _, err := auth.NewAccessToken(uuid.New(), "ada@example.com", true, testSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	expired, _, _ := auth.NewAccessToken(uuid.New(), "ada@example.com", false, testSecret, -time.Minute)
	forged, _, _ := auth.NewAccessToken(uuid.New(), "ada@example.com", false, "other-secret", time.Hour)

	cases := []struct {
		name   string
		header string
		cookie string
		want   int
	}{
		{"bearer", "Bearer " + valid, "", http.StatusOK},
		{"lowercase scheme", "bearer " + valid, "", http.StatusOK},
		{"cookie", "", valid, http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"malformed header", "Token " + valid, "", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, "", http.StatusUnauthorized},
		{"wrong secret", "", forged, http.StatusUnauthorized},
	}
	h := JwtAuthMiddleware(testSecret, "docu-talk")(whoami(t))
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "docu-talk", Value: tc.cookie})
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.want, rec.Body.String())
			}
			if tc.want == http.StatusOK && (rec.Body.String() != "ada@example.com" || rec.Header().Get("X-Guest") != "1") {
				t.Fatalf("identity not propagated: %q %v", rec.Body.String(), rec.Header())
			}
		})
	}
}

func TestRouterPublicAndProtected(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{AllowedOrigins: []string{"http://localhost:5173"}},
		Auth:   config.AuthConfig{JWTSecret: testSecret, CookieName: "docu-talk"},
	}
	r := NewRouter(RouterDependencies{AuthHandler: handlers.NewAuthHandler(nil, cfg), Config: cfg})

	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/v1/chatbots", http.StatusUnauthorized},
		{http.MethodPost, "/v1/auth/logout", http.StatusNoContent},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		if rec.Code != tc.want {
			t.Errorf("%s %s = %d, want %d", tc.method, tc.path, rec.Code, tc.want)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{AllowedOrigins: []string{"http://localhost:5173"}},
		Auth:   config.AuthConfig{JWTSecret: testSecret, CookieName: "docu-talk"},
	}
	r := NewRouter(RouterDependencies{AuthHandler: handlers.NewAuthHandler(nil, cfg), Config: cfg})

	req := httptest.NewRequest(http.MethodOptions, "/v1/chatbots", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("allow origin = %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatal("credentials not allowed")
	}
}
