package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"docutalk-backend/internal/auth"
	"docutalk-backend/internal/config"
	"docutalk-backend/internal/models"
	"docutalk-backend/pkg/httputil"
	"docutalk-backend/pkg/logger"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	oauthStateCookie = "docu-talk-oauth-state"
	oauthStateTTL    = 10 * time.Minute
)

// AuthService defines the interface expected from the auth service.
type AuthService interface {
	Signup(ctx context.Context, req models.SignupRequest) (*models.User, error)
	Login(ctx context.Context, email, password string) (*models.AuthResponse, error)
	Guest(ctx context.Context) (*models.AuthResponse, error)
	OAuthURL(providerName, state string) (string, error)
	OAuthCallback(ctx context.Context, providerName, code string) (*models.AuthResponse, error)
}

type AuthHandler struct {
	authService AuthService
	cookieName  string
	secure      bool
	baseURL     string
}

func NewAuthHandler(authSvc AuthService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		authService: authSvc,
		cookieName:  cfg.Auth.CookieName,
		secure:      cfg.Auth.CookieSecure,
		baseURL:     cfg.Server.BaseURL,
	}
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, resp *models.AuthResponse) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    resp.AccessToken,
		Path:     "/",
		Expires:  resp.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// HandleSignup handles POST /v1/auth/signup.
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req models.SignupRequest
	if err := decodeJSON(r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.Email == "" || req.FirstName == "" || req.LastName == "" {
		httputil.RespondError(w, http.StatusBadRequest, "Email, first name and last name are required")
		return
	}

	user, err := h.authService.Signup(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, "signup", err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, models.NewUserResponse(user))
}

// HandleLogin handles POST /v1/auth/login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.Email == "" || req.Password == "" {
		httputil.RespondError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	resp, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(w, r, "login", err)
		return
	}
	h.setSessionCookie(w, resp)
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleGuest handles POST /v1/auth/guest.
func (h *AuthHandler) HandleGuest(w http.ResponseWriter, r *http.Request) {
	resp, err := h.authService.Guest(r.Context())
	if err != nil {
		respondServiceError(w, r, "guest", err)
		return
	}
	h.setSessionCookie(w, resp)
	httputil.RespondJSON(w, http.StatusCreated, resp)
}

// HandleLogout handles POST /v1/auth/logout.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// HandleOAuthLogin handles GET /v1/auth/oauth/{provider}/login.
func (h *AuthHandler) HandleOAuthLogin(w http.ResponseWriter, r *http.Request) {
	state, err := auth.NewState()
	if err != nil {
		logger.Error("[AuthHandler] generating oauth state failed", zap.Error(err))
		httputil.RespondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	url, err := h.authService.OAuthURL(chi.URLParam(r, "provider"), state)
	if err != nil {
		respondServiceError(w, r, "oauth_login", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/v1/auth/oauth",
		MaxAge:   int(oauthStateTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, url, http.StatusFound)
}

// HandleOAuthCallback handles GET /v1/auth/oauth/{provider}/callback.
func (h *AuthHandler) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	cookie, err := r.Cookie(oauthStateCookie)
	state := r.URL.Query().Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		logger.Warn("[AuthHandler] oauth state mismatch", zap.String("provider", provider))
		httputil.RespondError(w, http.StatusBadRequest, "Invalid OAuth state")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Path: "/v1/auth/oauth", MaxAge: -1})

	if e := r.URL.Query().Get("error"); e != "" {
		logger.Warn("[AuthHandler] oauth provider returned an error", zap.String("provider", provider), zap.String("error", e))
		httputil.RespondError(w, http.StatusUnauthorized, "Login was cancelled or refused")
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		httputil.RespondError(w, http.StatusBadRequest, "Missing authorization code")
		return
	}

	resp, err := h.authService.OAuthCallback(r.Context(), provider, code)
	if err != nil {
		respondServiceError(w, r, "oauth_callback", err)
		return
	}
	h.setSessionCookie(w, resp)
	http.Redirect(w, r, h.baseURL, http.StatusFound)
}
