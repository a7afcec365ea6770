package handlers

import (
	"net/http"

	"docutalk-backend/internal/models"
	"docutalk-backend/internal/services"
	"docutalk-backend/pkg/httputil"
)

type UserHandler struct {
	users      *services.UserService
	cookieName string
}

func NewUserHandler(users *services.UserService, cookieName string) *UserHandler {
	return &UserHandler{users: users, cookieName: cookieName}
}

// HandleGetMe handles GET /v1/me.
func (h *UserHandler) HandleGetMe(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "User not found in token context")
		return
	}
	user, err := h.users.Get(r.Context(), caller.UserID)
	if err != nil {
		respondServiceError(w, r, "get_me", err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, models.NewUserResponse(user))
}

// HandleDeleteMe handles DELETE /v1/me and ends the session.
func (h *UserHandler) HandleDeleteMe(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "User not found in token context")
		return
	}
	if err := h.users.Delete(r.Context(), caller.UserID); err != nil {
		respondServiceError(w, r, "delete_me", err)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: h.cookieName, Path: "/", MaxAge: -1, HttpOnly: true})
	w.WriteHeader(http.StatusNoContent)
}

// HandleAcceptTerms handles POST /v1/me/terms-of-use.
func (h *UserHandler) HandleAcceptTerms(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "User not found in token context")
		return
	}
	user, err := h.users.AcceptTermsOfUse(r.Context(), caller.UserID)
	if err != nil {
		respondServiceError(w, r, "accept_terms", err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, models.NewUserResponse(user))
}

// HandleCredits handles GET /v1/me/credits.
func (h *UserHandler) HandleCredits(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "User not found in token context")
		return
	}
	credits, err := h.users.Credits(r.Context(), caller.UserID)
	if err != nil {
		respondServiceError(w, r, "credits", err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, credits)
}
