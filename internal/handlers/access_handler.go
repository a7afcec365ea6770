package handlers

import (
	"net/http"
	"net/url"

	"docutalk-backend/internal/models"
	"docutalk-backend/internal/services"
	"docutalk-backend/pkg/httputil"

	"github.com/go-chi/chi/v5"
)

type AccessHandlers struct {
	service *services.AccessService
}

func NewAccessHandlers(as *services.AccessService) *AccessHandlers {
	return &AccessHandlers{service: as}
}

// ListAccess handles GET /v1/chatbots/{chatbotID}/access.
func (h *AccessHandlers) ListAccess(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "User not found in token context")
		return
	}
	chatbotID, err := uuidParam(r, "chatbotID")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, err := h.service.List(r.Context(), caller, chatbotID)
	if err != nil {
		respondServiceError(w, r, "list_access", err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, items)
}

// ShareChatbot handles POST /v1/chatbots/{chatbotID}/access.
func (h *AccessHandlers) ShareChatbot(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "User not found in token context")
		return
	}
	chatbotID, err := uuidParam(r, "chatbotID")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req models.ShareChatbotRequest
	if err := decodeJSON(r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	resp, err := h.service.Share(r.Context(), caller, chatbotID, req)
	if err != nil {
		respondServiceError(w, r, "share_chatbot", err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, resp)
}

// RemoveAccess handles DELETE /v1/chatbots/{chatbotID}/access/{email}.
func (h *AccessHandlers) RemoveAccess(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "User not found in token context")
		return
	}
	chatbotID, err := uuidParam(r, "chatbotID")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil || email == "" {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid email")
		return
	}
	if err := h.service.Remove(r.Context(), caller, chatbotID, email); err != nil {
		respondServiceError(w, r, "remove_access", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
