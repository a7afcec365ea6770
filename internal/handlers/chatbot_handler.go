package handlers

import (
	"io"
	"net/http"

	"docutalk-backend/internal/models"
	"docutalk-backend/internal/services"
	"docutalk-backend/pkg/httputil"
)

// ChatbotHandlers holds the dependencies for chatbot handlers.
type ChatbotHandlers struct {
	Service        *services.ChatbotService
	maxUploadBytes int64
	maxIconBytes   int64
}

// NewChatbotHandlers creates a new ChatbotHandlers.
func NewChatbotHandlers(cs *services.ChatbotService, maxUploadMB int64, maxIconKB int) *ChatbotHandlers {
	return &ChatbotHandlers{
		Service:        cs,
		maxUploadBytes: maxUploadMB << 20,
		maxIconBytes:   int64(maxIconKB) << 10,
	}
}

// CreateChatbot handles POST /v1/chatbots with multipart documents.
func (h *ChatbotHandlers) CreateChatbot(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "User not found in token context")
		return
	}
	files, err := readUploads(w, r, "documents", h.maxUploadBytes)
	if err != nil {
		respondServiceError(w, r, "create_chatbot", err)
		return
	}

	resp, err := h.Service.Create(r.Context(), caller, files)
	if err != nil {
		respondServiceError(w, r, "create_chatbot", err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, resp)
}

// ListChatbots handles GET /v1/chatbots.
func (h *ChatbotHandlers) ListChatbots(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "User not found in token context")
		return
	}
	resp, err := h.Service.List(r.Context(), caller)
	if err != nil {
		respondServiceError(w, r, "list_chatbots", err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// GetChatbot handles GET /v1/chatbots/{chatbotID}.
func (h *ChatbotHandlers) GetChatbot(w http.ResponseWriter, r *http.Request) {
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
	resp, err := h.Service.Get(r.Context(), caller, chatbotID)
	if err != nil {
		respondServiceError(w, r, "get_chatbot", err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// GetIcon handles GET /v1/chatbots/{chatbotID}/icon.
func (h *ChatbotHandlers) GetIcon(w http.ResponseWriter, r *http.Request) {
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
	icon, err := h.Service.Icon(r.Context(), caller, chatbotID)
	if err != nil {
		respondServiceError(w, r, "get_icon", err)
		return
	}
	httputil.RespondBytes(w, http.StatusOK, "image/png", icon)
}

// UpdateChatbot handles PATCH /v1/chatbots/{chatbotID}.
func (h *ChatbotHandlers) UpdateChatbot(w http.ResponseWriter, r *http.Request) {
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
	var req models.UpdateChatbotRequest
	if err := decodeJSON(r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Title == nil && req.Description == nil {
		httputil.RespondError(w, http.StatusBadRequest, "No update fields provided")
		return
	}

	resp, err := h.Service.Update(r.Context(), caller, chatbotID, req)
	if err != nil {
		respondServiceError(w, r, "update_chatbot", err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// SetIcon handles PUT /v1/chatbots/{chatbotID}/icon with a raw PNG body.
func (h *ChatbotHandlers) SetIcon(w http.ResponseWriter, r *http.Request) {
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
	// One byte over the limit is enough for the service to reject it.
	data, err := io.ReadAll(io.LimitReader(r.Body, h.maxIconBytes+1))
	r.Body.Close()
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.Service.SetIcon(r.Context(), caller, chatbotID, data); err != nil {
		respondServiceError(w, r, "set_icon", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteChatbot handles DELETE /v1/chatbots/{chatbotID}.
func (h *ChatbotHandlers) DeleteChatbot(w http.ResponseWriter, r *http.Request) {
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
	if err := h.Service.Delete(r.Context(), caller, chatbotID); err != nil {
		respondServiceError(w, r, "delete_chatbot", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdatePrompt handles PUT /v1/chatbots/{chatbotID}/prompts/{promptID}.
func (h *ChatbotHandlers) UpdatePrompt(w http.ResponseWriter, r *http.Request) {
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
	promptID, err := uuidParam(r, "promptID")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req models.UpdateSuggestedPromptRequest
	if err := decodeJSON(r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.Service.UpdatePrompt(r.Context(), caller, chatbotID, promptID, req.Prompt)
	if err != nil {
		respondServiceError(w, r, "update_prompt", err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// RequestPublic handles POST /v1/chatbots/{chatbotID}/public-request.
func (h *ChatbotHandlers) RequestPublic(w http.ResponseWriter, r *http.Request) {
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
	resp, err := h.Service.RequestPublic(r.Context(), caller, chatbotID)
	if err != nil {
		respondServiceError(w, r, "request_public", err)
		return
	}
	httputil.RespondJSON(w, http.StatusAccepted, resp)
}
