package handlers

import (
	"net/http"
	"time"

	"docutalk-backend/internal/models"
	"docutalk-backend/internal/services"
	"docutalk-backend/pkg/httputil"
	"docutalk-backend/pkg/logger"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const pingInterval = 15 * time.Second

type chunkEvent struct {
	Delta string `json:"delta"`
}

// ChatHandlers handles HTTP requests related to conversations.
type ChatHandlers struct {
	chatService *services.ChatService
}

// NewChatHandlers creates a new ChatHandlers instance.
func NewChatHandlers(chatService *services.ChatService) *ChatHandlers {
	return &ChatHandlers{chatService: chatService}
}

// HandleStartConversation handles POST /v1/chatbots/{chatbotID}/conversations.
func (h *ChatHandlers) HandleStartConversation(w http.ResponseWriter, r *http.Request) {
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
	conv, err := h.chatService.StartConversation(r.Context(), caller, chatbotID)
	if err != nil {
		respondServiceError(w, r, "start_conversation", err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, conv)
}

// HandleGetConversation handles GET /v1/conversations/{conversationID}.
func (h *ChatHandlers) HandleGetConversation(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "User not found in token context")
		return
	}
	conv, err := h.chatService.GetConversation(r.Context(), caller, chi.URLParam(r, "conversationID"))
	if err != nil {
		respondServiceError(w, r, "get_conversation", err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, conv)
}

// HandleAsk handles POST /v1/conversations/{conversationID}/ask and streams
// the answer as server-sent events.
func (h *ChatHandlers) HandleAsk(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "User not found in token context")
		return
	}
	var req models.AskRequest
	if err := decodeJSON(r, &req); err != nil || req.Message == "" {
		httputil.RespondError(w, http.StatusBadRequest, "A message is required")
		return
	}
	sse, ok := newSSEWriter(w)
	if !ok {
		httputil.RespondError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	stopPing := sse.KeepAlive(r.Context(), pingInterval)
	defer stopPing()

	conversationID := chi.URLParam(r, "conversationID")
	result, err := h.chatService.Ask(r.Context(), caller, conversationID, req, func(delta string) error {
		return sse.Event("chunk", chunkEvent{Delta: delta})
	})
	stopPing()
	if err != nil {
		if !sse.Started() {
			respondServiceError(w, r, "ask", err)
			return
		}
		status, msg := statusFor(err)
		logger.Warn("[ChatHandler] answer stream failed",
			zap.String("conversation_id", conversationID),
			zap.Int("status", status),
			zap.Error(err),
		)
		sse.Event("error", models.ErrorResponse{Error: msg})
		return
	}
	if err := sse.Event("done", result); err != nil {
		logger.Warn("[ChatHandler] writing done event failed", zap.String("conversation_id", conversationID), zap.Error(err))
	}
}

// HandleSources handles POST /v1/conversations/{conversationID}/sources.
func (h *ChatHandlers) HandleSources(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "User not found in token context")
		return
	}
	var req models.SourcesRequest
	if err := decodeJSON(r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	resp, err := h.chatService.Sources(r.Context(), caller, chi.URLParam(r, "conversationID"), req)
	if err != nil {
		respondServiceError(w, r, "sources", err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleResetConversation handles DELETE /v1/conversations/{conversationID}/messages.
func (h *ChatHandlers) HandleResetConversation(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "User not found in token context")
		return
	}
	if err := h.chatService.ResetConversation(r.Context(), caller, chi.URLParam(r, "conversationID")); err != nil {
		respondServiceError(w, r, "reset_conversation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleEstimate handles POST /v1/estimates.
func (h *ChatHandlers) HandleEstimate(w http.ResponseWriter, r *http.Request) {
	var req models.EstimateRequest
	if err := decodeJSON(r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	seconds, err := h.chatService.Estimate(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, "estimate", err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, models.EstimateResponse{Seconds: seconds})
}
