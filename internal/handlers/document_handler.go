package handlers

import (
	"net/http"
	"net/url"

	"docutalk-backend/internal/models"
	"docutalk-backend/internal/services"
	"docutalk-backend/pkg/httputil"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type DocumentHandlers struct {
	service        *services.DocumentService
	maxUploadBytes int64
}

func NewDocumentHandlers(ds *services.DocumentService, maxUploadMB int64) *DocumentHandlers {
	return &DocumentHandlers{service: ds, maxUploadBytes: maxUploadMB << 20}
}

// ListDocuments handles GET /v1/chatbots/{chatbotID}/documents.
func (h *DocumentHandlers) ListDocuments(w http.ResponseWriter, r *http.Request) {
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
	docs, err := h.service.List(r.Context(), caller, chatbotID)
	if err != nil {
		respondServiceError(w, r, "list_documents", err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, docs)
}

// UploadDocuments handles POST /v1/chatbots/{chatbotID}/documents.
func (h *DocumentHandlers) UploadDocuments(w http.ResponseWriter, r *http.Request) {
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
	files, err := readUploads(w, r, "documents", h.maxUploadBytes)
	if err != nil {
		respondServiceError(w, r, "upload_documents", err)
		return
	}
	docs, err := h.service.Upload(r.Context(), caller, chatbotID, files)
	if err != nil {
		respondServiceError(w, r, "upload_documents", err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, docs)
}

// DeleteDocument handles DELETE /v1/chatbots/{chatbotID}/documents/{filename}.
func (h *DocumentHandlers) DeleteDocument(w http.ResponseWriter, r *http.Request) {
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
	filename, err := url.PathUnescape(chi.URLParam(r, "filename"))
	if err != nil || filename == "" {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid filename")
		return
	}
	if err := h.service.Delete(r.Context(), caller, chatbotID, filename); err != nil {
		respondServiceError(w, r, "delete_document", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ImportNotionPage handles POST /v1/chatbots/{chatbotID}/documents/notion.
func (h *DocumentHandlers) ImportNotionPage(w http.ResponseWriter, r *http.Request) {
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
	var req models.ImportNotionPageRequest
	if err := decodeJSON(r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.CredentialID == uuid.Nil || req.PageID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "Missing required fields: credential_id, page_id")
		return
	}

	doc, err := h.service.ImportNotionPage(r.Context(), caller, chatbotID, req)
	if err != nil {
		respondServiceError(w, r, "import_notion_page", err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, doc)
}
