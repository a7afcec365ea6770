package handlers

import (
	"errors"
	"net/http"

	"docutalk-backend/internal/models"
	"docutalk-backend/internal/services"
	"docutalk-backend/pkg/httputil"
	"docutalk-backend/pkg/logger"

	"go.uber.org/zap"
)

type CredentialsHandler struct {
	credService services.CredentialsService
}

func NewCredentialsHandler(credSvc services.CredentialsService) *CredentialsHandler {
	return &CredentialsHandler{
		credService: credSvc,
	}
}

// HandleCreateCredential handles POST /v1/credentials
func (h *CredentialsHandler) HandleCreateCredential(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "User not found in token context")
		return
	}

	var req models.CreateCredentialRequest
	if err := decodeJSON(r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.ServiceType == "" || len(req.Credentials) == 0 {
		httputil.RespondError(w, http.StatusBadRequest, "Missing required fields: service_type, credentials")
		return
	}

	resp, err := h.credService.CreateCredential(r.Context(), req, caller.UserID)
	if err != nil {
		if errors.Is(err, services.ErrCredentialEncryption) {
			logger.Error("[CredHandler] HandleCreateCredential", zap.String("user_id", caller.UserID.String()), zap.Error(err))
			httputil.RespondError(w, http.StatusInternalServerError, "Failed to secure credentials")
			return
		}
		respondServiceError(w, r, "create_credential", err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, resp)
}

// HandleListCredentials handles GET /v1/credentials
func (h *CredentialsHandler) HandleListCredentials(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "User not found in token context")
		return
	}

	var serviceTypeFilter *string
	if q := r.URL.Query().Get("service_type"); q != "" {
		serviceTypeFilter = &q
	}

	creds, err := h.credService.ListCredentials(r.Context(), caller.UserID, serviceTypeFilter)
	if err != nil {
		respondServiceError(w, r, "list_credentials", err)
		return
	}
	if creds == nil {
		creds = []models.CredentialResponse{}
	}
	httputil.RespondJSON(w, http.StatusOK, creds)
}

// HandleGetCredential handles GET /v1/credentials/{credentialID}
func (h *CredentialsHandler) HandleGetCredential(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "User not found in token context")
		return
	}
	credID, err := uuidParam(r, "credentialID")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.credService.GetCredential(r.Context(), credID, caller.UserID)
	if err != nil {
		respondServiceError(w, r, "get_credential", err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleDeleteCredential handles DELETE /v1/credentials/{credentialID}
func (h *CredentialsHandler) HandleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "User not found in token context")
		return
	}
	credID, err := uuidParam(r, "credentialID")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.credService.DeleteCredential(r.Context(), credID, caller.UserID); err != nil {
		respondServiceError(w, r, "delete_credential", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleTestCredential handles POST /v1/credentials/{credentialID}/test.
// A failed connection test is still a 200 with success=false.
func (h *CredentialsHandler) HandleTestCredential(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "User not found in token context")
		return
	}
	credID, err := uuidParam(r, "credentialID")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.credService.TestCredential(r.Context(), credID, caller.UserID)
	if err != nil {
		respondServiceError(w, r, "test_credential", err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}
