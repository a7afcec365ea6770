package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"docutalk-backend/internal/auth"
	"docutalk-backend/internal/integrations"
	"docutalk-backend/internal/services"
	"docutalk-backend/internal/store"
	"docutalk-backend/pkg/httputil"
	"docutalk-backend/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// callerFromRequest reads the identity set by the JWT middleware.
func callerFromRequest(r *http.Request) (services.Caller, bool) {
	ctx := r.Context()
	userID, ok := auth.GetUserIDFromContext(ctx)
	if !ok {
		return services.Caller{}, false
	}
	email, ok := auth.GetEmailFromContext(ctx)
	if !ok {
		return services.Caller{}, false
	}
	return services.Caller{UserID: userID, Email: email, IsGuest: auth.IsGuestFromContext(ctx)}, true
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s format", name)
	}
	return id, nil
}

// decodeJSON decodes the request body into v. An empty body leaves v as is.
func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// statusFor maps service and store errors to an HTTP status and the
// message shown to the client.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrTooManyDocuments),
		errors.Is(err, services.ErrTooManyPages),
		errors.Is(err, services.ErrInvalidDocument),
		errors.Is(err, services.ErrInvalidIcon),
		errors.Is(err, services.ErrNoExchange),
		errors.Is(err, services.ErrRemoveSelf),
		errors.Is(err, services.ErrPublicChatbot),
		errors.Is(err, services.ErrCredentialValidation),
		errors.Is(err, services.ErrCredentialTestFailed),
		errors.Is(err, services.ErrUnsupportedServiceType),
		errors.Is(err, integrations.ErrInvalidPageID),
		errors.Is(err, auth.ErrUnknownProvider):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, services.ErrNoCredits):
		return http.StatusPaymentRequired, err.Error()
	case errors.Is(err, services.ErrForbidden),
		errors.Is(err, services.ErrGuestForbidden),
		errors.Is(err, services.ErrGuestModeDisabled):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, services.ErrChatbotNotFound),
		errors.Is(err, services.ErrConversationNotFound),
		errors.Is(err, services.ErrDocumentNotFound),
		errors.Is(err, services.ErrPromptNotFound),
		errors.Is(err, services.ErrAccessNotFound),
		errors.Is(err, services.ErrCredentialNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, services.ErrUserAlreadyExists),
		errors.Is(err, services.ErrDuplicateDocument),
		errors.Is(err, store.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, services.ErrUpstream):
		return http.StatusBadGateway, "The AI service is unavailable, please try again later"
	case errors.Is(err, services.ErrBadOutputFormat):
		return http.StatusBadGateway, "The AI service returned an unexpected answer, please try again"
	}
	return http.StatusInternalServerError, "Internal server error"
}

// respondServiceError logs err and writes the mapped status.
func respondServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, msg := statusFor(err)
	fields := []zap.Field{zap.String("op", op), zap.Int("status", status), zap.Error(err)}
	if status >= http.StatusInternalServerError {
		logger.Error("[Handler] request failed", fields...)
	} else {
		logger.Debug("[Handler] request rejected", fields...)
	}
	httputil.RespondError(w, status, msg)
}

// readUploads returns the files of the multipart field, within maxBytes in total.
func readUploads(w http.ResponseWriter, r *http.Request, field string, maxBytes int64) ([]services.UploadedFile, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return nil, fmt.Errorf("%w: %v", services.ErrValidation, err)
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		headers = r.MultipartForm.File[field+"[]"]
	}
	if len(headers) == 0 {
		return nil, fmt.Errorf("%w: no %s uploaded", services.ErrValidation, field)
	}

	files := make([]services.UploadedFile, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", h.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", h.Filename, err)
		}
		files = append(files, services.UploadedFile{Filename: h.Filename, Data: data})
	}
	return files, nil
}
