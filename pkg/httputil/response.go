package httputil

import (
	"docutalk-backend/internal/models"
	"docutalk-backend/pkg/logger"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// RespondJSON writes a JSON response with the given status code and payload.
func RespondJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// Headers are gone already.
		logger.Warn("[httputil] encoding JSON response failed", zap.Int("status", statusCode), zap.Error(err))
	}
}

// RespondError writes {"error": message} with the given status code.
func RespondError(w http.ResponseWriter, statusCode int, message string) {
	RespondJSON(w, statusCode, models.ErrorResponse{Error: message})
}

// RespondBytes writes a raw body, used for icons.
func RespondBytes(w http.ResponseWriter, statusCode int, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(statusCode)
	if _, err := w.Write(body); err != nil {
		logger.Warn("[httputil] writing response body failed", zap.Error(err))
	}
}
