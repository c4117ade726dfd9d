package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/adi-253/Talkie/chatsync/internal/services"
	"github.com/adi-253/Talkie/chatsync/internal/validation"
)

// writeJSON is a helper function to write JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}

// writeError maps service and validation errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrChatNotFound),
		errors.Is(err, services.ErrMessageNotFound),
		errors.Is(err, services.ErrFileNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrNotAuthor):
		status = http.StatusForbidden
	case errors.Is(err, validation.ErrAttachmentTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, validation.ErrAttachmentType):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, services.ErrReplyNotFound),
		errors.Is(err, services.ErrInvalidCursor):
		status = http.StatusBadRequest
	default:
		var verr *validation.Error
		if errors.As(err, &verr) {
			status = http.StatusBadRequest
		}
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	}
	http.Error(w, err.Error(), status)
}
