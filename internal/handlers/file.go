package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/adi-253/Talkie/chatsync/internal/services"
)

// FileHandler serves attachment downloads.
type FileHandler struct {
	files *services.FileService
}

// NewFileHandler creates a new FileHandler instance.
func NewFileHandler(files *services.FileService) *FileHandler {
	return &FileHandler{files: files}
}

// Download handles GET /files/{fileId}
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	file, err := h.files.Get(chi.URLParam(r, "fileId"))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", file.Attachment.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Attachment.FileName))
	w.WriteHeader(http.StatusOK)
	w.Write(file.Data)
}
