package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/adi-253/Talkie/chatsync/internal/auth"
	"github.com/adi-253/Talkie/chatsync/internal/models"
	"github.com/adi-253/Talkie/chatsync/internal/services"
	"github.com/adi-253/Talkie/chatsync/internal/validation"
)

const (
	// maxRequestBody caps a send request: every allowed attachment at full size plus form fields
	maxRequestBody = validation.MaxAttachments*validation.MaxAttachmentSize + 1<<20

	// multipartMemory is kept in memory while parsing; the rest spills to temp files
	multipartMemory = 32 << 20
)

// MessageHandler contains HTTP handlers for message operations.
type MessageHandler struct {
	messages *services.MessageService
}

// NewMessageHandler creates a new MessageHandler instance.
func NewMessageHandler(messages *services.MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

// ListMessages handles GET /chat/{chatId}/messages
// Query params:
//   - limit: page size, default 30, capped at 100
//   - cursor: nextCursor of the previous page; omitted for the newest page
func (h *MessageHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatId")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			http.Error(w, "invalid 'limit' parameter", http.StatusBadRequest)
			return
		}
		limit = v
	}

	page, err := h.messages.List(chatID, limit, r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// SendMessage handles POST /chat/{chatId}/messages
// Accepts a JSON body, or multipart/form-data with content, messageType,
// replyToId fields and up to five "files" parts.
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatId")
	user, _ := auth.User(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	in, err := decodeSend(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	in.Author = user

	msg, err := h.messages.Create(chatID, in)
	if err != nil {
		writeError(w, err)
		return
	}

	log.Info().Str("chat_id", chatID).Str("message_id", msg.ID).Int("attachments", len(msg.Attachments)).Msg("Message created")
	writeJSON(w, http.StatusCreated, msg)
}

// EditMessage handles PUT /chat/messages/{messageId}
func (h *MessageHandler) EditMessage(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.User(r.Context())

	var req models.EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	msg, err := h.messages.Edit(chi.URLParam(r, "messageId"), user.ID, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// DeleteMessage handles DELETE /chat/messages/{messageId}
func (h *MessageHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.User(r.Context())

	if err := h.messages.Delete(chi.URLParam(r, "messageId"), user.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeSend(r *http.Request) (services.NewMessageInput, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req models.SendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return services.NewMessageInput{}, fmt.Errorf("invalid request body: %w", err)
		}
		return services.NewMessageInput{Content: req.Content, MessageType: req.MessageType, ReplyToID: req.ReplyToID}, nil
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return services.NewMessageInput{}, err
	}
	defer r.MultipartForm.RemoveAll()

	in := services.NewMessageInput{MessageType: r.FormValue("messageType")}
	if v, ok := r.MultipartForm.Value["content"]; ok && len(v) > 0 {
		in.Content = &v[0]
	}
	if v := r.FormValue("replyToId"); v != "" {
		in.ReplyToID = &v
	}

	for _, fh := range r.MultipartForm.File["files"] {
		upload, err := readUpload(fh)
		if err != nil {
			return services.NewMessageInput{}, err
		}
		in.Uploads = append(in.Uploads, upload)
	}
	return in, nil
}

func readUpload(fh *multipart.FileHeader) (models.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return models.Upload{}, fmt.Errorf("failed to open %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return models.Upload{}, fmt.Errorf("failed to read %s: %w", fh.Filename, err)
	}
	return models.Upload{
		FileName: fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		Data:     data,
	}, nil
}
