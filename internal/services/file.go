package services

import (
	"sync"

	"github.com/google/uuid"

	"github.com/adi-253/Talkie/chatsync/internal/models"
)

// File is an uploaded attachment together with its bytes.
type File struct {
	Attachment models.Attachment
	MessageID  string
	Data       []byte
}

// FileService keeps attachment contents served by GET /files/{id}.
type FileService struct {
	mu    sync.RWMutex
	files map[string]File
}

// NewFileService creates a new FileService instance.
func NewFileService() *FileService {
	return &FileService{files: make(map[string]File)}
}

// Save stores an upload for messageID and returns its attachment descriptor.
func (s *FileService) Save(messageID string, u models.Upload) models.Attachment {
	id := uuid.NewString()
	att := models.Attachment{
		ID:       id,
		FileName: u.FileName,
		MimeType: u.MimeType,
		Size:     u.Size(),
		URL:      "/files/" + id,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = File{Attachment: att, MessageID: messageID, Data: u.Data}
	return att
}

// Get returns a stored file.
func (s *FileService) Get(id string) (File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[id]
	if !ok {
		return File{}, ErrFileNotFound
	}
	return f, nil
}

// DeleteForMessage drops every file attached to messageID.
func (s *FileService) DeleteForMessage(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, f := range s.files {
		if f.MessageID == messageID {
			delete(s.files, id)
		}
	}
}

// Len returns the number of stored files.
func (s *FileService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}
