// Package validation holds the message and attachment rules shared by the
// client (advisory pre-checks) and the relay (authoritative checks).
package validation

import (
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

const (
	// MaxAttachments is the number of files allowed on one message
	MaxAttachments = 5

	// MaxAttachmentSize is the per-file limit (10 MiB)
	MaxAttachmentSize = 10 << 20
)

// AllowedMIMETypes lists the attachment types accepted by the chat API.
var AllowedMIMETypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"application/pdf",
	"text/plain",
	"text/csv",
	"application/zip",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

var (
	ErrEmptyMessage       = errors.New("message must have content or at least one attachment")
	ErrTooManyAttachments = fmt.Errorf("a message can carry at most %d attachments", MaxAttachments)
	ErrAttachmentTooLarge = fmt.Errorf("attachment exceeds %d bytes", MaxAttachmentSize)
	ErrAttachmentEmpty    = errors.New("attachment is empty")
	ErrAttachmentType     = errors.New("attachment type is not allowed")
	ErrAttachmentName     = errors.New("attachment has no file name")
)

// Error reports which rule a message broke. It unwraps to one of the Err* values.
type Error struct {
	Field string
	Err   error
}

func (e *Error) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// File is the metadata of an attachment about to be sent.
type File struct {
	Name     string
	MimeType string
	Size     int64
}

type fileRule struct {
	Name     string `validate:"required"`
	MimeType string `validate:"required,allowed_mime"`
	Size     int64  `validate:"gt=0,lte=10485760"`
}

type messageRule struct {
	Files []fileRule `validate:"max=5,dive"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("allowed_mime", func(fl validator.FieldLevel) bool {
		return IsAllowedMIME(fl.Field().String())
	})
	return v
}

// IsAllowedMIME reports whether a content type (parameters ignored) is on the allow-list.
func IsAllowedMIME(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(contentType)
	}
	return lo.Contains(AllowedMIMETypes, strings.ToLower(mediaType))
}

// Message checks a new message before it is sent.
func Message(content string, files []File) error {
	if strings.TrimSpace(content) == "" && len(files) == 0 {
		return &Error{Field: "content", Err: ErrEmptyMessage}
	}

	rule := messageRule{
		Files: lo.Map(files, func(f File, _ int) fileRule {
			return fileRule{Name: f.Name, MimeType: f.MimeType, Size: f.Size}
		}),
	}
	if err := validate.Struct(rule); err != nil {
		return translate(err)
	}
	return nil
}

// Edit checks replacement content for an existing message.
func Edit(content string) error {
	if strings.TrimSpace(content) == "" {
		return &Error{Field: "content", Err: ErrEmptyMessage}
	}
	return nil
}

// translate maps the first validator failure onto our error values
func translate(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}

	fe := verrs[0]
	field := strings.TrimPrefix(fe.Namespace(), "messageRule.")
	switch {
	case fe.Field() == "Files" && fe.Tag() == "max":
		return &Error{Field: "files", Err: ErrTooManyAttachments}
	case fe.Field() == "Size" && fe.Tag() == "lte":
		return &Error{Field: field, Err: ErrAttachmentTooLarge}
	case fe.Field() == "Size":
		return &Error{Field: field, Err: ErrAttachmentEmpty}
	case fe.Field() == "MimeType":
		return &Error{Field: field, Err: ErrAttachmentType}
	case fe.Field() == "Name":
		return &Error{Field: field, Err: ErrAttachmentName}
	}
	return &Error{Field: field, Err: err}
}
