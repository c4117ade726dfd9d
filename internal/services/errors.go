package services

import "errors"

var (
	ErrChatNotFound    = errors.New("chat not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrFileNotFound    = errors.New("file not found")
	ErrNotAuthor       = errors.New("only the author can change this message")
	ErrReplyNotFound   = errors.New("reply target is not a message in this chat")
	ErrInvalidCursor   = errors.New("invalid cursor")
)
