// Package api is the REST client for the chat endpoints. Every request goes
// through a Gateway so expired credentials are refreshed transparently.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/adi-253/Talkie/chatsync/internal/config"
	"github.com/adi-253/Talkie/chatsync/internal/models"
)

// Client is a wrapper around the chat REST API.
type Client struct {
	baseURL    string
	userName   string
	auth       *Gateway
	timeout    time.Duration
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a new API client with the given configuration.
func NewClient(cfg *config.Config, auth *Gateway) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.APIBaseURL, "/"),
		userName:   cfg.UserName,
		auth:       auth,
		timeout:    cfg.RequestTimeout,
		httpClient: &http.Client{},
		logger:     log.With().Str("component", "api").Logger(),
	}
}

// payload is a request body that can be replayed after a credential refresh.
type payload struct {
	contentType string
	data        []byte
}

func jsonPayload(body interface{}) (*payload, error) {
	if body == nil {
		return nil, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	return &payload{contentType: "application/json", data: data}, nil
}

// doRequest executes a request against the chat API and returns the body of
// a successful response. Each attempt is bounded by the configured timeout.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body *payload) ([]byte, error) {
	var respBody []byte
	err := c.auth.Do(ctx, func(token string) error {
		var err error
		respBody, err = c.attempt(ctx, method, endpoint, body, token)
		return err
	})
	if err != nil {
		return nil, err
	}
	return respBody, nil
}

func (c *Client) attempt(ctx context.Context, method, endpoint string, body *payload, token string) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body.data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if c.userName != "" {
		req.Header.Set("X-User-Name", c.userName)
	}
	if body != nil {
		req.Header.Set("Content-Type", body.contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: request failed: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: failed to read response body: %w", method, endpoint, err)
	}

	c.logger.Debug().
		Str("method", method).
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("API request")

	if resp.StatusCode >= 400 {
		return nil, &StatusError{
			Method:     method,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}
	return respBody, nil
}

// GetWorkspaceChat returns the chat attached to a workspace and the caller's unread count.
func (c *Client) GetWorkspaceChat(ctx context.Context, workspaceID string) (*models.WorkspaceChatResponse, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/chat/workspace/"+url.PathEscape(workspaceID), nil)
	if err != nil {
		return nil, err
	}

	var out models.WorkspaceChatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to parse workspace chat: %w", err)
	}
	return &out, nil
}

// FetchMessages returns one page of history. An empty cursor asks for the newest page.
func (c *Client) FetchMessages(ctx context.Context, chatID string, limit int, cursor string) (*models.MessagePage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := fmt.Sprintf("/chat/%s/messages", url.PathEscape(chatID))
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	respBody, err := c.doRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var page models.MessagePage
	if err := json.Unmarshal(respBody, &page); err != nil {
		return nil, fmt.Errorf("failed to parse messages: %w", err)
	}
	return &page, nil
}

// SendMessage creates a message. With uploads the request is sent as
// multipart/form-data, otherwise as JSON.
func (c *Client) SendMessage(ctx context.Context, chatID string, req models.SendMessageRequest, uploads []models.Upload) (*models.Message, error) {
	if req.MessageType == "" {
		req.MessageType = models.MessageTypeText
	}

	var (
		body *payload
		err  error
	)
	if len(uploads) > 0 {
		body, err = multipartPayload(req, uploads)
	} else {
		body, err = jsonPayload(req)
	}
	if err != nil {
		return nil, err
	}

	respBody, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/chat/%s/messages", url.PathEscape(chatID)), body)
	if err != nil {
		return nil, err
	}

	var msg models.Message
	if err := json.Unmarshal(respBody, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// EditMessage replaces the content of a message and returns the server's copy.
func (c *Client) EditMessage(ctx context.Context, messageID, content string) (*models.Message, error) {
	body, err := jsonPayload(models.EditMessageRequest{Content: content})
	if err != nil {
		return nil, err
	}

	respBody, err := c.doRequest(ctx, http.MethodPut, "/chat/messages/"+url.PathEscape(messageID), body)
	if err != nil {
		return nil, err
	}

	var msg models.Message
	if err := json.Unmarshal(respBody, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// DeleteMessage removes a message.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, "/chat/messages/"+url.PathEscape(messageID), nil)
	return err
}

func multipartPayload(req models.SendMessageRequest, uploads []models.Upload) (*payload, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if req.Content != nil {
		if err := w.WriteField("content", *req.Content); err != nil {
			return nil, fmt.Errorf("failed to write content field: %w", err)
		}
	}
	if err := w.WriteField("messageType", req.MessageType); err != nil {
		return nil, fmt.Errorf("failed to write messageType field: %w", err)
	}
	if req.ReplyToID != nil {
		if err := w.WriteField("replyToId", *req.ReplyToID); err != nil {
			return nil, fmt.Errorf("failed to write replyToId field: %w", err)
		}
	}

	for _, u := range uploads {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, u.FileName))
		h.Set("Content-Type", u.MimeType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("failed to create part for %s: %w", u.FileName, err)
		}
		if _, err := part.Write(u.Data); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", u.FileName, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}
	return &payload{contentType: w.FormDataContentType(), data: buf.Bytes()}, nil
}
