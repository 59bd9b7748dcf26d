// Package chatapi is the client for the chat REST backend.
package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/Monica-b-mb/mentorpulse-sub000/internal/models"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not found")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat api error (status %d): %s", e.Status, e.Message)
}

// Unwrap maps well-known statuses onto sentinel errors.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return ErrUnauthorized
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	case e.Status >= 500:
		return ErrServiceUnavailable
	}
	return nil
}

// envelope is the backend's response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message,omitempty"`
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// RetryMaxElapsed bounds retries of idempotent GETs. Zero disables retries.
	RetryMaxElapsed time.Duration
	HTTPClient      *http.Client
	Logger          *zap.Logger
}

// Client is a wrapper around the chat REST API. It authenticates with the
// user's session token. Every call goes through a circuit breaker so a dead
// backend fails fast instead of stacking up timeouts.
type Client struct {
	baseURL         string
	token           string
	httpClient      *http.Client
	retryMaxElapsed time.Duration
	cb              *gobreaker.CircuitBreaker
	log             *zap.Logger
}

// NewClient creates a new chat API client.
func NewClient(opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "chat-api",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Client errors say nothing about backend health.
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.Status < 500
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	return &Client{
		baseURL:         strings.TrimRight(opts.BaseURL, "/"),
		token:           opts.Token,
		httpClient:      httpClient,
		retryMaxElapsed: opts.RetryMaxElapsed,
		cb:              cb,
		log:             log,
	}
}

// doRequest executes one HTTP request against the API and decodes the
// envelope's data into out (when out is non-nil).
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = b
	}

	raw, err := c.cb.Execute(func() (interface{}, error) {
		return c.roundTrip(ctx, method, endpoint, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s %s: %w", method, endpoint, ErrServiceUnavailable)
	}
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(raw.([]byte), &env); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if !env.Success {
		return &APIError{Status: http.StatusOK, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to parse response data: %w", err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		msg := strings.TrimSpace(string(respBody))
		var env envelope
		if json.Unmarshal(respBody, &env) == nil && env.Message != "" {
			msg = env.Message
		}
		return nil, &APIError{Status: resp.StatusCode, Message: msg}
	}
	return respBody, nil
}

// get runs an idempotent GET, retrying transport errors and 5xx responses
// with exponential backoff.
func (c *Client) get(ctx context.Context, endpoint string, out interface{}) error {
	if c.retryMaxElapsed <= 0 {
		return c.doRequest(ctx, http.MethodGet, endpoint, nil, out)
	}

	operation := func() error {
		err := c.doRequest(ctx, http.MethodGet, endpoint, nil, out)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status < 500 {
			return backoff.Permanent(err)
		}
		if errors.Is(err, ErrServiceUnavailable) && !errors.As(err, &apiErr) {
			// Breaker is open; retrying only burns the budget.
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = c.retryMaxElapsed
	return backoff.RetryNotify(operation, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		c.log.Warn("retrying request", zap.String("endpoint", endpoint), zap.Duration("in", next), zap.Error(err))
	})
}

// ListConversations retrieves the current user's conversations.
func (c *Client) ListConversations(ctx context.Context) ([]models.WireConversation, error) {
	var convs []models.WireConversation
	if err := c.get(ctx, "/chat/user/chats", &convs); err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return convs, nil
}

// GetOrCreateConversation returns the conversation with participantID,
// creating it if needed. The backend keys it by the unordered pair.
func (c *Client) GetOrCreateConversation(ctx context.Context, participantID string) (*models.WireConversation, error) {
	var conv models.WireConversation
	req := models.GetOrCreateRequest{ParticipantID: participantID}
	if err := c.doRequest(ctx, http.MethodPost, "/chat/get-or-create", req, &conv); err != nil {
		return nil, fmt.Errorf("failed to get or create conversation: %w", err)
	}
	return &conv, nil
}

// GetMessages retrieves one page of a conversation's messages.
func (c *Client) GetMessages(ctx context.Context, chatID string, page, limit int) (*models.MessagePage, error) {
	q := url.Values{}
	q.Set("page", fmt.Sprint(page))
	q.Set("limit", fmt.Sprint(limit))
	endpoint := fmt.Sprintf("/chat/%s/messages?%s", url.PathEscape(chatID), q.Encode())

	var out models.MessagePage
	if err := c.get(ctx, endpoint, &out); err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return &out, nil
}

// SendMessage posts a text message. It is never retried: a retry after a lost
// response could store the message twice.
func (c *Client) SendMessage(ctx context.Context, chatID, content, clientMessageID string) (*models.WireMessage, error) {
	req := models.SendMessageRequest{
		Content:         content,
		MessageType:     string(models.KindText),
		ClientMessageID: clientMessageID,
	}
	endpoint := fmt.Sprintf("/chat/%s/messages", url.PathEscape(chatID))

	var msg models.WireMessage
	if err := c.doRequest(ctx, http.MethodPost, endpoint, req, &msg); err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	return &msg, nil
}

// MarkRead marks every message of the conversation as read by the current user.
func (c *Client) MarkRead(ctx context.Context, chatID string) error {
	endpoint := fmt.Sprintf("/chat/%s/read", url.PathEscape(chatID))
	if err := c.doRequest(ctx, http.MethodPatch, endpoint, nil, nil); err != nil {
		return fmt.Errorf("failed to mark conversation read: %w", err)
	}
	return nil
}
