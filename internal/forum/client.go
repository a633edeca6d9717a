package forum

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mixelka/replypost/internal/orchestrator"
)

// Client talks to the forum's internal email-gateway API. Every call is
// authenticated with the shared gateway key.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Config for the forum API client
type Config struct {
	BaseURL string // e.g., https://forum.example.com
	APIKey  string
}

// NewClient creates a new forum API client
func NewClient(cfg Config) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type userResponse struct {
	ID             int64  `json:"id"`
	Email          string `json:"email"`
	EmailValidated bool   `json:"email_validated"`
	EmailSignature string `json:"email_signature"`
}

type postResponse struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type permissionResponse struct {
	Allowed bool `json:"allowed"`
}

type apiError struct {
	Message string `json:"error"`
}

// ByEmail resolves a forum account by email address.
func (c *Client) ByEmail(ctx context.Context, address string) (*orchestrator.User, error) {
	var user userResponse
	path := "/api/v1/email-gateway/users?email=" + url.QueryEscape(address)
	status, err := c.doRequest(ctx, http.MethodGet, path, nil, &user)
	switch {
	case status == http.StatusNotFound:
		return nil, orchestrator.ErrUnknownUser
	case status == http.StatusConflict:
		return nil, orchestrator.ErrAmbiguousUser
	case err != nil:
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	return &orchestrator.User{
		ID:             user.ID,
		Email:          user.Email,
		EmailValidated: user.EmailValidated,
		EmailSignature: user.EmailSignature,
	}, nil
}

// SetSignature stores the user's confirmed email signature.
func (c *Client) SetSignature(ctx context.Context, userID int64, signature string) error {
	path := fmt.Sprintf("/api/v1/email-gateway/users/%d/signature", userID)
	body := map[string]string{"signature": signature}
	if _, err := c.doRequest(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("failed to set signature: %w", err)
	}
	return nil
}

// MarkEmailValidated flags the user's email address as confirmed.
func (c *Client) MarkEmailValidated(ctx context.Context, userID int64) error {
	path := fmt.Sprintf("/api/v1/email-gateway/users/%d/validate-email", userID)
	if _, err := c.doRequest(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("failed to mark email validated: %w", err)
	}
	return nil
}

// PostQuestion creates a new question and returns its post id.
func (c *Client) PostQuestion(ctx context.Context, userID int64, title string, tags []string, body string) (int64, error) {
	req := map[string]any{
		"user_id": userID,
		"title":   title,
		"tags":    tags,
		"body":    body,
	}
	var post postResponse
	if _, err := c.doRequest(ctx, http.MethodPost, "/api/v1/email-gateway/questions", req, &post); err != nil {
		return 0, fmt.Errorf("failed to post question: %w", err)
	}
	return post.ID, nil
}

// PostAnswer answers the given question and returns the answer's post id.
func (c *Client) PostAnswer(ctx context.Context, userID, questionID int64, body string) (int64, error) {
	path := fmt.Sprintf("/api/v1/email-gateway/posts/%d/answers", questionID)
	req := map[string]any{"user_id": userID, "body": body}
	var post postResponse
	if _, err := c.doRequest(ctx, http.MethodPost, path, req, &post); err != nil {
		return 0, fmt.Errorf("failed to post answer: %w", err)
	}
	return post.ID, nil
}

// PostComment comments on the given post and returns the comment's post id.
func (c *Client) PostComment(ctx context.Context, userID, parentID int64, body string) (int64, error) {
	path := fmt.Sprintf("/api/v1/email-gateway/posts/%d/comments", parentID)
	req := map[string]any{"user_id": userID, "body": body}
	var post postResponse
	if _, err := c.doRequest(ctx, http.MethodPost, path, req, &post); err != nil {
		return 0, fmt.Errorf("failed to post comment: %w", err)
	}
	return post.ID, nil
}

// ReplaceContent replaces the body of an existing post.
func (c *Client) ReplaceContent(ctx context.Context, userID, postID int64, body string) error {
	path := fmt.Sprintf("/api/v1/email-gateway/posts/%d/replace", postID)
	req := map[string]any{"user_id": userID, "body": body}
	if _, err := c.doRequest(ctx, http.MethodPost, path, req, nil); err != nil {
		return fmt.Errorf("failed to replace post content: %w", err)
	}
	return nil
}

// AppendContent appends to the body of an existing post.
func (c *Client) AppendContent(ctx context.Context, userID, postID int64, body string) error {
	path := fmt.Sprintf("/api/v1/email-gateway/posts/%d/append", postID)
	req := map[string]any{"user_id": userID, "body": body}
	if _, err := c.doRequest(ctx, http.MethodPost, path, req, nil); err != nil {
		return fmt.Errorf("failed to append post content: %w", err)
	}
	return nil
}

// CanPostByEmail asks whether the user has enough karma to post by email.
func (c *Client) CanPostByEmail(ctx context.Context, userID int64) (bool, error) {
	path := fmt.Sprintf("/api/v1/email-gateway/users/%d/can-post", userID)
	var perm permissionResponse
	if _, err := c.doRequest(ctx, http.MethodGet, path, nil, &perm); err != nil {
		return false, fmt.Errorf("failed to check posting permission: %w", err)
	}
	return perm.Allowed, nil
}

// PostType returns "question", "answer" or "comment" for the given post.
func (c *Client) PostType(ctx context.Context, postID int64) (string, error) {
	path := fmt.Sprintf("/api/v1/email-gateway/posts/%d", postID)
	var post postResponse
	if _, err := c.doRequest(ctx, http.MethodGet, path, nil, &post); err != nil {
		return "", fmt.Errorf("failed to fetch post: %w", err)
	}
	return post.Type, nil
}

// doRequest performs one authenticated JSON round trip. The status code is
// returned alongside the error so callers can map specific statuses to
// sentinel errors.
func (c *Client) doRequest(ctx context.Context, method, path string, reqBody, respBody any) (int, error) {
	var reader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("X-API-Key", c.apiKey)
	if reqBody != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return resp.StatusCode, fmt.Errorf("API error: %s (status %d)", apiErr.Message, resp.StatusCode)
		}
		return resp.StatusCode, fmt.Errorf("API error: status %d", resp.StatusCode)
	}

	if respBody != nil {
		if err := json.Unmarshal(data, respBody); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
