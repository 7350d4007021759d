// Package api is the REST collaborator: the durable side of the HostHub
// message flow. The realtime socket (internal/transport) delivers the same
// traffic faster but proves nothing about persistence.
package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/hosthub/hubchat/internal/model"
)

// TokenSource yields the current bearer token, or "" when logged out.
type TokenSource interface {
	Token() string
}

// Client talks to the HostHub REST API.
type Client struct {
	baseURL string
	hc      *http.Client
	creds   TokenSource
	logger  *zap.Logger
}

// New creates a REST client for the given base URL.
func New(baseURL string, creds TokenSource, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: 15 * time.Second},
		creds:   creds,
		logger:  logger,
	}
}

type createMessageRequest struct {
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
}

// Messages fetches the most recent messages exchanged with a peer, ordered
// by created_at ascending as the backend returns them.
func (c *Client) Messages(ctx context.Context, peerID string, limit int) ([]model.Message, error) {
	q := url.Values{}
	q.Set("peer", peerID)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var msgs []model.Message
	if err := c.get(ctx, "/messages?"+q.Encode(), &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// CreateMessage persists a message and returns the server copy carrying the
// authoritative id and timestamp.
func (c *Client) CreateMessage(ctx context.Context, receiverID, content string) (*model.Message, error) {
	body, err := json.Marshal(createMessageRequest{ReceiverID: receiverID, Content: content})
	if err != nil {
		return nil, &SendError{Err: err}
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/messages", bytes.NewReader(body))
	if err != nil {
		return nil, &SendError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &SendError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("create message rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("receiver_id", receiverID))
		return nil, &SendError{StatusCode: resp.StatusCode}
	}

	var created model.Message
	if err := decodeBody(resp.Body, &created); err != nil {
		return nil, &SendError{Err: err}
	}
	if created.ID == "" {
		return nil, &SendError{Err: fmt.Errorf("server returned message without id")}
	}
	return &created, nil
}

// Conversations lists the peers the user has open conversations with.
func (c *Client) Conversations(ctx context.Context) ([]model.Peer, error) {
	var peers []model.Peer
	if err := c.get(ctx, "/conversations", &peers); err != nil {
		return nil, err
	}
	return peers, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return &FetchError{Err: err}
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return &FetchError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("fetch rejected", zap.Int("status", resp.StatusCode), zap.String("path", path))
		return &FetchError{StatusCode: resp.StatusCode}
	}

	if err := decodeBody(resp.Body, out); err != nil {
		return &FetchError{Err: err}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if tok := c.creds.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return req, nil
}

func decodeBody(r io.Reader, out any) error {
	data, err := io.ReadAll(io.LimitReader(r, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
