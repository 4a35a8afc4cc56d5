package line

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Messenger is the delivery collaborator: fire-and-forget single text
// message push. Implementations must be safe for concurrent use.
type Messenger interface {
	PushText(ctx context.Context, to, text string) error
}

const (
	defaultBaseURL = "https://api.line.me"
	pushPath       = "/v2/bot/message/push"
)

// Client pushes text messages through the LINE Messaging API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a client from the channel access token. It is
// constructed once at process start and injected where needed.
func NewClient(channelToken string) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		token:   channelToken,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// NewClientWithBaseURL is used by tests to point at a stub server.
func NewClientWithBaseURL(channelToken, baseURL string) *Client {
	c := NewClient(channelToken)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []textMessage `json:"messages"`
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (c *Client) PushText(ctx context.Context, to, text string) error {
	body, err := json.Marshal(pushRequest{
		To:       to,
		Messages: []textMessage{{Type: "text", Text: text}},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+pushPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("line push: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

// Disabled stands in when no channel token is configured. Every push
// fails, so outcomes still get recorded instead of silently vanishing.
type Disabled struct{}

func (Disabled) PushText(ctx context.Context, to, text string) error {
	return errors.New("line messaging disabled: LINE_CHANNEL_TOKEN not set")
}
