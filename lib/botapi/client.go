// Copyright 2026 The Streamfleet Authors
// SPDX-License-Identifier: Apache-2.0

package botapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// maxResponseSize caps how much of an API response is read into
// memory. Bot API responses are small JSON documents; anything larger
// indicates a misbehaving endpoint.
const maxResponseSize = 1 << 20

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL is the base URL of the Bot API endpoint
	// (e.g., "https://api.telegram.org"). Required.
	BaseURL string
	// APIID is the application identifier the bot account was
	// registered under.
	APIID int
	// APIHash is the application secret paired with APIID.
	APIHash string
	// BotToken authenticates the bot account. Required.
	BotToken string
	// HTTPClient is used for all requests. If nil,
	// http.DefaultClient is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Client is a connection handle for one bot account. A Client is
// created unconnected; Start authenticates the session and Stop
// releases it. Both may fail, and both are bounded only by the
// caller's context.
type Client struct {
	baseURL    string
	botToken   string
	httpClient *http.Client
	logger     *slog.Logger

	mu      sync.Mutex
	started bool
	me      Me
}

// Me identifies the bot account behind a started client.
type Me struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

// NewClient creates a new, unconnected bot client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("botapi: BaseURL is required")
	}
	if config.BotToken == "" {
		return nil, fmt.Errorf("botapi: BotToken is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("botapi: invalid BaseURL %q: %w", config.BaseURL, err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// APIID and APIHash identify the registering application; the Bot
	// API authenticates each request with the token alone, so only the
	// token is retained on the handle.
	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		botToken:   config.BotToken,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Start authenticates the bot token against the API and records the
// bot identity. Returns an error if the token is rejected or the
// endpoint is unreachable. Starting an already-started client is an
// error.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("botapi: client already started")
	}
	c.mu.Unlock()

	var me Me
	if err := c.call(ctx, "getMe", nil, &me); err != nil {
		return fmt.Errorf("botapi: start failed: %w", err)
	}

	c.mu.Lock()
	c.started = true
	c.me = me
	c.mu.Unlock()

	c.logger.Debug("bot client started", "bot_id", me.ID, "username", me.Username)
	return nil
}

// Stop releases the bot session and tears down idle connections.
// Stopping a client that was never started is an error.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return fmt.Errorf("botapi: client not started")
	}
	c.mu.Unlock()

	err := c.call(ctx, "close", nil, nil)

	c.mu.Lock()
	c.started = false
	c.mu.Unlock()
	c.httpClient.CloseIdleConnections()

	if err != nil {
		return fmt.Errorf("botapi: stop failed: %w", err)
	}
	c.logger.Debug("bot client stopped", "bot_id", c.me.ID)
	return nil
}

// Me returns the identity recorded by Start. Zero value before Start.
func (c *Client) Me() Me {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.me
}

// Started reports whether the client currently holds a session.
func (c *Client) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// SendMessage posts a text message to a chat. Used by the operator
// notifier; requires a started client.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	params := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if err := c.call(ctx, "sendMessage", params, nil); err != nil {
		return fmt.Errorf("botapi: sendMessage to %d failed: %w", chatID, err)
	}
	return nil
}

// apiResponse is the envelope every Bot API method returns.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

// call performs one Bot API method call. Request URLs are built by
// string concatenation to avoid double-encoding of path segments. The
// token rides in the request path, so transport errors (which
// reproduce the full URL) are redacted before they can reach a log or
// the operator channel.
func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	requestURL := c.baseURL + "/bot" + c.botToken + "/" + method

	var bodyReader io.Reader
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", method, err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bodyReader)
	if err != nil {
		return fmt.Errorf("creating %s request: %w", method, c.redactToken(err))
	}
	if params != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, c.redactToken(err))
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("reading %s response: %w", method, err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("unexpected %d response to %s: %s", response.StatusCode, method, string(body))
	}

	if !envelope.OK {
		return &APIError{
			Method:      method,
			Code:        envelope.ErrorCode,
			Description: envelope.Description,
		}
	}

	if result != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
	}
	return nil
}

// redactToken removes the bot token from an error. url.Error (and the
// parse errors beneath it) embed the full request URL, whose path
// carries the token; these errors otherwise end up in the log file and
// in operator notifications. Rewrites the URL in place when possible,
// and falls back to flattening the error text when the token has leaked
// into some other layer of the chain.
func (c *Client) redactToken(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		urlErr.URL = strings.ReplaceAll(urlErr.URL, c.botToken, "[redacted]")
	}
	if message := err.Error(); strings.Contains(message, c.botToken) {
		return errors.New(strings.ReplaceAll(message, c.botToken, "[redacted]"))
	}
	return err
}
