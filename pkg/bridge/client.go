// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Sunlink Authors

package bridge

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClientClosed is returned by Client methods after Close or a failed read
var ErrClientClosed = errors.New("bridge connection closed")

// DialOptions configures Dial
type DialOptions struct {
	Username string
	Password string
	// SkipTLSVerify disables certificate checks for wss:// URLs
	SkipTLSVerify bool
	// HandshakeTimeout defaults to 10 seconds
	HandshakeTimeout time.Duration
}

// Client sends requests to a bridge over one WebSocket
type Client struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	nextID uint64
	closed bool
}

// Dial connects to the bridge WebSocket at wsURL (ws:// or wss://)
func Dial(ctx context.Context, wsURL string, opts DialOptions) (*Client, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %q (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout}
	if dialer.HandshakeTimeout <= 0 {
		dialer.HandshakeTimeout = 10 * time.Second
	}
	if u.Scheme == "wss" {
		// #nosec G402 -- opt-in for bridges behind self-signed proxies
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: opts.SkipTLSVerify}
	}

	headers := http.Header{}
	if opts.Username != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(opts.Username + ":" + opts.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("bridge connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("bridge connection failed: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	return &Client{conn: conn}, nil
}

// Do sends req and waits for the response carrying its ID. Responses to
// other IDs are discarded. An empty req.ID is filled with a counter.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClientClosed
	}
	if req.ID == "" {
		c.nextID++
		req.ID = strconv.FormatUint(c.nextID, 10)
	}

	deadline, _ := ctx.Deadline()
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteJSON(req); err != nil {
		c.closed = true
		return nil, fmt.Errorf("bridge write: %w", err)
	}

	// Unblock the read when ctx is cancelled before the deadline
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()
	_ = c.conn.SetReadDeadline(deadline)

	for {
		var resp Response
		if err := c.conn.ReadJSON(&resp); err != nil {
			c.closed = true
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("bridge read: %w", err)
		}
		if resp.ID == req.ID || resp.ID == "" {
			return &resp, nil
		}
	}
}

// Close closes the WebSocket
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	return c.conn.Close()
}
