// Package xrpl talks to the XRP Ledger over its websocket API and adapts
// escrow intents (create/finish/cancel locks) into ledger transactions.
package xrpl

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a minimal XRPL websocket JSON-RPC client. Requests are
// serialized over a single connection; the connection is established once at
// startup and reused.
type Client struct {
	url     string
	timeout time.Duration

	mu        sync.Mutex // serializes write/read pairs on the connection
	conn      *websocket.Conn
	nextID    atomic.Int64
	connected atomic.Bool
}

// NewClient creates a client for the given websocket endpoint. timeout
// bounds each individual request round-trip.
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{url: url, timeout: timeout}
}

// Connect dials the websocket endpoint. Safe to call again after a
// connection loss.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.connected.Store(false)
		return fmt.Errorf("%w: dial %s: %v", ErrUnreachable, c.url, err)
	}

	c.conn = conn
	c.connected.Store(true)
	return nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.connected.Store(false)
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// IsConnected reports whether the websocket connection is believed healthy.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// response is the XRPL websocket envelope.
type response struct {
	ID           int64           `json:"id"`
	Type         string          `json:"type"`
	Status       string          `json:"status"`
	Result       json.RawMessage `json:"result"`
	ErrorCode    string          `json:"error"`
	ErrorMessage string          `json:"error_message"`
}

// Call sends one command and waits for its response. params are merged into
// the request object alongside "id" and "command".
func (c *Client) Call(ctx context.Context, command string, params map[string]any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, fmt.Errorf("%w: not connected", ErrUnreachable)
	}

	id := c.nextID.Add(1)
	req := map[string]any{"id": id, "command": command}
	for k, v := range params {
		req[k] = v
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	_ = c.conn.SetReadDeadline(deadline)

	if err := c.conn.WriteJSON(req); err != nil {
		c.dropConn()
		return nil, fmt.Errorf("%w: write: %v", ErrUnreachable, err)
	}

	// Read until our id comes back; the server may interleave stream
	// messages (ledger closes etc.) that carry no id.
	for {
		var resp response
		if err := c.conn.ReadJSON(&resp); err != nil {
			c.dropConn()
			return nil, fmt.Errorf("%w: read: %v", ErrUnreachable, err)
		}
		if resp.Type != "response" || resp.ID != id {
			continue
		}
		if resp.Status != "success" {
			return nil, fmt.Errorf("xrpl: %s failed: %s (%s)", command, resp.ErrorCode, resp.ErrorMessage)
		}
		return resp.Result, nil
	}
}

// dropConn marks the connection dead after an I/O failure. The caller holds mu.
func (c *Client) dropConn() {
	c.connected.Store(false)
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}
