// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/selfxyz/tee-prover-server/pkg/rpc"
)

// Client is a JSON-RPC 2.0 client over a single persistent WebSocket
// connection, matching responses back to their request by ID. It is
// used by integration tests and by tooling that exercises the
// handshake methods without a full enclave deployment.
type Client struct {
	url          string
	conn         *websocket.Conn
	mu           sync.Mutex
	dialTimeout  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration

	pending   map[string]chan *rpc.Response
	pendingMu sync.Mutex

	connected bool
	connMu    sync.RWMutex

	nextID int
	idMu   sync.Mutex
}

// NewClient creates a WebSocket JSON-RPC client for the given ws:// or
// wss:// URL.
func NewClient(url string) *Client {
	return &Client{
		url:          url,
		dialTimeout:  30 * time.Second,
		readTimeout:  60 * time.Second,
		writeTimeout: 30 * time.Second,
		pending:      make(map[string]chan *rpc.Response),
	}
}

// NewClientWithTimeouts creates a client with custom timeouts.
func NewClientWithTimeouts(url string, dialTimeout, readTimeout, writeTimeout time.Duration) *Client {
	c := NewClient(url)
	c.dialTimeout = dialTimeout
	c.readTimeout = readTimeout
	c.writeTimeout = writeTimeout
	return c
}

// Connect dials the WebSocket endpoint if not already connected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	dialer := &websocket.Dialer{HandshakeTimeout: c.dialTimeout}
	conn, resp, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	c.conn = conn
	c.setConnected(true)
	go c.readLoop()

	return nil
}

// Call sends a JSON-RPC request for method with the given params and
// waits for the matching response.
func (c *Client) Call(ctx context.Context, method string, params any) (*rpc.Response, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}

	id := c.newID()
	idJSON, _ := json.Marshal(id)

	var paramsJSON json.RawMessage
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		paramsJSON = encoded
	}

	req := &rpc.Request{JSONRPC: "2.0", Method: method, Params: paramsJSON, ID: idJSON}

	respChan := make(chan *rpc.Response, 1)
	c.pendingMu.Lock()
	c.pending[id] = respChan
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.write(req); err != nil {
		return nil, fmt.Errorf("send failed: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-respChan:
		return resp, nil
	case <-time.After(c.readTimeout):
		return nil, fmt.Errorf("response timeout")
	}
}

func (c *Client) newID() string {
	c.idMu.Lock()
	defer c.idMu.Unlock()
	c.nextID++
	return fmt.Sprintf("%d", c.nextID)
}

func (c *Client) ensureConnected(ctx context.Context) error {
	if c.isConnected() {
		return nil
	}
	return c.Connect(ctx)
}

func (c *Client) write(req *rpc.Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.conn.WriteJSON(req); err != nil {
		c.setConnected(false)
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer c.setConnected(false)

	for {
		if !c.isConnected() {
			return
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		if err := conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return
		}

		var resp rpc.Response
		if err := conn.ReadJSON(&resp); err != nil {
			return
		}

		var id string
		_ = json.Unmarshal(resp.ID, &id)

		c.pendingMu.Lock()
		ch, ok := c.pending[id]
		c.pendingMu.Unlock()
		if ok {
			select {
			case ch <- &resp:
			default:
			}
		}
	}
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	err := c.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	closeErr := c.conn.Close()
	c.conn = nil
	c.setConnected(false)

	if err != nil {
		return err
	}
	return closeErr
}

func (c *Client) isConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

func (c *Client) setConnected(connected bool) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.connected = connected
}
