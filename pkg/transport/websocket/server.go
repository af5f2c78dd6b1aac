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

// Package websocket carries JSON-RPC 2.0 request/response frames over a
// WebSocket connection, one frame per message, dispatched through a
// pkg/rpc.Dispatcher shared with the raw-stream transport.
package websocket

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/selfxyz/tee-prover-server/pkg/rpc"
)

// WSServer exposes a pkg/rpc.Dispatcher over WebSocket connections.
//
// Example usage:
//
//	dispatcher := rpc.NewDispatcher()
//	dispatcher.Handle("openpassport.health", healthHandler)
//	server := websocket.NewWSServer(dispatcher)
//	http.Handle("/ws", server.Handler())
type WSServer struct {
	dispatcher   *rpc.Dispatcher
	upgrader     websocket.Upgrader
	readTimeout  time.Duration
	writeTimeout time.Duration

	connections map[*websocket.Conn]bool
	connMu      sync.RWMutex
}

// NewWSServer creates a WebSocket server dispatching through d.
func NewWSServer(d *rpc.Dispatcher) *WSServer {
	return &WSServer{
		dispatcher: d,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// TODO: Implement proper origin checking in production
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		readTimeout:  60 * time.Second,
		writeTimeout: 30 * time.Second,
		connections:  make(map[*websocket.Conn]bool),
	}
}

// NewWSServerWithTimeouts creates a WebSocket server with custom timeouts.
func NewWSServerWithTimeouts(d *rpc.Dispatcher, readTimeout, writeTimeout time.Duration) *WSServer {
	server := NewWSServer(d)
	server.readTimeout = readTimeout
	server.writeTimeout = writeTimeout
	return server
}

// Handler returns an http.Handler for WebSocket connections.
func (s *WSServer) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, fmt.Sprintf("WebSocket upgrade failed: %v", err), http.StatusBadRequest)
			return
		}

		s.addConnection(conn)
		defer s.removeConnection(conn)
		defer func() { _ = conn.Close() }()

		s.handleConnection(conn)
	})
}

// handleConnection reads one JSON-RPC request per WebSocket message,
// dispatches it, and writes back one JSON-RPC response per message.
func (s *WSServer) handleConnection(conn *websocket.Conn) {
	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
			return
		}

		_, body, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				fmt.Printf("WebSocket read error: %v\n", err)
			}
			return
		}

		resp := s.dispatcher.Dispatch(body)
		s.sendResponse(conn, resp)
	}
}

func (s *WSServer) sendResponse(conn *websocket.Conn, resp *rpc.Response) {
	if err := conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		fmt.Printf("Failed to set write deadline: %v\n", err)
		return
	}

	if err := conn.WriteJSON(resp); err != nil {
		fmt.Printf("Failed to write response: %v\n", err)
	}
}

func (s *WSServer) addConnection(conn *websocket.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.connections[conn] = true
}

func (s *WSServer) removeConnection(conn *websocket.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	delete(s.connections, conn)
}

// GetConnectionCount returns the number of active connections.
func (s *WSServer) GetConnectionCount() int {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return len(s.connections)
}

// Close closes all active connections.
func (s *WSServer) Close() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	for conn := range s.connections {
		_ = conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		_ = conn.Close()
	}

	s.connections = make(map[*websocket.Conn]bool)
	return nil
}
