package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/idscan/internal/document"
	"github.com/MeKo-Tech/idscan/internal/session"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// WebSocket message types.
const (
	MessageCapture    = "capture"
	MessageCancel     = "cancel"
	MessageReset      = "reset"
	MessageTransition = "transition"
	MessageResult     = "result"
	MessageError      = "error"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origins are restricted by the CORS settings of the HTTP routes.
		return true
	},
}

// WebSocketMessage is a message sent to the client.
type WebSocketMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// WebSocketRequest is a message received from the client. Image is base64
// in JSON.
type WebSocketRequest struct {
	Type       string          `json:"type"`
	Image      []byte          `json:"image,omitempty"`
	Format     string          `json:"format,omitempty"`
	CapturedAt *time.Time      `json:"captured_at,omitempty"`
	Handle     *session.Handle `json:"handle,omitempty"`
}

// WebSocketError is the payload of an error message.
type WebSocketError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// wsWriter serializes writes from the read loop and the scanner dispatcher.
type wsWriter struct {
	mu   sync.Mutex
	conn WebSocketConnWriter
}

func (w *wsWriter) send(msgType string, payload any) {
	data, err := json.Marshal(WebSocketMessage{Type: msgType, Payload: payload})
	if err != nil {
		slog.Error("Failed to marshal WebSocket message", "type", msgType, "error", err)
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if c, ok := w.conn.(*websocket.Conn); ok {
		_ = c.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	}
	if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("Failed to send WebSocket message", "type", msgType, "error", err)
		return
	}
	websocketMessagesTotal.WithLabelValues("sent", msgType).Inc()
}

func (w *wsWriter) sendError(code, message string) {
	w.send(MessageError, WebSocketError{Code: code, Message: message})
}

// scanWebSocketHandler runs one scan session per connection. Every capture
// supersedes the previous one; transitions and results are pushed as they
// happen.
func (s *Server) scanWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()
	slog.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	s.handleWebSocketConnection(ctx, conn)
}

func (s *Server) handleWebSocketConnection(ctx context.Context, conn *websocket.Conn) {
	out := &wsWriter{conn: conn}
	scanner := session.New(s.proc,
		session.WithLogger(slog.Default().With("remote_addr", conn.RemoteAddr().String())),
		session.WithTransitionHandler(func(tr session.Transition) {
			out.send(MessageTransition, tr)
		}),
		session.WithResultHandler(func(res *document.ScanResult) {
			scanRequestsTotal.WithLabelValues("websocket", string(res.Status)).Inc()
			out.send(MessageResult, res)
		}),
	)
	defer scanner.Close()

	if s.maxUploadMB > 0 {
		// base64 inflates by 4/3, plus room for the envelope
		conn.SetReadLimit(s.maxUploadMB*1024*1024*4/3 + 4096)
	}
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Error("WebSocket error", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if messageType != websocket.TextMessage {
			out.sendError("invalid_request", "binary messages are not supported")
			continue
		}
		s.handleWebSocketMessage(ctx, scanner, out, data)
	}
}

// handleWebSocketMessage applies one client request to the session.
func (s *Server) handleWebSocketMessage(ctx context.Context, scanner *session.Scanner, out *wsWriter, data []byte) {
	var req WebSocketRequest
	if err := json.Unmarshal(data, &req); err != nil {
		out.sendError("invalid_request", fmt.Sprintf("Failed to parse request: %v", err))
		return
	}
	websocketMessagesTotal.WithLabelValues("received", req.Type).Inc()

	switch req.Type {
	case MessageCapture:
		if len(req.Image) == 0 {
			out.sendError("invalid_request", "capture carries no image")
			return
		}
		capturedAt := time.Now()
		if req.CapturedAt != nil {
			capturedAt = *req.CapturedAt
		}
		if _, err := scanner.Submit(ctx, req.Image, document.ParseFormat(req.Format), capturedAt); err != nil {
			out.sendError("session_closed", err.Error())
		}
	case MessageCancel:
		h := scanner.Current()
		if req.Handle != nil {
			h = *req.Handle
		}
		if !scanner.Cancel(h) {
			out.sendError("not_current", "no active session for handle")
		}
	case MessageReset:
		if !scanner.Reset() {
			out.sendError("session_active", "cannot reset while a scan is running")
		}
	default:
		out.sendError("invalid_request", "Unsupported request type: "+req.Type)
	}
}
