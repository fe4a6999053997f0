package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ppiankov/casefile/internal/investigate"
	"github.com/ppiankov/casefile/internal/model"
	"github.com/ppiankov/casefile/internal/progress"
)

// wsMessage is a client message on the question loop
type wsMessage struct {
	Type    string       `json:"type"`
	Content string       `json:"content"`
	History []model.Turn `json:"history,omitempty"`
	Workers int          `json:"workers,omitempty"`
}

const maxMessageSize = 1 << 20

// handleWebSocket answers questions one at a time until the client goes
// away. Every question streams its progress events on the connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.config.PongWait))
	})

	sink := progress.NewWebSocketSink(conn, s.config.WriteTimeout)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go s.pingLoop(ctx, sink)

	for {
		// an answer can outlast the pong wait, so the deadline is
		// renewed before every read
		if err := conn.SetReadDeadline(time.Now().Add(s.config.PongWait)); err != nil {
			return
		}

		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("WebSocket closed", zap.Error(err))
			}
			return
		}

		if msg.Type != "question" || strings.TrimSpace(msg.Content) == "" {
			if err := sink.Send(progress.Error("Expected a question message")); err != nil {
				return
			}
			continue
		}

		req := investigate.AskRequest{
			Question: msg.Content,
			History:  msg.History,
			Workers:  msg.Workers,
		}
		if _, err := s.svc.Ask(ctx, req, sink); err != nil {
			s.logger.Warn("Question failed", zap.String("question", msg.Content), zap.Error(err))
		}
	}
}

func (s *Server) pingLoop(ctx context.Context, sink *progress.WebSocketSink) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sink.Ping(); err != nil {
				return
			}
		}
	}
}
