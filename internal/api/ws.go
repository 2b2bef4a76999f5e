package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/ashureev/cyberdesk/internal/dialogue"
	"github.com/ashureev/cyberdesk/internal/identity"
	"github.com/ashureev/cyberdesk/internal/transcript"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	socketReadLimit    = 64 << 10
	socketWriteTimeout = 10 * time.Second
)

// Limiter admits one more request or refuses it.
type Limiter func() bool

type socketFrame struct {
	Message string `json:"message"`
}

// ChatSocket serves the chat over a websocket. Every text frame is one turn.
type ChatSocket struct {
	bot            Chatbot
	allow          Limiter
	originPatterns []string
	log            transcript.Logger
}

// NewChatSocket returns a websocket chat handler. allowedOrigins uses the
// CORS origin list; a nil limiter admits every frame.
func NewChatSocket(bot Chatbot, allow Limiter, allowedOrigins []string) *ChatSocket {
	return &ChatSocket{
		bot:            bot,
		allow:          allow,
		originPatterns: originPatterns(allowedOrigins),
		log:            transcript.Nop(),
	}
}

// SetTranscript records every chat turn to l.
func (s *ChatSocket) SetTranscript(l transcript.Logger) {
	s.log = l
}

// originPatterns reduces origins to the host patterns websocket.Accept expects.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			patterns = append(patterns, o)
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, o)
	}
	return patterns
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (s *ChatSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user := identity.FromRequest(r)
	log := slog.Default().With("user", user, "ip", identity.IPFromRequest(r))

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		log.Warn("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			log.Debug("Failed to close websocket", "error", closeErr)
		}
	}()
	ws.SetReadLimit(socketReadLimit)

	ctx := identity.WithUser(r.Context(), user)
	log.Info("Chat socket opened")
	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				log.Debug("Chat socket read ended", "error", err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		if err := s.write(ctx, ws, s.reply(ctx, log, user, data)); err != nil {
			log.Debug("Chat socket write failed", "error", err)
			return
		}
	}
}

func (s *ChatSocket) reply(ctx context.Context, log *slog.Logger, user string, data []byte) any {
	var frame socketFrame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Message == "" {
		return map[string]string{"error": "invalid frame"}
	}
	if s.allow != nil && !s.allow() {
		return map[string]string{"error": MsgTooManyRequests}
	}
	turn, err := s.bot.ProcessTurn(ctx, user, frame.Message)
	if err != nil {
		log.Error("chat turn failed", "error", err)
		return map[string]string{"error": dialogue.MsgInternalError}
	}
	logTurn(ctx, s.log, transcript.ChannelWebsocket, user, frame.Message, turn)
	return ChatResponse{Response: turn.Response, Escalated: turn.Escalated}
}

func (s *ChatSocket) write(ctx context.Context, ws *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, socketWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, v)
}
