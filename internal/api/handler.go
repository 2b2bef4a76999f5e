// Package api provides HTTP handlers for the chat service.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/ashureev/cyberdesk/internal/dialogue"
	"github.com/ashureev/cyberdesk/internal/domain"
	"github.com/ashureev/cyberdesk/internal/transcript"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

const maxJSONBody = 1 << 20

// MsgTooManyRequests is returned once the request budget is spent.
const MsgTooManyRequests = "Troppe richieste. Riprova più tardi."

// Chatbot is the dialogue surface served over HTTP.
type Chatbot interface {
	ProcessTurn(ctx context.Context, user, message string) (*dialogue.Turn, error)
	FollowUpList() []string
	RemoveFromFollowUp(ctx context.Context, user string) (string, error)
	FailedAttempts() map[string]int
}

// KnowledgeUploader stores uploaded knowledge files.
type KnowledgeUploader interface {
	Save(name string, r io.Reader) (string, error)
}

// FeedbackSaver persists user feedback.
type FeedbackSaver interface {
	SaveFeedback(ctx context.Context, fb domain.Feedback) error
}

// Handler serves the chat, follow-up, knowledge and feedback endpoints.
type Handler struct {
	bot      Chatbot
	kb       KnowledgeUploader
	feedback FeedbackSaver
	debug    bool
	log      transcript.Logger
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(bot Chatbot, kb KnowledgeUploader, feedback FeedbackSaver, debug bool) *Handler {
	return &Handler{
		bot:      bot,
		kb:       kb,
		feedback: feedback,
		debug:    debug,
		log:      transcript.Nop(),
	}
}

// SetTranscript records every chat turn to l.
func (h *Handler) SetTranscript(l transcript.Logger) {
	h.log = l
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// logTurn records the user message and the reply of one turn.
func logTurn(ctx context.Context, log transcript.Logger, channel, user, message string, turn *dialogue.Turn) {
	meta := map[string]any{}
	if reqID := chiMiddleware.GetReqID(ctx); reqID != "" {
		meta["request_id"] = reqID
	}
	user = domain.NormalizeUser(user)
	log.Log(transcript.Event{
		User:       user,
		Channel:    channel,
		Direction:  transcript.DirectionInbound,
		ContentRaw: message,
		Meta:       meta,
	})
	log.Log(transcript.Event{
		User:       user,
		Channel:    channel,
		Direction:  transcript.DirectionOutbound,
		Topic:      turn.Topic.String(),
		Escalated:  turn.Escalated,
		ContentRaw: turn.Response,
		Meta:       meta,
	})
}
