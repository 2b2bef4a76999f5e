package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/cyberdesk/internal/dialogue"
	"github.com/ashureev/cyberdesk/internal/domain"
	"github.com/ashureev/cyberdesk/internal/identity"
	"github.com/ashureev/cyberdesk/internal/knowledge"
	"github.com/ashureev/cyberdesk/internal/observability"
	"github.com/ashureev/cyberdesk/internal/transcript"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxUploadBytes = 32 << 20

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message  string `json:"message"`
	UserName string `json:"user_name"`
}

// ChatResponse is the reply to a chat turn.
type ChatResponse struct {
	Response  string `json:"response"`
	Escalated bool   `json:"escalated"`
}

type userRequest struct {
	UserName string `json:"user_name"`
}

type feedbackRequest struct {
	UserName string `json:"user_name"`
	Feedback string `json:"feedback"`
	Rating   int    `json:"rating"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// RegisterChat registers the chat routes. They are split from the
// administrative routes so the caller can rate limit them.
func (h *Handler) RegisterChat(r chi.Router) {
	r.Post("/chat", h.Chat)
}

// RegisterRoutes registers the follow-up, knowledge, feedback and debug routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/followup-list", h.FollowUpList)
	r.Post("/remove-from-followup", h.RemoveFromFollowUp)
	r.Post("/update-knowledge", h.UpdateKnowledge)
	r.Post("/update_knowledge", h.UpdateKnowledge)
	r.Post("/feedback", h.Feedback)
	if h.debug {
		r.Get("/debug/failed-attempts", h.FailedAttempts)
	}
}

// Chat processes one user message.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}
	user := req.UserName
	if strings.TrimSpace(user) == "" {
		user = identity.UserFromContext(r.Context())
	}

	turn, err := h.bot.ProcessTurn(r.Context(), user, req.Message)
	if err != nil {
		observability.LoggerFromContext(r.Context()).Error("chat turn failed", "error", err, "user", domain.NormalizeUser(user))
		Error(w, http.StatusInternalServerError, dialogue.MsgInternalError)
		return
	}
	logTurn(r.Context(), h.log, transcript.ChannelHTTP, user, req.Message, turn)
	JSON(w, http.StatusOK, ChatResponse{Response: turn.Response, Escalated: turn.Escalated})
}

// FollowUpList returns the names waiting for an operator.
func (h *Handler) FollowUpList(w http.ResponseWriter, _ *http.Request) {
	names := h.bot.FollowUpList()
	if names == nil {
		names = []string{}
	}
	JSON(w, http.StatusOK, names)
}

// RemoveFromFollowUp drops a user from the queue and forgets their conversation.
func (h *Handler) RemoveFromFollowUp(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.UserName) == "" {
		Error(w, http.StatusBadRequest, "user_name is required")
		return
	}
	msg, err := h.bot.RemoveFromFollowUp(r.Context(), req.UserName)
	if err != nil {
		observability.LoggerFromContext(r.Context()).Error("follow-up removal failed", "error", err, "user", req.UserName)
		Error(w, http.StatusInternalServerError, dialogue.MsgInternalError)
		return
	}
	JSON(w, http.StatusOK, messageResponse{Message: msg})
}

// FailedAttempts dumps the per-user failure counters.
func (h *Handler) FailedAttempts(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.bot.FailedAttempts())
}

// UpdateKnowledge stores an uploaded .json or .csv file in the knowledge base.
func (h *Handler) UpdateKnowledge(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		Error(w, http.StatusBadRequest, "No file part")
		return
	}
	defer file.Close()
	if header.Filename == "" {
		Error(w, http.StatusBadRequest, "No selected file")
		return
	}

	name, err := h.kb.Save(header.Filename, file)
	switch {
	case errors.Is(err, knowledge.ErrUnsupportedFile):
		Error(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		observability.LoggerFromContext(r.Context()).Error("knowledge upload failed", "error", err, "file", header.Filename)
		Error(w, http.StatusBadRequest, "invalid knowledge file")
		return
	}
	observability.LoggerFromContext(r.Context()).Info("knowledge updated", "file", name)
	JSON(w, http.StatusOK, messageResponse{Message: "File updated successfully"})
}

// Feedback stores a user rating.
func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	fb := domain.Feedback{
		ID:        uuid.NewString(),
		UserName:  domain.NormalizeUser(req.UserName),
		Text:      req.Feedback,
		Rating:    req.Rating,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.feedback.SaveFeedback(r.Context(), fb); err != nil {
		observability.LoggerFromContext(r.Context()).Error("feedback save failed", "error", err, "user", fb.UserName)
		Error(w, http.StatusInternalServerError, dialogue.MsgInternalError)
		return
	}
	JSON(w, http.StatusOK, messageResponse{Message: "Grazie per il tuo feedback!"})
}
