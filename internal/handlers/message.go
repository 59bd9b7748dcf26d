package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Monica-b-mb/mentorpulse-sub000/internal/services"
	"github.com/Monica-b-mb/mentorpulse-sub000/internal/session"
)

// SendMessageRequest is the body of POST /api/conversations/{id}/messages.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// TypingRequest is the body of POST /api/conversations/{id}/typing.
type TypingRequest struct {
	Typing bool `json:"typing"`
}

// MessageHandler contains HTTP handlers for message operations.
type MessageHandler struct {
	sess *session.Session
}

// NewMessageHandler creates a new MessageHandler instance.
func NewMessageHandler(sess *session.Session) *MessageHandler {
	return &MessageHandler{sess: sess}
}

// GetMessages handles GET /api/conversations/{id}/messages
// Returns the conversation's ordered sequence from the local store.
func (h *MessageHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	if chatID == "" {
		http.Error(w, "conversation ID is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, h.sess.Store().Messages(chatID))
}

// SendMessage handles POST /api/conversations/{id}/messages
// A suppressed duplicate answers 200 with status "duplicate".
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	if chatID == "" {
		http.Error(w, "conversation ID is required", http.StatusBadRequest)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := h.sess.Messages().Send(r.Context(), chatID, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusCreated
	switch res.Status {
	case services.SendDuplicate:
		status = http.StatusOK
	case services.SendUnconfirmed:
		status = http.StatusAccepted
	}
	writeJSON(w, status, map[string]interface{}{
		"status":  res.Status.String(),
		"temp_id": res.TempID,
		"message": res.Message,
	})
}

// LoadOlder handles POST /api/conversations/{id}/messages/older?page=N
func (h *MessageHandler) LoadOlder(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 2 {
		http.Error(w, "page must be an integer >= 2", http.StatusBadRequest)
		return
	}

	info, err := h.sess.Conversations().LoadOlder(r.Context(), chatID, page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OpenResponse{
		Conversation: chatID,
		Page:         info,
		Messages:     h.sess.Store().Messages(chatID),
	})
}

// Typing handles POST /api/conversations/{id}/typing
// {"typing": true} is a keystroke; {"typing": false} stops immediately.
func (h *MessageHandler) Typing(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")

	var req TypingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Typing {
		h.sess.Typing().InputChanged(chatID)
	} else {
		h.sess.Typing().Stop(chatID)
	}
	w.WriteHeader(http.StatusNoContent)
}
