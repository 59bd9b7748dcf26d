package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Monica-b-mb/mentorpulse-sub000/internal/models"
	"github.com/Monica-b-mb/mentorpulse-sub000/internal/services"
	"github.com/Monica-b-mb/mentorpulse-sub000/internal/session"
)

// GetOrCreateRequest is the body of POST /api/conversations.
type GetOrCreateRequest struct {
	ParticipantID string `json:"participantId"`
}

// OpenResponse is returned when a conversation is opened.
type OpenResponse struct {
	Conversation string            `json:"conversation_id"`
	Page         services.PageInfo `json:"page"`
	Messages     []models.Message  `json:"messages"`
}

// ConversationHandler contains HTTP handlers for conversation operations.
type ConversationHandler struct {
	sess *session.Session
}

// NewConversationHandler creates a new ConversationHandler instance.
func NewConversationHandler(sess *session.Session) *ConversationHandler {
	return &ConversationHandler{sess: sess}
}

// ListConversations handles GET /api/conversations
// Returns the local conversation list, most recent activity first.
func (h *ConversationHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sess.Store().Conversations())
}

// GetOrCreate handles POST /api/conversations
// Returns the conversation with the given participant, creating it if needed.
func (h *ConversationHandler) GetOrCreate(w http.ResponseWriter, r *http.Request) {
	var req GetOrCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ParticipantID == "" {
		http.Error(w, "participantId is required", http.StatusBadRequest)
		return
	}

	conv, err := h.sess.Conversations().GetOrCreate(r.Context(), req.ParticipantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// Reload handles POST /api/conversations/reload
// The "try again" action after a failed list load.
func (h *ConversationHandler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.sess.Conversations().Retry(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.sess.Store().Conversations())
}

// Open handles POST /api/conversations/{id}/open
func (h *ConversationHandler) Open(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	if chatID == "" {
		http.Error(w, "conversation ID is required", http.StatusBadRequest)
		return
	}

	info, err := h.sess.Conversations().Open(r.Context(), chatID)
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

// Close handles POST /api/conversations/{id}/close
// Closing a conversation that is not the active one is a no-op.
func (h *ConversationHandler) Close(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	if chatID != h.sess.Store().ActiveConversation() {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := h.sess.Conversations().Close(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
