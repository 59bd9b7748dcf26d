package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Monica-b-mb/mentorpulse-sub000/internal/models"
	"github.com/Monica-b-mb/mentorpulse-sub000/internal/session"
	"github.com/Monica-b-mb/mentorpulse-sub000/internal/store"
	"github.com/Monica-b-mb/mentorpulse-sub000/internal/websocket"
)

// HealthResponse reports that the local API is up. It says nothing about the
// backend or the realtime connection; see StatusResponse for those.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Message: "chat sync client is running",
	})
}

// StatusResponse is the session overview polled by the UI.
type StatusResponse struct {
	User       models.Participant `json:"user"`
	Connection websocket.Status   `json:"connection"`
	Active     string             `json:"active_conversation,omitempty"`
	LoadError  string             `json:"load_error,omitempty"`
	Notices    []store.Notice     `json:"notices"`
	Version    uint64             `json:"version"`
}

// StatusHandler serves session-wide state: connection, errors, notices and
// typing flags.
type StatusHandler struct {
	sess *session.Session
}

// NewStatusHandler creates a new StatusHandler instance.
func NewStatusHandler(sess *session.Session) *StatusHandler {
	return &StatusHandler{sess: sess}
}

// Status handles GET /api/status
// Version changes whenever the store changed; UIs re-read when it moves.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	st := h.sess.Store()
	writeJSON(w, http.StatusOK, StatusResponse{
		User:       h.sess.Self(),
		Connection: h.sess.Status(),
		Active:     st.ActiveConversation(),
		LoadError:  st.LoadError(),
		Notices:    st.Notices(),
		Version:    st.Version(),
	})
}

// Reconnect handles POST /api/connection/reconnect
// The "reconnect" action once the connection gave up retrying.
func (h *StatusHandler) Reconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.sess.Reconnect(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.sess.Status())
}

// Typing handles GET /api/typing
// Returns the remote users currently typing.
func (h *StatusHandler) Typing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sess.Store().Typing())
}

// DismissNotice handles DELETE /api/notices/{id}
func (h *StatusHandler) DismissNotice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "notice ID is required", http.StatusBadRequest)
		return
	}
	if err := h.sess.Store().Dispatch(r.Context(), store.DismissNotice{ID: id}); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
