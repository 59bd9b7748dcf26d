package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Monica-b-mb/mentorpulse-sub000/internal/chatapi"
	"github.com/Monica-b-mb/mentorpulse-sub000/internal/services"
	"github.com/Monica-b-mb/mentorpulse-sub000/internal/session"
	"github.com/Monica-b-mb/mentorpulse-sub000/internal/store"
)

// writeJSON is a helper function to write JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps service and backend errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, services.ErrEmptyMessage), errors.Is(err, services.ErrNoConversation),
		errors.Is(err, services.ErrInvalidParticipant):
		status = http.StatusBadRequest
	case errors.Is(err, session.ErrClosed), errors.Is(err, session.ErrNotStarted):
		status = http.StatusConflict
	case errors.Is(err, chatapi.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, chatapi.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, chatapi.ErrServiceUnavailable), errors.Is(err, store.ErrStopped):
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}
