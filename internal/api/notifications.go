package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"taskboard/pkg/apperr"
)

func (s *Server) handleNotificationList(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserEmail string `json:"userEmail"`
	}
	// An empty body falls through to the userEmail check.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	list, err := s.notifications.ListForUser(r.Context(), req.UserEmail)
	if errors.Is(err, apperr.ErrValidation) {
		s.writeError(w, http.StatusBadRequest, "User email is required", nil)
		return
	}
	if err != nil {
		s.fail(w, r, "Error fetching notifications", err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}
