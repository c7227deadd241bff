package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"taskboard/internal/service"
	"taskboard/pkg/apperr"
	"taskboard/pkg/task"
)

// taskRequest is the body of POST and PUT /api/tasks. On PUT, creatorEmail
// names the acting user.
type taskRequest struct {
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	DueDate       string        `json:"dueDate"`
	Priority      task.Priority `json:"priority"`
	Status        task.Status   `json:"status"`
	CreatorEmail  string        `json:"creatorEmail"`
	Collaborators []string      `json:"collaborators"`
	Viewers       []string      `json:"viewers"`
}

func (req taskRequest) input() (service.TaskInput, error) {
	in := service.TaskInput{
		Name:          req.Name,
		Description:   req.Description,
		Priority:      req.Priority,
		Status:        req.Status,
		CreatorEmail:  req.CreatorEmail,
		Collaborators: req.Collaborators,
		Viewers:       req.Viewers,
	}
	if req.DueDate != "" {
		due, err := parseDate(req.DueDate)
		if err != nil {
			return in, apperr.Validation("invalid dueDate %q", req.DueDate)
		}
		in.DueDate = due
	}
	return in, nil
}

// parseDate accepts RFC 3339 with or without fractional seconds, or a bare
// YYYY-MM-DD meaning midnight UTC.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, s)
}

func decodeTaskRequest(r *http.Request) (service.TaskInput, error) {
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return service.TaskInput{}, apperr.Validation("invalid JSON: %v", err)
	}
	return req.input()
}

func filterFromQuery(r *http.Request) (task.Filter, error) {
	q := r.URL.Query()
	f := task.Filter{
		Name:            q.Get("name"),
		CreatorEmail:    q.Get("creatorEmail"),
		Description:     q.Get("description"),
		Status:          task.Status(q.Get("status")),
		Priority:        task.Priority(q.Get("priority")),
		AssociatedEmail: q.Get("associatedEmail"),
	}
	if v := q.Get("dueDateLTE"); v != "" {
		due, err := parseDate(v)
		if err != nil {
			return f, apperr.Validation("invalid dueDateLTE %q", v)
		}
		f.DueDateLTE = &due
	}
	return f, nil
}

func (s *Server) handleTaskList(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		s.fail(w, r, "Error fetching tasks", err)
		return
	}
	tasks, err := s.tasks.List(r.Context(), f)
	if err != nil {
		s.fail(w, r, "Error fetching tasks", err)
		return
	}
	s.writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleTaskGet(w http.ResponseWriter, r *http.Request) {
	t, err := s.tasks.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, "Error fetching task", err)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleTaskCreate(w http.ResponseWriter, r *http.Request) {
	in, err := decodeTaskRequest(r)
	if err != nil {
		s.fail(w, r, "Error creating task", err)
		return
	}
	t, err := s.tasks.Create(r.Context(), in)
	if err != nil {
		s.fail(w, r, "Error creating task", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleTaskUpdate(w http.ResponseWriter, r *http.Request) {
	in, err := decodeTaskRequest(r)
	if err != nil {
		s.fail(w, r, "Error updating task", err)
		return
	}
	t, err := s.tasks.Update(r.Context(), r.PathValue("id"), in)
	if err != nil {
		s.fail(w, r, "Error updating task", err)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleTaskDelete(w http.ResponseWriter, r *http.Request) {
	if _, err := s.tasks.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, "Error deleting task", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "Task deleted"})
}
