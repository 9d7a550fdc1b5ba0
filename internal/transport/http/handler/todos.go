package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/go-todo-api/internal/application/todo"
	"github.com/go-todo-api/internal/domain"
	"github.com/go-todo-api/internal/transport/http/middleware"
)

// TodoHandler serves the caller's own todos.
type TodoHandler struct {
	svc todo.Service
}

func NewTodoHandler(svc todo.Service) *TodoHandler { return &TodoHandler{svc: svc} }

func (h *TodoHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	filter, err := parseTodoFilter(r)
	if err != nil {
		httpError(w, r, err)
		return
	}
	todos, err := h.svc.List(r.Context(), userID, filter)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TodoListEnvelope{Count: len(todos), Data: todos})
}

func (h *TodoHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	t, err := h.svc.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TodoEnvelope{Todo: t})
}

func (h *TodoHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req domain.CreateTodoRequest
	if err := decode(r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	t, err := h.svc.Create(r.Context(), userID, req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, TodoEnvelope{Message: "todo created", Todo: t})
}

func (h *TodoHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req domain.UpdateTodoRequest
	if err := decode(r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	t, err := h.svc.Update(r.Context(), userID, chi.URLParam(r, "id"), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TodoEnvelope{Message: "todo updated", Todo: t})
}

func (h *TodoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	t, err := h.svc.Delete(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TodoEnvelope{Message: "todo deleted", Todo: t})
}

func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		httpError(w, r, domain.ErrUnauthorized)
		return "", false
	}
	return claims.UserID, true
}

func parseTodoFilter(r *http.Request) (domain.TodoFilter, error) {
	q := r.URL.Query()
	f := domain.TodoFilter{Tag: q.Get("tag"), Query: q.Get("q")}
	if raw := q.Get("completed"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return f, domain.ErrBadRequest
		}
		f.Completed = &b
	}
	return f, nil
}
