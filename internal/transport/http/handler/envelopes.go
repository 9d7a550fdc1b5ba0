package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-todo-api/internal/domain"
	"github.com/go-todo-api/internal/pkg/validate"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// AuthEnvelope wraps register/login/refresh responses.
type AuthEnvelope struct {
	Message      string           `json:"message,omitempty"`
	AccessToken  string           `json:"access_token,omitempty"`
	RefreshToken string           `json:"refresh_token,omitempty"`
	User         *domain.SafeUser `json:"user,omitempty"`
}

// TodoEnvelope wraps single-todo responses.
type TodoEnvelope struct {
	Message string       `json:"message,omitempty"`
	Todo    *domain.Todo `json:"todo"`
}

// TodoListEnvelope wraps todo list responses.
type TodoListEnvelope struct {
	Count int           `json:"count"`
	Data  []domain.Todo `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg, ErrorCode: status})
}

// decode reads a JSON body into dst and runs its validate tags.
func decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrBadRequest)
	}
	return validate.Struct(dst)
}
