package memory

import (
	"context"
	"sync"

	"github.com/go-todo-api/internal/domain"
)

// TodoStore keeps each user's todo list in process memory.
type TodoStore struct {
	mu     sync.Mutex
	byUser map[string][]domain.Todo
}

func NewTodoStore() *TodoStore {
	return &TodoStore{byUser: make(map[string][]domain.Todo)}
}

func (s *TodoStore) Load(_ context.Context, userID string) ([]domain.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneTodos(s.byUser[userID]), nil
}

func (s *TodoStore) Modify(_ context.Context, userID string, fn func([]domain.Todo) ([]domain.Todo, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(cloneTodos(s.byUser[userID]))
	if err != nil {
		return err
	}
	s.byUser[userID] = next
	return nil
}

func cloneTodos(todos []domain.Todo) []domain.Todo {
	out := make([]domain.Todo, len(todos))
	for i, t := range todos {
		t.Tags = append([]string(nil), t.Tags...)
		out[i] = t
	}
	return out
}
