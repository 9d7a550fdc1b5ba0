package todo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-todo-api/internal/domain"
	"github.com/go-todo-api/internal/pkg/id"
)

type Service interface {
	List(ctx context.Context, userID string, filter domain.TodoFilter) ([]domain.Todo, error)
	Get(ctx context.Context, userID, todoID string) (*domain.Todo, error)
	Create(ctx context.Context, userID string, req domain.CreateTodoRequest) (*domain.Todo, error)
	Update(ctx context.Context, userID, todoID string, req domain.UpdateTodoRequest) (*domain.Todo, error)
	Delete(ctx context.Context, userID, todoID string) (*domain.Todo, error)
}

// Store keeps one list of todos per user. Modify must run fn and persist
// its result without interleaving with another Modify for the same user.
type Store interface {
	Load(ctx context.Context, userID string) ([]domain.Todo, error)
	Modify(ctx context.Context, userID string, fn func([]domain.Todo) ([]domain.Todo, error)) error
}

type service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) Service {
	return &service{store: store, now: time.Now}
}

func (s *service) List(ctx context.Context, userID string, filter domain.TodoFilter) ([]domain.Todo, error) {
	todos, err := s.store.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Todo, 0, len(todos))
	for _, t := range todos {
		if matches(t, filter) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, userID, todoID string) (*domain.Todo, error) {
	todos, err := s.store.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	i := indexOf(todos, todoID)
	if i < 0 {
		return nil, fmt.Errorf("todo %s: %w", todoID, domain.ErrNotFound)
	}
	return &todos[i], nil
}

func (s *service) Create(ctx context.Context, userID string, req domain.CreateTodoRequest) (*domain.Todo, error) {
	now := s.now().UTC()
	t := domain.Todo{
		ID:          id.New(),
		Title:       req.Title,
		IsCompleted: req.IsCompleted,
		Tags:        normalizeTags(req.Tags),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.store.Modify(ctx, userID, func(todos []domain.Todo) ([]domain.Todo, error) {
		return append(todos, t), nil
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *service) Update(ctx context.Context, userID, todoID string, req domain.UpdateTodoRequest) (*domain.Todo, error) {
	var updated domain.Todo
	err := s.store.Modify(ctx, userID, func(todos []domain.Todo) ([]domain.Todo, error) {
		i := indexOf(todos, todoID)
		if i < 0 {
			return nil, fmt.Errorf("todo %s: %w", todoID, domain.ErrNotFound)
		}
		t := &todos[i]
		if req.Title != nil {
			if strings.TrimSpace(*req.Title) == "" {
				return nil, fmt.Errorf("title must not be empty: %w", domain.ErrBadRequest)
			}
			t.Title = *req.Title
		}
		if req.IsCompleted != nil {
			t.IsCompleted = *req.IsCompleted
		}
		if req.Tags != nil {
			t.Tags = normalizeTags(*req.Tags)
		}
		t.UpdatedAt = s.now().UTC()
		updated = *t
		return todos, nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *service) Delete(ctx context.Context, userID, todoID string) (*domain.Todo, error) {
	var deleted domain.Todo
	err := s.store.Modify(ctx, userID, func(todos []domain.Todo) ([]domain.Todo, error) {
		i := indexOf(todos, todoID)
		if i < 0 {
			return nil, fmt.Errorf("todo %s: %w", todoID, domain.ErrNotFound)
		}
		deleted = todos[i]
		return append(todos[:i], todos[i+1:]...), nil
	})
	if err != nil {
		return nil, err
	}
	return &deleted, nil
}

func indexOf(todos []domain.Todo, todoID string) int {
	for i := range todos {
		if todos[i].ID == todoID {
			return i
		}
	}
	return -1
}

func matches(t domain.Todo, f domain.TodoFilter) bool {
	if f.Completed != nil && t.IsCompleted != *f.Completed {
		return false
	}
	if f.Tag != "" && !hasTag(t.Tags, f.Tag) {
		return false
	}
	if f.Query != "" && !strings.Contains(strings.ToLower(t.Title), strings.ToLower(f.Query)) {
		return false
	}
	return true
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// normalizeTags trims tags and drops blanks and duplicates, keeping order.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
