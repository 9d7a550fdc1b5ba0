package domain

import "time"

type Todo struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	IsCompleted bool      `json:"is_completed"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created"`
	UpdatedAt   time.Time `json:"updated"`
}

type CreateTodoRequest struct {
	Title       string   `json:"title" validate:"required,max=500"`
	IsCompleted bool     `json:"is_completed"`
	Tags        []string `json:"tags" validate:"omitempty,dive,required,max=50"`
}

// UpdateTodoRequest applies only the fields that are present.
type UpdateTodoRequest struct {
	Title       *string   `json:"title" validate:"omitempty,max=500"`
	IsCompleted *bool     `json:"is_completed"`
	Tags        *[]string `json:"tags"`
}

// TodoFilter holds the simple predicates supported by the list endpoint.
type TodoFilter struct {
	Completed *bool
	Tag       string
	Query     string
}
