package http

import (
	"github.com/go-todo-api/internal/application/auth"
	"github.com/go-todo-api/internal/application/todo"
	jwtinfra "github.com/go-todo-api/internal/infrastructure/jwt"
	appmiddleware "github.com/go-todo-api/internal/transport/http/middleware"
)

// Deps holds everything the router needs. Limiter may be nil, in which case
// the credential endpoints are not rate limited.
type Deps struct {
	Auth    auth.Service
	Todos   todo.Service
	Tokens  *jwtinfra.Issuer
	Limiter appmiddleware.Limiter
}
