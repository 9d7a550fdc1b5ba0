package memory

import (
	"context"
	"sync"
	"time"

	"github.com/go-todo-api/internal/domain"
	"github.com/go-todo-api/internal/pkg/id"
)

// UserStore is an in-process credential store. It hands out copies, so a
// caller only changes stored state through Save.
type UserStore struct {
	mu      sync.Mutex
	byID    map[string]*domain.User
	byEmail map[string]string
	now     func() time.Time
}

func NewUserStore() *UserStore {
	return &UserStore{
		byID:    make(map[string]*domain.User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func (s *UserStore) Create(_ context.Context, email, passwordHash string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[email]; ok {
		return nil, domain.ErrDuplicateEmail
	}
	now := s.now().UTC()
	u := &domain.User{
		UserID:       id.New(),
		Email:        email,
		PasswordHash: passwordHash,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.byID[u.UserID] = u
	s.byEmail[email] = u.UserID
	return u.Clone(), nil
}

func (s *UserStore) FindByID(_ context.Context, userID string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u.Clone(), nil
}

func (s *UserStore) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, ok := s.byEmail[email]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return s.byID[userID].Clone(), nil
}

func (s *UserStore) Save(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byID[u.UserID]
	if !ok || cur.Version != u.Version {
		return domain.ErrVersionConflict
	}
	next := u.Clone()
	next.Email = cur.Email
	next.CreatedAt = cur.CreatedAt
	next.Version = cur.Version + 1
	next.UpdatedAt = s.now().UTC()
	s.byID[u.UserID] = next

	u.Version = next.Version
	u.UpdatedAt = next.UpdatedAt
	return nil
}
