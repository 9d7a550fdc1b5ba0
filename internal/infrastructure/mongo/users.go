package mongoinfra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/go-todo-api/internal/domain"
	"github.com/go-todo-api/internal/metrics"
	"github.com/go-todo-api/internal/pkg/id"
)

const backend = "mongo"

// UserRepo is the MongoDB credential store. Documents use the user id as _id
// and a unique index on email.
type UserRepo struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewUserRepo(db *mongo.Database) *UserRepo {
	return &UserRepo{coll: db.Collection("users"), now: time.Now}
}

// EnsureIndexes creates the unique email index. Safe to call on every startup.
func (r *UserRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("email_unique"),
	})
	if err != nil {
		return fmt.Errorf("create email index: %w", err)
	}
	return nil
}

func (r *UserRepo) Create(ctx context.Context, email, passwordHash string) (_ *domain.User, err error) {
	defer metrics.ObserveStore(backend, "create", &err)()

	now := r.now().UTC().Truncate(time.Millisecond)
	u := &domain.User{
		UserID:                id.New(),
		Email:                 email,
		PasswordHash:          passwordHash,
		EmailVerificationOTPs: []domain.OTPEntry{},
		ResetOTPs:             []domain.OTPEntry{},
		Version:               1,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if _, err = r.coll.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("mongo insert user: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return u, nil
}

func (r *UserRepo) FindByID(ctx context.Context, userID string) (_ *domain.User, err error) {
	defer metrics.ObserveStore(backend, "find_by_id", &err)()
	return r.findOne(ctx, bson.M{"_id": userID})
}

func (r *UserRepo) FindByEmail(ctx context.Context, email string) (_ *domain.User, err error) {
	defer metrics.ObserveStore(backend, "find_by_email", &err)()
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserRepo) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var u domain.User
	if err := r.coll.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("mongo find user: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return &u, nil
}

// Save replaces the document only when its version still matches u.Version.
func (r *UserRepo) Save(ctx context.Context, u *domain.User) (err error) {
	defer metrics.ObserveStore(backend, "save", &err)()

	next := u.Clone()
	next.Version = u.Version + 1
	next.UpdatedAt = r.now().UTC().Truncate(time.Millisecond)

	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": u.UserID, "version": u.Version}, next)
	if err != nil {
		return fmt.Errorf("mongo save user: %w: %w", domain.ErrStoreUnavailable, err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrVersionConflict
	}
	u.Version = next.Version
	u.UpdatedAt = next.UpdatedAt
	return nil
}
