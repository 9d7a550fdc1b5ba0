package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/go-todo-api/internal/domain"
	"github.com/go-todo-api/internal/metrics"
	"github.com/go-todo-api/internal/pkg/id"
)

// DynamoDB attribute names touched by Save.
const (
	fieldUserID                = "user_id"
	fieldEmail                 = "email"
	fieldPasswordHash          = "password_hash"
	fieldIsVerified            = "is_verified"
	fieldEmailVerificationOTPs = "email_verification_otps"
	fieldResetOTPs             = "reset_otps"
	fieldVersion               = "version"
	fieldUpdatedAt             = "updated_at"
)

const backend = "dynamo"

// emailLock is the item stored in the user_emails table. Its key is the
// email itself, which makes uniqueness a plain attribute_not_exists check.
type emailLock struct {
	Email  string `dynamodbav:"email"`
	UserID string `dynamodbav:"user_id"`
}

// userAPI is the slice of *dynamodb.Client the repo calls.
type userAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// UserRepo is the DynamoDB credential store. Users live in the users table;
// the user_emails table maps each email to its owner.
type UserRepo struct {
	client      userAPI
	usersTable  string
	emailsTable string
	now         func() time.Time
}

func NewUserRepo(client userAPI, usersTable, emailsTable string) *UserRepo {
	return &UserRepo{client: client, usersTable: usersTable, emailsTable: emailsTable, now: time.Now}
}

func (r *UserRepo) Create(ctx context.Context, email, passwordHash string) (_ *domain.User, err error) {
	defer metrics.ObserveStore(backend, "create", &err)()

	now := r.now().UTC()
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
	userItem, err := attributevalue.MarshalMap(u)
	if err != nil {
		return nil, fmt.Errorf("marshal user: %w", err)
	}
	lockItem, err := attributevalue.MarshalMap(emailLock{Email: email, UserID: u.UserID})
	if err != nil {
		return nil, fmt.Errorf("marshal email lock: %w", err)
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:                aws.String(r.usersTable),
				Item:                     userItem,
				ConditionExpression:      aws.String("attribute_not_exists(#id)"),
				ExpressionAttributeNames: map[string]string{"#id": fieldUserID},
			}},
			{Put: &types.Put{
				TableName:                aws.String(r.emailsTable),
				Item:                     lockItem,
				ConditionExpression:      aws.String("attribute_not_exists(#email)"),
				ExpressionAttributeNames: map[string]string{"#email": fieldEmail},
			}},
		},
	})
	if err != nil {
		if canceledBy(err, 1) {
			return nil, domain.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("dynamo create user: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return u, nil
}

func (r *UserRepo) FindByID(ctx context.Context, userID string) (_ *domain.User, err error) {
	defer metrics.ObserveStore(backend, "find_by_id", &err)()

	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.usersTable),
		Key:            strKey(fieldUserID, userID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamo get user: %w: %w", domain.ErrStoreUnavailable, err)
	}
	if out.Item == nil {
		return nil, domain.ErrUserNotFound
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return &u, nil
}

func (r *UserRepo) FindByEmail(ctx context.Context, email string) (_ *domain.User, err error) {
	defer metrics.ObserveStore(backend, "find_by_email", &err)()

	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.emailsTable),
		Key:            strKey(fieldEmail, email),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamo get email lock: %w: %w", domain.ErrStoreUnavailable, err)
	}
	if out.Item == nil {
		return nil, domain.ErrUserNotFound
	}
	var lock emailLock
	if err := attributevalue.UnmarshalMap(out.Item, &lock); err != nil {
		return nil, fmt.Errorf("unmarshal email lock: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return r.FindByID(ctx, lock.UserID)
}

// Save writes every mutable field in one conditional UpdateItem. The write only
// lands when the stored version still equals u.Version.
func (r *UserRepo) Save(ctx context.Context, u *domain.User) (err error) {
	defer metrics.ObserveStore(backend, "save", &err)()

	now := r.now().UTC()
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldPasswordHash:          u.PasswordHash,
		fieldIsVerified:            u.IsVerified,
		fieldEmailVerificationOTPs: nonNil(u.EmailVerificationOTPs),
		fieldResetOTPs:             nonNil(u.ResetOTPs),
		fieldVersion:               u.Version + 1,
		fieldUpdatedAt:             now,
	})
	if err != nil {
		return err
	}
	cond := withVersionCondition(&ue, u.Version)

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.usersTable),
		Key:                       strKey(fieldUserID, u.UserID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if err != nil {
		if isConditionFailed(err) {
			return domain.ErrVersionConflict
		}
		return fmt.Errorf("dynamo save user: %w: %w", domain.ErrStoreUnavailable, err)
	}
	u.Version++
	u.UpdatedAt = now
	return nil
}

// nonNil keeps empty histories stored as empty lists rather than NULL.
func nonNil(entries []domain.OTPEntry) []domain.OTPEntry {
	if entries == nil {
		return []domain.OTPEntry{}
	}
	return entries
}
