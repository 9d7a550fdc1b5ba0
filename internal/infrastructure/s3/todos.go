package s3infra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/go-todo-api/internal/domain"
	"github.com/go-todo-api/internal/metrics"
)

const backend = "s3"

// objectAPI is the subset of *s3.Client the todo store uses.
type objectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// TodoStore keeps each user's todos as one JSON object at todos/<user_id>.json.
// Writes for the same user are serialized within this process.
type TodoStore struct {
	client objectAPI
	bucket string
	locks  sync.Map // user id -> *sync.Mutex
}

func NewTodoStore(client objectAPI, bucket string) *TodoStore {
	return &TodoStore{client: client, bucket: bucket}
}

func objectKey(userID string) string {
	return "todos/" + userID + ".json"
}

func (s *TodoStore) Load(ctx context.Context, userID string) (_ []domain.Todo, err error) {
	defer metrics.ObserveStore(backend, "load_todos", &err)()
	return s.read(ctx, userID)
}

func (s *TodoStore) Modify(ctx context.Context, userID string, fn func([]domain.Todo) ([]domain.Todo, error)) (err error) {
	mu, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	defer mu.(*sync.Mutex).Unlock()

	todos, err := s.read(ctx, userID)
	if err != nil {
		return err
	}
	next, err := fn(todos)
	if err != nil {
		return err
	}

	defer metrics.ObserveStore(backend, "put_todos", &err)()
	body, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshal todos: %w", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey(userID)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 put todos: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *TodoStore) read(ctx context.Context, userID string) ([]domain.Todo, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(userID)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return []domain.Todo{}, nil
		}
		return nil, fmt.Errorf("s3 get todos: %w: %w", domain.ErrStoreUnavailable, err)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read todos: %w: %w", domain.ErrStoreUnavailable, err)
	}
	var todos []domain.Todo
	if err := json.Unmarshal(raw, &todos); err != nil {
		return nil, fmt.Errorf("decode todos: %w", err)
	}
	if todos == nil {
		todos = []domain.Todo{}
	}
	return todos, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func EnsureBucket(ctx context.Context, client *s3.Client, bucket string) error {
	_, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return nil
	}
	var owned *types.BucketAlreadyOwnedByYou
	var exists *types.BucketAlreadyExists
	if errors.As(err, &owned) || errors.As(err, &exists) {
		return nil
	}
	return fmt.Errorf("create bucket %s: %w", bucket, err)
}
