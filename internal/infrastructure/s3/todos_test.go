package s3infra

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-todo-api/internal/domain"
)

// fakeObjects is an in-memory stand-in for the two S3 calls the store makes.
type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	getErr  error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte)}
}

func (f *fakeObjects) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	b, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = b
	return &s3.PutObjectOutput{}, nil
}

func TestTodoStore_EmptyWhenMissing(t *testing.T) {
	s := NewTodoStore(newFakeObjects(), "bucket")

	todos, err := s.Load(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, todos)
}

func TestTodoStore_ModifyPersistsPerUser(t *testing.T) {
	objects := newFakeObjects()
	s := NewTodoStore(objects, "bucket")
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	err := s.Modify(ctx, "u1", func(todos []domain.Todo) ([]domain.Todo, error) {
		return append(todos, domain.Todo{ID: "t1", Title: "buy milk", Tags: []string{"home"}, CreatedAt: now}), nil
	})
	require.NoError(t, err)
	assert.Contains(t, objects.objects, "todos/u1.json")

	got, err := s.Load(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "buy milk", got[0].Title)
	assert.True(t, now.Equal(got[0].CreatedAt))

	other, err := s.Load(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestTodoStore_ModifyErrorSkipsWrite(t *testing.T) {
	objects := newFakeObjects()
	s := NewTodoStore(objects, "bucket")

	err := s.Modify(context.Background(), "u1", func([]domain.Todo) ([]domain.Todo, error) {
		return nil, domain.ErrNotFound
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, objects.objects)
}

func TestTodoStore_GetFailureIsStoreUnavailable(t *testing.T) {
	objects := newFakeObjects()
	objects.getErr = errors.New("connection reset")
	s := NewTodoStore(objects, "bucket")

	_, err := s.Load(context.Background(), "u1")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestTodoStore_ConcurrentModifySerialized(t *testing.T) {
	s := NewTodoStore(newFakeObjects(), "bucket")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Modify(ctx, "u1", func(todos []domain.Todo) ([]domain.Todo, error) {
				return append(todos, domain.Todo{Title: "x"}), nil
			})
		}()
	}
	wg.Wait()

	got, err := s.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, got, 20)
}
