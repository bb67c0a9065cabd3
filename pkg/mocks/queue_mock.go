package mocks

import (
	"context"
	"time"

	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/queue"
	"github.com/stretchr/testify/mock"
)

// MockQueue is a mock implementation of queue.Queue interface.
type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) Enqueue(ctx context.Context, payload models.JobPayload, policy queue.Policy) (*queue.Job, error) {
	args := m.Called(ctx, payload, policy)

	job, _ := args.Get(0).(*queue.Job)

	return job, args.Error(1)
}

func (m *MockQueue) Dequeue(ctx context.Context) (*queue.Job, error) {
	args := m.Called(ctx)

	job, _ := args.Get(0).(*queue.Job)

	return job, args.Error(1)
}

func (m *MockQueue) Complete(ctx context.Context, job *queue.Job, summary queue.Summary) error {
	args := m.Called(ctx, job, summary)

	return args.Error(0)
}

func (m *MockQueue) Fail(ctx context.Context, job *queue.Job, cause error) (bool, error) {
	args := m.Called(ctx, job, cause)

	return args.Bool(0), args.Error(1)
}

func (m *MockQueue) Get(ctx context.Context, id string) (*queue.Job, error) {
	args := m.Called(ctx, id)

	job, _ := args.Get(0).(*queue.Job)

	return job, args.Error(1)
}

func (m *MockQueue) Stats(ctx context.Context) (queue.Stats, error) {
	args := m.Called(ctx)

	stats, _ := args.Get(0).(queue.Stats)

	return stats, args.Error(1)
}

func (m *MockQueue) ReapStalled(ctx context.Context, timeout time.Duration) ([]*queue.Job, error) {
	args := m.Called(ctx, timeout)

	jobs, _ := args.Get(0).([]*queue.Job)

	return jobs, args.Error(1)
}

func (m *MockQueue) Close() error {
	args := m.Called()

	return args.Error(0)
}
