// Package testutil provides testing utilities.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"tasksync/internal/service"
)

// ErrNotFound is returned when a resource is not found.
var ErrNotFound = errors.New("not found")

// FakeService is an in-memory implementation of service.Service for testing.
type FakeService struct {
	mu     sync.RWMutex
	tasks  []service.Task
	nextID int
	refs   []string

	// Error injection for testing
	ListTasksErr  error
	CreateTaskErr error
	DeleteTaskErr error
	// FailNames makes CreateTask fail for specific task names.
	FailNames map[string]error
}

// NewFakeService creates an empty FakeService.
func NewFakeService() *FakeService {
	return &FakeService{nextID: 1, FailNames: make(map[string]error)}
}

// AddTask seeds a task and returns its ID.
func (f *FakeService) AddTask(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.add(name).ID
}

func (f *FakeService) add(name string) service.Task {
	t := service.Task{ID: strconv.Itoa(f.nextID), Name: name}
	f.nextID++
	f.tasks = append(f.tasks, t)
	return t
}

// Tasks returns a copy of the stored tasks.
func (f *FakeService) Tasks() []service.Task {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]service.Task, len(f.tasks))
	copy(out, f.tasks)
	return out
}

// Refs returns the client references received, in arrival order.
func (f *FakeService) Refs() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, len(f.refs))
	copy(out, f.refs)
	return out
}

// ListTasks implements service.Service.
func (f *FakeService) ListTasks(ctx context.Context) ([]service.Task, error) {
	if f.ListTasksErr != nil {
		return nil, f.ListTasksErr
	}
	return f.Tasks(), nil
}

// CreateTask implements service.Service.
func (f *FakeService) CreateTask(ctx context.Context, req service.CreateRequest) (service.Task, error) {
	if f.CreateTaskErr != nil {
		return service.Task{}, f.CreateTaskErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.FailNames[req.Name]; ok && err != nil {
		return service.Task{}, err
	}
	if req.Ref != "" {
		f.refs = append(f.refs, req.Ref)
	}
	return f.add(req.Name), nil
}

// DeleteTask implements service.Service.
func (f *FakeService) DeleteTask(ctx context.Context, id string) error {
	if f.DeleteTaskErr != nil {
		return f.DeleteTaskErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, t := range f.tasks {
		if t.ID == id {
			f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("task %s: %w", id, ErrNotFound)
}
