// Package service defines the backend-agnostic interface for task operations.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Service defines the interface for task backend operations.
// The REST and Google Tasks backends both implement it; the offline layers
// (interceptor, queue, sync coordinator) never import a backend directly.
type Service interface {
	// ListTasks returns all tasks in backend order.
	ListTasks(ctx context.Context) ([]Task, error)

	// CreateTask creates a task and returns it as confirmed by the backend.
	CreateTask(ctx context.Context, req CreateRequest) (Task, error)

	// DeleteTask deletes a task by its backend ID.
	DeleteTask(ctx context.Context, id string) error
}

var (
	// ErrRejected marks a request the backend refused for good (a 4xx).
	// Rejected writes are reported, never queued.
	ErrRejected = errors.New("rejected by backend")

	// ErrAuth marks missing or revoked credentials.
	ErrAuth = errors.New("authentication failed")

	// ErrInvalid marks a create request that failed validation.
	ErrInvalid = errors.New("invalid task")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a create request before it is sent or queued.
// Names are trimmed first; blank or over-long names are rejected.
func (r *CreateRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if err := validate.Struct(r); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) && len(errs) > 0 {
			switch errs[0].Tag() {
			case "required":
				return fmt.Errorf("%w: name required", ErrInvalid)
			case "max":
				return fmt.Errorf("%w: name too long (max 255 characters)", ErrInvalid)
			}
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}
