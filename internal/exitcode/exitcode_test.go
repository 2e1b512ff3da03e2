package exitcode

import (
	"errors"
	"fmt"
	"testing"

	"tasksync/internal/service"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, Success},
		{"invalid", fmt.Errorf("%w: name required", service.ErrInvalid), UserError},
		{"auth", fmt.Errorf("list tasks: %w", service.ErrAuth), AuthError},
		{"rejected", fmt.Errorf("create: %w", service.ErrRejected), BackendError},
		{"other", errors.New("connection refused"), BackendError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromError(tt.err); got != tt.want {
				t.Errorf("FromError(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
